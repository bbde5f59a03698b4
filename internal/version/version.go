// Package version holds the zoo release identifier stamped into CLI output and
// checkpoint headers.
package version

// Version is overridden at link time with -ldflags "-X .../version.Version=...".
var Version = "v0.1.0-dev"
