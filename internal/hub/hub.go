// Package hub downloads pretrained weight files and keeps them in a local cache.
//
// Files are stored under their URL base name. Upstream weight files embed a
// SHA-256 prefix in their name (resnet101-63fe2227.pth); downloads whose
// digest does not start with that prefix are rejected with ErrHashMismatch.
//
// Concurrent fetches of the same file, across goroutines or processes, are
// serialized by a lock file next to the cached entry.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-units"
	"github.com/gofrs/flock"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// ErrHashMismatch is returned when a download does not match the hash prefix in its name.
var ErrHashMismatch = errors.New("hub: hash prefix mismatch")

// hashPrefix matches the digest prefix embedded in upstream file names.
var hashPrefix = regexp.MustCompile(`-([a-f0-9]+)\.`)

const (
	defaultMaxElapsed      = 5 * time.Minute
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
	lockRetryDelay         = 250 * time.Millisecond
)

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// Client fetches files into a cache directory.
type Client struct {
	dir             string
	http            *http.Client
	logger          *zap.Logger
	progress        io.Writer
	checkHash       bool
	maxElapsed      time.Duration
	initialInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithProgress renders a progress bar to w while downloading.
func WithProgress(w io.Writer) Option {
	return func(cl *Client) { cl.progress = w }
}

// WithRetry bounds download retries. maxElapsed of zero disables retrying.
func WithRetry(maxElapsed, initialInterval time.Duration) Option {
	return func(cl *Client) {
		cl.maxElapsed = maxElapsed
		cl.initialInterval = initialInterval
	}
}

// WithHashCheck toggles hash prefix verification. It is on by default.
func WithHashCheck(enabled bool) Option {
	return func(cl *Client) { cl.checkHash = enabled }
}

// New creates a client caching into dir. An empty dir selects DefaultCacheDir.
func New(dir string, opts ...Option) (*Client, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	c := &Client{
		dir:             dir,
		http:            http.DefaultClient,
		logger:          zap.NewNop(),
		checkHash:       true,
		maxElapsed:      defaultMaxElapsed,
		initialInterval: defaultInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("hub")
	return c, nil
}

// DefaultCacheDir resolves the checkpoint cache directory:
// $ZOO_HOME/hub/checkpoints, else $XDG_CACHE_HOME/born/hub/checkpoints,
// else ~/.cache/born/hub/checkpoints.
func DefaultCacheDir() (string, error) {
	if home := os.Getenv("ZOO_HOME"); home != "" {
		return filepath.Join(home, "hub", "checkpoints"), nil
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "born", "hub", "checkpoints"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache directory: %w", err)
	}
	return filepath.Join(home, ".cache", "born", "hub", "checkpoints"), nil
}

// Dir returns the cache directory.
func (c *Client) Dir() string {
	return c.dir
}

// Path returns where rawURL is cached, whether or not it has been fetched.
func (c *Client) Path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("url %s has no file name", rawURL)
	}
	return filepath.Join(c.dir, name), nil
}

// Cached reports whether rawURL is already in the cache.
func (c *Client) Cached(rawURL string) bool {
	p, err := c.Path(rawURL)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Fetch returns the local path of rawURL, downloading it on a cache miss.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	dst, err := c.Path(rawURL)
	if err != nil {
		return "", err
	}
	logger := c.logger.With(zap.String("file", filepath.Base(dst)))

	if _, err := os.Stat(dst); err == nil {
		logger.Debug("cache hit", zap.String("path", dst))
		return dst, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(dst + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", dst, err)
	}
	if !locked {
		return "", fmt.Errorf("lock %s: not acquired", dst)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	// Another process may have finished the download while we waited.
	if _, err := os.Stat(dst); err == nil {
		logger.Debug("cache filled while waiting for lock")
		return dst, nil
	}

	logger.Info("downloading", zap.String("url", rawURL), zap.String("dest", dst))
	start := time.Now()
	attempt := 0
	var size int64
	op := func() error {
		attempt++
		n, err := c.download(ctx, rawURL, dst)
		if err != nil {
			var status *StatusError
			if errors.As(err, &status) && !status.Temporary() {
				return backoff.Permanent(err)
			}
			if errors.Is(err, ErrHashMismatch) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		size = n
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("download failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.policy(), ctx), notify); err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}

	logger.Info("downloaded",
		zap.String("size", units.HumanSize(float64(size))),
		zap.Duration("elapsed", time.Since(start)))
	return dst, nil
}

func (c *Client) policy() backoff.BackOff {
	if c.maxElapsed <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = defaultMaxInterval
	b.MaxElapsedTime = c.maxElapsed
	return b
}

// download performs a single attempt, leaving dst untouched unless it succeeds.
func (c *Client) download(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".partial-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	digester := digest.SHA256.Digester()
	body := c.track(ctx, resp.Body, resp.ContentLength, filepath.Base(dst))
	n, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), body)
	body.finish(err == nil)
	if err != nil {
		return 0, fmt.Errorf("read failed: %w", err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return 0, fmt.Errorf("download size mismatch: expected %d, got %d", resp.ContentLength, n)
	}

	if c.checkHash {
		if err := verifyPrefix(filepath.Base(dst), digester.Digest()); err != nil {
			return 0, err
		}
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("failed to move file: %w", err)
	}
	return n, nil
}

// verifyPrefix checks d against the hash prefix embedded in name, if any.
func verifyPrefix(name string, d digest.Digest) error {
	m := hashPrefix.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	if !strings.HasPrefix(d.Encoded(), m[1]) {
		return fmt.Errorf("%w: %s has digest %s", ErrHashMismatch, name, d)
	}
	return nil
}
