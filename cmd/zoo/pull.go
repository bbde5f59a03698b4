package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/zoo/internal/zoo"
)

// maxParallelPulls bounds concurrent weight downloads.
const maxParallelPulls = 4

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull [ARCH...]",
		Short: "Download pretrained weights into the cache without exporting",
		Long: "Fetches the pretrained weights of each ARCH (default: the configured arch) " +
			"into the weight cache. Several architectures are downloaded concurrently.",
		ValidArgsFunction: completeArchitectures,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{a.cfg.Arch}
			}

			archs := make([]zoo.Architecture, len(args))
			for i, name := range args {
				arch, err := zoo.Lookup(name)
				if err != nil {
					return err
				}
				archs[i] = arch
			}

			// One progress bar at a time keeps the terminal readable.
			client, err := a.hubClient(cmd, len(archs) == 1)
			if err != nil {
				return err
			}

			paths := make([]string, len(archs))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxParallelPulls)
			for i, arch := range archs {
				g.Go(func() error {
					path, err := client.Fetch(ctx, arch.Weights.URL)
					if err != nil {
						return fmt.Errorf("pull %s: %w", arch.Name, err)
					}
					a.logger.Debug("weights cached", zap.String("arch", arch.Name), zap.String("path", path))
					paths[i] = path
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			for i, arch := range archs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", arch.Name, paths[i])
			}
			return nil
		},
	}
}
