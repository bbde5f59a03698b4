package main

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/born-ml/zoo/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [ARCH]",
		Short: "Export a model's evaluation-mode parameters (default deeplabv3_resnet101)",
		Long: "Creates the output directory, builds ARCH with pretrained weights " +
			"(downloading them on first use), switches it to evaluation mode and " +
			"writes its state dict atomically.",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeArchitectures,
		RunE: func(cmd *cobra.Command, args []string) error {
			arch := ""
			if len(args) == 1 {
				arch = args[0]
			}
			return a.runExport(cmd, arch)
		},
	}
}

func (a *app) runExport(cmd *cobra.Command, arch string) error {
	opts := a.cfg.ExportOptions()
	if arch != "" {
		opts.Architecture = arch
	}
	// The default file name belongs to the default architecture.
	if opts.Architecture != export.DefaultArchitecture && opts.OutputFile == export.DefaultOutputFile {
		opts.OutputFile = export.FileName(opts.Architecture, opts.Format)
	}

	client, err := a.hubClient(cmd, true)
	if err != nil {
		return err
	}

	result, err := export.New(export.NewHubSource(client, a.logger), a.logger).Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	color.New(color.FgGreen, color.Bold).Fprint(out, "Saved ")
	fmt.Fprintf(out, "%s (%s, %d tensors, %s)\n",
		result.Path, result.Architecture, result.Tensors, units.HumanSize(float64(result.Bytes)))
	fmt.Fprintf(out, "Fingerprint: %s\n", result.Fingerprint)
	return nil
}
