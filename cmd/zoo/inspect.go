package main

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/internal/loader"
	"github.com/born-ml/zoo/internal/serialization"
)

func newInspectCmd(a *app) *cobra.Command {
	var showTensors bool

	c := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the contents of a checkpoint (Born, SafeTensors or PyTorch)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ckpt, err := loader.Open(args[0], cpu.New())
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			printCheckpoint(cmd, ckpt, showTensors)
			return nil
		},
	}

	c.Flags().BoolVar(&showTensors, "tensors", false, "List every tensor with its dtype and shape")
	return c
}

func printCheckpoint(cmd *cobra.Command, ckpt *loader.Checkpoint, showTensors bool) {
	out := cmd.OutOrStdout()

	var bytes int64
	for _, t := range ckpt.StateDict {
		bytes += int64(t.ByteSize())
	}

	summary := tablewriter.NewWriter(out)
	summary.SetBorder(false)
	summary.SetColumnSeparator("")
	summary.SetAlignment(tablewriter.ALIGN_LEFT)
	summary.SetAutoWrapText(false)
	summary.Append([]string{"File", ckpt.Path})
	summary.Append([]string{"Format", ckpt.Format.String()})
	summary.Append([]string{"Architecture", orDash(ckpt.Architecture)})
	if ckpt.Export != nil {
		summary.Append([]string{"Mode", ckpt.Export.Mode})
		summary.Append([]string{"Classes", fmt.Sprint(ckpt.Export.NumClasses)})
		summary.Append([]string{"Weights", orDash(ckpt.Export.WeightsURL)})
	}
	summary.Append([]string{"Tensors", fmt.Sprint(len(ckpt.StateDict))})
	summary.Append([]string{"Elements", fmt.Sprint(ckpt.NumElements())})
	summary.Append([]string{"Data", units.HumanSize(float64(bytes))})
	summary.Append([]string{"Fingerprint", serialization.Fingerprint(ckpt.StateDict)})
	summary.Render()

	if !showTensors {
		return
	}

	fmt.Fprintln(out)
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "DType", "Shape", "Size"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	for _, name := range ckpt.Names {
		t := ckpt.StateDict[name]
		table.Append([]string{
			name,
			t.DType().String(),
			formatShape(t.Shape()),
			units.BytesSize(float64(t.ByteSize())),
		})
	}
	table.Render()
}

func formatShape(shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(dims, ", ") + "]"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
