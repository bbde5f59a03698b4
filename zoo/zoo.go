// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package zoo builds pretrained semantic segmentation models and exports
// their parameters.
//
// Available architectures: deeplabv3_resnet50, deeplabv3_resnet101,
// fcn_resnet50 and fcn_resnet101, each with COCO weights restricted to the
// 21 Pascal VOC categories.
//
// Example:
//
//	// Same as running `zoo` with no arguments.
//	result, err := zoo.Export(ctx, zoo.DefaultExportOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Path, result.Fingerprint)
//
//	// Or build the model and work with its state dict directly.
//	model, err := zoo.Pretrained(ctx, "deeplabv3_resnet101")
//	nn.Eval[*cpu.Backend](model)
//	stateDict := model.StateDict()
package zoo

import (
	"context"

	"go.uber.org/zap"

	"github.com/born-ml/zoo/backend/cpu"
	"github.com/born-ml/zoo/internal/export"
	"github.com/born-ml/zoo/internal/hub"
	"github.com/born-ml/zoo/internal/zoo"
	"github.com/born-ml/zoo/tensor"
)

// Architecture describes a registered model.
type Architecture = zoo.Architecture

// BackboneConfig describes a ResNet backbone.
type BackboneConfig = zoo.BackboneConfig

// HeadKind selects the segmentation head.
type HeadKind = zoo.HeadKind

// Segmentation heads.
const (
	HeadDeepLabV3 HeadKind = zoo.HeadDeepLabV3
	HeadFCN       HeadKind = zoo.HeadFCN
)

// Weights describes a set of pretrained weights.
type Weights = zoo.Weights

// WeightSource provides pretrained state dicts.
type WeightSource = zoo.WeightSource

// WeightSourceFunc adapts a function to WeightSource.
type WeightSourceFunc = zoo.WeightSourceFunc

// Options control model construction.
type Options = zoo.Options

// Model is a segmentation network.
type Model[B tensor.Backend] = zoo.Model[B]

// VOCCategories are the 21 class names of the pretrained weights.
var VOCCategories = zoo.VOCCategories

// ErrUnknownArchitecture is returned for names not in the registry.
var ErrUnknownArchitecture = zoo.ErrUnknownArchitecture

// Names returns the registered architecture names, sorted.
func Names() []string {
	return zoo.Names()
}

// Lookup returns the architecture registered under name.
func Lookup(name string) (Architecture, error) {
	return zoo.Lookup(name)
}

// Register adds an architecture to the registry.
func Register(arch Architecture) error {
	return zoo.Register(arch)
}

// New builds the architecture registered under name.
func New[B tensor.Backend](ctx context.Context, name string, backend B, opts Options) (*Model[B], error) {
	return zoo.New(ctx, name, backend, opts)
}

// HubSource returns a weight source that downloads into the default cache
// ($ZOO_HOME/hub/checkpoints or ~/.cache/born/hub/checkpoints).
func HubSource(logger *zap.Logger) (WeightSource, error) {
	client, err := hub.New("", hub.WithLogger(loggerOrNop(logger)))
	if err != nil {
		return nil, err
	}
	return export.NewHubSource(client, logger), nil
}

// Pretrained builds name on the CPU with its upstream weights.
func Pretrained(ctx context.Context, name string) (*Model[*cpu.Backend], error) {
	source, err := HubSource(nil)
	if err != nil {
		return nil, err
	}
	return zoo.New(ctx, name, cpu.New(), zoo.Options{Pretrained: true, Source: source})
}

// ExportOptions select what to export and where.
type ExportOptions = export.Options

// ExportResult describes a completed export.
type ExportResult = export.Result

// DefaultExportOptions exports pretrained deeplabv3_resnet101 to
// deeplabsv3/deeplabv3_resnet101.pth.
func DefaultExportOptions() ExportOptions {
	return export.DefaultOptions()
}

// Export creates the output directory, builds the model, switches it to
// evaluation mode and writes its state dict.
func Export(ctx context.Context, opts ExportOptions) (*ExportResult, error) {
	source, err := HubSource(nil)
	if err != nil {
		return nil, err
	}
	return export.New(source, nil).Run(ctx, opts)
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
