// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader opens segmentation checkpoints for zoo.
//
// This package wraps internal loader implementations and exports a clean public API
// for reading state dicts from Born, SafeTensors and PyTorch files.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/zoo/loader"
//	    "github.com/born-ml/zoo/backend/cpu"
//	)
//
//	ckpt, err := loader.Open("deeplabsv3/deeplabv3_resnet101.pth", cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Format: %s\n", ckpt.Format)
//	fmt.Printf("Architecture: %s\n", ckpt.Architecture)
//	fmt.Printf("Tensors: %d\n", len(ckpt.StateDict))
package loader

import (
	"github.com/born-ml/zoo/internal/loader"
	"github.com/born-ml/zoo/tensor"
)

// Format represents the checkpoint format.
type Format = loader.Format

// Supported checkpoint formats.
const (
	FormatUnknown     Format = loader.FormatUnknown
	FormatBorn        Format = loader.FormatBorn
	FormatSafeTensors Format = loader.FormatSafeTensors
	FormatPyTorch     Format = loader.FormatPyTorch
)

// Checkpoint is a loaded state dict with its format and metadata.
type Checkpoint = loader.Checkpoint

// Option configures Open.
type Option = loader.Option

// KeyMapper renames state dict keys while loading.
type KeyMapper = loader.KeyMapper

// KeyMapperFunc adapts a function to KeyMapper.
type KeyMapperFunc = loader.KeyMapperFunc

// Open loads the checkpoint at path, detecting its format from its leading bytes.
//
// Supported formats:
//   - Born (.born v2 container, SHA-256 verified)
//   - SafeTensors (Hugging Face standard)
//   - PyTorch (torch.save zip archives and legacy pickles)
func Open(path string, backend tensor.Backend, opts ...Option) (*Checkpoint, error) {
	return loader.Open(path, backend, opts...)
}

// DetectFormat identifies the checkpoint format of path without loading it.
func DetectFormat(path string) (Format, error) {
	return loader.DetectFormat(path)
}

// DetectArchitecture guesses the zoo architecture from tensor names.
func DetectArchitecture(names []string) string {
	return loader.DetectArchitecture(names)
}

// WithKeyMapper renames keys as they are loaded.
func WithKeyMapper(m KeyMapper) Option {
	return loader.WithKeyMapper(m)
}

// WithoutChecksum skips Born data checksum validation.
func WithoutChecksum() Option {
	return loader.WithoutChecksum()
}

// StripPrefix removes prefix (typically "module.") from keys.
func StripPrefix(prefix string) KeyMapper {
	return loader.StripPrefix(prefix)
}
