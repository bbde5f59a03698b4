// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the module system zoo models are built from.
//
// Modules expose their learnable parameters and persistent buffers as a
// state dict keyed by dotted paths (backbone.layer1.0.conv1.weight), switch
// between training and evaluation mode recursively, and load state dicts
// strictly.
//
// Example:
//
//	backend := cpu.New()
//	rng := rand.New(rand.NewSource(0))
//	block := nn.NewSequential[*cpu.Backend](
//	    nn.NewConv2D(nn.Conv2DConfig{InChannels: 3, OutChannels: 8, KernelSize: 3, Padding: 1}, rng, backend),
//	    nn.NewBatchNorm2D(8, backend),
//	    nn.NewReLU[*cpu.Backend](),
//	)
//	nn.Eval[*cpu.Backend](block)
//	err := nn.Save[*cpu.Backend](block, "block.born", "block", nil)
package nn

import (
	"math/rand"

	"github.com/born-ml/zoo/internal/nn"
	"github.com/born-ml/zoo/internal/serialization"
	"github.com/born-ml/zoo/tensor"
)

// Module is the interface every layer and container implements.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a named learnable tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// Buffer is a named persistent non-learnable tensor, such as BatchNorm running statistics.
type Buffer = nn.Buffer

// Layers.
type (
	Conv2D[B tensor.Backend]            = nn.Conv2D[B]
	Conv2DConfig                        = nn.Conv2DConfig
	BatchNorm2D[B tensor.Backend]       = nn.BatchNorm2D[B]
	ReLU[B tensor.Backend]              = nn.ReLU[B]
	Dropout[B tensor.Backend]           = nn.Dropout[B]
	MaxPool2D[B tensor.Backend]         = nn.MaxPool2D[B]
	AdaptiveAvgPool2D[B tensor.Backend] = nn.AdaptiveAvgPool2D[B]
	Sequential[B tensor.Backend]        = nn.Sequential[B]
	Container[B tensor.Backend]         = nn.Container[B]
)

// ErrStateDictMismatch is matched by errors.Is for every strict-load failure.
var ErrStateDictMismatch = nn.ErrStateDictMismatch

// StateDictError lists missing, unexpected and mismatched keys.
type StateDictError = nn.StateDictError

// NewConv2D creates a 2D convolution with Kaiming-normal weights.
func NewConv2D[B tensor.Backend](cfg Conv2DConfig, rng *rand.Rand, backend B) *Conv2D[B] {
	return nn.NewConv2D(cfg, rng, backend)
}

// NewBatchNorm2D creates batch normalization over numFeatures channels.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// NewDropout creates dropout with drop probability p.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	return nn.NewDropout[B](p)
}

// NewMaxPool2D creates 2D max pooling.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride, padding int) *MaxPool2D[B] {
	return nn.NewMaxPool2D[B](kernelSize, stride, padding)
}

// NewAdaptiveAvgPool2D creates adaptive average pooling to outputSize x outputSize.
func NewAdaptiveAvgPool2D[B tensor.Backend](outputSize int) *AdaptiveAvgPool2D[B] {
	return nn.NewAdaptiveAvgPool2D[B](outputSize)
}

// NewSequential creates a container whose children are keyed by index.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// NewContainer creates a container whose children are keyed by name.
func NewContainer[B tensor.Backend]() *Container[B] {
	return nn.NewContainer[B]()
}

// Eval switches m and all its descendants to evaluation mode.
func Eval[B tensor.Backend](m Module[B]) {
	nn.Eval(m)
}

// NumParameters returns the number of learnable scalars in m.
func NumParameters[B tensor.Backend](m Module[B]) int {
	return nn.NumParameters(m)
}

// SnapshotStateDict returns a deep copy of m's state dict.
func SnapshotStateDict[B tensor.Backend](m Module[B]) map[string]*tensor.RawTensor {
	return nn.SnapshotStateDict(m)
}

// Header is the metadata stored alongside a saved state dict.
type Header = serialization.Header

// Save writes m's state dict to path in the .born format, atomically.
func Save[B tensor.Backend](m Module[B], path, modelType string, metadata map[string]string) error {
	return nn.Save(m, path, modelType, metadata)
}

// Load reads a .born file into m strictly and returns its header.
func Load[B tensor.Backend](path string, backend B, m Module[B]) (Header, error) {
	return nn.Load(path, backend, m)
}
