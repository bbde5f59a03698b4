package nn

import (
	"fmt"

	"github.com/born-ml/zoo/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer.
//
// MaxPool2D has no learnable parameters.
//
//	out_height = (height + 2*padding - kernelSize) / stride + 1
//
// The ResNet stem uses NewMaxPool2D(3, 2, 1).
type MaxPool2D[B tensor.Backend] struct {
	modeFlag
	kernelSize int
	stride     int
	padding    int
}

// NewMaxPool2D creates a new 2D max pooling layer.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride, padding int) *MaxPool2D[B] {
	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	if padding < 0 || 2*padding > kernelSize {
		panic(fmt.Sprintf("maxpool2d: padding %d must be at most half of kernel size %d", padding, kernelSize))
	}

	return &MaxPool2D[B]{
		modeFlag:   newModeFlag(),
		kernelSize: kernelSize,
		stride:     stride,
		padding:    padding,
	}
}

// KernelSize returns the pooling kernel size.
func (m *MaxPool2D[B]) KernelSize() int {
	return m.kernelSize
}

// Stride returns the stride.
func (m *MaxPool2D[B]) Stride() int {
	return m.stride
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (m *MaxPool2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	outH := (inputH+2*m.padding-m.kernelSize)/m.stride + 1
	outW := (inputW+2*m.padding-m.kernelSize)/m.stride + 1
	return [2]int{outH, outW}
}

// Parameters returns all trainable parameters (empty for MaxPool2D).
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Buffers returns nil.
func (m *MaxPool2D[B]) Buffers() []*Buffer {
	return nil
}

// StateDict returns an empty map.
func (m *MaxPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (m *MaxPool2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(m.StateDict(), stateDict)
}

// String returns a string representation of the layer.
func (m *MaxPool2D[B]) String() string {
	return fmt.Sprintf("MaxPool2d(kernel_size=%d, stride=%d, padding=%d)",
		m.kernelSize, m.stride, m.padding)
}

// AdaptiveAvgPool2D averages each channel down to a fixed output size,
// regardless of the input's spatial dimensions.
type AdaptiveAvgPool2D[B tensor.Backend] struct {
	modeFlag
	outputSize int
}

// NewAdaptiveAvgPool2D creates an adaptive average pool with a square output.
func NewAdaptiveAvgPool2D[B tensor.Backend](outputSize int) *AdaptiveAvgPool2D[B] {
	if outputSize <= 0 {
		panic(fmt.Sprintf("adaptiveavgpool2d: invalid output size %d", outputSize))
	}
	return &AdaptiveAvgPool2D[B]{modeFlag: newModeFlag(), outputSize: outputSize}
}

// OutputSize returns the side length of the pooled output.
func (a *AdaptiveAvgPool2D[B]) OutputSize() int {
	return a.outputSize
}

// Parameters returns an empty slice.
func (a *AdaptiveAvgPool2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Buffers returns nil.
func (a *AdaptiveAvgPool2D[B]) Buffers() []*Buffer {
	return nil
}

// StateDict returns an empty map.
func (a *AdaptiveAvgPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (a *AdaptiveAvgPool2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(a.StateDict(), stateDict)
}

// String returns a string representation of the layer.
func (a *AdaptiveAvgPool2D[B]) String() string {
	return fmt.Sprintf("AdaptiveAvgPool2d(output_size=%d)", a.outputSize)
}
