// Package nn implements neural network modules for the zoo.
//
// This package provides the building blocks pretrained architectures are
// assembled from:
//   - Module interface: parameters, buffers, state dicts and train/eval mode
//   - Parameter and Buffer: learnable and persistent tensors
//   - Layers: Conv2D, BatchNorm2D, ReLU, Dropout, MaxPool2D, AdaptiveAvgPool2D
//   - Containers: Sequential (index-prefixed keys), Container (name-prefixed keys)
//
// Design inspired by PyTorch's nn.Module but adapted for Go generics. State
// dictionary keys follow PyTorch naming so upstream checkpoints load unchanged.
package nn

import (
	"github.com/born-ml/zoo/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	stem := nn.NewContainer[B]().
//	    Add("conv1", nn.NewConv2D(nn.Conv2DConfig{InChannels: 3, OutChannels: 64, KernelSize: 7, Stride: 2, Padding: 3}, rng, backend)).
//	    Add("bn1", nn.NewBatchNorm2D(64, backend)).
//	    Add("relu", nn.NewReLU[B]())
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Parameters returns all learnable parameters of this module, including
	// those of nested modules, in registration order.
	Parameters() []*Parameter[B]

	// Buffers returns the persistent non-learnable tensors of this module
	// (for example BatchNorm running statistics), including nested ones.
	Buffers() []*Buffer

	// StateDict returns parameters and buffers keyed by their dotted name.
	//
	// The returned tensors are the module's own storage, not copies, so
	// callers that need a snapshot must Clone them.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into this module.
	//
	// Loading is strict: missing or unexpected keys and shape or dtype
	// mismatches fail with a *StateDictError and leave the module unchanged.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Train sets training mode on this module and all of its children.
	Train(mode bool)

	// Training reports whether the module is in training mode.
	Training() bool
}

// Eval switches m and all of its children to evaluation mode.
//
// In evaluation mode Dropout is disabled and BatchNorm uses its running
// statistics instead of batch statistics.
func Eval[B tensor.Backend](m Module[B]) {
	m.Train(false)
}

// NumParameters returns the total number of learnable scalars in m.
func NumParameters[B tensor.Backend](m Module[B]) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// modeFlag implements Train and Training for leaf modules.
type modeFlag struct {
	training bool
}

func newModeFlag() modeFlag {
	return modeFlag{training: true}
}

// Train sets training mode.
func (m *modeFlag) Train(mode bool) {
	m.training = mode
}

// Training reports whether the module is in training mode.
func (m *modeFlag) Training() bool {
	return m.training
}
