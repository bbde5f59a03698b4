package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/zoo/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// State dict keys are prefixed with the module index, so parameter-free
// layers such as ReLU still take up a slot:
//
//	head := nn.NewSequential[B](
//	    conv, // "0.weight"
//	    bn,   // "1.weight", "1.running_mean", ...
//	    nn.NewReLU[B](),
//	    nn.NewDropout[B](0.1),
//	    classifier, // "4.weight", "4.bias"
//	)
type Sequential[B tensor.Backend] struct {
	modules  []Module[B]
	training bool
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules:  modules,
		training: true,
	}
}

// Add appends a module to the sequence.
//
// This allows building models incrementally:
//
//	layer := nn.NewSequential[B]()
//	for i := 0; i < blocks; i++ {
//	    layer.Add(newBottleneck(...))
//	}
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("Sequential.Module: index %d out of bounds [0, %d)", index, len(s.modules)))
	}
	return s.modules[index]
}

// Parameters returns all parameters from all modules, in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Buffers returns all buffers from all modules, in order.
func (s *Sequential[B]) Buffers() []*Buffer {
	var buffers []*Buffer
	for _, module := range s.modules {
		buffers = append(buffers, module.Buffers()...)
	}
	return buffers
}

// StateDict returns a map of parameter names to raw tensors.
//
// Parameters are prefixed with their module index (e.g., "0.weight", "1.running_mean").
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		prefixed(stateDict, strconv.Itoa(i), module.StateDict())
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary with index-prefixed keys.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(s.StateDict(), stateDict)
}

// Train sets the mode of the container and every module in it.
func (s *Sequential[B]) Train(mode bool) {
	s.training = mode
	for _, module := range s.modules {
		module.Train(mode)
	}
}

// Training reports whether the container is in training mode.
func (s *Sequential[B]) Training() bool {
	return s.training
}
