package nn

import (
	"github.com/born-ml/zoo/internal/tensor"
)

// Parameter represents a learnable parameter in a neural network.
//
// Parameters typically represent weights and biases of layers.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g., "weight", "bias")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
}

// NewParameter creates a new learnable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Raw returns the underlying raw tensor.
func (p *Parameter[B]) Raw() *tensor.RawTensor {
	return p.tensor.Raw()
}

// Buffer is a persistent tensor that is saved with the module but not learned,
// such as BatchNorm running statistics.
type Buffer struct {
	name string
	raw  *tensor.RawTensor
}

// NewBuffer creates a new named buffer.
func NewBuffer(name string, raw *tensor.RawTensor) *Buffer {
	return &Buffer{name: name, raw: raw}
}

// Name returns the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Raw returns the buffer tensor.
func (b *Buffer) Raw() *tensor.RawTensor {
	return b.raw
}
