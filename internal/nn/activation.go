package nn

import (
	"fmt"

	"github.com/born-ml/zoo/internal/tensor"
)

// ReLU is the rectified linear unit activation: f(x) = max(0, x).
//
// ReLU has no parameters; it occupies an index in Sequential containers so
// that the keys of the following layers match upstream numbering.
type ReLU[B tensor.Backend] struct {
	modeFlag
}

// NewReLU creates a new ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{modeFlag: newModeFlag()}
}

// Parameters returns an empty slice (ReLU has no parameters).
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Buffers returns nil.
func (r *ReLU[B]) Buffers() []*Buffer {
	return nil
}

// StateDict returns an empty map.
func (r *ReLU[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (r *ReLU[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(r.StateDict(), stateDict)
}

// String returns a string representation of the layer.
func (r *ReLU[B]) String() string {
	return "ReLU()"
}

// Dropout zeroes elements with probability P during training and is the
// identity in evaluation mode.
type Dropout[B tensor.Backend] struct {
	modeFlag
	p float64
}

// NewDropout creates a Dropout layer. Panics unless 0 <= p <= 1.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	if p < 0 || p > 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1], got %g", p))
	}
	return &Dropout[B]{modeFlag: newModeFlag(), p: p}
}

// P returns the drop probability.
func (d *Dropout[B]) P() float64 {
	return d.p
}

// Active reports whether the layer would drop elements, which is the case
// only in training mode with a positive probability.
func (d *Dropout[B]) Active() bool {
	return d.training && d.p > 0
}

// Parameters returns an empty slice (Dropout has no parameters).
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// Buffers returns nil.
func (d *Dropout[B]) Buffers() []*Buffer {
	return nil
}

// StateDict returns an empty map.
func (d *Dropout[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts only an empty state dict.
func (d *Dropout[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(d.StateDict(), stateDict)
}

// String returns a string representation of the layer.
func (d *Dropout[B]) String() string {
	return fmt.Sprintf("Dropout(p=%g)", d.p)
}
