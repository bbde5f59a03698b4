package nn

import (
	"fmt"

	"github.com/born-ml/zoo/internal/tensor"
)

// BatchNorm defaults.
const (
	DefaultBatchNormEps      = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] input.
//
// In training mode it normalizes with batch statistics and updates the
// running estimates; in evaluation mode it uses running_mean and running_var.
//
// State dict keys: weight, bias, running_mean, running_var, num_batches_tracked.
type BatchNorm2D[B tensor.Backend] struct {
	modeFlag
	numFeatures int
	eps         float64
	momentum    float64

	weight *Parameter[B] // [num_features], initialized to 1
	bias   *Parameter[B] // [num_features], initialized to 0

	runningMean       *Buffer // float32 [num_features]
	runningVar        *Buffer // float32 [num_features]
	numBatchesTracked *Buffer // int64 scalar
}

// NewBatchNorm2D creates a BatchNorm2D layer with the default eps and momentum.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}

	shape := tensor.Shape{numFeatures}
	counter, err := tensor.NewRaw(tensor.Shape{}, tensor.Int64, backend.Device())
	if err != nil {
		panic(err) // Scalar shape is always valid
	}

	return &BatchNorm2D[B]{
		modeFlag:          newModeFlag(),
		numFeatures:       numFeatures,
		eps:               DefaultBatchNormEps,
		momentum:          DefaultBatchNormMomentum,
		weight:            NewParameter("weight", Ones(shape, backend)),
		bias:              NewParameter("bias", Zeros(shape, backend)),
		runningMean:       NewBuffer("running_mean", Zeros(shape, backend).Raw()),
		runningVar:        NewBuffer("running_var", Ones(shape, backend).Raw()),
		numBatchesTracked: NewBuffer("num_batches_tracked", counter),
	}
}

// NumFeatures returns the number of channels.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// Eps returns the value added to the variance for numerical stability.
func (bn *BatchNorm2D[B]) Eps() float64 {
	return bn.eps
}

// Momentum returns the running statistics update factor.
func (bn *BatchNorm2D[B]) Momentum() float64 {
	return bn.momentum
}

// UsesBatchStatistics reports whether normalization would use batch statistics,
// which is the case only in training mode.
func (bn *BatchNorm2D[B]) UsesBatchStatistics() bool {
	return bn.training
}

// Parameters returns [weight, bias].
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias}
}

// Buffers returns [running_mean, running_var, num_batches_tracked].
func (bn *BatchNorm2D[B]) Buffers() []*Buffer {
	return []*Buffer{bn.runningMean, bn.runningVar, bn.numBatchesTracked}
}

// StateDict returns parameters and running statistics.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, 5)
	for _, p := range bn.Parameters() {
		sd[p.Name()] = p.Raw()
	}
	for _, b := range bn.Buffers() {
		sd[b.Name()] = b.Raw()
	}
	return sd
}

// LoadStateDict loads parameters and running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(bn.StateDict(), stateDict)
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2d(%d, eps=%g, momentum=%g)", bn.numFeatures, bn.eps, bn.momentum)
}
