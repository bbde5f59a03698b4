package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/zoo/internal/tensor"
)

// KaimingNormal (He) initialization for weights feeding a ReLU.
//
// Values are drawn from N(0, std²) with std = sqrt(2 / fan_out), where
// fan_out is out_channels * receptive field for convolution weights.
//
// Parameters:
//   - fanOut: Number of output units
//   - shape: Shape of the weight tensor
//   - rng: Source of randomness; a seeded source gives reproducible weights
//   - backend: Backend to use for tensor creation
func KaimingNormal[B tensor.Backend](fanOut int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	std := math.Sqrt(2.0 / float64(fanOut))
	return tensor.Normal(shape, std, rng, backend)
}

// Zeros creates a tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Full[float32](shape, 1, backend)
}
