package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/zoo/internal/tensor"
)

// Conv2DConfig describes a 2D convolution.
//
// Zero values for Stride and Dilation mean 1.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int // Square kernel
	Stride      int
	Padding     int
	Dilation    int
	Bias        bool
}

// Conv2D is a 2D convolutional layer.
//
// Weight shape: [out_channels, in_channels, kernel_h, kernel_w]
// Bias shape:   [out_channels]
//
// With dilation d the effective kernel extent is d*(k-1)+1, so
//
//	out_h = (height + 2*padding - dilation*(kernel-1) - 1) / stride + 1
//
// Example:
//
//	// 3x3 atrous conv used by the ASPP head
//	conv := nn.NewConv2D(nn.Conv2DConfig{
//	    InChannels: 2048, OutChannels: 256, KernelSize: 3, Padding: 12, Dilation: 12,
//	}, rng, backend)
type Conv2D[B tensor.Backend] struct {
	modeFlag
	cfg Conv2DConfig

	weight *Parameter[B] // [out_channels, in_channels, kernel_h, kernel_w]
	bias   *Parameter[B] // [out_channels] or nil
}

// NewConv2D creates a new 2D convolutional layer.
//
// Initialization:
//   - Weights: Kaiming normal, fan_out mode
//   - Bias: Zeros
//
// Panics on non-positive channels, kernel size, stride or dilation.
func NewConv2D[B tensor.Backend](cfg Conv2DConfig, rng *rand.Rand, backend B) *Conv2D[B] {
	if cfg.Stride == 0 {
		cfg.Stride = 1
	}
	if cfg.Dilation == 0 {
		cfg.Dilation = 1
	}
	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", cfg.InChannels, cfg.OutChannels))
	}
	if cfg.KernelSize <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %d", cfg.KernelSize))
	}
	if cfg.Stride < 0 || cfg.Dilation < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d or dilation %d", cfg.Stride, cfg.Dilation))
	}
	if cfg.Padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", cfg.Padding))
	}

	k := cfg.KernelSize
	weightShape := tensor.Shape{cfg.OutChannels, cfg.InChannels, k, k}
	weight := NewParameter("weight", KaimingNormal(cfg.OutChannels*k*k, weightShape, rng, backend))

	var bias *Parameter[B]
	if cfg.Bias {
		bias = NewParameter("bias", Zeros(tensor.Shape{cfg.OutChannels}, backend))
	}

	return &Conv2D[B]{
		modeFlag: newModeFlag(),
		cfg:      cfg,
		weight:   weight,
		bias:     bias,
	}
}

// Config returns the layer configuration.
func (c *Conv2D[B]) Config() Conv2DConfig {
	return c.cfg
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter, or nil when the layer has none.
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// Parameters returns [weight, bias] if bias is present, otherwise [weight].
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Buffers returns nil; Conv2D has no buffers.
func (c *Conv2D[B]) Buffers() []*Buffer {
	return nil
}

// StateDict returns the weight and, when present, the bias.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	sd := map[string]*tensor.RawTensor{"weight": c.weight.Raw()}
	if c.bias != nil {
		sd["bias"] = c.bias.Raw()
	}
	return sd
}

// LoadStateDict loads the weight and bias.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadState(c.StateDict(), stateDict)
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width].
func (c *Conv2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	extent := c.cfg.Dilation*(c.cfg.KernelSize-1) + 1
	outH := (inputH+2*c.cfg.Padding-extent)/c.cfg.Stride + 1
	outW := (inputW+2*c.cfg.Padding-extent)/c.cfg.Stride + 1
	return [2]int{outH, outW}
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2d(%d, %d, kernel_size=%d, stride=%d, padding=%d, dilation=%d, bias=%t)",
		c.cfg.InChannels, c.cfg.OutChannels, c.cfg.KernelSize, c.cfg.Stride, c.cfg.Padding, c.cfg.Dilation, c.cfg.Bias)
}
