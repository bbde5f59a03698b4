package zoo

import (
	"math/rand"
	"strconv"

	"github.com/born-ml/zoo/internal/nn"
	"github.com/born-ml/zoo/internal/tensor"
)

const bottleneckExpansion = 4

// builder carries what every layer constructor needs.
type builder[B tensor.Backend] struct {
	rng     *rand.Rand
	backend B
}

func (b builder[B]) conv(in, out, kernel, stride, padding, dilation int, bias bool) *nn.Conv2D[B] {
	return nn.NewConv2D(nn.Conv2DConfig{
		InChannels:  in,
		OutChannels: out,
		KernelSize:  kernel,
		Stride:      stride,
		Padding:     padding,
		Dilation:    dilation,
		Bias:        bias,
	}, b.rng, b.backend)
}

func (b builder[B]) bn(channels int) *nn.BatchNorm2D[B] {
	return nn.NewBatchNorm2D(channels, b.backend)
}

// bottleneck builds one ResNet v1.5 bottleneck block: the stride sits on the 3x3 conv.
func (b builder[B]) bottleneck(inplanes, planes, stride, dilation int) *nn.Container[B] {
	out := planes * bottleneckExpansion
	block := nn.NewContainer[B]().
		Add("conv1", b.conv(inplanes, planes, 1, 1, 0, 1, false)).
		Add("bn1", b.bn(planes)).
		Add("conv2", b.conv(planes, planes, 3, stride, dilation, dilation, false)).
		Add("bn2", b.bn(planes)).
		Add("conv3", b.conv(planes, out, 1, 1, 0, 1, false)).
		Add("bn3", b.bn(out)).
		Add("relu", nn.NewReLU[B]())

	if stride != 1 || inplanes != out {
		block.Add("downsample", nn.NewSequential[B](
			b.conv(inplanes, out, 1, stride, 0, 1, false),
			b.bn(out),
		))
	}
	return block
}

// resnet builds the feature extractor of a bottleneck ResNet: the stem and
// layer1..layer4, without the pooling and fully connected classifier.
//
// Strides in layer3 and layer4 are replaced with dilation, so the output
// stride is 8 as dense prediction requires.
func (b builder[B]) resnet(cfg BackboneConfig) *nn.Container[B] {
	width := cfg.BaseWidth
	net := nn.NewContainer[B]().
		Add("conv1", b.conv(3, width, 7, 2, 3, 1, false)).
		Add("bn1", b.bn(width)).
		Add("relu", nn.NewReLU[B]()).
		Add("maxpool", nn.NewMaxPool2D[B](3, 2, 1))

	replaceStrideWithDilation := [4]bool{false, false, true, true}
	inplanes := width
	dilation := 1
	for i, blocks := range cfg.Layers {
		planes := width << i
		stride := 1
		if i > 0 {
			stride = 2
		}

		previousDilation := dilation
		if replaceStrideWithDilation[i] {
			dilation *= stride
			stride = 1
		}

		layer := nn.NewSequential[B](b.bottleneck(inplanes, planes, stride, previousDilation))
		inplanes = planes * bottleneckExpansion
		for j := 1; j < blocks; j++ {
			layer.Add(b.bottleneck(inplanes, planes, 1, dilation))
		}
		net.Add("layer"+strconv.Itoa(i+1), layer)
	}
	return net
}
