package zoo

import (
	"github.com/born-ml/zoo/internal/nn"
)

// asppRates are the atrous rates of the DeepLabV3 head at output stride 8.
var asppRates = [3]int{12, 24, 36}

// deepLabHead builds ASPP followed by a 3x3 conv block and a 1x1 classifier.
//
//	0: ASPP
//	1: Conv2d(c, c, 3, padding=1, bias=False)
//	2: BatchNorm2d(c)
//	3: ReLU
//	4: Conv2d(c, numClasses, 1)
func (b builder[B]) deepLabHead(in, channels, numClasses int) *nn.Sequential[B] {
	return nn.NewSequential[B](
		b.aspp(in, channels),
		b.conv(channels, channels, 3, 1, 1, 1, false),
		b.bn(channels),
		nn.NewReLU[B](),
		b.conv(channels, numClasses, 1, 1, 0, 1, true),
	)
}

// aspp builds Atrous Spatial Pyramid Pooling: a 1x1 branch, one 3x3 branch
// per rate, an image pooling branch, and a 1x1 projection of their concatenation.
func (b builder[B]) aspp(in, channels int) *nn.Container[B] {
	convs := nn.NewSequential[B](
		nn.NewSequential[B](
			b.conv(in, channels, 1, 1, 0, 1, false),
			b.bn(channels),
			nn.NewReLU[B](),
		),
	)
	for _, rate := range asppRates {
		convs.Add(nn.NewSequential[B](
			b.conv(in, channels, 3, 1, rate, rate, false),
			b.bn(channels),
			nn.NewReLU[B](),
		))
	}
	convs.Add(nn.NewSequential[B](
		nn.NewAdaptiveAvgPool2D[B](1),
		b.conv(in, channels, 1, 1, 0, 1, false),
		b.bn(channels),
		nn.NewReLU[B](),
	))

	branches := convs.Len()
	project := nn.NewSequential[B](
		b.conv(branches*channels, channels, 1, 1, 0, 1, false),
		b.bn(channels),
		nn.NewReLU[B](),
		nn.NewDropout[B](0.5),
	)

	return nn.NewContainer[B]().
		Add("convs", convs).
		Add("project", project)
}

// fcnHead builds the FCN head, also used as the auxiliary classifier.
//
//	0: Conv2d(in, in/4, 3, padding=1, bias=False)
//	1: BatchNorm2d(in/4)
//	2: ReLU
//	3: Dropout(0.1)
//	4: Conv2d(in/4, numClasses, 1)
func (b builder[B]) fcnHead(in, numClasses int) *nn.Sequential[B] {
	inter := in / 4
	return nn.NewSequential[B](
		b.conv(in, inter, 3, 1, 1, 1, false),
		b.bn(inter),
		nn.NewReLU[B](),
		nn.NewDropout[B](0.1),
		b.conv(inter, numClasses, 1, 1, 0, 1, true),
	)
}
