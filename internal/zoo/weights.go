package zoo

import (
	"context"

	"github.com/born-ml/zoo/internal/tensor"
)

// VOCCategories are the 20 Pascal VOC classes plus background, in the index
// order used by the COCO-with-VOC-labels segmentation weights.
var VOCCategories = []string{
	"__background__",
	"aeroplane",
	"bicycle",
	"bird",
	"boat",
	"bottle",
	"bus",
	"car",
	"cat",
	"chair",
	"cow",
	"diningtable",
	"dog",
	"horse",
	"motorbike",
	"person",
	"pottedplant",
	"sheep",
	"sofa",
	"train",
	"tvmonitor",
}

// Weights describes a published set of pretrained parameters.
type Weights struct {
	Name       string   // Identifier, e.g. "COCO_WITH_VOC_LABELS_V1"
	URL        string   // Upstream checkpoint location
	NumClasses int      // Output classes of the classifier
	Categories []string // Class names, index aligned with the classifier output
	NumParams  int      // Learnable scalars, auxiliary head included
	Dataset    string   // Training data description
}

// WeightSource supplies the upstream state dict for a set of weights.
type WeightSource interface {
	StateDict(ctx context.Context, w Weights) (map[string]*tensor.RawTensor, error)
}

// WeightSourceFunc adapts a function to WeightSource.
type WeightSourceFunc func(ctx context.Context, w Weights) (map[string]*tensor.RawTensor, error)

// StateDict calls f.
func (f WeightSourceFunc) StateDict(ctx context.Context, w Weights) (map[string]*tensor.RawTensor, error) {
	return f(ctx, w)
}

const cocoWithVOCLabels = "COCO-val2017-VOC-labels"

func cocoWeights(url string, numParams int) Weights {
	return Weights{
		Name:       "COCO_WITH_VOC_LABELS_V1",
		URL:        url,
		NumClasses: len(VOCCategories),
		Categories: VOCCategories,
		NumParams:  numParams,
		Dataset:    cocoWithVOCLabels,
	}
}
