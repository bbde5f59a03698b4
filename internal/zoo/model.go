package zoo

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/born-ml/zoo/internal/nn"
	"github.com/born-ml/zoo/internal/tensor"
)

// Options control model construction.
type Options struct {
	// Pretrained loads the architecture's default weights from Source.
	Pretrained bool

	// NumClasses overrides the classifier width. Zero means the weights'
	// class count. Pretrained models only accept their weights' count.
	NumClasses int

	// AuxLoss adds the auxiliary FCN head on layer3. Pretrained weights
	// include it, so it is always on when Pretrained is set.
	AuxLoss bool

	// Seed drives random initialization, making untrained models reproducible.
	Seed int64

	// Source provides pretrained state dicts. Required when Pretrained is set.
	Source WeightSource

	// Logger receives construction progress. Nil disables logging.
	Logger *zap.Logger
}

// Model is a segmentation network: backbone, classifier and optional
// auxiliary classifier, keyed like the upstream checkpoints.
type Model[B tensor.Backend] struct {
	*nn.Container[B]
	arch       Architecture
	numClasses int
	aux        bool
	pretrained bool
}

// New builds the architecture registered under name.
//
// Example:
//
//	model, err := zoo.New(ctx, "deeplabv3_resnet101", cpu.New(), zoo.Options{
//	    Pretrained: true,
//	    Source:     source,
//	})
func New[B tensor.Backend](ctx context.Context, name string, backend B, opts Options) (*Model[B], error) {
	arch, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return Build(ctx, arch, backend, opts)
}

// Build constructs arch and, when requested, loads its pretrained weights strictly.
func Build[B tensor.Backend](ctx context.Context, arch Architecture, backend B, opts Options) (*Model[B], error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("arch", arch.Name))

	numClasses, aux, err := resolveOptions(arch, opts)
	if err != nil {
		return nil, err
	}
	if opts.Pretrained && opts.Source == nil {
		return nil, fmt.Errorf("build %s: pretrained weights requested without a weight source", arch.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	//nolint:gosec // G404: weight initialization is not security sensitive
	b := builder[B]{rng: rand.New(rand.NewSource(opts.Seed)), backend: backend}

	root := nn.NewContainer[B]().Add("backbone", b.resnet(arch.Backbone))
	switch arch.Head {
	case HeadDeepLabV3:
		root.Add("classifier", b.deepLabHead(arch.BackboneChannels(), arch.HeadChannels, numClasses))
	case HeadFCN:
		root.Add("classifier", b.fcnHead(arch.BackboneChannels(), numClasses))
	default:
		return nil, fmt.Errorf("build %s: unsupported head %q", arch.Name, arch.Head)
	}
	if aux {
		root.Add("aux_classifier", b.fcnHead(arch.AuxChannels(), numClasses))
	}

	model := &Model[B]{
		Container:  root,
		arch:       arch,
		numClasses: numClasses,
		aux:        aux,
		pretrained: opts.Pretrained,
	}
	logger.Debug("model constructed",
		zap.Int("parameters", nn.NumParameters[B](model)),
		zap.Int("num_classes", numClasses),
		zap.Bool("aux", aux),
		zap.Duration("elapsed", time.Since(start)))

	if opts.Pretrained {
		logger.Info("loading pretrained weights", zap.String("weights", arch.Weights.Name), zap.String("url", arch.Weights.URL))
		stateDict, err := opts.Source.StateDict(ctx, arch.Weights)
		if err != nil {
			return nil, fmt.Errorf("fetch weights for %s: %w", arch.Name, err)
		}
		if err := model.LoadStateDict(stateDict); err != nil {
			return nil, fmt.Errorf("load weights for %s: %w", arch.Name, err)
		}
	}

	return model, nil
}

func resolveOptions(arch Architecture, opts Options) (numClasses int, aux bool, err error) {
	numClasses = opts.NumClasses
	if numClasses < 0 {
		return 0, false, fmt.Errorf("build %s: negative class count %d", arch.Name, numClasses)
	}
	if numClasses == 0 {
		numClasses = arch.Weights.NumClasses
	}
	if numClasses == 0 {
		return 0, false, fmt.Errorf("build %s: class count unknown", arch.Name)
	}
	if opts.Pretrained && numClasses != arch.Weights.NumClasses {
		return 0, false, fmt.Errorf("build %s: pretrained weights have %d classes, %d requested",
			arch.Name, arch.Weights.NumClasses, numClasses)
	}
	return numClasses, opts.AuxLoss || opts.Pretrained, nil
}

// Architecture returns the architecture the model was built from.
func (m *Model[B]) Architecture() Architecture {
	return m.arch
}

// NumClasses returns the classifier width.
func (m *Model[B]) NumClasses() int {
	return m.numClasses
}

// HasAux reports whether the auxiliary classifier is present.
func (m *Model[B]) HasAux() bool {
	return m.aux
}

// Pretrained reports whether pretrained weights were loaded.
func (m *Model[B]) Pretrained() bool {
	return m.pretrained
}

// WeightsURL returns the source of the loaded weights, or "" for random init.
func (m *Model[B]) WeightsURL() string {
	if !m.pretrained {
		return ""
	}
	return m.arch.Weights.URL
}

// Categories returns class names when they are known for the classifier width.
func (m *Model[B]) Categories() []string {
	if m.numClasses != len(m.arch.Weights.Categories) {
		return nil
	}
	return m.arch.Weights.Categories
}

// Backbone returns the ResNet feature extractor.
func (m *Model[B]) Backbone() nn.Module[B] {
	return m.Child("backbone")
}

// Classifier returns the main segmentation head.
func (m *Model[B]) Classifier() nn.Module[B] {
	return m.Child("classifier")
}

// AuxClassifier returns the auxiliary head, or nil when absent.
func (m *Model[B]) AuxClassifier() nn.Module[B] {
	return m.Child("aux_classifier")
}
