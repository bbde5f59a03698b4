// Package export writes the parameters of a pretrained zoo model to disk.
//
// Run performs, in order: create the output directory, construct the model
// (downloading weights on first use), switch it to evaluation mode, extract
// its state dict, and write the state dict atomically. A failure at any step
// leaves an existing output file untouched.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/internal/nn"
	"github.com/born-ml/zoo/internal/serialization"
	"github.com/born-ml/zoo/internal/version"
	"github.com/born-ml/zoo/internal/zoo"
)

// Defaults reproduce the canonical export: deeplabsv3/deeplabv3_resnet101.pth.
const (
	DefaultArchitecture = "deeplabv3_resnet101"
	DefaultOutputDir    = "deeplabsv3"
	DefaultOutputFile   = "deeplabv3_resnet101.pth"
)

// Options select what to export and where.
type Options struct {
	Architecture string
	OutputDir    string
	OutputFile   string
	Format       serialization.Format

	// Pretrained loads upstream weights. Without it the model is randomly
	// initialized from Seed.
	Pretrained bool
	Seed       int64
}

// DefaultOptions returns the canonical pretrained export.
func DefaultOptions() Options {
	return Options{
		Architecture: DefaultArchitecture,
		OutputDir:    DefaultOutputDir,
		OutputFile:   DefaultOutputFile,
		Format:       serialization.FormatBorn,
		Pretrained:   true,
	}
}

// Path returns the output file path.
func (o Options) Path() string {
	return filepath.Join(o.OutputDir, o.OutputFile)
}

// Result describes a completed export.
type Result struct {
	Path         string
	Architecture string
	Tensors      int
	Parameters   int
	Bytes        int64
	Fingerprint  string
	Elapsed      time.Duration
}

// Exporter runs exports against a weight source.
type Exporter struct {
	source zoo.WeightSource
	logger *zap.Logger
	now    func() time.Time
}

// New creates an exporter. A nil logger disables logging.
func New(source zoo.WeightSource, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		source: source,
		logger: logger.Named("export"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run performs the export described by opts.
func (e *Exporter) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	path := opts.Path()
	logger := e.logger.With(zap.String("arch", opts.Architecture), zap.String("path", path))

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", opts.OutputDir, err)
	}

	backend := cpu.New()
	model, err := zoo.New(ctx, opts.Architecture, backend, zoo.Options{
		Pretrained: opts.Pretrained,
		Seed:       opts.Seed,
		Source:     e.source,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", opts.Architecture, err)
	}

	nn.Eval[*cpu.CPUBackend](model)
	stateDict := model.StateDict()
	fingerprint := serialization.Fingerprint(stateDict)

	header := serialization.Header{
		ZooVersion: version.Version,
		ModelType:  opts.Architecture,
		CreatedAt:  e.now(),
		Metadata: map[string]string{
			"backend": backend.Name(),
		},
		Export: &serialization.ExportMeta{
			Architecture: opts.Architecture,
			Mode:         mode(model.Training()),
			WeightsURL:   model.WeightsURL(),
			NumClasses:   model.NumClasses(),
			Categories:   model.Categories(),
			Fingerprint:  fingerprint,
		},
	}
	if opts.Pretrained {
		header.Metadata["weights"] = model.Architecture().Weights.Name
	}

	if err := serialization.WriteFile(path, opts.Format, stateDict, header); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	result := &Result{
		Path:         path,
		Architecture: opts.Architecture,
		Tensors:      len(stateDict),
		Parameters:   nn.NumParameters[*cpu.CPUBackend](model),
		Bytes:        info.Size(),
		Fingerprint:  fingerprint,
		Elapsed:      time.Since(start),
	}
	logger.Info("export complete",
		zap.Int("tensors", result.Tensors),
		zap.Int("parameters", result.Parameters),
		zap.String("size", units.HumanSize(float64(result.Bytes))),
		zap.String("fingerprint", result.Fingerprint),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func mode(training bool) string {
	if training {
		return "train"
	}
	return "eval"
}

// FileName returns the conventional output file name for arch in format.
func FileName(arch string, format serialization.Format) string {
	if format == serialization.FormatSafeTensors {
		return arch + ".safetensors"
	}
	return arch + ".pth"
}
