package export

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/internal/loader"
	"github.com/born-ml/zoo/internal/tensor"
	"github.com/born-ml/zoo/internal/zoo"
)

// Fetcher resolves a weights URL to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HubSource serves pretrained state dicts from files fetched through a hub cache.
type HubSource struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewHubSource creates a weight source backed by fetcher.
func NewHubSource(fetcher Fetcher, logger *zap.Logger) *HubSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HubSource{fetcher: fetcher, logger: logger.Named("source")}
}

// StateDict fetches w.URL and decodes it.
func (s *HubSource) StateDict(ctx context.Context, w zoo.Weights) (map[string]*tensor.RawTensor, error) {
	path, err := s.fetcher.Fetch(ctx, w.URL)
	if err != nil {
		return nil, err
	}

	ckpt, err := loader.Open(path, cpu.New(), loader.WithKeyMapper(loader.StripPrefix("module.")))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.logger.Debug("decoded weights",
		zap.String("weights", w.Name),
		zap.String("format", ckpt.Format.String()),
		zap.Int("tensors", len(ckpt.StateDict)))
	return ckpt.StateDict, nil
}
