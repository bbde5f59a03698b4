package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/born-ml/zoo/internal/pth"
	"github.com/born-ml/zoo/internal/serialization"
	"github.com/born-ml/zoo/internal/tensor"
)

// Format represents the checkpoint format.
type Format string

// Supported checkpoint formats.
const (
	FormatUnknown     Format = "unknown"
	FormatBorn        Format = Format(serialization.FormatBorn)
	FormatSafeTensors Format = Format(serialization.FormatSafeTensors)
	FormatPyTorch     Format = "pytorch"
)

// String returns the format name.
func (f Format) String() string {
	return string(f)
}

// magicSize is how many leading bytes DetectFormat inspects.
const magicSize = 16

var (
	zipMagic    = []byte("PK\x03\x04")
	pickleProto = byte(0x80)
)

// Checkpoint is a fully loaded state dict plus what the file says about it.
type Checkpoint struct {
	Path   string
	Format Format

	// Architecture is the recorded model type, or the one detected from
	// tensor names when the file does not record it.
	Architecture string

	// Metadata holds free-form string metadata (Born header metadata or
	// the SafeTensors __metadata__ block). Empty for PyTorch files.
	Metadata map[string]string

	// Export is set for Born files written by zoo export.
	Export *serialization.ExportMeta

	// Names lists tensor names in file order.
	Names     []string
	StateDict map[string]*tensor.RawTensor
}

// Option configures Open.
type Option func(*options)

type options struct {
	mapper       KeyMapper
	skipChecksum bool
}

// WithKeyMapper renames keys as they are loaded.
func WithKeyMapper(m KeyMapper) Option {
	return func(o *options) { o.mapper = m }
}

// WithoutChecksum skips Born data checksum validation.
func WithoutChecksum() Option {
	return func(o *options) { o.skipChecksum = true }
}

// Open loads the checkpoint at path, auto-detecting its format.
func Open(path string, backend tensor.Backend, opts ...Option) (*Checkpoint, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var ckpt *Checkpoint
	switch format {
	case FormatBorn:
		ckpt, err = openBorn(path, backend, o)
	case FormatSafeTensors:
		ckpt, err = openSafeTensors(path, backend)
	case FormatPyTorch:
		ckpt, err = openPyTorch(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s (expected Born, SafeTensors or PyTorch)", filepath.Base(path))
	}
	if err != nil {
		return nil, err
	}

	ckpt.Path = path
	ckpt.Format = format
	if o.mapper != nil {
		if ckpt.StateDict, ckpt.Names, err = remap(ckpt.StateDict, ckpt.Names, o.mapper); err != nil {
			return nil, err
		}
	}
	if ckpt.Architecture == "" {
		ckpt.Architecture = DetectArchitecture(ckpt.Names)
	}
	return ckpt, nil
}

// DetectFormat identifies a checkpoint by its leading bytes.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	head := make([]byte, magicSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	return detect(head[:n]), nil
}

func detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, []byte(serialization.MagicBytes)):
		return FormatBorn
	case bytes.HasPrefix(head, zipMagic):
		return FormatPyTorch
	case len(head) > 0 && head[0] == pickleProto:
		return FormatPyTorch
	case len(head) > 8 && head[8] == '{':
		// SafeTensors: u64 little-endian header size, then a JSON object.
		if size := binary.LittleEndian.Uint64(head[:8]); size > 1 && size <= serialization.MaxHeaderSize {
			return FormatSafeTensors
		}
	}
	return FormatUnknown
}

func openBorn(path string, backend tensor.Backend, o options) (*Checkpoint, error) {
	reader, err := serialization.NewBornReaderWithOptions(path, serialization.ReaderOptions{
		SkipChecksumValidation: o.skipChecksum,
	})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	stateDict, err := reader.ReadStateDict(backend)
	if err != nil {
		return nil, err
	}
	header := reader.Header()
	return &Checkpoint{
		Architecture: header.ModelType,
		Metadata:     header.Metadata,
		Export:       header.Export,
		Names:        reader.TensorNames(),
		StateDict:    stateDict,
	}, nil
}

func openSafeTensors(path string, backend tensor.Backend) (*Checkpoint, error) {
	reader, err := serialization.NewSafeTensorsReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	stateDict, err := reader.ReadStateDict(backend)
	if err != nil {
		return nil, err
	}
	metadata := reader.Metadata()
	return &Checkpoint{
		Architecture: metadata["model_type"],
		Metadata:     metadata,
		Names:        reader.TensorNames(),
		StateDict:    stateDict,
	}, nil
}

func openPyTorch(path string) (*Checkpoint, error) {
	stateDict, names, err := pth.Load(path)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{
		Metadata:  map[string]string{},
		Names:     names,
		StateDict: stateDict,
	}, nil
}

// KeySet returns the sorted tensor names of the checkpoint.
func (c *Checkpoint) KeySet() []string {
	return serialization.SortedNames(c.StateDict)
}

// NumElements returns the total element count across all tensors.
func (c *Checkpoint) NumElements() int {
	total := 0
	for _, t := range c.StateDict {
		total += t.NumElements()
	}
	return total
}
