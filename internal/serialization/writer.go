package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/born-ml/zoo/internal/tensor"
	"github.com/born-ml/zoo/internal/version"
)

// BornWriter writes state dictionaries in .born format.
//
// The destination only changes when Close succeeds after a complete write:
// data goes to a temporary file in the same directory that is renamed over
// the target on Close.
type BornWriter struct {
	file   io.WriteCloser
	closed bool
}

// NewBornWriter creates a new .born file writer. The parent directory must exist.
func NewBornWriter(path string) (*BornWriter, error) {
	file, err := atomicwriter.New(path, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return &BornWriter{
		file:   file,
		closed: false,
	}, nil
}

// WriteStateDictWithHeader writes a state dictionary under header.
func (w *BornWriter) WriteStateDictWithHeader(stateDict map[string]*tensor.RawTensor, header Header) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	return Encode(w.file, stateDict, header)
}

// Close finishes the write and moves the file into place.
func (w *BornWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Encode writes stateDict to writer in .born format.
//
// Layout:
//
//	0x00-0x03: Magic "BORN"
//	0x04-0x07: Version (uint32 LE)
//	0x08-0x0B: Flags (uint32 LE)
//	0x0C-0x0F: Reserved
//	0x10-0x17: Header size (uint64 LE)
//	0x18-0x1F: Data size (uint64 LE)
//	0x20-0x3F: SHA-256 of the data section
//	JSON header, zero padding to 64 bytes, tensor data.
//
// Tensors are laid out in sorted name order so equal inputs produce equal data
// sections.
func Encode(writer io.Writer, stateDict map[string]*tensor.RawTensor, header Header) error {
	names := SortedNames(stateDict)

	header.FormatVersion = FormatVersion
	if header.ZooVersion == "" {
		header.ZooVersion = version.Version
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	var dataSize int64
	header.Tensors, dataSize = tensorTable(stateDict, names)

	checksum := sha256.New()
	for _, name := range names {
		checksum.Write(stateDict[name].Data())
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	fixedHeader := make([]byte, FixedHeaderSize)
	copy(fixedHeader[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersion))
	binary.LittleEndian.PutUint32(fixedHeader[8:12], headerFlags(header))
	binary.LittleEndian.PutUint64(fixedHeader[16:24], uint64(len(headerJSON)))
	//nolint:gosec // G115: dataSize is a sum of non-negative tensor sizes
	binary.LittleEndian.PutUint64(fixedHeader[24:32], uint64(dataSize))
	copy(fixedHeader[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum.Sum(nil))

	if _, err := writer.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := writer.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	padding := alignmentPadding(int64(FixedHeaderSize) + int64(len(headerJSON)))
	if padding > 0 {
		if _, err := writer.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	for _, name := range names {
		if _, err := writer.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}

	return nil
}

// WriteFile encodes stateDict into path in the requested format, atomically.
func WriteFile(path string, format Format, stateDict map[string]*tensor.RawTensor, header Header) error {
	switch format {
	case FormatBorn, "":
		w, err := NewBornWriter(path)
		if err != nil {
			return err
		}
		if err := w.WriteStateDictWithHeader(stateDict, header); err != nil {
			_ = w.Close() // Nothing was committed if the write failed
			return err
		}
		return w.Close()
	case FormatSafeTensors:
		return WriteSafeTensors(path, stateDict, safeTensorsMetadata(header))
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// SortedNames returns the keys of stateDict in lexical order.
func SortedNames(stateDict map[string]*tensor.RawTensor) []string {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func tensorTable(stateDict map[string]*tensor.RawTensor, names []string) ([]TensorMeta, int64) {
	var offset int64
	metas := make([]TensorMeta, 0, len(names))
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.ByteSize())
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  append([]int{}, raw.Shape()...),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}
	return metas, offset
}

func headerFlags(header Header) uint32 {
	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.Export != nil && header.Export.Mode == "eval" {
		flags |= FlagEvalMode
	}
	return flags
}

func alignmentPadding(pos int64) int64 {
	return (HeaderAlignment - (pos % HeaderAlignment)) % HeaderAlignment
}
