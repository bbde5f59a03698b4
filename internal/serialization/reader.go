package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/zoo/internal/tensor"
)

// BornReader reads state dictionaries from .born files.
type BornReader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64    // Offset where tensor data starts
	dataSize   int64    // Size of the data section
	checksum   checksum // SHA-256 of the data section, from the fixed header
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of BornReader.
type ReaderOptions struct {
	SkipChecksumValidation bool // Skip hashing the data section
}

// fixedHeader is the decoded 64-byte prefix of a .born file.
type fixedHeader struct {
	flags      uint32
	headerSize uint64
	dataSize   uint64
	checksum   checksum
}

// NewBornReader opens a .born file and verifies its checksum.
func NewBornReader(path string) (*BornReader, error) {
	return NewBornReaderWithOptions(path, ReaderOptions{})
}

// NewBornReaderWithOptions creates a new .born file reader with custom options.
func NewBornReaderWithOptions(path string, opts ReaderOptions) (*BornReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := &BornReader{
		file: file,
		opts: opts,
	}

	if err := reader.parse(); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return reader, nil
}

func (r *BornReader) parse() error {
	fixed, err := readFixedHeader(r.file)
	if err != nil {
		return err
	}
	r.flags = fixed.flags
	r.checksum = fixed.checksum

	headerBytes := make([]byte, fixed.headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	pos := int64(FixedHeaderSize) + int64(fixed.headerSize)
	r.dataOffset = pos + alignmentPadding(pos)

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataSize = info.Size() - r.dataOffset
	//nolint:gosec // G115: dataSize comes from a header we validate against the file size
	if r.dataSize < int64(fixed.dataSize) {
		return fmt.Errorf("%w: %d bytes, header declares %d", ErrTruncated, r.dataSize, fixed.dataSize)
	}
	r.dataSize = int64(fixed.dataSize) //nolint:gosec // checked above

	if err := checkHeader(&r.header, r.dataSize); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if !r.opts.SkipChecksumValidation {
		computed, err := sumReader(io.NewSectionReader(r.file, r.dataOffset, r.dataSize))
		if err != nil {
			return fmt.Errorf("failed to read tensor data for checksum: %w", err)
		}
		if err := computed.verify(r.checksum); err != nil {
			return err
		}
	}

	return nil
}

func readFixedHeader(reader io.Reader) (fixedHeader, error) {
	buf := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fixedHeader{}, fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(buf[0:4]) != MagicBytes {
		return fixedHeader{}, ErrInvalidMagic
	}

	ver := binary.LittleEndian.Uint32(buf[4:8])
	if ver != FormatVersion {
		if ver == legacyVersionOne {
			return fixedHeader{}, fmt.Errorf("%w: version 1 files carry no checksum and are no longer read", ErrUnsupportedVersion)
		}
		return fixedHeader{}, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, ver, FormatVersion)
	}

	fixed := fixedHeader{
		flags:      binary.LittleEndian.Uint32(buf[8:12]),
		headerSize: binary.LittleEndian.Uint64(buf[16:24]),
		dataSize:   binary.LittleEndian.Uint64(buf[24:32]),
	}
	copy(fixed.checksum[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if fixed.headerSize > MaxHeaderSize {
		return fixedHeader{}, ErrHeaderTooLarge
	}
	return fixed, nil
}

// Header returns the file header.
func (r *BornReader) Header() Header {
	return r.header
}

// Flags returns the flag bits from the fixed header.
func (r *BornReader) Flags() uint32 {
	return r.flags
}

// Metadata returns the metadata map from the header.
func (r *BornReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns a list of all tensor names in the file.
func (r *BornReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *BornReader) TensorInfo(name string) (*TensorMeta, error) {
	for i := range r.header.Tensors {
		if r.header.Tensors[i].Name == name {
			return &r.header.Tensors[i], nil
		}
	}
	return nil, fmt.Errorf("tensor %s not found", name)
}

// LoadTensor loads a single tensor from the file.
func (r *BornReader) LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	return newTensor(*meta, data, backend)
}

// ReadStateDict reads all tensors into a state dictionary.
func (r *BornReader) ReadStateDict(backend tensor.Backend) (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name, backend)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		stateDict[meta.Name] = raw
	}

	return stateDict, nil
}

// Close closes the reader and the underlying file.
func (r *BornReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// ReadFrom decodes a .born stream that was produced by Encode.
// The stream is buffered in memory to verify the checksum before tensors are built.
func ReadFrom(reader io.Reader, backend tensor.Backend) (map[string]*tensor.RawTensor, Header, error) {
	fixed, err := readFixedHeader(reader)
	if err != nil {
		return nil, Header{}, err
	}

	headerBytes := make([]byte, fixed.headerSize)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read header JSON: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	pos := int64(FixedHeaderSize) + int64(fixed.headerSize)
	if _, err := io.CopyN(io.Discard, reader, alignmentPadding(pos)); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read padding: %w", err)
	}

	var data bytes.Buffer
	//nolint:gosec // G115: dataSize is validated against the tensor table below
	if _, err := io.CopyN(&data, reader, int64(fixed.dataSize)); err != nil {
		return nil, Header{}, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := sumBytes(data.Bytes()).verify(fixed.checksum); err != nil {
		return nil, Header{}, err
	}
	if err := checkHeader(&header, int64(data.Len())); err != nil {
		return nil, Header{}, fmt.Errorf("validation failed: %w", err)
	}

	stateDict := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		raw, err := newTensor(meta, data.Bytes()[meta.Offset:meta.Offset+meta.Size], backend)
		if err != nil {
			return nil, Header{}, err
		}
		stateDict[meta.Name] = raw
	}

	return stateDict, header, nil
}

func newTensor(meta TensorMeta, data []byte, backend tensor.Backend) (*tensor.RawTensor, error) {
	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("unsupported dtype %s for tensor %s", meta.DType, meta.Name)
	}

	raw, err := tensor.NewRawFromBytes(tensor.Shape(meta.Shape), dtype, backend.Device(), data)
	if err != nil {
		return nil, fmt.Errorf("invalid tensor %s: %w", meta.Name, err)
	}
	return raw, nil
}
