package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/moby/sys/atomicwriter"

	"github.com/born-ml/zoo/internal/tensor"
)

// SafeTensors dtype names. F16 and BF16 are read only and widen to float32.
var safeTensorsNames = map[tensor.DataType]string{
	tensor.Float32: "F32",
	tensor.Float64: "F64",
	tensor.Int32:   "I32",
	tensor.Int64:   "I64",
	tensor.Uint8:   "U8",
	tensor.Bool:    "BOOL",
}

const (
	safeTensorsF16  = "F16"
	safeTensorsBF16 = "BF16"
)

// SafeTensorInfo is one tensor entry of a SafeTensors header.
type SafeTensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) relative to the data section
}

// stored returns the dtype the bytes are encoded in and its element size.
func (i SafeTensorInfo) stored() (tensor.DataType, int, error) {
	switch i.DType {
	case safeTensorsF16, safeTensorsBF16:
		return tensor.Float32, 2, nil
	}
	for dt, name := range safeTensorsNames {
		if name == i.DType {
			return dt, dt.Size(), nil
		}
	}
	return 0, 0, fmt.Errorf("unsupported safetensors dtype %q", i.DType)
}

// SafeTensorsHeader is the JSON header of a SafeTensors file: tensor entries
// keyed by name next to an optional string-only "__metadata__" entry.
type SafeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

const safeTensorsMetadataKey = "__metadata__"

// UnmarshalJSON splits the flat header into metadata and tensors.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	h.Tensors = make(map[string]SafeTensorInfo, len(entries))
	for key, value := range entries {
		if key == safeTensorsMetadataKey {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return fmt.Errorf("metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// MarshalJSON flattens the header. encoding/json sorts map keys, so equal
// headers encode to equal bytes.
func (h SafeTensorsHeader) MarshalJSON() ([]byte, error) {
	entries := make(map[string]any, len(h.Tensors)+1)
	for name, info := range h.Tensors {
		entries[name] = info
	}
	if len(h.Metadata) > 0 {
		entries[safeTensorsMetadataKey] = h.Metadata
	}
	return json.Marshal(entries)
}

// EncodeSafeTensors writes stateDict to w in SafeTensors layout: a little
// endian uint64 header length, the JSON header, then tensor bytes packed in
// sorted name order.
func EncodeSafeTensors(w io.Writer, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := SortedNames(stateDict)
	header := SafeTensorsHeader{
		Metadata: metadata,
		Tensors:  make(map[string]SafeTensorInfo, len(names)),
	}

	var offset int64
	for _, name := range names {
		raw := stateDict[name]
		dtype, ok := safeTensorsNames[raw.DType()]
		if !ok {
			return fmt.Errorf("tensor %s: dtype %s has no safetensors name", name, raw.DType())
		}
		size := int64(raw.ByteSize())
		header.Tensors[name] = SafeTensorInfo{
			DType:       dtype,
			Shape:       append([]int{}, raw.Shape()...), // [] rather than null for scalars
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(headerJSON)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// WriteSafeTensors writes stateDict to path. The file is replaced only when
// the whole encoding succeeds.
func WriteSafeTensors(path string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) error {
	file, err := atomicwriter.New(path, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := EncodeSafeTensors(file, stateDict, metadata); err != nil {
		_ = file.Close() // atomicwriter discards the temp file after a failed write
		return err
	}
	return file.Close()
}

// safeTensorsMetadata flattens a .born header into the string-only
// __metadata__ block.
func safeTensorsMetadata(header Header) map[string]string {
	metadata := maps.Clone(header.Metadata)
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata["format"] = "pt"
	if header.ModelType != "" {
		metadata["model_type"] = header.ModelType
	}
	if e := header.Export; e != nil {
		metadata["architecture"] = e.Architecture
		metadata["mode"] = e.Mode
		metadata["num_classes"] = strconv.Itoa(e.NumClasses)
		metadata["fingerprint"] = e.Fingerprint
		if e.WeightsURL != "" {
			metadata["weights_url"] = e.WeightsURL
		}
	}
	return metadata
}

// SafeTensorsReader reads tensors from a SafeTensors file on demand.
type SafeTensorsReader struct {
	file       *os.File
	header     SafeTensorsHeader
	dataOffset int64
}

// NewSafeTensorsReader opens path and validates its tensor table.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: reading user-supplied checkpoints is the point
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	r := &SafeTensorsReader{file: file}
	if err := r.parse(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r, nil
}

func (r *SafeTensorsReader) parse() error {
	var prefix [8]byte
	if _, err := io.ReadFull(r.file, prefix[:]); err != nil {
		return fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(prefix[:])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerJSON); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	info, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataOffset = int64(len(prefix)) + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize

	metas := make([]TensorMeta, 0, len(r.header.Tensors))
	for name, t := range r.header.Tensors {
		_, elemSize, err := t.stored()
		if err != nil {
			return &TensorError{Name: name, Err: ErrSizeMismatch, Msg: err.Error()}
		}
		shape := tensor.Shape(t.Shape)
		if err := shape.Validate(); err != nil {
			return &TensorError{Name: name, Err: ErrSizeMismatch, Msg: err.Error()}
		}
		size := t.DataOffsets[1] - t.DataOffsets[0]
		if want := int64(shape.NumElements() * elemSize); size != want {
			return &TensorError{
				Name: name,
				Err:  ErrSizeMismatch,
				Msg:  fmt.Sprintf("%s%v needs %d bytes, offsets span %d", t.DType, t.Shape, want, size),
			}
		}
		metas = append(metas, TensorMeta{Name: name, Offset: t.DataOffsets[0], Size: size})
	}
	return checkLayout(metas, info.Size()-r.dataOffset)
}

// Close closes the underlying file.
func (r *SafeTensorsReader) Close() error {
	return r.file.Close()
}

// Metadata returns the __metadata__ block, nil when absent.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the tensor names in sorted order.
func (r *SafeTensorsReader) TensorNames() []string {
	return slices.Sorted(maps.Keys(r.header.Tensors))
}

// TensorInfo returns the header entry for name.
func (r *SafeTensorsReader) TensorInfo(name string) (SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return SafeTensorInfo{}, fmt.Errorf("tensor %s not found", name)
	}
	return info, nil
}

// LoadTensor reads name into a new tensor on backend's device.
func (r *SafeTensorsReader) LoadTensor(name string, backend tensor.Backend) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	dtype, _, err := info.stored()
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	data := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if _, err := r.file.ReadAt(data, r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}

	shape := tensor.Shape(info.Shape)
	switch info.DType {
	case safeTensorsF16:
		return widenHalf(shape, data, backend, float16ToFloat32)
	case safeTensorsBF16:
		return widenHalf(shape, data, backend, bfloat16ToFloat32)
	}
	raw, err := tensor.NewRawFromBytes(shape, dtype, backend.Device(), data)
	if err != nil {
		return nil, fmt.Errorf("invalid tensor %s: %w", name, err)
	}
	return raw, nil
}

// ReadStateDict loads every tensor in the file.
func (r *SafeTensorsReader) ReadStateDict(backend tensor.Backend) (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for name := range r.header.Tensors {
		raw, err := r.LoadTensor(name, backend)
		if err != nil {
			return nil, err
		}
		stateDict[name] = raw
	}
	return stateDict, nil
}

func widenHalf(shape tensor.Shape, data []byte, backend tensor.Backend, convert func(uint16) float32) (*tensor.RawTensor, error) {
	raw, err := tensor.NewRaw(shape, tensor.Float32, backend.Device())
	if err != nil {
		return nil, err
	}
	dst := raw.AsFloat32()
	for i := range dst {
		dst[i] = convert(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return raw, nil
}

// float16ToFloat32 decodes an IEEE 754 binary16 value.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := int32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: shift until the implicit bit appears.
		exp = 1
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		mant &= 0x3ff
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math.Float32frombits(sign | uint32(exp+127-15)<<23 | mant<<13) //nolint:gosec // G115: exp+112 > 0
}

// bfloat16ToFloat32 decodes a bfloat16 value, the upper half of a float32.
func bfloat16ToFloat32(b uint16) float32 {
	return math.Float32frombits(uint32(b) << 16)
}
