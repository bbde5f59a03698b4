package serialization

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/internal/tensor"
)

// TestSafeTensorsExportRoundTrip tests round-trip: write → read → verify.
func TestSafeTensorsExportRoundTrip(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "roundtrip.safetensors")
	backend := cpu.New()

	original := testStateDict(t)
	metadata := map[string]string{"format": "pt"}

	if err := WriteSafeTensors(testFile, original, metadata); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	reader, err := NewSafeTensorsReader(testFile)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader failed: %v", err)
	}
	defer reader.Close()

	if reader.Metadata()["format"] != "pt" {
		t.Errorf("Expected format=pt, got %s", reader.Metadata()["format"])
	}

	names := reader.TensorNames()
	if len(names) != len(original) {
		t.Errorf("Expected %d tensors, got %d", len(original), len(names))
	}

	loaded, err := reader.ReadStateDict(backend)
	if err != nil {
		t.Fatalf("ReadStateDict failed: %v", err)
	}
	for name, want := range original {
		if !tensorEqual(want, loaded[name]) {
			t.Errorf("Tensor %s mismatch after round-trip", name)
		}
	}
}

// TestSafeTensorsExportDTypes tests export of every supported dtype.
func TestSafeTensorsExportDTypes(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "dtypes.safetensors")
	backend := cpu.New()

	stateDict := make(map[string]*tensor.RawTensor)
	for _, dt := range []tensor.DataType{tensor.Float32, tensor.Float64, tensor.Int32, tensor.Int64, tensor.Uint8, tensor.Bool} {
		raw, err := tensor.NewRaw(tensor.Shape{2, 3}, dt, backend.Device())
		if err != nil {
			t.Fatalf("Failed to create %s tensor: %v", dt, err)
		}
		for i := range raw.Data() {
			raw.Data()[i] = byte(i % 2)
		}
		stateDict[dt.String()] = raw
	}

	if err := WriteSafeTensors(testFile, stateDict, nil); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	reader, err := NewSafeTensorsReader(testFile)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader failed: %v", err)
	}
	defer reader.Close()

	for name, want := range stateDict {
		got, err := reader.LoadTensor(name, backend)
		if err != nil {
			t.Fatalf("LoadTensor(%s) failed: %v", name, err)
		}
		if !tensorEqual(want, got) {
			t.Errorf("Tensor %s mismatch after round-trip", name)
		}
	}
}

// TestSafeTensorsExportEmptyMetadata tests export with no metadata.
func TestSafeTensorsExportEmptyMetadata(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "no_metadata.safetensors")

	if err := WriteSafeTensors(testFile, testStateDict(t), nil); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	reader, err := NewSafeTensorsReader(testFile)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader failed: %v", err)
	}
	defer reader.Close()

	if metadata := reader.Metadata(); len(metadata) > 0 {
		t.Errorf("Expected empty metadata, got %v", metadata)
	}
}

// TestSafeTensorsExportAlphabeticalOrder tests that tensor data is laid out in name order.
func TestSafeTensorsExportAlphabeticalOrder(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "order.safetensors")
	backend := cpu.New()

	z, _ := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, backend.Device())
	z.AsFloat32()[0] = 3.0
	a, _ := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, backend.Device())
	a.AsFloat32()[0] = 1.0
	m, _ := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, backend.Device())
	m.AsFloat32()[0] = 2.0

	stateDict := map[string]*tensor.RawTensor{
		"z_last":  z,
		"a_first": a,
		"m_mid":   m,
	}

	if err := WriteSafeTensors(testFile, stateDict, nil); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	reader, err := NewSafeTensorsReader(testFile)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader failed: %v", err)
	}
	defer reader.Close()

	var prevEnd int64
	for _, name := range []string{"a_first", "m_mid", "z_last"} {
		info, err := reader.TensorInfo(name)
		if err != nil {
			t.Fatalf("TensorInfo(%s) failed: %v", name, err)
		}
		if info.DataOffsets[0] != prevEnd {
			t.Errorf("Tensor %s starts at %d, expected %d", name, info.DataOffsets[0], prevEnd)
		}
		prevEnd = info.DataOffsets[1]
	}
}

// TestWriteFileSafeTensorsMetadata tests that export metadata is flattened into __metadata__.
func TestWriteFileSafeTensorsMetadata(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "export.safetensors")
	stateDict := testStateDict(t)

	header := Header{
		ModelType: "deeplabv3_resnet101",
		Metadata:  map[string]string{"source": "test"},
		Export: &ExportMeta{
			Architecture: "deeplabv3_resnet101",
			Mode:         "eval",
			NumClasses:   21,
			Fingerprint:  Fingerprint(stateDict),
		},
	}
	if err := WriteFile(testFile, FormatSafeTensors, stateDict, header); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reader, err := NewSafeTensorsReader(testFile)
	if err != nil {
		t.Fatalf("NewSafeTensorsReader failed: %v", err)
	}
	defer reader.Close()

	meta := reader.Metadata()
	for key, want := range map[string]string{
		"source":       "test",
		"model_type":   "deeplabv3_resnet101",
		"architecture": "deeplabv3_resnet101",
		"mode":         "eval",
		"num_classes":  "21",
		"fingerprint":  header.Export.Fingerprint,
	} {
		if meta[key] != want {
			t.Errorf("Metadata %s: expected %q, got %q", key, want, meta[key])
		}
	}
}

// TestSafeTensorsReaderRejectsOutOfBounds tests that truncated files are refused.
func TestSafeTensorsReaderRejectsOutOfBounds(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "truncated.safetensors")
	if err := WriteSafeTensors(testFile, testStateDict(t), nil); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	data, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if err := os.WriteFile(testFile, data[:len(data)-4], 0o644); err != nil {
		t.Fatalf("Failed to truncate file: %v", err)
	}

	if _, err := NewSafeTensorsReader(testFile); err == nil {
		t.Fatal("Expected error for truncated file")
	}
}

// Helper function to compare two RawTensors.
func tensorEqual(a, b *tensor.RawTensor) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Shape().Equal(b.Shape()) || a.DType() != b.DType() {
		return false
	}

	aData := a.Data()
	bData := b.Data()
	if len(aData) != len(bData) {
		return false
	}
	for i := range aData {
		if aData[i] != bData[i] {
			return false
		}
	}
	return true
}

func writeRawSafeTensors(t *testing.T, header string, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	var prefix [8]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(header)))
	buf.Write(prefix[:])
	buf.WriteString(header)
	buf.Write(data)
	path := filepath.Join(t.TempDir(), "raw.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestSafeTensorsHalfWidening(t *testing.T) {
	// 1.0, -2.0, 0.5 as binary16 then as bfloat16.
	data := []byte{0x00, 0x3c, 0x00, 0xc0, 0x00, 0x38, 0x80, 0x3f, 0x00, 0xc0, 0x00, 0x3f}
	path := writeRawSafeTensors(t,
		`{"half":{"dtype":"F16","shape":[3],"data_offsets":[0,6]},"brain":{"dtype":"BF16","shape":[3],"data_offsets":[6,12]}}`,
		data)

	reader, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer reader.Close()

	stateDict, err := reader.ReadStateDict(cpu.New())
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, stateDict["half"].DType())
	assert.Equal(t, []float32{1, -2, 0.5}, stateDict["half"].AsFloat32())
	assert.Equal(t, []float32{1, -2, 0.5}, stateDict["brain"].AsFloat32())
	assert.Nil(t, reader.Metadata())
}

func TestFloat16Special(t *testing.T) {
	assert.Equal(t, float32(0), float16ToFloat32(0x0000))
	assert.True(t, math.Signbit(float64(float16ToFloat32(0x8000))))
	assert.Equal(t, float32(65504), float16ToFloat32(0x7bff))
	assert.Equal(t, float32(math.Ldexp(1, -24)), float16ToFloat32(0x0001))
	assert.True(t, math.IsInf(float64(float16ToFloat32(0x7c00)), 1))
	assert.True(t, math.IsNaN(float64(float16ToFloat32(0x7e00))))
}

func TestSafeTensorsReaderRejectsBadTable(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		data    int
		wantErr error
	}{
		{
			name:    "size mismatch",
			header:  `{"w":{"dtype":"F32","shape":[2,2],"data_offsets":[0,12]}}`,
			data:    16,
			wantErr: ErrSizeMismatch,
		},
		{
			name:    "unknown dtype",
			header:  `{"w":{"dtype":"F8_E4M3","shape":[4],"data_offsets":[0,4]}}`,
			data:    4,
			wantErr: ErrSizeMismatch,
		},
		{
			name:    "overlap",
			header:  `{"a":{"dtype":"I32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"I32","shape":[2],"data_offsets":[4,12]}}`,
			data:    12,
			wantErr: ErrOffsetOverlap,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRawSafeTensors(t, tt.header, make([]byte, tt.data))
			_, err := NewSafeTensorsReader(path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSafeTensorsScalarShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSafeTensors(&buf, testStateDict(t), nil))
	assert.Contains(t, buf.String(), `"shape":[]`)
	assert.NotContains(t, buf.String(), safeTensorsMetadataKey)
}
