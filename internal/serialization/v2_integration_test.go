package serialization

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/internal/tensor"
)

func testStateDict(t testing.TB) map[string]*tensor.RawTensor {
	t.Helper()

	weight, err := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("Failed to create weight: %v", err)
	}
	copy(weight.AsFloat32(), []float32{1.0, 2.0, 3.0, 4.0})

	tracked, err := tensor.NewRaw(tensor.Shape{}, tensor.Int64, tensor.CPU)
	if err != nil {
		t.Fatalf("Failed to create counter: %v", err)
	}
	tracked.AsInt64()[0] = 7

	bias, err := tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("Failed to create bias: %v", err)
	}
	copy(bias.AsFloat32(), []float32{0.5, -0.5, 0.25})

	return map[string]*tensor.RawTensor{
		"classifier.4.weight":              weight,
		"backbone.bn1.num_batches_tracked": tracked,
		"classifier.4.bias":                bias,
	}
}

// TestV2RoundTrip verifies write and read with checksum validation.
func TestV2RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_v2.born")
	backend := cpu.New()
	stateDict := testStateDict(t)

	header := Header{
		ModelType: "deeplabv3_resnet101",
		Metadata:  map[string]string{"test": "v2"},
		Export: &ExportMeta{
			Architecture: "deeplabv3_resnet101",
			Mode:         "eval",
			NumClasses:   21,
			Fingerprint:  Fingerprint(stateDict),
		},
	}
	if err := WriteFile(path, FormatBorn, stateDict, header); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	reader, err := NewBornReader(path)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer reader.Close()

	if reader.Header().FormatVersion != FormatVersion {
		t.Errorf("Expected version %d, got %d", FormatVersion, reader.Header().FormatVersion)
	}
	if reader.Flags()&FlagEvalMode == 0 {
		t.Error("Expected eval flag to be set")
	}
	if reader.Flags()&FlagHasMetadata == 0 {
		t.Error("Expected metadata flag to be set")
	}
	if reader.Header().Export == nil || reader.Header().Export.NumClasses != 21 {
		t.Errorf("Export metadata not preserved: %+v", reader.Header().Export)
	}

	names := reader.TensorNames()
	want := []string{"backbone.bn1.num_batches_tracked", "classifier.4.bias", "classifier.4.weight"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d tensors, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Tensor %d: expected %s, got %s", i, want[i], names[i])
		}
	}

	loaded, err := reader.ReadStateDict(backend)
	if err != nil {
		t.Fatalf("Failed to read state dict: %v", err)
	}
	for name, original := range stateDict {
		if !tensorEqual(original, loaded[name]) {
			t.Errorf("Tensor %s mismatch after round-trip", name)
		}
	}
	if got := loaded["backbone.bn1.num_batches_tracked"].AsInt64()[0]; got != 7 {
		t.Errorf("Expected num_batches_tracked=7, got %d", got)
	}
	if Fingerprint(loaded) != header.Export.Fingerprint {
		t.Error("Fingerprint changed after round-trip")
	}
}

// TestEncodeIsDeterministic verifies equal state dicts produce equal bytes when the timestamp is fixed.
func TestEncodeIsDeterministic(t *testing.T) {
	stateDict := testStateDict(t)
	header := Header{ModelType: "test"}

	var first, second bytes.Buffer
	if err := Encode(&first, stateDict, header); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	header.CreatedAt = readCreatedAt(t, first.Bytes())
	first.Reset()
	if err := Encode(&first, stateDict, header); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := Encode(&second, stateDict, header); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("Encoding the same state dict twice produced different bytes")
	}

	loaded, decoded, err := ReadFrom(bytes.NewReader(first.Bytes()), cpu.New())
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	if decoded.ModelType != "test" {
		t.Errorf("Expected model type test, got %s", decoded.ModelType)
	}
	if len(loaded) != len(stateDict) {
		t.Errorf("Expected %d tensors, got %d", len(stateDict), len(loaded))
	}
}

func readCreatedAt(t *testing.T, data []byte) time.Time {
	t.Helper()
	_, header, err := ReadFrom(bytes.NewReader(data), cpu.New())
	if err != nil {
		t.Fatalf("ReadFrom failed: %v", err)
	}
	return header.CreatedAt
}

// TestDataSectionIsAligned verifies tensor data starts on a 64-byte boundary.
func TestDataSectionIsAligned(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, testStateDict(t), Header{ModelType: "aligned"}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	data := buf.Bytes()
	headerSize := binary.LittleEndian.Uint64(data[16:24])
	dataSize := binary.LittleEndian.Uint64(data[24:32])

	//nolint:gosec // test sizes are tiny
	start := int64(FixedHeaderSize) + int64(headerSize)
	start += alignmentPadding(start)
	if start%HeaderAlignment != 0 {
		t.Fatalf("Data section starts at %d, not aligned", start)
	}
	if int64(len(data))-start != int64(dataSize) { //nolint:gosec // test sizes are tiny
		t.Errorf("Expected %d data bytes, got %d", dataSize, int64(len(data))-start)
	}
}

// TestV2CorruptionDetection verifies that corrupted tensor data is detected by checksum.
func TestV2CorruptionDetection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_corrupt.born")
	if err := WriteFile(path, FormatBorn, testStateDict(t), Header{ModelType: "TestModel"}); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	corruptLastByte(t, path)

	_, err := NewBornReader(path)
	if err == nil {
		t.Fatal("Expected checksum validation to fail, but succeeded")
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got: %v", err)
	}
}

// TestV2SkipChecksumValidation verifies that checksum validation can be skipped.
func TestV2SkipChecksumValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_skip_checksum.born")
	if err := WriteFile(path, FormatBorn, testStateDict(t), Header{ModelType: "TestModel"}); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	corruptLastByte(t, path)

	reader, err := NewBornReaderWithOptions(path, ReaderOptions{
		SkipChecksumValidation: true,
	})
	if err != nil {
		t.Fatalf("Expected to open file without checksum validation, got: %v", err)
	}
	defer reader.Close()

	if _, err := reader.ReadStateDict(cpu.New()); err != nil {
		t.Fatalf("Failed to read state dict: %v", err)
	}
}

// TestV1Rejected verifies that version 1 files are refused with a clear error.
func TestV1Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_v1.born")
	if err := WriteFile(path, FormatBorn, testStateDict(t), Header{ModelType: "TestModel"}); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	binary.LittleEndian.PutUint32(data[4:8], legacyVersionOne)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to rewrite file: %v", err)
	}

	_, err = NewBornReader(path)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Expected ErrUnsupportedVersion, got: %v", err)
	}
}

// TestInvalidMagic verifies non-.born files are rejected.
func TestInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_born.bin")
	if err := os.WriteFile(path, make([]byte, 128), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, err := NewBornReader(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("Expected ErrInvalidMagic, got: %v", err)
	}
}

// TestWriteFileMissingDirectory verifies that nothing is created when the parent directory is absent.
func TestWriteFileMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	path := filepath.Join(dir, "model.born")

	if err := WriteFile(path, FormatBorn, testStateDict(t), Header{}); err == nil {
		t.Fatal("Expected error for missing directory")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected %s to remain absent, got: %v", dir, err)
	}
}

// TestWriteFileReplacesExisting verifies a second export fully replaces the first.
func TestWriteFileReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	if err := os.WriteFile(path, []byte("stale contents"), 0o644); err != nil {
		t.Fatalf("Failed to seed file: %v", err)
	}

	if err := WriteFile(path, FormatBorn, testStateDict(t), Header{ModelType: "fresh"}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reader, err := NewBornReader(path)
	if err != nil {
		t.Fatalf("Failed to open replaced file: %v", err)
	}
	defer reader.Close()
	if reader.Header().ModelType != "fresh" {
		t.Errorf("Expected model type fresh, got %s", reader.Header().ModelType)
	}
}

// TestFingerprintSensitivity verifies the fingerprint tracks names, shapes and values.
func TestFingerprintSensitivity(t *testing.T) {
	base := testStateDict(t)
	fp := Fingerprint(base)

	if Fingerprint(testStateDict(t)) != fp {
		t.Error("Equal state dicts produced different fingerprints")
	}

	changed := testStateDict(t)
	changed["classifier.4.bias"].AsFloat32()[0] = 99
	if Fingerprint(changed) == fp {
		t.Error("Value change did not change fingerprint")
	}

	renamed := testStateDict(t)
	renamed["classifier.4.bias2"] = renamed["classifier.4.bias"]
	delete(renamed, "classifier.4.bias")
	if Fingerprint(renamed) == fp {
		t.Error("Rename did not change fingerprint")
	}
}

func corruptLastByte(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to corrupt file: %v", err)
	}
}

// BenchmarkV2WriteWithChecksum measures encode throughput for a ResNet-sized tensor.
func BenchmarkV2WriteWithChecksum(b *testing.B) {
	raw, err := tensor.NewRaw(tensor.Shape{2048, 1024, 1, 1}, tensor.Float32, tensor.CPU)
	if err != nil {
		b.Fatalf("Failed to create tensor: %v", err)
	}
	stateDict := map[string]*tensor.RawTensor{"backbone.layer4.0.downsample.0.weight": raw}

	b.SetBytes(int64(raw.ByteSize()))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := Encode(&buf, stateDict, Header{}); err != nil {
			b.Fatal(err)
		}
	}
}
