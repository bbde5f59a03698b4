package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaw(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		dtype DataType
		bytes int
	}{
		{"scalar int64", Shape{}, Int64, 8},
		{"vector float32", Shape{4}, Float32, 16},
		{"conv weight", Shape{64, 3, 7, 7}, Float32, 64 * 3 * 7 * 7 * 4},
		{"bool matrix", Shape{2, 3}, Bool, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := NewRaw(tt.shape, tt.dtype, CPU)
			require.NoError(t, err)
			assert.Equal(t, tt.bytes, raw.ByteSize())
			assert.Equal(t, tt.dtype, raw.DType())
			assert.True(t, raw.Shape().Equal(tt.shape))
		})
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	_, err := NewRaw(Shape{3, 0}, Float32, CPU)
	require.Error(t, err)
}

func TestNewRawFromBytesLengthMismatch(t *testing.T) {
	_, err := NewRawFromBytes(Shape{2}, Float32, CPU, make([]byte, 7))
	require.Error(t, err)

	raw, err := NewRawFromBytes(Shape{2}, Int32, CPU, []byte{1, 0, 0, 0, 2, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, raw.AsInt32())
}

func TestRawCloneIsDeep(t *testing.T) {
	raw, err := NewRaw(Shape{3}, Float32, CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), []float32{1, 2, 3})

	clone := raw.Clone()
	clone.AsFloat32()[0] = 42

	assert.Equal(t, float32(1), raw.AsFloat32()[0])
	assert.Equal(t, float32(42), clone.AsFloat32()[0])
}

func TestRawCopyFrom(t *testing.T) {
	dst, err := NewRaw(Shape{2, 2}, Float32, CPU)
	require.NoError(t, err)
	src, err := NewRaw(Shape{2, 2}, Float32, CPU)
	require.NoError(t, err)
	copy(src.AsFloat32(), []float32{1, 2, 3, 4})

	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, []float32{1, 2, 3, 4}, dst.AsFloat32())

	wrongShape, err := NewRaw(Shape{4}, Float32, CPU)
	require.NoError(t, err)
	assert.Error(t, dst.CopyFrom(wrongShape))

	wrongType, err := NewRaw(Shape{2, 2}, Int32, CPU)
	require.NoError(t, err)
	assert.Error(t, dst.CopyFrom(wrongType))
}

func TestAsWrongTypePanics(t *testing.T) {
	raw, err := NewRaw(Shape{2}, Int64, CPU)
	require.NoError(t, err)
	assert.Panics(t, func() { raw.AsFloat32() })
}

func TestShapeIsContiguous(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.True(t, s.IsContiguous([]int{12, 4, 1}))
	assert.False(t, s.IsContiguous([]int{1, 2, 6}))
	assert.True(t, Shape{1, 5}.IsContiguous([]int{99, 1}))
	assert.True(t, Shape{}.IsContiguous([]int{}))
}

func TestParseDataTypeRoundTrip(t *testing.T) {
	for _, dt := range []DataType{Float32, Float64, Int32, Int64, Uint8, Bool} {
		parsed, err := ParseDataType(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
	}
	_, err := ParseDataType("complex64")
	assert.Error(t, err)
}

type hostBackend struct{}

func (hostBackend) Name() string   { return "host" }
func (hostBackend) Device() Device { return CPU }

func TestTypedTensor(t *testing.T) {
	backend := hostBackend{}

	x, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3}, backend)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, x.Data())

	_, err = FromSlice([]float32{1, 2}, Shape{3}, backend)
	assert.Error(t, err)

	ones := Full[float32](Shape{2}, 1, backend)
	assert.Equal(t, []float32{1, 1}, ones.Data())

	scalar := Zeros[int64](Shape{}, backend)
	assert.Equal(t, int64(0), scalar.Item())
}
