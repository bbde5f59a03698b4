package serialization

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckName(t *testing.T) {
	for _, name := range []string{
		"backbone.conv1.weight",
		"backbone.layer4.2.bn3.num_batches_tracked",
		"classifier.0.convs.4.1.running_var",
		"aux_classifier.4.bias",
	} {
		assert.NoError(t, checkName(name), name)
	}

	for _, name := range []string{
		"",
		"backbone..conv1",
		".weight",
		"bias.",
		"../../etc/passwd",
		"a/b",
		"a\\b",
		"a\x00b",
		string(bytes.Repeat([]byte("x"), MaxTensorNameLen+1)),
	} {
		err := checkName(name)
		assert.ErrorIs(t, err, ErrInvalidTensorName, "%q", name)
	}
}

func TestCheckLayout(t *testing.T) {
	tests := []struct {
		name    string
		metas   []TensorMeta
		size    int64
		wantErr error
	}{
		{
			name:  "packed",
			metas: []TensorMeta{{Name: "b", Offset: 16, Size: 8}, {Name: "a", Offset: 0, Size: 16}},
			size:  24,
		},
		{
			name:  "gaps allowed",
			metas: []TensorMeta{{Name: "a", Offset: 0, Size: 4}, {Name: "b", Offset: 64, Size: 4}},
			size:  128,
		},
		{
			name:  "empty tensor at end",
			metas: []TensorMeta{{Name: "a", Offset: 8, Size: 0}},
			size:  8,
		},
		{
			name:    "overlap",
			metas:   []TensorMeta{{Name: "a", Offset: 0, Size: 16}, {Name: "b", Offset: 8, Size: 8}},
			size:    32,
			wantErr: ErrOffsetOverlap,
		},
		{
			name:    "past end",
			metas:   []TensorMeta{{Name: "a", Offset: 8, Size: 16}},
			size:    16,
			wantErr: ErrOutOfBounds,
		},
		{
			name:    "negative offset",
			metas:   []TensorMeta{{Name: "a", Offset: -8, Size: 8}},
			size:    16,
			wantErr: ErrOutOfBounds,
		},
		{
			name:    "overflowing size",
			metas:   []TensorMeta{{Name: "a", Offset: 8, Size: 1<<63 - 1}},
			size:    16,
			wantErr: ErrOutOfBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkLayout(tt.metas, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCheckLayoutOverlapNamesBoth(t *testing.T) {
	err := checkLayout([]TensorMeta{
		{Name: "backbone.conv1.weight", Offset: 0, Size: 32},
		{Name: "backbone.bn1.weight", Offset: 16, Size: 16},
	}, 64)

	var tensorErr *TensorError
	require.True(t, errors.As(err, &tensorErr))
	assert.Equal(t, "backbone.conv1.weight", tensorErr.Name)
	assert.Equal(t, "backbone.bn1.weight", tensorErr.Other)
	assert.Contains(t, err.Error(), "backbone.bn1.weight")
}

func TestCheckLayoutTooManyTensors(t *testing.T) {
	metas := make([]TensorMeta, MaxTensorCount+1)
	assert.ErrorIs(t, checkLayout(metas, 0), ErrTooManyTensors)
}

func TestCheckHeader(t *testing.T) {
	valid := func() *Header {
		return &Header{Tensors: []TensorMeta{
			{Name: "bn.weight", DType: "float32", Shape: []int{4}, Offset: 0, Size: 16},
			{Name: "bn.num_batches_tracked", DType: "int64", Shape: []int{}, Offset: 64, Size: 8},
		}}
	}
	require.NoError(t, checkHeader(valid(), 72))

	h := valid()
	h.Tensors[0].Size = 12
	assert.ErrorIs(t, checkHeader(h, 72), ErrSizeMismatch)

	h = valid()
	h.Tensors[0].DType = "float16"
	assert.ErrorIs(t, checkHeader(h, 72), ErrSizeMismatch)

	h = valid()
	h.Tensors[0].Shape = []int{0}
	assert.ErrorIs(t, checkHeader(h, 72), ErrSizeMismatch)

	h = valid()
	h.Tensors[1].Name = "bn.weight"
	assert.ErrorIs(t, checkHeader(h, 72), ErrInvalidTensorName)

	assert.ErrorIs(t, checkHeader(valid(), 70), ErrOutOfBounds)
}

func TestChecksum(t *testing.T) {
	data := []byte("hello world")
	sum := sumBytes(data)
	// sha256("hello world")
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", hex.EncodeToString(sum[:]))

	streamed, err := sumReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sum, streamed)
	assert.NoError(t, streamed.verify(sum))

	other := sumBytes([]byte("hello world!"))
	err = other.verify(sum)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Contains(t, err.Error(), "b94d27b9934d3e08")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("safetensors")
	require.NoError(t, err)
	assert.Equal(t, FormatSafeTensors, f)

	_, err = ParseFormat("onnx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
