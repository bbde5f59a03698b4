package pth

import (
	"fmt"

	"github.com/nlpodyssey/gopickle/pytorch"

	"github.com/born-ml/zoo/internal/tensor"
)

// ConvertTensor materializes a (possibly strided) PyTorch tensor as a
// contiguous RawTensor on the CPU.
func ConvertTensor(t *pytorch.Tensor) (*tensor.RawTensor, error) {
	shape := tensor.Shape(append([]int{}, t.Size...))
	stride := t.Stride
	if len(stride) == 0 && len(shape) > 0 {
		stride = shape.ComputeStrides()
	}
	if len(stride) != len(shape) {
		return nil, fmt.Errorf("stride %v does not match size %v", stride, shape)
	}

	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		return fill(shape, tensor.Float32, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []float32 { return dst.AsFloat32() })
	case *pytorch.HalfStorage:
		return fill(shape, tensor.Float32, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []float32 { return dst.AsFloat32() })
	case *pytorch.BFloat16Storage:
		return fill(shape, tensor.Float32, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []float32 { return dst.AsFloat32() })
	case *pytorch.DoubleStorage:
		return fill(shape, tensor.Float64, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []float64 { return dst.AsFloat64() })
	case *pytorch.LongStorage:
		return fill(shape, tensor.Int64, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []int64 { return dst.AsInt64() })
	case *pytorch.IntStorage:
		return fill(shape, tensor.Int32, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []int32 { return dst.AsInt32() })
	case *pytorch.ShortStorage:
		return fill(shape, tensor.Int32, widen(s.Data), t.StorageOffset, stride, func(dst *tensor.RawTensor) []int32 { return dst.AsInt32() })
	case *pytorch.CharStorage:
		return fill(shape, tensor.Int32, widen(s.Data), t.StorageOffset, stride, func(dst *tensor.RawTensor) []int32 { return dst.AsInt32() })
	case *pytorch.ByteStorage:
		return fill(shape, tensor.Uint8, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []uint8 { return dst.AsUint8() })
	case *pytorch.BoolStorage:
		return fill(shape, tensor.Bool, s.Data, t.StorageOffset, stride, func(dst *tensor.RawTensor) []bool { return dst.AsBool() })
	case nil:
		return nil, fmt.Errorf("tensor has no storage")
	default:
		return nil, fmt.Errorf("unsupported storage %T", t.Source)
	}
}

func widen[T int8 | int16](src []T) []int32 {
	out := make([]int32, len(src))
	for i, v := range src {
		out[i] = int32(v)
	}
	return out
}

// fill allocates a tensor of shape and copies the strided view of src into it.
func fill[T any](shape tensor.Shape, dtype tensor.DataType, src []T, offset int, stride []int, view func(*tensor.RawTensor) []T) (*tensor.RawTensor, error) {
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	if err := gather(view(raw), src, offset, shape, stride); err != nil {
		return nil, err
	}
	return raw, nil
}

// gather copies the elements of a strided view into dst in row-major order.
func gather[T any](dst, src []T, offset int, shape tensor.Shape, stride []int) error {
	if offset < 0 {
		return fmt.Errorf("negative storage offset %d", offset)
	}

	// Bounds: the largest index the view can touch.
	last := offset
	for i, dim := range shape {
		if stride[i] < 0 {
			return fmt.Errorf("negative stride %v", stride)
		}
		last += (dim - 1) * stride[i]
	}
	if len(dst) > 0 && last >= len(src) {
		return fmt.Errorf("view reaches element %d of a %d element storage", last, len(src))
	}

	if shape.IsContiguous(stride) {
		copy(dst, src[offset:offset+len(dst)])
		return nil
	}

	index := make([]int, len(shape))
	for i := range dst {
		pos := offset
		for d := range index {
			pos += index[d] * stride[d]
		}
		dst[i] = src[pos]

		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}
	return nil
}
