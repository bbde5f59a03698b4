package serialization

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/zoo/internal/tensor"
)

// Limits applied to every file read.
const (
	MaxHeaderSize    = 100 * 1024 * 1024
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// checkName accepts dotted state dict keys such as
// "backbone.layer1.0.bn1.running_mean".
func checkName(name string) error {
	fail := func(msg string) error {
		return &TensorError{Name: name, Err: ErrInvalidTensorName, Msg: msg}
	}
	switch {
	case name == "":
		return fail("empty")
	case len(name) > MaxTensorNameLen:
		return fail(fmt.Sprintf("length %d exceeds %d", len(name), MaxTensorNameLen))
	case strings.ContainsAny(name, "/\\\x00"):
		return fail("contains a path separator or NUL")
	case slices.Contains(strings.Split(name, "."), ""):
		return fail("empty path segment")
	}
	return nil
}

// checkLayout verifies that tensor regions lie inside a data section of
// dataSize bytes and do not share bytes.
func checkLayout(metas []TensorMeta, dataSize int64) error {
	if len(metas) > MaxTensorCount {
		return fmt.Errorf("%w: %d > %d", ErrTooManyTensors, len(metas), MaxTensorCount)
	}

	sorted := slices.Clone(metas)
	slices.SortFunc(sorted, func(a, b TensorMeta) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})

	for i, m := range sorted {
		if m.Offset < 0 || m.Size < 0 || m.Offset > dataSize || m.Size > dataSize-m.Offset {
			return &TensorError{
				Name: m.Name,
				Err:  ErrOutOfBounds,
				Msg:  fmt.Sprintf("[%d, %d) outside %d bytes", m.Offset, m.Offset+m.Size, dataSize),
			}
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.Offset+prev.Size > m.Offset {
				return &TensorError{
					Name:  prev.Name,
					Other: m.Name,
					Err:   ErrOffsetOverlap,
					Msg:   fmt.Sprintf("%d > %d", prev.Offset+prev.Size, m.Offset),
				}
			}
		}
	}
	return nil
}

// checkHeader validates every entry of a .born tensor table against the
// data section it describes.
func checkHeader(h *Header, dataSize int64) error {
	seen := make(map[string]struct{}, len(h.Tensors))
	for _, m := range h.Tensors {
		if err := checkName(m.Name); err != nil {
			return err
		}
		if _, dup := seen[m.Name]; dup {
			return &TensorError{Name: m.Name, Err: ErrInvalidTensorName, Msg: "duplicate"}
		}
		seen[m.Name] = struct{}{}

		dtype, err := tensor.ParseDataType(m.DType)
		if err != nil {
			return &TensorError{Name: m.Name, Err: ErrSizeMismatch, Msg: err.Error()}
		}
		shape := tensor.Shape(m.Shape)
		if err := shape.Validate(); err != nil {
			return &TensorError{Name: m.Name, Err: ErrSizeMismatch, Msg: err.Error()}
		}
		if want := int64(shape.NumElements() * dtype.Size()); m.Size != want {
			return &TensorError{
				Name: m.Name,
				Err:  ErrSizeMismatch,
				Msg:  fmt.Sprintf("%s%v needs %d bytes, table says %d", dtype, m.Shape, want, m.Size),
			}
		}
	}
	return checkLayout(h.Tensors, dataSize)
}
