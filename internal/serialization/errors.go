package serialization

import (
	"errors"
	"fmt"
)

// Errors returned when reading checkpoints. Failures tied to one tensor are
// wrapped in a *TensorError.
var (
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrTruncated          = errors.New("data section is truncated")
	ErrTooManyTensors     = errors.New("too many tensors in file")
	ErrInvalidTensorName  = errors.New("invalid tensor name")
	ErrSizeMismatch       = errors.New("tensor size does not match dtype and shape")
	ErrOutOfBounds        = errors.New("tensor extends beyond data section")
	ErrOffsetOverlap      = errors.New("tensor offsets overlap")
	ErrUnknownFormat      = errors.New("unknown checkpoint format")
)

// TensorError reports a problem with one entry of the tensor table.
type TensorError struct {
	Name  string
	Other string // Second tensor for overlaps
	Err   error
	Msg   string
}

func (e *TensorError) Error() string {
	if e.Other != "" {
		return fmt.Sprintf("%v: %q and %q: %s", e.Err, e.Name, e.Other, e.Msg)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Name, e.Msg)
}

func (e *TensorError) Unwrap() error {
	return e.Err
}
