package cpu

import (
	"testing"

	"github.com/born-ml/zoo/internal/tensor"
	"github.com/stretchr/testify/assert"
)

func TestCPUBackend(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())

	x := tensor.Zeros[float32](tensor.Shape{2, 2}, backend)
	assert.Equal(t, tensor.CPU, x.Device())
}
