// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zoo/backend/cpu"
	"github.com/born-ml/zoo/nn"
)

type backend = *cpu.Backend

func block(seed int64) *nn.Sequential[backend] {
	b := cpu.New()
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // test weights
	return nn.NewSequential[backend](
		nn.NewConv2D(nn.Conv2DConfig{InChannels: 3, OutChannels: 4, KernelSize: 3, Padding: 1}, rng, b),
		nn.NewBatchNorm2D(4, b),
		nn.NewReLU[backend](),
		nn.NewDropout[backend](0.1),
	)
}

func TestSaveLoad(t *testing.T) {
	src := block(1)
	nn.Eval[backend](src)
	path := filepath.Join(t.TempDir(), "block.born")
	require.NoError(t, nn.Save[backend](src, path, "block", map[string]string{"note": "facade"}))

	dst := block(2)
	header, err := nn.Load[backend](path, cpu.New(), dst)
	require.NoError(t, err)
	assert.Equal(t, "block", header.ModelType)
	assert.Equal(t, "facade", header.Metadata["note"])
	assert.Equal(t, src.StateDict()["0.weight"].Data(), dst.StateDict()["0.weight"].Data())
	assert.Equal(t, 3*4*9+4+4, nn.NumParameters[backend](dst))
}

func TestLoadMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block.born")
	require.NoError(t, nn.Save[backend](block(1), path, "block", nil))

	other := nn.NewContainer[backend]().Add("features", block(3))
	_, err := nn.Load[backend](path, cpu.New(), other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, nn.ErrStateDictMismatch))

	var mismatch *nn.StateDictError
	require.True(t, errors.As(err, &mismatch))
	assert.NotEmpty(t, mismatch.Missing)
	assert.NotEmpty(t, mismatch.Unexpected)
}
