// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the host-memory backend.
//
// Models built on this backend keep every parameter and buffer in ordinary
// Go memory, which is where checkpoints are read and written.
//
// Example:
//
//	backend := cpu.New()
//	model, err := zoo.New(ctx, "deeplabv3_resnet101", backend, zoo.Options{Pretrained: true})
package cpu

import (
	internalcpu "github.com/born-ml/zoo/internal/backend/cpu"
	"github.com/born-ml/zoo/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
func New() *Backend {
	return internalcpu.New()
}
