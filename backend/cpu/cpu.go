// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu exposes the pure-Go CPU backend.
package cpu

import "github.com/chorale-ml/chorale/internal/backend/cpu"

// CPUBackend is the pure-Go CPU compute backend.
type CPUBackend = cpu.CPUBackend

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	t, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
func New() *CPUBackend {
	return cpu.New()
}
