// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package harness exposes the execution harness trainers delegate to.
package harness

import (
	"go.uber.org/zap"

	"github.com/chorale-ml/chorale/internal/harness"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Harness drives gradient flow and metric emission for one training run.
type Harness[B tensor.Backend] = harness.Harness[B]

// New creates a harness with a fresh run ID. A nil logger disables
// structured output.
func New[B tensor.Backend](logger *zap.Logger) *Harness[B] {
	return harness.New[B](logger)
}
