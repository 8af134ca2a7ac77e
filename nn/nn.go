// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the module, parameter and checkpoint primitives that
// trainable models implement.
package nn

import (
	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Module is the interface trainable models implement.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a model.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Loss is a scalar loss value with an optional backward closure.
type Loss = nn.Loss

// NewLoss creates a loss whose backward closure writes gradients into the
// model's parameters.
func NewLoss(value float64, backward func(scale float64) error) *Loss {
	return nn.NewLoss(value, backward)
}

// NewEvalLoss creates a loss value with no gradient path.
func NewEvalLoss(value float64) *Loss {
	return nn.NewEvalLoss(value)
}

// Checkpoint is a complete training state snapshot.
type Checkpoint[B tensor.Backend] = nn.Checkpoint[B]

// OptimizerState is the optimizer surface the checkpoint layer needs.
type OptimizerState = nn.OptimizerState

// LoadCheckpoint reads a checkpoint from path and restores model and
// optimizer state.
func LoadCheckpoint[B tensor.Backend](path string, model Module[B], optimizer OptimizerState) (*Checkpoint[B], error) {
	return nn.LoadCheckpoint(path, model, optimizer)
}
