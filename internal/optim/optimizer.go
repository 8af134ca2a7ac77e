// Package optim implements the optimizers used by the stage trainers.
//
// Gradients are accumulated on the parameters themselves (see
// nn.Parameter.AccumulateGrad); Step consumes them in place. Both optimizers
// expose their internal buffers as a state dict so a checkpoint round-trip
// resumes the exact optimization trajectory.
package optim

import (
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the accumulated gradients to all parameters.
	// Parameters without a gradient are skipped.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// Name returns the optimizer type name ("Adam", "SGD").
	Name() string

	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores optimizer state from a state dict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
