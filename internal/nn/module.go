// Package nn defines the module contract shared by every trainable model in
// the chorale stack, plus the checkpoint record built on top of it.
//
// The transformer architectures themselves live behind this contract; the
// trainer only needs parameter enumeration, a train/eval mode switch, and
// state dict round-tripping.
package nn

import (
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Module is the base interface for all trainable components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter[B]

	// StateDict returns a map of parameter names to raw tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict loads parameters from a state dictionary.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Train puts the module in training mode.
	Train()

	// Eval puts the module in evaluation mode.
	Eval()
}
