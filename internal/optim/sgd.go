package optim

import (
	"fmt"

	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule (with momentum):
//
//	v_t = momentum * v_{t-1} + gradient
//	param = param - lr * v_t
type SGD[B tensor.Backend] struct {
	params   []*nn.Parameter[B]
	lr       float32
	momentum float32
	velocity map[*nn.Parameter[B]]*tensor.Tensor[float32, B]
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0, disabled)
}

// NewSGD creates a new SGD optimizer.
//
// Parameter names must be unique; they key the optimizer state dict.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}

	return &SGD[B]{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		velocity: make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
	}
}

// Step performs a single optimization step over the accumulated gradients.
func (s *SGD[B]) Step() {
	for _, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}

		gradData := grad.Data()
		paramData := param.Tensor().Data()

		if s.momentum > 0 {
			v, ok := s.velocity[param]
			if !ok {
				v = tensor.Zeros[float32](param.Tensor().Shape(), param.Tensor().Backend())
				s.velocity[param] = v
			}
			vData := v.Data()
			for i := range paramData {
				vData[i] = s.momentum*vData[i] + gradData[i]
				paramData[i] -= s.lr * vData[i]
			}
		} else {
			for i := range paramData {
				paramData[i] -= s.lr * gradData[i]
			}
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// Name returns the optimizer type name.
func (s *SGD[B]) Name() string {
	return "SGD"
}

// StateDict returns the velocity buffers, keyed by parameter name.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(s.velocity))
	for param, v := range s.velocity {
		state["velocity."+param.Name()] = v.Raw().Clone()
	}
	return state
}

// LoadStateDict restores the velocity buffers.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	byName := make(map[string]*nn.Parameter[B], len(s.params))
	for _, param := range s.params {
		byName[param.Name()] = param
	}

	const prefix = "velocity."
	for name, raw := range stateDict {
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			return fmt.Errorf("unrecognized sgd state entry %q", name)
		}
		param, ok := byName[name[len(prefix):]]
		if !ok {
			return fmt.Errorf("sgd state references unknown parameter %q", name[len(prefix):])
		}
		v := tensor.Zeros[float32](param.Tensor().Shape(), param.Tensor().Backend())
		if err := v.Raw().CopyFrom(raw); err != nil {
			return fmt.Errorf("sgd velocity %q: %w", name, err)
		}
		s.velocity[param] = v
	}
	return nil
}
