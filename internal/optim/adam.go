package optim

import (
	"fmt"
	"math"

	"github.com/chorale-ml/chorale/internal/nn"
	"github.com/chorale-ml/chorale/internal/tensor"
)

// Adam implements the Adam optimizer with optional decoupled weight decay
// (AdamW). This is the default optimizer for all three training stages.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param * (1 - lr*wd) - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
// and "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019).
type Adam[B tensor.Backend] struct {
	params []*nn.Parameter[B]
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	wd     float32
	t      int64                                           // Timestep for bias correction
	m      map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // First moment estimates
	v      map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // Second moment estimates
}

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LR          float32    // Learning rate (default: 3e-4)
	Betas       [2]float32 // Running average coefficients (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // Decoupled weight decay (default: 0, disabled)
}

// NewAdam creates a new Adam optimizer.
//
// Parameter names must be unique; they key the optimizer state dict.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	if config.LR == 0 {
		config.LR = 3e-4
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam[B]{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		wd:     config.WeightDecay,
		m:      make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		v:      make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
	}
}

// Step performs a single optimization step over the accumulated gradients.
func (a *Adam[B]) Step() {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad := param.Grad()
		if grad == nil {
			// Parameter didn't participate in the accumulation window.
			continue
		}

		m, ok := a.m[param]
		if !ok {
			m = tensor.Zeros[float32](param.Tensor().Shape(), param.Tensor().Backend())
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = tensor.Zeros[float32](param.Tensor().Shape(), param.Tensor().Backend())
			a.v[param] = v
		}

		gradData := grad.Data()
		mData := m.Data()
		vData := v.Data()
		paramData := param.Tensor().Data()

		for i := range paramData {
			g := gradData[i]

			mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
			vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

			mHat := mData[i] / biasCorrection1
			vHat := vData[i] / biasCorrection2

			if a.wd > 0 {
				paramData[i] -= a.lr * a.wd * paramData[i]
			}
			paramData[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam[B]) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam[B]) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam[B]) SetLR(lr float32) {
	a.lr = lr
}

// Name returns the optimizer type name.
func (a *Adam[B]) Name() string {
	return "Adam"
}

// GetTimestep returns the current timestep.
func (a *Adam[B]) GetTimestep() int64 {
	return a.t
}

// StateDict returns the moment buffers and timestep, keyed by parameter name.
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, 2*len(a.m)+1)

	t, err := tensor.NewRaw(tensor.Shape{1}, tensor.Int64, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("optim: timestep tensor: %v", err))
	}
	t.AsInt64()[0] = a.t
	state["t"] = t

	for param, m := range a.m {
		state["m."+param.Name()] = m.Raw().Clone()
	}
	for param, v := range a.v {
		state["v."+param.Name()] = v.Raw().Clone()
	}
	return state
}

// LoadStateDict restores the moment buffers and timestep.
//
// Moment entries for unknown parameters are an error; parameters without
// entries keep zero-initialized moments (they had no updates when the
// state was saved).
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	byName := make(map[string]*nn.Parameter[B], len(a.params))
	for _, param := range a.params {
		byName[param.Name()] = param
	}

	for name, raw := range stateDict {
		switch {
		case name == "t":
			a.t = raw.AsInt64()[0]
		case len(name) > 2 && name[:2] == "m.":
			param, ok := byName[name[2:]]
			if !ok {
				return fmt.Errorf("adam state references unknown parameter %q", name[2:])
			}
			m := tensor.Zeros[float32](param.Tensor().Shape(), param.Tensor().Backend())
			if err := m.Raw().CopyFrom(raw); err != nil {
				return fmt.Errorf("adam first moment %q: %w", name, err)
			}
			a.m[param] = m
		case len(name) > 2 && name[:2] == "v.":
			param, ok := byName[name[2:]]
			if !ok {
				return fmt.Errorf("adam state references unknown parameter %q", name[2:])
			}
			v := tensor.Zeros[float32](param.Tensor().Shape(), param.Tensor().Backend())
			if err := v.Raw().CopyFrom(raw); err != nil {
				return fmt.Errorf("adam second moment %q: %w", name, err)
			}
			a.v[param] = v
		default:
			return fmt.Errorf("unrecognized adam state entry %q", name)
		}
	}
	return nil
}
