package nn

import (
	"fmt"

	"github.com/chorale-ml/chorale/internal/tensor"
)

// Parameter represents a trainable parameter in a model.
//
// Parameters are tensors that accumulate gradients during training. The
// backward closure of a Loss writes into them via AccumulateGrad; the
// optimizer reads and clears them.
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g. "transformer.wte")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Accumulated gradient, nil until first backward
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the accumulated gradient tensor.
//
// Returns nil if no gradient has been accumulated since the last ZeroGrad.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad sets the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// AccumulateGrad adds scale*grad to the parameter's gradient, allocating a
// zero gradient on first use. This is what makes gradient accumulation over
// micro-batches additive.
func (p *Parameter[B]) AccumulateGrad(grad *tensor.RawTensor, scale float64) error {
	if !grad.Shape().Equal(p.tensor.Shape()) {
		return fmt.Errorf("parameter %s: gradient shape %v does not match parameter shape %v",
			p.name, grad.Shape(), p.tensor.Shape())
	}

	if p.grad == nil {
		p.grad = tensor.Zeros[float32](p.tensor.Shape(), p.tensor.Backend())
	}

	dst := p.grad.Data()
	src := grad.AsFloat32()
	s := float32(scale)
	for i := range dst {
		dst[i] += s * src[i]
	}
	return nil
}

// ZeroGrad clears the gradient tensor.
//
// This should be called after each optimizer step to avoid carrying
// gradients into the next accumulation window.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}
