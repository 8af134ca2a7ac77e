package nn

// Loss is a scalar training loss plus an optional backward closure.
//
// Model implementations capture whatever they need to compute gradients in
// the closure; the execution harness drives it with the accumulation scale.
// A Loss produced in evaluation mode carries no closure and Backward is a
// no-op, which is how gradient tracking stays disabled during validation.
type Loss struct {
	value    float64
	backward func(scale float64) error
}

// NewLoss creates a loss with a backward closure.
func NewLoss(value float64, backward func(scale float64) error) *Loss {
	return &Loss{value: value, backward: backward}
}

// NewEvalLoss creates a loss without gradient tracking.
func NewEvalLoss(value float64) *Loss {
	return &Loss{value: value}
}

// Item returns the scalar loss value.
func (l *Loss) Item() float64 {
	return l.value
}

// Backward accumulates scale-weighted gradients into the model parameters.
func (l *Loss) Backward(scale float64) error {
	if l.backward == nil {
		return nil
	}
	return l.backward(scale)
}
