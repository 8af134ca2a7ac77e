package tensor

// Backend abstracts the compute device behind tensor allocation.
//
// The training stack is parameterized over a Backend so that models,
// optimizers and the execution harness agree on where tensors live. The
// trainer itself performs no tensor math; heavy computation belongs to the
// injected model implementations.
type Backend interface {
	// Name returns the backend name (e.g. "CPU").
	Name() string

	// Device returns the compute device tensors are allocated on.
	Device() Device
}
