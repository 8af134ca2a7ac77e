// Package cpu implements the CPU backend for the chorale training stack.
package cpu

import (
	"github.com/chorale-ml/chorale/internal/tensor"
)

// CPUBackend is the host-memory backend. Model implementations do their own
// arithmetic; the backend records where tensors are allocated.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}
