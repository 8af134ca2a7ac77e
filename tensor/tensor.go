// Copyright 2025 Chorale ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the typed tensor API of the framework.
//
// Tensor[T, B] is a typed view over a RawTensor: element type T, compute
// backend B. Raw tensors are the untyped currency of datasets, state dicts
// and checkpoints.
package tensor

import "github.com/chorale-ml/chorale/internal/tensor"

// DType constrains the element types tensors support.
type DType = tensor.DType

// Backend is the compute backend interface.
type Backend = tensor.Backend

// DataType identifies the element type of a raw tensor.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
)

// Device identifies where tensor data lives.
type Device = tensor.Device

// CPU is the only compute device in this release.
const CPU = tensor.CPU

// Shape describes tensor dimensions.
type Shape = tensor.Shape

// RawTensor is an untyped tensor: bytes plus shape, dtype and device.
type RawTensor = tensor.RawTensor

// NewRaw allocates a zeroed raw tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// Tensor is a typed tensor bound to a compute backend.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// New wraps a raw tensor in a typed view.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T](raw, b)
}

// FromSlice builds a tensor from a Go slice.
//
// Example:
//
//	backend := cpu.New()
//	wave, err := tensor.FromSlice([]float32{0.1, 0.2}, tensor.Shape{2}, backend)
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros builds a zero-filled tensor.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T](shape, b)
}
