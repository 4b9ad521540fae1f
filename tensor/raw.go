// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/dcan-ml/dcan/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Typed data access via AsFloat32(), AsFloat64(), AsInt64()
//   - Views and copies via View(), Clone(), CopyFrom()
//
// State dicts map parameter names to RawTensors.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32()
type RawTensor = tensor.RawTensor

// NewRaw allocates a zeroed RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// ErrShapeMismatch is returned by CopyFrom when shapes differ.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// ErrDTypeMismatch is returned by CopyFrom when dtypes differ.
var ErrDTypeMismatch = tensor.ErrDTypeMismatch
