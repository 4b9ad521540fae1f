// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor types dcan networks compute with.
//
// # Overview
//
// Tensors are generic over their element type and compute backend:
//   - Tensor[T, B]: high-level tensor with NumPy-style broadcasting
//   - RawTensor: dtype-tagged row-major byte buffer, the unit of checkpoints
//   - Backend: the operations a compute device provides
//
// # Basic Usage
//
//	import (
//	    "github.com/dcan-ml/dcan/backend/cpu"
//	    "github.com/dcan-ml/dcan/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x := tensor.Randn[float32](tensor.Shape{2, 3, 224, 224}, backend)
//	    mean := tensor.Full[float32](tensor.Shape{1, 3, 1, 1}, 0.5, backend)
//	    y := x.Sub(mean) // broadcasts over N, H, W
//	}
//
// # Supported Data Types
//
// Float32 is the compute type. Float64 and Int64 are storage types: they
// appear in checkpoints (BatchNorm step counters are Int64) and load
// through RawTensor.
//
// # Errors
//
// Shape and dtype misuse panics with an "op: detail" message. Functions
// that validate external data, such as FromSlice and NewRaw, return errors.
package tensor
