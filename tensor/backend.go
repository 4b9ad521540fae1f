// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/dcan-ml/dcan/internal/tensor"

// Backend defines the operations a compute backend must provide.
//
// Implementations:
//   - backend/cpu: pure Go, GEMM through gonum BLAS
//
// Example:
//
//	import (
//	    "github.com/dcan-ml/dcan/backend/cpu"
//	    "github.com/dcan-ml/dcan/tensor"
//	)
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y) // Uses backend.Add under the hood
type Backend = tensor.Backend
