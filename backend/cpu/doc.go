// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go compute backend.
//
// Matrix products and convolutions (im2col) run through gonum's BLAS.
// Batched and per-channel work is spread over a worker pool sized from
// the physical core count.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Randn[float32](tensor.Shape{1, 3, 224, 224}, backend)
package cpu
