// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/dcan-ml/dcan/internal/backend/cpu"
	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend using every physical core.
//
// Example:
//
//	import (
//	    "github.com/dcan-ml/dcan/backend/cpu"
//	    "github.com/dcan-ml/dcan/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend limited to n workers. n <= 1 runs
// everything on the calling goroutine.
func NewWithWorkers(n int) *Backend {
	if n <= 1 {
		return internalcpu.NewWithConfig(parallel.Sequential())
	}
	return internalcpu.NewWithConfig(parallel.Config{Enabled: true, NumWorkers: n, MinChunkSize: 1})
}
