// Package cpu implements tensor.Backend in pure Go, with GEMM from gonum.
package cpu

import (
	"fmt"
	"strings"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/klauspost/cpuid/v2"
)

// CPUBackend implements tensor operations on the host CPU.
type CPUBackend struct {
	device  tensor.Device
	workers parallel.Config
}

// New creates a CPU backend using one worker per physical core.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit worker configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:  tensor.CPU,
		workers: cfg,
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

// Info describes the host processor and worker pool.
func (cpu *CPUBackend) Info() string {
	var feats []string
	for _, f := range []cpuid.FeatureID{cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F} {
		if cpuid.CPU.Supports(f) {
			feats = append(feats, f.String())
		}
	}
	return fmt.Sprintf("%s (%d workers, features: %s)",
		strings.TrimSpace(cpuid.CPU.BrandName), cpu.workers.NumWorkers, strings.Join(feats, ","))
}

// Reshape returns a view of t with a new shape.
// Backends never write into their inputs, so sharing memory is safe.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	view, err := t.View(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// newFloat32 allocates a float32 result tensor on the CPU.
func (cpu *CPUBackend) newFloat32(op string, shape tensor.Shape) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

// requireFloat32 panics unless every tensor holds float32 data.
func requireFloat32(op string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("%s: unsupported dtype %s (only float32 supported)", op, t.DType()))
		}
	}
}

// require4D panics unless t is shaped [N, C, H, W].
func require4D(op string, t *tensor.RawTensor) {
	if len(t.Shape()) != 4 {
		panic(fmt.Sprintf("%s: expected 4D input [N,C,H,W], got %dD", op, len(t.Shape())))
	}
}
