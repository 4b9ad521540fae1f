package cpu

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul performs matrix multiplication (M, K) @ (K, N) -> (M, N)
// through gonum's SGEMM.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("matmul", a, b)

	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := cpu.newFloat32("matmul", tensor.Shape{m, n})
	gemm(blas.NoTrans, a.AsFloat32(), m, k, b.AsFloat32(), n, result.AsFloat32())
	return result
}

// gemm computes c = op(a) @ b where op(a) is [m, k] and b is [k, n],
// all row-major and densely packed. c is overwritten.
//
// With tA == blas.Trans, a is stored as [k, m].
func gemm(tA blas.Transpose, a []float32, m, k int, b []float32, n int, c []float32) {
	aRows, aCols := m, k
	if tA == blas.Trans {
		aRows, aCols = k, m
	}
	blas32.Gemm(tA, blas.NoTrans, 1,
		blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
