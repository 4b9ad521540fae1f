package cpu

import (
	"github.com/dcan-ml/dcan/internal/tensor"
)

// computeBroadcastStridesForShape computes strides for broadcasting inShape
// to outShape. Dimensions that are padded or of size 1 get stride 0.
func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)
	offset := outDim - len(inShape)
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		if inIdx < 0 || inShape[inIdx] == 1 {
			continue
		}
		strides[i] = origStrides[inIdx]
	}

	return strides
}

// broadcastFloat32 evaluates dst[i] = f(a[ia], b[ib]) over outShape,
// walking the output in row-major order with an odometer so that the
// input offsets are updated incrementally instead of recomputed.
func broadcastFloat32(dst, a, b []float32, aShape, bShape, outShape tensor.Shape, f func(x, y float32) float32) {
	nd := len(outShape)
	if nd == 0 {
		dst[0] = f(a[0], b[0])
		return
	}

	aStr := computeBroadcastStridesForShape(aShape, outShape)
	bStr := computeBroadcastStridesForShape(bShape, outShape)
	idx := make([]int, nd)
	ao, bo := 0, 0

	for i := range dst {
		dst[i] = f(a[ao], b[bo])

		for d := nd - 1; d >= 0; d-- {
			idx[d]++
			ao += aStr[d]
			bo += bStr[d]
			if idx[d] < outShape[d] {
				break
			}
			ao -= aStr[d] * outShape[d]
			bo -= bStr[d] * outShape[d]
			idx[d] = 0
		}
	}
}
