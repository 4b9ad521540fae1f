package cpu

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// Narrow copies length entries of dimension dim starting at start.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d of size %d",
			start, start+length, dim, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("narrow: %v", err))
	}

	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements() * x.DType().Size()
	src, dst := x.Data(), result.Data()
	srcBlock, dstBlock := shape[dim]*inner, length*inner

	for o := 0; o < outer; o++ {
		copy(dst[o*dstBlock:(o+1)*dstBlock], src[o*srcBlock+start*inner:o*srcBlock+(start+length)*inner])
	}
	return result
}

// Cat concatenates tensors along dim. All other dimensions and the dtype must match.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	first := tensors[0].Shape()
	dim = tensor.NormalizeDim(dim, len(first))
	outShape := first.Clone()
	outShape[dim] = 0

	for i, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) || t.DType() != tensors[0].DType() {
			panic(fmt.Sprintf("cat: tensor %d has shape %v/%s, expected rank %d/%s",
				i, s, t.DType(), len(first), tensors[0].DType()))
		}
		for d := range s {
			if d != dim && s[d] != first[d] {
				panic(fmt.Sprintf("cat: tensor %d shape %v incompatible with %v along dim %d", i, s, first, d))
			}
		}
		outShape[dim] += s[dim]
	}

	result, err := tensor.NewRaw(outShape, tensors[0].DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	outer := first[:dim].NumElements()
	inner := first[dim+1:].NumElements() * tensors[0].DType().Size()
	dst := result.Data()
	dstBlock := outShape[dim] * inner

	offset := 0
	for _, t := range tensors {
		block := t.Shape()[dim] * inner
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*dstBlock+offset:o*dstBlock+offset+block], src[o*block:(o+1)*block])
		}
		offset += block
	}
	return result
}

// Transpose permutes the dimensions of t. With no axes it reverses them.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for %dD tensor", axes, ndim))
		}
		seen[ax] = true
		newShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(newShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	// Walk the output in order; srcStr[i] is the source stride of output dim i.
	inStrides := t.Strides()
	srcStr := make([]int, ndim)
	for i, ax := range axes {
		srcStr[i] = inStrides[ax]
	}

	elem := t.DType().Size()
	src, dst := t.Data(), result.Data()
	idx := make([]int, ndim)
	so := 0
	for i := 0; i < result.NumElements(); i++ {
		copy(dst[i*elem:(i+1)*elem], src[so*elem:(so+1)*elem])
		for d := ndim - 1; d >= 0; d-- {
			idx[d]++
			so += srcStr[d]
			if idx[d] < newShape[d] {
				break
			}
			so -= srcStr[d] * newShape[d]
			idx[d] = 0
		}
	}
	return result
}
