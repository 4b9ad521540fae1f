package cpu

import (
	"fmt"
	"math"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// poolOutputSize returns the pooled length of a dimension of size in,
// following the PyTorch rule: in ceil mode the last window may run past
// the input but must start inside it (or inside the left padding).
func poolOutputSize(in, kernel, stride, padding int, ceilMode bool) int {
	span := in + 2*padding - kernel
	if span < 0 {
		return 0
	}
	out := span/stride + 1
	if ceilMode {
		out = (span+stride-1)/stride + 1
		if (out-1)*stride >= in+padding {
			out--
		}
	}
	return out
}

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [N, C, H, W]
// Output shape: [N, C, H_out, W_out], see poolOutputSize.
//
// Padded cells never contribute to the maximum.
//
// Example (3x3 pool, stride 2, ceil mode, 112x112 input): output is 56x56,
// the last window covers rows 110..111 only.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride, padding int, ceilMode bool) *tensor.RawTensor {
	requireFloat32("maxpool2d", input)
	require4D("maxpool2d", input)
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel=%d stride=%d padding=%d", kernelSize, stride, padding))
	}
	if 2*padding > kernelSize {
		panic(fmt.Sprintf("maxpool2d: padding %d must be at most half of kernel %d", padding, kernelSize))
	}

	shape := input.Shape()
	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	HOut := poolOutputSize(H, kernelSize, stride, padding, ceilMode)
	WOut := poolOutputSize(W, kernelSize, stride, padding, ceilMode)
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions %dx%d (kernel=%d, stride=%d, input=%dx%d)",
			HOut, WOut, kernelSize, stride, H, W))
	}

	output := cpu.newFloat32("maxpool2d", tensor.Shape{N, C, HOut, WOut})
	inData, outData := input.AsFloat32(), output.AsFloat32()

	parallel.For(N*C, func(nc int) {
		plane := inData[nc*H*W : (nc+1)*H*W]
		dst := outData[nc*HOut*WOut : (nc+1)*HOut*WOut]

		for oh := 0; oh < HOut; oh++ {
			hStart := oh*stride - padding
			hEnd := min(hStart+kernelSize, H)
			hStart = max(hStart, 0)

			for ow := 0; ow < WOut; ow++ {
				wStart := ow*stride - padding
				wEnd := min(wStart+kernelSize, W)
				wStart = max(wStart, 0)

				maxVal := float32(math.Inf(-1))
				for h := hStart; h < hEnd; h++ {
					row := plane[h*W : (h+1)*W]
					for w := wStart; w < wEnd; w++ {
						if row[w] > maxVal {
							maxVal = row[w]
						}
					}
				}
				dst[oh*WOut+ow] = maxVal
			}
		}
	}, cpu.workers)

	return output
}

// AvgPool2D averages non-padded kernelSize x kernelSize windows.
//
//	H_out = (H - kernelSize) / stride + 1
func (cpu *CPUBackend) AvgPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	requireFloat32("avgpool2d", input)
	require4D("avgpool2d", input)
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel=%d stride=%d", kernelSize, stride))
	}

	shape := input.Shape()
	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("avgpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}
	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	output := cpu.newFloat32("avgpool2d", tensor.Shape{N, C, HOut, WOut})
	inData, outData := input.AsFloat32(), output.AsFloat32()
	area := float32(kernelSize * kernelSize)

	parallel.For(N*C, func(nc int) {
		plane := inData[nc*H*W : (nc+1)*H*W]
		dst := outData[nc*HOut*WOut : (nc+1)*HOut*WOut]
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				var sum float32
				for h := oh * stride; h < oh*stride+kernelSize; h++ {
					for _, v := range plane[h*W+ow*stride : h*W+ow*stride+kernelSize] {
						sum += v
					}
				}
				dst[oh*WOut+ow] = sum / area
			}
		}
	}, cpu.workers)

	return output
}

// AdaptiveAvgPool2D averages the input down to outH x outW bins.
// Bin i along a dimension of size n spans [floor(i*n/out), ceil((i+1)*n/out)).
func (cpu *CPUBackend) AdaptiveAvgPool2D(input *tensor.RawTensor, outH, outW int) *tensor.RawTensor {
	requireFloat32("adaptive_avgpool2d", input)
	require4D("adaptive_avgpool2d", input)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("adaptive_avgpool2d: invalid output size %dx%d", outH, outW))
	}

	shape := input.Shape()
	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	output := cpu.newFloat32("adaptive_avgpool2d", tensor.Shape{N, C, outH, outW})
	inData, outData := input.AsFloat32(), output.AsFloat32()

	parallel.For(N*C, func(nc int) {
		plane := inData[nc*H*W : (nc+1)*H*W]
		dst := outData[nc*outH*outW : (nc+1)*outH*outW]
		for oh := 0; oh < outH; oh++ {
			h0, h1 := adaptiveBin(oh, H, outH)
			for ow := 0; ow < outW; ow++ {
				w0, w1 := adaptiveBin(ow, W, outW)
				var sum float32
				for h := h0; h < h1; h++ {
					for _, v := range plane[h*W+w0 : h*W+w1] {
						sum += v
					}
				}
				dst[oh*outW+ow] = sum / float32((h1-h0)*(w1-w0))
			}
		}
	}, cpu.workers)

	return output
}

func adaptiveBin(i, in, out int) (start, end int) {
	start = i * in / out
	end = ((i+1)*in + out - 1) / out
	return start, end
}
