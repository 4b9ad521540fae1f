package cpu

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
	"gonum.org/v1/gonum/blas"
)

// Conv2D performs grouped 2D convolution using im2col + GEMM.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, K_h, K_w]
// Output shape: [N, C_out, H_out, W_out]
//
//	H_out = (H + 2*padding - K_h) / stride + 1
//	W_out = (W + 2*padding - K_w) / stride + 1
//
// Per sample and group:
//  1. im2col: the group's input patches become a [C_g*K_h*K_w, H_out*W_out] matrix
//  2. GEMM:   [C_out/g, C_g*K_h*K_w] @ cols -> [C_out/g, H_out*W_out]
//
// The GEMM result is already in NCHW order for that slice of the output,
// so no rearrangement pass is needed. Samples run in parallel.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding, groups int) *tensor.RawTensor {
	requireFloat32("conv2d", input, kernel)
	require4D("conv2d", input)

	kernelShape := kernel.Shape()
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in/g,K_h,K_w], got %dD", len(kernelShape)))
	}
	if stride <= 0 || padding < 0 || groups <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride=%d padding=%d groups=%d", stride, padding, groups))
	}

	inputShape := input.Shape()
	N, CIn, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	COut, CInG, KH, KW := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if CIn%groups != 0 || COut%groups != 0 {
		panic(fmt.Sprintf("conv2d: channels in=%d out=%d not divisible by groups=%d", CIn, COut, groups))
	}
	if CIn/groups != CInG {
		panic(fmt.Sprintf("conv2d: input channels %d / groups %d != kernel channels %d", CIn, groups, CInG))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", HOut, WOut))
	}

	output := cpu.newFloat32("conv2d", tensor.Shape{N, COut, HOut, WOut})

	g := convGeometry{
		cIn: CIn, h: H, w: W,
		cOut: COut, kh: KH, kw: KW,
		hOut: HOut, wOut: WOut,
		stride: stride, padding: padding, groups: groups,
	}

	inData, kData, outData := input.AsFloat32(), kernel.AsFloat32(), output.AsFloat32()
	parallel.For(N, func(n int) {
		g.sample(
			outData[n*COut*HOut*WOut:(n+1)*COut*HOut*WOut],
			inData[n*CIn*H*W:(n+1)*CIn*H*W],
			kData,
		)
	}, cpu.workers)

	return output
}

// convGeometry carries the static dimensions of one convolution call.
type convGeometry struct {
	cIn, h, w       int
	cOut, kh, kw    int
	hOut, wOut      int
	stride, padding int
	groups          int
}

// pointwise reports whether the convolution is a plain 1x1, stride 1, no padding,
// in which case the input plane already is the column matrix.
func (g convGeometry) pointwise() bool {
	return g.kh == 1 && g.kw == 1 && g.stride == 1 && g.padding == 0
}

// sample convolves one [C_in, H, W] sample into its [C_out, H_out, W_out] output.
func (g convGeometry) sample(out, in, kernel []float32) {
	cInG := g.cIn / g.groups
	cOutG := g.cOut / g.groups
	colRows := cInG * g.kh * g.kw
	colCols := g.hOut * g.wOut

	var cols []float32
	if !g.pointwise() {
		cols = make([]float32, colRows*colCols)
	}

	for grp := 0; grp < g.groups; grp++ {
		groupIn := in[grp*cInG*g.h*g.w : (grp+1)*cInG*g.h*g.w]
		if g.pointwise() {
			cols = groupIn
		} else {
			g.im2col(cols, groupIn, cInG)
		}

		gemm(blas.NoTrans,
			kernel[grp*cOutG*colRows:(grp+1)*cOutG*colRows], cOutG, colRows,
			cols, colCols,
			out[grp*cOutG*colCols:(grp+1)*cOutG*colCols],
		)
	}
}

// im2col lays out the input patches of c channels as a
// [c*K_h*K_w, H_out*W_out] row-major matrix. Out-of-bounds taps read zero.
func (g convGeometry) im2col(cols, in []float32, c int) {
	colCols := g.hOut * g.wOut
	row := 0
	for ch := 0; ch < c; ch++ {
		plane := in[ch*g.h*g.w : (ch+1)*g.h*g.w]
		for kh := 0; kh < g.kh; kh++ {
			for kw := 0; kw < g.kw; kw++ {
				dst := cols[row*colCols : (row+1)*colCols]
				for oh := 0; oh < g.hOut; oh++ {
					h := oh*g.stride - g.padding + kh
					rowDst := dst[oh*g.wOut : (oh+1)*g.wOut]
					if h < 0 || h >= g.h {
						clear(rowDst)
						continue
					}
					src := plane[h*g.w : (h+1)*g.w]
					for ow := range rowDst {
						w := ow*g.stride - g.padding + kw
						if w >= 0 && w < g.w {
							rowDst[ow] = src[w]
						} else {
							rowDst[ow] = 0
						}
					}
				}
				row++
			}
		}
	}
}
