package cpu

import (
	"math/rand"
	"testing"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveConv2D is a direct 7-loop convolution used as reference.
func naiveConv2D(in []float32, n, cIn, h, w int, k []float32, cOut, kh, kw, stride, pad, groups int) ([]float32, int, int) {
	hOut := (h+2*pad-kh)/stride + 1
	wOut := (w+2*pad-kw)/stride + 1
	out := make([]float32, n*cOut*hOut*wOut)
	cInG, cOutG := cIn/groups, cOut/groups

	for b := 0; b < n; b++ {
		for oc := 0; oc < cOut; oc++ {
			g := oc / cOutG
			for oh := 0; oh < hOut; oh++ {
				for ow := 0; ow < wOut; ow++ {
					var sum float32
					for ic := 0; ic < cInG; ic++ {
						for i := 0; i < kh; i++ {
							for j := 0; j < kw; j++ {
								ih, iw := oh*stride-pad+i, ow*stride-pad+j
								if ih < 0 || ih >= h || iw < 0 || iw >= w {
									continue
								}
								x := in[((b*cIn+g*cInG+ic)*h+ih)*w+iw]
								sum += x * k[((oc*cInG+ic)*kh+i)*kw+j]
							}
						}
					}
					out[((b*cOut+oc)*hOut+oh)*wOut+ow] = sum
				}
			}
		}
	}
	return out, hOut, wOut
}

func randFloats(r *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*2 - 1
	}
	return out
}

func TestConv2D_MatchesNaive(t *testing.T) {
	tests := []struct {
		name                       string
		n, cIn, h, w               int
		cOut, k, stride, pad, grps int
	}{
		{"pointwise", 2, 4, 5, 5, 6, 1, 1, 0, 1},
		{"pointwise strided", 2, 4, 7, 7, 8, 1, 2, 0, 1},
		{"3x3 padded", 1, 3, 6, 6, 4, 3, 1, 1, 1},
		{"3x3 grouped", 3, 8, 5, 5, 8, 3, 1, 1, 4},
		{"7x7 stem", 1, 3, 16, 16, 4, 7, 2, 3, 1},
		{"depthwise", 2, 4, 4, 4, 4, 3, 2, 1, 4},
	}

	r := rand.New(rand.NewSource(1))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inData := randFloats(r, tt.n*tt.cIn*tt.h*tt.w)
			kData := randFloats(r, tt.cOut*(tt.cIn/tt.grps)*tt.k*tt.k)

			want, hOut, wOut := naiveConv2D(inData, tt.n, tt.cIn, tt.h, tt.w,
				kData, tt.cOut, tt.k, tt.k, tt.stride, tt.pad, tt.grps)

			for _, b := range []*CPUBackend{New(), NewWithConfig(parallel.Sequential())} {
				out := b.Conv2D(
					raw(t, inData, tt.n, tt.cIn, tt.h, tt.w),
					raw(t, kData, tt.cOut, tt.cIn/tt.grps, tt.k, tt.k),
					tt.stride, tt.pad, tt.grps,
				)
				require.Equal(t, tensor.Shape{tt.n, tt.cOut, hOut, wOut}, out.Shape())
				assert.InDeltaSlice(t, want, out.AsFloat32(), 1e-4)
			}
		})
	}
}

func TestConv2D_InvalidArguments(t *testing.T) {
	b := New()
	in := raw(t, seq(16), 1, 1, 4, 4)

	assert.Panics(t, func() { b.Conv2D(in, raw(t, seq(9), 1, 2, 3, 3), 1, 0, 1) }, "channel mismatch")
	assert.Panics(t, func() { b.Conv2D(in, raw(t, seq(25*4), 4, 1, 5, 5), 1, 0, 1) }, "kernel larger than input")
	assert.Panics(t, func() { b.Conv2D(in, raw(t, seq(9), 1, 1, 3, 3), 0, 0, 1) }, "zero stride")
	assert.Panics(t, func() { b.Conv2D(raw(t, seq(4), 2, 2), raw(t, seq(9), 1, 1, 3, 3), 1, 0, 1) }, "2D input")
}
