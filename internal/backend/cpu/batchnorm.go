package cpu

import (
	"fmt"
	"math"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// BatchNorm2D normalizes each channel of an [N, C, H, W] input:
//
//	y = (x - mean[c]) / sqrt(variance[c] + eps) * gamma[c] + beta[c]
func (cpu *CPUBackend) BatchNorm2D(input, mean, variance, gamma, beta *tensor.RawTensor, eps float32) *tensor.RawTensor {
	requireFloat32("batchnorm2d", input, mean, variance, gamma, beta)
	require4D("batchnorm2d", input)

	shape := input.Shape()
	N, C, HW := shape[0], shape[1], shape[2]*shape[3]
	for _, p := range []*tensor.RawTensor{mean, variance, gamma, beta} {
		if !p.Shape().Equal(tensor.Shape{C}) {
			panic(fmt.Sprintf("batchnorm2d: statistics shape %v does not match %d channels", p.Shape(), C))
		}
	}

	// Fold the affine transform into one scale and shift per channel.
	scale := make([]float32, C)
	shift := make([]float32, C)
	m, v, g, b := mean.AsFloat32(), variance.AsFloat32(), gamma.AsFloat32(), beta.AsFloat32()
	for c := 0; c < C; c++ {
		scale[c] = g[c] / float32(math.Sqrt(float64(v[c]+eps)))
		shift[c] = b[c] - m[c]*scale[c]
	}

	output := cpu.newFloat32("batchnorm2d", shape)
	inData, outData := input.AsFloat32(), output.AsFloat32()
	parallel.For(N*C, func(nc int) {
		c := nc % C
		src := inData[nc*HW : (nc+1)*HW]
		dst := outData[nc*HW : (nc+1)*HW]
		for i, x := range src {
			dst[i] = x*scale[c] + shift[c]
		}
	}, cpu.workers)

	return output
}

// ChannelMoments returns the per-channel mean and biased variance of an
// [N, C, H, W] input. Accumulation runs in float64.
func (cpu *CPUBackend) ChannelMoments(input *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	requireFloat32("channel_moments", input)
	require4D("channel_moments", input)

	shape := input.Shape()
	N, C, HW := shape[0], shape[1], shape[2]*shape[3]
	count := float64(N * HW)

	mean = cpu.newFloat32("channel_moments", tensor.Shape{C})
	variance = cpu.newFloat32("channel_moments", tensor.Shape{C})
	inData, m, v := input.AsFloat32(), mean.AsFloat32(), variance.AsFloat32()

	parallel.For(C, func(c int) {
		var sum, sumSq float64
		for n := 0; n < N; n++ {
			for _, x := range inData[(n*C+c)*HW : (n*C+c+1)*HW] {
				sum += float64(x)
				sumSq += float64(x) * float64(x)
			}
		}
		mu := sum / count
		m[c] = float32(mu)
		v[c] = float32(math.Max(sumSq/count-mu*mu, 0))
	}, cpu.workers)

	return mean, variance
}
