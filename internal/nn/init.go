package nn

import (
	"math"

	"github.com/dcan-ml/dcan/internal/tensor"
	"gonum.org/v1/gonum/stat/distuv"
)

// KaimingNormal draws weights from N(0, 2/fanOut), the He initialization
// in fan_out mode used for ReLU convolution stacks.
//
// For Conv2D, fanOut = out_channels * kernel_h * kernel_w.
func KaimingNormal[B tensor.Backend](fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(fanOut))}
	return sample(dist, shape, backend)
}

// Uniform draws weights from U(-bound, bound).
//
// Linear layers and biases use bound = 1/sqrt(fan_in).
func Uniform[B tensor.Backend](bound float64, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	dist := distuv.Uniform{Min: -bound, Max: bound}
	return sample(dist, shape, backend)
}

// Zeros creates a tensor filled with zeros.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}

type rander interface {
	Rand() float64
}

func sample[B tensor.Backend](dist rander, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32(dist.Rand())
	}
	return t
}
