package resnet

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// Normalize maps images in settings.InputRange to the distribution the
// pretrained weights were trained on: (x - mean[c]) / std[c].
//
// x must be [N, C, H, W] with C = len(settings.Mean).
func Normalize[B tensor.Backend](x *tensor.Tensor[float32, B], settings *Settings) (*tensor.Tensor[float32, B], error) {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != len(settings.Mean) || len(settings.Std) != len(settings.Mean) {
		return nil, fmt.Errorf("%w: cannot normalize %v with %d means and %d stds",
			ErrInvalidSettings, shape, len(settings.Mean), len(settings.Std))
	}

	c := shape[1]
	mean := tensor.Zeros[float32](tensor.Shape{1, c, 1, 1}, x.Backend())
	std := tensor.Zeros[float32](tensor.Shape{1, c, 1, 1}, x.Backend())
	for i := 0; i < c; i++ {
		if settings.Std[i] <= 0 {
			return nil, fmt.Errorf("%w: std[%d] = %g", ErrInvalidSettings, i, settings.Std[i])
		}
		mean.Data()[i] = float32(settings.Mean[i])
		std.Data()[i] = float32(settings.Std[i])
	}
	return x.Sub(mean).Div(std), nil
}
