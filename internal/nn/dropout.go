package nn

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
	"gonum.org/v1/gonum/stat/distuv"
)

// Dropout zeroes elements with probability p during training and scales
// the survivors by 1/(1-p). In evaluation mode it is the identity.
type Dropout[B tensor.Backend] struct {
	p        float64
	training bool
}

// NewDropout creates a Dropout layer in training mode.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability %g outside [0, 1)", p))
	}
	return &Dropout[B]{p: p, training: true}
}

// Forward applies dropout.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	keep := distuv.Bernoulli{P: 1 - d.p}
	scale := float32(1 / (1 - d.p))
	mask := tensor.Zeros[float32](input.Shape(), input.Backend())
	data := mask.Data()
	for i := range data {
		data[i] = float32(keep.Rand()) * scale
	}
	return input.Mul(mask)
}

// P returns the drop probability.
func (d *Dropout[B]) P() float64 { return d.p }

// SetTraining enables (true) or disables (false) dropping.
func (d *Dropout[B]) SetTraining(training bool) { d.training = training }

// Training reports whether dropping is enabled.
func (d *Dropout[B]) Training() bool { return d.training }

// Parameters returns nil (Dropout has no parameters).
func (d *Dropout[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (d *Dropout[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (d *Dropout[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// String returns a PyTorch-style description of the layer.
func (d *Dropout[B]) String() string { return fmt.Sprintf("Dropout(p=%g)", d.p) }
