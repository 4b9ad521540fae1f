package resnet

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/nn"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// DCCAModule is domain-conditioned channel attention.
//
// It keeps two squeeze layers, fc0 for the source domain and fc1 for the
// target domain, followed by a shared excitation fc2. During training a
// batch of n samples is split at n/2: samples [0, n/2) are source and go
// through fc0, samples [n/2, n) are target and go through fc1. During
// evaluation every sample is treated as target.
type DCCAModule[B tensor.Backend] struct {
	channels  int
	reduction int
	training  bool

	avgPool *nn.AdaptiveAvgPool2D[B]
	fc0     *nn.Conv2D[B]
	fc1     *nn.Conv2D[B]
	relu    *nn.ReLU[B]
	fc2     *nn.Conv2D[B]
	sigmoid *nn.Sigmoid[B]
}

// NewDCCAModule creates a domain-conditioned gate over channels, in training mode.
func NewDCCAModule[B tensor.Backend](channels, reduction int, backend B) *DCCAModule[B] {
	squeezed := channels / reduction
	if squeezed <= 0 {
		panic(fmt.Sprintf("dcca: reduction %d leaves no channels out of %d", reduction, channels))
	}
	return &DCCAModule[B]{
		channels:  channels,
		reduction: reduction,
		training:  true,
		avgPool:   nn.NewAdaptiveAvgPool2D[B](1, 1),
		fc0:       nn.NewConv2D(channels, squeezed, 1, 1, 1, 0, true, backend),
		fc1:       nn.NewConv2D(channels, squeezed, 1, 1, 1, 0, true, backend),
		relu:      nn.NewReLU[B](),
		fc2:       nn.NewConv2D(squeezed, channels, 1, 1, 1, 0, true, backend),
		sigmoid:   nn.NewSigmoid[B](),
	}
}

// Forward gates x channel-wise, routing source and target samples through
// their own squeeze layer in training mode.
func (d *DCCAModule[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	pooled := d.avgPool.Forward(x)
	return x.Mul(excite(d.squeeze(pooled), d.relu, d.fc2, d.sigmoid))
}

func (d *DCCAModule[B]) squeeze(pooled *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	n := pooled.Shape()[0]
	half := n / 2
	if !d.training || half == 0 {
		return d.fc1.Forward(pooled)
	}

	src := d.fc0.Forward(pooled.Narrow(0, 0, half))
	trg := d.fc1.Forward(pooled.Narrow(0, half, n-half))
	return tensor.Cat([]*tensor.Tensor[float32, B]{src, trg}, 0)
}

// SetTraining switches between split (true) and target-only (false) routing.
func (d *DCCAModule[B]) SetTraining(training bool) {
	d.training = training
}

// Training reports whether the batch is split by domain.
func (d *DCCAModule[B]) Training() bool {
	return d.training
}

// Parameters returns fc0, fc1 and fc2 weights.
func (d *DCCAModule[B]) Parameters() []*nn.Parameter[B] {
	params := append(d.fc0.Parameters(), d.fc1.Parameters()...)
	return append(params, d.fc2.Parameters()...)
}

// FC0 returns the source-domain squeeze convolution.
func (d *DCCAModule[B]) FC0() *nn.Conv2D[B] { return d.fc0 }

// FC1 returns the target-domain squeeze convolution.
func (d *DCCAModule[B]) FC1() *nn.Conv2D[B] { return d.fc1 }

// FC2 returns the shared excitation convolution.
func (d *DCCAModule[B]) FC2() *nn.Conv2D[B] { return d.fc2 }

// StateDict returns fc0.*, fc1.* and fc2.* entries.
func (d *DCCAModule[B]) StateDict() map[string]*tensor.RawTensor {
	return merge(
		nn.WithPrefix("fc0", d.fc0.StateDict()),
		nn.WithPrefix("fc1", d.fc1.StateDict()),
		nn.WithPrefix("fc2", d.fc2.StateDict()),
	)
}

// LoadStateDict loads fc0, fc1 and fc2.
func (d *DCCAModule[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadChildren(stateDict, map[string]nn.Module[B]{"fc0": d.fc0, "fc1": d.fc1, "fc2": d.fc2})
}

// String returns a PyTorch-style description of the module.
func (d *DCCAModule[B]) String() string {
	return fmt.Sprintf("DCCAModule(\n  (fc0): %v\n  (fc1): %v\n  (fc2): %v\n)", d.fc0, d.fc1, d.fc2)
}
