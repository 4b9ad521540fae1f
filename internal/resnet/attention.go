package resnet

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/nn"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// AttentionModule rescales channels by a learned gate:
//
//	gate = sigmoid(fc2(relu(fc1(avgpool(x)))))
//	out  = x * gate
//
// fc1 squeezes C channels to C/reduction, fc2 expands them back. Both are
// 1x1 convolutions with bias.
type AttentionModule[B tensor.Backend] struct {
	channels  int
	reduction int

	avgPool *nn.AdaptiveAvgPool2D[B]
	fc1     *nn.Conv2D[B]
	relu    *nn.ReLU[B]
	fc2     *nn.Conv2D[B]
	sigmoid *nn.Sigmoid[B]
}

// NewAttentionModule creates an attention gate over channels.
func NewAttentionModule[B tensor.Backend](channels, reduction int, backend B) *AttentionModule[B] {
	squeezed := channels / reduction
	if squeezed <= 0 {
		panic(fmt.Sprintf("attention: reduction %d leaves no channels out of %d", reduction, channels))
	}
	return &AttentionModule[B]{
		channels:  channels,
		reduction: reduction,
		avgPool:   nn.NewAdaptiveAvgPool2D[B](1, 1),
		fc1:       nn.NewConv2D(channels, squeezed, 1, 1, 1, 0, true, backend),
		relu:      nn.NewReLU[B](),
		fc2:       nn.NewConv2D(squeezed, channels, 1, 1, 1, 0, true, backend),
		sigmoid:   nn.NewSigmoid[B](),
	}
}

// Forward gates x channel-wise.
func (a *AttentionModule[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.Mul(excite(a.fc1.Forward(a.avgPool.Forward(x)), a.relu, a.fc2, a.sigmoid))
}

// excite turns squeezed descriptors [N, C/r, 1, 1] into a gate [N, C, 1, 1].
func excite[B tensor.Backend](s *tensor.Tensor[float32, B], relu *nn.ReLU[B], fc2 *nn.Conv2D[B], sigmoid *nn.Sigmoid[B]) *tensor.Tensor[float32, B] {
	return sigmoid.Forward(fc2.Forward(relu.Forward(s)))
}

// Parameters returns the squeeze and excitation weights.
func (a *AttentionModule[B]) Parameters() []*nn.Parameter[B] {
	return append(a.fc1.Parameters(), a.fc2.Parameters()...)
}

// FC1 returns the squeeze convolution.
func (a *AttentionModule[B]) FC1() *nn.Conv2D[B] { return a.fc1 }

// FC2 returns the excitation convolution.
func (a *AttentionModule[B]) FC2() *nn.Conv2D[B] { return a.fc2 }

// StateDict returns fc1.* and fc2.* entries.
func (a *AttentionModule[B]) StateDict() map[string]*tensor.RawTensor {
	return merge(
		nn.WithPrefix("fc1", a.fc1.StateDict()),
		nn.WithPrefix("fc2", a.fc2.StateDict()),
	)
}

// LoadStateDict loads fc1 and fc2.
func (a *AttentionModule[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadChildren(stateDict, map[string]nn.Module[B]{"fc1": a.fc1, "fc2": a.fc2})
}

// String returns a PyTorch-style description of the module.
func (a *AttentionModule[B]) String() string {
	return fmt.Sprintf("AttentionModule(\n  (fc1): %v\n  (fc2): %v\n)", a.fc1, a.fc2)
}

func merge(dicts ...map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for _, d := range dicts {
		for k, v := range d {
			out[k] = v
		}
	}
	return out
}

// loadChildren loads each named child from its sub-dictionary.
func loadChildren[B tensor.Backend](stateDict map[string]*tensor.RawTensor, children map[string]nn.Module[B]) error {
	for name, child := range children {
		if err := child.LoadStateDict(nn.SubDict(name, stateDict)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
