package resnet

import (
	"fmt"
	"strings"

	"github.com/dcan-ml/dcan/internal/nn"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// Bottleneck is a residual block with a channel attention gate.
//
// The stride sits on conv1 (Caffe layout) rather than on conv2:
//
//	out = relu(bn1(conv1(x)))        1x1, stride s
//	out = relu(bn2(conv2(out)))      3x3, padding 1, groups g
//	out = bn3(conv3(out))            1x1, planes -> planes*4
//	out = relu(se_module(out) + shortcut(x))
//
// shortcut is the downsample projection when present, x otherwise.
type Bottleneck[B tensor.Backend] struct {
	kind     BlockKind
	stride   int
	training bool

	conv1      *nn.Conv2D[B]
	bn1        *nn.BatchNorm2D[B]
	conv2      *nn.Conv2D[B]
	bn2        *nn.BatchNorm2D[B]
	conv3      *nn.Conv2D[B]
	bn3        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	seModule   nn.Module[B]
	downsample *nn.Sequential[B] // nil when the shortcut is the identity
}

// NewBottleneck creates a bottleneck taking inplanes channels to planes*Expansion.
// downsample may be nil.
func NewBottleneck[B tensor.Backend](
	kind BlockKind,
	inplanes, planes, groups, reduction, stride int,
	downsample *nn.Sequential[B],
	backend B,
) *Bottleneck[B] {
	out := planes * Expansion

	var se nn.Module[B]
	switch kind {
	case AttentionBottleneck:
		se = NewAttentionModule(out, reduction, backend)
	case DCCABottleneck:
		se = NewDCCAModule(out, reduction, backend)
	default:
		panic(fmt.Sprintf("bottleneck: unknown block kind %v", kind))
	}

	return &Bottleneck[B]{
		kind:       kind,
		stride:     stride,
		training:   true,
		conv1:      nn.NewConv2D(inplanes, planes, 1, 1, stride, 0, false, backend),
		bn1:        nn.NewBatchNorm2D(planes, backend),
		conv2:      nn.NewGroupedConv2D(planes, planes, 3, 3, 1, 1, groups, false, backend),
		bn2:        nn.NewBatchNorm2D(planes, backend),
		conv3:      nn.NewConv2D(planes, out, 1, 1, 1, 0, false, backend),
		bn3:        nn.NewBatchNorm2D(out, backend),
		relu:       nn.NewReLU[B](),
		seModule:   se,
		downsample: downsample,
	}
}

// Forward applies the block.
func (b *Bottleneck[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	residual := x

	out := b.relu.Forward(b.bn1.Forward(b.conv1.Forward(x)))
	out = b.relu.Forward(b.bn2.Forward(b.conv2.Forward(out)))
	out = b.bn3.Forward(b.conv3.Forward(out))

	if b.downsample != nil {
		residual = b.downsample.Forward(x)
	}

	out = b.seModule.Forward(out).Add(residual)
	return b.relu.Forward(out)
}

// children lists the stateful submodules under their state dict names.
func (b *Bottleneck[B]) children() []nn.Named[B] {
	c := []nn.Named[B]{
		{Name: "conv1", Module: b.conv1},
		{Name: "bn1", Module: b.bn1},
		{Name: "conv2", Module: b.conv2},
		{Name: "bn2", Module: b.bn2},
		{Name: "conv3", Module: b.conv3},
		{Name: "bn3", Module: b.bn3},
		{Name: "se_module", Module: b.seModule},
	}
	if b.downsample != nil {
		c = append(c, nn.Named[B]{Name: "downsample", Module: b.downsample})
	}
	return c
}

// SetTraining sets the mode of every normalization and attention layer.
func (b *Bottleneck[B]) SetTraining(training bool) {
	b.training = training
	for _, c := range b.children() {
		nn.SetTraining(c.Module, training)
	}
}

// Training reports the block's mode.
func (b *Bottleneck[B]) Training() bool {
	return b.training
}

// Parameters returns all parameters of the block.
func (b *Bottleneck[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, c := range b.children() {
		params = append(params, c.Module.Parameters()...)
	}
	return params
}

// SEModule returns the attention gate (*AttentionModule or *DCCAModule).
func (b *Bottleneck[B]) SEModule() nn.Module[B] {
	return b.seModule
}

// Downsample returns the shortcut projection, or nil.
func (b *Bottleneck[B]) Downsample() *nn.Sequential[B] {
	return b.downsample
}

// Stride returns the stride of conv1.
func (b *Bottleneck[B]) Stride() int {
	return b.stride
}

// StateDict returns the block state keyed by child name.
func (b *Bottleneck[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, c := range b.children() {
		for k, v := range nn.WithPrefix(c.Name, c.Module.StateDict()) {
			stateDict[k] = v
		}
	}
	return stateDict
}

// LoadStateDict loads every child.
func (b *Bottleneck[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, c := range b.children() {
		if err := c.Module.LoadStateDict(nn.SubDict(c.Name, stateDict)); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

// String returns a PyTorch-style description of the block.
func (b *Bottleneck[B]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(\n", b.kind)
	for _, c := range b.children() {
		fmt.Fprintf(&sb, "  (%s): %s\n", c.Name, strings.ReplaceAll(fmt.Sprint(c.Module), "\n", "\n  "))
	}
	sb.WriteString(")")
	return sb.String()
}
