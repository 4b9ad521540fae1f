package resnet

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dcan-ml/dcan/internal/nn"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// Network is an attention ResNet (with classifier) or a DCCANet (without),
// depending on Config.Block.
//
//	layer0   stem convolution(s) + 3x3/2 max pool (ceil mode)
//	layer1-4 bottleneck stages, strides 1, 2, 2, 2
//	avg_pool PoolSize x PoolSize average pool, stride 1
//	dropout  when Config.Dropout > 0
//	last_linear (AttentionBottleneck only)
//
// Example:
//
//	backend := cpu.New()
//	model, err := resnet.New(resnet.AttentionResNet50Config(1000), backend)
//	model.SetTraining(false)
//	logits := model.Forward(images) // [N, 1000]
type Network[B tensor.Backend] struct {
	config   Config
	training bool
	settings *Settings

	layer0     *nn.Sequential[B]
	layers     [4]*nn.Sequential[B]
	avgPool    *nn.AvgPool2D[B]
	dropout    *nn.Dropout[B] // nil when Config.Dropout == 0
	lastLinear *nn.Linear[B]  // nil for DCCABottleneck

	backend B
}

// New builds a randomly initialized network in training mode.
func New[B tensor.Backend](config Config, backend B) (*Network[B], error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	n := &Network[B]{
		config:   config,
		training: true,
		layer0:   newStem(config, backend),
		avgPool:  nn.NewAvgPool2D[B](config.PoolSize, 1),
		backend:  backend,
	}

	inplanes := config.Inplanes
	for i := range n.layers {
		stride, kernel, padding := 2, config.DownsampleKernelSize, config.DownsamplePadding
		if i == 0 {
			stride, kernel, padding = 1, 1, 0
		}
		n.layers[i], inplanes = makeLayer(config, inplanes, config.Planes[i], config.Layers[i], stride, kernel, padding, backend)
	}

	if config.Dropout > 0 {
		n.dropout = nn.NewDropout[B](config.Dropout)
	}
	if config.HasClassifier() {
		n.lastLinear = nn.NewLinear(config.Planes[3]*Expansion, config.NumClasses, backend)
	}
	return n, nil
}

// newStem builds layer0.
func newStem[B tensor.Backend](config Config, backend B) *nn.Sequential[B] {
	var children []nn.Named[B]
	if config.Input3x3 {
		children = []nn.Named[B]{
			{Name: "conv1", Module: nn.NewConv2D(3, 64, 3, 3, 2, 1, false, backend)},
			{Name: "bn1", Module: nn.NewBatchNorm2D(64, backend)},
			{Name: "relu1", Module: nn.NewReLU[B]()},
			{Name: "conv2", Module: nn.NewConv2D(64, 64, 3, 3, 1, 1, false, backend)},
			{Name: "bn2", Module: nn.NewBatchNorm2D(64, backend)},
			{Name: "relu2", Module: nn.NewReLU[B]()},
			{Name: "conv3", Module: nn.NewConv2D(64, config.Inplanes, 3, 3, 1, 1, false, backend)},
			{Name: "bn3", Module: nn.NewBatchNorm2D(config.Inplanes, backend)},
			{Name: "relu3", Module: nn.NewReLU[B]()},
		}
	} else {
		children = []nn.Named[B]{
			{Name: "conv1", Module: nn.NewConv2D(3, config.Inplanes, 7, 7, 2, 3, false, backend)},
			{Name: "bn1", Module: nn.NewBatchNorm2D(config.Inplanes, backend)},
			{Name: "relu1", Module: nn.NewReLU[B]()},
		}
	}
	// Ceil mode instead of padding 1 keeps Caffe-trained weights aligned.
	children = append(children, nn.Named[B]{Name: "pool", Module: nn.NewMaxPool2D[B](3, 2, 0, true)})
	return nn.NewNamedSequential(children...)
}

// makeLayer builds one stage and returns it with the stage's output width.
// Only the first block strides and projects the shortcut.
func makeLayer[B tensor.Backend](
	config Config,
	inplanes, planes, blocks, stride, downsampleKernel, downsamplePadding int,
	backend B,
) (*nn.Sequential[B], int) {
	out := planes * Expansion

	var downsample *nn.Sequential[B]
	if stride != 1 || inplanes != out {
		downsample = nn.NewSequential[B](
			nn.NewConv2D(inplanes, out, downsampleKernel, downsampleKernel, stride, downsamplePadding, false, backend),
			nn.NewBatchNorm2D(out, backend),
		)
	}

	layer := nn.NewSequential[B](
		NewBottleneck(config.Block, inplanes, planes, config.Groups, config.Reduction, stride, downsample, backend),
	)
	for i := 1; i < blocks; i++ {
		layer.Add(NewBottleneck[B](config.Block, out, planes, config.Groups, config.Reduction, 1, nil, backend))
	}
	return layer, out
}

// Features runs the stem and the four stages: [N, 3, H, W] -> [N, 2048, H/32, W/32].
func (n *Network[B]) Features(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != 3 {
		panic(fmt.Sprintf("resnet: expected input [N,3,H,W], got %v", shape))
	}
	x = n.layer0.Forward(x)
	for _, layer := range n.layers {
		x = layer.Forward(x)
	}
	return x
}

// Logits pools features and applies dropout and, when present, the classifier.
// Without a classifier the pooled [N, 2048] features are returned.
func (n *Network[B]) Logits(features *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := n.avgPool.Forward(features)
	if n.dropout != nil {
		x = n.dropout.Forward(x)
	}
	x = x.Flatten(1)
	if n.lastLinear != nil {
		x = n.lastLinear.Forward(x)
	}
	return x
}

// Forward is Logits(Features(x)).
func (n *Network[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return n.Logits(n.Features(x))
}

// children lists the stateful top-level modules under their state dict names.
func (n *Network[B]) children() []nn.Named[B] {
	c := []nn.Named[B]{{Name: "layer0", Module: n.layer0}}
	for i, layer := range n.layers {
		c = append(c, nn.Named[B]{Name: fmt.Sprintf("layer%d", i+1), Module: layer})
	}
	if n.dropout != nil {
		c = append(c, nn.Named[B]{Name: "dropout", Module: n.dropout})
	}
	if n.lastLinear != nil {
		c = append(c, nn.Named[B]{Name: "last_linear", Module: n.lastLinear})
	}
	return c
}

// SetTraining switches every BatchNorm, Dropout and DCCA module.
//
// In training mode DCCA modules treat the first half of each batch as
// source domain and the second half as target domain.
func (n *Network[B]) SetTraining(training bool) {
	n.training = training
	for _, c := range n.children() {
		nn.SetTraining(c.Module, training)
	}
}

// Training reports the network's mode.
func (n *Network[B]) Training() bool {
	return n.training
}

// Parameters returns all parameters, buffers included.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, c := range n.children() {
		params = append(params, c.Module.Parameters()...)
	}
	return params
}

// NumParameters returns the number of trainable scalars.
func (n *Network[B]) NumParameters() int {
	return nn.CountParameters[B](n)
}

// StateDict returns the network state with PyTorch key names.
// The returned tensors share memory with the network.
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, c := range n.children() {
		for k, v := range nn.WithPrefix(c.Name, c.Module.StateDict()) {
			stateDict[k] = v
		}
	}
	return stateDict
}

// featureAlias matches the feature.{i}. keys PyTorch DCCANet checkpoints
// carry next to layer{i}. for the same tensors.
var featureAlias = regexp.MustCompile(`^feature\.([0-4])\.`)

// canonicalKeys rewrites feature.{i}.* keys to layer{i}.*. When both forms
// are present the layer{i}.* entry wins.
func canonicalKeys(stateDict map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(stateDict))
	for k, v := range stateDict {
		if !featureAlias.MatchString(k) {
			out[k] = v
		}
	}
	for k, v := range stateDict {
		m := featureAlias.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		key := "layer" + m[1] + "." + strings.TrimPrefix(k, m[0])
		if _, ok := out[key]; !ok {
			out[key] = v
		}
	}
	return out
}

// LoadStateDict strictly loads stateDict: every key must belong to the
// network and every network key must be present, except BatchNorm step
// counters. feature.{i}.* aliases are accepted for layer{i}.*.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	stateDict = canonicalKeys(stateDict)
	if err := nn.CheckKeys(n.StateDict(), stateDict); err != nil {
		return err
	}
	for _, c := range n.children() {
		if err := c.Module.LoadStateDict(nn.SubDict(c.Name, stateDict)); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

// Config returns the network's configuration with defaults applied.
func (n *Network[B]) Config() Config {
	return n.config
}

// Settings returns the pretrained settings the weights came from, or nil.
func (n *Network[B]) Settings() *Settings {
	return n.settings
}

// SetSettings records the preprocessing the weights expect.
func (n *Network[B]) SetSettings(s *Settings) {
	n.settings = s
}

// Layer returns stage i (0 = stem, 1-4 = bottleneck stages).
func (n *Network[B]) Layer(i int) *nn.Sequential[B] {
	if i == 0 {
		return n.layer0
	}
	return n.layers[i-1]
}

// Block returns bottleneck j of stage i (1-4).
func (n *Network[B]) Block(i, j int) *Bottleneck[B] {
	return n.layers[i-1].Module(j).(*Bottleneck[B])
}

// Name returns "AttentionResNet" or "DCCANet".
func (n *Network[B]) Name() string {
	if n.config.HasClassifier() {
		return "AttentionResNet"
	}
	return "DCCANet"
}

// String returns an architecture summary.
func (n *Network[B]) String() string {
	c := n.config
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(block=%s, layers=%v, groups=%d, reduction=%d, inplanes=%d, input_3x3=%t)\n",
		n.Name(), c.Block, c.Layers, c.Groups, c.Reduction, c.Inplanes, c.Input3x3)

	if c.Input3x3 {
		fmt.Fprintf(&sb, "  layer0: 3x conv 3x3 (3 -> 64 -> 64 -> %d), stride 2, maxpool 3/2 ceil\n", c.Inplanes)
	} else {
		fmt.Fprintf(&sb, "  layer0: conv 7x7 (3 -> %d), stride 2, maxpool 3/2 ceil\n", c.Inplanes)
	}
	inplanes := c.Inplanes
	for i, layer := range n.layers {
		stride := 2
		if i == 0 {
			stride = 1
		}
		out := c.Planes[i] * Expansion
		fmt.Fprintf(&sb, "  layer%d: %d x %s, %d -> %d, stride %d\n",
			i+1, layer.Len(), c.Block, inplanes, out, stride)
		inplanes = out
	}
	fmt.Fprintf(&sb, "  avg_pool: %dx%d, stride 1\n", c.PoolSize, c.PoolSize)
	if n.dropout != nil {
		fmt.Fprintf(&sb, "  dropout: p=%g\n", c.Dropout)
	}
	if n.lastLinear != nil {
		fmt.Fprintf(&sb, "  last_linear: %d -> %d\n", n.lastLinear.InFeatures(), n.lastLinear.OutFeatures())
	}
	fmt.Fprintf(&sb, "  parameters: %d", n.NumParameters())
	return sb.String()
}
