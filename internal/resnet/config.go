// Package resnet builds attention ResNets and their domain-conditioned
// variant, and transplants pretrained weights between them.
//
// Two networks share one skeleton:
//   - AttentionResNet: bottlenecks gated by channel attention, with a
//     linear classifier on top.
//   - DCCANet: bottlenecks gated by domain-conditioned channel attention,
//     which routes the first half of a training batch (source domain) and
//     the second half (target domain) through separate squeeze layers.
//     It has no classifier and returns pooled features.
//
// State dict keys follow the PyTorch modules they mirror, so checkpoints
// converted to SafeTensors load without renaming:
//
//	layer0.conv1.weight
//	layer1.0.se_module.fc1.weight
//	layer2.0.downsample.1.running_mean
//	last_linear.bias
package resnet

import (
	"fmt"
)

// Expansion is the ratio of a bottleneck's output channels to its planes.
const Expansion = 4

// BlockKind selects the attention module inside each bottleneck.
type BlockKind int

// Supported bottleneck kinds.
const (
	// AttentionBottleneck gates with a single squeeze-excitation branch.
	AttentionBottleneck BlockKind = iota
	// DCCABottleneck gates with per-domain squeeze layers and a shared excitation.
	DCCABottleneck
)

// String returns the block name.
func (k BlockKind) String() string {
	switch k {
	case AttentionBottleneck:
		return "AttentionBottleneck"
	case DCCABottleneck:
		return "DCCABottleneck"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// DefaultPlanes are the bottleneck widths of the four ResNet stages.
var DefaultPlanes = [4]int{64, 128, 256, 512}

// DefaultPoolSize is the final average pool window for 224x224 inputs.
const DefaultPoolSize = 7

// Config declares a network.
type Config struct {
	Block     BlockKind
	Layers    [4]int // Bottlenecks per stage
	Groups    int    // Groups of every 3x3 bottleneck convolution
	Reduction int    // Channel reduction of the attention squeeze
	Dropout   float64

	// Inplanes is the stem's output width.
	Inplanes int
	// Input3x3 replaces the 7x7 stem convolution with three 3x3 convolutions.
	Input3x3 bool

	// DownsampleKernelSize and DownsamplePadding configure the shortcut
	// projection of stages 2-4. Stage 1 always uses a 1x1 projection.
	DownsampleKernelSize int
	DownsamplePadding    int

	// NumClasses sizes the classifier. Ignored by DCCABottleneck networks.
	NumClasses int

	// Planes are the stage widths, DefaultPlanes unless set.
	Planes [4]int
	// PoolSize is the final average pool window, DefaultPoolSize unless set.
	PoolSize int
}

// withDefaults fills the zero-valued Go-side extensions.
func (c Config) withDefaults() Config {
	if c.Planes == [4]int{} {
		c.Planes = DefaultPlanes
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	return c
}

// HasClassifier reports whether the network ends in a linear classifier.
func (c Config) HasClassifier() bool {
	return c.Block == AttentionBottleneck
}

// FeatureDim is the width of the pooled feature vector.
func (c Config) FeatureDim() int {
	return c.withDefaults().Planes[3] * Expansion
}

// Validate reports the first inconsistency in c.
func (c Config) Validate() error {
	c = c.withDefaults()

	if c.Block != AttentionBottleneck && c.Block != DCCABottleneck {
		return fmt.Errorf("%w: unknown block kind %v", ErrInvalidConfig, c.Block)
	}
	for i, n := range c.Layers {
		if n <= 0 {
			return fmt.Errorf("%w: layer%d has %d blocks", ErrInvalidConfig, i+1, n)
		}
	}
	if c.Groups <= 0 {
		return fmt.Errorf("%w: groups must be positive, got %d", ErrInvalidConfig, c.Groups)
	}
	if c.Reduction <= 0 {
		return fmt.Errorf("%w: reduction must be positive, got %d", ErrInvalidConfig, c.Reduction)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %g outside [0, 1)", ErrInvalidConfig, c.Dropout)
	}
	if c.Inplanes <= 0 {
		return fmt.Errorf("%w: inplanes must be positive, got %d", ErrInvalidConfig, c.Inplanes)
	}
	if c.DownsampleKernelSize <= 0 || c.DownsamplePadding < 0 {
		return fmt.Errorf("%w: downsample kernel %d padding %d", ErrInvalidConfig,
			c.DownsampleKernelSize, c.DownsamplePadding)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("%w: pool size must be positive, got %d", ErrInvalidConfig, c.PoolSize)
	}
	for i, p := range c.Planes {
		if p <= 0 {
			return fmt.Errorf("%w: layer%d planes must be positive, got %d", ErrInvalidConfig, i+1, p)
		}
		if p%c.Groups != 0 {
			return fmt.Errorf("%w: layer%d planes %d not divisible by groups %d", ErrInvalidConfig, i+1, p, c.Groups)
		}
		if p*Expansion/c.Reduction == 0 {
			return fmt.Errorf("%w: reduction %d leaves no attention channels for layer%d width %d",
				ErrInvalidConfig, c.Reduction, i+1, p*Expansion)
		}
	}
	if c.HasClassifier() && c.NumClasses <= 0 {
		return fmt.Errorf("%w: num_classes must be positive, got %d", ErrInvalidConfig, c.NumClasses)
	}
	return nil
}

// Canonical block counts.
var (
	layers50  = [4]int{3, 4, 6, 3}
	layers101 = [4]int{3, 4, 23, 3}
)

func presetConfig(block BlockKind, layers [4]int, numClasses int) Config {
	return Config{
		Block:                block,
		Layers:               layers,
		Groups:               1,
		Reduction:            16,
		Inplanes:             64,
		DownsampleKernelSize: 1,
		DownsamplePadding:    0,
		NumClasses:           numClasses,
		Planes:               DefaultPlanes,
		PoolSize:             DefaultPoolSize,
	}
}

// AttentionResNet50Config returns the 50-layer attention ResNet.
func AttentionResNet50Config(numClasses int) Config {
	return presetConfig(AttentionBottleneck, layers50, numClasses)
}

// AttentionResNet101Config returns the 101-layer attention ResNet.
func AttentionResNet101Config(numClasses int) Config {
	return presetConfig(AttentionBottleneck, layers101, numClasses)
}

// DCCAResNet50Config returns the 50-layer domain-conditioned network.
func DCCAResNet50Config() Config {
	return presetConfig(DCCABottleneck, layers50, 0)
}

// DCCAResNet101Config returns the 101-layer domain-conditioned network.
func DCCAResNet101Config() Config {
	return presetConfig(DCCABottleneck, layers101, 0)
}
