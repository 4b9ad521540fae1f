package nn

import (
	"fmt"
	"math"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// Conv2D is a 2D convolutional layer with optional grouping and bias.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/groups, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Example:
//
//	// ResNet stem: 3 -> 64 channels, 7x7 kernel, stride 2, padding 3
//	conv := nn.NewConv2D(3, 64, 7, 7, 2, 3, false, backend)
//	output := conv.Forward(input) // [N, 64, 112, 112] for 224x224 input
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	stride      int
	padding     int
	groups      int

	weight *Parameter[B] // [out_channels, in_channels/groups, kernel_h, kernel_w]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv2D creates an ungrouped convolution. See NewGroupedConv2D.
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return NewGroupedConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, 1, useBias, backend)
}

// NewGroupedConv2D creates a convolution whose channels are split into
// groups that are convolved independently.
//
// Initialization:
//   - Weights: Kaiming normal, fan_out mode
//   - Bias: U(-1/sqrt(fan_in), 1/sqrt(fan_in))
func NewGroupedConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding, groups int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelH <= 0 || kernelW <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size h=%d, w=%d", kernelH, kernelW))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}
	if groups <= 0 || inChannels%groups != 0 || outChannels%groups != 0 {
		panic(fmt.Sprintf("conv2d: channels in=%d, out=%d not divisible by groups=%d", inChannels, outChannels, groups))
	}

	weightShape := tensor.Shape{outChannels, inChannels / groups, kernelH, kernelW}
	fanIn := inChannels / groups * kernelH * kernelW
	fanOut := outChannels / groups * kernelH * kernelW
	weight := NewParameter("weight", KaimingNormal(fanOut, weightShape, backend))

	var bias *Parameter[B]
	if useBias {
		bound := 1 / math.Sqrt(float64(fanIn))
		bias = NewParameter("bias", Uniform(bound, tensor.Shape{outChannels}, backend))
	}

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  [2]int{kernelH, kernelW},
		stride:      stride,
		padding:     padding,
		groups:      groups,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward performs the forward pass.
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	outputRaw := c.backend.Conv2D(input.Raw(), c.weight.Tensor().Raw(), c.stride, c.padding, c.groups)
	output := tensor.New[float32, B](outputRaw, c.backend)

	if c.bias != nil {
		// [out_channels] -> [1, out_channels, 1, 1] for broadcasting.
		output = output.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
	}
	return output
}

// Parameters returns the weight and, when present, the bias.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// Weight returns the weight parameter.
func (c *Conv2D[B]) Weight() *Parameter[B] {
	return c.weight
}

// Bias returns the bias parameter (nil if no bias).
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.inChannels
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.outChannels
}

// KernelSize returns the kernel dimensions [height, width].
func (c *Conv2D[B]) KernelSize() [2]int {
	return c.kernelSize
}

// Stride returns the convolution stride.
func (c *Conv2D[B]) Stride() int {
	return c.stride
}

// Padding returns the zero padding.
func (c *Conv2D[B]) Padding() int {
	return c.padding
}

// Groups returns the number of channel groups.
func (c *Conv2D[B]) Groups() int {
	return c.groups
}

// StateDict returns a map of parameter names to raw tensors.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := map[string]*tensor.RawTensor{"weight": c.weight.Tensor().Raw()}
	if c.bias != nil {
		stateDict["bias"] = c.bias.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(stateDict, "weight", c.weight.Tensor().Raw()); err != nil {
		return err
	}
	if c.bias != nil {
		return loadTensor(stateDict, "bias", c.bias.Tensor().Raw())
	}
	return nil
}

// String returns a PyTorch-style description of the layer.
func (c *Conv2D[B]) String() string {
	s := fmt.Sprintf("Conv2d(%d, %d, kernel_size=(%d, %d), stride=(%d, %d)",
		c.inChannels, c.outChannels, c.kernelSize[0], c.kernelSize[1], c.stride, c.stride)
	if c.padding > 0 {
		s += fmt.Sprintf(", padding=(%d, %d)", c.padding, c.padding)
	}
	if c.groups > 1 {
		s += fmt.Sprintf(", groups=%d", c.groups)
	}
	if c.bias == nil {
		s += ", bias=False"
	}
	return s + ")"
}
