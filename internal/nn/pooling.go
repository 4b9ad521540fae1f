package nn

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer.
//
// With ceilMode the output size rounds up, so a 112x112 input pooled with
// kernel 3 and stride 2 yields 56x56 instead of 55x55.
//
// Example:
//
//	pool := nn.NewMaxPool2D[B](3, 2, 0, true) // ResNet stem pool, Caffe-compatible
//	output := pool.Forward(input)
type MaxPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
	padding    int
	ceilMode   bool
}

// NewMaxPool2D creates a new MaxPool2D layer.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride, padding int, ceilMode bool) *MaxPool2D[B] {
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel=%d stride=%d padding=%d", kernelSize, stride, padding))
	}
	return &MaxPool2D[B]{kernelSize: kernelSize, stride: stride, padding: padding, ceilMode: ceilMode}
}

// Forward performs the forward pass.
func (m *MaxPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	b := input.Backend()
	return tensor.New[float32, B](b.MaxPool2D(input.Raw(), m.kernelSize, m.stride, m.padding, m.ceilMode), b)
}

// Parameters returns nil (MaxPool2D has no parameters).
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (m *MaxPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (m *MaxPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// String returns a PyTorch-style description of the layer.
func (m *MaxPool2D[B]) String() string {
	return fmt.Sprintf("MaxPool2d(kernel_size=%d, stride=%d, padding=%d, ceil_mode=%t)",
		m.kernelSize, m.stride, m.padding, m.ceilMode)
}

// AvgPool2D averages fixed-size windows without padding.
type AvgPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
}

// NewAvgPool2D creates a new AvgPool2D layer.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel=%d stride=%d", kernelSize, stride))
	}
	return &AvgPool2D[B]{kernelSize: kernelSize, stride: stride}
}

// Forward performs the forward pass.
func (a *AvgPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	b := input.Backend()
	return tensor.New[float32, B](b.AvgPool2D(input.Raw(), a.kernelSize, a.stride), b)
}

// KernelSize returns the pooling window size.
func (a *AvgPool2D[B]) KernelSize() int { return a.kernelSize }

// Parameters returns nil (AvgPool2D has no parameters).
func (a *AvgPool2D[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (a *AvgPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (a *AvgPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// String returns a PyTorch-style description of the layer.
func (a *AvgPool2D[B]) String() string {
	return fmt.Sprintf("AvgPool2d(kernel_size=%d, stride=%d)", a.kernelSize, a.stride)
}

// AdaptiveAvgPool2D averages the input down to a fixed spatial size,
// whatever the input resolution.
type AdaptiveAvgPool2D[B tensor.Backend] struct {
	outH, outW int
}

// NewAdaptiveAvgPool2D creates a new AdaptiveAvgPool2D layer.
func NewAdaptiveAvgPool2D[B tensor.Backend](outH, outW int) *AdaptiveAvgPool2D[B] {
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("adaptive_avgpool2d: invalid output size %dx%d", outH, outW))
	}
	return &AdaptiveAvgPool2D[B]{outH: outH, outW: outW}
}

// Forward performs the forward pass.
func (a *AdaptiveAvgPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	b := input.Backend()
	return tensor.New[float32, B](b.AdaptiveAvgPool2D(input.Raw(), a.outH, a.outW), b)
}

// Parameters returns nil (AdaptiveAvgPool2D has no parameters).
func (a *AdaptiveAvgPool2D[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (a *AdaptiveAvgPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (a *AdaptiveAvgPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// String returns a PyTorch-style description of the layer.
func (a *AdaptiveAvgPool2D[B]) String() string {
	return fmt.Sprintf("AdaptiveAvgPool2d(output_size=(%d, %d))", a.outH, a.outW)
}
