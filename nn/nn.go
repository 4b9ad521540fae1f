// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/dcan-ml/dcan/internal/nn"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Trainable is implemented by modules that behave differently in training.
type Trainable = nn.Trainable

// SetTraining switches m to training or evaluation mode when it supports it.
func SetTraining(m any, training bool) {
	nn.SetTraining(m, training)
}

// Parameter represents a named weight or buffer.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// NewBuffer creates a non-trainable parameter, such as a running statistic.
func NewBuffer[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewBuffer(name, t)
}

// Layers

// Conv2D represents a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a 2D convolution with Kaiming-normal (fan_out) weights.
//
// Example:
//
//	conv := nn.NewConv2D(3, 64, 7, 7, 2, 3, false, backend) // 7x7, stride 2, padding 3
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// NewGroupedConv2D creates a 2D convolution split into groups.
func NewGroupedConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding, groups int,
	useBias bool,
	backend B,
) *Conv2D[B] {
	return nn.NewGroupedConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, groups, useBias, backend)
}

// BatchNorm2D normalizes each channel of an [N, C, H, W] input.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// NewBatchNorm2D creates a batch normalization layer with momentum 0.1 and eps 1e-5.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// Linear represents a fully connected layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with weights in U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// Pooling

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a max pooling layer. In ceil mode a partial window
// at the bottom or right edge produces an output.
func NewMaxPool2D[B tensor.Backend](kernelSize, stride, padding int, ceilMode bool) *MaxPool2D[B] {
	return nn.NewMaxPool2D[B](kernelSize, stride, padding, ceilMode)
}

// AvgPool2D represents a 2D average pooling layer.
type AvgPool2D[B tensor.Backend] = nn.AvgPool2D[B]

// NewAvgPool2D creates an average pooling layer without padding.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	return nn.NewAvgPool2D[B](kernelSize, stride)
}

// AdaptiveAvgPool2D averages to a fixed output size.
type AdaptiveAvgPool2D[B tensor.Backend] = nn.AdaptiveAvgPool2D[B]

// NewAdaptiveAvgPool2D creates an adaptive average pooling layer.
func NewAdaptiveAvgPool2D[B tensor.Backend](outH, outW int) *AdaptiveAvgPool2D[B] {
	return nn.NewAdaptiveAvgPool2D[B](outH, outW)
}

// Activations

// ReLU applies max(0, x).
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Sigmoid applies 1 / (1 + exp(-x)).
type Sigmoid[B tensor.Backend] = nn.Sigmoid[B]

// NewSigmoid creates a sigmoid activation.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] {
	return nn.NewSigmoid[B]()
}

// Dropout zeroes inputs with probability p during training.
type Dropout[B tensor.Backend] = nn.Dropout[B]

// NewDropout creates an inverted dropout layer.
func NewDropout[B tensor.Backend](p float64) *Dropout[B] {
	return nn.NewDropout[B](p)
}

// Containers

// Sequential runs child modules in order.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// Named pairs a child module with its state dict name.
type Named[B tensor.Backend] = nn.Named[B]

// NewSequential creates a container whose children are named "0", "1", ...
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// NewNamedSequential creates a container with explicit child names.
func NewNamedSequential[B tensor.Backend](children ...Named[B]) *Sequential[B] {
	return nn.NewNamedSequential(children...)
}

// State dicts

// ErrMissingKey is returned when a state dict lacks a key a module owns.
var ErrMissingKey = nn.ErrMissingKey

// ErrKeyMismatch is returned by strict loading when key sets differ.
var ErrKeyMismatch = nn.ErrKeyMismatch

// LoadStrict loads stateDict into m after checking that both key sets match.
func LoadStrict[B tensor.Backend](m Module[B], stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStrict(m, stateDict)
}

// CountParameters returns the number of trainable scalars in m.
func CountParameters[B tensor.Backend](m Module[B]) int {
	return nn.CountParameters(m)
}
