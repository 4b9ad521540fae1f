// Package nn implements the neural network modules the dcan networks are
// assembled from.
//
// This package provides building blocks for convolutional networks:
//   - Module interface: base interface for all NN components
//   - Parameter: named weights and buffers
//   - Conv2D, BatchNorm2D, Linear
//   - Pooling: MaxPool2D, AvgPool2D, AdaptiveAvgPool2D
//   - Activations: ReLU, Sigmoid
//   - Dropout
//   - Sequential: ordered, optionally named container
//
// Design follows PyTorch's nn.Module so that state dict keys line up with
// PyTorch checkpoints.
package nn

import (
	"github.com/dcan-ml/dcan/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	block := nn.NewSequential[B](
//	    nn.NewConv2D(3, 64, 7, 7, 2, 3, false, backend),
//	    nn.NewBatchNorm2D(64, backend),
//	    nn.NewReLU[B](),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all parameters of this module, buffers included.
	// Returns an empty slice for stateless modules.
	Parameters() []*Parameter[B]

	// StateDict returns the module state keyed the way PyTorch names it
	// ("weight", "0.bias", "bn1.running_mean", ...).
	// The returned tensors share memory with the module.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into the module.
	// Every key the module owns must be present with a matching shape and dtype.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Trainable is implemented by modules whose forward pass depends on the
// training mode (BatchNorm2D, Dropout, containers).
type Trainable interface {
	SetTraining(training bool)
	Training() bool
}

// SetTraining switches m to training or evaluation mode when it supports it.
func SetTraining(m any, training bool) {
	if t, ok := m.(Trainable); ok {
		t.SetTraining(training)
	}
}
