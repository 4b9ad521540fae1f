package nn

import (
	"fmt"
	"math"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// Linear is a fully connected layer: y = x @ W^T + b.
//
// Input shape:  [batch, in_features]
// Weight shape: [out_features, in_features]
// Output shape: [batch, out_features]
//
// Example:
//
//	classifier := nn.NewLinear(2048, 1000, backend)
//	logits := classifier.Forward(features) // [N, 1000]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int

	weight *Parameter[B]
	bias   *Parameter[B]

	backend B
}

// NewLinear creates a Linear layer with bias.
//
// Weights and bias are drawn from U(-1/sqrt(in_features), 1/sqrt(in_features)),
// PyTorch's default.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	bound := 1 / math.Sqrt(float64(inFeatures))
	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", Uniform(bound, tensor.Shape{outFeatures, inFeatures}, backend)),
		bias:        NewParameter("bias", Uniform(bound, tensor.Shape{outFeatures}, backend)),
		backend:     backend,
	}
}

// Forward computes x @ W^T + b.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("linear: expected input [batch, %d], got %v", l.inFeatures, shape))
	}
	output := input.MatMul(l.weight.Tensor().Transpose())
	return output.Add(l.bias.Tensor())
}

// Parameters returns weight and bias.
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}

// StateDict returns a map of parameter names to raw tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor().Raw(),
		"bias":   l.bias.Tensor().Raw(),
	}
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadTensor(stateDict, "weight", l.weight.Tensor().Raw()); err != nil {
		return err
	}
	return loadTensor(stateDict, "bias", l.bias.Tensor().Raw())
}

// String returns a PyTorch-style description of the layer.
func (l *Linear[B]) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=True)", l.inFeatures, l.outFeatures)
}
