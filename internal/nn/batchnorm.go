package nn

import (
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// BatchNorm2D normalizes each channel of an [N, C, H, W] input.
//
// In training mode the batch statistics normalize the input and are
// folded into the running estimates:
//
//	running_mean = (1 - momentum) * running_mean + momentum * batch_mean
//	running_var  = (1 - momentum) * running_var  + momentum * batch_var * n/(n-1)
//
// where n = N*H*W. In evaluation mode the running estimates are used.
//
// State dict keys: weight, bias, running_mean, running_var,
// num_batches_tracked (int64 scalar).
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	eps         float32
	momentum    float32
	training    bool

	weight      *Parameter[B] // gamma, [C]
	bias        *Parameter[B] // beta, [C]
	runningMean *Parameter[B] // [C]
	runningVar  *Parameter[B] // [C]

	numBatchesTracked *tensor.RawTensor // int64, shape []

	backend B
}

// Default BatchNorm hyperparameters, matching PyTorch.
const (
	DefaultBatchNormEps      = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// NewBatchNorm2D creates a BatchNorm2D layer in training mode with
// gamma = 1, beta = 0, running_mean = 0 and running_var = 1.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}
	shape := tensor.Shape{numFeatures}
	return &BatchNorm2D[B]{
		numFeatures:       numFeatures,
		eps:               DefaultBatchNormEps,
		momentum:          DefaultBatchNormMomentum,
		training:          true,
		weight:            NewParameter("weight", Ones(shape, backend)),
		bias:              NewParameter("bias", Zeros(shape, backend)),
		runningMean:       NewBuffer("running_mean", Zeros(shape, backend)),
		runningVar:        NewBuffer("running_var", Ones(shape, backend)),
		numBatchesTracked: tensor.MustNewRaw(tensor.Shape{}, tensor.Int64, backend.Device()),
		backend:           backend,
	}
}

// Forward normalizes the input with batch or running statistics.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	gamma, beta := bn.weight.Tensor().Raw(), bn.bias.Tensor().Raw()
	if !bn.training {
		out := bn.backend.BatchNorm2D(input.Raw(), bn.runningMean.Tensor().Raw(), bn.runningVar.Tensor().Raw(), gamma, beta, bn.eps)
		return tensor.New[float32, B](out, bn.backend)
	}

	n := shape[0] * shape[2] * shape[3]
	if n <= 1 {
		panic(fmt.Sprintf("batchnorm2d: expected more than 1 value per channel when training, got input %v", shape))
	}

	mean, variance := bn.backend.ChannelMoments(input.Raw())
	out := bn.backend.BatchNorm2D(input.Raw(), mean, variance, gamma, beta, bn.eps)
	bn.updateRunningStats(mean.AsFloat32(), variance.AsFloat32(), n)
	return tensor.New[float32, B](out, bn.backend)
}

func (bn *BatchNorm2D[B]) updateRunningStats(mean, variance []float32, n int) {
	m := bn.momentum
	correction := float32(n) / float32(n-1)
	rm, rv := bn.runningMean.Tensor().Data(), bn.runningVar.Tensor().Data()
	for c := range rm {
		rm[c] = (1-m)*rm[c] + m*mean[c]
		rv[c] = (1-m)*rv[c] + m*variance[c]*correction
	}
	bn.numBatchesTracked.AsInt64()[0]++
}

// SetTraining switches between batch statistics (true) and running statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer uses batch statistics.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training
}

// Parameters returns gamma, beta and the running statistics.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias, bn.runningMean, bn.runningVar}
}

// Weight returns gamma.
func (bn *BatchNorm2D[B]) Weight() *Parameter[B] {
	return bn.weight
}

// Bias returns beta.
func (bn *BatchNorm2D[B]) Bias() *Parameter[B] {
	return bn.bias
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2D[B]) RunningMean() *Parameter[B] {
	return bn.runningMean
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2D[B]) RunningVar() *Parameter[B] {
	return bn.runningVar
}

// NumBatchesTracked returns how many training batches updated the running statistics.
func (bn *BatchNorm2D[B]) NumBatchesTracked() int64 {
	return bn.numBatchesTracked.AsInt64()[0]
}

// NumFeatures returns the number of channels.
func (bn *BatchNorm2D[B]) NumFeatures() int {
	return bn.numFeatures
}

// StateDict returns a map of parameter names to raw tensors.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":              bn.weight.Tensor().Raw(),
		"bias":                bn.bias.Tensor().Raw(),
		"running_mean":        bn.runningMean.Tensor().Raw(),
		"running_var":         bn.runningVar.Tensor().Raw(),
		"num_batches_tracked": bn.numBatchesTracked,
	}
}

// LoadStateDict loads parameters from a state dictionary.
//
// num_batches_tracked is optional: checkpoints written before PyTorch 0.4.1
// do not carry it, and the counter then stays unchanged.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, p := range bn.Parameters() {
		if err := loadTensor(stateDict, p.Name(), p.Tensor().Raw()); err != nil {
			return err
		}
	}
	if _, ok := stateDict["num_batches_tracked"]; ok {
		return loadTensor(stateDict, "num_batches_tracked", bn.numBatchesTracked)
	}
	return nil
}

// String returns a PyTorch-style description of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2d(%d, eps=%g, momentum=%g)", bn.numFeatures, bn.eps, bn.momentum)
}
