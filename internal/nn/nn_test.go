package nn

import (
	"math"
	"testing"

	"github.com/dcan-ml/dcan/internal/backend/cpu"
	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *cpu.CPUBackend

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, b Backend) *tensor.Tensor[float32, Backend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return x
}

func TestConv2D_Creation(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(1, 6, 5, 5, 1, 0, true, backend)

	assert.Equal(t, 1, conv.InChannels())
	assert.Equal(t, 6, conv.OutChannels())
	assert.Equal(t, [2]int{5, 5}, conv.KernelSize())
	assert.Equal(t, tensor.Shape{6, 1, 5, 5}, conv.Weight().Tensor().Shape())
	assert.Equal(t, tensor.Shape{6}, conv.Bias().Tensor().Shape())
	assert.Len(t, conv.Parameters(), 2)
}

func TestConv2D_GroupedWeightShape(t *testing.T) {
	backend := cpu.New()

	conv := NewGroupedConv2D(8, 16, 3, 3, 1, 1, 4, false, backend)

	assert.Equal(t, tensor.Shape{16, 2, 3, 3}, conv.Weight().Tensor().Shape())
	assert.Nil(t, conv.Bias())
	assert.Len(t, conv.Parameters(), 1)
	assert.NotContains(t, conv.StateDict(), "bias")

	assert.Panics(t, func() { NewGroupedConv2D(6, 16, 3, 3, 1, 1, 4, false, backend) })
}

func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(3, 8, 7, 7, 2, 3, false, backend)
	output := conv.Forward(tensor.Zeros[float32](tensor.Shape{2, 3, 32, 32}, backend))

	assert.Equal(t, tensor.Shape{2, 8, 16, 16}, output.Shape())
}

func TestConv2D_ForwardValuesWithBias(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(1, 1, 2, 2, 1, 0, true, backend)
	copy(conv.Weight().Tensor().Data(), []float32{1, 0, 0, 1})
	conv.Bias().Tensor().Data()[0] = 10

	input := fromSlice(t, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3}, backend)

	output := conv.Forward(input)

	// Diagonal kernel: top-left + bottom-right of every 2x2 window.
	assert.Equal(t, []float32{16, 18, 22, 24}, output.Data())
}

func TestKaimingNormal_Statistics(t *testing.T) {
	backend := cpu.New()

	fanOut := 64 * 3 * 3
	w := KaimingNormal(fanOut, tensor.Shape{64, 32, 3, 3}, backend)

	var sum, sumSq float64
	data := w.Data()
	for _, v := range data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(data))
	std := math.Sqrt(sumSq/n - (sum/n)*(sum/n))

	assert.InDelta(t, 0, sum/n, 0.01)
	assert.InDelta(t, math.Sqrt(2/float64(fanOut)), std, 0.005)
}

func TestUniform_Bounds(t *testing.T) {
	backend := cpu.New()

	u := Uniform(0.25, tensor.Shape{1000}, backend)
	for _, v := range u.Data() {
		require.LessOrEqual(t, math.Abs(float64(v)), 0.25)
	}
}

func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(2, backend)
	bn.SetTraining(false)
	copy(bn.RunningMean().Tensor().Data(), []float32{1, -1})
	copy(bn.RunningVar().Tensor().Data(), []float32{4, 1})
	copy(bn.Weight().Tensor().Data(), []float32{2, 1})
	copy(bn.Bias().Tensor().Data(), []float32{0, 3})

	input := fromSlice(t, []float32{3, 5, -1, 1}, tensor.Shape{1, 2, 1, 2}, backend)
	output := bn.Forward(input).Data()

	// channel 0: (x-1)/2*2, channel 1: (x+1)/1 + 3
	assert.InDelta(t, 2.0, output[0], 1e-4)
	assert.InDelta(t, 4.0, output[1], 1e-4)
	assert.InDelta(t, 3.0, output[2], 1e-4)
	assert.InDelta(t, 5.0, output[3], 1e-4)
	assert.Equal(t, int64(0), bn.NumBatchesTracked())
}

func TestBatchNorm2D_TrainingUpdatesRunningStats(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(1, backend)
	input := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 1, 1, 2}, backend)

	output := bn.Forward(input).Data()

	// Batch mean 2.5, biased variance 1.25.
	invStd := 1 / math.Sqrt(1.25+DefaultBatchNormEps)
	assert.InDelta(t, -1.5*invStd, output[0], 1e-4)
	assert.InDelta(t, 1.5*invStd, output[3], 1e-4)

	// Running stats use the unbiased variance 5/3.
	assert.InDelta(t, 0.25, bn.RunningMean().Tensor().Data()[0], 1e-6)
	assert.InDelta(t, 0.9*1+0.1*5.0/3.0, bn.RunningVar().Tensor().Data()[0], 1e-6)
	assert.Equal(t, int64(1), bn.NumBatchesTracked())
}

func TestBatchNorm2D_TrainingRejectsSingleValue(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(3, backend)
	assert.Panics(t, func() {
		bn.Forward(tensor.Zeros[float32](tensor.Shape{1, 3, 1, 1}, backend))
	})
}

func TestBatchNorm2D_StateDictKeys(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(4, backend)
	sd := bn.StateDict()

	assert.ElementsMatch(t,
		[]string{"weight", "bias", "running_mean", "running_var", "num_batches_tracked"},
		keys(sd))
	assert.Equal(t, tensor.Int64, sd["num_batches_tracked"].DType())
	assert.Empty(t, sd["num_batches_tracked"].Shape())

	// Only gamma and beta are learned.
	trainable := 0
	for _, p := range bn.Parameters() {
		if p.Trainable() {
			trainable++
		}
	}
	assert.Equal(t, 2, trainable)
}

func TestBatchNorm2D_LoadWithoutStepCounter(t *testing.T) {
	backend := cpu.New()

	src := NewBatchNorm2D(2, backend)
	copy(src.RunningMean().Tensor().Data(), []float32{0.5, 0.25})
	sd := src.StateDict()
	delete(sd, "num_batches_tracked")

	dst := NewBatchNorm2D(2, backend)
	require.NoError(t, dst.LoadStateDict(sd))
	assert.Equal(t, []float32{0.5, 0.25}, dst.RunningMean().Tensor().Data())
}

func TestMaxPool2D_CeilMode(t *testing.T) {
	backend := cpu.New()

	input := tensor.Zeros[float32](tensor.Shape{1, 1, 112, 112}, backend)

	assert.Equal(t, tensor.Shape{1, 1, 56, 56}, NewMaxPool2D[Backend](3, 2, 0, true).Forward(input).Shape())
	assert.Equal(t, tensor.Shape{1, 1, 55, 55}, NewMaxPool2D[Backend](3, 2, 0, false).Forward(input).Shape())
}

func TestAvgPool2D_Forward(t *testing.T) {
	backend := cpu.New()

	input := fromSlice(t, []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, tensor.Shape{1, 1, 3, 3}, backend)

	output := NewAvgPool2D[Backend](2, 1).Forward(input)

	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{3, 4, 6, 7}, output.Data())
}

func TestAdaptiveAvgPool2D_GlobalAverage(t *testing.T) {
	backend := cpu.New()

	input := fromSlice(t, []float32{1, 2, 3, 4, 10, 20, 30, 40}, tensor.Shape{1, 2, 2, 2}, backend)
	output := NewAdaptiveAvgPool2D[Backend](1, 1).Forward(input)

	assert.Equal(t, tensor.Shape{1, 2, 1, 1}, output.Shape())
	assert.Equal(t, []float32{2.5, 25}, output.Data())
}

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()

	l := NewLinear(3, 2, backend)
	copy(l.Weight().Tensor().Data(), []float32{1, 0, 1, 0, 1, 0})
	copy(l.Bias().Tensor().Data(), []float32{0.5, -0.5})

	input := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	output := l.Forward(input)

	assert.Equal(t, tensor.Shape{2, 2}, output.Shape())
	assert.Equal(t, []float32{4.5, 1.5, 10.5, 4.5}, output.Data())
}

func TestActivations(t *testing.T) {
	backend := cpu.New()

	input := fromSlice(t, []float32{-2, 0, 3}, tensor.Shape{3}, backend)

	assert.Equal(t, []float32{0, 0, 3}, NewReLU[Backend]().Forward(input).Data())

	sig := NewSigmoid[Backend]().Forward(input).Data()
	assert.InDelta(t, 1/(1+math.Exp(2)), sig[0], 1e-6)
	assert.InDelta(t, 0.5, sig[1], 1e-6)
	assert.InDelta(t, 1/(1+math.Exp(-3)), sig[2], 1e-6)
}

func TestDropout(t *testing.T) {
	backend := cpu.New()

	d := NewDropout[Backend](0.5)
	input := tensor.Ones[float32](tensor.Shape{1000}, backend)

	out := d.Forward(input).Data()
	zeros := 0
	for _, v := range out {
		if v == 0 {
			zeros++
		} else {
			require.InDelta(t, 2.0, v, 1e-6)
		}
	}
	assert.InDelta(t, 500, zeros, 100)

	d.SetTraining(false)
	assert.Same(t, input, d.Forward(input))

	assert.Panics(t, func() { NewDropout[Backend](1) })
}

func TestSequential_NamedStateDict(t *testing.T) {
	backend := cpu.New()

	downsample := NewSequential[Backend](
		NewConv2D(4, 8, 1, 1, 2, 0, false, backend),
		NewBatchNorm2D(8, backend),
	)
	block := NewNamedSequential(
		Named[Backend]{Name: "conv1", Module: NewConv2D(4, 4, 3, 3, 1, 1, false, backend)},
		Named[Backend]{Name: "relu", Module: NewReLU[Backend]()},
		Named[Backend]{Name: "downsample", Module: downsample},
	)

	sd := block.StateDict()
	assert.Contains(t, sd, "conv1.weight")
	assert.Contains(t, sd, "downsample.0.weight")
	assert.Contains(t, sd, "downsample.1.running_mean")
	assert.Contains(t, sd, "downsample.1.num_batches_tracked")
	assert.Len(t, sd, 1+1+5)

	assert.Same(t, downsample, block.Child("downsample"))
	assert.Nil(t, block.Child("missing"))
	assert.Panics(t, func() { block.AddNamed("relu", NewReLU[Backend]()) })
}

func TestSequential_PropagatesTraining(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(2, backend)
	inner := NewSequential[Backend](bn)
	outer := NewSequential[Backend](inner, NewReLU[Backend]())

	outer.SetTraining(false)
	assert.False(t, bn.Training())
	assert.False(t, inner.Training())

	// Modules added later inherit the container mode.
	late := NewBatchNorm2D(2, backend)
	outer.Add(late)
	assert.False(t, late.Training())
}

func TestSequential_LoadStateDictRoundTrip(t *testing.T) {
	backend := cpu.New()

	build := func() *Sequential[Backend] {
		return NewSequential[Backend](
			NewConv2D(2, 3, 3, 3, 1, 1, true, backend),
			NewBatchNorm2D(3, backend),
		)
	}
	src, dst := build(), build()
	src.StateDict()["1.num_batches_tracked"].AsInt64()[0] = 7

	require.NoError(t, LoadStrict[Backend](dst, src.StateDict()))

	for k, v := range src.StateDict() {
		assert.Equal(t, v.Data(), dst.StateDict()[k].Data(), k)
	}
}

func TestLoadStrict_ReportsMismatch(t *testing.T) {
	backend := cpu.New()

	m := NewSequential[Backend](NewLinear(2, 2, backend))
	sd := m.StateDict()

	extra := map[string]*tensor.RawTensor{"0.weight": sd["0.weight"], "0.bias": sd["0.bias"], "1.weight": sd["0.weight"]}
	err := LoadStrict[Backend](m, extra)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected [1.weight]")

	missing := map[string]*tensor.RawTensor{"0.weight": sd["0.weight"]}
	err = LoadStrict[Backend](m, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing [0.bias]")
}

func TestLoadStateDict_ShapeMismatch(t *testing.T) {
	backend := cpu.New()

	l := NewLinear(2, 2, backend)
	other := NewLinear(3, 2, backend)

	err := l.LoadStateDict(other.StateDict())
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
	assert.Contains(t, err.Error(), "weight")
}

func TestCountParameters(t *testing.T) {
	backend := cpu.New()

	m := NewSequential[Backend](
		NewConv2D(3, 4, 3, 3, 1, 1, false, backend), // 108
		NewBatchNorm2D(4, backend),                  // 8 trainable
		NewLinear(4, 2, backend),                    // 10
	)

	assert.Equal(t, 126, CountParameters[Backend](m))
}

func keys(m map[string]*tensor.RawTensor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
