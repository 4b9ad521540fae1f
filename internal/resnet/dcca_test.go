package resnet

import (
	"strings"
	"testing"

	"github.com/dcan-ml/dcan/internal/backend/cpu"
	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDCCA(t *testing.T) (*DCCAModule[Backend], Backend) {
	t.Helper()
	backend := cpu.New()
	d := NewDCCAModule(16, 4, backend)
	require.NotEqual(t, d.FC0().Weight().Tensor().Data(), d.FC1().Weight().Tensor().Data())
	return d, backend
}

func TestDCCAModule_TrainingSplitsBatch(t *testing.T) {
	d, backend := newDCCA(t)
	x := tensor.Randn[float32](tensor.Shape{4, 16, 3, 3}, backend)

	train := d.Forward(x)
	d.SetTraining(false)
	eval := d.Forward(x)
	require.Equal(t, x.Shape(), train.Shape())

	// Source half goes through fc0, target half through fc1.
	for i := 0; i < 2; i++ {
		assert.NotEqual(t, row(eval, i), row(train, i), "source sample %d", i)
	}
	for i := 2; i < 4; i++ {
		assert.InDeltaSlice(t, row(eval, i), row(train, i), 1e-6, "target sample %d", i)
	}
}

func TestDCCAModule_OddBatchGivesTargetTheExtraSample(t *testing.T) {
	d, backend := newDCCA(t)
	x := tensor.Randn[float32](tensor.Shape{3, 16, 2, 2}, backend)

	train := d.Forward(x)
	d.SetTraining(false)
	eval := d.Forward(x)

	assert.NotEqual(t, row(eval, 0), row(train, 0))
	assert.InDeltaSlice(t, row(eval, 1), row(train, 1), 1e-6)
	assert.InDeltaSlice(t, row(eval, 2), row(train, 2), 1e-6)
}

func TestDCCAModule_SingleSampleUsesTargetBranch(t *testing.T) {
	d, backend := newDCCA(t)
	x := tensor.Randn[float32](tensor.Shape{1, 16, 2, 2}, backend)

	train := d.Forward(x)
	d.SetTraining(false)
	eval := d.Forward(x)

	assert.InDeltaSlice(t, eval.Data(), train.Data(), 1e-6)
}

func TestDCCAModule_EqualBranchesMatchEval(t *testing.T) {
	d, backend := newDCCA(t)
	sd := d.StateDict()
	sd["fc0.weight"] = sd["fc1.weight"].Clone()
	sd["fc0.bias"] = sd["fc1.bias"].Clone()
	require.NoError(t, d.LoadStateDict(sd))

	x := tensor.Randn[float32](tensor.Shape{4, 16, 2, 2}, backend)
	train := d.Forward(x)
	d.SetTraining(false)
	eval := d.Forward(x)

	assert.InDeltaSlice(t, eval.Data(), train.Data(), 1e-6)
}

func TestDCCAModule_StateDict(t *testing.T) {
	d, _ := newDCCA(t)
	sd := d.StateDict()

	assert.Len(t, sd, 6)
	assert.Equal(t, tensor.Shape{4, 16, 1, 1}, sd["fc0.weight"].Shape())
	assert.Equal(t, tensor.Shape{4, 16, 1, 1}, sd["fc1.weight"].Shape())
	assert.Equal(t, tensor.Shape{16, 4, 1, 1}, sd["fc2.weight"].Shape())
	assert.Equal(t, tensor.Shape{16}, sd["fc2.bias"].Shape())
}

func TestAttentionModule_GatesChannels(t *testing.T) {
	backend := cpu.New()
	a := NewAttentionModule(16, 4, backend)
	assert.Len(t, a.StateDict(), 4)

	x := tensor.Ones[float32](tensor.Shape{2, 16, 2, 2}, backend)
	out := a.Forward(x)
	require.Equal(t, x.Shape(), out.Shape())

	// Sigmoid gates lie in (0, 1) and are constant over each channel.
	data := out.Data()
	for c := 0; c < 16; c++ {
		g := data[c*4]
		assert.Greater(t, g, float32(0))
		assert.Less(t, g, float32(1))
		for k := 1; k < 4; k++ {
			assert.Equal(t, g, data[c*4+k])
		}
	}
	assert.Equal(t, row(out, 0), row(out, 1))
}

func TestNetwork_DCCATrainingDiffersOnSourceHalf(t *testing.T) {
	backend := cpu.New()
	model := newTiny(t, DCCABottleneck)
	x := images(2, backend)

	// Running statistics move during training; compare against a twin
	// that only differs in fc0.
	twin := newTiny(t, DCCABottleneck)
	require.NoError(t, twin.LoadStateDict(model.StateDict()))
	sd := twin.StateDict()
	for k := range sd {
		if prefix, ok := strings.CutSuffix(k, ".fc0.weight"); ok {
			require.NoError(t, sd[k].CopyFrom(sd[prefix+".fc1.weight"]))
		}
	}

	a := model.Forward(x)
	b := twin.Forward(x)
	assert.NotEqual(t, row(a, 0), row(b, 0))
}
