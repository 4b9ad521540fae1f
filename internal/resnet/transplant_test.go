package resnet

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestTransplant_DuplicatesFC1IntoFC0(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck)
	target := newTiny(t, DCCABottleneck)
	donorDict := donor.StateDict()

	report, err := Transplant(target, donorDict, target.Config().Layers, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"last_linear.bias", "last_linear.weight"}, report.Ignored)
	assert.Len(t, report.Copied, len(donorDict)-2)
	assert.Empty(t, report.Untouched)
	assert.Equal(t, []string{
		"layer1.0.se_module.fc0.bias", "layer1.0.se_module.fc0.weight",
		"layer2.0.se_module.fc0.bias", "layer2.0.se_module.fc0.weight",
		"layer3.0.se_module.fc0.bias", "layer3.0.se_module.fc0.weight",
		"layer4.0.se_module.fc0.bias", "layer4.0.se_module.fc0.weight",
	}, report.Duplicated)

	got := target.StateDict()
	for _, k := range report.Copied {
		assert.Equal(t, donorDict[k].Data(), got[k].Data(), k)
	}
	for i := 1; i <= 4; i++ {
		se := target.Block(i, 0).SEModule().(*DCCAModule[Backend])
		ref := donor.Block(i, 0).SEModule().(*AttentionModule[Backend])
		assert.Equal(t, ref.FC1().Weight().Tensor().Data(), se.FC0().Weight().Tensor().Data())
		assert.Equal(t, ref.FC1().Weight().Tensor().Data(), se.FC1().Weight().Tensor().Data())
		assert.Equal(t, ref.FC1().Bias().Tensor().Data(), se.FC0().Bias().Tensor().Data())
		assert.Equal(t, ref.FC2().Weight().Tensor().Data(), se.FC2().Weight().Tensor().Data())
	}
}

func TestTransplant_TargetMatchesDonorFeatures(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck)
	target := newTiny(t, DCCABottleneck)
	_, err := Transplant(target, donor.StateDict(), target.Config().Layers, quietLogger())
	require.NoError(t, err)

	donor.SetTraining(false)
	target.SetTraining(false)
	x := images(2, target.backend)

	// In eval both networks gate with fc1, so the target returns the
	// donor's pooled features.
	want := donor.avgPool.Forward(donor.Features(x)).Flatten(1)
	assert.InDeltaSlice(t, want.Data(), target.Forward(x).Data(), 1e-5)
}

func TestTransplant_KeepsTargetKeysMissingFromDonor(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck).StateDict()
	target := newTiny(t, DCCABottleneck)
	before := target.StateDict()["layer2.0.conv1.weight"].Clone()

	delete(donor, "layer2.0.conv1.weight")
	delete(donor, "layer0.bn1.num_batches_tracked")

	report, err := Transplant(target, donor, target.Config().Layers, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"layer0.bn1.num_batches_tracked", "layer2.0.conv1.weight"}, report.Untouched)
	assert.Equal(t, before.Data(), target.StateDict()["layer2.0.conv1.weight"].Data())
}

func TestTransplant_MissingDonorFC1(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck).StateDict()
	delete(donor, "layer3.0.se_module.fc1.bias")

	target := newTiny(t, DCCABottleneck)
	_, err := Transplant(target, donor, target.Config().Layers, quietLogger())
	require.ErrorIs(t, err, ErrMissingDonorKey)
	assert.Contains(t, err.Error(), "layer3.0.se_module.fc1.bias")
}

func TestTransplant_ShapeMismatch(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck).StateDict()
	donor["layer1.0.conv1.weight"] = tensor.MustNewRaw(tensor.Shape{4, 4, 3, 3}, tensor.Float32, tensor.CPU)

	target := newTiny(t, DCCABottleneck)
	_, err := Transplant(target, donor, target.Config().Layers, quietLogger())
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
	assert.Contains(t, err.Error(), "layer1: 0: conv1: weight")
}

func TestTransplant_RejectsFloat64Donor(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck).StateDict()
	for _, key := range []string{"layer0.conv1.weight", "layer3.0.se_module.fc1.weight"} {
		f64 := tensor.MustNewRaw(donor[key].Shape(), tensor.Float64, tensor.CPU)
		for i, v := range donor[key].AsFloat32() {
			f64.AsFloat64()[i] = float64(v)
		}
		donor[key] = f64
	}

	target := newTiny(t, DCCABottleneck)
	_, err := Transplant(target, donor, target.Config().Layers, quietLogger())
	require.ErrorIs(t, err, tensor.ErrDTypeMismatch)
	assert.Contains(t, err.Error(), "layer0")
}

func TestTransplant_RequiresDCCATarget(t *testing.T) {
	donor := newTiny(t, AttentionBottleneck)
	_, err := Transplant(newTiny(t, AttentionBottleneck), donor.StateDict(), [4]int{1, 1, 1, 1}, nil)
	assert.ErrorIs(t, err, ErrNotDomainConditioned)
}

func TestTransplant_Logs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	donor := newTiny(t, AttentionBottleneck).StateDict()
	delete(donor, "layer4.0.bn1.weight")
	target := newTiny(t, DCCABottleneck)
	_, err := Transplant(target, donor, target.Config().Layers, logger)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "msg=\"transplanted weights\"")
	assert.Contains(t, out, "duplicated=8")
	assert.Contains(t, out, "ignored=2")
	assert.Contains(t, out, "layer4.0.bn1.weight")
}
