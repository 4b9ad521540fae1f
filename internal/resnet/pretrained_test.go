package resnet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dcan-ml/dcan/internal/backend/cpu"
	"github.com/dcan-ml/dcan/internal/serialization"
	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyArch = "tiny_attention"

// tinyCheckpoint saves a random tiny AttentionResNet and returns it along
// with a registry pointing at the file relative to dir.
func tinyCheckpoint(t *testing.T, dir string) (*Network[Backend], Registry) {
	t.Helper()
	model := newTiny(t, AttentionBottleneck)
	require.NoError(t, SaveWeights(model, filepath.Join(dir, "tiny.safetensors"), tinyArch))

	reg := Registry{tinyArch: {"tiny": Settings{
		RestoreFrom: "tiny.safetensors",
		InputSpace:  "RGB",
		InputSize:   []int{3, 32, 32},
		InputRange:  []float64{0, 1},
		Mean:        []float64{0.5, 0.5, 0.5},
		Std:         []float64{0.25, 0.25, 0.25},
		NumClasses:  10,
	}}}
	return model, reg
}

func TestNewAttentionResNet_Pretrained(t *testing.T) {
	dir := t.TempDir()
	want, reg := tinyCheckpoint(t, dir)
	o := buildOptions([]Option{WithRegistry(reg), WithWeightsDir(dir), WithLogger(quietLogger())})

	got, err := newAttentionResNet(context.Background(), cpu.New(), tinyArch, tinyConfig(AttentionBottleneck), "tiny", o)
	require.NoError(t, err)

	require.NotNil(t, got.Settings())
	assert.Equal(t, 10, got.Settings().NumClasses)
	for k, v := range want.StateDict() {
		assert.Equal(t, v.Data(), got.StateDict()[k].Data(), k)
	}
}

func TestNewAttentionResNet_NumClassesMismatch(t *testing.T) {
	_, err := NewAttentionResNet50(context.Background(), cpu.New(), 10, DatasetImageNet)
	require.ErrorIs(t, err, ErrNumClassesMismatch)
	assert.Contains(t, err.Error(), "num_classes should be 1000, but is 10")

	_, err = NewAttentionResNet101(context.Background(), cpu.New(), 21, DatasetImageNet)
	assert.ErrorIs(t, err, ErrNumClassesMismatch)
}

func TestNewAttentionResNet_UnknownDataset(t *testing.T) {
	_, err := NewAttentionResNet50(context.Background(), cpu.New(), 1000, "cifar10")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestNewAttentionResNet_MissingWeights(t *testing.T) {
	dir := t.TempDir()
	_, reg := tinyCheckpoint(t, dir)
	o := buildOptions([]Option{WithRegistry(reg), WithWeightsDir(t.TempDir()), WithLogger(quietLogger())})

	_, err := newAttentionResNet(context.Background(), cpu.New(), tinyArch, tinyConfig(AttentionBottleneck), "tiny", o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read weights")
}

func TestNewAttentionResNet_RandomWithoutPretrained(t *testing.T) {
	o := buildOptions(nil)
	model, err := newAttentionResNet(context.Background(), cpu.New(), tinyArch, tinyConfig(AttentionBottleneck), "", o)
	require.NoError(t, err)
	assert.Nil(t, model.Settings())
}

func TestNewDCCAResNet_FromPretrainedDonor(t *testing.T) {
	dir := t.TempDir()
	donor, reg := tinyCheckpoint(t, dir)
	o := buildOptions([]Option{WithRegistry(reg), WithWeightsDir(dir), WithLogger(quietLogger())})
	ctx := context.Background()
	backend := cpu.New()

	model, err := newDCCAResNet(ctx, backend, tinyConfig(DCCABottleneck), func() (*Network[Backend], error) {
		return newAttentionResNet(ctx, backend, tinyArch, tinyConfig(AttentionBottleneck), "tiny", o)
	}, o)
	require.NoError(t, err)

	assert.Equal(t, "DCCANet", model.Name())
	require.NotNil(t, model.Settings())
	donorDict := donor.StateDict()
	got := model.StateDict()
	assert.Equal(t, donorDict["layer3.0.se_module.fc1.weight"].Data(), got["layer3.0.se_module.fc0.weight"].Data())
	assert.Equal(t, donorDict["layer0.conv1.weight"].Data(), got["layer0.conv1.weight"].Data())
}

func TestNewDCCAResNet_RandomDonorKeepsBranchesEqual(t *testing.T) {
	ctx := context.Background()
	backend := cpu.New()
	o := buildOptions([]Option{WithLogger(quietLogger())})

	model, err := newDCCAResNet(ctx, backend, tinyConfig(DCCABottleneck), func() (*Network[Backend], error) {
		return newAttentionResNet(ctx, backend, tinyArch, tinyConfig(AttentionBottleneck), "", o)
	}, o)
	require.NoError(t, err)
	assert.Nil(t, model.Settings())

	for i := 1; i <= 4; i++ {
		se := model.Block(i, 0).SEModule().(*DCCAModule[Backend])
		assert.Equal(t, se.FC1().Weight().Tensor().Data(), se.FC0().Weight().Tensor().Data())
	}
}

func TestNewDCCAResNet_DonorError(t *testing.T) {
	_, err := NewDCCAResNet50(context.Background(), cpu.New(), "cifar10", WithLogger(quietLogger()))
	require.ErrorIs(t, err, ErrUnknownDataset)
	assert.Contains(t, err.Error(), "donor")
}

func TestSaveLoadWeights(t *testing.T) {
	src := newTiny(t, DCCABottleneck)
	path := filepath.Join(t.TempDir(), "dcca.safetensors")
	require.NoError(t, SaveWeights(src, path, ArchDCCAResNet50))

	metadata, err := readMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, ArchDCCAResNet50, metadata["arch"])
	assert.Equal(t, "DCCANet", metadata["model"])
	assert.NotEmpty(t, metadata[serialization.ChecksumKey])

	dst := newTiny(t, DCCABottleneck)
	require.NoError(t, LoadWeights(context.Background(), dst, path, quietLogger()))
	assert.Equal(t, src.StateDict()["layer4.0.se_module.fc0.bias"].Data(), dst.StateDict()["layer4.0.se_module.fc0.bias"].Data())
}

func readMetadata(path string) (map[string]string, error) {
	r, err := serialization.NewSafeTensorsReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Metadata(), nil
}

func TestNormalize(t *testing.T) {
	backend := cpu.New()
	settings, err := DefaultRegistry().Lookup(ArchAttentionResNet50, DatasetImageNet)
	require.NoError(t, err)

	x := tensor.Ones[float32](tensor.Shape{1, 3, 2, 2}, backend)
	out, err := Normalize(x, settings)
	require.NoError(t, err)

	for c := 0; c < 3; c++ {
		want := float32((1 - settings.Mean[c]) / settings.Std[c])
		for h := 0; h < 2; h++ {
			for w := 0; w < 2; w++ {
				assert.InDelta(t, want, out.At(0, c, h, w), 1e-5)
			}
		}
	}

	_, err = Normalize(tensor.Ones[float32](tensor.Shape{1, 1, 2, 2}, backend), settings)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}
