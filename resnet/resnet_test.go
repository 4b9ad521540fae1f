// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package resnet_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dcan-ml/dcan/backend/cpu"
	"github.com/dcan-ml/dcan/resnet"
	"github.com/dcan-ml/dcan/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig(block resnet.BlockKind) resnet.Config {
	return resnet.Config{
		Block:                block,
		Layers:               [4]int{1, 1, 1, 1},
		Groups:               2,
		Reduction:            4,
		Inplanes:             8,
		DownsampleKernelSize: 3,
		DownsamplePadding:    1,
		NumClasses:           5,
		Planes:               [4]int{4, 8, 16, 32},
		PoolSize:             1,
	}
}

func TestPublicAPI_TransplantAndInfer(t *testing.T) {
	backend := cpu.New()

	donor, err := resnet.New(smallConfig(resnet.AttentionBottleneck), backend)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "donor.safetensors")
	require.NoError(t, resnet.SaveWeights(donor, path, "small"))

	reloaded, err := resnet.New(smallConfig(resnet.AttentionBottleneck), backend)
	require.NoError(t, err)
	require.NoError(t, resnet.LoadWeights(context.Background(), reloaded, path, nil))

	model, err := resnet.New(smallConfig(resnet.DCCABottleneck), backend)
	require.NoError(t, err)
	report, err := resnet.Transplant(model, reloaded.StateDict(), model.Config().Layers, nil)
	require.NoError(t, err)
	assert.Len(t, report.Duplicated, 8)

	settings, err := resnet.DefaultRegistry().Lookup(resnet.ArchAttentionResNet50, resnet.DatasetImageNet)
	require.NoError(t, err)
	x, err := resnet.Normalize(tensor.Rand[float32](tensor.Shape{2, 3, 32, 32}, backend), settings)
	require.NoError(t, err)

	model.SetTraining(false)
	assert.Equal(t, tensor.Shape{2, 128}, model.Forward(x).Shape())
}

func TestPublicAPI_Errors(t *testing.T) {
	_, err := resnet.NewAttentionResNet50(context.Background(), cpu.New(), 10, resnet.DatasetImageNet)
	assert.ErrorIs(t, err, resnet.ErrNumClassesMismatch)

	c := smallConfig(resnet.AttentionBottleneck)
	c.Groups = 3
	_, err = resnet.New(c, cpu.New())
	assert.ErrorIs(t, err, resnet.ErrInvalidConfig)
}
