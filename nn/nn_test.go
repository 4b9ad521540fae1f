// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/dcan-ml/dcan/backend/cpu"
	"github.com/dcan-ml/dcan/nn"
	"github.com/dcan-ml/dcan/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *cpu.Backend

// TestModuleInterface verifies that concrete types implement Module.
func TestModuleInterface(t *testing.T) {
	backend := cpu.New()

	tests := []struct {
		name   string
		module nn.Module[Backend]
		params int
	}{
		{"Conv2D", nn.NewConv2D(3, 8, 3, 3, 1, 1, true, backend), 3*8*9 + 8},
		{"GroupedConv2D", nn.NewGroupedConv2D(8, 8, 3, 3, 1, 1, 4, false, backend), 8 * 2 * 9},
		{"BatchNorm2D", nn.NewBatchNorm2D(8, backend), 16},
		{"Linear", nn.NewLinear(8, 4, backend), 36},
		{"MaxPool2D", nn.NewMaxPool2D[Backend](3, 2, 0, true), 0},
		{"AvgPool2D", nn.NewAvgPool2D[Backend](2, 1), 0},
		{"AdaptiveAvgPool2D", nn.NewAdaptiveAvgPool2D[Backend](1, 1), 0},
		{"ReLU", nn.NewReLU[Backend](), 0},
		{"Sigmoid", nn.NewSigmoid[Backend](), 0},
		{"Dropout", nn.NewDropout[Backend](0.5), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.params, nn.CountParameters(tt.module))
		})
	}
}

func TestNamedSequential(t *testing.T) {
	backend := cpu.New()
	block := nn.NewNamedSequential(
		nn.Named[Backend]{Name: "conv1", Module: nn.NewConv2D(3, 4, 3, 3, 1, 1, false, backend)},
		nn.Named[Backend]{Name: "bn1", Module: nn.NewBatchNorm2D(4, backend)},
		nn.Named[Backend]{Name: "relu1", Module: nn.NewReLU[Backend]()},
		nn.Named[Backend]{Name: "pool", Module: nn.NewMaxPool2D[Backend](3, 2, 0, true)},
	)
	nn.SetTraining(block, false)

	out := block.Forward(tensor.Randn[float32](tensor.Shape{1, 3, 8, 8}, backend))
	assert.Equal(t, tensor.Shape{1, 4, 4, 4}, out.Shape())

	sd := block.StateDict()
	assert.Contains(t, sd, "conv1.weight")
	assert.Contains(t, sd, "bn1.running_var")

	other := nn.NewSequential[Backend](nn.NewConv2D(3, 4, 3, 3, 1, 1, false, backend))
	err := nn.LoadStrict[Backend](other, sd)
	require.ErrorIs(t, err, nn.ErrKeyMismatch)
}
