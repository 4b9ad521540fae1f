// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network modules dcan networks are built from.
//
// # Overview
//
// Modules follow PyTorch's nn.Module so that state dict keys match
// PyTorch checkpoints converted to SafeTensors:
//   - Conv2D (grouped, optional bias), BatchNorm2D, Linear
//   - MaxPool2D (padding, ceil mode), AvgPool2D, AdaptiveAvgPool2D
//   - ReLU, Sigmoid, Dropout
//   - Sequential, with index or explicit child names
//
// # Basic Usage
//
//	backend := cpu.New()
//	stem := nn.NewNamedSequential(
//	    nn.Named[*cpu.Backend]{Name: "conv1", Module: nn.NewConv2D(3, 64, 7, 7, 2, 3, false, backend)},
//	    nn.Named[*cpu.Backend]{Name: "bn1", Module: nn.NewBatchNorm2D(64, backend)},
//	    nn.Named[*cpu.Backend]{Name: "relu1", Module: nn.NewReLU[*cpu.Backend]()},
//	)
//	stem.SetTraining(false)
//	out := stem.Forward(images)
//	weights := stem.StateDict() // "conv1.weight", "bn1.running_mean", ...
//
// # Training Mode
//
// Modules start in training mode. BatchNorm2D then normalizes with batch
// statistics and updates its running estimates; Dropout zeroes inputs.
// Containers propagate SetTraining to their children.
package nn
