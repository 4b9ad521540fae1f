// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package resnet provides attention ResNets and DCCANet, their
// domain-conditioned variant for unsupervised domain adaptation.
//
// # Architectures
//
//   - attention_resnet50, attention_resnet101: bottleneck ResNets whose
//     blocks end in a squeeze-and-excitation gate, with a classifier.
//   - dcca_resnet50, dcca_resnet101: the same backbone with
//     domain-conditioned channel attention. In training mode the first
//     half of a batch is source domain and the second half target domain;
//     each half has its own squeeze layer. The network returns pooled
//     2048-d features.
//
// # Pretrained Weights
//
// Weights are SafeTensors files named by a settings registry (see
// DefaultRegistry and the DCAN_REGISTRY environment variable). A DCCANet is
// initialized by transplanting an AttentionResNet: shared tensors are
// copied and every source-domain squeeze layer starts as a copy of the
// target-domain one.
//
//	backend := cpu.New()
//	model, err := resnet.NewDCCAResNet50(ctx, backend, "imagenet")
//	if err != nil {
//	    return err
//	}
//	x, err := resnet.Normalize(images, model.Settings())
//	model.SetTraining(false)
//	features := model.Forward(x) // [N, 2048]
package resnet
