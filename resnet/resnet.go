// Copyright 2025 DCAN Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package resnet

import (
	"context"
	"log/slog"

	"github.com/dcan-ml/dcan/internal/resnet"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// Network is an AttentionResNet or a DCCANet.
type Network[B tensor.Backend] = resnet.Network[B]

// Config declares a network.
type Config = resnet.Config

// BlockKind selects the attention module inside each bottleneck.
type BlockKind = resnet.BlockKind

// Block kinds.
const (
	AttentionBottleneck = resnet.AttentionBottleneck
	DCCABottleneck      = resnet.DCCABottleneck
)

// Expansion is the ratio of a bottleneck's output channels to its planes.
const Expansion = resnet.Expansion

// Modules

// Bottleneck is a residual block with an attention gate.
type Bottleneck[B tensor.Backend] = resnet.Bottleneck[B]

// AttentionModule is single-branch channel attention.
type AttentionModule[B tensor.Backend] = resnet.AttentionModule[B]

// DCCAModule is domain-conditioned channel attention.
type DCCAModule[B tensor.Backend] = resnet.DCCAModule[B]

// New builds a randomly initialized network in training mode.
func New[B tensor.Backend](config Config, backend B) (*Network[B], error) {
	return resnet.New(config, backend)
}

// AttentionResNet50Config returns the 50-layer attention ResNet.
func AttentionResNet50Config(numClasses int) Config {
	return resnet.AttentionResNet50Config(numClasses)
}

// AttentionResNet101Config returns the 101-layer attention ResNet.
func AttentionResNet101Config(numClasses int) Config {
	return resnet.AttentionResNet101Config(numClasses)
}

// DCCAResNet50Config returns the 50-layer DCCANet.
func DCCAResNet50Config() Config {
	return resnet.DCCAResNet50Config()
}

// DCCAResNet101Config returns the 101-layer DCCANet.
func DCCAResNet101Config() Config {
	return resnet.DCCAResNet101Config()
}

// Pretrained settings

// Settings describe a set of pretrained weights and the input they expect.
type Settings = resnet.Settings

// Registry maps architecture -> dataset -> settings.
type Registry = resnet.Registry

// Registry keys.
const (
	ArchAttentionResNet50  = resnet.ArchAttentionResNet50
	ArchAttentionResNet101 = resnet.ArchAttentionResNet101
	ArchDCCAResNet50       = resnet.ArchDCCAResNet50
	ArchDCCAResNet101      = resnet.ArchDCCAResNet101
	DatasetImageNet        = resnet.DatasetImageNet
	RegistryEnv            = resnet.RegistryEnv
)

// DefaultRegistry returns the built-in pretrained settings.
func DefaultRegistry() Registry {
	return resnet.DefaultRegistry()
}

// LoadRegistry reads a YAML registry and merges it over the defaults.
func LoadRegistry(path string) (Registry, error) {
	return resnet.LoadRegistry(path)
}

// RegistryFromEnv loads $DCAN_REGISTRY, or the defaults when unset.
func RegistryFromEnv() (Registry, error) {
	return resnet.RegistryFromEnv()
}

// Option customizes the pretrained constructors.
type Option = resnet.Option

// WithRegistry replaces DefaultRegistry as the source of pretrained settings.
func WithRegistry(r Registry) Option {
	return resnet.WithRegistry(r)
}

// WithLogger sets the logger for loading progress.
func WithLogger(l *slog.Logger) Option {
	return resnet.WithLogger(l)
}

// WithWeightsDir resolves relative weight paths against dir.
func WithWeightsDir(dir string) Option {
	return resnet.WithWeightsDir(dir)
}

// NewAttentionResNet50 builds the 50-layer attention ResNet, loading
// weights when pretrained names a dataset.
func NewAttentionResNet50[B tensor.Backend](ctx context.Context, backend B, numClasses int, pretrained string, opts ...Option) (*Network[B], error) {
	return resnet.NewAttentionResNet50(ctx, backend, numClasses, pretrained, opts...)
}

// NewAttentionResNet101 builds the 101-layer attention ResNet.
func NewAttentionResNet101[B tensor.Backend](ctx context.Context, backend B, numClasses int, pretrained string, opts ...Option) (*Network[B], error) {
	return resnet.NewAttentionResNet101(ctx, backend, numClasses, pretrained, opts...)
}

// NewDCCAResNet50 builds the 50-layer DCCANet from an AttentionResNet50 donor.
func NewDCCAResNet50[B tensor.Backend](ctx context.Context, backend B, pretrained string, opts ...Option) (*Network[B], error) {
	return resnet.NewDCCAResNet50(ctx, backend, pretrained, opts...)
}

// NewDCCAResNet101 builds the 101-layer DCCANet from an AttentionResNet101 donor.
func NewDCCAResNet101[B tensor.Backend](ctx context.Context, backend B, pretrained string, opts ...Option) (*Network[B], error) {
	return resnet.NewDCCAResNet101(ctx, backend, pretrained, opts...)
}

// Weights

// TransplantReport lists what Transplant did with each key.
type TransplantReport = resnet.TransplantReport

// Transplant initializes a DCCANet from a donor state dict.
func Transplant[B tensor.Backend](target *Network[B], donor map[string]*tensor.RawTensor, layers [4]int, logger *slog.Logger) (*TransplantReport, error) {
	return resnet.Transplant(target, donor, layers, logger)
}

// LoadWeights reads a SafeTensors checkpoint into model.
func LoadWeights[B tensor.Backend](ctx context.Context, model *Network[B], path string, logger *slog.Logger) error {
	return resnet.LoadWeights(ctx, model, path, logger)
}

// SaveWeights writes model's state dict to a SafeTensors file.
func SaveWeights[B tensor.Backend](model *Network[B], path, arch string) error {
	return resnet.SaveWeights(model, path, arch)
}

// Normalize maps images to the distribution the weights were trained on.
func Normalize[B tensor.Backend](x *tensor.Tensor[float32, B], settings *Settings) (*tensor.Tensor[float32, B], error) {
	return resnet.Normalize(x, settings)
}

// Errors
var (
	ErrInvalidConfig        = resnet.ErrInvalidConfig
	ErrUnknownArch          = resnet.ErrUnknownArch
	ErrUnknownDataset       = resnet.ErrUnknownDataset
	ErrNumClassesMismatch   = resnet.ErrNumClassesMismatch
	ErrMissingDonorKey      = resnet.ErrMissingDonorKey
	ErrInvalidSettings      = resnet.ErrInvalidSettings
	ErrNotDomainConditioned = resnet.ErrNotDomainConditioned
)
