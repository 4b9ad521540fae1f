package resnet

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dcan-ml/dcan/internal/serialization"
	"github.com/dcan-ml/dcan/internal/tensor"
)

// options configure pretrained construction.
type options struct {
	registry   Registry
	logger     *slog.Logger
	weightsDir string
}

// Option customizes the pretrained constructors.
type Option func(*options)

// WithRegistry replaces DefaultRegistry as the source of pretrained settings.
func WithRegistry(r Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger for loading progress. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWeightsDir resolves relative RestoreFrom paths against dir instead of
// the working directory.
func WithWeightsDir(dir string) Option {
	return func(o *options) { o.weightsDir = dir }
}

func buildOptions(opts []Option) *options {
	o := &options{registry: DefaultRegistry(), logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) resolve(path string) string {
	if o.weightsDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.weightsDir, path)
}

// NewAttentionResNet50 builds the 50-layer attention ResNet. When
// pretrained names a dataset ("imagenet"), numClasses must equal the
// settings' class count and weights are loaded from their RestoreFrom.
// An empty pretrained leaves the network randomly initialized.
func NewAttentionResNet50[B tensor.Backend](ctx context.Context, backend B, numClasses int, pretrained string, opts ...Option) (*Network[B], error) {
	return newAttentionResNet(ctx, backend, ArchAttentionResNet50, AttentionResNet50Config(numClasses), pretrained, buildOptions(opts))
}

// NewAttentionResNet101 is NewAttentionResNet50 with [3, 4, 23, 3] blocks.
func NewAttentionResNet101[B tensor.Backend](ctx context.Context, backend B, numClasses int, pretrained string, opts ...Option) (*Network[B], error) {
	return newAttentionResNet(ctx, backend, ArchAttentionResNet101, AttentionResNet101Config(numClasses), pretrained, buildOptions(opts))
}

func newAttentionResNet[B tensor.Backend](ctx context.Context, backend B, arch string, config Config, pretrained string, o *options) (*Network[B], error) {
	if pretrained == "" {
		return New(config, backend)
	}

	settings, err := o.registry.Lookup(arch, pretrained)
	if err != nil {
		return nil, err
	}
	if config.NumClasses != settings.NumClasses {
		return nil, fmt.Errorf("%w: num_classes should be %d, but is %d",
			ErrNumClassesMismatch, settings.NumClasses, config.NumClasses)
	}

	model, err := New(config, backend)
	if err != nil {
		return nil, err
	}
	if err := LoadWeights(ctx, model, o.resolve(settings.RestoreFrom), o.logger); err != nil {
		return nil, err
	}
	model.SetSettings(settings)
	return model, nil
}

// NewDCCAResNet50 builds the 50-layer DCCANet and initializes it from an
// AttentionResNet50 with 1000 classes and the same pretrained weights (see
// Transplant). With an empty pretrained the donor is randomly initialized,
// which still leaves fc0 and fc1 of every block equal.
func NewDCCAResNet50[B tensor.Backend](ctx context.Context, backend B, pretrained string, opts ...Option) (*Network[B], error) {
	o := buildOptions(opts)
	return newDCCAResNet(ctx, backend, DCCAResNet50Config(), func() (*Network[B], error) {
		return newAttentionResNet(ctx, backend, ArchAttentionResNet50, AttentionResNet50Config(1000), pretrained, o)
	}, o)
}

// NewDCCAResNet101 is NewDCCAResNet50 with [3, 4, 23, 3] blocks.
func NewDCCAResNet101[B tensor.Backend](ctx context.Context, backend B, pretrained string, opts ...Option) (*Network[B], error) {
	o := buildOptions(opts)
	return newDCCAResNet(ctx, backend, DCCAResNet101Config(), func() (*Network[B], error) {
		return newAttentionResNet(ctx, backend, ArchAttentionResNet101, AttentionResNet101Config(1000), pretrained, o)
	}, o)
}

func newDCCAResNet[B tensor.Backend](ctx context.Context, backend B, config Config, donor func() (*Network[B], error), o *options) (*Network[B], error) {
	d, err := donor()
	if err != nil {
		return nil, fmt.Errorf("donor: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := New(config, backend)
	if err != nil {
		return nil, err
	}

	if _, err := Transplant(model, d.StateDict(), config.Layers, o.logger); err != nil {
		return nil, err
	}
	model.SetSettings(d.Settings())
	return model, nil
}

// LoadWeights reads a SafeTensors checkpoint into model.
func LoadWeights[B tensor.Backend](ctx context.Context, model *Network[B], path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	stateDict, metadata, err := serialization.ReadSafeTensors(ctx, path, model.backend.Device())
	if err != nil {
		return fmt.Errorf("failed to read weights: %w", err)
	}
	if err := model.LoadStateDict(stateDict); err != nil {
		return fmt.Errorf("failed to load weights from %s: %w", path, err)
	}

	logger.Info("loaded weights",
		"model", model.Name(),
		"path", path,
		"tensors", len(stateDict),
		"checksum", metadata[serialization.ChecksumKey] != "",
		"elapsed", time.Since(start))
	return nil
}

// SaveWeights writes model's state dict to path, recording the
// architecture in the file metadata.
func SaveWeights[B tensor.Backend](model *Network[B], path, arch string) error {
	metadata := map[string]string{
		"format": "pt",
		"arch":   arch,
		"model":  model.Name(),
	}
	if err := serialization.WriteSafeTensors(path, model.StateDict(), metadata); err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}
	return nil
}
