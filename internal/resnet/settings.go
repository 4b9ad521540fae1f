package resnet

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// RegistryEnv names the environment variable pointing at a YAML registry
// that overrides or extends the built-in pretrained settings.
const RegistryEnv = "DCAN_REGISTRY"

// Architecture names used as registry keys.
const (
	ArchAttentionResNet50  = "attention_resnet50"
	ArchAttentionResNet101 = "attention_resnet101"
	ArchDCCAResNet50       = "dcca_resnet50"
	ArchDCCAResNet101      = "dcca_resnet101"
)

// DatasetImageNet is the only dataset with published weights.
const DatasetImageNet = "imagenet"

// Settings describe a set of pretrained weights and the input they expect.
type Settings struct {
	RestoreFrom string    `yaml:"restore_from"`
	InputSpace  string    `yaml:"input_space"`
	InputSize   []int     `yaml:"input_size,flow"`
	InputRange  []float64 `yaml:"input_range,flow"`
	Mean        []float64 `yaml:"mean,flow"`
	Std         []float64 `yaml:"std,flow"`
	NumClasses  int       `yaml:"num_classes"`
}

// Validate checks field shapes and ranges.
func (s *Settings) Validate() error {
	switch {
	case s.RestoreFrom == "":
		return fmt.Errorf("%w: restore_from is empty", ErrInvalidSettings)
	case len(s.InputSize) != 3:
		return fmt.Errorf("%w: input_size needs 3 values [C, H, W], got %v", ErrInvalidSettings, s.InputSize)
	case len(s.InputRange) != 2 || s.InputRange[0] >= s.InputRange[1]:
		return fmt.Errorf("%w: input_range must be [lo, hi], got %v", ErrInvalidSettings, s.InputRange)
	case len(s.Mean) != s.InputSize[0] || len(s.Std) != s.InputSize[0]:
		return fmt.Errorf("%w: mean and std need %d values, got %d and %d",
			ErrInvalidSettings, s.InputSize[0], len(s.Mean), len(s.Std))
	case s.NumClasses <= 0:
		return fmt.Errorf("%w: num_classes must be positive, got %d", ErrInvalidSettings, s.NumClasses)
	}
	for i, v := range s.Std {
		if v <= 0 {
			return fmt.Errorf("%w: std[%d] = %g must be positive", ErrInvalidSettings, i, v)
		}
	}
	for i, v := range s.InputSize {
		if v <= 0 {
			return fmt.Errorf("%w: input_size[%d] = %d must be positive", ErrInvalidSettings, i, v)
		}
	}
	return nil
}

// Registry maps architecture -> dataset -> settings.
type Registry map[string]map[string]Settings

func imagenetSettings(restoreFrom string) Settings {
	return Settings{
		RestoreFrom: restoreFrom,
		InputSpace:  "RGB",
		InputSize:   []int{3, 224, 224},
		InputRange:  []float64{0, 1},
		Mean:        []float64{0.485, 0.456, 0.406},
		Std:         []float64{0.229, 0.224, 0.225},
		NumClasses:  1000,
	}
}

// DefaultRegistry returns the built-in pretrained settings.
func DefaultRegistry() Registry {
	return Registry{
		ArchAttentionResNet50: {
			DatasetImageNet: imagenetSettings("pretrained_models/attention_resnet50_pretrained_imagenet.safetensors"),
		},
		ArchAttentionResNet101: {
			DatasetImageNet: imagenetSettings("pretrained_models/attention_resnet101_pretrained_imagenet.safetensors"),
		},
	}
}

// Lookup returns the settings for arch and dataset.
func (r Registry) Lookup(arch, dataset string) (*Settings, error) {
	datasets, ok := r[arch]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownArch, arch, slices.Sorted(maps.Keys(r)))
	}
	s, ok := datasets[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s (have %v)", ErrUnknownDataset, dataset, arch, slices.Sorted(maps.Keys(datasets)))
	}
	return &s, nil
}

// Merge returns a copy of r with the entries of other added or replaced.
func (r Registry) Merge(other Registry) Registry {
	out := make(Registry, len(r)+len(other))
	for arch, datasets := range r {
		out[arch] = maps.Clone(datasets)
	}
	for arch, datasets := range other {
		if out[arch] == nil {
			out[arch] = make(map[string]Settings, len(datasets))
		}
		maps.Copy(out[arch], datasets)
	}
	return out
}

// DecodeRegistry parses a YAML registry and validates every entry.
//
//	attention_resnet50:
//	  imagenet:
//	    restore_from: weights/attention_resnet50.safetensors
//	    input_space: RGB
//	    input_size: [3, 224, 224]
//	    input_range: [0, 1]
//	    mean: [0.485, 0.456, 0.406]
//	    std: [0.229, 0.224, 0.225]
//	    num_classes: 1000
//
// Only architectures with pretrained weights may appear as top-level keys;
// DCCA networks look up the settings of their attention donor.
func DecodeRegistry(r io.Reader) (Registry, error) {
	var reg Registry
	if err := yaml.NewDecoder(r).Decode(&reg); err != nil {
		if errors.Is(err, io.EOF) {
			return Registry{}, nil
		}
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	for _, arch := range slices.Sorted(maps.Keys(reg)) {
		if !slices.Contains(registryArchs, arch) {
			return nil, fmt.Errorf("%w: registry key %q (want one of %v)", ErrUnknownArch, arch, registryArchs)
		}
		for dataset, s := range reg[arch] {
			if err := s.Validate(); err != nil {
				return nil, fmt.Errorf("%s/%s: %w", arch, dataset, err)
			}
		}
	}
	return reg, nil
}

// registryArchs are the architectures that carry pretrained settings.
var registryArchs = []string{ArchAttentionResNet50, ArchAttentionResNet101}

// LoadRegistry reads a YAML registry from path and merges it over the defaults.
func LoadRegistry(path string) (Registry, error) {
	//nolint:gosec // G304: registry path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() {
		_ = f.Close() // Best effort close
	}()

	reg, err := DecodeRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return DefaultRegistry().Merge(reg), nil
}

// RegistryFromEnv returns LoadRegistry($DCAN_REGISTRY), or the defaults
// when the variable is unset.
func RegistryFromEnv() (Registry, error) {
	path := os.Getenv(RegistryEnv)
	if path == "" {
		return DefaultRegistry(), nil
	}
	return LoadRegistry(path)
}

// Encode writes r as YAML.
func (r Registry) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	return enc.Close()
}
