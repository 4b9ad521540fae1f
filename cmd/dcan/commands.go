package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"

	"github.com/dcan-ml/dcan/backend/cpu"
	"github.com/dcan-ml/dcan/internal/serialization"
	"github.com/dcan-ml/dcan/resnet"
	"github.com/dcan-ml/dcan/tensor"
	"github.com/spf13/cobra"
)

var errInvalidArgs = errors.New("invalid arguments")

// pretrainedInputSize is the input width the pretrained presets pool for.
const pretrainedInputSize = 224

// Model is the network type every command works with.
type Model = resnet.Network[*cpu.Backend]

// globals carries the persistent flags and what they resolve to.
type globals struct {
	verbose      bool
	registryPath string
	workers      int

	logger   *slog.Logger
	registry resnet.Registry
	backend  *cpu.Backend
}

// archConfig returns the preset for arch.
func archConfig(arch string, numClasses int) (resnet.Config, error) {
	switch arch {
	case resnet.ArchAttentionResNet50:
		return resnet.AttentionResNet50Config(numClasses), nil
	case resnet.ArchAttentionResNet101:
		return resnet.AttentionResNet101Config(numClasses), nil
	case resnet.ArchDCCAResNet50:
		return resnet.DCCAResNet50Config(), nil
	case resnet.ArchDCCAResNet101:
		return resnet.DCCAResNet101Config(), nil
	default:
		return resnet.Config{}, fmt.Errorf("%w: %q (have %v)", resnet.ErrUnknownArch, arch, archNames())
	}
}

func archNames() []string {
	return []string{
		resnet.ArchAttentionResNet50,
		resnet.ArchAttentionResNet101,
		resnet.ArchDCCAResNet50,
		resnet.ArchDCCAResNet101,
	}
}

// newRootCommand creates the dcan command tree.
//
// Commands provided:
//   - dcan version
//   - dcan settings
//   - dcan summary --arch <name> [--classes N]
//   - dcan export --arch <name> --out <file> [--classes N]
//   - dcan transplant --arch <dcca arch> --donor <file> --out <file>
//   - dcan infer --arch <name> [--weights f | --pretrained dataset] [--batch N] [--size S] [--train]
//
// Global flags: --verbose, --registry, --workers
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "dcan",
		Short: "Attention ResNets with domain-conditioned channel attention",
		Long: "Inspect, initialize and run attention ResNets and DCCANets. Weights are " +
			"SafeTensors files; pretrained settings come from a YAML registry.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

			var err error
			if g.registryPath != "" {
				g.registry, err = resnet.LoadRegistry(g.registryPath)
			} else {
				g.registry, err = resnet.RegistryFromEnv()
			}
			if err != nil {
				return fmt.Errorf("%w: failed to load registry: %w", errInvalidArgs, err)
			}

			g.backend = cpu.New()
			if g.workers > 0 {
				g.backend = cpu.NewWithWorkers(g.workers)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Debug logging")
	cmd.PersistentFlags().StringVar(&g.registryPath, "registry", "", "YAML settings registry (default $"+resnet.RegistryEnv+")")
	cmd.PersistentFlags().IntVar(&g.workers, "workers", 0, "CPU worker goroutines (default: physical cores)")

	cmd.AddCommand(versionCmd())
	cmd.AddCommand(settingsCmd(g))
	cmd.AddCommand(summaryCmd(g))
	cmd.AddCommand(exportCmd(g))
	cmd.AddCommand(transplantCmd(g))
	cmd.AddCommand(inferCmd(g))

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dcan %s\n", version)
			return err
		},
	}
}

func settingsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Print the pretrained settings registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.registry.Encode(cmd.OutOrStdout())
		},
	}
}

func summaryCmd(g *globals) *cobra.Command {
	var (
		arch    string
		classes int
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print an architecture summary and parameter count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := archConfig(arch, classes)
			if err != nil {
				return err
			}
			model, err := resnet.New(config, g.backend)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), model.String())
			return err
		},
	}

	cmd.Flags().StringVar(&arch, "arch", resnet.ArchDCCAResNet50, "Architecture")
	cmd.Flags().IntVar(&classes, "classes", 1000, "Classifier width (attention architectures)")
	return cmd
}

func exportCmd(g *globals) *cobra.Command {
	var (
		arch    string
		classes int
		out     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write randomly initialized weights",
		Long:  "Build a randomly initialized network and save its state dict as SafeTensors.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("%w: --out is required", errInvalidArgs)
			}
			config, err := archConfig(arch, classes)
			if err != nil {
				return err
			}
			model, err := resnet.New(config, g.backend)
			if err != nil {
				return err
			}
			if err := resnet.SaveWeights(model, out, arch); err != nil {
				return err
			}
			g.logger.Info("exported weights", "arch", arch, "path", out, "parameters", model.NumParameters())
			return nil
		},
	}

	cmd.Flags().StringVar(&arch, "arch", resnet.ArchAttentionResNet50, "Architecture")
	cmd.Flags().IntVar(&classes, "classes", 1000, "Classifier width (attention architectures)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output SafeTensors file")
	return cmd
}

func transplantCmd(g *globals) *cobra.Command {
	var (
		arch  string
		donor string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "transplant",
		Short: "Initialize a DCCANet from AttentionResNet weights",
		Long: "Copy every donor tensor the DCCANet shares and duplicate each block's " +
			"se_module.fc1 into se_module.fc0.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if donor == "" || out == "" {
				return fmt.Errorf("%w: --donor and --out are required", errInvalidArgs)
			}
			config, err := archConfig(arch, 0)
			if err != nil {
				return err
			}
			if config.Block != resnet.DCCABottleneck {
				return fmt.Errorf("%w: transplant target must be a DCCA architecture, got %s", errInvalidArgs, arch)
			}

			target, err := resnet.New(config, g.backend)
			if err != nil {
				return err
			}
			donorDict, _, err := serialization.ReadSafeTensors(cmd.Context(), donor, tensor.CPU)
			if err != nil {
				return fmt.Errorf("failed to read donor: %w", err)
			}
			report, err := resnet.Transplant(target, donorDict, config.Layers, g.logger)
			if err != nil {
				return err
			}
			if err := resnet.SaveWeights(target, out, arch); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "copied:     %d\n", len(report.Copied))
			fmt.Fprintf(w, "duplicated: %d\n", len(report.Duplicated))
			fmt.Fprintf(w, "untouched:  %d\n", len(report.Untouched))
			fmt.Fprintf(w, "ignored:    %d\n", len(report.Ignored))
			_, err = fmt.Fprintf(w, "wrote %s\n", out)
			return err
		},
	}

	cmd.Flags().StringVar(&arch, "arch", resnet.ArchDCCAResNet50, "Target DCCA architecture")
	cmd.Flags().StringVar(&donor, "donor", "", "Donor AttentionResNet SafeTensors file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output SafeTensors file")
	return cmd
}

func inferCmd(g *globals) *cobra.Command {
	var (
		arch       string
		classes    int
		weights    string
		pretrained string
		batch      int
		size       int
		train      bool
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Run a forward pass on random images",
		Long: "Run a forward pass on uniformly random images normalized with the model's " +
			"settings, and print the output shape with per-sample statistics. With --train " +
			"a DCCANet routes the first half of the batch through the source-domain branch.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateInput(batch, size, train); err != nil {
				return err
			}
			if weights != "" && pretrained != "" {
				return fmt.Errorf("%w: --weights and --pretrained are exclusive", errInvalidArgs)
			}

			model, err := loadModel(cmd.Context(), g, arch, classes, weights, pretrained, size)
			if err != nil {
				return err
			}
			settings := model.Settings()
			if settings == nil {
				settings, err = g.registry.Lookup(resnet.ArchAttentionResNet50, resnet.DatasetImageNet)
				if err != nil {
					return err
				}
			}

			images := tensor.Rand[float32](tensor.Shape{batch, 3, size, size}, g.backend)
			x, err := resnet.Normalize(images, settings)
			if err != nil {
				return err
			}

			model.SetTraining(train)
			out := model.Forward(x)
			return printOutput(cmd.OutOrStdout(), out, model.Config().Block == resnet.AttentionBottleneck)
		},
	}

	cmd.Flags().StringVar(&arch, "arch", resnet.ArchDCCAResNet50, "Architecture")
	cmd.Flags().IntVar(&classes, "classes", 1000, "Classifier width (attention architectures)")
	cmd.Flags().StringVar(&weights, "weights", "", "SafeTensors weights to load")
	cmd.Flags().StringVar(&pretrained, "pretrained", "", "Registry dataset to load pretrained weights for")
	cmd.Flags().IntVar(&batch, "batch", 2, "Batch size")
	cmd.Flags().IntVar(&size, "size", 224, "Input height and width, a multiple of 32")
	cmd.Flags().BoolVar(&train, "train", false, "Training mode (batch statistics, domain split)")
	return cmd
}

// validateInput checks the random input batch. Training mode needs more
// than one value per channel for the BatchNorm layers after layer4, whose
// feature maps are size/32 wide.
func validateInput(batch, size int, train bool) error {
	if batch <= 0 {
		return fmt.Errorf("%w: --batch must be positive", errInvalidArgs)
	}
	if size <= 0 || size%32 != 0 {
		return fmt.Errorf("%w: --size must be a positive multiple of 32, got %d", errInvalidArgs, size)
	}
	if side := size / 32; train && batch*side*side <= 1 {
		return fmt.Errorf("%w: --train needs --batch > 1 or --size > 32, got batch %d size %d",
			errInvalidArgs, batch, size)
	}
	return nil
}

// loadModel builds arch for size x size inputs and loads weights from a
// file or the registry.
func loadModel(ctx context.Context, g *globals, arch string, classes int, weights, pretrained string, size int) (*Model, error) {
	if pretrained != "" {
		if size != pretrainedInputSize {
			return nil, fmt.Errorf("%w: pretrained networks take %dx%d inputs",
				errInvalidArgs, pretrainedInputSize, pretrainedInputSize)
		}
		opts := []resnet.Option{resnet.WithRegistry(g.registry), resnet.WithLogger(g.logger)}
		switch arch {
		case resnet.ArchAttentionResNet50:
			return resnet.NewAttentionResNet50(ctx, g.backend, classes, pretrained, opts...)
		case resnet.ArchAttentionResNet101:
			return resnet.NewAttentionResNet101(ctx, g.backend, classes, pretrained, opts...)
		case resnet.ArchDCCAResNet50:
			return resnet.NewDCCAResNet50(ctx, g.backend, pretrained, opts...)
		case resnet.ArchDCCAResNet101:
			return resnet.NewDCCAResNet101(ctx, g.backend, pretrained, opts...)
		}
	}

	config, err := archConfig(arch, classes)
	if err != nil {
		return nil, err
	}
	config.PoolSize = size / 32
	model, err := resnet.New(config, g.backend)
	if err != nil {
		return nil, err
	}
	if weights != "" {
		if err := resnet.LoadWeights(ctx, model, weights, g.logger); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// printOutput writes the output shape and one line per sample: the argmax
// for logits, norm and range for features.
func printOutput(w io.Writer, out *tensor.Tensor[float32, *cpu.Backend], logits bool) error {
	shape := out.Shape()
	if _, err := fmt.Fprintf(w, "output: %v\n", shape); err != nil {
		return err
	}

	data := out.Data()
	width := shape[1]
	for i := 0; i < shape[0]; i++ {
		row := data[i*width : (i+1)*width]
		var err error
		if logits {
			best := 0
			for j, v := range row {
				if v > row[best] {
					best = j
				}
			}
			_, err = fmt.Fprintf(w, "%d: class %d (logit %.4f)\n", i, best, row[best])
		} else {
			var sq float64
			for _, v := range row {
				sq += float64(v) * float64(v)
			}
			_, err = fmt.Fprintf(w, "%d: norm %.4f min %.4f max %.4f\n",
				i, math.Sqrt(sq), slices.Min(row), slices.Max(row))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
