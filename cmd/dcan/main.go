// Command dcan inspects, initializes and runs attention ResNets and DCCANets.
//
// Configuration:
//   - DCAN_REGISTRY: YAML file extending the pretrained settings registry
//     (overridden by --registry)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dcan-ml/dcan/internal/serialization"
	"github.com/dcan-ml/dcan/nn"
	"github.com/dcan-ml/dcan/resnet"
	"github.com/dcan-ml/dcan/tensor"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitInvalidArgs covers unknown architectures, datasets and bad configs.
	ExitInvalidArgs = 2
	// ExitWeightsError covers unreadable, corrupt or mismatched weight files.
	ExitWeightsError = 3
)

var version = "v0.1.0-dev"

func main() {
	cmd := newRootCommand(os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFromError(err))
	}
}

// weightErrors are the sentinels reported with ExitWeightsError.
var weightErrors = []error{
	serialization.ErrInvalidHeader,
	serialization.ErrChecksumMismatch,
	serialization.ErrUnsupportedDType,
	serialization.ErrTensorNotFound,
	serialization.ErrOffsetOverlap,
	serialization.ErrOutOfBounds,
	serialization.ErrNegativeOffset,
	serialization.ErrSizeMismatch,
	serialization.ErrTooManyTensors,
	serialization.ErrInvalidTensorName,
	serialization.ErrHeaderTooLarge,
	nn.ErrMissingKey,
	nn.ErrKeyMismatch,
	tensor.ErrShapeMismatch,
	tensor.ErrDTypeMismatch,
	resnet.ErrMissingDonorKey,
	os.ErrNotExist,
}

// exitCodeFromError maps error types to exit codes. Argument errors win
// over weight errors, so a missing --registry file exits with
// ExitInvalidArgs.
func exitCodeFromError(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errInvalidArgs),
		errors.Is(err, resnet.ErrUnknownArch),
		errors.Is(err, resnet.ErrUnknownDataset),
		errors.Is(err, resnet.ErrInvalidConfig),
		errors.Is(err, resnet.ErrInvalidSettings),
		errors.Is(err, resnet.ErrNumClassesMismatch):
		return ExitInvalidArgs
	case isWeightError(err):
		return ExitWeightsError
	default:
		return ExitGeneralError
	}
}

func isWeightError(err error) bool {
	for _, target := range weightErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
