package resnet

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// TransplantReport lists what Transplant did with each key.
type TransplantReport struct {
	// Copied are target keys taken from the donor under the same name.
	Copied []string
	// Duplicated are fc0 keys filled from the donor's fc1 of the same block.
	Duplicated []string
	// Untouched are target keys the donor could not provide; they keep
	// their current values.
	Untouched []string
	// Ignored are donor keys the target does not have (e.g. last_linear.*).
	Ignored []string
}

// Transplant initializes a domain-conditioned target from a donor state dict,
// typically an AttentionResNet's:
//
//  1. donor entries whose key exists in the target are kept, the rest ignored;
//  2. the kept entries overlay the target's own state;
//  3. for every stage i in 1..4 and block j < layers[i-1], both
//     layer{i}.{j}.se_module.fc0.weight and .bias are taken from the
//     donor's fc1 of the same block, so both domains start from the
//     single-domain attention;
//  4. the result is strictly loaded into the target.
//
// A donor without an fc1 entry for some block, or a donor tensor whose
// shape or dtype differs from the target's, fails the transplant. Donor
// tensors are not cast; float64 checkpoints must be converted first.
func Transplant[B tensor.Backend](
	target *Network[B],
	donor map[string]*tensor.RawTensor,
	layers [4]int,
	logger *slog.Logger,
) (*TransplantReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if target.Config().Block != DCCABottleneck {
		return nil, fmt.Errorf("%w: target is %s", ErrNotDomainConditioned, target.Name())
	}

	report := &TransplantReport{}
	targetDict := target.StateDict()

	kept := make(map[string]*tensor.RawTensor, len(donor))
	for k, v := range donor {
		if _, ok := targetDict[k]; ok {
			kept[k] = v
			report.Copied = append(report.Copied, k)
		} else {
			report.Ignored = append(report.Ignored, k)
		}
	}

	merged := make(map[string]*tensor.RawTensor, len(targetDict))
	for k, v := range targetDict {
		merged[k] = v
	}
	for k, v := range kept {
		merged[k] = v
	}

	duplicated := make(map[string]bool)
	for i := 1; i <= 4; i++ {
		for j := 0; j < layers[i-1]; j++ {
			for _, param := range []string{"weight", "bias"} {
				dst := fmt.Sprintf("layer%d.%d.se_module.fc0.%s", i, j, param)
				src := fmt.Sprintf("layer%d.%d.se_module.fc1.%s", i, j, param)
				v, ok := kept[src]
				if !ok {
					return nil, fmt.Errorf("%w: %s", ErrMissingDonorKey, src)
				}
				merged[dst] = v
				duplicated[dst] = true
				report.Duplicated = append(report.Duplicated, dst)
			}
		}
	}

	for k := range targetDict {
		if _, ok := kept[k]; !ok && !duplicated[k] {
			report.Untouched = append(report.Untouched, k)
		}
	}

	if err := target.LoadStateDict(merged); err != nil {
		return nil, fmt.Errorf("transplant: %w", err)
	}

	sort.Strings(report.Copied)
	sort.Strings(report.Duplicated)
	sort.Strings(report.Untouched)
	sort.Strings(report.Ignored)

	logger.Info("transplanted weights",
		"target", target.Name(),
		"copied", len(report.Copied),
		"duplicated", len(report.Duplicated),
		"untouched", len(report.Untouched),
		"ignored", len(report.Ignored))
	if len(report.Untouched) > 0 {
		logger.Debug("target keys kept at initialization", "keys", report.Untouched)
	}
	return report, nil
}
