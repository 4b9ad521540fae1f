package nn

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// State dict errors.
var (
	ErrMissingKey  = errors.New("missing key in state dict")
	ErrKeyMismatch = errors.New("state dict mismatch")
)

// loadTensor copies stateDict[key] into dst after checking shape and dtype.
func loadTensor(stateDict map[string]*tensor.RawTensor, key string, dst *tensor.RawTensor) error {
	src, ok := stateDict[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	if err := dst.CopyFrom(src); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// WithPrefix returns a copy of stateDict with prefix + "." prepended to every key.
func WithPrefix(prefix string, stateDict map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor, len(stateDict))
	for k, v := range stateDict {
		out[prefix+"."+k] = v
	}
	return out
}

// SubDict returns the entries of stateDict under prefix + ".", with the
// prefix stripped.
func SubDict(prefix string, stateDict map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	p := prefix + "."
	out := make(map[string]*tensor.RawTensor)
	for k, v := range stateDict {
		if rest, ok := strings.CutPrefix(k, p); ok {
			out[rest] = v
		}
	}
	return out
}

// LoadStrict loads stateDict into m, failing when stateDict has keys m
// does not own or lacks keys m does own.
func LoadStrict[B tensor.Backend](m Module[B], stateDict map[string]*tensor.RawTensor) error {
	if err := CheckKeys(m.StateDict(), stateDict); err != nil {
		return err
	}
	return m.LoadStateDict(stateDict)
}

// CheckKeys compares the keys a module owns with the keys of stateDict.
// BatchNorm step counters are the one exception: they may be absent.
func CheckKeys(own, stateDict map[string]*tensor.RawTensor) error {
	var missing, unexpected []string
	for k := range own {
		if _, ok := stateDict[k]; !ok && !strings.HasSuffix(k, "num_batches_tracked") {
			missing = append(missing, k)
		}
	}
	for k := range stateDict {
		if _, ok := own[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return fmt.Errorf("%w: missing %s; unexpected %s",
			ErrKeyMismatch, summarizeKeys(missing), summarizeKeys(unexpected))
	}
	return nil
}

func summarizeKeys(keys []string) string {
	const limit = 5
	if len(keys) == 0 {
		return "none"
	}
	if len(keys) <= limit {
		return "[" + strings.Join(keys, ", ") + "]"
	}
	return fmt.Sprintf("[%s, ... (%d more)]", strings.Join(keys[:limit], ", "), len(keys)-limit)
}

// CountParameters returns the number of trainable scalars in m.
func CountParameters[B tensor.Backend](m Module[B]) int {
	n := 0
	for _, p := range m.Parameters() {
		if p.Trainable() {
			n += p.NumElements()
		}
	}
	return n
}
