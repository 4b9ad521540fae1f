package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// checksum computes the hex SHA-256 of the tensors' bytes concatenated in
// name order, which is also the order they are laid out on disk.
func checksum(tensors map[string]*tensor.RawTensor) string {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write(tensors[name].Data())
	}
	return hex.EncodeToString(h.Sum(nil))
}
