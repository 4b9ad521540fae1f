package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// MetadataKey is the reserved header entry holding free-form string metadata.
const MetadataKey = "__metadata__"

// ChecksumKey is the metadata entry holding the hex SHA-256 of the data section.
const ChecksumKey = "dcan.sha256"

// DType is a SafeTensors dtype tag.
type DType string

// Supported SafeTensors dtypes.
const (
	DTypeF32 DType = "F32"
	DTypeF64 DType = "F64"
	DTypeI64 DType = "I64"
)

// TensorInfo describes a tensor in the SafeTensors header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end), relative to the data section
}

// Header is the parsed JSON header.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON splits the reserved metadata entry from the tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap[MetadataKey]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == MetadataKey {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// MarshalJSON writes metadata and tensors as one flat object.
func (h Header) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(h.Tensors)+1)
	if len(h.Metadata) > 0 {
		out[MetadataKey] = h.Metadata
	}
	for name, info := range h.Tensors {
		out[name] = info
	}
	return json.Marshal(out)
}

func toDataType(dt DType) (tensor.DataType, error) {
	switch dt {
	case DTypeF32:
		return tensor.Float32, nil
	case DTypeF64:
		return tensor.Float64, nil
	case DTypeI64:
		return tensor.Int64, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

func fromDataType(dt tensor.DataType) (DType, error) {
	switch dt {
	case tensor.Float32:
		return DTypeF32, nil
	case tensor.Float64:
		return DTypeF64, nil
	case tensor.Int64:
		return DTypeI64, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}
