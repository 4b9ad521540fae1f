package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// tensorSpan is a tensor's byte range within the data section.
type tensorSpan struct {
	Name   string
	Offset int64
	Size   int64
}

// validateHeader checks names, dtypes, shapes and offsets of every tensor.
// Tensors must tile a data section of dataSize bytes without overlapping.
func validateHeader(h *Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	spans := make([]tensorSpan, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		if err := validateTensorName(name); err != nil {
			return err
		}
		dtype, err := toDataType(info.DType)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
		for _, dim := range info.Shape {
			if dim <= 0 {
				return &ValidationError{
					Err:     ErrInvalidHeader,
					Tensor:  name,
					Details: fmt.Sprintf("invalid shape %v", info.Shape),
				}
			}
		}

		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{
				Err:     ErrNegativeOffset,
				Tensor:  name,
				Details: fmt.Sprintf("data_offsets [%d, %d]", start, end),
			}
		}
		elems, ok := numElements(info.Shape, dataSize/int64(dtype.Size()))
		if !ok {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("shape %v exceeds data_size %d", info.Shape, dataSize),
			}
		}
		want := elems * int64(dtype.Size())
		if end-start != want {
			return &ValidationError{
				Err:     ErrSizeMismatch,
				Tensor:  name,
				Details: fmt.Sprintf("%d bytes for %s%v, expected %d", end-start, info.DType, info.Shape, want),
			}
		}
		spans = append(spans, tensorSpan{Name: name, Offset: start, Size: end - start})
	}

	return validateSpans(spans, dataSize)
}

// validateSpans checks for overlapping and out-of-bounds tensor data.
func validateSpans(spans []tensorSpan, dataSize int64) error {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Offset != spans[j].Offset {
			return spans[i].Offset < spans[j].Offset
		}
		return spans[i].Name < spans[j].Name
	})

	for i, t := range spans {
		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}
		if i < len(spans)-1 {
			next := spans[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Err:     ErrOffsetOverlap,
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}
	return nil
}

// validateTensorName rejects empty, oversized and control-character names.
func validateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Err:     ErrInvalidTensorName,
			Tensor:  name[:64] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case strings.ContainsRune(name, 0):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	}
	return nil
}

// numElements returns the element count of shape, or false once the
// running product passes limit. Dimensions must be positive.
func numElements(shape []int, limit int64) (int64, bool) {
	n := int64(1)
	for _, d := range shape {
		if n > limit/int64(d) {
			return 0, false
		}
		n *= int64(d)
	}
	return n, true
}
