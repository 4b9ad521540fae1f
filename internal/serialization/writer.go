package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"github.com/dcan-ml/dcan/internal/tensor"
)

// WriteSafeTensors writes tensors to path in SafeTensors format.
//
// Tensors are laid out in alphabetical order by name and the data checksum
// is recorded under ChecksumKey in the metadata. The file is written to a
// temporary sibling and renamed into place, so readers never observe a
// partially written checkpoint.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	header, names, err := buildHeader(tensors, metadata)
	if err != nil {
		return err
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	w := bufio.NewWriter(tmp)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, name := range names {
		if _, err := w.Write(tensors[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

func buildHeader(tensors map[string]*tensor.RawTensor, metadata map[string]string) (Header, []string, error) {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := validateTensorName(name); err != nil {
			return Header{}, nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{
		Metadata: make(map[string]string, len(metadata)+1),
		Tensors:  make(map[string]TensorInfo, len(tensors)),
	}
	maps.Copy(header.Metadata, metadata)
	header.Metadata[ChecksumKey] = checksum(tensors)

	var offset int64
	for _, name := range names {
		raw := tensors[name]
		dtype, err := fromDataType(raw.DType())
		if err != nil {
			return Header{}, nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		size := int64(raw.ByteSize())
		header.Tensors[name] = TensorInfo{
			DType:       dtype,
			Shape:       append(make([]int, 0, len(raw.Shape())), raw.Shape()...),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}
	return header, names, nil
}
