package serialization

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
	"golang.org/x/sync/errgroup"
)

// SafeTensorsReader reads SafeTensors files.
//
// Tensor reads use ReadAt and are safe for concurrent use.
type SafeTensorsReader struct {
	file       *os.File
	header     Header
	dataOffset int64 // Offset where tensor data starts
	dataSize   int64
	workers    int
}

// NewSafeTensorsReader opens path and validates its header.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r, err := newReader(file)
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func newReader(file *os.File) (*SafeTensorsReader, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("%w: failed to read header size: %v", ErrInvalidHeader, err)
	}
	if headerSize > MaxHeaderSize {
		return nil, &ValidationError{
			Err:     ErrHeaderTooLarge,
			Details: fmt.Sprintf("%d bytes, max %d", headerSize, MaxHeaderSize),
		}
	}
	//nolint:gosec // G115: headerSize bounded by MaxHeaderSize
	dataOffset := 8 + int64(headerSize)
	if dataOffset > stat.Size() {
		return nil, fmt.Errorf("%w: header size %d exceeds file size %d", ErrInvalidHeader, headerSize, stat.Size())
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrInvalidHeader, err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	dataSize := stat.Size() - dataOffset
	if err := validateHeader(&header, dataSize); err != nil {
		return nil, err
	}

	return &SafeTensorsReader{
		file:       file,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   dataSize,
		workers:    parallel.DefaultConfig().NumWorkers,
	}, nil
}

// Close closes the underlying file.
func (r *SafeTensorsReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the __metadata__ map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names, sorted.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns header information about a tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (TensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// LoadTensor reads one tensor into a freshly allocated RawTensor.
func (r *SafeTensorsReader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	dtype, err := toDataType(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	if _, err := r.file.ReadAt(raw.Data(), r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return raw, nil
}

// ReadStateDict loads every tensor in the file, reading in parallel.
//
// When the file carries a data checksum it is verified before returning.
func (r *SafeTensorsReader) ReadStateDict(ctx context.Context, device tensor.Device) (map[string]*tensor.RawTensor, error) {
	names := r.TensorNames()
	loaded := make([]*tensor.RawTensor, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.workers, 1))
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := r.LoadTensor(name, device)
			if err != nil {
				return err
			}
			loaded[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stateDict := make(map[string]*tensor.RawTensor, len(names))
	for i, name := range names {
		stateDict[name] = loaded[i]
	}

	if want, ok := r.header.Metadata[ChecksumKey]; ok {
		if got := checksum(stateDict); got != want {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, want, got)
		}
	}
	return stateDict, nil
}

// ReadSafeTensors is a convenience wrapper that opens path and reads every tensor.
func ReadSafeTensors(ctx context.Context, path string, device tensor.Device) (map[string]*tensor.RawTensor, map[string]string, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = r.Close() // Best effort close
	}()

	stateDict, err := r.ReadStateDict(ctx, device)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return stateDict, r.Metadata(), nil
}
