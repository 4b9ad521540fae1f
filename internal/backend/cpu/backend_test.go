package cpu

import (
	"math"
	"testing"

	"github.com/dcan-ml/dcan/internal/parallel"
	"github.com/dcan-ml/dcan/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ tensor.Backend = (*CPUBackend)(nil)

func raw(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsFloat32(), data)
	return r
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestCPUBackend_Metadata(t *testing.T) {
	b := New()
	assert.Equal(t, "CPU", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
	assert.Contains(t, b.Info(), "workers")
}

func TestBinary_Broadcasting(t *testing.T) {
	b := New()

	tests := []struct {
		name     string
		a, b     *tensor.RawTensor
		op       func(a, b *tensor.RawTensor) *tensor.RawTensor
		shape    tensor.Shape
		expected []float32
	}{
		{
			name:     "same shape add",
			a:        raw(t, []float32{1, 2, 3, 4}, 2, 2),
			b:        raw(t, []float32{10, 20, 30, 40}, 2, 2),
			op:       b.Add,
			shape:    tensor.Shape{2, 2},
			expected: []float32{11, 22, 33, 44},
		},
		{
			name:     "row vector sub",
			a:        raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3),
			b:        raw(t, []float32{1, 1, 1}, 3),
			op:       b.Sub,
			shape:    tensor.Shape{2, 3},
			expected: []float32{0, 1, 2, 3, 4, 5},
		},
		{
			name:     "channel gate mul",
			a:        raw(t, seq(8), 1, 2, 2, 2),
			b:        raw(t, []float32{0, 2}, 1, 2, 1, 1),
			op:       b.Mul,
			shape:    tensor.Shape{1, 2, 2, 2},
			expected: []float32{0, 0, 0, 0, 8, 10, 12, 14},
		},
		{
			name:     "both sides broadcast div",
			a:        raw(t, []float32{2, 4}, 2, 1),
			b:        raw(t, []float32{1, 2}, 1, 2),
			op:       b.Div,
			shape:    tensor.Shape{2, 2},
			expected: []float32{2, 1, 4, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.op(tt.a, tt.b)
			assert.Equal(t, tt.shape, out.Shape())
			assert.Equal(t, tt.expected, out.AsFloat32())
		})
	}
}

func TestBinary_IncompatibleShapesPanic(t *testing.T) {
	b := New()
	assert.PanicsWithValue(t,
		"add: shapes not compatible for broadcasting: [3 4] vs [3 5] (dimension 1: 4 vs 5)",
		func() { b.Add(raw(t, seq(12), 3, 4), raw(t, seq(15), 3, 5)) })
}

func TestScalarOps(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, -2}, 2)
	assert.Equal(t, []float32{3, -6}, b.MulScalar(x, 3).AsFloat32())
	assert.Equal(t, []float32{1.5, -1.5}, b.AddScalar(x, 0.5).AsFloat32())
}

func TestActivations(t *testing.T) {
	b := New()
	x := raw(t, []float32{-1, 0, 2}, 3)

	assert.Equal(t, []float32{0, 0, 2}, b.ReLU(x).AsFloat32())

	s := b.Sigmoid(x).AsFloat32()
	assert.InDelta(t, 1/(1+math.E), s[0], 1e-6)
	assert.InDelta(t, 0.5, s[1], 1e-6)
	assert.InDelta(t, 1/(1+math.Exp(-2)), s[2], 1e-6)
}

func TestMatMul(t *testing.T) {
	b := New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	c := raw(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := b.MatMul(a, c)

	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())

	assert.Panics(t, func() { b.MatMul(a, a) })
}

func TestReshape_SharesMemory(t *testing.T) {
	b := New()
	x := raw(t, seq(6), 2, 3)

	y := b.Reshape(x, tensor.Shape{3, 2})
	y.AsFloat32()[0] = 42

	assert.Equal(t, tensor.Shape{3, 2}, y.Shape())
	assert.Equal(t, float32(42), x.AsFloat32()[0])
	assert.Panics(t, func() { b.Reshape(x, tensor.Shape{4, 2}) })
}

func TestTranspose(t *testing.T) {
	b := New()

	x := raw(t, seq(6), 2, 3)
	out := b.Transpose(x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, out.AsFloat32())

	// NCHW -> NHWC
	y := raw(t, seq(8), 1, 2, 2, 2)
	nhwc := b.Transpose(y, 0, 2, 3, 1)
	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, nhwc.Shape())
	assert.Equal(t, []float32{0, 4, 1, 5, 2, 6, 3, 7}, nhwc.AsFloat32())

	assert.Panics(t, func() { b.Transpose(y, 0, 0, 1, 2) })
}

func TestNarrowAndCat(t *testing.T) {
	b := New()
	x := raw(t, seq(12), 4, 3)

	first := b.Narrow(x, 0, 0, 2)
	second := b.Narrow(x, 0, 2, 2)
	assert.Equal(t, tensor.Shape{2, 3}, first.Shape())
	assert.Equal(t, []float32{6, 7, 8, 9, 10, 11}, second.AsFloat32())

	assert.Equal(t, x.AsFloat32(), b.Cat([]*tensor.RawTensor{first, second}, 0).AsFloat32())

	cols := b.Narrow(x, 1, 1, 2)
	assert.Equal(t, []float32{1, 2, 4, 5, 7, 8, 10, 11}, cols.AsFloat32())

	joined := b.Cat([]*tensor.RawTensor{b.Narrow(x, 1, 0, 1), cols}, -1)
	assert.Equal(t, x.AsFloat32(), joined.AsFloat32())

	assert.Panics(t, func() { b.Narrow(x, 0, 3, 2) })
	assert.Panics(t, func() { b.Cat([]*tensor.RawTensor{first, cols}, 0) })
}

func TestNarrow_Int64(t *testing.T) {
	b := New()
	x := tensor.MustNewRaw(tensor.Shape{3}, tensor.Int64, tensor.CPU)
	copy(x.AsInt64(), []int64{1, 2, 3})

	assert.Equal(t, []int64{2, 3}, b.Narrow(x, 0, 1, 2).AsInt64())
}

func TestBatchNorm2D(t *testing.T) {
	b := New()
	x := raw(t, []float32{1, 3, 10, 30}, 1, 2, 1, 2)

	out := b.BatchNorm2D(x,
		raw(t, []float32{2, 20}, 2),
		raw(t, []float32{1, 100}, 2),
		raw(t, []float32{1, 2}, 2),
		raw(t, []float32{0, 1}, 2),
		0,
	)

	assert.InDeltaSlice(t, []float32{-1, 1, -1, 3}, out.AsFloat32(), 1e-6)
}

func TestChannelMoments(t *testing.T) {
	b := NewWithConfig(parallel.Sequential())
	// Two samples, two channels, 1x2 spatial.
	x := raw(t, []float32{
		1, 3, 0, 0,
		5, 7, 4, 8,
	}, 2, 2, 1, 2)

	mean, variance := b.ChannelMoments(x)

	assert.Equal(t, []float32{4, 3}, mean.AsFloat32())
	assert.InDeltaSlice(t, []float32{5, 11}, variance.AsFloat32(), 1e-5)
}
