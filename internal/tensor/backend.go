package tensor

// Backend defines the operations a compute backend must provide.
//
// All operations are inference-only: they return fresh tensors and never
// record history. Shape or dtype misuse panics with an "op: detail"
// message; these are programmer errors, not runtime conditions.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	// MatMul multiplies 2D matrices: (M, K) @ (K, N) -> (M, N).
	MatMul(a, b *RawTensor) *RawTensor

	// Conv2D convolves an [N, C_in, H, W] input with a
	// [C_out, C_in/groups, K_h, K_w] kernel.
	Conv2D(input, kernel *RawTensor, stride, padding, groups int) *RawTensor

	// Pooling
	MaxPool2D(input *RawTensor, kernelSize, stride, padding int, ceilMode bool) *RawTensor
	AvgPool2D(input *RawTensor, kernelSize, stride int) *RawTensor
	AdaptiveAvgPool2D(input *RawTensor, outH, outW int) *RawTensor

	// BatchNorm2D normalizes an [N, C, H, W] input per channel:
	// (x - mean) / sqrt(variance + eps) * gamma + beta.
	BatchNorm2D(input, mean, variance, gamma, beta *RawTensor, eps float32) *RawTensor

	// ChannelMoments returns the per-channel mean and biased variance
	// of an [N, C, H, W] input, each shaped [C].
	ChannelMoments(input *RawTensor) (mean, variance *RawTensor)

	// Activations
	ReLU(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Narrow(x *RawTensor, dim, start, length int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
