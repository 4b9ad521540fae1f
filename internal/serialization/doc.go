// Package serialization reads and writes model weights in the SafeTensors
// format, the interchange format PyTorch checkpoints are converted to.
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor name -> {dtype, shape, data_offsets}]
//	  [Tensor data: raw little-endian bytes]
//
// Supported dtypes are F32, F64 and I64. Files written here carry a
// SHA-256 digest of the data section in their __metadata__ so that
// truncated or corrupted checkpoints are rejected on load.
//
// Example usage:
//
//	// Save a model
//	err := serialization.WriteSafeTensors("model.safetensors", model.StateDict(), nil)
//
//	// Load a model
//	reader, err := serialization.NewSafeTensorsReader("model.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reader.Close()
//	stateDict, err := reader.ReadStateDict(ctx, tensor.CPU)
package serialization
