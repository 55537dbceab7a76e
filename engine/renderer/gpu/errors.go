package gpu

import "errors"

var (
	// ErrInvalidLayout is returned when a binding layout fails validation or deserialization.
	ErrInvalidLayout = errors.New("gpu: invalid binding layout")

	// ErrNotUploadBuffer is returned by Buffer.Write on buffers without BufferUsageUpload.
	ErrNotUploadBuffer = errors.New("gpu: buffer is not CPU-writable")

	// ErrOutOfRange is returned when an offset or handle lies outside its resource.
	ErrOutOfRange = errors.New("gpu: out of range")
)
