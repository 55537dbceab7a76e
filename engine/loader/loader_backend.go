package loader

import (
	"image"
	"io"
)

// loaderBackend defines the generic interface for decoding images from files or streams.
// Concrete implementations (e.g., imageLoaderBackendImpl) handle format-specific details.
type loaderBackend interface {
	// DecodeFile decodes the image at the given file path.
	//
	// Parameters:
	//   - path: the file path to decode
	//
	// Returns:
	//   - image.Image: the decoded image, already rotated upright
	//   - error: error if the file cannot be opened or decoded
	DecodeFile(path string) (image.Image, error)

	// Decode decodes an image from a reader stream.
	//
	// Parameters:
	//   - r: the reader providing encoded image data
	//
	// Returns:
	//   - image.Image: the decoded image, already rotated upright
	//   - error: error if decoding fails
	Decode(r io.Reader) (image.Image, error)
}
