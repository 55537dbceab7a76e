package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// TextureFormat is the CPU-side pixel layout of a Texture.
type TextureFormat int

const (
	// TextureFormatRGBA32 stores four 8-bit channels in R, G, B, A order.
	TextureFormatRGBA32 TextureFormat = iota

	// TextureFormatBGRA32 stores four 8-bit channels in B, G, R, A order.
	TextureFormatBGRA32
)

// GPUFormat returns the device format matching the pixel layout.
//
// Returns:
//   - gpu.TextureFormat: RGBA8Unorm or BGRA8Unorm
func (f TextureFormat) GPUFormat() gpu.TextureFormat {
	if f == TextureFormatBGRA32 {
		return gpu.TextureFormatBGRA8Unorm
	}
	return gpu.TextureFormatRGBA8Unorm
}

// Texture is decoded pixel data plus the device texture once uploaded.
type Texture struct {
	Key    string
	Pixels []byte
	Width  uint32
	Height uint32
	Format TextureFormat

	gpu gpu.Texture
}

// NewTexture wraps decoded pixels.
//
// Parameters:
//   - key: the texture identifier
//   - pixels: tightly packed rows, four bytes per pixel
//   - width, height: dimensions in pixels
//   - format: the channel order of pixels
//
// Returns:
//   - *Texture: the texture
//   - error: error if the pixel slice does not match the dimensions
func NewTexture(key string, pixels []byte, width, height uint32, format TextureFormat) (*Texture, error) {
	if uint64(len(pixels)) != uint64(width)*uint64(height)*4 {
		return nil, fmt.Errorf("model: texture %q: %d bytes for %dx%d pixels", key, len(pixels), width, height)
	}
	return &Texture{Key: key, Pixels: pixels, Width: width, Height: height, Format: format}, nil
}

// BytesPerPixel returns the pixel size of the texture.
//
// Returns:
//   - uint32: always 4 for the supported formats
func (t *Texture) BytesPerPixel() uint32 {
	return 4
}

// GPU returns the uploaded device texture, or nil before upload.
//
// Returns:
//   - gpu.Texture: the device texture
func (t *Texture) GPU() gpu.Texture {
	return t.gpu
}

// SetGPU attaches the uploaded device texture.
//
// Parameters:
//   - tex: the device texture
func (t *Texture) SetGPU(tex gpu.Texture) {
	t.gpu = tex
}
