package loader

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithFlipVertical is an option builder that stores decoded images bottom row first.
//
// Parameters:
//   - flip: true to flip images vertically
//
// Returns:
//   - LoaderBuilderOption: a function that applies the flip option to a loader
func WithFlipVertical(flip bool) LoaderBuilderOption {
	return func(l *loader) {
		l.flipVertical = flip
	}
}

// WithFormat is an option builder that sets the channel order of decoded pixels.
//
// Parameters:
//   - format: model.TextureFormatRGBA32 or model.TextureFormatBGRA32
//
// Returns:
//   - LoaderBuilderOption: a function that applies the format option to a loader
func WithFormat(format model.TextureFormat) LoaderBuilderOption {
	return func(l *loader) {
		l.format = format
	}
}

// WithWorkers is an option builder that sets how many images LoadTextures decodes at once.
//
// Parameters:
//   - n: worker count, values below 1 are ignored
//
// Returns:
//   - LoaderBuilderOption: a function that applies the worker option to a loader
func WithWorkers(n int) LoaderBuilderOption {
	return func(l *loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithTexture is an option builder that pre-populates the texture cache.
//
// Parameters:
//   - key: the cache key for the texture
//   - tex: the texture to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the texture option to a loader
func WithTexture(key string, tex *model.Texture) LoaderBuilderOption {
	return func(l *loader) {
		l.textureCache[key] = tex
	}
}
