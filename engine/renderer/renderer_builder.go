package renderer

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSize sets the initial render size. It should match the swapchain the device was
// created with.
//
// Parameters:
//   - width, height: the size in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size option to a renderer
func WithSize(width, height uint32) RendererBuilderOption {
	return func(r *renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}

// WithLabel sets the label prefix of every GPU object the renderer creates.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - RendererBuilderOption: a function that applies the label option to a renderer
func WithLabel(label string) RendererBuilderOption {
	return func(r *renderer) {
		r.label = label
	}
}

// WithProgramOptions sets the options used to load the built-in programs, such as the
// compiler.
//
// Parameters:
//   - options: shader program options
//
// Returns:
//   - RendererBuilderOption: a function that applies the program options to a renderer
func WithProgramOptions(options ...shader.ProgramBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.programOptions = append(r.programOptions, options...)
	}
}
