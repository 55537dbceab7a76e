package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/wgpu_backend"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

// ApplicationBuilderOption is a functional option for configuring an Application.
// Use the With* functions to create options that are applied directly to the application instance.
type ApplicationBuilderOption func(*application)

// WithTitle sets the window title and the label prefix of GPU objects.
//
// Parameters:
//   - title: the application title
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithTitle(title string) ApplicationBuilderOption {
	return func(a *application) {
		a.title = title
	}
}

// WithProfiling enables or disables per-second frame statistics.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithProfiling(enabled bool) ApplicationBuilderOption {
	return func(a *application) {
		a.profilingEnabled = enabled
	}
}

// WithTickRate sets the fixed tick rate in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithTickRate(fps float64) ApplicationBuilderOption {
	return func(a *application) {
		if fps <= 0 {
			fps = 60.0
		}
		a.tickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) ApplicationBuilderOption {
	return func(a *application) {
		if fps <= 0 {
			a.renderFrameLimit = 0
			return
		}
		a.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithOrbitControls enables or disables mouse and arrow-key orbiting of the scene camera's
// controller. Enabled by default.
//
// Parameters:
//   - enabled: true to route input to the camera controller
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithOrbitControls(enabled bool) ApplicationBuilderOption {
	return func(a *application) {
		a.orbitControls = enabled
	}
}

// WithWindow sets a window for the application to use rather than creating one. The
// application does not close a window it did not create.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithWindow(w window.Window) ApplicationBuilderOption {
	return func(a *application) {
		a.window = w
	}
}

// WithWindowOptions sets the options of the window the application creates.
//
// Parameters:
//   - options: window options
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithWindowOptions(options ...window.WindowBuilderOption) ApplicationBuilderOption {
	return func(a *application) {
		a.windowOptions = append(a.windowOptions, options...)
	}
}

// WithDevice sets a device for the application to use rather than creating a WebGPU
// device for the window. The application does not release a device it did not create.
//
// Parameters:
//   - device: the device
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithDevice(device gpu.Device) ApplicationBuilderOption {
	return func(a *application) {
		a.device = device
	}
}

// WithDeviceOptions sets the options of the WebGPU device the application creates.
//
// Parameters:
//   - options: device options such as the present mode
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithDeviceOptions(options ...wgpu_backend.DeviceBuilderOption) ApplicationBuilderOption {
	return func(a *application) {
		a.deviceOptions = append(a.deviceOptions, options...)
	}
}

// WithUploadOptions sets the options of the upload controller, such as the fence timeout.
//
// Parameters:
//   - options: upload controller options
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithUploadOptions(options ...upload.ControllerBuilderOption) ApplicationBuilderOption {
	return func(a *application) {
		a.uploadOptions = append(a.uploadOptions, options...)
	}
}

// WithRendererOptions sets the options of the renderer. The size and label are set from
// the window and the title first, so these options override them.
//
// Parameters:
//   - options: renderer options
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) ApplicationBuilderOption {
	return func(a *application) {
		a.rendererOptions = append(a.rendererOptions, options...)
	}
}

// WithLoaderOptions sets the options of the texture loader.
//
// Parameters:
//   - options: loader options
//
// Returns:
//   - ApplicationBuilderOption: option function to apply
func WithLoaderOptions(options ...loader.LoaderBuilderOption) ApplicationBuilderOption {
	return func(a *application) {
		a.loaderOptions = append(a.loaderOptions, options...)
	}
}
