package wgpu_backend

// DeviceBuilderOption is a function that configures a device during creation.
type DeviceBuilderOption func(*device)

// WithPresentMode sets how the swapchain delivers frames.
//
// Parameters:
//   - mode: PresentModeVSync or PresentModeUncapped
//
// Returns:
//   - DeviceBuilderOption: a function that applies the present mode to a device
func WithPresentMode(mode PresentMode) DeviceBuilderOption {
	return func(d *device) {
		d.presentMode = mode
	}
}

// WithForceFallbackAdapter requests the software fallback adapter.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that applies the adapter preference to a device
func WithForceFallbackAdapter(force bool) DeviceBuilderOption {
	return func(d *device) {
		d.forceFallbackAdapter = force
	}
}

// WithSize sets the initial swapchain size. Zero dimensions are ignored.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - DeviceBuilderOption: a function that applies the size to a device
func WithSize(width, height uint32) DeviceBuilderOption {
	return func(d *device) {
		if width > 0 && height > 0 {
			d.width, d.height = width, height
		}
	}
}

// WithWorkers sets how many workers build bottom-level acceleration structures in parallel.
//
// Parameters:
//   - n: worker count, values below 1 are ignored
//
// Returns:
//   - DeviceBuilderOption: a function that applies the worker count to a device
func WithWorkers(n int) DeviceBuilderOption {
	return func(d *device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLabel sets the debug label prefix of the device and its internal objects.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - DeviceBuilderOption: a function that applies the label to a device
func WithLabel(label string) DeviceBuilderOption {
	return func(d *device) {
		d.label = label
	}
}
