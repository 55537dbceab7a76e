package camera

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*orbitController)

// WithRadius sets the initial distance from the target.
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.at.radius = radius
	}
}

// WithRadiusBounds sets the allowed zoom range.
//
// Parameters:
//   - minRadius: closest allowed distance
//   - maxRadius: farthest allowed distance
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithRadiusBounds(minRadius, maxRadius float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.minRadius, cc.maxRadius = minRadius, maxRadius
	}
}

// WithAzimuth sets the initial horizontal angle in radians. Zero places the camera on
// the +Z side of the target.
func WithAzimuth(azimuth float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.at.azimuth = azimuth
	}
}

// WithElevation sets the initial angle above the horizontal plane in radians.
func WithElevation(elevation float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.at.elevation = elevation
	}
}

// WithTarget sets the pivot point.
func WithTarget(x, y, z float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.target = [3]float32{x, y, z}
	}
}

// WithOrbitSpeed sets the step of OrbitLeft, OrbitRight, OrbitUp and OrbitDown.
//
// Parameters:
//   - speed: radians per step
//
// Returns:
//   - CameraControllerOption: option function to apply
func WithOrbitSpeed(speed float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the radius change per unit of Zoom delta.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.zoomSpeed = speed
	}
}
