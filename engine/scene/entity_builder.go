package scene

// EntityBuilderOption is a functional option for configuring an Entity.
type EntityBuilderOption func(*entity)

// WithPosition sets the initial world-space position.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - EntityBuilderOption: option function to apply
func WithPosition(x, y, z float32) EntityBuilderOption {
	return func(e *entity) {
		e.position = [3]float32{x, y, z}
	}
}

// WithRotation sets the initial rotation angles in radians.
//
// Parameters:
//   - rx, ry, rz: rotation around X, Y and Z
//
// Returns:
//   - EntityBuilderOption: option function to apply
func WithRotation(rx, ry, rz float32) EntityBuilderOption {
	return func(e *entity) {
		e.rotation = [3]float32{rx, ry, rz}
	}
}

// WithScale sets the initial scale factors.
//
// Parameters:
//   - sx, sy, sz: scale along X, Y and Z
//
// Returns:
//   - EntityBuilderOption: option function to apply
func WithScale(sx, sy, sz float32) EntityBuilderOption {
	return func(e *entity) {
		e.scale = [3]float32{sx, sy, sz}
	}
}

// WithRotationSpeed sets the angular velocity applied by Scene.Update.
//
// Parameters:
//   - rx, ry, rz: radians per second around X, Y and Z
//
// Returns:
//   - EntityBuilderOption: option function to apply
func WithRotationSpeed(rx, ry, rz float32) EntityBuilderOption {
	return func(e *entity) {
		e.rotationSpeed = [3]float32{rx, ry, rz}
	}
}

// WithReflective marks the entity as rasterized into the G-buffer.
//
// Parameters:
//   - reflective: whether the entity receives ray-traced reflections
//
// Returns:
//   - EntityBuilderOption: option function to apply
func WithReflective(reflective bool) EntityBuilderOption {
	return func(e *entity) {
		e.reflective = reflective
	}
}
