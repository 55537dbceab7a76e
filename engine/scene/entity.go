package scene

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
)

type entity struct {
	mu *sync.RWMutex

	name       string
	mesh       model.Mesh
	material   material.Instance
	reflective bool

	position      [3]float32
	rotation      [3]float32
	scale         [3]float32
	rotationSpeed [3]float32
}

// Entity is one drawable object of a Scene: a mesh, the material it is shaded with and a
// transform. The mesh and material are fixed for the entity's lifetime; the transform may
// change every frame.
type Entity interface {
	// Name returns the entity name used in diagnostics.
	//
	// Returns:
	//   - string: the entity name
	Name() string

	// Mesh returns the geometry of the entity.
	//
	// Returns:
	//   - model.Mesh: the mesh
	Mesh() model.Mesh

	// Material returns the material the entity is shaded with.
	//
	// Returns:
	//   - material.Instance: the material, may be nil for entities that only cast rays
	Material() material.Instance

	// Reflective reports whether the entity is rasterized into the G-buffer and receives
	// ray-traced reflections.
	//
	// Returns:
	//   - bool: true if reflective
	Reflective() bool

	// SetReflective sets whether the entity is rasterized into the G-buffer.
	//
	// Parameters:
	//   - reflective: the new flag
	SetReflective(reflective bool)

	// Position returns the world-space position.
	//
	// Returns:
	//   - [3]float32: the position
	Position() [3]float32

	// Rotation returns the rotation angles around X, Y and Z in radians.
	//
	// Returns:
	//   - [3]float32: the rotation
	Rotation() [3]float32

	// Scale returns the scale factors along each axis.
	//
	// Returns:
	//   - [3]float32: the scale
	Scale() [3]float32

	// RotationSpeed returns the angular velocity applied by Scene.Update, in radians per second.
	//
	// Returns:
	//   - [3]float32: the angular velocity around X, Y and Z
	RotationSpeed() [3]float32

	// SetPosition moves the entity.
	//
	// Parameters:
	//   - x, y, z: world-space position
	SetPosition(x, y, z float32)

	// SetRotation sets the rotation angles.
	//
	// Parameters:
	//   - rx, ry, rz: rotation around X, Y and Z in radians
	SetRotation(rx, ry, rz float32)

	// SetScale sets the scale factors.
	//
	// Parameters:
	//   - sx, sy, sz: scale along X, Y and Z
	SetScale(sx, sy, sz float32)

	// SetRotationSpeed sets the angular velocity applied by Scene.Update.
	//
	// Parameters:
	//   - rx, ry, rz: radians per second around X, Y and Z
	SetRotationSpeed(rx, ry, rz float32)

	// ModelMatrix composes position, rotation and scale into a model-to-world matrix.
	//
	// Returns:
	//   - common.Mat4: the column-major model matrix
	ModelMatrix() common.Mat4

	// Advance applies the rotation speed for dt seconds.
	//
	// Parameters:
	//   - dt: elapsed seconds
	Advance(dt float32)
}

var _ Entity = &entity{}

// NewEntity creates an Entity at the origin with unit scale. NewEntity panics if mesh is nil.
//
// Parameters:
//   - name: the entity name
//   - mesh: the geometry (must not be nil)
//   - mat: the material, may be nil
//   - options: variadic list of EntityBuilderOption functions
//
// Returns:
//   - Entity: the new entity
func NewEntity(name string, mesh model.Mesh, mat material.Instance, options ...EntityBuilderOption) Entity {
	if mesh == nil {
		panic("scene: NewEntity requires a non-nil mesh")
	}
	e := &entity{
		mu:       &sync.RWMutex{},
		name:     name,
		mesh:     mesh,
		material: mat,
		scale:    [3]float32{1, 1, 1},
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *entity) Name() string {
	return e.name
}

func (e *entity) Mesh() model.Mesh {
	return e.mesh
}

func (e *entity) Material() material.Instance {
	return e.material
}

func (e *entity) Reflective() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reflective
}

func (e *entity) SetReflective(reflective bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reflective = reflective
}

func (e *entity) Position() [3]float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.position
}

func (e *entity) Rotation() [3]float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rotation
}

func (e *entity) Scale() [3]float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scale
}

func (e *entity) RotationSpeed() [3]float32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rotationSpeed
}

func (e *entity) SetPosition(x, y, z float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = [3]float32{x, y, z}
}

func (e *entity) SetRotation(rx, ry, rz float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rotation = [3]float32{rx, ry, rz}
}

func (e *entity) SetScale(sx, sy, sz float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scale = [3]float32{sx, sy, sz}
}

func (e *entity) SetRotationSpeed(rx, ry, rz float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rotationSpeed = [3]float32{rx, ry, rz}
}

func (e *entity) ModelMatrix() common.Mat4 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return common.Compose(e.position, e.rotation, e.scale)
}

func (e *entity) Advance(dt float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rotationSpeed == [3]float32{} {
		return
	}
	for i := range 3 {
		e.rotation[i] += e.rotationSpeed[i] * dt
	}
}
