// Package camera provides the perspective camera the renderer reads its view constants
// from, and the orbit controller that places it.
package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// Projection holds the perspective parameters of a camera.
type Projection struct {
	FovY   float32 // vertical field of view in radians
	Aspect float32 // width / height
	Near   float32
	Far    float32
}

// Matrix returns the column-major perspective matrix with a [0, 1] depth range.
func (p Projection) Matrix() common.Mat4 {
	return common.Perspective(p.FovY, p.Aspect, p.Near, p.Far)
}

// defaultProjection is a 45 degree camera with a square viewport.
var defaultProjection = Projection{
	FovY:   math.Pi / 4,
	Aspect: 1,
	Near:   0.1,
	Far:    100,
}

type cameraImpl struct {
	mu sync.Mutex

	projection Projection
	up         [3]float32
	controller CameraController

	// derived state, rebuilt by refresh when stale is set
	stale    bool
	position [3]float32
	view     common.Mat4
	proj     common.Mat4
	viewProj common.Mat4
}

// Camera is a perspective camera. Its view follows an attached CameraController: the
// eye sits at the controller's position and looks at the controller's target.
type Camera interface {
	// Projection returns the perspective parameters.
	//
	// Returns:
	//   - Projection: field of view, aspect and clip planes
	Projection() Projection

	// SetProjection replaces the perspective parameters.
	//
	// Parameters:
	//   - p: the new parameters
	SetProjection(p Projection)

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// SetAspect sets the aspect ratio (width / height), typically after a resize.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// Position returns the eye position read from the controller at the last update.
	//
	// Returns:
	//   - [3]float32: the camera position
	Position() [3]float32

	// ViewMatrix returns the column-major view matrix.
	ViewMatrix() common.Mat4

	// ProjectionMatrix returns the column-major projection matrix.
	ProjectionMatrix() common.Mat4

	// ViewProjectionMatrix returns projection * view.
	ViewProjectionMatrix() common.Mat4

	// Uniform returns the GPU constants for the current matrices.
	//
	// Returns:
	//   - GPUCameraUniform: view-projection and position, ready to marshal
	Uniform() GPUCameraUniform

	// Controller returns the attached CameraController, or nil.
	Controller() CameraController

	// SetController attaches a CameraController to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach, or nil to freeze the view
	SetController(ctrl CameraController)

	// Update re-reads the controller. Call it once per tick after moving the controller.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera with defaultProjection and +Y up.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		projection: defaultProjection,
		up:         [3]float32{0, 1, 0},
		view:       common.Identity(),
	}
	for _, option := range options {
		option(c)
	}
	c.stale = true
	return c
}

func (c *cameraImpl) Projection() Projection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) SetProjection(p Projection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = p
	c.stale = true
}

func (c *cameraImpl) Aspect() float32 {
	return c.Projection().Aspect
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection.Aspect = aspect
	c.stale = true
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.position
}

func (c *cameraImpl) ViewMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.proj
}

func (c *cameraImpl) ViewProjectionMatrix() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.viewProj
}

func (c *cameraImpl) Uniform() GPUCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return GPUCameraUniform{ViewProjection: c.viewProj, Position: c.position}
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.stale = true
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller != nil {
		c.stale = true
	}
}

// refresh rebuilds the derived matrices if anything changed. Without a controller the
// view keeps its last value. Caller must hold the mutex.
func (c *cameraImpl) refresh() {
	if !c.stale {
		return
	}
	c.stale = false
	if c.controller != nil {
		c.position = c.controller.Position()
		c.view = common.LookAt(c.position, c.controller.Target(), c.up)
	}
	c.proj = c.projection.Matrix()
	c.viewProj = c.proj.Mul(c.view)
}
