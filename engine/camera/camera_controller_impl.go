package camera

import (
	"math"
	"sync"
)

// spherical is a point on a sphere around a target.
type spherical struct {
	radius    float32
	azimuth   float32 // around +Y, 0 looks down -Z from +Z
	elevation float32 // above the horizontal plane
}

// offset converts the coordinates to a cartesian offset from the target.
func (s spherical) offset() [3]float32 {
	sinE, cosE := math.Sincos(float64(s.elevation))
	sinA, cosA := math.Sincos(float64(s.azimuth))
	return [3]float32{
		s.radius * float32(cosE*sinA),
		s.radius * float32(sinE),
		s.radius * float32(cosE*cosA),
	}
}

type orbitController struct {
	mu sync.Mutex

	target [3]float32
	at     spherical

	minRadius, maxRadius float32
	elevationLimit       float32

	orbitSpeed float32
	zoomSpeed  float32
}

var _ CameraController = &orbitController{}

// NewOrbitController creates an orbit controller 10 units from the origin, 30 degrees
// above the horizon.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewOrbitController(options ...CameraControllerOption) CameraController {
	cc := &orbitController{
		at:             spherical{radius: 10, elevation: math.Pi / 6},
		minRadius:      1,
		maxRadius:      500,
		elevationLimit: math.Pi/2 - 0.1,
		orbitSpeed:     0.03,
		zoomSpeed:      0.5,
	}
	for _, option := range options {
		option(cc)
	}
	cc.at.radius = clamp(cc.at.radius, cc.minRadius, cc.maxRadius)
	cc.at.elevation = clamp(cc.at.elevation, -cc.elevationLimit, cc.elevationLimit)
	return cc
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(hi, v))
}

func (cc *orbitController) Position() [3]float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	o := cc.at.offset()
	return [3]float32{cc.target[0] + o[0], cc.target[1] + o[1], cc.target[2] + o[2]}
}

func (cc *orbitController) Target() [3]float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *orbitController) SetTarget(x, y, z float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = [3]float32{x, y, z}
}

func (cc *orbitController) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.at.azimuth += dAzimuth
	cc.at.elevation = clamp(cc.at.elevation+dElevation, -cc.elevationLimit, cc.elevationLimit)
}

func (cc *orbitController) OrbitLeft()  { cc.Orbit(-cc.orbitSpeed, 0) }
func (cc *orbitController) OrbitRight() { cc.Orbit(cc.orbitSpeed, 0) }
func (cc *orbitController) OrbitUp()    { cc.Orbit(0, cc.orbitSpeed) }
func (cc *orbitController) OrbitDown()  { cc.Orbit(0, -cc.orbitSpeed) }

func (cc *orbitController) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.at.radius = clamp(cc.at.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
}

func (cc *orbitController) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.at.radius
}

func (cc *orbitController) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.at.azimuth
}

func (cc *orbitController) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.at.elevation
}
