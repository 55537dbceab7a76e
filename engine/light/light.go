// Package light defines the scene's light sources and their packed GPU representation.
package light

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional is a light infinitely far away, such as the sun. It has a
	// direction and no falloff.
	LightTypeDirectional LightType = iota

	// LightTypePoint emits in every direction from a position and fades out at its range.
	LightTypePoint
)

func (t LightType) String() string {
	if t == LightTypeDirectional {
		return "directional"
	}
	return "point"
}

// Params are the tunable properties of a light. Fields that do not apply to the light's
// type are ignored when it is packed for the GPU.
type Params struct {
	Position  [3]float32 // point lights
	Direction [3]float32 // directional lights, normalized, the way the light travels
	Color     [3]float32
	Intensity float32
	Range     float32 // point lights, distance at which the light reaches zero
	Enabled   bool
}

// defaultParams is a white light pointing straight down.
var defaultParams = Params{
	Direction: [3]float32{0, -1, 0},
	Color:     [3]float32{1, 1, 1},
	Intensity: 1,
	Range:     10,
	Enabled:   true,
}

type lightImpl struct {
	mu        sync.Mutex
	lightType LightType
	params    Params
}

// Light is a light source. Lights are packed into the LightBuffer constant buffer once
// per frame, so changes made between frames show on the next one.
type Light interface {
	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: directional or point
	Type() LightType

	// Params returns a copy of the light's current properties.
	//
	// Returns:
	//   - Params: the properties
	Params() Params

	// SetParams replaces the light's properties. The direction is normalized; a zero
	// direction points the light down.
	//
	// Parameters:
	//   - p: the new properties
	SetParams(p Params)

	// Enabled reports whether the light is packed for rendering.
	Enabled() bool
}

var _ Light = &lightImpl{}

// NewLight creates a white, enabled light of intensity 1 and range 10 pointing down.
//
// Parameters:
//   - lightType: the type of light to create
//   - opts: options applied over the defaults
//
// Returns:
//   - Light: the configured light
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{lightType: lightType, params: defaultParams}
	for _, opt := range opts {
		opt(&l.params)
	}
	l.params.Direction = direction(l.params.Direction)
	return l
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.params
}

func (l *lightImpl) SetParams(p Params) {
	p.Direction = direction(p.Direction)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = p
}

func (l *lightImpl) Enabled() bool {
	return l.Params().Enabled
}

// direction normalizes d, falling back to straight down for a zero vector.
func direction(d [3]float32) [3]float32 {
	if d == ([3]float32{}) {
		return defaultParams.Direction
	}
	return common.Normalize3(d)
}
