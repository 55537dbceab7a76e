// Package scene holds the aggregate the renderer consumes: a camera, the lights, the
// entities and the ray-tracing program used for reflections.
package scene

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// DefaultSkyColor is the clear color of the composite pass and the color returned by rays
// that miss every entity.
var DefaultSkyColor = [4]float32{0.05, 0.07, 0.12, 1}

type scene struct {
	mu *sync.RWMutex

	name     string
	cam      camera.Camera
	lights   []light.Light
	entities []Entity
	program  shader.Program
	sky      [4]float32
}

// Scene is the hand-off between application code and the renderer. The entity list is the
// topology of the acceleration structure: once a renderer has been initialized with a scene,
// entities may move but must not be added or removed until it is initialized again.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Camera returns the camera the scene is viewed through.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// SetCamera replaces the camera.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// Lights returns the lights in insertion order.
	//
	// Returns:
	//   - []light.Light: a copy of the light list
	Lights() []light.Light

	// AddLight adds a light. At most light.MaxDirectionalLights directional and
	// light.MaxPointLights point lights fit the light buffer.
	//
	// Parameters:
	//   - l: the light
	//
	// Returns:
	//   - error: error if the light buffer has no room for another light of its type
	AddLight(l light.Light) error

	// Entities returns the entities in insertion order. An entity's index is its instance
	// and hit-group index.
	//
	// Returns:
	//   - []Entity: a copy of the entity list
	Entities() []Entity

	// AddEntities appends entities.
	//
	// Parameters:
	//   - entities: the entities to add
	AddEntities(entities ...Entity)

	// Materials returns every distinct material used by the entities, in first-use order.
	//
	// Returns:
	//   - []material.Instance: the materials
	Materials() []material.Instance

	// RayTracingProgram returns the program dispatched by the reflection pass.
	//
	// Returns:
	//   - shader.Program: the program, or nil if unset
	RayTracingProgram() shader.Program

	// SetRayTracingProgram sets the program dispatched by the reflection pass.
	//
	// Parameters:
	//   - p: a program of kind shader.KindRayTracing
	SetRayTracingProgram(p shader.Program)

	// SkyColor returns the background color.
	//
	// Returns:
	//   - [4]float32: linear RGBA
	SkyColor() [4]float32

	// Update advances the camera and every entity by dt seconds.
	//
	// Parameters:
	//   - dt: elapsed seconds since the last update
	Update(dt float32)
}

var _ Scene = &scene{}

// NewScene creates a Scene. NewScene panics if cam is nil.
//
// Parameters:
//   - name: the scene name
//   - cam: the camera (must not be nil)
//   - options: variadic list of SceneBuilderOption functions
//
// Returns:
//   - Scene: the new scene
func NewScene(name string, cam camera.Camera, options ...SceneBuilderOption) Scene {
	if cam == nil {
		panic("scene: NewScene requires a non-nil Camera")
	}
	s := &scene{
		mu:   &sync.RWMutex{},
		name: name,
		cam:  cam,
		sky:  DefaultSkyColor,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Camera() camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]light.Light(nil), s.lights...)
}

func (s *scene) AddLight(l light.Light) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLight(l)
}

func (s *scene) addLight(l light.Light) error {
	limit := light.MaxPointLights
	if l.Type() == light.LightTypeDirectional {
		limit = light.MaxDirectionalLights
	}
	n := 0
	for _, existing := range s.lights {
		if existing.Type() == l.Type() {
			n++
		}
	}
	if n >= limit {
		return fmt.Errorf("scene: %q already has %d %s lights", s.name, limit, l.Type())
	}
	s.lights = append(s.lights, l)
	return nil
}

func (s *scene) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entity(nil), s.entities...)
}

func (s *scene) AddEntities(entities ...Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append(s.entities, entities...)
}

func (s *scene) Materials() []material.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[material.Instance]bool)
	var out []material.Instance
	for _, e := range s.entities {
		m := e.Material()
		if m == nil || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func (s *scene) RayTracingProgram() shader.Program {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.program
}

func (s *scene) SetRayTracingProgram(p shader.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.program = p
}

func (s *scene) SkyColor() [4]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sky
}

func (s *scene) Update(dt float32) {
	s.mu.RLock()
	cam := s.cam
	entities := s.entities
	s.mu.RUnlock()

	cam.Update()
	for _, e := range entities {
		e.Advance(dt)
	}
}
