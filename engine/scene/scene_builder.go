package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithLights adds initial lights. The option panics when the lights overflow the light
// buffer; use Scene.AddLight to handle that case as an error.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			if err := s.addLight(l); err != nil {
				panic(err)
			}
		}
	}
}

// WithEntities adds initial entities.
//
// Parameters:
//   - entities: the entities to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithEntities(entities ...Entity) SceneBuilderOption {
	return func(s *scene) {
		s.entities = append(s.entities, entities...)
	}
}

// WithRayTracingProgram sets the program dispatched by the reflection pass.
//
// Parameters:
//   - p: a ray-tracing program
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRayTracingProgram(p shader.Program) SceneBuilderOption {
	return func(s *scene) {
		s.program = p
	}
}

// WithSkyColor sets the background color.
//
// Parameters:
//   - rgba: linear RGBA
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSkyColor(rgba [4]float32) SceneBuilderOption {
	return func(s *scene) {
		s.sky = rgba
	}
}
