package material

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// InstanceBuilderOption is a function that configures a material instance during construction.
type InstanceBuilderOption func(*instance)

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("material: %v", err))
	}
}

// WithColor is an option builder that sets an RGBA color field of the material.
//
// Parameters:
//   - field: vec4 field name
//   - rgba: the color
//
// Returns:
//   - InstanceBuilderOption: a function that applies the color to an instance
func WithColor(field string, rgba [4]float32) InstanceBuilderOption {
	return func(m *instance) {
		must(m.SetColor(field, rgba))
	}
}

// WithFloat is an option builder that sets a scalar field of the material.
//
// Parameters:
//   - field: f32 field name
//   - v: the value
//
// Returns:
//   - InstanceBuilderOption: a function that applies the value to an instance
func WithFloat(field string, v float32) InstanceBuilderOption {
	return func(m *instance) {
		must(m.SetFloat(field, v))
	}
}

// WithTexture is an option builder that sets a sampled-texture field of the material.
//
// Parameters:
//   - field: texture field name
//   - tex: the texture
//
// Returns:
//   - InstanceBuilderOption: a function that applies the texture to an instance
func WithTexture(field string, tex *model.Texture) InstanceBuilderOption {
	return func(m *instance) {
		must(m.SetTexture(field, tex))
	}
}

// WithParams is an option builder that fills the default MaterialParams members, skipping
// members the program does not declare.
//
// Parameters:
//   - params: base color and reflectivity
//
// Returns:
//   - InstanceBuilderOption: a function that applies the parameters to an instance
func WithParams(params model.GPUMaterialParams) InstanceBuilderOption {
	return func(m *instance) {
		_ = m.SetColor("baseColor", params.BaseColor)
		_ = m.SetFloat("reflectivity", params.Reflectivity)
	}
}
