package light

// LightBuilderOption configures a Light during construction.
type LightBuilderOption func(*Params)

// WithPosition sets the world-space position of a point light.
func WithPosition(x, y, z float32) LightBuilderOption {
	return func(p *Params) {
		p.Position = [3]float32{x, y, z}
	}
}

// WithDirection sets the travel direction of a directional light. The vector does not
// need to be normalized.
//
// Parameters:
//   - x, y, z: the direction components
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(p *Params) {
		p.Direction = [3]float32{x, y, z}
	}
}

// WithColor sets the RGB color.
func WithColor(r, g, b float32) LightBuilderOption {
	return func(p *Params) {
		p.Color = [3]float32{r, g, b}
	}
}

// WithIntensity sets the scalar intensity multiplier.
func WithIntensity(intensity float32) LightBuilderOption {
	return func(p *Params) {
		p.Intensity = intensity
	}
}

// WithRange sets the distance at which a point light fades to zero.
//
// Parameters:
//   - lightRange: the cutoff distance
//
// Returns:
//   - LightBuilderOption: option function to apply
func WithRange(lightRange float32) LightBuilderOption {
	return func(p *Params) {
		p.Range = lightRange
	}
}

// WithEnabled sets whether the light starts enabled.
func WithEnabled(enabled bool) LightBuilderOption {
	return func(p *Params) {
		p.Enabled = enabled
	}
}
