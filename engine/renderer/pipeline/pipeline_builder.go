package pipeline

import "github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithLabel sets the debug label of the native pipeline. The label is not part of the
// cache key.
//
// Parameters:
//   - label: the label, defaults to the program key
//
// Returns:
//   - PipelineBuilderOption: a function that sets the label for this pipeline
func WithLabel(label string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.label = label
	}
}

// WithTargetFormats sets the color target formats of a render pipeline.
//
// Parameters:
//   - formats: one format per color target, in target order
//
// Returns:
//   - PipelineBuilderOption: a function that sets the target formats for this pipeline
func WithTargetFormats(formats ...gpu.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.targetFormats = append([]gpu.TextureFormat(nil), formats...)
	}
}

// WithDepthFormat sets the depth attachment format of a render pipeline.
// gpu.TextureFormatUndefined renders without a depth attachment.
//
// Parameters:
//   - format: the depth format
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth format for this pipeline
func WithDepthFormat(format gpu.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthFormat = format
	}
}

// WithVertexLayout overrides the vertex layout derived from the vertex stage.
//
// Parameters:
//   - layout: the vertex buffer layout of the meshes drawn with this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex layout for this pipeline
func WithVertexLayout(layout gpu.VertexLayout) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexLayout = &layout
	}
}

// WithDepthTestEnabled toggles the depth test. Enabled by default.
func WithDepthTestEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled toggles depth writes. Enabled by default.
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthWriteEnabled = enabled
	}
}

// WithBlendEnabled toggles source-over alpha blending on every color target.
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blendEnabled = enabled
	}
}

// WithCullMode sets the face culling mode. Back faces are culled by default.
func WithCullMode(mode gpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}
