package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// Formats of the G-buffer, depth and reflection targets.
const (
	PositionFormat   = gpu.TextureFormatRGBA32Float
	NormalFormat     = gpu.TextureFormatRGBA16Float
	MaskFormat       = gpu.TextureFormatRGBA8Unorm
	DepthFormat      = gpu.TextureFormatDepth32Float
	ReflectionFormat = gpu.TextureFormatRGBA16Float
)

// targets are the size-dependent textures of a frame. Between passes every target rests in
// gpu.ResourceStateCommon.
type targets struct {
	position gpu.Texture
	normal   gpu.Texture
	mask     gpu.Texture
	depth    gpu.Texture
	output   gpu.Texture
}

func newTargets(device gpu.Device, label string, width, height uint32) (*targets, error) {
	t := &targets{}
	specs := []struct {
		dst    *gpu.Texture
		name   string
		format gpu.TextureFormat
		usage  gpu.TextureUsage
	}{
		{&t.position, "gPosition", PositionFormat, gpu.TextureUsageRenderTarget | gpu.TextureUsageShaderResource},
		{&t.normal, "gNormal", NormalFormat, gpu.TextureUsageRenderTarget | gpu.TextureUsageShaderResource},
		{&t.mask, "gMask", MaskFormat, gpu.TextureUsageRenderTarget | gpu.TextureUsageShaderResource},
		{&t.depth, "depth", DepthFormat, gpu.TextureUsageDepthStencil},
		{&t.output, "reflection", ReflectionFormat, gpu.TextureUsageUnorderedAccess | gpu.TextureUsageShaderResource},
	}
	for _, s := range specs {
		tex, err := device.CreateTexture(gpu.TextureDescriptor{
			Label:  label + " " + s.name,
			Width:  width,
			Height: height,
			Format: s.format,
			Usage:  s.usage,
		})
		if err != nil {
			t.release()
			return nil, fmt.Errorf("renderer: create %s target: %w", s.name, err)
		}
		*s.dst = tex
	}
	return t, nil
}

// gbuffer returns the G-buffer color targets in attachment order.
func (t *targets) gbuffer() []gpu.Texture {
	return []gpu.Texture{t.position, t.normal, t.mask}
}

// transition builds one barrier per texture.
func transition(before, after gpu.ResourceState, textures ...gpu.Texture) []gpu.Barrier {
	out := make([]gpu.Barrier, len(textures))
	for i, tex := range textures {
		out[i] = gpu.Transition(tex, before, after)
	}
	return out
}

func (t *targets) release() {
	for _, tex := range []gpu.Texture{t.position, t.normal, t.mask, t.depth, t.output} {
		if tex != nil {
			tex.Release()
		}
	}
	*t = targets{}
}
