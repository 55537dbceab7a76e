package wgpu_backend

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// textureFormats maps gpu texel formats to their WebGPU counterparts.
var textureFormats = map[gpu.TextureFormat]wgpu.TextureFormat{
	gpu.TextureFormatRGBA8Unorm:   wgpu.TextureFormatRGBA8Unorm,
	gpu.TextureFormatBGRA8Unorm:   wgpu.TextureFormatBGRA8Unorm,
	gpu.TextureFormatRGBA16Float:  wgpu.TextureFormatRGBA16Float,
	gpu.TextureFormatRGBA32Float:  wgpu.TextureFormatRGBA32Float,
	gpu.TextureFormatR32Float:     wgpu.TextureFormatR32Float,
	gpu.TextureFormatDepth32Float: wgpu.TextureFormatDepth32Float,
}

// vertexFormats maps gpu vertex attribute formats to their WebGPU counterparts.
var vertexFormats = map[gpu.VertexFormat]wgpu.VertexFormat{
	gpu.VertexFormatFloat32:   wgpu.VertexFormatFloat32,
	gpu.VertexFormatFloat32x2: wgpu.VertexFormatFloat32x2,
	gpu.VertexFormatFloat32x3: wgpu.VertexFormatFloat32x3,
	gpu.VertexFormatFloat32x4: wgpu.VertexFormatFloat32x4,
	gpu.VertexFormatUint32:    wgpu.VertexFormatUint32,
	gpu.VertexFormatSint32:    wgpu.VertexFormatSint32,
}

func toTextureFormat(f gpu.TextureFormat) (wgpu.TextureFormat, error) {
	native, ok := textureFormats[f]
	if !ok {
		return wgpu.TextureFormatUndefined, fmt.Errorf("wgpu_backend: unsupported texture format %s", f)
	}
	return native, nil
}

// chooseSurfaceFormat picks the first surface format that pipelines can target.
//
// Parameters:
//   - formats: formats reported by the surface capabilities, in preference order
//
// Returns:
//   - wgpu.TextureFormat: the native format to configure
//   - gpu.TextureFormat: the matching gpu format
//   - bool: false if no reported format is usable
func chooseSurfaceFormat(formats []wgpu.TextureFormat) (wgpu.TextureFormat, gpu.TextureFormat, bool) {
	for _, f := range formats {
		switch f {
		case wgpu.TextureFormatBGRA8Unorm:
			return f, gpu.TextureFormatBGRA8Unorm, true
		case wgpu.TextureFormatRGBA8Unorm:
			return f, gpu.TextureFormatRGBA8Unorm, true
		}
	}
	return wgpu.TextureFormatUndefined, gpu.TextureFormatUndefined, false
}

// bufferUsage converts gpu usage flags. Every buffer is a copy source and destination so
// uploads and CPU-built structures can be written through the queue.
func bufferUsage(u gpu.BufferUsage) wgpu.BufferUsage {
	out := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	if u&gpu.BufferUsageVertex != 0 {
		out |= wgpu.BufferUsageVertex
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= wgpu.BufferUsageIndex
	}
	if u&gpu.BufferUsageConstant != 0 {
		out |= wgpu.BufferUsageUniform
	}
	storage := gpu.BufferUsageShaderResource | gpu.BufferUsageUnorderedAccess | gpu.BufferUsageShaderTable |
		gpu.BufferUsageAccelerationStructureInput | gpu.BufferUsageScratch
	if u&storage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	return out
}

func textureUsage(u gpu.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	if u&gpu.TextureUsageShaderResource != 0 {
		out |= wgpu.TextureUsageTextureBinding
	}
	if u&(gpu.TextureUsageRenderTarget|gpu.TextureUsageDepthStencil) != 0 {
		out |= wgpu.TextureUsageRenderAttachment
	}
	if u&gpu.TextureUsageUnorderedAccess != 0 {
		out |= wgpu.TextureUsageStorageBinding
	}
	if u&gpu.TextureUsageCopyDst != 0 {
		out |= wgpu.TextureUsageCopyDst
	}
	return out
}

func cullMode(m gpu.CullMode) wgpu.CullMode {
	switch m {
	case gpu.CullModeBack:
		return wgpu.CullModeBack
	case gpu.CullModeFront:
		return wgpu.CullModeFront
	default:
		return wgpu.CullModeNone
	}
}

func vertexBufferLayout(l gpu.VertexLayout) ([]wgpu.VertexBufferLayout, error) {
	if len(l.Attributes) == 0 {
		return nil, nil
	}
	attrs := make([]wgpu.VertexAttribute, 0, len(l.Attributes))
	for _, a := range l.Attributes {
		f, ok := vertexFormats[a.Format]
		if !ok {
			return nil, fmt.Errorf("wgpu_backend: unsupported vertex format %d at location %d", a.Format, a.Location)
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         f,
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	return []wgpu.VertexBufferLayout{{
		ArrayStride: uint64(l.Stride),
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}}, nil
}

func samplerDescriptor(s gpu.StaticSampler) *wgpu.SamplerDescriptor {
	address := wgpu.AddressModeRepeat
	if s.Address == gpu.AddressClamp {
		address = wgpu.AddressModeClampToEdge
	}
	filter := wgpu.FilterModeNearest
	if s.Filter == gpu.FilterLinear {
		filter = wgpu.FilterModeLinear
	}
	desc := &wgpu.SamplerDescriptor{
		Label:         fmt.Sprintf("static sampler s%d space%d", s.Register, s.Space),
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	if s.Compare == gpu.CompareLess {
		desc.Compare = wgpu.CompareFunctionLess
	}
	return desc
}
