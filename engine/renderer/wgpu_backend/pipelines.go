package wgpu_backend

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader/rtwgsl"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrUnsupported is returned for pipeline features WebGPU cannot express.
var ErrUnsupported = errors.New("wgpu_backend: unsupported feature")

type renderPipeline struct {
	label  string
	layout *bindingLayout
	native *wgpu.RenderPipeline
}

type computePipeline struct {
	label  string
	layout *bindingLayout
	native *wgpu.ComputePipeline
}

type rayTracingPipeline struct {
	computePipeline
	identifiers map[string][]byte
}

var (
	_ gpu.RenderPipeline     = &renderPipeline{}
	_ gpu.ComputePipeline    = &computePipeline{}
	_ gpu.RayTracingPipeline = &rayTracingPipeline{}
)

func nativeLayout(l gpu.BindingLayout) (*bindingLayout, error) {
	layout, ok := l.(*bindingLayout)
	if !ok || layout == nil || layout.native == nil {
		return nil, fmt.Errorf("wgpu_backend: layout %T was not created by this device", l)
	}
	return layout, nil
}

// shaderModule compiles the WGSL source of a stage. The byte code produced by the shader
// compiler is validation output only; WebGPU consumes the source.
func (d *device) shaderModule(code gpu.ShaderStageCode) (*wgpu.ShaderModule, error) {
	if code.Source == "" {
		return nil, fmt.Errorf("wgpu_backend: stage %q has no source", code.Label)
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: code.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: code.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create shader module %q: %w", code.Label, err)
	}
	return module, nil
}

func (d *device) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	if desc.Geometry != nil {
		return nil, fmt.Errorf("%w: geometry stage in %q", ErrUnsupported, desc.Label)
	}
	layout, err := nativeLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	buffers, err := vertexBufferLayout(desc.VertexLayout)
	if err != nil {
		return nil, err
	}

	vs, err := d.shaderModule(desc.Vertex)
	if err != nil {
		return nil, err
	}
	defer vs.Release()
	fs := vs
	if desc.Pixel.Source != desc.Vertex.Source {
		if fs, err = d.shaderModule(desc.Pixel); err != nil {
			return nil, err
		}
		defer fs.Release()
	}

	targets := make([]wgpu.ColorTargetState, 0, len(desc.TargetFormats))
	for _, f := range desc.TargetFormats {
		format, err := toTextureFormat(f)
		if err != nil {
			return nil, err
		}
		state := wgpu.ColorTargetState{
			Format:    format,
			WriteMask: wgpu.ColorWriteMaskAll,
		}
		if desc.BlendEnabled {
			state.Blend = &wgpu.BlendState{
				Color: wgpu.BlendComponent{
					SrcFactor: wgpu.BlendFactorSrcAlpha,
					DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
					Operation: wgpu.BlendOperationAdd,
				},
				Alpha: wgpu.BlendComponent{
					SrcFactor: wgpu.BlendFactorOne,
					DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
					Operation: wgpu.BlendOperationAdd,
				},
			}
		}
		targets = append(targets, state)
	}

	var depth *wgpu.DepthStencilState
	if desc.DepthFormat != gpu.TextureFormatUndefined {
		format, err := toTextureFormat(desc.DepthFormat)
		if err != nil {
			return nil, err
		}
		compare := wgpu.CompareFunctionLess
		if !desc.DepthTest {
			compare = wgpu.CompareFunctionAlways
		}
		depth = &wgpu.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	native, err := d.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.native,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: desc.Pixel.EntryPoint,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(desc.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depth,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create render pipeline %q: %w", desc.Label, err)
	}
	return &renderPipeline{label: desc.Label, layout: layout, native: native}, nil
}

func (p *renderPipeline) Label() string {
	return p.label
}

func (p *renderPipeline) Release() {
	if p.native != nil {
		p.native.Release()
		p.native = nil
	}
}

func (d *device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	return d.newComputePipeline(desc.Label, desc.Layout, desc.Compute)
}

func (d *device) newComputePipeline(label string, l gpu.BindingLayout, code gpu.ShaderStageCode) (*computePipeline, error) {
	layout, err := nativeLayout(l)
	if err != nil {
		return nil, err
	}
	module, err := d.shaderModule(code)
	if err != nil {
		return nil, err
	}
	defer module.Release()

	native, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label,
		Layout: layout.native,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: code.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create compute pipeline %q: %w", label, err)
	}
	return &computePipeline{label: label, layout: layout, native: native}, nil
}

func (p *computePipeline) Label() string {
	return p.label
}

func (p *computePipeline) Release() {
	if p.native != nil {
		p.native.Release()
		p.native = nil
	}
}

// CreateRayTracingPipeline compiles the lowered library as a compute pipeline. Shader
// identifiers carry the switch index the generated entry point dispatches on.
func (d *device) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDescriptor) (gpu.RayTracingPipeline, error) {
	layout, err := nativeLayout(desc.Layout)
	if err != nil {
		return nil, err
	}
	if !layout.desc.Flags.Has(gpu.LayoutRayTracing) {
		return nil, fmt.Errorf("wgpu_backend: ray tracing pipeline %q needs a ray tracing layout", desc.Label)
	}
	if desc.Module.EntryPoint != rtwgsl.EntryPoint {
		return nil, fmt.Errorf("wgpu_backend: ray tracing module %q is not lowered (entry %q)", desc.Label, desc.Module.EntryPoint)
	}

	d.mu.Lock()
	d.tag++
	tag := d.tag
	d.mu.Unlock()

	ids := make(map[string][]byte, 1+len(desc.Miss)+len(desc.HitGroups))
	ids[desc.RayGeneration] = rtwgsl.Identifier(rtwgsl.KindRayGeneration, 0, tag)
	for i, m := range desc.Miss {
		ids[m] = rtwgsl.Identifier(rtwgsl.KindMiss, uint32(i), tag)
	}
	for i, hg := range desc.HitGroups {
		if hg.AnyHit != "" || hg.Intersection != "" {
			return nil, fmt.Errorf("%w: hit group %q uses any-hit or intersection programs", ErrUnsupported, hg.Name)
		}
		ids[hg.Name] = rtwgsl.Identifier(rtwgsl.KindHitGroup, uint32(i), tag)
	}

	cp, err := d.newComputePipeline(desc.Label, layout, desc.Module)
	if err != nil {
		return nil, err
	}
	return &rayTracingPipeline{computePipeline: *cp, identifiers: ids}, nil
}

func (p *rayTracingPipeline) ShaderIdentifier(export string) ([]byte, bool) {
	id, ok := p.identifiers[export]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), id...), true
}
