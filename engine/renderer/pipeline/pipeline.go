package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// Kind identifies which native pipeline object a Pipeline wraps.
type Kind int

const (
	// KindRender is a rasterization pipeline with vertex and pixel stages.
	KindRender Kind = iota

	// KindCompute is a compute pipeline with a single compute stage.
	KindCompute

	// KindRayTracing is a ray-tracing state object built from a library.
	KindRayTracing
)

func (k Kind) String() string {
	switch k {
	case KindRender:
		return "Render"
	case KindCompute:
		return "Compute"
	case KindRayTracing:
		return "RayTracing"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// pipeline is the implementation of the Pipeline interface.
// It holds the native pipeline object of its kind together with the program and layout it
// was created from.
type pipeline struct {
	// kind selects which of the native objects below is set
	kind Kind
	// key is the cache key, unique per program, vertex layout and render state
	key string

	program shader.Program
	layout  *binding_layout.Layout

	render     gpu.RenderPipeline
	compute    gpu.ComputePipeline
	rayTracing gpu.RayTracingPipeline

	// The following properties configure render pipelines and can be set with the builder
	// options. Compute and ray-tracing pipelines keep the defaults and ignore them.

	label             string
	depthTestEnabled  bool
	depthWriteEnabled bool
	blendEnabled      bool
	cullMode          gpu.CullMode
	targetFormats     []gpu.TextureFormat
	depthFormat       gpu.TextureFormat
	vertexLayout      *gpu.VertexLayout
}

// Pipeline is a created GPU pipeline: a render pipeline (vertex + pixel stages), a compute
// pipeline or a ray-tracing state object, with the binding layout it was created against.
type Pipeline interface {
	// Kind returns the kind of the pipeline.
	//
	// Returns:
	//   - Kind: render, compute or ray tracing
	Kind() Kind

	// Key returns the cache key of the pipeline.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	Key() string

	// Program returns the shader program the pipeline was created from.
	Program() shader.Program

	// Layout returns the binding layout the pipeline was created against.
	Layout() *binding_layout.Layout

	// Render returns the native render pipeline, or nil for other kinds.
	Render() gpu.RenderPipeline

	// Compute returns the native compute pipeline, or nil for other kinds.
	Compute() gpu.ComputePipeline

	// RayTracing returns the native ray-tracing state object, or nil for other kinds.
	RayTracing() gpu.RayTracingPipeline

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	DepthWriteEnabled() bool

	// BlendEnabled returns whether alpha blending is enabled for this pipeline.
	BlendEnabled() bool

	// CullMode returns the face culling mode of this pipeline.
	CullMode() gpu.CullMode

	// TargetFormats returns the color target formats of a render pipeline.
	TargetFormats() []gpu.TextureFormat

	// Bind sets the native pipeline and its binding layout on a command list.
	//
	// Parameters:
	//   - cl: the command list to record into
	Bind(cl gpu.CommandList)

	// Release frees the native pipeline object.
	Release()
}

var _ Pipeline = &pipeline{}

func newPipeline(kind Kind, program shader.Program, layout *binding_layout.Layout, opts ...PipelineBuilderOption) *pipeline {
	p := &pipeline{
		kind:              kind,
		program:           program,
		layout:            layout,
		label:             program.Key(),
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		blendEnabled:      false,
		cullMode:          gpu.CullModeBack,
		depthFormat:       gpu.TextureFormatDepth32Float,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.key = p.cacheKey()
	return p
}

// cacheKey joins everything that changes the native object: the kind, the program, the
// vertex layout and, for render pipelines, the target and depth state.
func (p *pipeline) cacheKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%p", p.kind, p.program.Key(), p.layout)
	if p.kind != KindRender {
		return b.String()
	}
	fmt.Fprintf(&b, "|%s", p.resolvedVertexLayout().Key())
	for _, f := range p.targetFormats {
		fmt.Fprintf(&b, "|%s", f)
	}
	fmt.Fprintf(&b, "|%s|%t|%t|%t|%d", p.depthFormat, p.depthTestEnabled, p.depthWriteEnabled, p.blendEnabled, p.cullMode)
	return b.String()
}

func (p *pipeline) resolvedVertexLayout() gpu.VertexLayout {
	if p.vertexLayout != nil {
		return *p.vertexLayout
	}
	if r, ok := p.program.Payload().(*shader.RasterizationStages); ok {
		return r.VertexLayout
	}
	return gpu.VertexLayout{}
}

func stageCode(program shader.Program, c shader.StageCode) gpu.ShaderStageCode {
	return gpu.ShaderStageCode{
		Label:      program.Key() + " " + c.Stage.String(),
		EntryPoint: c.EntryPoint,
		Source:     c.Source,
		ByteCode:   c.ByteCode,
	}
}

func (p *pipeline) create(device gpu.Device) error {
	var err error
	switch payload := p.program.Payload().(type) {
	case *shader.RasterizationStages:
		desc := gpu.RenderPipelineDescriptor{
			Label:         p.label,
			Layout:        p.layout.Native,
			Vertex:        stageCode(p.program, payload.Vertex),
			Pixel:         stageCode(p.program, payload.Pixel),
			VertexLayout:  p.resolvedVertexLayout(),
			TargetFormats: p.targetFormats,
			DepthFormat:   p.depthFormat,
			DepthTest:     p.depthTestEnabled,
			DepthWrite:    p.depthWriteEnabled,
			CullMode:      p.cullMode,
			BlendEnabled:  p.blendEnabled,
		}
		if payload.Geometry != nil {
			g := stageCode(p.program, *payload.Geometry)
			desc.Geometry = &g
		}
		p.render, err = device.CreateRenderPipeline(desc)
	case *shader.ComputeStage:
		p.compute, err = device.CreateComputePipeline(gpu.ComputePipelineDescriptor{
			Label:   p.label,
			Layout:  p.layout.Native,
			Compute: stageCode(p.program, payload.Compute),
		})
	case *shader.RayTracingStages:
		ex := payload.Exports()
		desc := gpu.RayTracingPipelineDescriptor{
			Label:             p.label,
			Layout:            p.layout.Native,
			Module:            stageCode(p.program, payload.Library),
			RayGeneration:     ex.RayGeneration,
			Miss:              ex.Miss,
			MaxPayloadSize:    payload.MaxPayloadSize,
			MaxAttributeSize:  payload.MaxAttributeSize,
			MaxRecursionDepth: payload.MaxRecursionDepth,
		}
		for _, hg := range ex.HitGroups {
			desc.HitGroups = append(desc.HitGroups, gpu.HitGroupDescriptor{
				Name:         hg.Name,
				ClosestHit:   hg.ClosestHit,
				AnyHit:       hg.AnyHit,
				Intersection: hg.Intersection,
			})
		}
		p.rayTracing, err = device.CreateRayTracingPipeline(desc)
	default:
		return fmt.Errorf("pipeline: program %q has no payload", p.program.Key())
	}
	if err != nil {
		return fmt.Errorf("pipeline: create %s pipeline %q: %w", p.kind, p.label, err)
	}
	return nil
}

func (p *pipeline) Kind() Kind {
	return p.kind
}

func (p *pipeline) Key() string {
	return p.key
}

func (p *pipeline) Program() shader.Program {
	return p.program
}

func (p *pipeline) Layout() *binding_layout.Layout {
	return p.layout
}

func (p *pipeline) Render() gpu.RenderPipeline {
	return p.render
}

func (p *pipeline) Compute() gpu.ComputePipeline {
	return p.compute
}

func (p *pipeline) RayTracing() gpu.RayTracingPipeline {
	return p.rayTracing
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() gpu.CullMode {
	return p.cullMode
}

func (p *pipeline) TargetFormats() []gpu.TextureFormat {
	return p.targetFormats
}

func (p *pipeline) Bind(cl gpu.CommandList) {
	switch p.kind {
	case KindRender:
		cl.SetRenderPipeline(p.render)
		cl.SetGraphicsLayout(p.layout.Native)
	case KindCompute:
		cl.SetComputePipeline(p.compute)
		cl.SetComputeLayout(p.layout.Native)
	case KindRayTracing:
		cl.SetRayTracingPipeline(p.rayTracing)
		cl.SetComputeLayout(p.layout.Native)
	}
}

func (p *pipeline) Release() {
	switch {
	case p.render != nil:
		p.render.Release()
	case p.compute != nil:
		p.compute.Release()
	case p.rayTracing != nil:
		p.rayTracing.Release()
	}
}

// Cache creates pipelines on first use and returns the cached object for every later
// request with the same program, layout, vertex layout and render state.
type Cache interface {
	// Get returns the pipeline for a program, creating it if needed. The kind follows the
	// program's payload.
	//
	// Parameters:
	//   - program: the shader program
	//   - layout: the binding layout built from the program's reflection
	//   - opts: variadic list of PipelineBuilderOption functions
	//
	// Returns:
	//   - Pipeline: the cached or newly created pipeline
	//   - error: creation error; nothing is cached on failure
	Get(program shader.Program, layout *binding_layout.Layout, opts ...PipelineBuilderOption) (Pipeline, error)

	// Count returns the number of cached pipelines.
	Count() int

	// CountKind returns the number of cached pipelines of one kind.
	CountKind(kind Kind) int

	// Release frees every cached pipeline and empties the cache.
	Release()
}

type cache struct {
	mu        sync.Mutex
	device    gpu.Device
	pipelines map[string]*pipeline
}

var _ Cache = &cache{}

// NewCache creates an empty pipeline cache.
//
// Parameters:
//   - device: the device creating the pipelines
//
// Returns:
//   - Cache: the cache
func NewCache(device gpu.Device) Cache {
	if device == nil {
		panic("pipeline: nil device")
	}
	return &cache{device: device, pipelines: make(map[string]*pipeline)}
}

func (c *cache) Get(program shader.Program, layout *binding_layout.Layout, opts ...PipelineBuilderOption) (Pipeline, error) {
	if program == nil || layout == nil {
		return nil, fmt.Errorf("pipeline: program and layout are required")
	}
	var kind Kind
	switch program.Payload().(type) {
	case *shader.RasterizationStages:
		kind = KindRender
	case *shader.ComputeStage:
		kind = KindCompute
	case *shader.RayTracingStages:
		kind = KindRayTracing
	default:
		return nil, fmt.Errorf("pipeline: program %q has no payload", program.Key())
	}

	p := newPipeline(kind, program, layout, opts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.pipelines[p.key]; ok {
		return cached, nil
	}
	if err := p.create(c.device); err != nil {
		return nil, err
	}
	c.pipelines[p.key] = p
	logger.Logger().Debug("pipeline created", "kind", kind, "program", program.Key(), "cached", len(c.pipelines))
	return p, nil
}

func (c *cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pipelines)
}

func (c *cache) CountKind(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pipelines {
		if p.kind == kind {
			n++
		}
	}
	return n
}

func (c *cache) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pipelines {
		p.Release()
	}
	c.pipelines = make(map[string]*pipeline)
}
