package pipeline

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

type fakeProgram struct {
	key     string
	payload shader.Payload
}

func (p *fakeProgram) Key() string                           { return p.key }
func (p *fakeProgram) Kind() shader.ProgramKind              { return shader.KindRasterization }
func (p *fakeProgram) ShaderModel() string                   { return "6_5" }
func (p *fakeProgram) Source() string                        { return "" }
func (p *fakeProgram) Descriptor() shader.Descriptor         { return shader.Descriptor{} }
func (p *fakeProgram) Payload() shader.Payload               { return p.payload }
func (p *fakeProgram) Reflections() []shader.StageReflection { return nil }

func rasterProgram(key string) shader.Program {
	return &fakeProgram{key: key, payload: &shader.RasterizationStages{
		Vertex:       shader.StageCode{Stage: shader.StageVertex, EntryPoint: "vsMain"},
		Pixel:        shader.StageCode{Stage: shader.StagePixel, EntryPoint: "psMain"},
		VertexLayout: model.VertexLayout,
	}}
}

func rayTracingProgram(key string) shader.Program {
	return &fakeProgram{key: key, payload: &shader.RayTracingStages{
		Library:       shader.StageCode{Stage: shader.StageRayGeneration, EntryPoint: "rt_main"},
		RayGeneration: shader.StageCode{Stage: shader.StageRayGeneration, EntryPoint: "raygen"},
		Miss:          []shader.StageCode{{Stage: shader.StageMiss, EntryPoint: "miss"}},
		HitGroups: []shader.HitGroupStages{{
			Name:       "HitGroup",
			ClosestHit: &shader.StageCode{Stage: shader.StageClosestHit, EntryPoint: "closestHit"},
		}},
		MaxPayloadSize:    16,
		MaxAttributeSize:  8,
		MaxRecursionDepth: 1,
	}}
}

func layout() *binding_layout.Layout {
	return &binding_layout.Layout{Native: &gputest.BindingLayout{}}
}

func TestCacheReusesPipelines(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev)
	l := layout()
	opts := []PipelineBuilderOption{WithTargetFormats(gpu.TextureFormatBGRA8Unorm)}

	a, err := c.Get(rasterProgram("brick"), l, opts...)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(rasterProgram("brick"), l, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || dev.Calls(gputest.OpCreateRenderPipeline) != 1 {
		t.Fatal("identical request created a second pipeline")
	}

	other := []struct {
		name    string
		program shader.Program
		opts    []PipelineBuilderOption
	}{
		{"program", rasterProgram("marble"), opts},
		{"vertex layout", rasterProgram("brick"), append(opts, WithVertexLayout(gpu.VertexLayout{Stride: 12}))},
		{"targets", rasterProgram("brick"), []PipelineBuilderOption{WithTargetFormats(gpu.TextureFormatRGBA16Float)}},
		{"depth write", rasterProgram("brick"), append(opts, WithDepthWriteEnabled(false))},
	}
	for _, tt := range other {
		p, err := c.Get(tt.program, l, tt.opts...)
		if err != nil {
			t.Fatal(err)
		}
		if p == a {
			t.Fatalf("%s change reused the cached pipeline", tt.name)
		}
	}
	if c.Count() != 5 || c.CountKind(KindRender) != 5 {
		t.Fatalf("cached %d pipelines", c.Count())
	}

	if _, err := c.Get(rasterProgram("brick"), l, append(opts, WithLabel("renamed"))...); err != nil || c.Count() != 5 {
		t.Fatal("label change created a pipeline")
	}
}

func TestRenderDescriptor(t *testing.T) {
	dev := gputest.NewDevice()
	l := layout()
	p, err := NewCache(dev).Get(rasterProgram("brick"), l,
		WithTargetFormats(gpu.TextureFormatRGBA32Float, gpu.TextureFormatRGBA16Float),
		WithCullMode(gpu.CullModeNone),
		WithBlendEnabled(true))
	if err != nil {
		t.Fatal(err)
	}
	desc := dev.RenderPipelines[0].Desc
	if desc.Layout != l.Native || desc.Vertex.EntryPoint != "vsMain" || desc.Pixel.EntryPoint != "psMain" {
		t.Fatalf("stages = %+v / %+v", desc.Vertex, desc.Pixel)
	}
	if desc.VertexLayout.Stride != 32 || len(desc.TargetFormats) != 2 || desc.DepthFormat != gpu.TextureFormatDepth32Float {
		t.Fatalf("descriptor = %+v", desc)
	}
	if !desc.BlendEnabled || desc.CullMode != gpu.CullModeNone || !desc.DepthTest || !desc.DepthWrite {
		t.Fatalf("render state = %+v", desc)
	}

	cl := &gputest.CommandList{}
	p.Bind(cl)
	cmds := cl.Commands()
	if len(cmds) != 2 || cmds[0].Op != gputest.OpSetRenderPipeline || cmds[1].Op != gputest.OpSetGraphicsLayout {
		t.Fatalf("bind recorded %v", cmds)
	}
}

func TestRayTracingAndCompute(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev)

	rt, err := c.Get(rayTracingProgram("reflections"), layout())
	if err != nil {
		t.Fatal(err)
	}
	if rt.Kind() != KindRayTracing || rt.RayTracing() == nil || rt.Render() != nil {
		t.Fatalf("kind %s", rt.Kind())
	}
	desc := dev.RayTracingPipelines[0].Desc
	if desc.Module.EntryPoint != "rt_main" || desc.RayGeneration != "raygen" || desc.Miss[0] != "miss" {
		t.Fatalf("ray tracing descriptor = %+v", desc)
	}
	if len(desc.HitGroups) != 1 || desc.HitGroups[0].ClosestHit != "closestHit" || desc.MaxPayloadSize != 16 {
		t.Fatalf("hit groups = %+v", desc.HitGroups)
	}
	if _, ok := rt.RayTracing().ShaderIdentifier("HitGroup"); !ok {
		t.Fatal("hit group not exported")
	}

	cs := &fakeProgram{key: "blur", payload: &shader.ComputeStage{Compute: shader.StageCode{Stage: shader.StageCompute, EntryPoint: "csMain"}}}
	p, err := c.Get(cs, layout())
	if err != nil {
		t.Fatal(err)
	}
	cl := &gputest.CommandList{}
	p.Bind(cl)
	if cl.Commands()[0].Op != gputest.OpSetComputePipeline || cl.Commands()[1].Op != gputest.OpSetComputeLayout {
		t.Fatal("compute bind recorded the wrong commands")
	}
	if c.CountKind(KindCompute) != 1 || c.CountKind(KindRayTracing) != 1 {
		t.Fatal("kind counts wrong")
	}

	c.Release()
	if c.Count() != 0 || !dev.RayTracingPipelines[0].Released || !dev.ComputePipelines[0].Released {
		t.Fatal("release left pipelines alive")
	}
}

func TestCreateFailureCachesNothing(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev)
	boom := errors.New("invalid state")
	dev.FailOn(gputest.OpCreateRenderPipeline, 1, boom)

	if _, err := c.Get(rasterProgram("brick"), layout()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if c.Count() != 0 {
		t.Fatal("failed pipeline cached")
	}
	if _, err := c.Get(rasterProgram("brick"), layout()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(&fakeProgram{key: "empty"}, layout()); err == nil {
		t.Fatal("program without payload accepted")
	}
}
