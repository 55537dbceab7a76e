package renderer

import (
	"bytes"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/accel"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/resource_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

// Global table slots, written once per Initialize and rewritten by Resize. Material
// regions follow them.
const (
	SlotLights uint32 = iota
	SlotSceneBVH
	SlotGPosition
	SlotGNormal
	SlotGMask
	SlotOutput
	SlotReflection

	GlobalSlots
)

// hitGroupPayloadSize is the record payload written for entities without a material.
const hitGroupPayloadSize = 8

// frameState holds every object created by Initialize for one scene.
type frameState struct {
	label   string
	scene   scene.Scene
	targets *targets

	lights     gpu.Buffer
	lightBytes []byte

	table   resource_table.Table
	globals map[string]gpu.DescriptorHandle

	accel       accel.Manager
	shaderTable shader_table.Table

	gbufferPipeline pipeline.Pipeline
	gbufferMat      material.Instance
	rtPipeline      pipeline.Pipeline
	rtMat           material.Instance
	composite       []pipeline.Pipeline

	entities  []scene.Entity
	materials []material.Instance

	uploadedMeshes   []model.Mesh
	uploadedTextures []*model.Texture
}

func (r *renderer) Initialize(s scene.Scene) error {
	if s == nil {
		return fmt.Errorf("renderer: initialize: nil scene")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frame != nil {
		r.frame.release()
		r.frame = nil
	}

	st, err := r.initialize(s)
	if err != nil {
		st.release()
		st.releaseUploads()
		r.pipelines.Release()
		logger.Logger().Warn("renderer initialize failed", "scene", s.Name(), "error", err)
		return err
	}
	r.frame = st
	logger.Logger().Info("renderer initialized",
		"scene", s.Name(),
		"entities", len(st.entities),
		"materials", len(st.materials),
		"blas", st.accel.BLASCount(),
		"tableCapacity", st.table.Capacity(),
		"pipelines", r.pipelines.Count())
	return nil
}

// initialize builds the frame state. On error the partial state is returned so the caller
// can release it.
func (r *renderer) initialize(s scene.Scene) (*frameState, error) {
	st := &frameState{
		label:     r.label,
		scene:     s,
		entities:  s.Entities(),
		materials: s.Materials(),
	}
	if len(st.entities) == 0 {
		return st, fmt.Errorf("renderer: initialize %q: scene has no entities", s.Name())
	}

	rtProgram := s.RayTracingProgram()
	if rtProgram == nil {
		rtProgram = r.reflection.program
	}
	if rtProgram.Kind() != shader.KindRayTracing {
		return st, fmt.Errorf("renderer: initialize %q: program %q is a %s program", s.Name(), rtProgram.Key(), rtProgram.Kind())
	}
	for _, m := range st.materials {
		if m.Program() == nil || m.Program().Kind() != shader.KindRasterization {
			return st, fmt.Errorf("renderer: initialize %q: material %q needs a rasterization program", s.Name(), m.Name())
		}
	}
	rtAgg, rtLayout, err := r.bindingModel(rtProgram)
	if err != nil {
		return st, err
	}

	if st.targets, err = newTargets(r.device, r.label, r.width, r.height); err != nil {
		return st, err
	}
	if err := st.uploadAssets(r.ctrl); err != nil {
		return st, err
	}
	if err := st.createLights(r.device, r.label, s.Lights()); err != nil {
		return st, err
	}

	st.gbufferMat = material.NewInstance(r.label+" gbuffer", r.gbuffer.program, r.gbuffer.agg, r.gbuffer.layout)
	st.rtMat = material.NewInstance(r.label+" reflection", rtProgram, rtAgg, rtLayout)
	if err := st.createTable(r.device, r.label); err != nil {
		return st, err
	}

	instances := make([]accel.Instance, len(st.entities))
	for i, e := range st.entities {
		instances[i] = accel.Instance{
			Mesh:          e.Mesh(),
			Transform:     e.ModelMatrix(),
			HitGroupIndex: uint32(i),
			Flags:         gpu.InstanceFlagTriangleCullDisable,
		}
	}
	st.accel = accel.NewManager(r.ctrl, accel.WithLabel(r.label+" "+s.Name()))
	if err := st.accel.Initialize(instances); err != nil {
		return st, err
	}
	if err := st.writeGlobals(); err != nil {
		return st, err
	}

	if err := r.createPipelines(st, rtProgram, rtLayout); err != nil {
		return st, err
	}
	if err := r.createShaderTable(st, rtProgram); err != nil {
		return st, err
	}
	return st, nil
}

// uploadAssets uploads every mesh and material texture not yet on the device and records
// them so a failed Initialize can take them back.
func (st *frameState) uploadAssets(ctrl upload.Controller) error {
	seen := make(map[model.Mesh]bool)
	for _, e := range st.entities {
		m := e.Mesh()
		if seen[m] || m.GPU() != nil {
			continue
		}
		seen[m] = true
		if _, err := ctrl.UploadMesh(m); err != nil {
			return fmt.Errorf("renderer: upload mesh %q: %w", m.Key(), err)
		}
		st.uploadedMeshes = append(st.uploadedMeshes, m)
	}
	return st.uploadTextures(ctrl)
}

func (st *frameState) uploadTextures(ctrl upload.Controller) error {
	for _, m := range st.materials {
		for _, t := range m.Textures() {
			if t.GPU() != nil {
				continue
			}
			if _, err := ctrl.UploadTexture(t); err != nil {
				return fmt.Errorf("renderer: upload texture %q: %w", t.Key, err)
			}
			st.uploadedTextures = append(st.uploadedTextures, t)
		}
	}
	return nil
}

func (st *frameState) createLights(device gpu.Device, label string, lights []light.Light) error {
	data, err := marshalLights(lights)
	if err != nil {
		return err
	}
	size := common.AlignUp(uint64(len(data)), uint64(device.Limits().ConstantBufferAlignment))
	buf, err := device.CreateBuffer(gpu.BufferDescriptor{
		Label: label + " lights",
		Size:  size,
		Usage: gpu.BufferUsageUpload | gpu.BufferUsageConstant,
	})
	if err != nil {
		return fmt.Errorf("renderer: create light buffer: %w", err)
	}
	st.lights = buf
	if err := buf.Write(0, data); err != nil {
		return fmt.Errorf("renderer: write light buffer: %w", err)
	}
	st.lightBytes = data
	return nil
}

func marshalLights(lights []light.Light) ([]byte, error) {
	lb, err := light.NewGPULightBuffer(lights)
	if err != nil {
		return nil, fmt.Errorf("renderer: %w", err)
	}
	return lb.Marshal(), nil
}

// updateLights rewrites the light buffer when the scene lights changed.
func (st *frameState) updateLights() error {
	data, err := marshalLights(st.scene.Lights())
	if err != nil {
		return err
	}
	if bytes.Equal(data, st.lightBytes) {
		return nil
	}
	if err := st.lights.Write(0, data); err != nil {
		return fmt.Errorf("renderer: write light buffer: %w", err)
	}
	st.lightBytes = data
	return nil
}

// tableMaterials returns the scene materials followed by the pass materials.
func (st *frameState) tableMaterials() []material.Instance {
	out := append([]material.Instance(nil), st.materials...)
	return append(out, st.gbufferMat, st.rtMat)
}

// createTable sizes the resource table for the globals and every material, reserves the
// global slots and binds each material to its own region.
func (st *frameState) createTable(device gpu.Device, label string) error {
	mats := st.tableMaterials()
	counted := make([]resource_table.Material, len(mats))
	for i, m := range mats {
		counted[i] = m
	}
	table, err := resource_table.Allocate(device, resource_table.CountSlots(GlobalSlots, counted...), label+" resources")
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	st.table = table
	if _, err := table.ReserveGlobals(GlobalSlots); err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	for _, m := range mats {
		region, err := table.Reserve(uint32(len(m.TableFields())))
		if err != nil {
			return fmt.Errorf("renderer: material %q: %w", m.Name(), err)
		}
		if err := table.BindRange(m, region); err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
	}
	return nil
}

// writeGlobals writes every global slot and records their GPU handles by binding name.
func (st *frameState) writeGlobals() error {
	views := []struct {
		slot uint32
		name string
		view gpu.ViewDescriptor
	}{
		{SlotLights, material.FrameLights, gpu.ViewDescriptor{Kind: gpu.DescriptorKindCBV, Buffer: st.lights, Size: st.lights.Size()}},
		{SlotSceneBVH, material.FrameSceneBVH, gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV, AccelerationStructure: st.accel.TLAS()}},
	}
	st.globals = make(map[string]gpu.DescriptorHandle, GlobalSlots)
	for _, v := range views {
		h, err := st.table.WriteGlobal(v.slot, v.view)
		if err != nil {
			return fmt.Errorf("renderer: global %q: %w", v.name, err)
		}
		st.globals[v.name] = h.GPU
	}
	return st.writeTargetGlobals()
}

// writeTargetGlobals writes the slots that view the size-dependent targets.
func (st *frameState) writeTargetGlobals() error {
	t := st.targets
	views := []struct {
		slot uint32
		name string
		view gpu.ViewDescriptor
	}{
		{SlotGPosition, material.FrameGPosition, gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV, Texture: t.position}},
		{SlotGNormal, material.FrameGNormal, gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV, Texture: t.normal}},
		{SlotGMask, material.FrameGMask, gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV, Texture: t.mask}},
		{SlotOutput, material.FrameOutput, gpu.ViewDescriptor{Kind: gpu.DescriptorKindUAV, Texture: t.output}},
		{SlotReflection, material.FrameReflection, gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV, Texture: t.output}},
	}
	for _, v := range views {
		h, err := st.table.WriteGlobal(v.slot, v.view)
		if err != nil {
			return fmt.Errorf("renderer: global %q: %w", v.name, err)
		}
		st.globals[v.name] = h.GPU
	}
	return nil
}

// resizeTargets recreates the pass targets and points the global slots at them.
func (st *frameState) resizeTargets(device gpu.Device, width, height uint32) error {
	next, err := newTargets(device, st.label, width, height)
	if err != nil {
		return err
	}
	st.targets.release()
	st.targets = next
	return st.writeTargetGlobals()
}

func (r *renderer) createPipelines(st *frameState, rtProgram shader.Program, rtLayout *binding_layout.Layout) error {
	var err error
	st.gbufferPipeline, err = r.pipelines.Get(r.gbuffer.program, r.gbuffer.layout,
		pipeline.WithLabel(r.label+" gbuffer"),
		pipeline.WithTargetFormats(PositionFormat, NormalFormat, MaskFormat),
		pipeline.WithDepthFormat(DepthFormat))
	if err != nil {
		return err
	}
	st.rtPipeline, err = r.pipelines.Get(rtProgram, rtLayout, pipeline.WithLabel(r.label+" reflection"))
	if err != nil {
		return err
	}

	format := r.device.Swapchain().Format()
	st.composite = make([]pipeline.Pipeline, len(st.entities))
	for i, e := range st.entities {
		m := e.Material()
		if m == nil {
			continue
		}
		st.composite[i], err = r.pipelines.Get(m.Program(), m.Layout(),
			pipeline.WithLabel(r.label+" "+m.Name()),
			pipeline.WithTargetFormats(format),
			pipeline.WithDepthFormat(DepthFormat))
		if err != nil {
			return err
		}
	}
	return nil
}

// createShaderTable writes one ray-generation record, one miss record and one hit-group
// record per entity, in instance order.
func (r *renderer) createShaderTable(st *frameState, rtProgram shader.Program) error {
	stages, ok := rtProgram.Payload().(*shader.RayTracingStages)
	if !ok {
		return fmt.Errorf("renderer: program %q has no ray-tracing stages", rtProgram.Key())
	}
	ex := stages.Exports()
	if ex.RayGeneration == "" || len(ex.Miss) == 0 || len(ex.HitGroups) == 0 {
		return fmt.Errorf("renderer: program %q needs a ray-generation, a miss and a hit-group export", rtProgram.Key())
	}

	var sections [3][]shader_table.Record
	sections[shader_table.SectionRayGeneration] = []shader_table.Record{{Export: ex.RayGeneration}}
	sections[shader_table.SectionMiss] = []shader_table.Record{{Export: ex.Miss[0]}}
	hits := make([]shader_table.Record, len(st.entities))
	for i, e := range st.entities {
		hits[i] = shader_table.Record{Export: ex.HitGroups[0].Name, Payload: hitGroupPayload(e)}
	}
	sections[shader_table.SectionHitGroup] = hits

	t, err := shader_table.Build(r.device, st.rtPipeline.RayTracing(), sections, shader_table.WithLabel(r.label+" shader table"))
	if err != nil {
		return err
	}
	st.shaderTable = t
	return nil
}

func hitGroupPayload(e scene.Entity) []byte {
	if m := e.Material(); m != nil {
		return m.HitGroupPayload()
	}
	return make([]byte, hitGroupPayloadSize)
}

// compositePipelineCount returns the number of distinct composite pipelines.
func (st *frameState) compositePipelineCount() int {
	seen := make(map[pipeline.Pipeline]bool)
	for _, p := range st.composite {
		if p != nil {
			seen[p] = true
		}
	}
	return len(seen)
}

// release frees the objects owned by the frame state and detaches every material from the
// table. Pipelines belong to the renderer cache; uploaded assets stay on their meshes and
// textures.
func (st *frameState) release() {
	if st == nil {
		return
	}
	if st.shaderTable != nil {
		st.shaderTable.Release()
		st.shaderTable = nil
	}
	if st.accel != nil {
		st.accel.Release()
	}
	if st.table != nil {
		st.table.Release()
		st.table = nil
	}
	for _, m := range st.tableMaterials() {
		if m != nil {
			m.Detach()
		}
	}
	if st.lights != nil {
		st.lights.Release()
		st.lights = nil
	}
	if st.targets != nil {
		st.targets.release()
		st.targets = nil
	}
}

// releaseUploads frees the meshes and textures uploaded by a failed Initialize.
func (st *frameState) releaseUploads() {
	if st == nil {
		return
	}
	for _, m := range st.uploadedMeshes {
		if g := m.GPU(); g != nil {
			g.Release()
			m.SetGPU(nil)
		}
	}
	for _, t := range st.uploadedTextures {
		if g := t.GPU(); g != nil {
			g.Release()
			t.SetGPU(nil)
		}
	}
	st.uploadedMeshes, st.uploadedTextures = nil, nil
}
