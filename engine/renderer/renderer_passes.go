package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

func (r *renderer) Render(s scene.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.frame
	if st == nil {
		return ErrNotInitialized
	}
	if s != st.scene {
		return fmt.Errorf("%w: scene %q", ErrNotInitialized, s.Name())
	}

	if err := st.updateLights(); err != nil {
		return err
	}
	written, err := st.updateMaterials(r)
	if err != nil {
		return err
	}
	if err := st.updateHitGroups(); err != nil {
		return err
	}

	frame := st.frameContext()
	transforms := make([]common.Mat4, len(st.entities))
	for i, e := range st.entities {
		transforms[i] = e.ModelMatrix()
	}

	swapchain := r.device.Swapchain()
	if err := swapchain.AcquireNext(); err != nil {
		return fmt.Errorf("renderer: acquire: %w", err)
	}

	err = r.ctrl.Record(func(cl gpu.CommandList) error {
		cl.SetDescriptorHeap(st.table.Heap())
		if _, err := st.accel.UpdateTransforms(cl, common.Identity(), transforms); err != nil {
			return err
		}
		st.recordGBuffer(cl, frame)
		st.recordReflections(cl, frame, r.width, r.height)
		st.recordComposite(cl, frame)
		return nil
	})
	if err != nil {
		swapchain.Discard()
		return err
	}
	if err := swapchain.Present(); err != nil {
		return fmt.Errorf("renderer: present: %w", err)
	}
	r.frames++
	if written > 0 {
		logger.Logger().Debug("material descriptors rewritten", "frame", r.frames, "writes", written)
	}
	return nil
}

// updateMaterials uploads textures assigned since the last frame and rewrites the table
// slots of every modified material field.
func (st *frameState) updateMaterials(r *renderer) (int, error) {
	for _, m := range st.materials {
		for _, t := range m.Textures() {
			if t.GPU() != nil {
				continue
			}
			if _, err := r.ctrl.UploadTexture(t); err != nil {
				return 0, fmt.Errorf("renderer: upload texture %q: %w", t.Key, err)
			}
		}
	}
	total := 0
	for _, m := range st.tableMaterials() {
		n, err := st.table.UpdateModified(m)
		if err != nil {
			return total, fmt.Errorf("renderer: %w", err)
		}
		total += n
	}
	return total, nil
}

// updateHitGroups rewrites hit-group payloads whose material constants changed.
func (st *frameState) updateHitGroups() error {
	for i, e := range st.entities {
		if _, err := st.shaderTable.UpdatePayload(shader_table.SectionHitGroup, i, hitGroupPayload(e)); err != nil {
			return err
		}
	}
	return nil
}

// frameContext returns the reserved bindings shared by every draw and dispatch of a frame.
func (st *frameState) frameContext() *material.FrameContext {
	frame := material.NewFrameContext()
	cam := st.scene.Camera().Uniform()
	frame.SetConstants(material.FrameCamera, cam.Marshal())
	for name, h := range st.globals {
		frame.SetTable(name, h)
	}
	return frame
}

// setTransform sets the per-draw transform constants.
func setTransform(frame *material.FrameContext, e scene.Entity) {
	u := model.GPUTransformUniform{Model: e.ModelMatrix()}
	frame.SetConstants(material.FrameTransform, u.Marshal())
}

func drawMesh(cl gpu.CommandList, m model.Mesh) {
	g := m.GPU()
	cl.SetVertexBuffer(g.VertexBuffer)
	cl.SetIndexBuffer(g.IndexBuffer)
	cl.DrawIndexed(uint32(len(m.Indices())), 1)
}

// recordGBuffer rasterizes the reflective entities into the position, normal and mask
// targets.
func (st *frameState) recordGBuffer(cl gpu.CommandList, frame *material.FrameContext) {
	t := st.targets
	cl.ResourceBarrier(append(
		transition(gpu.ResourceStateCommon, gpu.ResourceStateRenderTarget, t.gbuffer()...),
		gpu.Transition(t.depth, gpu.ResourceStateCommon, gpu.ResourceStateDepthWrite))...)

	colors := make([]gpu.ColorTarget, 0, 3)
	for _, tex := range t.gbuffer() {
		colors = append(colors, gpu.ColorTarget{Texture: tex, Clear: true})
	}
	cl.BeginRenderPass(gpu.RenderPassDescriptor{
		Label:        st.label + " gbuffer",
		ColorTargets: colors,
		Depth:        &gpu.DepthTarget{Texture: t.depth, Clear: true, ClearDepth: 1},
	})
	st.gbufferPipeline.Bind(cl)
	for _, e := range st.entities {
		if !e.Reflective() {
			continue
		}
		setTransform(frame, e)
		st.gbufferMat.Bind(cl, frame)
		drawMesh(cl, e.Mesh())
	}
	cl.EndRenderPass()

	cl.ResourceBarrier(append(
		transition(gpu.ResourceStateRenderTarget, gpu.ResourceStateCommon, t.gbuffer()...),
		gpu.Transition(t.depth, gpu.ResourceStateDepthWrite, gpu.ResourceStateCommon))...)
}

// recordReflections dispatches one ray-generation invocation per pixel.
func (st *frameState) recordReflections(cl gpu.CommandList, frame *material.FrameContext, width, height uint32) {
	t := st.targets
	cl.ResourceBarrier(append(
		transition(gpu.ResourceStateCommon, gpu.ResourceStateNonPixelShaderResource, t.gbuffer()...),
		gpu.Transition(t.output, gpu.ResourceStateCommon, gpu.ResourceStateUnorderedAccess))...)

	st.rtPipeline.Bind(cl)
	st.rtMat.Bind(cl, frame)
	cl.DispatchRays(st.shaderTable.DispatchRays(width, height, 1))

	cl.ResourceBarrier(append(
		transition(gpu.ResourceStateNonPixelShaderResource, gpu.ResourceStateCommon, t.gbuffer()...),
		gpu.Transition(t.output, gpu.ResourceStateUnorderedAccess, gpu.ResourceStateCommon))...)
}

// recordComposite draws every entity with its material into the swapchain image.
func (st *frameState) recordComposite(cl gpu.CommandList, frame *material.FrameContext) {
	t := st.targets
	cl.ResourceBarrier(
		gpu.Transition(t.output, gpu.ResourceStateCommon, gpu.ResourceStatePixelShaderResource),
		gpu.Transition(t.depth, gpu.ResourceStateCommon, gpu.ResourceStateDepthWrite))

	cl.BeginRenderPass(gpu.RenderPassDescriptor{
		Label:        st.label + " composite",
		ColorTargets: []gpu.ColorTarget{{Clear: true, ClearColor: st.scene.SkyColor()}},
		Depth:        &gpu.DepthTarget{Texture: t.depth, Clear: true, ClearDepth: 1},
	})
	for i, e := range st.entities {
		p := st.composite[i]
		if p == nil {
			continue
		}
		p.Bind(cl)
		setTransform(frame, e)
		e.Material().Bind(cl, frame)
		drawMesh(cl, e.Mesh())
	}
	cl.EndRenderPass()

	cl.ResourceBarrier(
		gpu.Transition(t.output, gpu.ResourceStatePixelShaderResource, gpu.ResourceStateCommon),
		gpu.Transition(t.depth, gpu.ResourceStateDepthWrite, gpu.ResourceStateCommon))
}
