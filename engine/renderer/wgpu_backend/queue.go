package wgpu_backend

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader/rtwgsl"
	"github.com/cogentcore/webgpu/wgpu"
)

type queue struct {
	dev *device
}

var _ gpu.Queue = &queue{}

func (q *queue) Submit(lists []gpu.CommandList, fence gpu.Fence, value uint64) error {
	var f *fenceImpl
	if fence != nil {
		var ok bool
		if f, ok = fence.(*fenceImpl); !ok {
			return fmt.Errorf("wgpu_backend: foreign fence %T", fence)
		}
	}

	q.dev.submitMu.Lock()
	defer q.dev.submitMu.Unlock()

	r := &replay{dev: q.dev}
	defer r.releaseTransients()
	for i, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			r.abort()
			return fmt.Errorf("wgpu_backend: foreign command list %T", l)
		}
		cmds, err := cl.recorded()
		if err != nil {
			r.abort()
			return err
		}
		if err := r.run(cmds); err != nil {
			r.abort()
			return fmt.Errorf("wgpu_backend: submit list %d: %w", i, err)
		}
	}
	if err := r.flush(); err != nil {
		r.abort()
		return err
	}
	if f != nil {
		f.signal(value)
	}
	return nil
}

// argument is the value bound to one layout slot.
type argument struct {
	constants []byte
	table     gpu.DescriptorHandle
	isTable   bool
}

// bindPoint holds the layout and slot arguments of the graphics or compute bind point.
type bindPoint struct {
	layout *bindingLayout
	args   map[uint32]argument
}

func (b *bindPoint) reset(l *bindingLayout) {
	b.layout = l
	b.args = make(map[uint32]argument)
}

// replay translates recorded commands into WebGPU calls. CPU-side work flushes the
// current encoder first so queue writes land between the GPU work around them.
type replay struct {
	dev     *device
	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder

	heap     *descriptorHeap
	graphics bindPoint
	compute  bindPoint
	active   *bindPoint

	renderPipeline     *renderPipeline
	computePipeline    *computePipeline
	rayTracingPipeline *rayTracingPipeline
	vertexBuffer       *buffer
	indexBuffer        *buffer

	transients []func()
}

func (r *replay) run(cmds []command) error {
	var batch []gpu.BuildDescriptor
	for _, cmd := range cmds {
		if cmd.build != nil {
			batch = append(batch, *cmd.build)
			continue
		}
		if len(batch) > 0 {
			builds := batch
			if err := r.cpu(func() error { return r.dev.buildBottomLevel(builds) }); err != nil {
				return err
			}
			batch = nil
		}
		if err := cmd.run(r); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		return r.cpu(func() error { return r.dev.buildBottomLevel(batch) })
	}
	return nil
}

// retire releases fn once the submission is on the queue.
func (r *replay) retire(fn func()) {
	r.transients = append(r.transients, fn)
}

func (r *replay) releaseTransients() {
	for _, fn := range r.transients {
		fn()
	}
	r.transients = nil
}

func (r *replay) commandEncoder() (*wgpu.CommandEncoder, error) {
	if r.encoder != nil {
		return r.encoder, nil
	}
	encoder, err := r.dev.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create command encoder: %w", err)
	}
	r.encoder = encoder
	return encoder, nil
}

// flush submits the work encoded so far.
func (r *replay) flush() error {
	if r.pass != nil {
		return fmt.Errorf("%w: render pass still open", ErrRecording)
	}
	if r.encoder == nil {
		return nil
	}
	encoder := r.encoder
	r.encoder = nil
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("wgpu_backend: finish command encoder: %w", err)
	}
	r.dev.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

// cpu runs fn after everything recorded before it has been submitted.
func (r *replay) cpu(fn func() error) error {
	if r.pass != nil {
		return fmt.Errorf("%w: copy or build inside a render pass", ErrRecording)
	}
	if err := r.flush(); err != nil {
		return err
	}
	return fn()
}

// abort drops encoded work that has not been submitted.
func (r *replay) abort() {
	if r.pass != nil {
		r.pass.End()
		r.pass.Release()
		r.pass = nil
	}
	if r.encoder != nil {
		r.encoder.Release()
		r.encoder = nil
	}
}

func (r *replay) setArgument(slot uint32, arg argument) error {
	if r.active == nil || r.active.layout == nil {
		return fmt.Errorf("wgpu_backend: slot %d set before a layout", slot)
	}
	slots := r.active.layout.desc.Slots
	if int(slot) >= len(slots) {
		return fmt.Errorf("%w: slot %d of %d", gpu.ErrOutOfRange, slot, len(slots))
	}
	s := slots[slot]
	switch {
	case arg.isTable && s.Kind != gpu.SlotTable:
		return fmt.Errorf("wgpu_backend: slot %d (%s) is not a table", slot, s.Name)
	case !arg.isTable && s.Kind != gpu.SlotInlineConstants:
		return fmt.Errorf("wgpu_backend: slot %d (%s) does not take inline constants", slot, s.Name)
	case !arg.isTable && uint32(len(arg.constants)) > s.Num32BitValues*4:
		return fmt.Errorf("%w: %d bytes into %d values of slot %s", gpu.ErrOutOfRange, len(arg.constants), s.Num32BitValues, s.Name)
	}
	r.active.args[slot] = arg
	return nil
}

func (r *replay) beginRenderPass(desc gpu.RenderPassDescriptor) error {
	if r.pass != nil {
		return fmt.Errorf("%w: nested render pass %q", ErrRecording, desc.Label)
	}
	colors := make([]wgpu.RenderPassColorAttachment, 0, len(desc.ColorTargets))
	for _, target := range desc.ColorTargets {
		view, err := r.colorView(target.Texture)
		if err != nil {
			return err
		}
		attachment := wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}
		if target.Clear {
			attachment.LoadOp = wgpu.LoadOpClear
			attachment.ClearValue = wgpu.Color{
				R: float64(target.ClearColor[0]),
				G: float64(target.ClearColor[1]),
				B: float64(target.ClearColor[2]),
				A: float64(target.ClearColor[3]),
			}
		}
		colors = append(colors, attachment)
	}

	var depth *wgpu.RenderPassDepthStencilAttachment
	if desc.Depth != nil {
		tex, ok := desc.Depth.Texture.(*texture)
		if !ok || tex.view == nil {
			return fmt.Errorf("wgpu_backend: depth target %T is not usable", desc.Depth.Texture)
		}
		depth = &wgpu.RenderPassDepthStencilAttachment{
			View:            tex.view,
			DepthLoadOp:     wgpu.LoadOpLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: desc.Depth.ClearDepth,
		}
		if desc.Depth.Clear {
			depth.DepthLoadOp = wgpu.LoadOpClear
		}
	}

	encoder, err := r.commandEncoder()
	if err != nil {
		return err
	}
	r.pass = encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:                  desc.Label,
		ColorAttachments:       colors,
		DepthStencilAttachment: depth,
	})
	return nil
}

func (r *replay) colorView(t gpu.Texture) (*wgpu.TextureView, error) {
	if t == nil {
		if r.dev.swapchain == nil {
			return nil, fmt.Errorf("wgpu_backend: swapchain target on a headless device")
		}
		view := r.dev.swapchain.currentView()
		if view == nil {
			return nil, fmt.Errorf("wgpu_backend: swapchain target without an acquired image")
		}
		return view, nil
	}
	tex, ok := t.(*texture)
	if !ok || tex.view == nil {
		return nil, fmt.Errorf("wgpu_backend: color target %T is not usable", t)
	}
	return tex.view, nil
}

func (r *replay) endRenderPass() {
	if r.pass == nil {
		return
	}
	r.pass.End()
	r.pass.Release()
	r.pass = nil
}

func (r *replay) draw(count, instances uint32, indexed bool) error {
	if r.pass == nil {
		return fmt.Errorf("%w: draw outside a render pass", ErrRecording)
	}
	if r.renderPipeline == nil {
		return fmt.Errorf("wgpu_backend: draw without a render pipeline")
	}
	groups, err := r.bindGroups(r.renderPipeline.layout, r.graphics.args, false)
	if err != nil {
		return err
	}

	r.pass.SetPipeline(r.renderPipeline.native)
	for i, bg := range groups {
		r.pass.SetBindGroup(uint32(i), bg, nil)
	}
	if r.vertexBuffer != nil {
		r.pass.SetVertexBuffer(0, r.vertexBuffer.native, 0, wgpu.WholeSize)
	}
	if !indexed {
		r.pass.Draw(count, instances, 0, 0)
		return nil
	}
	if r.indexBuffer == nil {
		return fmt.Errorf("wgpu_backend: indexed draw without an index buffer")
	}
	r.pass.SetIndexBuffer(r.indexBuffer.native, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	r.pass.DrawIndexed(count, instances, 0, 0, 0)
	return nil
}

func (r *replay) dispatch(x, y, z uint32) error {
	if r.computePipeline == nil {
		return fmt.Errorf("wgpu_backend: dispatch without a compute pipeline")
	}
	groups, err := r.bindGroups(r.computePipeline.layout, r.compute.args, false)
	if err != nil {
		return err
	}
	return r.computePass(r.computePipeline.native, groups, x, y, z)
}

func (r *replay) computePass(pipeline *wgpu.ComputePipeline, groups []*wgpu.BindGroup, x, y, z uint32) error {
	if r.pass != nil {
		return fmt.Errorf("%w: dispatch inside a render pass", ErrRecording)
	}
	encoder, err := r.commandEncoder()
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	for i, bg := range groups {
		pass.SetBindGroup(uint32(i), bg, nil)
	}
	pass.DispatchWorkgroups(x, y, z)
	pass.End()
	pass.Release()
	return nil
}

func (r *replay) dispatchRays(desc gpu.DispatchRaysDescriptor) error {
	p := r.rayTracingPipeline
	if p == nil {
		return fmt.Errorf("wgpu_backend: ray dispatch without a ray tracing pipeline")
	}
	table, err := shaderTableBuffer(desc)
	if err != nil {
		return err
	}
	groups, err := r.bindGroups(p.layout, r.compute.args, true)
	if err != nil {
		return err
	}

	params := rtwgsl.DispatchParams{
		RayGenBase: uint32(desc.RayGeneration.Offset),
		MissBase:   uint32(desc.Miss.Offset),
		MissStride: uint32(desc.Miss.Stride),
		HitBase:    uint32(desc.HitGroup.Offset),
		HitStride:  uint32(desc.HitGroup.Stride),
		Width:      desc.Width,
		Height:     desc.Height,
		Depth:      max(desc.Depth, 1),
	}
	uniform, err := r.uniform("ray dispatch params", params.Marshal())
	if err != nil {
		return err
	}
	system, err := r.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  p.label + " system group",
		Layout: p.layout.groups[rtwgsl.SystemGroup],
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: table.native, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: uniform, Size: rtwgsl.DispatchParamsSize},
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu_backend: create ray dispatch bind group: %w", err)
	}
	r.retire(system.Release)
	groups[rtwgsl.SystemGroup] = system

	x := (desc.Width + rtwgsl.WorkgroupSize - 1) / rtwgsl.WorkgroupSize
	y := (desc.Height + rtwgsl.WorkgroupSize - 1) / rtwgsl.WorkgroupSize
	return r.computePass(p.native, groups, x, y, max(desc.Depth, 1))
}

// shaderTableBuffer returns the buffer holding all three ranges of a dispatch. The
// lowered entry point reads one table, so the ranges must share it.
func shaderTableBuffer(desc gpu.DispatchRaysDescriptor) (*buffer, error) {
	table, err := nativeBuffer(desc.RayGeneration.Buffer)
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: ray generation record: %w", err)
	}
	for _, rng := range []gpu.ShaderTableRange{desc.Miss, desc.HitGroup} {
		if rng.Buffer == nil || rng.Size == 0 {
			continue
		}
		b, err := nativeBuffer(rng.Buffer)
		if err != nil {
			return nil, err
		}
		if b != table {
			return nil, fmt.Errorf("%w: shader table ranges in different buffers", ErrUnsupported)
		}
	}
	return table, nil
}

// uniform uploads data into a transient uniform buffer.
func (r *replay) uniform(label string, data []byte) (*wgpu.Buffer, error) {
	size := max(common.AlignUp(uint64(len(data)), 16), 16)
	buf, err := r.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create %s: %w", label, err)
	}
	r.retire(buf.Release)
	padded := make([]byte, size)
	copy(padded, data)
	r.dev.queue.WriteBuffer(buf, 0, padded)
	return buf, nil
}

// bindGroups resolves slot arguments into one bind group per group of the layout. The
// system group of a ray tracing layout is left nil when skipSystem is set.
func (r *replay) bindGroups(l *bindingLayout, args map[uint32]argument, skipSystem bool) ([]*wgpu.BindGroup, error) {
	entries := make(map[uint32][]wgpu.BindGroupEntry, len(l.groups))
	for i, s := range l.desc.Slots {
		at := l.slots[i]
		arg := args[uint32(i)]
		var entry wgpu.BindGroupEntry
		var err error
		if s.Kind == gpu.SlotInlineConstants {
			var buf *wgpu.Buffer
			if buf, err = r.uniform(s.Name, arg.constants); err != nil {
				return nil, err
			}
			entry = wgpu.BindGroupEntry{Binding: at.binding, Buffer: buf, Size: wgpu.WholeSize}
		} else {
			var view gpu.ViewDescriptor
			if arg.isTable {
				if r.heap == nil {
					return nil, fmt.Errorf("wgpu_backend: table %s bound without a descriptor heap", s.Name)
				}
				if view, err = r.heap.lookup(arg.table); err != nil {
					return nil, err
				}
			}
			if entry, err = r.dev.resourceEntry(s.Range, view, at.binding); err != nil {
				return nil, fmt.Errorf("wgpu_backend: table %s: %w", s.Name, err)
			}
		}
		entries[at.group] = append(entries[at.group], entry)
	}
	for _, smp := range l.samplers {
		entries[smp.group] = append(entries[smp.group], wgpu.BindGroupEntry{Binding: smp.binding, Sampler: smp.native})
	}

	rt := l.desc.Flags.Has(gpu.LayoutRayTracing)
	groups := make([]*wgpu.BindGroup, len(l.groups))
	for g, bgl := range l.groups {
		if skipSystem && rt && g == rtwgsl.SystemGroup {
			continue
		}
		bg, err := r.dev.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s group %d", l.desc.Label, g),
			Layout:  bgl,
			Entries: entries[uint32(g)],
		})
		if err != nil {
			return nil, fmt.Errorf("wgpu_backend: create bind group %d: %w", g, err)
		}
		r.retire(bg.Release)
		groups[g] = bg
	}
	return groups, nil
}

// resourceEntry binds the view of a table range, substituting the null resources for
// null descriptors.
func (d *device) resourceEntry(rng gpu.DescriptorRange, view gpu.ViewDescriptor, binding uint32) (wgpu.BindGroupEntry, error) {
	entry := wgpu.BindGroupEntry{Binding: binding}
	switch rng.Shape {
	case gpu.ShapeTexture2D:
		tex := d.nullTexture
		if view.Texture != nil {
			t, ok := view.Texture.(*texture)
			if !ok || t.view == nil {
				return entry, fmt.Errorf("texture %T is not usable", view.Texture)
			}
			tex = t
		}
		entry.TextureView = tex.view
	case gpu.ShapeStorageTexture2D:
		var tex *texture
		if view.Texture != nil {
			t, ok := view.Texture.(*texture)
			if !ok || t.view == nil {
				return entry, fmt.Errorf("storage texture %T is not usable", view.Texture)
			}
			tex = t
		} else {
			t, err := d.nullStorage(rng.Format)
			if err != nil {
				return entry, err
			}
			tex = t
		}
		entry.TextureView = tex.view
	case gpu.ShapeAccelerationStructure:
		entry.Buffer, entry.Size = d.nullBuffer, wgpu.WholeSize
		if view.AccelerationStructure != nil {
			as, ok := view.AccelerationStructure.(*accelerationStructure)
			if !ok || as.level != gpu.LevelTop {
				return entry, fmt.Errorf("acceleration structure %T is not a top-level structure", view.AccelerationStructure)
			}
			native := as.scene()
			if native == nil {
				return entry, fmt.Errorf("acceleration structure %q was never built", as.label)
			}
			entry.Buffer = native
		}
	default:
		entry.Buffer, entry.Size = d.nullBuffer, wgpu.WholeSize
		if view.Buffer != nil {
			b, err := nativeBuffer(view.Buffer)
			if err != nil {
				return entry, err
			}
			entry.Buffer, entry.Offset = b.native, view.Offset
			if view.Size > 0 {
				entry.Size = view.Size
			}
		}
	}
	return entry, nil
}

// uploadTexture writes the shadow of src into dst as tightly packed rows.
func (d *device) uploadTexture(dst *texture, src *buffer, bytesPerRow uint32) error {
	if bytesPerRow < dst.width*dst.format.BytesPerPixel() {
		return fmt.Errorf("wgpu_backend: %d bytes per row is short for %q", bytesPerRow, dst.label)
	}
	data, err := src.snapshot(0, uint64(bytesPerRow)*uint64(dst.height))
	if err != nil {
		return err
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: dst.native, Aspect: wgpu.TextureAspectAll},
		data,
		&wgpu.TextureDataLayout{BytesPerRow: bytesPerRow, RowsPerImage: dst.height},
		&wgpu.Extent3D{Width: dst.width, Height: dst.height, DepthOrArrayLayers: 1},
	)
	return nil
}
