package wgpu_backend

import (
	"fmt"
	"sort"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader/rtwgsl"
	"github.com/cogentcore/webgpu/wgpu"
)

// slotBinding places one layout slot or static sampler in a WGSL bind group.
type slotBinding struct {
	group   uint32
	binding uint32
}

type bindingLayout struct {
	desc     gpu.BindingLayoutDescriptor
	slots    []slotBinding
	samplers []boundSampler
	groups   []*wgpu.BindGroupLayout
	native   *wgpu.PipelineLayout
}

type boundSampler struct {
	slotBinding
	native *wgpu.Sampler
}

var _ gpu.BindingLayout = &bindingLayout{}

// stageVisibility returns the shader stages a slot is visible to. Graphics layouts expose
// everything to the vertex and pixel stages except writable resources, which the vertex
// stage may not bind.
func stageVisibility(flags gpu.LayoutFlags, writable bool) wgpu.ShaderStage {
	if !flags.Has(gpu.LayoutAllowInputAssembler) {
		return wgpu.ShaderStageCompute
	}
	if writable {
		return wgpu.ShaderStageFragment
	}
	return wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
}

// slotEntry builds the bind group layout entry of one slot. Register spaces are WGSL
// groups and registers are WGSL bindings.
func slotEntry(flags gpu.LayoutFlags, s gpu.LayoutSlot) (slotBinding, wgpu.BindGroupLayoutEntry, error) {
	if s.Kind == gpu.SlotInlineConstants {
		at := slotBinding{group: s.Space, binding: s.Register}
		entry := wgpu.BindGroupLayoutEntry{Binding: s.Register, Visibility: stageVisibility(flags, false)}
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		return at, entry, nil
	}

	r := s.Range
	at := slotBinding{group: r.Space, binding: r.BaseRegister}
	writable := r.Type == gpu.RangeUAV
	entry := wgpu.BindGroupLayoutEntry{Binding: r.BaseRegister, Visibility: stageVisibility(flags, writable)}
	switch r.Shape {
	case gpu.ShapeTexture2D:
		entry.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		entry.Texture.ViewDimension = wgpu.TextureViewDimension2D
	case gpu.ShapeStorageTexture2D:
		format, err := toTextureFormat(r.Format)
		if err != nil {
			return at, entry, fmt.Errorf("wgpu_backend: storage texture %q: %w", s.Name, err)
		}
		entry.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		entry.StorageTexture.Format = format
		entry.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
	case gpu.ShapeStructuredBuffer, gpu.ShapeAccelerationStructure:
		if writable {
			entry.Buffer.Type = wgpu.BufferBindingTypeStorage
		} else {
			entry.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		}
	default:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
	}
	return at, entry, nil
}

// systemEntries are the runtime bindings of a lowered ray-tracing library: the shader
// table and the dispatch parameters.
func systemEntries() []wgpu.BindGroupLayoutEntry {
	table := wgpu.BindGroupLayoutEntry{Binding: 0, Visibility: wgpu.ShaderStageCompute}
	table.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
	params := wgpu.BindGroupLayoutEntry{Binding: 1, Visibility: wgpu.ShaderStageCompute}
	params.Buffer.Type = wgpu.BufferBindingTypeUniform
	params.Buffer.MinBindingSize = rtwgsl.DispatchParamsSize
	return []wgpu.BindGroupLayoutEntry{table, params}
}

// describeGroups lays a binding layout out as WebGPU bind groups.
//
// Parameters:
//   - desc: the binding layout description
//
// Returns:
//   - map[uint32][]wgpu.BindGroupLayoutEntry: entries keyed by group, sorted by binding
//   - []slotBinding: group and binding of every slot, by root-parameter index
//   - []slotBinding: group and binding of every static sampler
//   - error: error if a slot uses the ray tracing system group or an unsupported format
func describeGroups(desc gpu.BindingLayoutDescriptor) (map[uint32][]wgpu.BindGroupLayoutEntry, []slotBinding, []slotBinding, error) {
	groups := make(map[uint32][]wgpu.BindGroupLayoutEntry)
	slots := make([]slotBinding, len(desc.Slots))
	for i, s := range desc.Slots {
		at, entry, err := slotEntry(desc.Flags, s)
		if err != nil {
			return nil, nil, nil, err
		}
		if desc.Flags.Has(gpu.LayoutRayTracing) && at.group == rtwgsl.SystemGroup {
			return nil, nil, nil, fmt.Errorf("wgpu_backend: slot %q uses reserved group %d", s.Name, rtwgsl.SystemGroup)
		}
		slots[i] = at
		groups[at.group] = mergeEntries(groups[at.group], []wgpu.BindGroupLayoutEntry{entry})
	}

	samplers := make([]slotBinding, len(desc.StaticSamplers))
	for i, smp := range desc.StaticSamplers {
		entry := wgpu.BindGroupLayoutEntry{Binding: smp.Register, Visibility: stageVisibility(desc.Flags, false)}
		if smp.Compare == gpu.CompareLess {
			entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
		} else {
			entry.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering
		}
		samplers[i] = slotBinding{group: smp.Space, binding: smp.Register}
		groups[smp.Space] = mergeEntries(groups[smp.Space], []wgpu.BindGroupLayoutEntry{entry})
	}

	if desc.Flags.Has(gpu.LayoutRayTracing) {
		groups[rtwgsl.SystemGroup] = mergeEntries(groups[rtwgsl.SystemGroup], systemEntries())
	}
	return groups, slots, samplers, nil
}

// mergeEntries merges two entry lists of the same group. Entries with the same binding
// number have their visibility ORed together; the result is sorted by binding.
//
// Parameters:
//   - a: entries already in the group
//   - b: entries to add
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: the merged entries
func mergeEntries(a, b []wgpu.BindGroupLayoutEntry) []wgpu.BindGroupLayoutEntry {
	byBinding := make(map[uint32]wgpu.BindGroupLayoutEntry, len(a)+len(b))
	for _, e := range a {
		byBinding[e.Binding] = e
	}
	for _, e := range b {
		if existing, ok := byBinding[e.Binding]; ok {
			existing.Visibility |= e.Visibility
			byBinding[e.Binding] = existing
			continue
		}
		byBinding[e.Binding] = e
	}

	out := make([]wgpu.BindGroupLayoutEntry, 0, len(byBinding))
	for _, e := range byBinding {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Binding < out[j].Binding
	})
	return out
}

func (d *device) CreateBindingLayout(blob []byte) (gpu.BindingLayout, error) {
	desc, err := gpu.DeserializeBindingLayout(blob)
	if err != nil {
		return nil, err
	}
	groups, slots, samplerSlots, err := describeGroups(desc)
	if err != nil {
		return nil, err
	}

	l := &bindingLayout{desc: desc, slots: slots}
	maxGroup := -1
	for g := range groups {
		maxGroup = max(maxGroup, int(g))
	}

	// WebGPU pipeline layouts may not have holes, so unused groups get empty layouts.
	l.groups = make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := range l.groups {
		bgl, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s group %d", desc.Label, g),
			Entries: groups[uint32(g)],
		})
		if err != nil {
			l.Release()
			return nil, fmt.Errorf("wgpu_backend: create bind group layout %d: %w", g, err)
		}
		l.groups[g] = bgl
	}

	for i, smp := range desc.StaticSamplers {
		native, err := d.sampler(smp)
		if err != nil {
			l.Release()
			return nil, err
		}
		l.samplers = append(l.samplers, boundSampler{slotBinding: samplerSlots[i], native: native})
	}

	l.native, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: l.groups,
	})
	if err != nil {
		l.Release()
		return nil, fmt.Errorf("wgpu_backend: create pipeline layout: %w", err)
	}
	return l, nil
}

func (l *bindingLayout) Descriptor() gpu.BindingLayoutDescriptor {
	return l.desc
}

func (l *bindingLayout) Release() {
	if l.native != nil {
		l.native.Release()
		l.native = nil
	}
	for _, g := range l.groups {
		if g != nil {
			g.Release()
		}
	}
	l.groups = nil
}

// sampler returns the shared native sampler of a static sampler description.
func (d *device) sampler(s gpu.StaticSampler) (*wgpu.Sampler, error) {
	key := gpu.StaticSampler{Filter: s.Filter, Address: s.Address, Compare: s.Compare}
	d.mu.Lock()
	defer d.mu.Unlock()
	if native, ok := d.samplers[key]; ok {
		return native, nil
	}
	native, err := d.device.CreateSampler(samplerDescriptor(s))
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create sampler: %w", err)
	}
	d.samplers[key] = native
	return native, nil
}
