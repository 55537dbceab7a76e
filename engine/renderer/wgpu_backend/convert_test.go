package wgpu_backend

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader/rtwgsl"
	"github.com/cogentcore/webgpu/wgpu"
)

func TestChooseSurfaceFormat(t *testing.T) {
	native, format, ok := chooseSurfaceFormat([]wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float, wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatBGRA8Unorm})
	if !ok || native != wgpu.TextureFormatRGBA8Unorm || format != gpu.TextureFormatRGBA8Unorm {
		t.Fatalf("chooseSurfaceFormat = %v, %v, %v", native, format, ok)
	}
	if _, _, ok := chooseSurfaceFormat([]wgpu.TextureFormat{wgpu.TextureFormatRGBA16Float}); ok {
		t.Fatal("expected no usable format")
	}
}

func TestToTextureFormatRejectsUndefined(t *testing.T) {
	if _, err := toTextureFormat(gpu.TextureFormatUndefined); err == nil {
		t.Fatal("expected error for undefined format")
	}
	if f, err := toTextureFormat(gpu.TextureFormatDepth32Float); err != nil || f != wgpu.TextureFormatDepth32Float {
		t.Fatalf("depth format = %v, %v", f, err)
	}
}

func TestBufferUsage(t *testing.T) {
	tests := []struct {
		name string
		in   gpu.BufferUsage
		want wgpu.BufferUsage
	}{
		{"vertex", gpu.BufferUsageVertex, wgpu.BufferUsageVertex},
		{"constant", gpu.BufferUsageConstant, wgpu.BufferUsageUniform},
		{"shader table", gpu.BufferUsageShaderTable, wgpu.BufferUsageStorage},
		{"instances", gpu.BufferUsageAccelerationStructureInput, wgpu.BufferUsageStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bufferUsage(tt.in)
			if got&tt.want != tt.want {
				t.Errorf("usage %v missing %v", got, tt.want)
			}
			if got&wgpu.BufferUsageCopyDst == 0 {
				t.Error("every buffer must be writable through the queue")
			}
		})
	}
}

func TestTextureUsage(t *testing.T) {
	got := textureUsage(gpu.TextureUsageRenderTarget | gpu.TextureUsageShaderResource)
	if got != wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding {
		t.Errorf("render target usage = %v", got)
	}
	if textureUsage(gpu.TextureUsageUnorderedAccess) != wgpu.TextureUsageStorageBinding {
		t.Error("unordered access should map to storage binding")
	}
}

func TestVertexBufferLayout(t *testing.T) {
	layouts, err := vertexBufferLayout(gpu.VertexLayout{})
	if err != nil || layouts != nil {
		t.Fatalf("empty layout = %v, %v", layouts, err)
	}
	layouts, err = vertexBufferLayout(gpu.VertexLayout{
		Stride: 32,
		Attributes: []gpu.VertexAttribute{
			{Location: 0, Format: gpu.VertexFormatFloat32x3, Offset: 0},
			{Location: 1, Format: gpu.VertexFormatFloat32x3, Offset: 12},
			{Location: 2, Format: gpu.VertexFormatFloat32x2, Offset: 24},
		},
	})
	if err != nil {
		t.Fatalf("vertexBufferLayout: %v", err)
	}
	if len(layouts) != 1 || layouts[0].ArrayStride != 32 || len(layouts[0].Attributes) != 3 {
		t.Fatalf("layout = %+v", layouts)
	}
	if layouts[0].Attributes[2].Format != wgpu.VertexFormatFloat32x2 || layouts[0].Attributes[2].Offset != 24 {
		t.Errorf("uv attribute = %+v", layouts[0].Attributes[2])
	}
}

func TestDescribeGroupsGraphics(t *testing.T) {
	desc := gpu.BindingLayoutDescriptor{
		Label: "lit",
		Flags: gpu.LayoutAllowInputAssembler,
		Slots: []gpu.LayoutSlot{
			{Kind: gpu.SlotInlineConstants, Name: "material", Register: 0, Space: 0, Num32BitValues: 8},
			{Kind: gpu.SlotTable, Name: "albedo", Range: gpu.DescriptorRange{Type: gpu.RangeSRV, Count: 1, BaseRegister: 1, Space: 0, Shape: gpu.ShapeTexture2D}},
			{Kind: gpu.SlotTable, Name: "frame", Range: gpu.DescriptorRange{Type: gpu.RangeCBV, Count: 1, BaseRegister: 0, Space: 1, Shape: gpu.ShapeConstantBuffer}},
		},
		StaticSamplers: []gpu.StaticSampler{{Register: 2, Space: 0}},
	}
	groups, slots, samplers, err := describeGroups(desc)
	if err != nil {
		t.Fatalf("describeGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if len(groups[0]) != 3 {
		t.Fatalf("group 0 entries = %d, want 3", len(groups[0]))
	}
	for i, e := range groups[0] {
		if e.Binding != uint32(i) {
			t.Errorf("entry %d binding = %d, want sorted bindings", i, e.Binding)
		}
	}
	if groups[0][0].Buffer.Type != wgpu.BufferBindingTypeUniform {
		t.Error("inline constants should bind a uniform buffer")
	}
	if groups[0][1].Texture.SampleType != wgpu.TextureSampleTypeUnfilterableFloat {
		t.Error("texture table should bind an unfilterable float texture")
	}
	if groups[0][2].Sampler.Type != wgpu.SamplerBindingTypeNonFiltering {
		t.Error("static sampler should bind a non-filtering sampler")
	}
	if slots[2] != (slotBinding{group: 1, binding: 0}) {
		t.Errorf("frame slot = %+v", slots[2])
	}
	if samplers[0] != (slotBinding{group: 0, binding: 2}) {
		t.Errorf("sampler slot = %+v", samplers[0])
	}
	if groups[0][0].Visibility != wgpu.ShaderStageVertex|wgpu.ShaderStageFragment {
		t.Errorf("visibility = %v", groups[0][0].Visibility)
	}
}

func TestDescribeGroupsRayTracing(t *testing.T) {
	desc := gpu.BindingLayoutDescriptor{
		Label: "reflection",
		Flags: gpu.LayoutRayTracing,
		Slots: []gpu.LayoutSlot{
			{Kind: gpu.SlotTable, Name: "output", Range: gpu.DescriptorRange{Type: gpu.RangeUAV, Count: 1, BaseRegister: 0, Space: 0, Shape: gpu.ShapeStorageTexture2D, Format: gpu.TextureFormatRGBA16Float}},
			{Kind: gpu.SlotTable, Name: "scene", Range: gpu.DescriptorRange{Type: gpu.RangeSRV, Count: 1, BaseRegister: 1, Space: 0, Shape: gpu.ShapeAccelerationStructure}},
		},
	}
	groups, _, _, err := describeGroups(desc)
	if err != nil {
		t.Fatalf("describeGroups: %v", err)
	}
	system := groups[rtwgsl.SystemGroup]
	if len(system) != 2 {
		t.Fatalf("system group entries = %d, want 2", len(system))
	}
	if system[1].Buffer.MinBindingSize != rtwgsl.DispatchParamsSize {
		t.Errorf("dispatch params min size = %d", system[1].Buffer.MinBindingSize)
	}
	if groups[0][0].StorageTexture.Format != wgpu.TextureFormatRGBA16Float {
		t.Errorf("storage format = %v", groups[0][0].StorageTexture.Format)
	}
	if groups[0][1].Buffer.Type != wgpu.BufferBindingTypeReadOnlyStorage {
		t.Error("acceleration structure should bind a read-only storage buffer")
	}
	if groups[0][0].Visibility != wgpu.ShaderStageCompute {
		t.Errorf("visibility = %v, want compute", groups[0][0].Visibility)
	}

	desc.Slots = append(desc.Slots, gpu.LayoutSlot{Kind: gpu.SlotInlineConstants, Name: "bad", Register: 0, Space: rtwgsl.SystemGroup, Num32BitValues: 4})
	if _, _, _, err := describeGroups(desc); err == nil {
		t.Fatal("expected error for a slot in the system group")
	}
}

func TestMergeEntriesOrsVisibility(t *testing.T) {
	a := []wgpu.BindGroupLayoutEntry{{Binding: 2, Visibility: wgpu.ShaderStageVertex}}
	b := []wgpu.BindGroupLayoutEntry{
		{Binding: 2, Visibility: wgpu.ShaderStageFragment},
		{Binding: 0, Visibility: wgpu.ShaderStageFragment},
	}
	got := mergeEntries(a, b)
	if len(got) != 2 || got[0].Binding != 0 || got[1].Binding != 2 {
		t.Fatalf("merged = %+v", got)
	}
	if got[1].Visibility != wgpu.ShaderStageVertex|wgpu.ShaderStageFragment {
		t.Errorf("visibility = %v", got[1].Visibility)
	}
}
