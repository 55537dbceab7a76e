package material

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/reflection"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/resource_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// compositeStage mirrors the reflection of a composite pixel shader: frame-context camera,
// transform and reflection bindings plus an owned MaterialParams group and albedo texture.
func compositeStage() shader.StageReflection {
	return shader.StageReflection{
		Stage:      shader.StagePixel,
		EntryPoint: "psMain",
		Resources: []shader.ResourceBinding{
			{Name: "camera", Type: shader.ResourceConstantBuffer, BindPoint: 0, Size: 80,
				Members: []shader.Member{{Name: "viewProjection", Size: 64}, {Name: "position", Offset: 64, Size: 16}}},
			{Name: "transform", Type: shader.ResourceConstantBuffer, BindPoint: 1, Size: 64,
				Members: []shader.Member{{Name: "model", Size: 64}}},
			{Name: "material", Type: shader.ResourceConstantBuffer, BindPoint: 2, Size: 32,
				Members: []shader.Member{{Name: "baseColor", Size: 16}, {Name: "reflectivity", Offset: 16, Size: 4}}},
			{Name: "albedo", Type: shader.ResourceTexture, BindPoint: 3},
			{Name: "reflection", Type: shader.ResourceTexture, BindPoint: 4},
			{Name: "linearSampler", Type: shader.ResourceSampler, BindPoint: 5},
		},
	}
}

type fixture struct {
	dev    *gputest.Device
	layout *binding_layout.Layout
	agg    reflection.Aggregated
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	agg := reflection.NewAggregator()
	if err := agg.AddStage(compositeStage()); err != nil {
		t.Fatal(err)
	}
	dev := gputest.NewDevice()
	out := agg.Result()
	layout, err := binding_layout.NewBuilder(dev).Build(out, binding_layout.FlagAllowInputAssembler)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{dev: dev, layout: layout, agg: out}
}

func f32(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

func TestInstanceLayout(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout)

	if got := m.TableFields(); len(got) != 1 || got[0] != "albedo" {
		t.Fatalf("table fields = %v, want [albedo]", got)
	}
	if got := m.ConstantFields(); len(got) != 2 || got[0] != "baseColor" || got[1] != "reflectivity" {
		t.Fatalf("constant fields = %v", got)
	}
	if len(m.ConstantBytes("material")) != 32 {
		t.Fatalf("material group = %d bytes, want 32", len(m.ConstantBytes("material")))
	}
	if m.ConstantBytes("camera") != nil {
		t.Fatal("frame-context group owned by the material")
	}
}

func TestInstanceSetters(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout, WithColor("baseColor", [4]float32{0.5, 0.25, 1, 1}))

	if err := m.SetFloat("material.reflectivity", 0.75); err != nil {
		t.Fatal(err)
	}
	b := m.ConstantBytes("material")
	if f32(b, 0) != 0.5 || f32(b, 1) != 0.25 || f32(b, 4) != 0.75 {
		t.Fatalf("material bytes = %v", b)
	}

	tests := []struct {
		name string
		err  error
		call func() error
	}{
		{"unknown", ErrUnknownField, func() error { return m.SetFloat("roughness", 1) }},
		{"frame context", ErrUnknownField, func() error { return m.SetMatrix("model", common.Identity()) }},
		{"size", ErrFieldSize, func() error { return m.SetVector("baseColor", []float32{1, 2, 3}) }},
		{"color into scalar", ErrFieldSize, func() error { return m.SetColor("reflectivity", [4]float32{}) }},
		{"texture into constant", ErrFieldKind, func() error { return m.SetTexture("baseColor", nil) }},
		{"constant into texture", ErrFieldKind, func() error { return m.SetFloat("albedo", 1) }},
		{"unknown texture", ErrUnknownField, func() error { return m.SetTexture("normalMap", nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
		})
	}
	if f32(m.ConstantBytes("material"), 0) != 0.5 {
		t.Fatal("a failed setter modified the buffer")
	}
}

func TestConstantBytesIsBounded(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout)
	b := m.ConstantBytes("material")
	if cap(b) != len(b) {
		t.Fatalf("cap = %d, len = %d; slice can grow into the owned buffer", cap(b), len(b))
	}
}

func TestFieldViewFollowsUpload(t *testing.T) {
	fx := newFixture(t)
	tex, err := model.NewTexture("albedo", make([]byte, 16), 2, 2, model.TextureFormatRGBA32)
	if err != nil {
		t.Fatal(err)
	}
	m := NewInstance("brick", nil, fx.agg, fx.layout, WithTexture("albedo", tex))

	if v := m.FieldView("albedo"); !v.IsNull() || v.Kind != gpu.DescriptorKindSRV {
		t.Fatalf("view before upload = %+v, want null SRV", v)
	}
	gt, _ := fx.dev.CreateTexture(gpu.TextureDescriptor{Width: 2, Height: 2, Format: gpu.TextureFormatRGBA8Unorm})
	tex.SetGPU(gt)
	if v := m.FieldView("albedo"); v.Texture != gt {
		t.Fatalf("view after upload = %+v", v)
	}
}

func TestTexturesSkipsUnsetFields(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout)
	if got := m.Textures(); len(got) != 0 {
		t.Fatalf("textures = %v, want none", got)
	}
	tex, err := model.NewTexture("albedo", make([]byte, 4), 1, 1, model.TextureFormatRGBA32)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetTexture("albedo", tex); err != nil {
		t.Fatal(err)
	}
	if got := m.Textures(); len(got) != 1 || got[0] != tex {
		t.Fatalf("textures = %v", got)
	}
}

func TestBind(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout, WithParams(model.GPUMaterialParams{BaseColor: [4]float32{1, 0, 0, 1}, Reflectivity: 0.5}))

	tbl, err := resource_table.Allocate(fx.dev, resource_table.CountSlots(1, m), "table")
	if err != nil {
		t.Fatal(err)
	}
	global, _ := tbl.ReserveGlobals(1)
	region, _ := tbl.Reserve(1)
	if err := tbl.BindRange(m, region); err != nil {
		t.Fatal(err)
	}
	reflectionHandles, err := tbl.WriteGlobal(global.Base, gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV})
	if err != nil {
		t.Fatal(err)
	}

	frame := NewFrameContext()
	frame.SetConstants(FrameCamera, make([]byte, 80))
	frame.SetTable(FrameReflection, reflectionHandles.GPU)

	cl := &gputest.CommandList{}
	m.Bind(cl, frame)

	slot := func(name string) uint32 {
		i, ok := fx.layout.SlotOf(name)
		if !ok {
			t.Fatalf("no slot %q", name)
		}
		return i
	}
	inline := make(map[uint32][]byte)
	tables := make(map[uint32]gpu.DescriptorHandle)
	for _, c := range cl.Commands() {
		switch c.Op {
		case gputest.OpSetInlineConstants:
			inline[c.Slot] = c.Data
		case gputest.OpSetTable:
			tables[c.Slot] = c.Handle
		}
	}

	if d := inline[slot("material")]; len(d) != 32 || f32(d, 0) != 1 || f32(d, 4) != 0.5 {
		t.Fatalf("material push = %v", d)
	}
	if len(inline[slot("camera")]) != 80 {
		t.Fatal("camera not pushed from the frame context")
	}
	if _, ok := inline[slot("transform")]; ok {
		t.Fatal("missing frame value was not skipped")
	}
	albedo, _ := m.FieldHandles("albedo")
	if tables[slot("albedo")] != albedo.GPU || fx.dev.Heaps[0].SlotOfGPU(albedo.GPU) != region.Base {
		t.Fatal("albedo not bound to its table slot")
	}
	if tables[slot("reflection")] != reflectionHandles.GPU {
		t.Fatal("reflection not bound from the frame context")
	}
	if len(inline) != 2 || len(tables) != 2 {
		t.Fatalf("bound %d inline and %d table slots, want 2 and 2", len(inline), len(tables))
	}

	payload := m.HitGroupPayload()
	if len(payload) != GPUHitGroupPayloadHeaderSize+32 {
		t.Fatalf("payload = %d bytes", len(payload))
	}
	if binary.LittleEndian.Uint64(payload) != albedo.GPU.Ptr || f32(payload[8:], 0) != 1 {
		t.Fatal("payload does not carry the table base and constants")
	}
}

func TestDirtyTextureRewritesOneSlot(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout)
	tbl, err := resource_table.Allocate(fx.dev, resource_table.CountSlots(0, m), "table")
	if err != nil {
		t.Fatal(err)
	}
	region, _ := tbl.Reserve(1)
	if err := tbl.BindRange(m, region); err != nil {
		t.Fatal(err)
	}
	if n, _ := tbl.UpdateModified(m); n != 0 {
		t.Fatalf("clean material wrote %d slots", n)
	}

	tex, _ := model.NewTexture("t", make([]byte, 4), 1, 1, model.TextureFormatRGBA32)
	if err := m.SetTexture("albedo", tex); err != nil {
		t.Fatal(err)
	}
	if d := m.DirtyFields(); len(d) != 1 {
		t.Fatalf("dirty = %v", d)
	}
	if n, _ := tbl.UpdateModified(m); n != 1 {
		t.Fatalf("update wrote %d slots, want 1", n)
	}
}

func TestDetachAllowsRebinding(t *testing.T) {
	fx := newFixture(t)
	m := NewInstance("brick", nil, fx.agg, fx.layout)
	first, err := resource_table.Allocate(fx.dev, 4, "first")
	if err != nil {
		t.Fatal(err)
	}
	first.Reserve(2)
	region, _ := first.Reserve(1)
	if err := first.BindRange(m, region); err != nil {
		t.Fatal(err)
	}

	second, err := resource_table.Allocate(fx.dev, 1, "second")
	if err != nil {
		t.Fatal(err)
	}
	fresh, _ := second.Reserve(1)
	if err := second.BindRange(m, fresh); !errors.Is(err, resource_table.ErrRegionMismatch) {
		t.Fatalf("bind while attached: %v", err)
	}

	m.Detach()
	if _, ok := m.Region(); ok || len(m.DirtyFields()) != 1 {
		t.Fatal("detach kept the region or left fields clean")
	}
	if err := second.BindRange(m, fresh); err != nil {
		t.Fatal(err)
	}
	if r, _ := m.Region(); r != fresh {
		t.Fatalf("region = %+v, want %+v", r, fresh)
	}
}
