package gpu

import (
	"errors"
	"testing"
)

func sampleLayout() BindingLayoutDescriptor {
	return BindingLayoutDescriptor{
		Label: "sample",
		Flags: LayoutAllowInputAssembler,
		Slots: []LayoutSlot{
			{Kind: SlotInlineConstants, Name: "camera", Register: 0, Space: 0, Num32BitValues: 20},
			{Kind: SlotTable, Name: "albedo", Range: DescriptorRange{Type: RangeSRV, Count: 1, BaseRegister: 1, Space: 1, Shape: ShapeTexture2D}},
			{Kind: SlotTable, Name: "output", Range: DescriptorRange{Type: RangeUAV, Count: 1, BaseRegister: 2, Space: 0, Shape: ShapeStorageTexture2D, Format: TextureFormatRGBA16Float}},
		},
		StaticSamplers: []StaticSampler{{Register: 0, Space: 1}},
	}
}

func TestSerializeBindingLayoutRoundTrip(t *testing.T) {
	desc := sampleLayout()
	blob, err := SerializeBindingLayout(desc)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got, err := DeserializeBindingLayout(blob)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if got.Label != desc.Label || got.Flags != desc.Flags {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.Slots) != len(desc.Slots) {
		t.Fatalf("slot count = %d, want %d", len(got.Slots), len(desc.Slots))
	}
	for i := range desc.Slots {
		if got.Slots[i] != desc.Slots[i] {
			t.Errorf("slot %d = %+v, want %+v", i, got.Slots[i], desc.Slots[i])
		}
	}
	if len(got.StaticSamplers) != 1 || got.StaticSamplers[0] != desc.StaticSamplers[0] {
		t.Errorf("static samplers = %+v", got.StaticSamplers)
	}
}

func TestSerializeBindingLayoutRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BindingLayoutDescriptor)
	}{
		{"root cost over limit", func(d *BindingLayoutDescriptor) {
			d.Slots = append(d.Slots, LayoutSlot{Kind: SlotInlineConstants, Name: "big", Register: 5, Num32BitValues: 48})
		}},
		{"zero inline values", func(d *BindingLayoutDescriptor) {
			d.Slots[0].Num32BitValues = 0
		}},
		{"empty range", func(d *BindingLayoutDescriptor) {
			d.Slots[1].Range.Count = 0
		}},
		{"srv register collision", func(d *BindingLayoutDescriptor) {
			d.Slots = append(d.Slots, LayoutSlot{Kind: SlotTable, Name: "dup", Range: DescriptorRange{Type: RangeSRV, Count: 1, BaseRegister: 1, Space: 1}})
		}},
		{"cbv collides with inline constants", func(d *BindingLayoutDescriptor) {
			d.Slots = append(d.Slots, LayoutSlot{Kind: SlotTable, Name: "cb", Range: DescriptorRange{Type: RangeCBV, Count: 1, BaseRegister: 0, Space: 0}})
		}},
		{"sampler collision", func(d *BindingLayoutDescriptor) {
			d.StaticSamplers = append(d.StaticSamplers, StaticSampler{Register: 0, Space: 1})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := sampleLayout()
			tt.mutate(&desc)
			blob, err := SerializeBindingLayout(desc)
			if !errors.Is(err, ErrInvalidLayout) {
				t.Fatalf("err = %v, want ErrInvalidLayout", err)
			}
			if blob != nil {
				t.Fatalf("blob should be nil on failure")
			}
		})
	}
}

func TestSameRegisterDifferentClassIsAllowed(t *testing.T) {
	desc := BindingLayoutDescriptor{Slots: []LayoutSlot{
		{Kind: SlotTable, Name: "tex", Range: DescriptorRange{Type: RangeSRV, Count: 1}},
		{Kind: SlotTable, Name: "rw", Range: DescriptorRange{Type: RangeUAV, Count: 1}},
		{Kind: SlotInlineConstants, Name: "cb", Num32BitValues: 4},
	}}
	if _, err := SerializeBindingLayout(desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeserializeBindingLayoutRejectsGarbage(t *testing.T) {
	if _, err := DeserializeBindingLayout([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("short blob: err = %v", err)
	}
	blob, _ := SerializeBindingLayout(sampleLayout())
	if _, err := DeserializeBindingLayout(blob[:len(blob)-3]); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("truncated blob: err = %v", err)
	}
}

func TestLayoutCost(t *testing.T) {
	if got := sampleLayout().Cost(); got != 22 {
		t.Fatalf("cost = %d, want 22", got)
	}
}

func TestInstanceDescPacking(t *testing.T) {
	d := InstanceDesc{
		Transform:             [12]float32{1, 0, 0, 5, 0, 1, 0, 6, 0, 0, 1, 7},
		InstanceID:            0x1ABCDEF,
		Mask:                  0xFF,
		HitGroupIndex:         3,
		Flags:                 InstanceFlagForceOpaque,
		AccelerationStructure: 0xDEADBEEF00,
	}
	b := d.Marshal()
	if len(b) != InstanceDescSize {
		t.Fatalf("len = %d", len(b))
	}
	if b[51] != 0xFF || b[55] != byte(InstanceFlagForceOpaque) {
		t.Fatalf("mask/flags bytes = %x %x", b[51], b[55])
	}
	got, err := UnmarshalInstanceDesc(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.InstanceID != 0xABCDEF {
		t.Errorf("instance id not truncated to 24 bits: %x", got.InstanceID)
	}
	if got.Transform != d.Transform || got.Mask != d.Mask || got.HitGroupIndex != 3 || got.AccelerationStructure != d.AccelerationStructure {
		t.Errorf("decoded = %+v", got)
	}
	if _, err := UnmarshalInstanceDesc(b[:10]); err == nil {
		t.Error("expected error for short record")
	}
}

func TestVertexLayoutKey(t *testing.T) {
	a := VertexLayout{Stride: 32, Attributes: []VertexAttribute{{0, VertexFormatFloat32x3, 0}, {1, VertexFormatFloat32x2, 12}}}
	b := VertexLayout{Stride: 32, Attributes: []VertexAttribute{{0, VertexFormatFloat32x3, 0}, {1, VertexFormatFloat32x3, 12}}}
	if a.Key() == b.Key() {
		t.Fatal("different layouts share a key")
	}
	if a.Key() != "32|0:2@0|1:1@12" {
		t.Fatalf("key = %q", a.Key())
	}
}

func TestHandleOffset(t *testing.T) {
	h := DescriptorHandle{Ptr: 1000}
	if got := h.Offset(3, 32); got.Ptr != 1096 {
		t.Fatalf("offset = %d", got.Ptr)
	}
}
