package resource_table

import (
	"errors"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
)

type fakeMaterial struct {
	name    string
	fields  []string
	views   map[string]gpu.ViewDescriptor
	dirty   map[string]bool
	region  *TableRegion
	handles map[string]Handles
}

func newFakeMaterial(name string, fields ...string) *fakeMaterial {
	m := &fakeMaterial{name: name, fields: fields, views: make(map[string]gpu.ViewDescriptor), dirty: make(map[string]bool)}
	for _, f := range fields {
		m.views[f] = gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV}
		m.dirty[f] = true
	}
	return m
}

func (m *fakeMaterial) Name() string          { return m.name }
func (m *fakeMaterial) TableFields() []string { return m.fields }
func (m *fakeMaterial) FieldView(f string) gpu.ViewDescriptor {
	return m.views[f]
}
func (m *fakeMaterial) MarkClean(f string) { delete(m.dirty, f) }
func (m *fakeMaterial) DirtyFields() []string {
	var out []string
	for _, f := range m.fields {
		if m.dirty[f] {
			out = append(out, f)
		}
	}
	return out
}
func (m *fakeMaterial) Region() (TableRegion, bool) {
	if m.region == nil {
		return TableRegion{}, false
	}
	return *m.region, true
}
func (m *fakeMaterial) Attach(r TableRegion, h map[string]Handles) {
	m.region = &r
	m.handles = h
}

func (m *fakeMaterial) set(field string, tex gpu.Texture) {
	m.views[field] = gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV, Texture: tex}
	m.dirty[field] = true
}

func TestCountSlots(t *testing.T) {
	a := newFakeMaterial("a", "albedo", "normal")
	b := newFakeMaterial("b", "albedo")
	if got := CountSlots(7, a, b, a, nil); got != 10 {
		t.Fatalf("CountSlots = %d, want 10", got)
	}
}

func TestReserveNeverGrows(t *testing.T) {
	dev := gputest.NewDevice()
	tbl, err := Allocate(dev, 4, "table")
	if err != nil {
		t.Fatal(err)
	}
	first, err := tbl.Reserve(3)
	if err != nil || first != (TableRegion{Base: 0, Count: 3}) {
		t.Fatalf("first region = %+v, %v", first, err)
	}
	if _, err := tbl.Reserve(2); !errors.Is(err, ErrTableFull) {
		t.Fatalf("err = %v, want ErrTableFull", err)
	}
	second, err := tbl.Reserve(1)
	if err != nil || second.Base != 3 {
		t.Fatalf("second region = %+v, %v", second, err)
	}
	if tbl.Capacity() != 4 || tbl.Reserved() != 4 {
		t.Fatalf("capacity %d reserved %d", tbl.Capacity(), tbl.Reserved())
	}
}

func TestBindRangeAndUpdateModified(t *testing.T) {
	dev := gputest.NewDevice()
	tex := &gputest.Texture{}
	m := newFakeMaterial("brick", "albedo", "normal", "roughness")
	m.set("albedo", tex)

	tbl, err := Allocate(dev, CountSlots(2, m), "table")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Reserve(2); err != nil {
		t.Fatal(err)
	}
	region, err := tbl.Reserve(uint32(len(m.TableFields())))
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.BindRange(m, region); err != nil {
		t.Fatal(err)
	}

	heap := dev.Heaps[0]
	if heap.Writes != 3 {
		t.Fatalf("bind wrote %d slots, want 3", heap.Writes)
	}
	if heap.Views[2].Texture != tex {
		t.Fatal("albedo not written at the region base")
	}
	if !heap.Views[3].IsNull() || heap.Views[3].Kind != gpu.DescriptorKindSRV {
		t.Fatalf("missing texture not written as a null SRV: %+v", heap.Views[3])
	}
	if h := m.handles["normal"]; h.Slot != 3 || heap.SlotOfGPU(h.GPU) != 3 {
		t.Fatalf("normal handles = %+v", h)
	}
	if len(m.DirtyFields()) != 0 {
		t.Fatal("bind left dirty fields")
	}

	for frame := 0; frame < 3; frame++ {
		n, err := tbl.UpdateModified(m)
		if err != nil || n != 0 {
			t.Fatalf("clean update wrote %d, %v", n, err)
		}
	}

	m.set("roughness", tex)
	n, err := tbl.UpdateModified(m)
	if err != nil || n != 1 {
		t.Fatalf("update wrote %d, %v; want 1", n, err)
	}
	if heap.Written[4] != 2 || heap.Written[2] != 1 || heap.Written[3] != 1 {
		t.Fatalf("per-slot writes = %v", heap.Written)
	}
	if got, _ := m.Region(); got != region {
		t.Fatalf("region moved from %+v to %+v", region, got)
	}
	if tbl.Writes() != 4 {
		t.Fatalf("table writes = %d, want 4", tbl.Writes())
	}
}

func TestBindRangeErrors(t *testing.T) {
	dev := gputest.NewDevice()
	tbl, err := Allocate(dev, 8, "table")
	if err != nil {
		t.Fatal(err)
	}
	m := newFakeMaterial("m", "a", "b")

	small, _ := tbl.Reserve(1)
	if err := tbl.BindRange(m, small); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("small region err = %v", err)
	}
	if err := tbl.BindRange(m, TableRegion{Base: 6, Count: 2}); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("unreserved region err = %v", err)
	}

	region, _ := tbl.Reserve(2)
	if err := tbl.BindRange(m, region); err != nil {
		t.Fatal(err)
	}
	if err := tbl.BindRange(m, region); err != nil {
		t.Fatalf("rebinding at the same region: %v", err)
	}
	other, _ := tbl.Reserve(2)
	if err := tbl.BindRange(m, other); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("moved region err = %v", err)
	}
	if _, err := tbl.UpdateModified(newFakeMaterial("unbound", "x")); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("unbound update err = %v", err)
	}
}

func TestWriteGlobal(t *testing.T) {
	dev := gputest.NewDevice()
	tbl, err := Allocate(dev, 4, "table")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.WriteGlobal(0, gpu.ViewDescriptor{}); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("unreserved global err = %v", err)
	}
	globals, err := tbl.ReserveGlobals(2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.ReserveGlobals(1); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("second ReserveGlobals err = %v", err)
	}
	material, err := tbl.Reserve(2)
	if err != nil {
		t.Fatal(err)
	}
	h, err := tbl.WriteGlobal(globals.Slot(1), gpu.ViewDescriptor{Kind: gpu.DescriptorKindUAV})
	if err != nil {
		t.Fatal(err)
	}
	if dev.Heaps[0].SlotOfGPU(h.GPU) != 1 || dev.Heaps[0].Views[1].Kind != gpu.DescriptorKindUAV {
		t.Fatalf("global write landed wrong: %+v", h)
	}
	if _, err := tbl.WriteGlobal(material.Base, gpu.ViewDescriptor{}); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("material slot global write err = %v", err)
	}
	if got := tbl.Writes(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}
	tbl.Release()
	if !dev.Heaps[0].Released {
		t.Fatal("heap not released")
	}
}

func TestReserveGlobalsMustComeFirst(t *testing.T) {
	dev := gputest.NewDevice()
	tbl, err := Allocate(dev, 4, "table")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Reserve(1); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.ReserveGlobals(1); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("late ReserveGlobals err = %v", err)
	}
}

func TestBindRangeRejectsWrappingRegion(t *testing.T) {
	dev := gputest.NewDevice()
	tbl, err := Allocate(dev, 4, "table")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Reserve(2); err != nil {
		t.Fatal(err)
	}
	m := newFakeMaterial("m", "a", "b")
	region := TableRegion{Base: math.MaxUint32, Count: 2}
	if region.End() != uint64(math.MaxUint32)+2 {
		t.Fatalf("End = %d", region.End())
	}
	if err := tbl.BindRange(m, region); !errors.Is(err, ErrRegionMismatch) {
		t.Fatalf("wrapping region err = %v", err)
	}
	if _, ok := m.Region(); ok || tbl.Writes() != 0 {
		t.Fatalf("wrapping region was bound, writes = %d", tbl.Writes())
	}
}

func TestTableRegionContains(t *testing.T) {
	top := TableRegion{Base: math.MaxUint32 - 1, Count: 2}
	tests := []struct {
		r    TableRegion
		slot uint32
		want bool
	}{
		{TableRegion{Base: 2, Count: 3}, 1, false},
		{TableRegion{Base: 2, Count: 3}, 2, true},
		{TableRegion{Base: 2, Count: 3}, 4, true},
		{TableRegion{Base: 2, Count: 3}, 5, false},
		{TableRegion{Base: 2}, 2, false},
		{top, math.MaxUint32, true},
		{top, 0, false},
	}
	for _, tt := range tests {
		if got := tt.r.Contains(tt.slot); got != tt.want {
			t.Errorf("[%d, %d) contains %d = %v, want %v", tt.r.Base, tt.r.End(), tt.slot, got, tt.want)
		}
	}
}
