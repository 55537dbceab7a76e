package wgpu_backend

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

func newTestList() *commandList {
	return &commandList{mu: &sync.Mutex{}}
}

func TestCloseWithOpenRenderPass(t *testing.T) {
	c := newTestList()
	c.BeginRenderPass(gpu.RenderPassDescriptor{Label: "gbuffer"})
	if err := c.Close(); !errors.Is(err, ErrRecording) {
		t.Fatalf("Close = %v, want ErrRecording", err)
	}
	c.Reset()
	c.BeginRenderPass(gpu.RenderPassDescriptor{Label: "gbuffer"})
	c.EndRenderPass()
	if err := c.Close(); err != nil {
		t.Fatalf("Close after reset = %v", err)
	}
	if cmds, err := c.recorded(); err != nil || len(cmds) != 2 {
		t.Fatalf("recorded = %d commands, %v", len(cmds), err)
	}
}

func TestRecordingErrors(t *testing.T) {
	c := newTestList()
	c.SetInlineConstants(0, []byte{1, 2, 3})
	if err := c.Close(); err == nil {
		t.Fatal("expected error for unaligned inline constants")
	}

	c.Reset()
	c.EndRenderPass()
	if err := c.Close(); !errors.Is(err, ErrRecording) {
		t.Fatalf("Close = %v, want ErrRecording for unmatched end", err)
	}

	c.Reset()
	if _, err := c.recorded(); !errors.Is(err, ErrRecording) {
		t.Fatalf("recorded while open = %v, want ErrRecording", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	c.Dispatch(1, 1, 1)
	if cmds, _ := c.recorded(); len(cmds) != 0 {
		t.Error("commands recorded into a closed list")
	}
}

func TestBottomLevelBuildsRecordedAsData(t *testing.T) {
	c := newTestList()
	c.BuildAccelerationStructure(gpu.BuildDescriptor{Inputs: gpu.BuildInputs{Level: gpu.LevelBottom}})
	c.BuildAccelerationStructure(gpu.BuildDescriptor{Inputs: gpu.BuildInputs{Level: gpu.LevelTop}})
	if err := c.Close(); err != nil {
		t.Fatalf("Close = %v", err)
	}
	cmds, _ := c.recorded()
	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want 2", len(cmds))
	}
	if cmds[0].build == nil || cmds[0].run != nil {
		t.Error("bottom-level build should be recorded as data")
	}
	if cmds[1].build != nil || cmds[1].run == nil {
		t.Error("top-level build should be recorded as a closure")
	}
}

func TestReplaySetArgumentValidatesSlots(t *testing.T) {
	layout := &bindingLayout{desc: gpu.BindingLayoutDescriptor{
		Slots: []gpu.LayoutSlot{
			{Kind: gpu.SlotInlineConstants, Name: "material", Num32BitValues: 2},
			{Kind: gpu.SlotTable, Name: "albedo", Range: gpu.DescriptorRange{Type: gpu.RangeSRV, Count: 1, Shape: gpu.ShapeTexture2D}},
		},
	}}
	r := &replay{}
	if err := r.setArgument(0, argument{constants: make([]byte, 8)}); err == nil {
		t.Fatal("expected error before a layout is bound")
	}
	r.graphics.reset(layout)
	r.active = &r.graphics

	if err := r.setArgument(0, argument{constants: make([]byte, 8)}); err != nil {
		t.Fatalf("inline constants: %v", err)
	}
	if err := r.setArgument(0, argument{constants: make([]byte, 12)}); !errors.Is(err, gpu.ErrOutOfRange) {
		t.Errorf("oversized constants = %v, want ErrOutOfRange", err)
	}
	if err := r.setArgument(0, argument{isTable: true}); err == nil {
		t.Error("expected error binding a table to an inline slot")
	}
	if err := r.setArgument(1, argument{isTable: true}); err != nil {
		t.Errorf("table: %v", err)
	}
	if err := r.setArgument(2, argument{isTable: true}); !errors.Is(err, gpu.ErrOutOfRange) {
		t.Errorf("missing slot = %v, want ErrOutOfRange", err)
	}
	if len(r.graphics.args) != 2 {
		t.Errorf("bound arguments = %d, want 2", len(r.graphics.args))
	}
}

func TestShaderTableBufferRequiresSharedBuffer(t *testing.T) {
	table := &buffer{native: nil}
	if _, err := shaderTableBuffer(gpu.DispatchRaysDescriptor{RayGeneration: gpu.ShaderTableRange{Buffer: table}}); err == nil {
		t.Fatal("expected error for a buffer without a native allocation")
	}
}

func TestDescriptorHeapHandles(t *testing.T) {
	d := &device{mu: &sync.Mutex{}, nextHandle: handleStride}
	h, err := d.CreateDescriptorHeap(gpu.DescriptorHeapDescriptor{Label: "views", Capacity: 4})
	if err != nil {
		t.Fatalf("CreateDescriptorHeap: %v", err)
	}
	heap := h.(*descriptorHeap)
	view := gpu.ViewDescriptor{Kind: gpu.DescriptorKindCBV, Offset: 256, Size: 64}
	cpu := h.CPUStart().Offset(2, h.Increment())
	if err := h.Write(cpu, view); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := heap.lookup(h.GPUStart().Offset(2, h.Increment()))
	if err != nil || got != view {
		t.Fatalf("lookup = %+v, %v", got, err)
	}
	if err := h.Write(h.CPUStart().Offset(4, h.Increment()), view); !errors.Is(err, gpu.ErrOutOfRange) {
		t.Errorf("write past capacity = %v, want ErrOutOfRange", err)
	}
	if _, err := heap.lookup(h.CPUStart()); !errors.Is(err, gpu.ErrOutOfRange) {
		t.Errorf("lookup with a CPU handle = %v, want ErrOutOfRange", err)
	}

	other, _ := d.CreateDescriptorHeap(gpu.DescriptorHeapDescriptor{Label: "other", Capacity: 4})
	if other.CPUStart() == h.CPUStart() || other.GPUStart() == h.GPUStart() {
		t.Error("heaps share a handle range")
	}
}

func TestFenceWaitWithoutSubmission(t *testing.T) {
	d := &device{}
	f, _ := d.CreateFence(3)
	ok, err := d.Wait(f, 3, time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Wait on completed value = %v, %v", ok, err)
	}
	ok, err = d.Wait(f, 4, time.Millisecond)
	if err != nil || ok {
		t.Fatalf("Wait on unsubmitted value = %v, %v, want timeout", ok, err)
	}
}

func TestAllocAddressAlignment(t *testing.T) {
	d := &device{mu: &sync.Mutex{}, nextAddress: 0x10000}
	a := d.allocAddress(10)
	b := d.allocAddress(300)
	c := d.allocAddress(1)
	if a%256 != 0 || b%256 != 0 || c%256 != 0 {
		t.Fatalf("addresses %#x %#x %#x are not 256-byte aligned", a, b, c)
	}
	if b-a != 256 || c-b != 512 {
		t.Errorf("address spacing = %d, %d", b-a, c-b)
	}
}
