package gputest

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// HeapIncrement is the descriptor size reported by fake heaps.
const HeapIncrement = 32

// Buffer is an in-memory gpu.Buffer. Every buffer keeps its contents so tests can read
// what was uploaded or copied into it.
type Buffer struct {
	desc     gpu.BufferDescriptor
	address  uint64
	data     []byte
	Writes   int
	Released bool

	// FailWrites, when set, is returned by every Write.
	FailWrites error
}

var _ gpu.Buffer = &Buffer{}

func (b *Buffer) Label() string          { return b.desc.Label }
func (b *Buffer) Size() uint64           { return b.desc.Size }
func (b *Buffer) Usage() gpu.BufferUsage { return b.desc.Usage }
func (b *Buffer) Address() uint64        { return b.address }
func (b *Buffer) Release()               { b.Released = true }

// Bytes returns the buffer contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.FailWrites != nil {
		return b.FailWrites
	}
	if !b.desc.Usage.Has(gpu.BufferUsageUpload) {
		return fmt.Errorf("%w: %q", gpu.ErrNotUploadBuffer, b.desc.Label)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("%w: write of %d bytes at %d into %q (%d bytes)", gpu.ErrOutOfRange, len(data), offset, b.desc.Label, b.desc.Size)
	}
	copy(b.data[offset:], data)
	b.Writes++
	return nil
}

// Texture is an in-memory gpu.Texture.
type Texture struct {
	desc     gpu.TextureDescriptor
	Data     []byte
	Uploads  int
	Released bool
}

var _ gpu.Texture = &Texture{}

func (t *Texture) Label() string             { return t.desc.Label }
func (t *Texture) Width() uint32             { return t.desc.Width }
func (t *Texture) Height() uint32            { return t.desc.Height }
func (t *Texture) Format() gpu.TextureFormat { return t.desc.Format }
func (t *Texture) Usage() gpu.TextureUsage   { return t.desc.Usage }
func (t *Texture) Release()                  { t.Released = true }

// DescriptorHeap is an in-memory gpu.DescriptorHeap that counts writes per slot.
type DescriptorHeap struct {
	desc     gpu.DescriptorHeapDescriptor
	cpuStart uint64
	gpuStart uint64

	// Views holds the view most recently written to each slot.
	Views []gpu.ViewDescriptor

	// Written counts writes per slot.
	Written []int

	// Writes counts all writes.
	Writes int

	Released bool
}

var _ gpu.DescriptorHeap = &DescriptorHeap{}

func (h *DescriptorHeap) Capacity() uint32  { return h.desc.Capacity }
func (h *DescriptorHeap) Increment() uint32 { return HeapIncrement }
func (h *DescriptorHeap) CPUStart() gpu.DescriptorHandle {
	return gpu.DescriptorHandle{Ptr: h.cpuStart}
}
func (h *DescriptorHeap) GPUStart() gpu.DescriptorHandle {
	return gpu.DescriptorHandle{Ptr: h.gpuStart}
}
func (h *DescriptorHeap) Release() { h.Released = true }

func (h *DescriptorHeap) Write(cpu gpu.DescriptorHandle, view gpu.ViewDescriptor) error {
	if cpu.Ptr < h.cpuStart || (cpu.Ptr-h.cpuStart)%HeapIncrement != 0 {
		return fmt.Errorf("%w: handle %#x is not a slot of heap %q", gpu.ErrOutOfRange, cpu.Ptr, h.desc.Label)
	}
	idx := (cpu.Ptr - h.cpuStart) / HeapIncrement
	if idx >= uint64(h.desc.Capacity) {
		return fmt.Errorf("%w: slot %d beyond heap capacity %d", gpu.ErrOutOfRange, idx, h.desc.Capacity)
	}
	h.Views[idx] = view
	h.Written[idx]++
	h.Writes++
	return nil
}

// SlotOfGPU converts a GPU handle back to a slot index.
func (h *DescriptorHeap) SlotOfGPU(handle gpu.DescriptorHandle) uint32 {
	return uint32((handle.Ptr - h.gpuStart) / HeapIncrement)
}

// BindingLayout is an in-memory gpu.BindingLayout.
type BindingLayout struct {
	desc     gpu.BindingLayoutDescriptor
	Released bool
}

var _ gpu.BindingLayout = &BindingLayout{}

func (l *BindingLayout) Descriptor() gpu.BindingLayoutDescriptor { return l.desc }
func (l *BindingLayout) Release()                                { l.Released = true }

// RenderPipeline is an in-memory gpu.RenderPipeline.
type RenderPipeline struct {
	Desc     gpu.RenderPipelineDescriptor
	Released bool
}

var _ gpu.RenderPipeline = &RenderPipeline{}

func (p *RenderPipeline) Label() string { return p.Desc.Label }
func (p *RenderPipeline) Release()      { p.Released = true }

// ComputePipeline is an in-memory gpu.ComputePipeline.
type ComputePipeline struct {
	Desc     gpu.ComputePipelineDescriptor
	Released bool
}

var _ gpu.ComputePipeline = &ComputePipeline{}

func (p *ComputePipeline) Label() string { return p.Desc.Label }
func (p *ComputePipeline) Release()      { p.Released = true }

// RayTracingPipeline is an in-memory gpu.RayTracingPipeline with deterministic identifiers.
type RayTracingPipeline struct {
	Desc     gpu.RayTracingPipelineDescriptor
	ids      map[string][]byte
	Released bool
}

var _ gpu.RayTracingPipeline = &RayTracingPipeline{}

func (p *RayTracingPipeline) Label() string { return p.Desc.Label }
func (p *RayTracingPipeline) Release()      { p.Released = true }

func (p *RayTracingPipeline) ShaderIdentifier(export string) ([]byte, bool) {
	id, ok := p.ids[export]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), id...), true
}

// AccelerationStructure is an in-memory gpu.AccelerationStructure that records builds.
type AccelerationStructure struct {
	desc     gpu.AccelerationStructureDescriptor
	address  uint64
	Builds   int
	Updates  int
	Last     gpu.BuildDescriptor
	Released bool
}

var _ gpu.AccelerationStructure = &AccelerationStructure{}

func (a *AccelerationStructure) Level() gpu.AccelerationStructureLevel { return a.desc.Level }
func (a *AccelerationStructure) Address() uint64                       { return a.address }
func (a *AccelerationStructure) Size() uint64                          { return a.desc.Size }
func (a *AccelerationStructure) Release()                              { a.Released = true }

func (a *AccelerationStructure) record(desc gpu.BuildDescriptor) {
	if desc.Inputs.Flags.Has(gpu.BuildPerformUpdate) {
		a.Updates++
	} else {
		a.Builds++
	}
	a.Last = desc
}

// Fence is an in-memory gpu.Fence signalled by Queue.Submit.
type Fence struct {
	mu       sync.Mutex
	value    uint64
	Released bool
}

var _ gpu.Fence = &Fence{}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *Fence) signal(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v > f.value {
		f.value = v
	}
}

func (f *Fence) Release() { f.Released = true }

// Swapchain is an in-memory gpu.Swapchain.
type Swapchain struct {
	format   gpu.TextureFormat
	Width    uint32
	Height   uint32
	Acquired int
	Presents int
	Discards int
	acquired bool
}

var _ gpu.Swapchain = &Swapchain{}

func (s *Swapchain) Format() gpu.TextureFormat { return s.format }

func (s *Swapchain) AcquireNext() error {
	if s.acquired {
		return fmt.Errorf("gputest: previous swapchain image not yet presented")
	}
	s.acquired = true
	s.Acquired++
	return nil
}

func (s *Swapchain) Present() error {
	if !s.acquired {
		return fmt.Errorf("gputest: present without an acquired image")
	}
	s.acquired = false
	s.Presents++
	return nil
}

func (s *Swapchain) Discard() {
	if s.acquired {
		s.acquired = false
		s.Discards++
	}
}

// Outstanding reports whether an image is acquired and not yet presented or discarded.
func (s *Swapchain) Outstanding() bool {
	return s.acquired
}

func (s *Swapchain) Resize(width, height uint32) error {
	s.acquired = false
	s.Width, s.Height = width, height
	return nil
}
