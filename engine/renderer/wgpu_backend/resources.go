package wgpu_backend

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// descriptorIncrement is the byte distance between heap slots. Handles never reach the
// GPU, so the value only has to keep slots apart.
const descriptorIncrement = 32

// buffer keeps a CPU shadow of its contents. Every write reaching the buffer goes through
// the queue from the CPU, so the shadow is what acceleration-structure builds read.
type buffer struct {
	dev     *device
	label   string
	size    uint64
	usage   gpu.BufferUsage
	address uint64
	native  *wgpu.Buffer
	mu      *sync.Mutex
	shadow  []byte
}

var _ gpu.Buffer = &buffer{}

func (d *device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("wgpu_backend: buffer %q has zero size", desc.Label)
	}
	// queue writes and copies work in 4-byte units
	size := common.AlignUp(desc.Size, 4)
	native, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: bufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create buffer %q: %w", desc.Label, err)
	}
	return &buffer{
		dev:     d,
		label:   desc.Label,
		size:    desc.Size,
		usage:   desc.Usage,
		address: d.allocAddress(desc.Size),
		native:  native,
		mu:      &sync.Mutex{},
		shadow:  make([]byte, size),
	}, nil
}

func (b *buffer) Label() string {
	return b.label
}

func (b *buffer) Size() uint64 {
	return b.size
}

func (b *buffer) Usage() gpu.BufferUsage {
	return b.usage
}

func (b *buffer) Address() uint64 {
	return b.address
}

func (b *buffer) Write(offset uint64, data []byte) error {
	if !b.usage.Has(gpu.BufferUsageUpload) {
		return gpu.ErrNotUploadBuffer
	}
	return b.store(offset, data)
}

// store updates the shadow and pushes the touched 4-byte aligned range to the GPU.
func (b *buffer) store(offset uint64, data []byte) error {
	end := offset + uint64(len(data))
	if end > b.size || end < offset {
		return fmt.Errorf("%w: write [%d, %d) into %q of %d bytes", gpu.ErrOutOfRange, offset, end, b.label, b.size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.shadow[offset:], data)
	start := offset &^ 3
	stop := common.AlignUp(end, 4)
	b.dev.queue.WriteBuffer(b.native, start, b.shadow[start:stop])
	return nil
}

// snapshot returns a copy of the shadow range [offset, offset+size).
func (b *buffer) snapshot(offset, size uint64) ([]byte, error) {
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: read [%d, %d) from %q of %d bytes", gpu.ErrOutOfRange, offset, offset+size, b.label, b.size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, size)
	copy(out, b.shadow[offset:])
	return out, nil
}

func (b *buffer) Release() {
	if b.native != nil {
		b.native.Release()
		b.native = nil
	}
}

type texture struct {
	label  string
	width  uint32
	height uint32
	format gpu.TextureFormat
	usage  gpu.TextureUsage
	native *wgpu.Texture
	view   *wgpu.TextureView
}

var _ gpu.Texture = &texture{}

func (d *device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	return d.newTexture(desc)
}

func (d *device) newTexture(desc gpu.TextureDescriptor) (*texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("wgpu_backend: texture %q has zero size", desc.Label)
	}
	format, err := toTextureFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	native, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu_backend: create texture %q: %w", desc.Label, err)
	}
	view, err := native.CreateView(nil)
	if err != nil {
		native.Release()
		return nil, fmt.Errorf("wgpu_backend: create view of %q: %w", desc.Label, err)
	}
	return &texture{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
		native: native,
		view:   view,
	}, nil
}

func (t *texture) Label() string {
	return t.label
}

func (t *texture) Width() uint32 {
	return t.width
}

func (t *texture) Height() uint32 {
	return t.height
}

func (t *texture) Format() gpu.TextureFormat {
	return t.format
}

func (t *texture) Usage() gpu.TextureUsage {
	return t.usage
}

func (t *texture) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.native != nil {
		t.native.Release()
		t.native = nil
	}
}

// descriptorHeap stores views on the CPU. Bind groups are assembled from it when a draw
// or dispatch is replayed.
type descriptorHeap struct {
	mu       *sync.Mutex
	capacity uint32
	cpuStart uint64
	gpuStart uint64
	slots    []gpu.ViewDescriptor
}

var _ gpu.DescriptorHeap = &descriptorHeap{}

func (d *device) CreateDescriptorHeap(desc gpu.DescriptorHeapDescriptor) (gpu.DescriptorHeap, error) {
	if desc.Capacity == 0 {
		return nil, fmt.Errorf("wgpu_backend: descriptor heap %q has zero capacity", desc.Label)
	}
	d.mu.Lock()
	base := d.nextHandle
	d.nextHandle += 2 * handleStride
	d.mu.Unlock()
	return &descriptorHeap{
		mu:       &sync.Mutex{},
		capacity: desc.Capacity,
		cpuStart: base,
		gpuStart: base + handleStride,
		slots:    make([]gpu.ViewDescriptor, desc.Capacity),
	}, nil
}

func (h *descriptorHeap) Capacity() uint32 {
	return h.capacity
}

func (h *descriptorHeap) Increment() uint32 {
	return descriptorIncrement
}

func (h *descriptorHeap) CPUStart() gpu.DescriptorHandle {
	return gpu.DescriptorHandle{Ptr: h.cpuStart}
}

func (h *descriptorHeap) GPUStart() gpu.DescriptorHandle {
	return gpu.DescriptorHandle{Ptr: h.gpuStart}
}

// index converts a handle relative to start into a slot index.
func (h *descriptorHeap) index(start uint64, handle gpu.DescriptorHandle) (uint32, error) {
	if handle.Ptr < start {
		return 0, fmt.Errorf("%w: handle %#x below heap start %#x", gpu.ErrOutOfRange, handle.Ptr, start)
	}
	delta := handle.Ptr - start
	if delta%descriptorIncrement != 0 || delta/descriptorIncrement >= uint64(h.capacity) {
		return 0, fmt.Errorf("%w: handle %#x outside heap of %d slots", gpu.ErrOutOfRange, handle.Ptr, h.capacity)
	}
	return uint32(delta / descriptorIncrement), nil
}

func (h *descriptorHeap) Write(cpu gpu.DescriptorHandle, view gpu.ViewDescriptor) error {
	i, err := h.index(h.cpuStart, cpu)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.slots[i] = view
	h.mu.Unlock()
	return nil
}

// lookup returns the view a GPU handle points at.
func (h *descriptorHeap) lookup(handle gpu.DescriptorHandle) (gpu.ViewDescriptor, error) {
	i, err := h.index(h.gpuStart, handle)
	if err != nil {
		return gpu.ViewDescriptor{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slots[i], nil
}

func (h *descriptorHeap) Release() {
	h.mu.Lock()
	h.slots = nil
	h.capacity = 0
	h.mu.Unlock()
}

// fenceImpl tracks the highest value submitted and the highest value known complete.
type fenceImpl struct {
	mu        *sync.Mutex
	submitted uint64
	completed uint64
}

var _ gpu.Fence = &fenceImpl{}

func (d *device) CreateFence(initial uint64) (gpu.Fence, error) {
	return &fenceImpl{mu: &sync.Mutex{}, submitted: initial, completed: initial}, nil
}

func (f *fenceImpl) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *fenceImpl) submittedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func (f *fenceImpl) signal(value uint64) {
	f.mu.Lock()
	f.submitted = max(f.submitted, value)
	f.mu.Unlock()
}

func (f *fenceImpl) complete(value uint64) {
	f.mu.Lock()
	f.completed = max(f.completed, value)
	f.mu.Unlock()
}

func (f *fenceImpl) Release() {}
