// Package wgpu_backend implements the gpu interfaces on WebGPU.
//
// WebGPU has no descriptor heaps, acceleration structures or ray dispatch, so the backend
// emulates them: heaps are CPU-side arrays of views resolved into bind groups at draw
// time, acceleration structures are built on the CPU into a packed storage buffer, and ray
// dispatches run the compute entry point of a lowered ray-tracing library. Command lists
// record closures that are replayed into WebGPU command encoders on submission.
package wgpu_backend

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentMode controls how frames are delivered to the display.
type PresentMode int

const (
	// PresentModeUncapped presents immediately and may tear.
	PresentModeUncapped PresentMode = iota

	// PresentModeVSync waits for the vertical blank.
	PresentModeVSync
)

func (m PresentMode) native() wgpu.PresentMode {
	if m == PresentModeVSync {
		return wgpu.PresentModeFifo
	}
	return wgpu.PresentModeImmediate
}

// ErrNoSurfaceFormat is returned when the surface reports no format pipelines can target.
var ErrNoSurfaceFormat = errors.New("wgpu_backend: no supported surface format")

// handleStride separates the handle ranges of consecutive descriptor heaps.
const handleStride = 1 << 32

type device struct {
	mu       *sync.Mutex
	submitMu *sync.Mutex
	label    string

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	presentMode          PresentMode
	forceFallbackAdapter bool
	width, height        uint32
	workers              int

	pool      worker.DynamicWorkerPool
	swapchain *swapchain
	samplers  map[gpu.StaticSampler]*wgpu.Sampler

	nextAddress uint64
	nextHandle  uint64
	structures  map[uint64]*accelerationStructure
	tag         uint32

	nullTexture  *texture
	nullBuffer   *wgpu.Buffer
	nullStorages map[gpu.TextureFormat]*texture
}

var _ gpu.Device = &device{}

// NewDevice creates a WebGPU device. A nil surface descriptor creates a headless device
// whose Swapchain is nil.
//
// Parameters:
//   - surfaceDescriptor: the window surface to present to, may be nil
//   - options: variadic list of DeviceBuilderOption functions
//
// Returns:
//   - gpu.Device: the device
//   - error: error if no adapter or device could be obtained or the surface cannot be configured
func NewDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, options ...DeviceBuilderOption) (gpu.Device, error) {
	runtime.LockOSThread()
	d := &device{
		mu:           &sync.Mutex{},
		submitMu:     &sync.Mutex{},
		label:        "oxy-rt",
		presentMode:  PresentModeUncapped,
		width:        800,
		height:       600,
		workers:      runtime.NumCPU(),
		samplers:     make(map[gpu.StaticSampler]*wgpu.Sampler),
		nextAddress:  0x10000,
		nextHandle:   handleStride,
		structures:   make(map[uint64]*accelerationStructure),
		nullStorages: make(map[gpu.TextureFormat]*texture),
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	if surfaceDescriptor != nil {
		d.surface = d.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("wgpu_backend: request adapter: %w", err)
	}
	d.adapter = a

	// material tables, frame slots and the ray tracing system group need four groups
	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.label + " device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("wgpu_backend: request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	if err := d.createNullResources(); err != nil {
		d.Release()
		return nil, err
	}

	if d.surface != nil {
		sc, err := newSwapchain(d)
		if err != nil {
			d.Release()
			return nil, err
		}
		d.swapchain = sc
	}

	d.pool = worker.NewDynamicWorkerPool(d.workers, 256, time.Second)
	logger.Logger().Info("wgpu device created", "label", d.label, "headless", d.surface == nil, "workers", d.workers)
	return d, nil
}

// createNullResources creates the resources bound in place of null descriptors.
func (d *device) createNullResources() error {
	tex, err := d.newTexture(gpu.TextureDescriptor{
		Label:  d.label + " null texture",
		Width:  1,
		Height: 1,
		Format: gpu.TextureFormatRGBA8Unorm,
		Usage:  gpu.TextureUsageShaderResource | gpu.TextureUsageCopyDst,
	})
	if err != nil {
		return err
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: tex.native, Aspect: wgpu.TextureAspectAll},
		[]byte{255, 255, 255, 255},
		&wgpu.TextureDataLayout{BytesPerRow: 4, RowsPerImage: 1},
		&wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
	)
	d.nullTexture = tex

	d.nullBuffer, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: d.label + " null buffer",
		Size:  256,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("wgpu_backend: create null buffer: %w", err)
	}
	return nil
}

// nullStorage returns a 1x1 writable texture of the given format, bound in place of a null
// unordered-access descriptor.
func (d *device) nullStorage(format gpu.TextureFormat) (*texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tex, ok := d.nullStorages[format]; ok {
		return tex, nil
	}
	tex, err := d.newTexture(gpu.TextureDescriptor{
		Label:  d.label + " null storage " + format.String(),
		Width:  1,
		Height: 1,
		Format: format,
		Usage:  gpu.TextureUsageUnorderedAccess,
	})
	if err != nil {
		return nil, err
	}
	d.nullStorages[format] = tex
	return tex, nil
}

// allocAddress hands out a fake GPU virtual address range.
func (d *device) allocAddress(size uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.nextAddress
	d.nextAddress += max(size+255, 256) &^ 255
	return addr
}

func (d *device) Wait(fence gpu.Fence, value uint64, timeout time.Duration) (bool, error) {
	f, ok := fence.(*fenceImpl)
	if !ok {
		return false, fmt.Errorf("wgpu_backend: foreign fence %T", fence)
	}
	if f.CompletedValue() >= value {
		return true, nil
	}
	target := f.submittedValue()
	if target < value {
		// nothing that signals value has been submitted
		time.Sleep(timeout)
		return f.CompletedValue() >= value, nil
	}

	done := make(chan struct{})
	go func() {
		d.device.Poll(true, nil)
		close(done)
	}()
	select {
	case <-done:
		f.complete(target)
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (d *device) Queue() gpu.Queue {
	return &queue{dev: d}
}

func (d *device) Limits() gpu.Limits {
	return gpu.DefaultLimits()
}

func (d *device) Swapchain() gpu.Swapchain {
	if d.swapchain == nil {
		return nil
	}
	return d.swapchain
}

func (d *device) Release() {
	if d.pool != nil {
		d.pool.Stop()
		d.pool = nil
	}
	if d.swapchain != nil {
		d.swapchain.release()
		d.swapchain = nil
	}
	for k, s := range d.samplers {
		s.Release()
		delete(d.samplers, k)
	}
	for k, tex := range d.nullStorages {
		tex.Release()
		delete(d.nullStorages, k)
	}
	if d.nullTexture != nil {
		d.nullTexture.Release()
		d.nullTexture = nil
	}
	if d.nullBuffer != nil {
		d.nullBuffer.Release()
		d.nullBuffer = nil
	}
	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.surface != nil {
		d.surface.Release()
		d.surface = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}
