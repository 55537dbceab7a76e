// Package upload provides the one-shot submit-and-wait primitive every GPU-facing component
// uses, plus staging uploads of buffers, meshes and textures built on it.
package upload

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// DefaultTimeout is how long ExecuteAndWait blocks on the fence before giving up.
const DefaultTimeout = 20 * time.Second

// ErrTimeout is returned when the GPU does not reach the submitted fence value in time. The
// submitted work may still complete; the caller decides whether to retry, wait or abort.
var ErrTimeout = errors.New("upload: timed out waiting for the GPU")

// Controller serializes CPU and GPU: every submission is followed by a fence wait, so work
// recorded after a call returns never races the GPU.
type Controller interface {
	// ExecuteAndWait submits closed command lists, signals the controller fence with the next
	// value and blocks until the GPU reaches it.
	//
	// Parameters:
	//   - lists: closed command lists, executed in order
	//
	// Returns:
	//   - error: the submit or wait error, or ErrTimeout
	ExecuteAndWait(lists ...gpu.CommandList) error

	// Record resets the controller's own command list, lets fn record into it, closes it and
	// runs ExecuteAndWait. Nothing is submitted when fn fails.
	//
	// Parameters:
	//   - fn: records commands
	//
	// Returns:
	//   - error: the error of fn, Close or ExecuteAndWait
	Record(fn func(cl gpu.CommandList) error) error

	// UploadBuffer creates a device buffer holding data. Upload-heap buffers are written
	// directly; any other usage goes through a staging copy.
	//
	// Parameters:
	//   - label: debug label
	//   - data: initial contents, must not be empty
	//   - usage: usage flags of the device buffer
	//
	// Returns:
	//   - gpu.Buffer: the buffer
	//   - error: creation, write or submission error; nothing is leaked on failure
	UploadBuffer(label string, data []byte, usage gpu.BufferUsage) (gpu.Buffer, error)

	// UploadMesh uploads a mesh's vertex and index buffers and attaches them to the mesh. A
	// mesh that already has GPU buffers is returned as is.
	//
	// Parameters:
	//   - m: the mesh
	//
	// Returns:
	//   - *model.GPUMesh: the device buffers
	//   - error: upload error
	UploadMesh(m model.Mesh) (*model.GPUMesh, error)

	// UploadTexture uploads a texture's pixels and attaches the device texture to it. A
	// texture that is already uploaded is returned as is.
	//
	// Parameters:
	//   - t: the texture
	//
	// Returns:
	//   - gpu.Texture: the device texture
	//   - error: upload error
	UploadTexture(t *model.Texture) (gpu.Texture, error)

	// Device returns the device the controller submits to.
	Device() gpu.Device

	// FenceValue returns the last value submitted to the controller fence.
	FenceValue() uint64

	// Release frees the fence.
	Release()
}

type controller struct {
	mu      sync.Mutex
	device  gpu.Device
	fence   gpu.Fence
	list    gpu.CommandList
	value   uint64
	timeout time.Duration
}

var _ Controller = &controller{}

// NewController creates a Controller with its own fence and command list.
//
// Parameters:
//   - device: the device to submit to
//   - options: variadic list of ControllerBuilderOption functions
//
// Returns:
//   - Controller: the controller
//   - error: error if the fence or command list cannot be created
func NewController(device gpu.Device, options ...ControllerBuilderOption) (Controller, error) {
	c := &controller{device: device, timeout: DefaultTimeout}
	for _, opt := range options {
		opt(c)
	}

	fence, err := device.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("upload: create fence: %w", err)
	}
	list, err := device.CreateCommandList()
	if err != nil {
		fence.Release()
		return nil, fmt.Errorf("upload: create command list: %w", err)
	}
	c.fence = fence
	c.list = list
	return c, nil
}

func (c *controller) ExecuteAndWait(lists ...gpu.CommandList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executeAndWait(lists...)
}

func (c *controller) executeAndWait(lists ...gpu.CommandList) error {
	value := c.value + 1
	if err := c.device.Queue().Submit(lists, c.fence, value); err != nil {
		return fmt.Errorf("upload: submit: %w", err)
	}
	c.value = value

	done, err := c.device.Wait(c.fence, value, c.timeout)
	if err != nil {
		return fmt.Errorf("upload: wait for fence value %d: %w", value, err)
	}
	if !done {
		logger.Logger().Warn("fence wait timed out", "value", value, "completed", c.fence.CompletedValue(), "timeout", c.timeout)
		return fmt.Errorf("%w: fence value %d after %s", ErrTimeout, value, c.timeout)
	}
	return nil
}

func (c *controller) Record(fn func(cl gpu.CommandList) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Reset()
	if err := fn(c.list); err != nil {
		_ = c.list.Close()
		return err
	}
	if err := c.list.Close(); err != nil {
		return fmt.Errorf("upload: close command list: %w", err)
	}
	return c.executeAndWait(c.list)
}

func (c *controller) UploadBuffer(label string, data []byte, usage gpu.BufferUsage) (gpu.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("upload: buffer %q has no data", label)
	}
	size := uint64(len(data))

	if usage.Has(gpu.BufferUsageUpload) {
		buf, err := c.device.CreateBuffer(gpu.BufferDescriptor{Label: label, Size: size, Usage: usage})
		if err != nil {
			return nil, fmt.Errorf("upload: create %q: %w", label, err)
		}
		if err := buf.Write(0, data); err != nil {
			buf.Release()
			return nil, fmt.Errorf("upload: write %q: %w", label, err)
		}
		return buf, nil
	}

	staging, err := c.staging(label, data)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	buf, err := c.device.CreateBuffer(gpu.BufferDescriptor{Label: label, Size: size, Usage: usage | gpu.BufferUsageCopyDst})
	if err != nil {
		return nil, fmt.Errorf("upload: create %q: %w", label, err)
	}
	err = c.Record(func(cl gpu.CommandList) error {
		cl.CopyBuffer(buf, 0, staging, 0, size)
		return nil
	})
	if err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (c *controller) staging(label string, data []byte) (gpu.Buffer, error) {
	staging, err := c.device.CreateBuffer(gpu.BufferDescriptor{
		Label: label + " staging",
		Size:  uint64(len(data)),
		Usage: gpu.BufferUsageUpload | gpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("upload: create staging for %q: %w", label, err)
	}
	if err := staging.Write(0, data); err != nil {
		staging.Release()
		return nil, fmt.Errorf("upload: fill staging for %q: %w", label, err)
	}
	return staging, nil
}

func (c *controller) UploadMesh(m model.Mesh) (*model.GPUMesh, error) {
	if g := m.GPU(); g != nil {
		return g, nil
	}
	usage := gpu.BufferUsageShaderResource | gpu.BufferUsageAccelerationStructureInput

	vb, err := c.UploadBuffer(m.Key()+" vertices", m.VertexData(), gpu.BufferUsageVertex|usage)
	if err != nil {
		return nil, err
	}
	ib, err := c.UploadBuffer(m.Key()+" indices", m.IndexData(), gpu.BufferUsageIndex|usage)
	if err != nil {
		vb.Release()
		return nil, err
	}

	g := &model.GPUMesh{VertexBuffer: vb, IndexBuffer: ib}
	m.SetGPU(g)
	logger.Logger().Debug("mesh uploaded", "key", m.Key(), "vertices", len(m.Vertices()), "triangles", len(m.Indices())/3)
	return g, nil
}

func (c *controller) UploadTexture(t *model.Texture) (gpu.Texture, error) {
	if g := t.GPU(); g != nil {
		return g, nil
	}

	staging, err := c.staging(t.Key, t.Pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	tex, err := c.device.CreateTexture(gpu.TextureDescriptor{
		Label:  t.Key,
		Width:  t.Width,
		Height: t.Height,
		Format: t.Format.GPUFormat(),
		Usage:  gpu.TextureUsageShaderResource | gpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("upload: create texture %q: %w", t.Key, err)
	}
	err = c.Record(func(cl gpu.CommandList) error {
		cl.ResourceBarrier(gpu.Transition(tex, gpu.ResourceStateCommon, gpu.ResourceStateCopyDest))
		cl.CopyBufferToTexture(tex, staging, t.Width*t.BytesPerPixel())
		cl.ResourceBarrier(gpu.Transition(tex, gpu.ResourceStateCopyDest, gpu.ResourceStatePixelShaderResource))
		return nil
	})
	if err != nil {
		tex.Release()
		return nil, err
	}

	t.SetGPU(tex)
	logger.Logger().Debug("texture uploaded", "key", t.Key, "width", t.Width, "height", t.Height)
	return tex, nil
}

func (c *controller) Device() gpu.Device {
	return c.device
}

func (c *controller) FenceValue() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *controller) Release() {
	c.fence.Release()
}
