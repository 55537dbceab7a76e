package wgpu_backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// ErrRecording is returned when a command list is submitted or closed in the wrong state.
var ErrRecording = errors.New("wgpu_backend: command list state")

// command is one recorded operation. Bottom-level builds are kept as data so consecutive
// builds can run in parallel; everything else is a closure over the replay state.
type command struct {
	build *gpu.BuildDescriptor
	run   func(r *replay) error
}

type commandList struct {
	mu       *sync.Mutex
	dev      *device
	commands []command
	closed   bool
	inPass   bool
	err      error
}

var _ gpu.CommandList = &commandList{}

func (d *device) CreateCommandList() (gpu.CommandList, error) {
	return &commandList{mu: &sync.Mutex{}, dev: d}, nil
}

func (c *commandList) record(run func(r *replay) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.fail(fmt.Errorf("%w: record into closed list", ErrRecording))
		return
	}
	c.commands = append(c.commands, command{run: run})
}

// fail keeps the first recording error; Close reports it.
func (c *commandList) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// recorded returns the commands of a closed list.
func (c *commandList) recorded() ([]command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return nil, fmt.Errorf("%w: list is still recording", ErrRecording)
	}
	return c.commands, nil
}

func (c *commandList) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = c.commands[:0]
	c.closed = false
	c.inPass = false
	c.err = nil
}

func (c *commandList) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inPass {
		c.fail(fmt.Errorf("%w: render pass left open", ErrRecording))
	}
	c.closed = true
	return c.err
}

// ResourceBarrier records nothing: WebGPU tracks resource usage itself.
func (c *commandList) ResourceBarrier(barriers ...gpu.Barrier) {}

func (c *commandList) SetDescriptorHeap(heap gpu.DescriptorHeap) {
	h, ok := heap.(*descriptorHeap)
	if !ok {
		c.mu.Lock()
		c.fail(fmt.Errorf("wgpu_backend: foreign descriptor heap %T", heap))
		c.mu.Unlock()
		return
	}
	c.record(func(r *replay) error {
		r.heap = h
		return nil
	})
}

func (c *commandList) SetGraphicsLayout(layout gpu.BindingLayout) {
	c.record(func(r *replay) error {
		l, err := nativeLayout(layout)
		if err != nil {
			return err
		}
		r.graphics.reset(l)
		r.active = &r.graphics
		return nil
	})
}

func (c *commandList) SetComputeLayout(layout gpu.BindingLayout) {
	c.record(func(r *replay) error {
		l, err := nativeLayout(layout)
		if err != nil {
			return err
		}
		r.compute.reset(l)
		r.active = &r.compute
		return nil
	})
}

func (c *commandList) SetInlineConstants(slot uint32, data []byte) {
	if len(data)%4 != 0 {
		c.mu.Lock()
		c.fail(fmt.Errorf("wgpu_backend: inline constants of %d bytes are not 32-bit aligned", len(data)))
		c.mu.Unlock()
		return
	}
	values := append([]byte(nil), data...)
	c.record(func(r *replay) error {
		return r.setArgument(slot, argument{constants: values})
	})
}

func (c *commandList) SetTable(slot uint32, handle gpu.DescriptorHandle) {
	c.record(func(r *replay) error {
		return r.setArgument(slot, argument{table: handle, isTable: true})
	})
}

func (c *commandList) BeginRenderPass(desc gpu.RenderPassDescriptor) {
	c.mu.Lock()
	if c.inPass {
		c.fail(fmt.Errorf("%w: nested render pass %q", ErrRecording, desc.Label))
	}
	c.inPass = true
	c.mu.Unlock()
	c.record(func(r *replay) error {
		return r.beginRenderPass(desc)
	})
}

func (c *commandList) EndRenderPass() {
	c.mu.Lock()
	if !c.inPass {
		c.fail(fmt.Errorf("%w: end without a render pass", ErrRecording))
	}
	c.inPass = false
	c.mu.Unlock()
	c.record(func(r *replay) error {
		r.endRenderPass()
		return nil
	})
}

func (c *commandList) SetRenderPipeline(pipeline gpu.RenderPipeline) {
	c.record(func(r *replay) error {
		p, ok := pipeline.(*renderPipeline)
		if !ok || p.native == nil {
			return fmt.Errorf("wgpu_backend: render pipeline %T is not usable", pipeline)
		}
		r.renderPipeline = p
		return nil
	})
}

func (c *commandList) SetVertexBuffer(buf gpu.Buffer) {
	c.record(func(r *replay) error {
		b, err := nativeBuffer(buf)
		if err != nil {
			return err
		}
		r.vertexBuffer = b
		return nil
	})
}

func (c *commandList) SetIndexBuffer(buf gpu.Buffer) {
	c.record(func(r *replay) error {
		b, err := nativeBuffer(buf)
		if err != nil {
			return err
		}
		r.indexBuffer = b
		return nil
	})
}

func (c *commandList) DrawIndexed(indexCount, instanceCount uint32) {
	c.record(func(r *replay) error {
		return r.draw(indexCount, instanceCount, true)
	})
}

func (c *commandList) Draw(vertexCount, instanceCount uint32) {
	c.record(func(r *replay) error {
		return r.draw(vertexCount, instanceCount, false)
	})
}

func (c *commandList) SetComputePipeline(pipeline gpu.ComputePipeline) {
	c.record(func(r *replay) error {
		p, ok := pipeline.(*computePipeline)
		if !ok || p.native == nil {
			return fmt.Errorf("wgpu_backend: compute pipeline %T is not usable", pipeline)
		}
		r.computePipeline = p
		return nil
	})
}

func (c *commandList) Dispatch(x, y, z uint32) {
	c.record(func(r *replay) error {
		return r.dispatch(x, y, z)
	})
}

func (c *commandList) SetRayTracingPipeline(pipeline gpu.RayTracingPipeline) {
	c.record(func(r *replay) error {
		p, ok := pipeline.(*rayTracingPipeline)
		if !ok || p.native == nil {
			return fmt.Errorf("wgpu_backend: ray tracing pipeline %T is not usable", pipeline)
		}
		r.rayTracingPipeline = p
		return nil
	})
}

func (c *commandList) DispatchRays(desc gpu.DispatchRaysDescriptor) {
	c.record(func(r *replay) error {
		return r.dispatchRays(desc)
	})
}

func (c *commandList) BuildAccelerationStructure(desc gpu.BuildDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.fail(fmt.Errorf("%w: record into closed list", ErrRecording))
		return
	}
	if desc.Inputs.Level == gpu.LevelBottom {
		c.commands = append(c.commands, command{build: &desc})
		return
	}
	c.commands = append(c.commands, command{run: func(r *replay) error {
		return r.cpu(func() error {
			return r.dev.buildTopLevel(desc, r.retire)
		})
	}})
}

func (c *commandList) CopyBuffer(dst gpu.Buffer, dstOffset uint64, src gpu.Buffer, srcOffset uint64, size uint64) {
	c.record(func(r *replay) error {
		d, err := nativeBuffer(dst)
		if err != nil {
			return err
		}
		s, err := nativeBuffer(src)
		if err != nil {
			return err
		}
		return r.cpu(func() error {
			data, err := s.snapshot(srcOffset, size)
			if err != nil {
				return err
			}
			return d.store(dstOffset, data)
		})
	})
}

func (c *commandList) CopyBufferToTexture(dst gpu.Texture, src gpu.Buffer, bytesPerRow uint32) {
	c.record(func(r *replay) error {
		t, ok := dst.(*texture)
		if !ok || t.native == nil {
			return fmt.Errorf("wgpu_backend: texture %T is not usable", dst)
		}
		s, err := nativeBuffer(src)
		if err != nil {
			return err
		}
		return r.cpu(func() error {
			return r.dev.uploadTexture(t, s, bytesPerRow)
		})
	})
}

func nativeBuffer(b gpu.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil || buf.native == nil {
		return nil, fmt.Errorf("wgpu_backend: buffer %T is not usable", b)
	}
	return buf, nil
}
