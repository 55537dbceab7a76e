// Package gputest provides an in-memory recording implementation of the gpu API for
// tests. Every created object, descriptor write, buffer write and submitted command is
// recorded so tests can assert on exactly what the renderer asked the GPU to do.
package gputest

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// Operation names used for failure injection and command recording.
const (
	OpCreateBuffer                = "CreateBuffer"
	OpCreateTexture               = "CreateTexture"
	OpCreateDescriptorHeap        = "CreateDescriptorHeap"
	OpCreateBindingLayout         = "CreateBindingLayout"
	OpCreateRenderPipeline        = "CreateRenderPipeline"
	OpCreateComputePipeline       = "CreateComputePipeline"
	OpCreateRayTracingPipeline    = "CreateRayTracingPipeline"
	OpCreateAccelerationStructure = "CreateAccelerationStructure"
	OpCreateCommandList           = "CreateCommandList"
	OpCreateFence                 = "CreateFence"
	OpSubmit                      = "Submit"

	OpResourceBarrier            = "ResourceBarrier"
	OpSetDescriptorHeap          = "SetDescriptorHeap"
	OpSetGraphicsLayout          = "SetGraphicsLayout"
	OpSetComputeLayout           = "SetComputeLayout"
	OpSetInlineConstants         = "SetInlineConstants"
	OpSetTable                   = "SetTable"
	OpBeginRenderPass            = "BeginRenderPass"
	OpEndRenderPass              = "EndRenderPass"
	OpSetRenderPipeline          = "SetRenderPipeline"
	OpSetVertexBuffer            = "SetVertexBuffer"
	OpSetIndexBuffer             = "SetIndexBuffer"
	OpDrawIndexed                = "DrawIndexed"
	OpDraw                       = "Draw"
	OpSetComputePipeline         = "SetComputePipeline"
	OpDispatch                   = "Dispatch"
	OpSetRayTracingPipeline      = "SetRayTracingPipeline"
	OpDispatchRays               = "DispatchRays"
	OpBuildAccelerationStructure = "BuildAccelerationStructure"
	OpCopyBuffer                 = "CopyBuffer"
	OpCopyBufferToTexture        = "CopyBufferToTexture"
)

type failure struct {
	nth int
	err error
}

// Device is a recording gpu.Device. The zero value is not usable; call NewDevice.
type Device struct {
	mu sync.Mutex

	limits      gpu.Limits
	nextAddress uint64
	calls       map[string]int
	failures    map[string]failure

	// StallFences keeps fences from advancing on Submit so that Wait times out.
	StallFences bool

	Buffers                []*Buffer
	Textures               []*Texture
	Heaps                  []*DescriptorHeap
	Layouts                []*BindingLayout
	RenderPipelines        []*RenderPipeline
	ComputePipelines       []*ComputePipeline
	RayTracingPipelines    []*RayTracingPipeline
	AccelerationStructures []*AccelerationStructure
	CommandLists           []*CommandList
	Fences                 []*Fence

	// Submitted holds every command of every submitted list in submission order.
	Submitted []Command

	queue     *Queue
	swapchain *Swapchain
}

var _ gpu.Device = &Device{}

// NewDevice creates a recording device with the default limits and a fake swapchain.
//
// Returns:
//   - *Device: the device
func NewDevice() *Device {
	d := &Device{
		limits:      gpu.DefaultLimits(),
		nextAddress: 0x10000,
		calls:       make(map[string]int),
		failures:    make(map[string]failure),
	}
	d.queue = &Queue{device: d}
	d.swapchain = &Swapchain{format: gpu.TextureFormatBGRA8Unorm, Width: 800, Height: 600}
	return d
}

// FailOn makes the nth call (1-based, counted from now) of op return err. An nth of 0
// fails every subsequent call.
//
// Parameters:
//   - op: one of the Op constants naming a Device or Queue method
//   - nth: which call fails
//   - err: the error to return
func (d *Device) FailOn(op string, nth int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if nth > 0 {
		nth += d.calls[op]
	}
	d.failures[op] = failure{nth: nth, err: err}
}

// Calls returns how many times op was invoked on the device or queue.
func (d *Device) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// SubmittedCount returns how many submitted commands have the given op.
func (d *Device) SubmittedCount(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Submitted {
		if c.Op == op {
			n++
		}
	}
	return n
}

// SubmittedOps returns the op names of every submitted command, in order.
func (d *Device) SubmittedOps() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]string, len(d.Submitted))
	for i, c := range d.Submitted {
		ops[i] = c.Op
	}
	return ops
}

// ClearSubmitted forgets previously submitted commands.
func (d *Device) ClearSubmitted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Submitted = nil
}

// Live returns the number of created objects that have not been released, excluding
// command lists.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	count := func(released bool) {
		if !released {
			n++
		}
	}
	for _, o := range d.Buffers {
		count(o.Released)
	}
	for _, o := range d.Textures {
		count(o.Released)
	}
	for _, o := range d.Heaps {
		count(o.Released)
	}
	for _, o := range d.Layouts {
		count(o.Released)
	}
	for _, o := range d.RenderPipelines {
		count(o.Released)
	}
	for _, o := range d.ComputePipelines {
		count(o.Released)
	}
	for _, o := range d.RayTracingPipelines {
		count(o.Released)
	}
	for _, o := range d.AccelerationStructures {
		count(o.Released)
	}
	for _, o := range d.Fences {
		count(o.Released)
	}
	return n
}

// DescriptorWrites returns the total number of descriptor writes across all heaps.
func (d *Device) DescriptorWrites() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, h := range d.Heaps {
		n += h.Writes
	}
	return n
}

// call counts an invocation of op and returns the injected failure, if any.
func (d *Device) call(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[op]++
	f, ok := d.failures[op]
	if !ok {
		return nil
	}
	if f.nth == 0 || f.nth == d.calls[op] {
		return f.err
	}
	return nil
}

func (d *Device) allocAddress(size uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.nextAddress
	d.nextAddress += (size + 255) &^ 255
	if size == 0 {
		d.nextAddress += 256
	}
	return addr
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if err := d.call(OpCreateBuffer); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("gputest: buffer %q has zero size", desc.Label)
	}
	b := &Buffer{desc: desc, address: d.allocAddress(desc.Size), data: make([]byte, desc.Size)}
	d.mu.Lock()
	d.Buffers = append(d.Buffers, b)
	d.mu.Unlock()
	return b, nil
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	if err := d.call(OpCreateTexture); err != nil {
		return nil, err
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("gputest: texture %q has zero extent", desc.Label)
	}
	t := &Texture{desc: desc}
	d.mu.Lock()
	d.Textures = append(d.Textures, t)
	d.mu.Unlock()
	return t, nil
}

func (d *Device) CreateDescriptorHeap(desc gpu.DescriptorHeapDescriptor) (gpu.DescriptorHeap, error) {
	if err := d.call(OpCreateDescriptorHeap); err != nil {
		return nil, err
	}
	if desc.Capacity == 0 {
		return nil, fmt.Errorf("gputest: heap %q has zero capacity", desc.Label)
	}
	h := &DescriptorHeap{
		desc:     desc,
		cpuStart: d.allocAddress(uint64(desc.Capacity) * HeapIncrement),
		gpuStart: d.allocAddress(uint64(desc.Capacity) * HeapIncrement),
		Views:    make([]gpu.ViewDescriptor, desc.Capacity),
		Written:  make([]int, desc.Capacity),
	}
	d.mu.Lock()
	d.Heaps = append(d.Heaps, h)
	d.mu.Unlock()
	return h, nil
}

func (d *Device) CreateBindingLayout(blob []byte) (gpu.BindingLayout, error) {
	if err := d.call(OpCreateBindingLayout); err != nil {
		return nil, err
	}
	desc, err := gpu.DeserializeBindingLayout(blob)
	if err != nil {
		return nil, err
	}
	l := &BindingLayout{desc: desc}
	d.mu.Lock()
	d.Layouts = append(d.Layouts, l)
	d.mu.Unlock()
	return l, nil
}

func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	if err := d.call(OpCreateRenderPipeline); err != nil {
		return nil, err
	}
	if desc.Layout == nil {
		return nil, fmt.Errorf("gputest: render pipeline %q has no layout", desc.Label)
	}
	p := &RenderPipeline{Desc: desc}
	d.mu.Lock()
	d.RenderPipelines = append(d.RenderPipelines, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	if err := d.call(OpCreateComputePipeline); err != nil {
		return nil, err
	}
	if desc.Layout == nil {
		return nil, fmt.Errorf("gputest: compute pipeline %q has no layout", desc.Label)
	}
	p := &ComputePipeline{Desc: desc}
	d.mu.Lock()
	d.ComputePipelines = append(d.ComputePipelines, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Device) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDescriptor) (gpu.RayTracingPipeline, error) {
	if err := d.call(OpCreateRayTracingPipeline); err != nil {
		return nil, err
	}
	if desc.Layout == nil {
		return nil, fmt.Errorf("gputest: ray tracing pipeline %q has no layout", desc.Label)
	}
	if desc.RayGeneration == "" {
		return nil, fmt.Errorf("gputest: ray tracing pipeline %q has no ray generation export", desc.Label)
	}
	exports := []string{desc.RayGeneration}
	exports = append(exports, desc.Miss...)
	for _, hg := range desc.HitGroups {
		exports = append(exports, hg.Name)
	}
	ids := make(map[string][]byte, len(exports))
	for _, e := range exports {
		ids[e] = Identifier(desc.Label, e, d.limits.ShaderIdentifierSize)
	}
	p := &RayTracingPipeline{Desc: desc, ids: ids}
	d.mu.Lock()
	d.RayTracingPipelines = append(d.RayTracingPipelines, p)
	d.mu.Unlock()
	return p, nil
}

// Identifier returns the deterministic shader identifier the fake assigns to an export.
func Identifier(pipeline, export string, size uint32) []byte {
	h := fnv.New64a()
	_, _ = h.Write([]byte(pipeline + "/" + export))
	seed := h.Sum64()
	id := make([]byte, size)
	for i := range id {
		id[i] = byte(seed >> (uint(i%8) * 8))
		if i%8 == 7 {
			seed = seed*6364136223846793005 + 1442695040888963407
		}
	}
	return id
}

func (d *Device) AccelerationStructurePrebuildInfo(inputs gpu.BuildInputs) gpu.PrebuildInfo {
	var elements uint64
	if inputs.Level == gpu.LevelTop {
		elements = uint64(inputs.InstanceCount)
	} else {
		for _, g := range inputs.Geometries {
			elements += uint64(g.IndexCount / 3)
		}
	}
	return gpu.PrebuildInfo{
		ResultSize:        256 + elements*64,
		ScratchSize:       256 + elements*32,
		UpdateScratchSize: 256 + elements*16,
	}
}

func (d *Device) CreateAccelerationStructure(desc gpu.AccelerationStructureDescriptor) (gpu.AccelerationStructure, error) {
	if err := d.call(OpCreateAccelerationStructure); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("gputest: acceleration structure %q has zero size", desc.Label)
	}
	as := &AccelerationStructure{desc: desc, address: d.allocAddress(desc.Size)}
	d.mu.Lock()
	d.AccelerationStructures = append(d.AccelerationStructures, as)
	d.mu.Unlock()
	return as, nil
}

func (d *Device) CreateCommandList() (gpu.CommandList, error) {
	if err := d.call(OpCreateCommandList); err != nil {
		return nil, err
	}
	cl := &CommandList{}
	d.mu.Lock()
	d.CommandLists = append(d.CommandLists, cl)
	d.mu.Unlock()
	return cl, nil
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.call(OpCreateFence); err != nil {
		return nil, err
	}
	f := &Fence{value: initial}
	d.mu.Lock()
	d.Fences = append(d.Fences, f)
	d.mu.Unlock()
	return f, nil
}

// Wait returns immediately: work completes synchronously in Submit unless StallFences is set.
func (d *Device) Wait(fence gpu.Fence, value uint64, timeout time.Duration) (bool, error) {
	if fence == nil {
		return false, fmt.Errorf("gputest: wait on nil fence")
	}
	return fence.CompletedValue() >= value, nil
}

func (d *Device) Queue() gpu.Queue {
	return d.queue
}

func (d *Device) Limits() gpu.Limits {
	return d.limits
}

func (d *Device) Swapchain() gpu.Swapchain {
	return d.swapchain
}

// FakeSwapchain returns the concrete swapchain for assertions.
func (d *Device) FakeSwapchain() *Swapchain {
	return d.swapchain
}

func (d *Device) Release() {}

// Queue executes submitted command lists synchronously.
type Queue struct {
	device *Device
}

var _ gpu.Queue = &Queue{}

func (q *Queue) Submit(lists []gpu.CommandList, fence gpu.Fence, value uint64) error {
	if err := q.device.call(OpSubmit); err != nil {
		return err
	}
	for i, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return fmt.Errorf("gputest: list %d is not a gputest command list", i)
		}
		if !cl.closed {
			return fmt.Errorf("gputest: list %d is still recording", i)
		}
	}
	for _, l := range lists {
		cl := l.(*CommandList)
		for _, c := range cl.commands {
			q.device.execute(c)
		}
		q.device.mu.Lock()
		q.device.Submitted = append(q.device.Submitted, cl.commands...)
		q.device.mu.Unlock()
	}
	if f, ok := fence.(*Fence); ok && f != nil && !q.device.StallFences {
		f.signal(value)
	}
	return nil
}

func (d *Device) execute(c Command) {
	switch c.Op {
	case OpCopyBuffer:
		dst, okDst := c.Dst.(*Buffer)
		src, okSrc := c.Src.(*Buffer)
		if okDst && okSrc {
			copy(dst.data[c.DstOffset:c.DstOffset+c.Size], src.data[c.SrcOffset:c.SrcOffset+c.Size])
		}
	case OpCopyBufferToTexture:
		if tex, ok := c.Dst.(*Texture); ok {
			if src, ok := c.Src.(*Buffer); ok {
				tex.Data = append(tex.Data[:0], src.data...)
			}
			tex.Uploads++
		}
	case OpBuildAccelerationStructure:
		if as, ok := c.Build.Destination.(*AccelerationStructure); ok {
			as.record(*c.Build)
		}
	}
}

// Command is one recorded command-list call.
type Command struct {
	Op        string
	Slot      uint32
	Data      []byte
	Handle    gpu.DescriptorHandle
	Barriers  []gpu.Barrier
	Pass      *gpu.RenderPassDescriptor
	Build     *gpu.BuildDescriptor
	Rays      *gpu.DispatchRaysDescriptor
	Object    any
	Dst, Src  any
	DstOffset uint64
	SrcOffset uint64
	Size      uint64
	Counts    [3]uint32
}

// CommandList records commands in memory.
type CommandList struct {
	commands []Command
	closed   bool
	inPass   bool
}

var _ gpu.CommandList = &CommandList{}

// Commands returns the commands recorded since the last Reset.
func (c *CommandList) Commands() []Command {
	return c.commands
}

func (c *CommandList) add(cmd Command) {
	c.commands = append(c.commands, cmd)
}

func (c *CommandList) Reset() {
	c.commands = nil
	c.closed = false
	c.inPass = false
}

func (c *CommandList) Close() error {
	if c.inPass {
		return fmt.Errorf("gputest: close with an open render pass")
	}
	c.closed = true
	return nil
}

func (c *CommandList) ResourceBarrier(barriers ...gpu.Barrier) {
	c.add(Command{Op: OpResourceBarrier, Barriers: append([]gpu.Barrier(nil), barriers...)})
}

func (c *CommandList) SetDescriptorHeap(heap gpu.DescriptorHeap) {
	c.add(Command{Op: OpSetDescriptorHeap, Object: heap})
}

func (c *CommandList) SetGraphicsLayout(layout gpu.BindingLayout) {
	c.add(Command{Op: OpSetGraphicsLayout, Object: layout})
}

func (c *CommandList) SetComputeLayout(layout gpu.BindingLayout) {
	c.add(Command{Op: OpSetComputeLayout, Object: layout})
}

func (c *CommandList) SetInlineConstants(slot uint32, data []byte) {
	c.add(Command{Op: OpSetInlineConstants, Slot: slot, Data: append([]byte(nil), data...)})
}

func (c *CommandList) SetTable(slot uint32, handle gpu.DescriptorHandle) {
	c.add(Command{Op: OpSetTable, Slot: slot, Handle: handle})
}

func (c *CommandList) BeginRenderPass(desc gpu.RenderPassDescriptor) {
	c.inPass = true
	c.add(Command{Op: OpBeginRenderPass, Pass: &desc})
}

func (c *CommandList) EndRenderPass() {
	c.inPass = false
	c.add(Command{Op: OpEndRenderPass})
}

func (c *CommandList) SetRenderPipeline(pipeline gpu.RenderPipeline) {
	c.add(Command{Op: OpSetRenderPipeline, Object: pipeline})
}

func (c *CommandList) SetVertexBuffer(buffer gpu.Buffer) {
	c.add(Command{Op: OpSetVertexBuffer, Object: buffer})
}

func (c *CommandList) SetIndexBuffer(buffer gpu.Buffer) {
	c.add(Command{Op: OpSetIndexBuffer, Object: buffer})
}

func (c *CommandList) DrawIndexed(indexCount, instanceCount uint32) {
	c.add(Command{Op: OpDrawIndexed, Counts: [3]uint32{indexCount, instanceCount}})
}

func (c *CommandList) Draw(vertexCount, instanceCount uint32) {
	c.add(Command{Op: OpDraw, Counts: [3]uint32{vertexCount, instanceCount}})
}

func (c *CommandList) SetComputePipeline(pipeline gpu.ComputePipeline) {
	c.add(Command{Op: OpSetComputePipeline, Object: pipeline})
}

func (c *CommandList) Dispatch(x, y, z uint32) {
	c.add(Command{Op: OpDispatch, Counts: [3]uint32{x, y, z}})
}

func (c *CommandList) SetRayTracingPipeline(pipeline gpu.RayTracingPipeline) {
	c.add(Command{Op: OpSetRayTracingPipeline, Object: pipeline})
}

func (c *CommandList) DispatchRays(desc gpu.DispatchRaysDescriptor) {
	c.add(Command{Op: OpDispatchRays, Rays: &desc, Counts: [3]uint32{desc.Width, desc.Height, desc.Depth}})
}

func (c *CommandList) BuildAccelerationStructure(desc gpu.BuildDescriptor) {
	c.add(Command{Op: OpBuildAccelerationStructure, Build: &desc})
}

func (c *CommandList) CopyBuffer(dst gpu.Buffer, dstOffset uint64, src gpu.Buffer, srcOffset uint64, size uint64) {
	c.add(Command{Op: OpCopyBuffer, Dst: dst, DstOffset: dstOffset, Src: src, SrcOffset: srcOffset, Size: size})
}

func (c *CommandList) CopyBufferToTexture(dst gpu.Texture, src gpu.Buffer, bytesPerRow uint32) {
	c.add(Command{Op: OpCopyBufferToTexture, Dst: dst, Src: src, Counts: [3]uint32{bytesPerRow}})
}
