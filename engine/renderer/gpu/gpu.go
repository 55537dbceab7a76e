// Package gpu defines the low-level GPU API the renderer is built on: explicit binding
// layouts, shader-visible descriptor heaps, resource barriers, acceleration structures,
// ray dispatch and fence synchronization. Backends implement these interfaces; the
// renderer never talks to a native API directly.
package gpu

import "time"

// Device creates every GPU object and owns the single submission queue.
type Device interface {
	// CreateBuffer allocates a linear buffer.
	//
	// Parameters:
	//   - desc: size, usage and debug label of the buffer
	//
	// Returns:
	//   - Buffer: the created buffer
	//   - error: error if the size is zero or the allocation fails
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// CreateTexture allocates a 2D texture.
	//
	// Parameters:
	//   - desc: dimensions, format and usage of the texture
	//
	// Returns:
	//   - Texture: the created texture
	//   - error: error if the dimensions are zero or the allocation fails
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateDescriptorHeap allocates a shader-visible descriptor heap with a fixed capacity.
	//
	// Parameters:
	//   - desc: capacity and debug label of the heap
	//
	// Returns:
	//   - DescriptorHeap: the created heap
	//   - error: error if the capacity is zero
	CreateDescriptorHeap(desc DescriptorHeapDescriptor) (DescriptorHeap, error)

	// CreateBindingLayout materializes a binding layout from its serialized form.
	//
	// Parameters:
	//   - blob: output of SerializeBindingLayout
	//
	// Returns:
	//   - BindingLayout: the native layout object
	//   - error: error if the blob does not deserialize into a valid layout
	CreateBindingLayout(blob []byte) (BindingLayout, error)

	// CreateRenderPipeline builds a rasterization pipeline state object.
	//
	// Parameters:
	//   - desc: shader stages, vertex layout and fixed-function state
	//
	// Returns:
	//   - RenderPipeline: the created pipeline
	//   - error: error if the stages do not match the layout or creation fails
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)

	// CreateComputePipeline builds a compute pipeline.
	//
	// Parameters:
	//   - desc: compute stage and binding layout
	//
	// Returns:
	//   - ComputePipeline: the created pipeline
	//   - error: error if creation fails
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)

	// CreateRayTracingPipeline builds a ray-tracing state object.
	//
	// Parameters:
	//   - desc: module, exports, hit groups and payload limits
	//
	// Returns:
	//   - RayTracingPipeline: the created state object
	//   - error: error if an export is missing or creation fails
	CreateRayTracingPipeline(desc RayTracingPipelineDescriptor) (RayTracingPipeline, error)

	// AccelerationStructurePrebuildInfo reports result and scratch sizes for a build.
	//
	// Parameters:
	//   - inputs: geometry or instance inputs of the build
	//
	// Returns:
	//   - PrebuildInfo: required result and scratch sizes
	AccelerationStructurePrebuildInfo(inputs BuildInputs) PrebuildInfo

	// CreateAccelerationStructure allocates storage for a bottom- or top-level structure.
	//
	// Parameters:
	//   - desc: level and result size
	//
	// Returns:
	//   - AccelerationStructure: the created structure, empty until built
	//   - error: error if the size is zero
	CreateAccelerationStructure(desc AccelerationStructureDescriptor) (AccelerationStructure, error)

	// CreateCommandList creates a command list in the recording state.
	//
	// Returns:
	//   - CommandList: the created command list
	//   - error: error if creation fails
	CreateCommandList() (CommandList, error)

	// CreateFence creates a fence with the given initial value.
	//
	// Parameters:
	//   - initial: starting completed value
	//
	// Returns:
	//   - Fence: the created fence
	//   - error: error if creation fails
	CreateFence(initial uint64) (Fence, error)

	// Wait blocks until the fence reaches value or the timeout elapses.
	//
	// Parameters:
	//   - fence: the fence to wait on
	//   - value: the value to wait for
	//   - timeout: maximum time to block
	//
	// Returns:
	//   - bool: true if the fence reached value, false on timeout
	//   - error: error if the device was lost while waiting
	Wait(fence Fence, value uint64, timeout time.Duration) (bool, error)

	// Queue returns the device's single direct queue.
	//
	// Returns:
	//   - Queue: the submission queue
	Queue() Queue

	// Limits returns the fixed alignment and size contracts of the device.
	//
	// Returns:
	//   - Limits: the device limits
	Limits() Limits

	// Swapchain returns the presentation swapchain, or nil for headless devices.
	//
	// Returns:
	//   - Swapchain: the swapchain, may be nil
	Swapchain() Swapchain

	// Release frees the device. Objects created from it must be released first.
	Release()
}

// Queue submits closed command lists for execution.
type Queue interface {
	// Submit executes the command lists in order and signals fence with value once the
	// GPU has finished them.
	//
	// Parameters:
	//   - lists: closed command lists to execute
	//   - fence: fence to signal, may be nil
	//   - value: value to signal the fence with
	//
	// Returns:
	//   - error: error if a list is still recording or execution fails
	Submit(lists []CommandList, fence Fence, value uint64) error
}

// Fence is a monotonically increasing GPU timeline value.
type Fence interface {
	// CompletedValue returns the last value the GPU signalled.
	//
	// Returns:
	//   - uint64: the completed value
	CompletedValue() uint64

	// Release frees the fence.
	Release()
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	// Label returns the debug label.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the usage flags the buffer was created with.
	Usage() BufferUsage

	// Address returns the buffer's GPU virtual address.
	Address() uint64

	// Write copies data into a CPU-writable upload buffer.
	//
	// Parameters:
	//   - offset: byte offset into the buffer
	//   - data: bytes to copy
	//
	// Returns:
	//   - error: error if the buffer is not an upload buffer or the range is out of bounds
	Write(offset uint64, data []byte) error

	// Release frees the buffer.
	Release()
}

// Texture is a 2D GPU image.
type Texture interface {
	// Label returns the debug label.
	Label() string

	// Width returns the width in texels.
	Width() uint32

	// Height returns the height in texels.
	Height() uint32

	// Format returns the texel format.
	Format() TextureFormat

	// Usage returns the usage flags the texture was created with.
	Usage() TextureUsage

	// Release frees the texture.
	Release()
}

// DescriptorHeap is a shader-visible array of resource-view descriptors.
type DescriptorHeap interface {
	// Capacity returns the number of descriptor slots.
	Capacity() uint32

	// Increment returns the byte distance between consecutive slots.
	Increment() uint32

	// CPUStart returns the CPU handle of slot 0, used for writes.
	CPUStart() DescriptorHandle

	// GPUStart returns the GPU handle of slot 0, used for binding tables.
	GPUStart() DescriptorHandle

	// Write stores a view into the slot addressed by a CPU handle.
	//
	// Parameters:
	//   - cpu: CPU handle of the slot
	//   - view: the view to write; a view with no resource writes a null descriptor
	//
	// Returns:
	//   - error: error if the handle is outside the heap
	Write(cpu DescriptorHandle, view ViewDescriptor) error

	// Release frees the heap.
	Release()
}

// BindingLayout is an immutable native binding layout ("root signature").
type BindingLayout interface {
	// Descriptor returns the layout description the object was created from.
	Descriptor() BindingLayoutDescriptor

	// Release frees the layout.
	Release()
}

// RenderPipeline is a rasterization pipeline state object.
type RenderPipeline interface {
	// Label returns the debug label.
	Label() string

	// Release frees the pipeline.
	Release()
}

// ComputePipeline is a compute pipeline state object.
type ComputePipeline interface {
	// Label returns the debug label.
	Label() string

	// Release frees the pipeline.
	Release()
}

// RayTracingPipeline is a ray-tracing state object.
type RayTracingPipeline interface {
	// Label returns the debug label.
	Label() string

	// ShaderIdentifier returns the opaque identifier of an export: the ray-generation or a
	// miss function name, or a hit-group name.
	//
	// Parameters:
	//   - export: export or hit-group name
	//
	// Returns:
	//   - []byte: the identifier, Limits().ShaderIdentifierSize bytes long
	//   - bool: false if the pipeline has no such export
	ShaderIdentifier(export string) ([]byte, bool)

	// Release frees the state object.
	Release()
}

// AccelerationStructure is a bottom- or top-level ray-tracing acceleration structure.
type AccelerationStructure interface {
	// Level returns whether the structure holds triangles or instances.
	Level() AccelerationStructureLevel

	// Address returns the GPU virtual address referenced by instance records.
	Address() uint64

	// Size returns the allocated result size in bytes.
	Size() uint64

	// Release frees the structure.
	Release()
}

// Swapchain is the sequence of images presented to a window.
type Swapchain interface {
	// Format returns the texel format of the swapchain images.
	Format() TextureFormat

	// AcquireNext acquires the next image. Render passes with a nil color target render to it.
	//
	// Returns:
	//   - error: error if the surface is lost or outdated
	AcquireNext() error

	// Present hands the acquired image to the display.
	//
	// Returns:
	//   - error: error if no image was acquired
	Present() error

	// Discard gives the acquired image back without presenting it, so the next
	// AcquireNext succeeds after a frame that failed to record or submit. It does nothing
	// if no image is held.
	Discard()

	// Resize reconfigures the swapchain images.
	//
	// Parameters:
	//   - width: new width in pixels
	//   - height: new height in pixels
	//
	// Returns:
	//   - error: error if reconfiguration fails
	Resize(width, height uint32) error
}

// CommandList records GPU commands for a single submission.
type CommandList interface {
	// Reset clears recorded commands and reopens the list for recording.
	Reset()

	// Close ends recording. A closed list can be submitted.
	//
	// Returns:
	//   - error: error if recording left a render pass open
	Close() error

	// ResourceBarrier records resource state transitions or UAV barriers.
	ResourceBarrier(barriers ...Barrier)

	// SetDescriptorHeap binds the shader-visible heap that table handles point into.
	SetDescriptorHeap(heap DescriptorHeap)

	// SetGraphicsLayout binds the layout used by subsequent draws.
	SetGraphicsLayout(layout BindingLayout)

	// SetComputeLayout binds the layout used by subsequent dispatches and ray dispatches.
	SetComputeLayout(layout BindingLayout)

	// SetInlineConstants pushes 32-bit values directly into an inline-constant slot.
	//
	// Parameters:
	//   - slot: root parameter index of the inline slot
	//   - data: bytes to push, a multiple of 4 and at most the slot's size
	SetInlineConstants(slot uint32, data []byte)

	// SetTable binds a descriptor table slot to a GPU handle of the bound heap.
	//
	// Parameters:
	//   - slot: root parameter index of the table slot
	//   - handle: GPU handle of the first descriptor of the range
	SetTable(slot uint32, handle DescriptorHandle)

	// BeginRenderPass starts a render pass with the given attachments.
	BeginRenderPass(desc RenderPassDescriptor)

	// EndRenderPass ends the current render pass.
	EndRenderPass()

	// SetRenderPipeline binds a rasterization pipeline.
	SetRenderPipeline(pipeline RenderPipeline)

	// SetVertexBuffer binds the vertex buffer at slot 0.
	SetVertexBuffer(buffer Buffer)

	// SetIndexBuffer binds a 32-bit index buffer.
	SetIndexBuffer(buffer Buffer)

	// DrawIndexed draws indexed primitives.
	DrawIndexed(indexCount, instanceCount uint32)

	// Draw draws non-indexed primitives.
	Draw(vertexCount, instanceCount uint32)

	// SetComputePipeline binds a compute pipeline.
	SetComputePipeline(pipeline ComputePipeline)

	// Dispatch dispatches compute workgroups.
	Dispatch(x, y, z uint32)

	// SetRayTracingPipeline binds a ray-tracing state object.
	SetRayTracingPipeline(pipeline RayTracingPipeline)

	// DispatchRays launches one ray-generation invocation per pixel of the dispatch grid.
	DispatchRays(desc DispatchRaysDescriptor)

	// BuildAccelerationStructure records a build or in-place update.
	BuildAccelerationStructure(desc BuildDescriptor)

	// CopyBuffer copies size bytes between buffers.
	CopyBuffer(dst Buffer, dstOffset uint64, src Buffer, srcOffset uint64, size uint64)

	// CopyBufferToTexture copies tightly packed rows from a buffer into a texture.
	CopyBufferToTexture(dst Texture, src Buffer, bytesPerRow uint32)
}
