package gpu

// BufferUsage is a bit set describing how a Buffer will be used.
type BufferUsage uint32

const (
	// BufferUsageVertex allows the buffer to be bound as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << iota

	// BufferUsageIndex allows the buffer to be bound as a 32-bit index buffer.
	BufferUsageIndex

	// BufferUsageConstant allows constant-buffer views of the buffer.
	BufferUsageConstant

	// BufferUsageShaderResource allows read-only structured views of the buffer.
	BufferUsageShaderResource

	// BufferUsageUnorderedAccess allows read-write structured views of the buffer.
	BufferUsageUnorderedAccess

	// BufferUsageCopySrc allows the buffer to be the source of a copy.
	BufferUsageCopySrc

	// BufferUsageCopyDst allows the buffer to be the destination of a copy.
	BufferUsageCopyDst

	// BufferUsageUpload places the buffer in CPU-writable memory. Only upload buffers accept Write.
	BufferUsageUpload

	// BufferUsageAccelerationStructureInput marks geometry or instance data consumed by
	// acceleration-structure builds.
	BufferUsageAccelerationStructureInput

	// BufferUsageScratch marks scratch memory for acceleration-structure builds.
	BufferUsageScratch

	// BufferUsageShaderTable marks ray-tracing shader-table memory.
	BufferUsageShaderTable
)

// Has reports whether every bit of flag is set in u.
func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

// TextureFormat identifies the texel format of a Texture.
type TextureFormat int

const (
	// TextureFormatUndefined marks an unset format.
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized.
	TextureFormatRGBA8Unorm

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized.
	TextureFormatBGRA8Unorm

	// TextureFormatRGBA16Float is 16-bit float RGBA.
	TextureFormatRGBA16Float

	// TextureFormatRGBA32Float is 32-bit float RGBA.
	TextureFormatRGBA32Float

	// TextureFormatR32Float is a single 32-bit float channel.
	TextureFormatR32Float

	// TextureFormatDepth32Float is a 32-bit float depth format.
	TextureFormatDepth32Float
)

// BytesPerPixel returns the texel size for the format, or 0 when undefined.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatRGBA8Unorm, TextureFormatBGRA8Unorm, TextureFormatR32Float, TextureFormatDepth32Float:
		return 4
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8Unorm:
		return "rgba8unorm"
	case TextureFormatBGRA8Unorm:
		return "bgra8unorm"
	case TextureFormatRGBA16Float:
		return "rgba16float"
	case TextureFormatRGBA32Float:
		return "rgba32float"
	case TextureFormatR32Float:
		return "r32float"
	case TextureFormatDepth32Float:
		return "depth32float"
	default:
		return "undefined"
	}
}

// TextureUsage is a bit set describing how a Texture will be used.
type TextureUsage uint32

const (
	// TextureUsageShaderResource allows sampled / read-only views.
	TextureUsageShaderResource TextureUsage = 1 << iota

	// TextureUsageRenderTarget allows the texture to be a color attachment.
	TextureUsageRenderTarget

	// TextureUsageDepthStencil allows the texture to be a depth attachment.
	TextureUsageDepthStencil

	// TextureUsageUnorderedAccess allows write access from compute and ray-tracing shaders.
	TextureUsageUnorderedAccess

	// TextureUsageCopyDst allows the texture to be the destination of a copy.
	TextureUsageCopyDst
)

// Has reports whether every bit of flag is set in u.
func (u TextureUsage) Has(flag TextureUsage) bool {
	return u&flag == flag
}

// ResourceState is the state a resource is transitioned between with a barrier.
type ResourceState int

const (
	// ResourceStateCommon is the shared default state every frame target returns to between passes.
	ResourceStateCommon ResourceState = iota

	// ResourceStateRenderTarget is the state of a bound color attachment.
	ResourceStateRenderTarget

	// ResourceStateDepthWrite is the state of a bound depth attachment.
	ResourceStateDepthWrite

	// ResourceStatePixelShaderResource is read-only access from pixel shaders.
	ResourceStatePixelShaderResource

	// ResourceStateNonPixelShaderResource is read-only access from compute and ray-tracing shaders.
	ResourceStateNonPixelShaderResource

	// ResourceStateUnorderedAccess is read-write access from compute and ray-tracing shaders.
	ResourceStateUnorderedAccess

	// ResourceStateCopyDest is the destination of a copy.
	ResourceStateCopyDest

	// ResourceStatePresent is the state of a swapchain image handed to the display.
	ResourceStatePresent
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case ResourceStateCommon:
		return "common"
	case ResourceStateRenderTarget:
		return "render-target"
	case ResourceStateDepthWrite:
		return "depth-write"
	case ResourceStatePixelShaderResource:
		return "pixel-shader-resource"
	case ResourceStateNonPixelShaderResource:
		return "non-pixel-shader-resource"
	case ResourceStateUnorderedAccess:
		return "unordered-access"
	case ResourceStateCopyDest:
		return "copy-dest"
	case ResourceStatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// BarrierKind distinguishes state transitions from UAV (write-after-write) barriers.
type BarrierKind int

const (
	// BarrierKindTransition moves a texture from Before to After.
	BarrierKindTransition BarrierKind = iota

	// BarrierKindUAV orders unordered-access work on the same resource, used after
	// acceleration-structure builds.
	BarrierKindUAV
)

// Barrier is a single resource barrier recorded into a CommandList.
type Barrier struct {
	Kind                  BarrierKind
	Texture               Texture
	AccelerationStructure AccelerationStructure
	Before, After         ResourceState
}

// Transition builds a state-transition barrier for a texture.
//
// Parameters:
//   - tex: the texture to transition
//   - before: the state the texture is currently in
//   - after: the state the texture moves to
//
// Returns:
//   - Barrier: the transition barrier
func Transition(tex Texture, before, after ResourceState) Barrier {
	return Barrier{Kind: BarrierKindTransition, Texture: tex, Before: before, After: after}
}

// UAVBarrier builds a UAV barrier on an acceleration structure.
//
// Parameters:
//   - as: the acceleration structure whose writes must complete
//
// Returns:
//   - Barrier: the UAV barrier
func UAVBarrier(as AccelerationStructure) Barrier {
	return Barrier{Kind: BarrierKindUAV, AccelerationStructure: as}
}

// BufferDescriptor describes a Buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// TextureDescriptor describes a 2D Texture to create.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format TextureFormat
	Usage  TextureUsage
}

// DescriptorKind is the view type written into a descriptor heap slot.
type DescriptorKind int

const (
	// DescriptorKindCBV is a constant-buffer view.
	DescriptorKindCBV DescriptorKind = iota

	// DescriptorKindSRV is a shader-resource view (texture, structured buffer or acceleration structure).
	DescriptorKindSRV

	// DescriptorKindUAV is an unordered-access view.
	DescriptorKindUAV
)

// String returns the view type name.
func (k DescriptorKind) String() string {
	switch k {
	case DescriptorKindCBV:
		return "CBV"
	case DescriptorKindSRV:
		return "SRV"
	case DescriptorKindUAV:
		return "UAV"
	default:
		return "unknown"
	}
}

// ViewDescriptor is a resource view written into a descriptor heap slot. Exactly one of
// Texture, Buffer or AccelerationStructure is set; none set is a null descriptor.
type ViewDescriptor struct {
	Kind                  DescriptorKind
	Texture               Texture
	Buffer                Buffer
	AccelerationStructure AccelerationStructure
	Offset                uint64
	Size                  uint64
}

// IsNull reports whether the view references no resource.
func (v ViewDescriptor) IsNull() bool {
	return v.Texture == nil && v.Buffer == nil && v.AccelerationStructure == nil
}

// DescriptorHandle addresses one descriptor slot, either CPU-side (for writes) or GPU-side
// (for binding tables).
type DescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle n slots further on, given the heap's increment size.
//
// Parameters:
//   - n: number of slots to advance
//   - increment: byte distance between consecutive slots
//
// Returns:
//   - DescriptorHandle: the advanced handle
func (h DescriptorHandle) Offset(n, increment uint32) DescriptorHandle {
	return DescriptorHandle{Ptr: h.Ptr + uint64(n)*uint64(increment)}
}

// DescriptorHeapDescriptor describes a shader-visible descriptor heap.
type DescriptorHeapDescriptor struct {
	Label    string
	Capacity uint32
}

// VertexFormat is the format of one vertex attribute.
type VertexFormat int

const (
	// VertexFormatFloat32 is a single float.
	VertexFormatFloat32 VertexFormat = iota
	// VertexFormatFloat32x2 is two floats.
	VertexFormatFloat32x2
	// VertexFormatFloat32x3 is three floats.
	VertexFormatFloat32x3
	// VertexFormatFloat32x4 is four floats.
	VertexFormatFloat32x4
	// VertexFormatUint32 is a single unsigned integer.
	VertexFormatUint32
	// VertexFormatSint32 is a single signed integer.
	VertexFormatSint32
)

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFormatFloat32x2:
		return 8
	case VertexFormatFloat32x3:
		return 12
	case VertexFormatFloat32x4:
		return 16
	default:
		return 4
	}
}

// VertexAttribute is one attribute of a VertexLayout.
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

// VertexLayout describes an interleaved vertex buffer.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// Key returns a stable string identifying the layout, used to key pipeline caches.
func (l VertexLayout) Key() string {
	b := make([]byte, 0, 8+len(l.Attributes)*6)
	b = appendUint(b, uint64(l.Stride))
	for _, a := range l.Attributes {
		b = append(b, '|')
		b = appendUint(b, uint64(a.Location))
		b = append(b, ':')
		b = appendUint(b, uint64(a.Format))
		b = append(b, '@')
		b = appendUint(b, uint64(a.Offset))
	}
	return string(b)
}

func appendUint(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, tmp[i:]...)
}

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	// CullModeNone draws both faces.
	CullModeNone CullMode = iota
	// CullModeBack discards back faces.
	CullModeBack
	// CullModeFront discards front faces.
	CullModeFront
)

// ShaderStageCode carries one compiled stage of a pipeline. Source is the module text
// the stage was compiled from; ByteCode is the compiler output.
type ShaderStageCode struct {
	Label      string
	EntryPoint string
	Source     string
	ByteCode   []byte
}

// RenderPipelineDescriptor describes a rasterization pipeline state object.
type RenderPipelineDescriptor struct {
	Label         string
	Layout        BindingLayout
	Vertex        ShaderStageCode
	Pixel         ShaderStageCode
	Geometry      *ShaderStageCode
	VertexLayout  VertexLayout
	TargetFormats []TextureFormat
	DepthFormat   TextureFormat
	DepthTest     bool
	DepthWrite    bool
	CullMode      CullMode
	BlendEnabled  bool
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label   string
	Layout  BindingLayout
	Compute ShaderStageCode
}

// HitGroupDescriptor names the exports forming one hit group.
type HitGroupDescriptor struct {
	Name         string
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// RayTracingPipelineDescriptor describes a ray-tracing state object built from one module.
type RayTracingPipelineDescriptor struct {
	Label             string
	Layout            BindingLayout
	Module            ShaderStageCode
	RayGeneration     string
	Miss              []string
	HitGroups         []HitGroupDescriptor
	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
	MaxRecursionDepth uint32
}

// AccelerationStructureLevel distinguishes bottom-level (triangles) from top-level (instances).
type AccelerationStructureLevel int

const (
	// LevelBottom holds triangle geometry.
	LevelBottom AccelerationStructureLevel = iota
	// LevelTop holds instances of bottom-level structures.
	LevelTop
)

// BuildFlags control acceleration-structure builds.
type BuildFlags uint32

const (
	// BuildAllowUpdate must be set on the initial build for later in-place updates to be legal.
	BuildAllowUpdate BuildFlags = 1 << iota

	// BuildPreferFastTrace favours trace performance over build time.
	BuildPreferFastTrace

	// BuildPerformUpdate refits an existing structure in place instead of rebuilding it.
	BuildPerformUpdate
)

// Has reports whether every bit of flag is set in f.
func (f BuildFlags) Has(flag BuildFlags) bool {
	return f&flag == flag
}

// TriangleGeometry describes indexed triangle input for a bottom-level build. Vertex
// positions are float32x3 at offset 0 of each vertex.
type TriangleGeometry struct {
	VertexBuffer Buffer
	VertexCount  uint32
	VertexStride uint32
	IndexBuffer  Buffer
	IndexCount   uint32
	Opaque       bool
}

// BuildInputs describe the content of an acceleration structure.
type BuildInputs struct {
	Level          AccelerationStructureLevel
	Flags          BuildFlags
	Geometries     []TriangleGeometry
	InstanceBuffer Buffer
	InstanceCount  uint32
}

// PrebuildInfo reports the memory an acceleration-structure build needs.
type PrebuildInfo struct {
	ResultSize        uint64
	ScratchSize       uint64
	UpdateScratchSize uint64
}

// AccelerationStructureDescriptor describes the storage for an acceleration structure.
type AccelerationStructureDescriptor struct {
	Label string
	Level AccelerationStructureLevel
	Size  uint64
}

// BuildDescriptor is one acceleration-structure build or update recorded into a CommandList.
// For an update, Source and Destination are the same structure.
type BuildDescriptor struct {
	Inputs      BuildInputs
	Destination AccelerationStructure
	Source      AccelerationStructure
	Scratch     Buffer
}

// ShaderTableRange addresses one section of a shader table.
type ShaderTableRange struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Stride uint64
}

// DispatchRaysDescriptor describes a ray dispatch.
type DispatchRaysDescriptor struct {
	RayGeneration ShaderTableRange
	Miss          ShaderTableRange
	HitGroup      ShaderTableRange
	Width         uint32
	Height        uint32
	Depth         uint32
}

// ColorTarget is one color attachment of a render pass. A nil Texture targets the
// swapchain image acquired for the current frame.
type ColorTarget struct {
	Texture    Texture
	Clear      bool
	ClearColor [4]float32
}

// DepthTarget is the depth attachment of a render pass.
type DepthTarget struct {
	Texture    Texture
	Clear      bool
	ClearDepth float32
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label        string
	ColorTargets []ColorTarget
	Depth        *DepthTarget
}

// Limits are the fixed alignment and size contracts of the device.
type Limits struct {
	ShaderIdentifierSize    uint32
	ShaderRecordAlignment   uint32
	ShaderTableAlignment    uint32
	ConstantBufferAlignment uint32
	MaxRootCost             uint32
	MaxRecursionDepth       uint32
}

// DefaultLimits returns the limits every backend in this module reports.
//
// Returns:
//   - Limits: 32-byte identifiers and record alignment, 64-byte table alignment,
//     256-byte constant-buffer alignment, 64 DWORD root cost
func DefaultLimits() Limits {
	return Limits{
		ShaderIdentifierSize:    32,
		ShaderRecordAlignment:   32,
		ShaderTableAlignment:    64,
		ConstantBufferAlignment: 256,
		MaxRootCost:             64,
		MaxRecursionDepth:       31,
	}
}
