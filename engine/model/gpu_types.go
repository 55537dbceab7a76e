package model

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// GPUVertexSource is the canonical WGSL definition of the VertexInput struct.
// Matches GPUVertex layout exactly (32 bytes, tightly packed vertex attributes).
//
//go:embed assets/vertex.wgsl
var GPUVertexSource string

// GPUVertex is the GPU representation of a single mesh vertex.
// Matches the WGSL VertexInput struct (see GPUVertexSource).
// Size: 32 bytes.
type GPUVertex struct {
	Position [3]float32 // offset  0: position in model space (location 0)
	TexCoord [2]float32 // offset 12: UV texture coordinate (location 1)
	Normal   [3]float32 // offset 20: vertex normal (location 2)
}

// VertexLayout is the vertex buffer layout of GPUVertex.
var VertexLayout = gpu.VertexLayout{
	Stride: 32,
	Attributes: []gpu.VertexAttribute{
		{Location: 0, Format: gpu.VertexFormatFloat32x3, Offset: 0},
		{Location: 1, Format: gpu.VertexFormatFloat32x2, Offset: 12},
		{Location: 2, Format: gpu.VertexFormatFloat32x3, Offset: 20},
	},
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, 32)
	g.put(buf)
	return buf
}

func (g *GPUVertex) put(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Position[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Position[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.Position[2]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.TexCoord[0]))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.TexCoord[1]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Normal[0]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Normal[1]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Normal[2]))
}

// GPUTransformUniformSource is the canonical WGSL definition of the TransformUniform struct.
// Matches GPUTransformUniform layout exactly (64 bytes).
//
//go:embed assets/transform_uniform.wgsl
var GPUTransformUniformSource string

// GPUTransformUniform is the per-entity model matrix pushed as inline constants.
// Size: 64 bytes (mat4x4<f32>).
type GPUTransformUniform struct {
	Model [16]float32 // offset 0: model-to-world transform matrix
}

// Size returns the size of the GPUTransformUniform struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUTransformUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUTransformUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUTransformUniform) Marshal() []byte {
	buf := make([]byte, 64)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Model[i]))
	}
	return buf
}

// GPUMaterialParamsSource is the canonical WGSL definition of the MaterialParams struct.
// Matches GPUMaterialParams layout exactly (32 bytes, struct size rounded to vec4 alignment).
//
//go:embed assets/material_params.wgsl
var GPUMaterialParamsSource string

// GPUMaterialParams is the default surface constant block of a material, pushed inline to
// the composite pass and copied into hit-group records for the ray-tracing pass.
// Size: 32 bytes.
type GPUMaterialParams struct {
	BaseColor    [4]float32 // offset  0: linear RGBA albedo
	Reflectivity float32    // offset 16: 0 = diffuse only, 1 = perfect mirror
	_            [3]float32 // offset 20: padding to 32 bytes
}

// Size returns the size of the GPUMaterialParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUMaterialParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMaterialParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUMaterialParams) Marshal() []byte {
	buf := make([]byte, 32)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.BaseColor[i]))
	}
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Reflectivity))
	return buf
}
