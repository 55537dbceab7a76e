package model

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// GPUMesh holds the device buffers of an uploaded mesh.
type GPUMesh struct {
	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
}

// Release frees both buffers.
func (g *GPUMesh) Release() {
	if g.VertexBuffer != nil {
		g.VertexBuffer.Release()
	}
	if g.IndexBuffer != nil {
		g.IndexBuffer.Release()
	}
}

// mesh is the implementation of the Mesh interface.
type mesh struct {
	key      string
	vertices []GPUVertex
	indices  []uint32
	gpu      *GPUMesh
}

// Mesh is an indexed triangle mesh. Geometry is immutable after construction; the GPU
// handle is attached once the upload controller has copied it to the device.
type Mesh interface {
	// Key retrieves the mesh identifier. Entities sharing a key share one bottom-level
	// acceleration structure.
	//
	// Returns:
	//   - string: the mesh key
	Key() string

	// Vertices returns the vertex list.
	//
	// Returns:
	//   - []GPUVertex: the vertices
	Vertices() []GPUVertex

	// Indices returns the triangle index list.
	//
	// Returns:
	//   - []uint32: three indices per triangle
	Indices() []uint32

	// VertexData returns the vertices marshaled for upload.
	//
	// Returns:
	//   - []byte: 32 bytes per vertex
	VertexData() []byte

	// IndexData returns the indices marshaled for upload.
	//
	// Returns:
	//   - []byte: 4 bytes per index
	IndexData() []byte

	// Positions returns the vertex positions as a flat x, y, z list.
	//
	// Returns:
	//   - []float32: three floats per vertex
	Positions() []float32

	// GPU returns the uploaded buffers, or nil before upload.
	//
	// Returns:
	//   - *GPUMesh: the device buffers
	GPU() *GPUMesh

	// SetGPU attaches the uploaded buffers.
	//
	// Parameters:
	//   - g: the device buffers
	SetGPU(g *GPUMesh)
}

var _ Mesh = &mesh{}

// NewMesh creates a mesh. It panics when the index count is not a multiple of three or
// an index is out of range.
//
// Parameters:
//   - key: the mesh identifier
//   - vertices: the vertex list
//   - indices: the triangle index list
//
// Returns:
//   - Mesh: the mesh
func NewMesh(key string, vertices []GPUVertex, indices []uint32) Mesh {
	if len(indices)%3 != 0 {
		panic("model: " + key + ": index count is not a multiple of three")
	}
	for _, i := range indices {
		if int(i) >= len(vertices) {
			panic("model: " + key + ": index out of range")
		}
	}
	return &mesh{key: key, vertices: vertices, indices: indices}
}

func (m *mesh) Key() string {
	return m.key
}

func (m *mesh) Vertices() []GPUVertex {
	return m.vertices
}

func (m *mesh) Indices() []uint32 {
	return m.indices
}

func (m *mesh) VertexData() []byte {
	buf := make([]byte, len(m.vertices)*32)
	for i := range m.vertices {
		m.vertices[i].put(buf[i*32:])
	}
	return buf
}

func (m *mesh) IndexData() []byte {
	buf := make([]byte, len(m.indices)*4)
	for i, idx := range m.indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

func (m *mesh) Positions() []float32 {
	out := make([]float32, 0, len(m.vertices)*3)
	for _, v := range m.vertices {
		out = append(out, v.Position[0], v.Position[1], v.Position[2])
	}
	return out
}

func (m *mesh) GPU() *GPUMesh {
	return m.gpu
}

func (m *mesh) SetGPU(g *GPUMesh) {
	m.gpu = g
}
