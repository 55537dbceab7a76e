package model

import (
	"math"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// NewCube creates an axis-aligned cube centred on the origin with eight shared corners
// and twelve triangles. Normals point away from the centre.
//
// Parameters:
//   - key: the mesh identifier
//   - size: edge length
//
// Returns:
//   - Mesh: the cube mesh
func NewCube(key string, size float32) Mesh {
	h := size / 2
	vertices := make([]GPUVertex, 0, 8)
	for i := 0; i < 8; i++ {
		p := [3]float32{-h, -h, -h}
		if i&1 != 0 {
			p[0] = h
		}
		if i&2 != 0 {
			p[1] = h
		}
		if i&4 != 0 {
			p[2] = h
		}
		vertices = append(vertices, GPUVertex{
			Position: p,
			TexCoord: [2]float32{float32(i & 1), float32((i >> 1) & 1)},
			Normal:   common.Normalize3(p),
		})
	}
	// counter-clockwise when viewed from outside
	indices := []uint32{
		0, 2, 3, 0, 3, 1, // -z
		4, 5, 7, 4, 7, 6, // +z
		0, 4, 6, 0, 6, 2, // -x
		1, 3, 7, 1, 7, 5, // +x
		0, 1, 5, 0, 5, 4, // -y
		2, 6, 7, 2, 7, 3, // +y
	}
	return NewMesh(key, vertices, indices)
}

// NewPlane creates a square in the XZ plane facing +Y.
//
// Parameters:
//   - key: the mesh identifier
//   - size: edge length
//
// Returns:
//   - Mesh: the plane mesh
func NewPlane(key string, size float32) Mesh {
	h := size / 2
	up := [3]float32{0, 1, 0}
	vertices := []GPUVertex{
		{Position: [3]float32{-h, 0, -h}, TexCoord: [2]float32{0, 0}, Normal: up},
		{Position: [3]float32{h, 0, -h}, TexCoord: [2]float32{1, 0}, Normal: up},
		{Position: [3]float32{h, 0, h}, TexCoord: [2]float32{1, 1}, Normal: up},
		{Position: [3]float32{-h, 0, h}, TexCoord: [2]float32{0, 1}, Normal: up},
	}
	return NewMesh(key, vertices, []uint32{0, 2, 1, 0, 3, 2})
}

// NewSphere creates a UV sphere centred on the origin.
//
// Parameters:
//   - key: the mesh identifier
//   - radius: sphere radius
//   - segments: slices around the Y axis, at least 3
//   - rings: stacks from pole to pole, at least 2
//
// Returns:
//   - Mesh: the sphere mesh
func NewSphere(key string, radius float32, segments, rings int) Mesh {
	segments = max(segments, 3)
	rings = max(rings, 2)
	var vertices []GPUVertex
	for r := 0; r <= rings; r++ {
		v := float32(r) / float32(rings)
		phi := float64(v) * math.Pi
		for s := 0; s <= segments; s++ {
			u := float32(s) / float32(segments)
			theta := float64(u) * 2 * math.Pi
			n := [3]float32{
				float32(math.Sin(phi) * math.Cos(theta)),
				float32(math.Cos(phi)),
				float32(math.Sin(phi) * math.Sin(theta)),
			}
			vertices = append(vertices, GPUVertex{
				Position: [3]float32{n[0] * radius, n[1] * radius, n[2] * radius},
				TexCoord: [2]float32{u, v},
				Normal:   n,
			})
		}
	}
	var indices []uint32
	row := uint32(segments + 1)
	for r := uint32(0); r < uint32(rings); r++ {
		for s := uint32(0); s < uint32(segments); s++ {
			a := r*row + s
			b := a + row
			indices = append(indices, a, a+1, b, a+1, b+1, b)
		}
	}
	return NewMesh(key, vertices, indices)
}
