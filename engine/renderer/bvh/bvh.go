// Package bvh builds flattened bounding volume hierarchies over axis-aligned boxes. The
// WebGPU backend uses it to emulate bottom-level (triangle) and top-level (instance)
// acceleration structures in storage buffers.
package bvh

import (
	"encoding/binary"
	"math"
	"sort"
)

// MaxLeafSize is the largest number of primitives stored in a leaf.
const MaxLeafSize = 4

// NodeSize is the size in bytes of one flattened node.
const NodeSize = 32

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max [3]float32
}

// Empty returns a box that contains nothing; any Union with it returns the other box.
func Empty() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
}

// Union returns the smallest box containing a and b.
func (a AABB) Union(b AABB) AABB {
	for i := 0; i < 3; i++ {
		a.Min[i] = min(a.Min[i], b.Min[i])
		a.Max[i] = max(a.Max[i], b.Max[i])
	}
	return a
}

// Extend returns the smallest box containing a and p.
func (a AABB) Extend(p [3]float32) AABB {
	return a.Union(AABB{Min: p, Max: p})
}

// Centroid returns the center of the box.
func (a AABB) Centroid() [3]float32 {
	return [3]float32{
		(a.Min[0] + a.Max[0]) * 0.5,
		(a.Min[1] + a.Max[1]) * 0.5,
		(a.Min[2] + a.Max[2]) * 0.5,
	}
}

// IsEmpty reports whether the box contains no point.
func (a AABB) IsEmpty() bool {
	return a.Min[0] > a.Max[0] || a.Min[1] > a.Max[1] || a.Min[2] > a.Max[2]
}

// Node is one flattened hierarchy node. Nodes are stored depth first, so the first child
// of an interior node is the next node. For interior nodes Offset is the index of the
// second child and Count is 0; for leaves Offset is the first entry in Tree.Order and
// Count the number of primitives.
type Node struct {
	Bounds AABB
	Offset uint32
	Count  uint32
}

// IsLeaf reports whether the node stores primitives.
func (n Node) IsLeaf() bool {
	return n.Count > 0
}

// Tree is a flattened hierarchy. Order lists primitive indices in leaf order.
type Tree struct {
	Nodes []Node
	Order []uint32
}

// Build constructs a hierarchy over the given primitive bounds with median splits along
// the axis of largest centroid spread.
//
// Parameters:
//   - bounds: one box per primitive
//
// Returns:
//   - *Tree: the hierarchy; an empty input yields a single empty leaf
func Build(bounds []AABB) *Tree {
	t := &Tree{Order: make([]uint32, len(bounds))}
	for i := range t.Order {
		t.Order[i] = uint32(i)
	}
	if len(bounds) == 0 {
		t.Nodes = []Node{{Bounds: Empty()}}
		return t
	}
	t.Nodes = make([]Node, 0, 2*len(bounds)/MaxLeafSize+1)
	t.build(bounds, 0, len(bounds))
	return t
}

func (t *Tree) build(bounds []AABB, start, end int) uint32 {
	idx := uint32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{})

	box := Empty()
	centroids := Empty()
	for _, p := range t.Order[start:end] {
		box = box.Union(bounds[p])
		centroids = centroids.Extend(bounds[p].Centroid())
	}

	n := end - start
	if n <= MaxLeafSize {
		t.Nodes[idx] = Node{Bounds: box, Offset: uint32(start), Count: uint32(n)}
		return idx
	}

	axis := largestAxis(centroids)
	if centroids.Max[axis] == centroids.Min[axis] {
		// coincident centroids: split by box extent so identical primitives still divide
		axis = largestAxis(box)
	}
	prims := t.Order[start:end]
	sort.SliceStable(prims, func(i, j int) bool {
		return bounds[prims[i]].Centroid()[axis] < bounds[prims[j]].Centroid()[axis]
	})

	mid := start + n/2
	t.build(bounds, start, mid)
	right := t.build(bounds, mid, end)
	t.Nodes[idx] = Node{Bounds: box, Offset: right}
	return idx
}

func largestAxis(b AABB) int {
	ext := [3]float32{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1], b.Max[2] - b.Min[2]}
	axis := 0
	if ext[1] > ext[axis] {
		axis = 1
	}
	if ext[2] > ext[axis] {
		axis = 2
	}
	return axis
}

// Refit recomputes every node's bounds from new primitive bounds, keeping the topology.
// Children always follow their parent, so one reverse sweep is enough.
//
// Parameters:
//   - bounds: one box per primitive, same length as the input to Build
func (t *Tree) Refit(bounds []AABB) {
	for i := len(t.Nodes) - 1; i >= 0; i-- {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			box := Empty()
			for _, p := range t.Order[n.Offset : n.Offset+n.Count] {
				box = box.Union(bounds[p])
			}
			n.Bounds = box
			continue
		}
		if len(t.Order) == 0 {
			continue
		}
		n.Bounds = t.Nodes[i+1].Bounds.Union(t.Nodes[n.Offset].Bounds)
	}
}

// Bounds returns the root bounds.
func (t *Tree) Bounds() AABB {
	if len(t.Nodes) == 0 {
		return Empty()
	}
	return t.Nodes[0].Bounds
}

// Marshal encodes the nodes in their 32-byte GPU layout: min.xyz, offset, max.xyz, count.
// Empty boxes are written as inverted infinities so ray tests always miss them.
func (t *Tree) Marshal() []byte {
	buf := make([]byte, len(t.Nodes)*NodeSize)
	for i, n := range t.Nodes {
		o := buf[i*NodeSize:]
		for k := 0; k < 3; k++ {
			binary.LittleEndian.PutUint32(o[k*4:], math.Float32bits(n.Bounds.Min[k]))
			binary.LittleEndian.PutUint32(o[16+k*4:], math.Float32bits(n.Bounds.Max[k]))
		}
		binary.LittleEndian.PutUint32(o[12:], n.Offset)
		binary.LittleEndian.PutUint32(o[28:], n.Count)
	}
	return buf
}

// TriangleBounds computes one box per indexed triangle.
//
// Parameters:
//   - positions: vertex positions
//   - indices: three indices per triangle
//
// Returns:
//   - []AABB: len(indices)/3 boxes
func TriangleBounds(positions [][3]float32, indices []uint32) []AABB {
	out := make([]AABB, len(indices)/3)
	for i := range out {
		b := Empty()
		for k := 0; k < 3; k++ {
			idx := indices[i*3+k]
			if int(idx) < len(positions) {
				b = b.Extend(positions[idx])
			}
		}
		out[i] = b
	}
	return out
}

// TransformBounds returns the box enclosing b after applying a row-major 3x4 affine
// transform to its eight corners.
//
// Parameters:
//   - b: the object-space box
//   - m: row-major 3x4 transform
//
// Returns:
//   - AABB: the world-space box
func TransformBounds(b AABB, m [12]float32) AABB {
	if b.IsEmpty() {
		return b
	}
	out := Empty()
	for c := 0; c < 8; c++ {
		p := [3]float32{b.Min[0], b.Min[1], b.Min[2]}
		if c&1 != 0 {
			p[0] = b.Max[0]
		}
		if c&2 != 0 {
			p[1] = b.Max[1]
		}
		if c&4 != 0 {
			p[2] = b.Max[2]
		}
		out = out.Extend([3]float32{
			m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
			m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
			m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
		})
	}
	return out
}
