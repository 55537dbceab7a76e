package model

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestNewCube(t *testing.T) {
	m := NewCube("cube", 2)
	if len(m.Vertices()) != 8 || len(m.Indices()) != 36 {
		t.Fatalf("cube has %d vertices and %d indices, want 8 and 36", len(m.Vertices()), len(m.Indices()))
	}
	for _, v := range m.Vertices() {
		for _, c := range v.Position {
			if c != 1 && c != -1 {
				t.Fatalf("corner %v not on the unit cube", v.Position)
			}
		}
	}
	if got := len(m.VertexData()); got != 8*32 {
		t.Fatalf("vertex data length = %d", got)
	}
	idx := m.IndexData()
	if got := binary.LittleEndian.Uint32(idx[4:]); got != m.Indices()[1] {
		t.Fatalf("index data[1] = %d, want %d", got, m.Indices()[1])
	}
}

func TestNewSphere(t *testing.T) {
	m := NewSphere("sphere", 3, 8, 4)
	if len(m.Vertices()) != 9*5 {
		t.Fatalf("vertices = %d, want 45", len(m.Vertices()))
	}
	if len(m.Indices()) != 8*4*6 {
		t.Fatalf("indices = %d, want 192", len(m.Indices()))
	}
	for _, v := range m.Vertices() {
		p := v.Position
		l := math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2]))
		if math.Abs(l-3) > 1e-4 {
			t.Fatalf("vertex %v off the sphere (|p| = %v)", p, l)
		}
	}
}

func TestNewMeshPanicsOnBadIndices(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewMesh("bad", []GPUVertex{{}}, []uint32{0, 0, 1})
}

func TestNewTexture(t *testing.T) {
	if _, err := NewTexture("t", make([]byte, 15), 2, 2, TextureFormatRGBA32); err == nil {
		t.Fatal("expected size mismatch error")
	}
	tex, err := NewTexture("t", make([]byte, 16), 2, 2, TextureFormatBGRA32)
	if err != nil {
		t.Fatal(err)
	}
	if tex.Format.GPUFormat().BytesPerPixel() != tex.BytesPerPixel() {
		t.Fatal("format size mismatch")
	}
}
