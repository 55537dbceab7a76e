package common

import (
	"math"
	"testing"
)

func almostEq(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-5 }

func TestAlignUp(t *testing.T) {
	tests := []struct {
		value, align, want uint64
	}{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
		{40, 64, 64},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.value, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.value, tt.align, got, tt.want)
		}
	}
	if got := AlignUp(uint32(65), uint32(256)); got != 256 {
		t.Errorf("AlignUp uint32 = %d, want 256", got)
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce("", "", "b", "c"); got != "b" {
		t.Errorf("Coalesce = %q, want b", got)
	}
	if got := Coalesce(0, 0); got != 0 {
		t.Errorf("Coalesce = %d, want 0", got)
	}
}

func TestMat4InverseRoundTrip(t *testing.T) {
	m := Compose([3]float32{1, 2, 3}, [3]float32{0.3, -0.7, 0.1}, [3]float32{2, 2, 2})
	inv, ok := m.Inverse()
	if !ok {
		t.Fatal("Inverse reported singular matrix")
	}
	id := m.Mul(inv)
	want := Identity()
	for i := range id {
		if !almostEq(id[i], want[i]) {
			t.Fatalf("m * inv(m)[%d] = %v, want %v", i, id[i], want[i])
		}
	}
}

func TestRowMajor3x4(t *testing.T) {
	m := Translation(4, 5, 6)
	r := m.RowMajor3x4()
	if r[3] != 4 || r[7] != 5 || r[11] != 6 {
		t.Fatalf("translation column not in row-major slots: %v", r)
	}
	if back := FromRowMajor3x4(r); back != m {
		t.Fatalf("FromRowMajor3x4 = %v, want %v", back, m)
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translation(1, 0, 0).Mul(Compose([3]float32{}, [3]float32{}, [3]float32{2, 2, 2}))
	p := m.TransformPoint([3]float32{1, 1, 1})
	if !almostEq(p[0], 3) || !almostEq(p[1], 2) || !almostEq(p[2], 2) {
		t.Fatalf("TransformPoint = %v, want [3 2 2]", p)
	}
}

func TestLookAtMapsEyeToOrigin(t *testing.T) {
	eye := [3]float32{0, 2, 5}
	v := LookAt(eye, [3]float32{}, [3]float32{0, 1, 0})
	p := v.TransformPoint(eye)
	for i := range p {
		if !almostEq(p[i], 0) {
			t.Fatalf("eye in view space = %v, want origin", p)
		}
	}
}
