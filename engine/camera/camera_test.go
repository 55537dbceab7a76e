package camera

import (
	"math"
	"testing"
)

func almostEq(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

func TestOrbitControllerPosition(t *testing.T) {
	cc := NewOrbitController(WithRadius(5), WithAzimuth(0), WithElevation(0), WithTarget(1, 2, 3))
	p := cc.Position()
	if !almostEq(p[0], 1) || !almostEq(p[1], 2) || !almostEq(p[2], 8) {
		t.Fatalf("position = %v, want (1, 2, 8)", p)
	}

	cc.Orbit(float32(math.Pi/2), 0)
	p = cc.Position()
	if !almostEq(p[0], 6) || !almostEq(p[2], 3) {
		t.Fatalf("after orbit position = %v, want (6, 2, 3)", p)
	}
}

func TestOrbitControllerClamps(t *testing.T) {
	cc := NewOrbitController(WithRadiusBounds(2, 4), WithRadius(3))
	cc.Zoom(100)
	if cc.Radius() != 2 {
		t.Fatalf("radius = %v, want clamp to 2", cc.Radius())
	}
	cc.Orbit(0, 10)
	if cc.Elevation() >= float32(math.Pi/2) {
		t.Fatalf("elevation %v not clamped below pi/2", cc.Elevation())
	}
}

func TestCameraUniform(t *testing.T) {
	cc := NewOrbitController(WithRadius(5), WithElevation(0))
	c := NewCamera(WithController(cc), WithAspect(16.0/9.0))
	u := c.Uniform()
	if u.Size() != 80 {
		t.Fatalf("uniform size = %d, want 80", u.Size())
	}
	if u.Position != cc.Position() {
		t.Fatalf("uniform position = %v, want %v", u.Position, cc.Position())
	}
	if u.ViewProjection != c.ProjectionMatrix().Mul(c.ViewMatrix()) {
		t.Fatal("view-projection does not equal projection * view")
	}

	// The target sits on the view axis, so it projects to the centre of clip space.
	vp := c.ViewProjectionMatrix()
	x := vp[0]*0 + vp[4]*0 + vp[8]*0 + vp[12]
	y := vp[1]*0 + vp[5]*0 + vp[9]*0 + vp[13]
	if !almostEq(x, 0) || !almostEq(y, 0) {
		t.Fatalf("target projects to (%v, %v), want centre", x, y)
	}
	if b := u.Marshal(); len(b) != 80 {
		t.Fatalf("marshal length = %d", len(b))
	}
}

func TestCameraFollowsControllerOnUpdate(t *testing.T) {
	cc := NewOrbitController(WithRadius(5), WithElevation(0))
	c := NewCamera(WithController(cc))
	before := c.Position()

	cc.Zoom(2)
	if c.Position() != before {
		t.Fatal("camera moved before Update")
	}
	c.Update()
	if got := c.Position(); got == before || !almostEq(got[2], 4) {
		t.Fatalf("position after Update = %v, want z = 4", got)
	}

	c.SetAspect(2)
	if got := c.Projection(); got.Aspect != 2 || got.FovY != defaultProjection.FovY {
		t.Fatalf("projection = %+v", got)
	}
	if c.ProjectionMatrix() != (Projection{FovY: defaultProjection.FovY, Aspect: 2, Near: 0.1, Far: 100}).Matrix() {
		t.Fatal("projection matrix not rebuilt after SetAspect")
	}
}
