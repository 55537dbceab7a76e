package light

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestNewGPULightBuffer(t *testing.T) {
	lights := []Light{
		NewLight(LightTypeDirectional, WithDirection(0, -2, 0), WithIntensity(2)),
		NewLight(LightTypePoint, WithPosition(1, 2, 3), WithRange(5), WithColor(1, 0, 0)),
		NewLight(LightTypePoint, WithEnabled(false)),
	}
	b, err := NewGPULightBuffer(lights)
	if err != nil {
		t.Fatalf("NewGPULightBuffer: %v", err)
	}
	if b.DirectionalCount != 1 || b.PointCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", b.DirectionalCount, b.PointCount)
	}
	if b.Directional[0].Direction != [3]float32{0, -1, 0} {
		t.Fatalf("direction not normalized: %v", b.Directional[0].Direction)
	}

	buf := b.Marshal()
	if len(buf) != 656 || b.Size() != 656 {
		t.Fatalf("marshal length = %d", len(buf))
	}
	// first point light starts after the header and ten directional lights
	off := 16 + 10*32
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8:])); got != 3 {
		t.Fatalf("point position z = %v, want 3", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+12:])); got != 5 {
		t.Fatalf("point range = %v, want 5", got)
	}
}

func TestNewGPULightBufferTooMany(t *testing.T) {
	var lights []Light
	for range MaxPointLights + 1 {
		lights = append(lights, NewLight(LightTypePoint))
	}
	if _, err := NewGPULightBuffer(lights); err == nil {
		t.Fatal("expected error for eleven point lights")
	}
}

func TestSetParams(t *testing.T) {
	l := NewLight(LightTypeDirectional)
	p := l.Params()
	p.Direction = [3]float32{3, 0, 4}
	p.Enabled = false
	l.SetParams(p)

	got := l.Params()
	if got.Direction != [3]float32{0.6, 0, 0.8} || l.Enabled() {
		t.Fatalf("params = %+v", got)
	}

	p.Direction = [3]float32{}
	l.SetParams(p)
	if got := l.Params().Direction; got != [3]float32{0, -1, 0} {
		t.Fatalf("zero direction = %v, want straight down", got)
	}
}
