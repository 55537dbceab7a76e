package scene

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/reflection"
)

func newMaterial(name string) material.Instance {
	return material.NewInstance(name, nil, reflection.Aggregated{}, &binding_layout.Layout{})
}

func TestAddLightCapsEachType(t *testing.T) {
	s := NewScene("lights", camera.NewCamera())
	for i := 0; i < light.MaxPointLights; i++ {
		if err := s.AddLight(light.NewLight(light.LightTypePoint)); err != nil {
			t.Fatalf("point light %d: %v", i, err)
		}
	}
	if err := s.AddLight(light.NewLight(light.LightTypePoint)); err == nil {
		t.Fatal("eleventh point light accepted")
	}
	if err := s.AddLight(light.NewLight(light.LightTypeDirectional)); err != nil {
		t.Fatalf("directional light rejected: %v", err)
	}
	if got := len(s.Lights()); got != light.MaxPointLights+1 {
		t.Fatalf("lights = %d", got)
	}
}

func TestWithLightsPanicsOnOverflow(t *testing.T) {
	lights := make([]light.Light, light.MaxDirectionalLights+1)
	for i := range lights {
		lights[i] = light.NewLight(light.LightTypeDirectional)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewScene("overflow", camera.NewCamera(), WithLights(lights...))
}

func TestMaterialsAreDistinctInFirstUseOrder(t *testing.T) {
	brick, marble := newMaterial("brick"), newMaterial("marble")
	cube := model.NewCube("cube", 1)
	s := NewScene("materials", camera.NewCamera(), WithEntities(
		NewEntity("a", cube, marble),
		NewEntity("b", cube, brick),
		NewEntity("c", cube, marble),
		NewEntity("d", cube, nil),
	))
	got := s.Materials()
	if len(got) != 2 || got[0] != marble || got[1] != brick {
		t.Fatalf("materials = %v", got)
	}
}

func TestEntityTransform(t *testing.T) {
	e := NewEntity("spinner", model.NewCube("cube", 1), nil,
		WithPosition(1, 2, 3),
		WithRotationSpeed(0, math.Pi, 0),
		WithReflective(true))
	if !e.Reflective() || e.Scale() != [3]float32{1, 1, 1} {
		t.Fatal("defaults not applied")
	}
	m := e.ModelMatrix()
	if m[12] != 1 || m[13] != 2 || m[14] != 3 {
		t.Fatalf("translation = %v", m[12:15])
	}

	s := NewScene("update", camera.NewCamera(), WithEntities(e))
	s.Update(0.5)
	if r := e.Rotation(); math.Abs(float64(r[1])-math.Pi/2) > 1e-6 {
		t.Fatalf("rotation after update = %v", r)
	}
}

func TestNewEntityRequiresMesh(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewEntity("empty", nil, nil)
}
