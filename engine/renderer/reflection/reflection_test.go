package reflection

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

func cbuffer(name string, space, bind uint32, size uint32, members int) shader.ResourceBinding {
	b := shader.ResourceBinding{Name: name, Type: shader.ResourceConstantBuffer, BindPoint: bind, Space: space, Size: size}
	per := size / uint32(max(members, 1))
	for i := 0; i < members; i++ {
		b.Members = append(b.Members, shader.Member{Name: name + "_m", Type: "f32", Offset: uint32(i) * per, Size: per})
	}
	return b
}

func vertexStage() shader.StageReflection {
	return shader.StageReflection{
		Stage:      shader.StageVertex,
		EntryPoint: "vsMain",
		Resources: []shader.ResourceBinding{
			cbuffer("camera", 0, 0, 80, 2),
			cbuffer("transform", 0, 1, 64, 1),
		},
	}
}

func pixelStage() shader.StageReflection {
	return shader.StageReflection{
		Stage:      shader.StagePixel,
		EntryPoint: "psMain",
		Resources: []shader.ResourceBinding{
			cbuffer("camera", 0, 0, 80, 2),
			cbuffer("lights", 0, 2, 656, 3),
			{Name: "albedo", Type: shader.ResourceTexture, BindPoint: 3},
			{Name: "linearSampler", Type: shader.ResourceSampler, BindPoint: 4},
			{Name: "output", Type: shader.ResourceRWTexture, BindPoint: 5},
			{Name: "sceneBVH", Type: shader.ResourceAccelerationStructure, BindPoint: 6},
		},
	}
}

func TestAggregatorMergesStages(t *testing.T) {
	agg := NewAggregator()
	if err := agg.AddStage(vertexStage()); err != nil {
		t.Fatal(err)
	}
	if err := agg.AddStage(pixelStage()); err != nil {
		t.Fatal(err)
	}
	out := agg.Result()

	if len(out.RootConstantGroups) != 2 {
		t.Fatalf("inline groups = %d, want 2 (camera, transform)", len(out.RootConstantGroups))
	}
	if len(out.TableResources) != 4 {
		t.Fatalf("table resources = %d, want 4", len(out.TableResources))
	}
	if len(out.Samplers) != 1 || out.Samplers[0].Name != "linearSampler" {
		t.Fatalf("samplers = %+v", out.Samplers)
	}
	if out.TotalRootParameterCount != 6 {
		t.Fatalf("root parameters = %d, want 6", out.TotalRootParameterCount)
	}

	wantOrder := []string{"camera", "transform", "lights", "albedo", "output", "sceneBVH"}
	for i, name := range wantOrder {
		g, tr := out.Parameter(i)
		var got string
		switch {
		case g != nil:
			got = g.Binding.Name
		case tr != nil:
			got = tr.Binding.Name
		}
		if got != name {
			t.Fatalf("root parameter %d = %q, want %q", i, got, name)
		}
	}

	wantKinds := map[string]BindingKind{
		"camera":        KindInlineConstant,
		"lights":        KindTableCBV,
		"albedo":        KindTableSRV,
		"output":        KindTableUAV,
		"sceneBVH":      KindTableSRV,
		"linearSampler": KindSampler,
	}
	for name, kind := range wantKinds {
		b, ok := out.Binding(name)
		if !ok {
			t.Fatalf("binding %q missing", name)
		}
		if b.Kind != kind {
			t.Errorf("%s kind = %s, want %s", name, b.Kind, kind)
		}
	}
	if g, _ := out.Parameter(0); g.Num32BitValues() != 20 {
		t.Fatalf("camera pushes %d values, want 20", g.Num32BitValues())
	}
}

func TestAggregatorIdempotent(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 2; i++ {
		if err := agg.AddStage(pixelStage()); err != nil {
			t.Fatal(err)
		}
	}
	out := agg.Result()
	counts := make(map[string]int)
	for _, g := range out.RootConstantGroups {
		counts[g.Binding.Name]++
	}
	for _, tr := range out.TableResources {
		counts[tr.Binding.Name]++
	}
	for _, s := range out.Samplers {
		counts[s.Name]++
	}
	if len(counts) != len(pixelStage().Resources) {
		t.Fatalf("merged %d names, want %d", len(counts), len(pixelStage().Resources))
	}
	for name, n := range counts {
		if n != 1 {
			t.Errorf("%s appears %d times", name, n)
		}
	}
	if out.TotalRootParameterCount != 5 {
		t.Fatalf("root parameters = %d, want 5", out.TotalRootParameterCount)
	}
}

func TestInlineConstantThresholdBoundary(t *testing.T) {
	tests := []struct {
		size    uint32
		members int
		want    BindingKind
	}{
		{126, 2, KindInlineConstant},
		{128, 2, KindInlineConstant},
		{129, 2, KindInlineConstant},
		{130, 2, KindTableCBV},
		{194, 3, KindInlineConstant},
		{195, 3, KindTableCBV},
	}
	for _, tt := range tests {
		agg := NewAggregator()
		stage := shader.StageReflection{
			Stage:     shader.StagePixel,
			Resources: []shader.ResourceBinding{cbuffer("params", 0, 0, tt.size, tt.members)},
		}
		if err := agg.AddStage(stage); err != nil {
			t.Fatal(err)
		}
		out := agg.Result()
		b, _ := out.Binding("params")
		if b.Kind != tt.want {
			t.Errorf("%d bytes over %d members: kind = %s, want %s", tt.size, tt.members, b.Kind, tt.want)
		}
	}
}

func TestInlineGroupMemberOffsets(t *testing.T) {
	agg := NewAggregator()
	res := shader.ResourceBinding{
		Name: "material", Type: shader.ResourceConstantBuffer, Size: 32,
		Members: []shader.Member{
			{Name: "baseColor", Type: "vec4<f32>", Offset: 0, Size: 16},
			{Name: "reflectivity", Type: "f32", Offset: 16, Size: 4},
		},
	}
	if err := agg.AddStage(shader.StageReflection{Stage: shader.StagePixel, Resources: []shader.ResourceBinding{res}}); err != nil {
		t.Fatal(err)
	}
	g := agg.Result().RootConstantGroups[0]
	if len(g.Members) != 2 || g.Members[1].Name != "reflectivity" || g.Members[1].Offset != 16 {
		t.Fatalf("members = %+v", g.Members)
	}
	if g.Num32BitValues() != 8 {
		t.Fatalf("values = %d, want 8", g.Num32BitValues())
	}
}

func TestMalformedStageAddsNothing(t *testing.T) {
	tests := []struct {
		name string
		res  shader.ResourceBinding
	}{
		{"empty cbuffer", shader.ResourceBinding{Name: "empty", Type: shader.ResourceConstantBuffer, Size: 16}},
		{"unknown type", shader.ResourceBinding{Name: "odd", Type: shader.ResourceType(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			stage := shader.StageReflection{
				Stage: shader.StagePixel,
				Resources: []shader.ResourceBinding{
					{Name: "albedo", Type: shader.ResourceTexture},
					tt.res,
				},
			}
			err := agg.AddStage(stage)
			if !errors.Is(err, ErrMalformedStage) {
				t.Fatalf("err = %v, want ErrMalformedStage", err)
			}
			out := agg.Result()
			if out.TotalRootParameterCount != 0 || len(out.TableResources) != 0 {
				t.Fatalf("partial stage kept: %+v", out)
			}
		})
	}
}
