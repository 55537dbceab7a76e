package binding_layout

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/reflection"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

func aggregate(t *testing.T, resources ...shader.ResourceBinding) reflection.Aggregated {
	t.Helper()
	agg := reflection.NewAggregator()
	if err := agg.AddStage(shader.StageReflection{Stage: shader.StagePixel, EntryPoint: "psMain", Resources: resources}); err != nil {
		t.Fatal(err)
	}
	return agg.Result()
}

func camera() shader.ResourceBinding {
	return shader.ResourceBinding{
		Name: "camera", Type: shader.ResourceConstantBuffer, BindPoint: 0, Size: 80,
		Members: []shader.Member{{Name: "viewProjection", Offset: 0, Size: 64}, {Name: "position", Offset: 64, Size: 16}},
	}
}

func TestBuildSlots(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewBuilder(dev)
	agg := aggregate(t,
		camera(),
		shader.ResourceBinding{Name: "albedo", Type: shader.ResourceTexture, BindPoint: 1, Space: 1},
		shader.ResourceBinding{Name: "output", Type: shader.ResourceRWTexture, BindPoint: 2, Format: gpu.TextureFormatRGBA16Float},
		shader.ResourceBinding{Name: "linearSampler", Type: shader.ResourceSampler, BindPoint: 3},
	)

	l, err := b.Build(agg, FlagAllowInputAssembler)
	if err != nil {
		t.Fatal(err)
	}
	if l.SlotCount() != 3 {
		t.Fatalf("slots = %d, want 3", l.SlotCount())
	}
	if s := l.Slot(0); s.Kind != gpu.SlotInlineConstants || s.Num32BitValues != 20 {
		t.Fatalf("slot 0 = %+v", s)
	}
	if s := l.Slot(1); s.Kind != gpu.SlotTable || s.Range.Type != gpu.RangeSRV || s.Range.Space != 1 || s.Range.BaseRegister != 1 || s.Range.Count != 1 {
		t.Fatalf("slot 1 = %+v", s)
	}
	if s := l.Slot(2); s.Range.Type != gpu.RangeUAV || s.Range.Shape != gpu.ShapeStorageTexture2D || s.Range.Format != gpu.TextureFormatRGBA16Float {
		t.Fatalf("slot 2 = %+v", s)
	}
	if len(l.Descriptor.StaticSamplers) != 1 {
		t.Fatalf("static samplers = %d", len(l.Descriptor.StaticSamplers))
	}
	smp := l.Descriptor.StaticSamplers[0]
	if smp.Filter != gpu.FilterPoint || smp.Address != gpu.AddressWrap || smp.Compare != gpu.CompareAlways || smp.Register != 3 {
		t.Fatalf("sampler = %+v", smp)
	}
	if i, ok := l.SlotOf("output"); !ok || i != 2 {
		t.Fatalf("SlotOf(output) = %d, %v", i, ok)
	}
	if _, ok := l.SlotOf("linearSampler"); ok {
		t.Fatal("static samplers must not occupy a slot")
	}
	if !l.Native.Descriptor().Flags.Has(gpu.LayoutAllowInputAssembler) {
		t.Fatal("native layout lost its flags")
	}
}

func TestBuildCachesByBlob(t *testing.T) {
	dev := gputest.NewDevice()
	b := NewBuilder(dev)
	agg := aggregate(t, camera())

	first, err := b.Build(agg, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Build(aggregate(t, camera()), 0)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("identical reflection built two layouts")
	}
	if _, err := b.Build(agg, FlagRayTracing); err != nil {
		t.Fatal(err)
	}
	if b.Count() != 2 || dev.Calls(gputest.OpCreateBindingLayout) != 2 {
		t.Fatalf("count = %d, creates = %d, want 2 and 2", b.Count(), dev.Calls(gputest.OpCreateBindingLayout))
	}

	b.Release()
	if b.Count() != 0 || dev.Live() != 0 {
		t.Fatalf("release left %d cached and %d live objects", b.Count(), dev.Live())
	}
}

func TestBuildSerializationFailureCreatesNothing(t *testing.T) {
	tests := []struct {
		name      string
		resources []shader.ResourceBinding
	}{
		{
			name: "register collision",
			resources: []shader.ResourceBinding{
				{Name: "a", Type: shader.ResourceTexture, BindPoint: 1},
				{Name: "b", Type: shader.ResourceStructuredBuffer, BindPoint: 1},
			},
		},
		{
			name: "root cost",
			resources: func() []shader.ResourceBinding {
				var rs []shader.ResourceBinding
				for i := 0; i < 4; i++ {
					rs = append(rs, shader.ResourceBinding{
						Name: string(rune('a' + i)), Type: shader.ResourceConstantBuffer, BindPoint: uint32(i), Size: 64,
						Members: []shader.Member{{Name: "m", Size: 64}},
					})
				}
				return append(rs, shader.ResourceBinding{Name: "tex", Type: shader.ResourceTexture})
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := gputest.NewDevice()
			b := NewBuilder(dev)
			l, err := b.Build(aggregate(t, tt.resources...), 0)
			if !errors.Is(err, gpu.ErrInvalidLayout) {
				t.Fatalf("err = %v, want ErrInvalidLayout", err)
			}
			if l != nil || dev.Calls(gputest.OpCreateBindingLayout) != 0 {
				t.Fatal("a layout was created for an invalid description")
			}
		})
	}
}

func TestBuildDeviceFailure(t *testing.T) {
	dev := gputest.NewDevice()
	boom := errors.New("boom")
	dev.FailOn(gputest.OpCreateBindingLayout, 1, boom)
	b := NewBuilder(dev)
	if _, err := b.Build(aggregate(t, camera()), 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if b.Count() != 0 {
		t.Fatal("failed layout was cached")
	}
}
