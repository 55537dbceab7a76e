package shader_table

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
)

func newPipeline(t *testing.T, dev *gputest.Device) gpu.RayTracingPipeline {
	t.Helper()
	p, err := dev.CreateRayTracingPipeline(gpu.RayTracingPipelineDescriptor{
		Label:         "reflections",
		Layout:        &gputest.BindingLayout{},
		RayGeneration: "rayGen",
		Miss:          []string{"miss"},
		HitGroups:     []gpu.HitGroupDescriptor{{Name: "HitGroup", ClosestHit: "closestHit"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestComputeLayoutRecordSizing(t *testing.T) {
	limits := gpu.DefaultLimits()
	tests := []struct {
		name     string
		payloads []int
		stride   uint64
	}{
		{"identifier only", []int{0}, 32},
		{"one word", []int{4}, 64},
		{"exact multiple", []int{32}, 64},
		{"max wins", []int{8, 40, 0}, 96},
		{"material payload", []int{72 - 32, 8}, 96},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits []Record
			for _, n := range tt.payloads {
				hits = append(hits, Record{Export: "HitGroup", Payload: make([]byte, n)})
			}
			l := ComputeLayout(limits, [3][]Record{{{Export: "rayGen"}}, {{Export: "miss"}}, hits})
			s := l.Section(SectionHitGroup)
			if s.Stride != tt.stride {
				t.Fatalf("stride = %d, want %d", s.Stride, tt.stride)
			}
			for _, n := range tt.payloads {
				if s.Stride < uint64(limits.ShaderIdentifierSize)+uint64(n) {
					t.Fatalf("stride %d smaller than record of %d payload bytes", s.Stride, n)
				}
			}
			if s.Stride%uint64(limits.ShaderRecordAlignment) != 0 {
				t.Fatalf("stride %d not record aligned", s.Stride)
			}
			for i, sec := range l.Sections {
				if sec.Offset%uint64(limits.ShaderTableAlignment) != 0 {
					t.Fatalf("section %d at %d not table aligned", i, sec.Offset)
				}
			}
			if s.Size != s.Stride*uint64(len(tt.payloads)) || l.Size != s.Offset+s.Size {
				t.Fatalf("section size %d, table size %d", s.Size, l.Size)
			}
		})
	}
}

func TestBuildWritesRecords(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPipeline(t, dev)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	tbl, err := Build(dev, p, [3][]Record{
		{{Export: "rayGen"}},
		{{Export: "miss"}},
		{{Export: "HitGroup", Payload: payload}, {Export: "HitGroup"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	data := tbl.Buffer().(*gputest.Buffer).Bytes()
	rayGen, miss, hit := tbl.Regions()
	if rayGen.Offset != 0 || miss.Offset != 64 || hit.Offset != 128 || hit.Stride != 64 || hit.Size != 128 {
		t.Fatalf("regions = %+v %+v %+v", rayGen, miss, hit)
	}
	if !bytes.Equal(data[:32], gputest.Identifier("reflections", "rayGen", 32)) {
		t.Fatal("ray generation identifier not written")
	}
	if !bytes.Equal(data[64:96], gputest.Identifier("reflections", "miss", 32)) {
		t.Fatal("miss identifier not written")
	}
	hitID := gputest.Identifier("reflections", "HitGroup", 32)
	if !bytes.Equal(data[128:160], hitID) || !bytes.Equal(data[192:224], hitID) {
		t.Fatal("hit group identifiers not written")
	}
	if !bytes.Equal(data[160:168], payload) {
		t.Fatal("payload not written after the identifier")
	}

	d := tbl.DispatchRays(800, 600, 0)
	if d.Width != 800 || d.Depth != 1 || d.HitGroup != hit {
		t.Fatalf("dispatch = %+v", d)
	}
}

func TestBuildErrors(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPipeline(t, dev)

	_, err := Build(dev, p, [3][]Record{{{Export: "rayGen"}}, {{Export: "shadowMiss"}}, nil})
	if !errors.Is(err, ErrUnknownExport) {
		t.Fatalf("err = %v, want ErrUnknownExport", err)
	}
	if _, err := Build(dev, p, [3][]Record{nil, {{Export: "miss"}}, nil}); err == nil {
		t.Fatal("table without ray generation record built")
	}
	if dev.Live() != 1 {
		t.Fatalf("live objects = %d, want only the pipeline", dev.Live())
	}
}

func TestUpdatePayloadWritesOnlyChanges(t *testing.T) {
	dev := gputest.NewDevice()
	p := newPipeline(t, dev)
	tbl, err := Build(dev, p, [3][]Record{
		{{Export: "rayGen"}},
		{{Export: "miss"}},
		{{Export: "HitGroup", Payload: []byte{1, 2, 3, 4}}, {Export: "HitGroup", Payload: []byte{9}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	buf := tbl.Buffer().(*gputest.Buffer)
	writes := buf.Writes

	if ok, err := tbl.UpdatePayload(SectionHitGroup, 0, []byte{1, 2, 3, 4}); ok || err != nil {
		t.Fatalf("identical payload rewritten: %v %v", ok, err)
	}
	if ok, err := tbl.UpdatePayload(SectionHitGroup, 1, []byte{7, 7}); !ok || err != nil {
		t.Fatalf("changed payload not written: %v %v", ok, err)
	}
	if buf.Writes != writes+1 {
		t.Fatalf("writes = %d, want %d", buf.Writes, writes+1)
	}
	_, _, hit := tbl.Regions()
	rec := buf.Bytes()[hit.Offset+hit.Stride:]
	if !bytes.Equal(rec[32:35], []byte{7, 7, 0}) {
		t.Fatalf("record 1 payload = %v", rec[32:35])
	}
	if !bytes.Equal(rec[:32], gputest.Identifier("reflections", "HitGroup", 32)) {
		t.Fatal("identifier overwritten by the payload update")
	}

	if _, err := tbl.UpdatePayload(SectionHitGroup, 2, nil); err == nil {
		t.Fatal("out of range record accepted")
	}
	if _, err := tbl.UpdatePayload(SectionMiss, 0, make([]byte, 1)); err == nil {
		t.Fatal("payload larger than the miss stride accepted")
	}
}
