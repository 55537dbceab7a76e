package upload

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
)

func TestExecuteAndWaitAdvancesFence(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewController(dev)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 3; i++ {
		if err := c.Record(func(cl gpu.CommandList) error { cl.Dispatch(1, 1, 1); return nil }); err != nil {
			t.Fatal(err)
		}
		if c.FenceValue() != uint64(i) || dev.Fences[0].CompletedValue() != uint64(i) {
			t.Fatalf("after submit %d: fence value %d, completed %d", i, c.FenceValue(), dev.Fences[0].CompletedValue())
		}
	}
	if dev.SubmittedCount(gputest.OpDispatch) != 3 {
		t.Fatalf("dispatches = %d", dev.SubmittedCount(gputest.OpDispatch))
	}
}

func TestExecuteAndWaitTimeout(t *testing.T) {
	dev := gputest.NewDevice()
	dev.StallFences = true
	c, err := NewController(dev, WithTimeout(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	err = c.Record(func(gpu.CommandList) error { return nil })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestRecordErrorSubmitsNothing(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewController(dev)
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	if err := c.Record(func(gpu.CommandList) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if dev.Calls(gputest.OpSubmit) != 0 {
		t.Fatal("failed recording was submitted")
	}
}

func TestUploadBuffer(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewController(dev)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	buf, err := c.UploadBuffer("vb", data, gpu.BufferUsageVertex)
	if err != nil {
		t.Fatal(err)
	}
	fake := buf.(*gputest.Buffer)
	if !bytes.Equal(fake.Bytes(), data) {
		t.Fatalf("device buffer = %v", fake.Bytes())
	}
	if !buf.Usage().Has(gpu.BufferUsageCopyDst) {
		t.Fatal("destination lacks copy-dst usage")
	}
	if dev.Live() != 2 {
		t.Fatalf("live objects = %d, want fence and buffer", dev.Live())
	}

	direct, err := c.UploadBuffer("instances", data, gpu.BufferUsageUpload)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Calls(gputest.OpSubmit) != 1 || direct.(*gputest.Buffer).Writes != 1 {
		t.Fatal("upload-heap buffer went through a staging copy")
	}
}

func TestUploadBufferFailureLeaksNothing(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewController(dev)
	if err != nil {
		t.Fatal(err)
	}
	dev.FailOn(gputest.OpSubmit, 1, errors.New("device lost"))
	if _, err := c.UploadBuffer("vb", []byte{1, 2, 3, 4}, gpu.BufferUsageVertex); err == nil {
		t.Fatal("expected error")
	}
	if dev.Live() != 1 {
		t.Fatalf("live objects = %d, want only the fence", dev.Live())
	}
}

func TestUploadMeshAndTexture(t *testing.T) {
	dev := gputest.NewDevice()
	c, err := NewController(dev)
	if err != nil {
		t.Fatal(err)
	}

	cube := model.NewCube("cube", 1)
	g, err := c.UploadMesh(cube)
	if err != nil {
		t.Fatal(err)
	}
	if cube.GPU() != g || g.VertexBuffer.Size() != 8*32 || g.IndexBuffer.Size() != 36*4 {
		t.Fatalf("mesh buffers = %d / %d bytes", g.VertexBuffer.Size(), g.IndexBuffer.Size())
	}
	if !g.VertexBuffer.Usage().Has(gpu.BufferUsageAccelerationStructureInput) {
		t.Fatal("vertex buffer cannot feed acceleration structure builds")
	}
	again, err := c.UploadMesh(cube)
	if err != nil || again != g {
		t.Fatal("second upload did not reuse the buffers")
	}

	pixels := []byte{255, 0, 0, 255, 0, 255, 0, 255}
	tex, err := model.NewTexture("red-green", pixels, 2, 1, model.TextureFormatBGRA32)
	if err != nil {
		t.Fatal(err)
	}
	gt, err := c.UploadTexture(tex)
	if err != nil {
		t.Fatal(err)
	}
	fake := gt.(*gputest.Texture)
	if tex.GPU() != gt || fake.Uploads != 1 || !bytes.Equal(fake.Data, pixels) {
		t.Fatalf("texture upload: %+v", fake)
	}
	if gt.Format() != gpu.TextureFormatBGRA8Unorm {
		t.Fatalf("format = %s", gt.Format())
	}
}
