package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

// entryCompiler returns the entry point name as byte-code.
type entryCompiler struct{}

func (entryCompiler) Compile(source string, stage shader.Stage, entry string) ([]byte, error) {
	return []byte(entry), nil
}

func newRenderer(t *testing.T) (*gputest.Device, Renderer) {
	t.Helper()
	dev := gputest.NewDevice()
	ctrl, err := upload.NewController(dev)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRenderer(ctrl, WithLabel("test"), WithProgramOptions(shader.WithCompiler(entryCompiler{})))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return dev, r
}

func texture(t *testing.T, key string) *model.Texture {
	t.Helper()
	tex, err := model.NewTexture(key, make([]byte, 2*2*4), 2, 2, model.TextureFormatRGBA32)
	if err != nil {
		t.Fatal(err)
	}
	return tex
}

func cubeScene(t *testing.T, r Renderer) (scene.Scene, material.Instance) {
	t.Helper()
	m, err := r.NewMaterial("marble", nil,
		material.WithColor("baseColor", [4]float32{0.8, 0.8, 0.9, 1}),
		material.WithFloat("reflectivity", 0.5),
		material.WithTexture("albedo", texture(t, "marble")))
	if err != nil {
		t.Fatalf("NewMaterial: %v", err)
	}
	s := scene.NewScene("cube", camera.NewCamera(),
		scene.WithLights(light.NewLight(light.LightTypeDirectional)),
		scene.WithEntities(scene.NewEntity("cube", model.NewCube("cube", 1), m, scene.WithReflective(true))))
	return s, m
}

func TestRenderBeforeInitialize(t *testing.T) {
	_, r := newRenderer(t)
	s, _ := cubeScene(t, r)
	if err := r.Render(s); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Render = %v, want ErrNotInitialized", err)
	}
}

func TestInitializeSingleCube(t *testing.T) {
	dev, r := newRenderer(t)
	s, m := cubeScene(t, r)
	if err := r.Initialize(s); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := r.Stats()
	if st.TableCapacity != GlobalSlots+1 || st.TableReserved != st.TableCapacity {
		t.Fatalf("table capacity %d reserved %d", st.TableCapacity, st.TableReserved)
	}
	if st.BLASCount != 1 || st.TLASInstances != 1 {
		t.Fatalf("blas %d instances %d", st.BLASCount, st.TLASInstances)
	}
	if st.CompositePipelines != 1 {
		t.Fatalf("composite pipelines = %d", st.CompositePipelines)
	}
	if len(dev.RayTracingPipelines) != 1 {
		t.Fatalf("ray tracing pipelines = %d", len(dev.RayTracingPipelines))
	}
	if _, ok := m.Region(); !ok {
		t.Fatal("material not bound to the table")
	}

	if err := r.Render(s); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := dev.FakeSwapchain().Presents; got != 1 {
		t.Fatalf("presents = %d", got)
	}
	if got := dev.SubmittedCount(gputest.OpDispatchRays); got != 1 {
		t.Fatalf("dispatches = %d", got)
	}
	if got := dev.SubmittedCount(gputest.OpDrawIndexed); got != 2 {
		t.Fatalf("draws = %d, want one G-buffer and one composite draw", got)
	}
	if r.Stats().Frames != 1 {
		t.Fatalf("frames = %d", r.Stats().Frames)
	}
}

func TestTimedOutFrameDiscardsSwapchainImage(t *testing.T) {
	dev, r := newRenderer(t)
	s, _ := cubeScene(t, r)
	if err := r.Initialize(s); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	dev.StallFences = true
	if err := r.Render(s); !errors.Is(err, upload.ErrTimeout) {
		t.Fatalf("Render = %v, want ErrTimeout", err)
	}
	sc := dev.FakeSwapchain()
	if sc.Outstanding() || sc.Discards != 1 || sc.Presents != 0 {
		t.Fatalf("after timeout: outstanding %v discards %d presents %d", sc.Outstanding(), sc.Discards, sc.Presents)
	}

	dev.StallFences = false
	if err := r.Render(s); err != nil {
		t.Fatalf("Render after timeout: %v", err)
	}
	if sc.Acquired != 2 || sc.Presents != 1 || sc.Outstanding() {
		t.Fatalf("after retry: acquired %d presents %d outstanding %v", sc.Acquired, sc.Presents, sc.Outstanding())
	}
	if r.Stats().Frames != 1 {
		t.Fatalf("frames = %d, want only the retried frame counted", r.Stats().Frames)
	}
}

func TestTextureSwapRewritesOneDescriptor(t *testing.T) {
	_, r := newRenderer(t)
	s, m := cubeScene(t, r)
	if err := r.Initialize(s); err != nil {
		t.Fatal(err)
	}
	if err := r.Render(s); err != nil {
		t.Fatal(err)
	}
	before := r.Stats().DescriptorWrites

	granite := texture(t, "granite")
	if err := m.SetTexture("albedo", granite); err != nil {
		t.Fatal(err)
	}
	if err := r.Render(s); err != nil {
		t.Fatal(err)
	}
	if got := r.Stats().DescriptorWrites - before; got != 1 {
		t.Fatalf("descriptor writes = %d, want 1", got)
	}
	if granite.GPU() == nil {
		t.Fatal("new texture not uploaded")
	}
	if err := r.Render(s); err != nil {
		t.Fatal(err)
	}
	if got := r.Stats().DescriptorWrites - before; got != 1 {
		t.Fatalf("unchanged frame wrote %d descriptors", got-1)
	}
}

func TestInitializeFailureReleasesEverything(t *testing.T) {
	dev, r := newRenderer(t)
	s, m := cubeScene(t, r)
	live := dev.Live()

	boom := errors.New("boom")
	dev.FailOn(gputest.OpCreateRayTracingPipeline, 1, boom)
	if err := r.Initialize(s); !errors.Is(err, boom) {
		t.Fatalf("Initialize = %v, want boom", err)
	}
	if got := dev.Live(); got != live {
		t.Fatalf("live objects = %d, want %d", got, live)
	}
	if _, ok := m.Region(); ok {
		t.Fatal("material still bound after failed initialize")
	}
	if err := r.Render(s); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Render = %v, want ErrNotInitialized", err)
	}

	if err := r.Initialize(s); err != nil {
		t.Fatalf("retry Initialize: %v", err)
	}
}

func TestInitializeRequiresEntities(t *testing.T) {
	_, r := newRenderer(t)
	if err := r.Initialize(scene.NewScene("empty", camera.NewCamera())); err == nil {
		t.Fatal("empty scene initialized")
	}
}

func TestResizeRecreatesTargets(t *testing.T) {
	dev, r := newRenderer(t)
	s, _ := cubeScene(t, r)
	if err := r.Initialize(s); err != nil {
		t.Fatal(err)
	}
	textures := len(dev.Textures)
	if err := r.Resize(0, 300); err != nil {
		t.Fatal(err)
	}
	if w, h := r.Size(); w != 800 || h != 600 {
		t.Fatalf("zero resize changed size to %dx%d", w, h)
	}

	if err := r.Resize(1024, 768); err != nil {
		t.Fatal(err)
	}
	if got := len(dev.Textures) - textures; got != 5 {
		t.Fatalf("created %d textures on resize", got)
	}
	if sc := dev.FakeSwapchain(); sc.Width != 1024 || sc.Height != 768 {
		t.Fatalf("swapchain %dx%d", sc.Width, sc.Height)
	}
	if err := r.Render(s); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseFreesEverything(t *testing.T) {
	dev, r := newRenderer(t)
	s, _ := cubeScene(t, r)
	if err := r.Initialize(s); err != nil {
		t.Fatal(err)
	}
	if err := r.Render(s); err != nil {
		t.Fatal(err)
	}
	r.Release()
	if got := r.Stats(); got.Pipelines != 0 || got.Layouts != 0 {
		t.Fatalf("stats after release = %+v", got)
	}
	for _, p := range dev.RayTracingPipelines {
		if !p.Released {
			t.Fatal("ray tracing pipeline not released")
		}
	}
}
