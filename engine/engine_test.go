package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// entryCompiler returns the entry point name as byte-code.
type entryCompiler struct{}

func (entryCompiler) Compile(source string, stage shader.Stage, entry string) ([]byte, error) {
	return []byte(entry), nil
}

// fakeWindow runs the update callback a fixed number of times.
type fakeWindow struct {
	frames  int
	running bool
	title   string
	closed  bool

	onUpdate  func()
	onResize  func(width, height uint32)
	onScroll  func(delta float32)
	onKeyDown func(key window.Key)
	onDrag    func(dx, dy float32)
}

var _ window.Window = &fakeWindow{}

func (w *fakeWindow) SetUpdateCallback(callback func())                     { w.onUpdate = callback }
func (w *fakeWindow) SetResizeCallback(callback func(width, height uint32)) { w.onResize = callback }
func (w *fakeWindow) SetScrollCallback(callback func(delta float32))        { w.onScroll = callback }
func (w *fakeWindow) SetKeyDownCallback(callback func(key window.Key))      { w.onKeyDown = callback }
func (w *fakeWindow) SetKeyUpCallback(callback func(key window.Key))        {}
func (w *fakeWindow) SetDragCallback(callback func(dx, dy float32))         { w.onDrag = callback }
func (w *fakeWindow) SetTitle(title string)                                 { w.title = title }
func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor            { return nil }
func (w *fakeWindow) Size() (uint32, uint32)                                { return 800, 600 }
func (w *fakeWindow) IsRunning() bool                                       { return w.running }
func (w *fakeWindow) RequestClose()                                         { w.running = false }
func (w *fakeWindow) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWindow) ProcessMessages() {
	w.running = true
	for i := 0; i < w.frames && w.running; i++ {
		if w.onUpdate != nil {
			w.onUpdate()
		}
	}
}

// steppingClock advances by step on every call.
type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newApp(t *testing.T, frames int) (*application, *gputest.Device, *fakeWindow) {
	t.Helper()
	dev := gputest.NewDevice()
	win := &fakeWindow{frames: frames}
	a, err := NewApplication(
		WithWindow(win),
		WithDevice(dev),
		WithTitle("test"),
		WithRendererOptions(renderer.WithProgramOptions(shader.WithCompiler(entryCompiler{}))),
	)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	t.Cleanup(a.Release)
	app := a.(*application)
	clock := &steppingClock{t: time.Unix(0, 0), step: 20 * time.Millisecond}
	app.now = clock.now
	return app, dev, win
}

func cubeScene(t *testing.T, a Application) scene.Scene {
	t.Helper()
	m, err := a.Renderer().NewMaterial("stone", nil)
	if err != nil {
		t.Fatalf("NewMaterial: %v", err)
	}
	cam := camera.NewCamera(camera.WithController(camera.NewOrbitController(camera.WithRadius(10))))
	return scene.NewScene("cube", cam,
		scene.WithLights(light.NewLight(light.LightTypeDirectional)),
		scene.WithEntities(scene.NewEntity("cube", model.NewCube("cube", 1), m, scene.WithReflective(true))))
}

func TestRunWithoutScene(t *testing.T) {
	a, _, _ := newApp(t, 1)
	if err := a.Run(); !errors.Is(err, ErrNoScene) {
		t.Fatalf("Run = %v, want ErrNoScene", err)
	}
}

func TestRunTicksAndRenders(t *testing.T) {
	a, dev, _ := newApp(t, 3)
	s := cubeScene(t, a)
	if err := a.SetScene(s); err != nil {
		t.Fatalf("SetScene: %v", err)
	}
	if got := s.Camera().Aspect(); got != float32(800)/600 {
		t.Errorf("camera aspect = %v", got)
	}

	var ticks, renders int
	a.SetTickCallback(func(dt float32) { ticks++ })
	a.SetRenderCallback(func(dt float32) { renders++ })
	if err := a.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// three 20ms frames at 60Hz carry 60ms of simulation
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
	if renders != 3 || a.Renderer().Stats().Frames != 3 {
		t.Errorf("renders = %d frames = %d, want 3", renders, a.Renderer().Stats().Frames)
	}
	if got := dev.FakeSwapchain().Presents; got != 3 {
		t.Errorf("presents = %d, want 3", got)
	}
}

func TestSlowFrameDropsTicks(t *testing.T) {
	a, _, _ := newApp(t, 1)
	a.now = (&steppingClock{t: time.Unix(0, 0), step: time.Second}).now
	if err := a.SetScene(cubeScene(t, a)); err != nil {
		t.Fatalf("SetScene: %v", err)
	}
	var ticks int
	a.SetTickCallback(func(dt float32) { ticks++ })
	if err := a.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ticks != maxTicksPerFrame || a.accumulator != 0 {
		t.Errorf("ticks = %d accumulator = %v", ticks, a.accumulator)
	}
}

func TestRunStopsOnFrameError(t *testing.T) {
	a, dev, win := newApp(t, 5)
	if err := a.SetScene(cubeScene(t, a)); err != nil {
		t.Fatalf("SetScene: %v", err)
	}
	dev.StallFences = true

	var renders int
	a.SetRenderCallback(func(dt float32) { renders++ })
	err := a.Run()
	if !errors.Is(err, upload.ErrTimeout) {
		t.Fatalf("Run = %v, want ErrTimeout", err)
	}
	if renders != 1 || win.running {
		t.Errorf("renders = %d running = %v, want the loop stopped after one frame", renders, win.running)
	}
}

func TestResizeAndOrbitInput(t *testing.T) {
	a, dev, win := newApp(t, 0)
	s := cubeScene(t, a)
	if err := a.SetScene(s); err != nil {
		t.Fatalf("SetScene: %v", err)
	}

	win.onResize(1000, 500)
	if got := s.Camera().Aspect(); got != 2 {
		t.Errorf("camera aspect = %v, want 2", got)
	}
	if w, h := a.Renderer().Size(); w != 1000 || h != 500 {
		t.Errorf("renderer size = %dx%d", w, h)
	}
	if sc := dev.FakeSwapchain(); sc.Width != 1000 || sc.Height != 500 {
		t.Errorf("swapchain size = %dx%d", sc.Width, sc.Height)
	}

	cc := s.Camera().Controller()
	radius, azimuth := cc.Radius(), cc.Azimuth()
	win.onScroll(2)
	if cc.Radius() >= radius {
		t.Errorf("scroll up should zoom in: radius %v -> %v", radius, cc.Radius())
	}
	win.onDrag(100, 0)
	if cc.Azimuth() >= azimuth {
		t.Errorf("drag right should orbit left: azimuth %v -> %v", azimuth, cc.Azimuth())
	}

	win.onKeyDown(window.KeyP)
	if !a.profilingEnabled {
		t.Error("P should toggle the profiler on")
	}
}

func TestOrbitControlsDisabled(t *testing.T) {
	dev := gputest.NewDevice()
	win := &fakeWindow{}
	a, err := NewApplication(
		WithWindow(win),
		WithDevice(dev),
		WithOrbitControls(false),
		WithRendererOptions(renderer.WithProgramOptions(shader.WithCompiler(entryCompiler{}))),
	)
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	defer a.Release()
	s := cubeScene(t, a)
	if err := a.SetScene(s); err != nil {
		t.Fatalf("SetScene: %v", err)
	}
	radius := s.Camera().Controller().Radius()
	win.onScroll(2)
	if got := s.Camera().Controller().Radius(); got != radius {
		t.Errorf("radius changed to %v with orbit controls off", got)
	}
}

func TestNewApplicationFailureReleases(t *testing.T) {
	dev := gputest.NewDevice()
	win := &fakeWindow{}
	boom := errors.New("boom")
	dev.FailOn(gputest.OpCreateFence, 1, boom)

	if _, err := NewApplication(WithWindow(win), WithDevice(dev)); !errors.Is(err, boom) {
		t.Fatalf("NewApplication = %v, want boom", err)
	}
	if win.closed {
		t.Error("a window passed in must not be closed")
	}
}
