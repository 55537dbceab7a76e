// Package engine holds the application context: the window, the device, the upload
// controller, the renderer and the texture loader, created once in main and passed
// explicitly to whatever needs them.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/loader"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/wgpu_backend"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
)

// ErrNoScene is returned by Run when no scene was set.
var ErrNoScene = errors.New("engine: no scene set")

// maxTicksPerFrame bounds the fixed-rate ticks run to catch up after a slow frame.
const maxTicksPerFrame = 5

// dragSpeed converts cursor pixels into orbit radians.
const dragSpeed = 0.005

// application implements the Application interface.
type application struct {
	mu *sync.Mutex

	window     window.Window
	ownsWindow bool
	device     gpu.Device
	ownsDevice bool
	ctrl       upload.Controller
	renderer   renderer.Renderer
	loader     loader.Loader

	windowOptions   []window.WindowBuilderOption
	deviceOptions   []wgpu_backend.DeviceBuilderOption
	uploadOptions   []upload.ControllerBuilderOption
	rendererOptions []renderer.RendererBuilderOption
	loaderOptions   []loader.LoaderBuilderOption

	profiler         *profiler.Profiler
	profilingEnabled bool
	title            string

	scene         scene.Scene
	orbitControls bool

	tickRate         time.Duration
	accumulator      time.Duration
	tickCallback     func(deltaTime float32)
	renderCallback   func(deltaTime float32)
	renderFrameLimit time.Duration

	now       func() time.Time
	lastFrame time.Time
	err       error
}

// Application is the context every subsystem hangs off. It drives a single-threaded loop
// on the window's message pump: fixed-rate ticks that advance the scene, then one rendered
// and presented frame.
type Application interface {
	// Window returns the window the application presents to.
	//
	// Returns:
	//   - window.Window: the window
	Window() window.Window

	// Device returns the GPU device.
	//
	// Returns:
	//   - gpu.Device: the device
	Device() gpu.Device

	// Uploader returns the upload controller every submission goes through.
	//
	// Returns:
	//   - upload.Controller: the controller
	Uploader() upload.Controller

	// Renderer returns the hybrid renderer. Use it to create materials before SetScene.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Loader returns the texture loader.
	//
	// Returns:
	//   - loader.Loader: the loader
	Loader() loader.Loader

	// SetScene initializes the renderer with a scene and makes it the scene Run draws.
	// The camera aspect ratio is set from the render size.
	//
	// Parameters:
	//   - s: the scene
	//
	// Returns:
	//   - error: the renderer initialization error; the previous scene stays unset on failure
	SetScene(s scene.Scene) error

	// Scene returns the current scene, or nil.
	//
	// Returns:
	//   - scene.Scene: the scene
	Scene() scene.Scene

	// EnableProfiler enables per-second frame statistics in the log and the window title.
	EnableProfiler()

	// DisableProfiler disables frame statistics.
	DisableProfiler()

	// SetTickRate sets the fixed rate at which the scene and the tick callback advance.
	//
	// Parameters:
	//   - fps: ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called on every fixed-rate tick, after the
	// scene has advanced.
	//
	// Parameters:
	//   - callback: receives the tick length in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called once per frame before rendering.
	//
	// Parameters:
	//   - callback: receives the time since the previous frame in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run drives the loop on the calling goroutine until the window closes or a frame
	// fails.
	//
	// Returns:
	//   - error: ErrNoScene, or the first frame error
	Run() error

	// Quit asks the loop to exit after the current frame. Safe to call more than once.
	Quit()

	// Release frees the renderer, the upload controller, the loader and, when the
	// application created them, the device and the window.
	Release()
}

var _ Application = &application{}

// NewApplication creates the window, the device, the upload controller, the renderer and
// the loader, in that order. Anything created before a failure is released.
//
// Parameters:
//   - options: functional options for application configuration
//
// Returns:
//   - Application: the application, without a scene
//   - error: the first creation error
func NewApplication(options ...ApplicationBuilderOption) (Application, error) {
	a := &application{
		mu:            &sync.Mutex{},
		profiler:      profiler.NewProfiler(),
		title:         "oxy-rt",
		orbitControls: true,
		tickRate:      time.Second / 60,
		now:           time.Now,
	}
	for _, opt := range options {
		opt(a)
	}

	if a.window == nil {
		w, err := window.NewWindow(append([]window.WindowBuilderOption{window.WithTitle(a.title)}, a.windowOptions...)...)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		a.window, a.ownsWindow = w, true
	}
	width, height := a.window.Size()

	if a.device == nil {
		opts := append([]wgpu_backend.DeviceBuilderOption{
			wgpu_backend.WithSize(width, height),
			wgpu_backend.WithLabel(a.title),
		}, a.deviceOptions...)
		dev, err := wgpu_backend.NewDevice(a.window.SurfaceDescriptor(), opts...)
		if err != nil {
			a.Release()
			return nil, fmt.Errorf("engine: create device: %w", err)
		}
		a.device, a.ownsDevice = dev, true
	}

	ctrl, err := upload.NewController(a.device, a.uploadOptions...)
	if err != nil {
		a.Release()
		return nil, fmt.Errorf("engine: create upload controller: %w", err)
	}
	a.ctrl = ctrl

	opts := append([]renderer.RendererBuilderOption{
		renderer.WithSize(width, height),
		renderer.WithLabel(a.title),
	}, a.rendererOptions...)
	r, err := renderer.NewRenderer(a.ctrl, opts...)
	if err != nil {
		a.Release()
		return nil, fmt.Errorf("engine: create renderer: %w", err)
	}
	a.renderer = r

	a.loader = loader.NewLoader(loader.BackendTypeImage, a.loaderOptions...)
	a.wireWindow()

	logger.Logger().Info("application created", "title", a.title, "width", width, "height", height)
	return a, nil
}

// wireWindow connects the window's callbacks to the loop, the renderer and the camera.
func (a *application) wireWindow() {
	a.window.SetUpdateCallback(a.frame)
	a.window.SetResizeCallback(a.resize)

	a.window.SetScrollCallback(func(delta float32) {
		if cc := a.cameraController(); cc != nil {
			cc.Zoom(delta)
		}
	})
	a.window.SetDragCallback(func(dx, dy float32) {
		if cc := a.cameraController(); cc != nil {
			cc.Orbit(-dx*dragSpeed, dy*dragSpeed)
		}
	})
	a.window.SetKeyDownCallback(func(key window.Key) {
		if key == window.KeyP {
			a.mu.Lock()
			a.profilingEnabled = !a.profilingEnabled
			a.mu.Unlock()
			return
		}
		cc := a.cameraController()
		if cc == nil {
			return
		}
		switch key {
		case window.KeyLeft, window.KeyA:
			cc.OrbitLeft()
		case window.KeyRight, window.KeyD:
			cc.OrbitRight()
		case window.KeyUp, window.KeyW:
			cc.OrbitUp()
		case window.KeyDown, window.KeyS:
			cc.OrbitDown()
		}
	})
}

// cameraController returns the orbit controller of the current scene's camera, or nil
// when orbit controls are off.
func (a *application) cameraController() camera.CameraController {
	a.mu.Lock()
	s, enabled := a.scene, a.orbitControls
	a.mu.Unlock()
	if !enabled || s == nil || s.Camera() == nil {
		return nil
	}
	return s.Camera().Controller()
}

func (a *application) resize(width, height uint32) {
	if err := a.renderer.Resize(width, height); err != nil {
		a.fail(fmt.Errorf("engine: resize: %w", err))
		return
	}
	a.mu.Lock()
	s := a.scene
	a.mu.Unlock()
	if s != nil && s.Camera() != nil && height > 0 {
		s.Camera().SetAspect(float32(width) / float32(height))
	}
	logger.Logger().Debug("resized", "width", width, "height", height)
}

func (a *application) Window() window.Window {
	return a.window
}

func (a *application) Device() gpu.Device {
	return a.device
}

func (a *application) Uploader() upload.Controller {
	return a.ctrl
}

func (a *application) Renderer() renderer.Renderer {
	return a.renderer
}

func (a *application) Loader() loader.Loader {
	return a.loader
}

func (a *application) SetScene(s scene.Scene) error {
	if s == nil {
		return ErrNoScene
	}
	if err := a.renderer.Initialize(s); err != nil {
		a.mu.Lock()
		a.scene = nil
		a.mu.Unlock()
		return fmt.Errorf("engine: set scene %q: %w", s.Name(), err)
	}
	if width, height := a.renderer.Size(); s.Camera() != nil && height > 0 {
		s.Camera().SetAspect(float32(width) / float32(height))
	}

	a.mu.Lock()
	a.scene = s
	a.mu.Unlock()
	logger.Logger().Info("scene set", "scene", s.Name(), "entities", len(s.Entities()))
	return nil
}

func (a *application) Scene() scene.Scene {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scene
}

func (a *application) EnableProfiler() {
	a.mu.Lock()
	a.profilingEnabled = true
	a.mu.Unlock()
}

func (a *application) DisableProfiler() {
	a.mu.Lock()
	a.profilingEnabled = false
	a.mu.Unlock()
}

func (a *application) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	a.mu.Lock()
	a.tickRate = time.Duration(float64(time.Second) / fps)
	a.mu.Unlock()
}

func (a *application) SetTickCallback(callback func(deltaTime float32)) {
	a.mu.Lock()
	a.tickCallback = callback
	a.mu.Unlock()
}

func (a *application) SetRenderCallback(callback func(deltaTime float32)) {
	a.mu.Lock()
	a.renderCallback = callback
	a.mu.Unlock()
}

func (a *application) SetRenderFrameLimit(fps float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if fps <= 0 {
		a.renderFrameLimit = 0
		return
	}
	a.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (a *application) Run() error {
	a.mu.Lock()
	if a.scene == nil {
		a.mu.Unlock()
		return ErrNoScene
	}
	a.err = nil
	a.accumulator = 0
	a.lastFrame = a.now()
	a.mu.Unlock()

	a.window.ProcessMessages()

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// frame is the window update callback: one step of the loop, stopping it on error.
func (a *application) frame() {
	if err := a.step(a.now()); err != nil {
		a.fail(err)
	}
}

// step advances the scene in fixed ticks up to now, then renders and presents one frame.
func (a *application) step(now time.Time) error {
	a.mu.Lock()
	s := a.scene
	dt := now.Sub(a.lastFrame)
	a.lastFrame = now
	a.accumulator += dt
	tickRate, tickCallback, renderCallback := a.tickRate, a.tickCallback, a.renderCallback
	profiling, limit := a.profilingEnabled, a.renderFrameLimit
	a.mu.Unlock()
	if s == nil {
		return ErrNoScene
	}

	ticks := 0
	for ; a.accumulator >= tickRate && ticks < maxTicksPerFrame; ticks++ {
		tickDt := float32(tickRate.Seconds())
		s.Update(tickDt)
		if tickCallback != nil {
			tickCallback(tickDt)
		}
		a.accumulator -= tickRate
	}
	if ticks == maxTicksPerFrame && a.accumulator >= tickRate {
		logger.Logger().Warn("dropping ticks after a slow frame", "behind", a.accumulator)
		a.accumulator = 0
	}

	if renderCallback != nil {
		renderCallback(float32(dt.Seconds()))
	}
	if err := a.renderer.Render(s); err != nil {
		return fmt.Errorf("engine: render frame: %w", err)
	}

	if profiling {
		st := a.renderer.Stats()
		if a.profiler.Tick(
			"frames", st.Frames,
			"blas", st.BLASCount,
			"tlasInstances", st.TLASInstances,
			"descriptorWrites", st.DescriptorWrites,
			"pipelines", st.Pipelines,
		) {
			a.window.SetTitle(fmt.Sprintf("%s | %.0f fps", a.title, a.profiler.Last().FPS))
		}
	}

	if limit > 0 {
		if remaining := limit - a.now().Sub(now); remaining > 0 {
			time.Sleep(remaining)
		}
	}
	return nil
}

// fail records the first loop error and closes the window so Run returns it.
func (a *application) fail(err error) {
	a.mu.Lock()
	first := a.err == nil
	if first {
		a.err = err
	}
	a.mu.Unlock()
	if first {
		logger.Logger().Error("application stopped", "error", err)
	}
	a.window.RequestClose()
}

func (a *application) Quit() {
	a.window.RequestClose()
}

func (a *application) Release() {
	if a.renderer != nil {
		a.renderer.Release()
		a.renderer = nil
	}
	if a.ctrl != nil {
		a.ctrl.Release()
		a.ctrl = nil
	}
	if a.loader != nil {
		a.loader.Release()
		a.loader = nil
	}
	if a.device != nil && a.ownsDevice {
		a.device.Release()
	}
	a.device = nil
	if a.window != nil && a.ownsWindow {
		if err := a.window.Close(); err != nil {
			logger.Logger().Warn("close window", "error", err)
		}
	}
	a.window = nil
}
