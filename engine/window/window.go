// Package window is the platform window shim: a GLFW window without a client API whose
// surface descriptor the WebGPU backend presents to, plus the input callbacks the
// application wires to the camera.
package window

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window provides platform windowing and input event handling.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving the new framebuffer size in pixels
	SetResizeCallback(callback func(width, height uint32))

	// SetScrollCallback sets the callback for mouse scroll wheel events.
	//
	// Parameters:
	//   - callback: function receiving scroll delta (positive = up/zoom in, negative = down/zoom out)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	//
	// Parameters:
	//   - callback: function receiving the key
	SetKeyDownCallback(callback func(key Key))

	// SetKeyUpCallback sets the callback for key release events.
	//
	// Parameters:
	//   - callback: function receiving the key
	SetKeyUpCallback(callback func(key Key))

	// SetDragCallback sets the callback for cursor movement while the left or middle
	// mouse button is held.
	//
	// Parameters:
	//   - callback: function receiving the cursor delta in pixels since the last event
	SetDragCallback(callback func(dx, dy float32))

	// SetTitle replaces the title bar text.
	//
	// Parameters:
	//   - title: the new title
	SetTitle(title string)

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor for the window, created by the
	// wgpuglfw bridge for the current platform.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil after Close
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Size returns the framebuffer size, which differs from the window size on high-DPI
	// displays.
	//
	// Returns:
	//   - width, height: the size in pixels
	Size() (width, height uint32)

	// IsRunning returns true until the window is asked to close.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// RequestClose makes the message loop exit after the current iteration.
	RequestClose()

	// ProcessMessages runs the window message loop on the calling thread.
	// Blocks until the window is asked to close. Calls the update callback each iteration.
	ProcessMessages()

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was already closed
	Close() error
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	mu sync.Mutex

	title string

	minWidth, minHeight int
	maxWidth, maxHeight int

	// width and height hold the framebuffer size.
	width, height int

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	drag dragState

	onUpdate  func()
	onResize  func(width, height uint32)
	onScroll  func(delta float32)
	onKeyDown func(key Key)
	onKeyUp   func(key Key)
	onDrag    func(dx, dy float32)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a platform window. Must be called from the main goroutine;
// the calling goroutine stays locked to its OS thread.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: error if the size limits are inconsistent or the platform window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-rt",
		minWidth:  320,
		minHeight: 200,
		maxWidth:  3840,
		maxHeight: 2160,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("window: create: %w", err)
	}
	return w, nil
}

// validate checks the size limits and clamps the initial size into them.
func (w *engineWindow) validate() error {
	if w.minWidth <= 0 || w.minHeight <= 0 {
		return fmt.Errorf("window: minimum size %dx%d must be positive", w.minWidth, w.minHeight)
	}
	if w.minWidth > w.maxWidth || w.minHeight > w.maxHeight {
		return fmt.Errorf("window: minimum size %dx%d exceeds maximum %dx%d",
			w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)
	}
	w.width = min(max(w.width, w.minWidth), w.maxWidth)
	w.height = min(max(w.height, w.minHeight), w.maxHeight)
	return nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height uint32)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyDownCallback(callback func(key Key)) {
	w.onKeyDown = callback
}

func (w *engineWindow) SetKeyUpCallback(callback func(key Key)) {
	w.onKeyUp = callback
}

func (w *engineWindow) SetDragCallback(callback func(dx, dy float32)) {
	w.onDrag = callback
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w, title)
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) Size() (uint32, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return uint32(w.width), uint32(w.height)
}

func (w *engineWindow) setSize(width, height int) {
	w.mu.Lock()
	w.width, w.height = width, height
	w.mu.Unlock()

	// minimised windows report a zero framebuffer
	if width > 0 && height > 0 && w.onResize != nil {
		w.onResize(uint32(width), uint32(height))
	}
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	platformRequestClose(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
	}
}

// dragState turns absolute cursor positions into deltas while a drag button is held.
type dragState struct {
	held         int
	valid        bool
	lastX, lastY float64
}

// press records a drag button going down at the given cursor position.
func (d *dragState) press(x, y float64) {
	d.held++
	d.lastX, d.lastY = x, y
	d.valid = true
}

// release records a drag button going up. The drag ends when no button is held.
func (d *dragState) release() {
	if d.held > 0 {
		d.held--
	}
	if d.held == 0 {
		d.valid = false
	}
}

// move returns the cursor delta since the previous event and whether a drag is active.
func (d *dragState) move(x, y float64) (float32, float32, bool) {
	if d.held == 0 || !d.valid {
		return 0, 0, false
	}
	dx, dy := x-d.lastX, y-d.lastY
	d.lastX, d.lastY = x, y
	return float32(dx), float32(dy), true
}
