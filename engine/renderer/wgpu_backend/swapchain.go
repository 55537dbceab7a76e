package wgpu_backend

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

type swapchain struct {
	mu     *sync.Mutex
	dev    *device
	format gpu.TextureFormat
	native wgpu.TextureFormat
	alpha  wgpu.CompositeAlphaMode

	frameTexture *wgpu.Texture
	frameView    *wgpu.TextureView
}

var _ gpu.Swapchain = &swapchain{}

func newSwapchain(d *device) (*swapchain, error) {
	capabilities := d.surface.GetCapabilities(d.adapter)
	native, format, ok := chooseSurfaceFormat(capabilities.Formats)
	if !ok || len(capabilities.AlphaModes) == 0 {
		return nil, ErrNoSurfaceFormat
	}
	s := &swapchain{
		mu:     &sync.Mutex{},
		dev:    d,
		format: format,
		native: native,
		alpha:  capabilities.AlphaModes[0],
	}
	s.configure(d.width, d.height)
	return s, nil
}

func (s *swapchain) configure(width, height uint32) {
	s.dev.surface.Configure(s.dev.adapter, s.dev.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      s.native,
		Width:       width,
		Height:      height,
		PresentMode: s.dev.presentMode.native(),
		AlphaMode:   s.alpha,
	})
}

func (s *swapchain) Format() gpu.TextureFormat {
	return s.format
}

func (s *swapchain) AcquireNext() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frameTexture != nil {
		return fmt.Errorf("wgpu_backend: previous swapchain image not yet presented")
	}
	tex, err := s.dev.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("wgpu_backend: acquire swapchain image: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("wgpu_backend: create swapchain view: %w", err)
	}
	s.frameTexture = tex
	s.frameView = view
	return nil
}

// currentView returns the view of the acquired image, or nil if none is held.
func (s *swapchain) currentView() *wgpu.TextureView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameView
}

func (s *swapchain) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frameTexture == nil {
		return fmt.Errorf("wgpu_backend: present without an acquired image")
	}
	s.dev.surface.Present()
	s.releaseFrame()
	return nil
}

func (s *swapchain) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseFrame()
}

func (s *swapchain) releaseFrame() {
	if s.frameView != nil {
		s.frameView.Release()
		s.frameView = nil
	}
	if s.frameTexture != nil {
		s.frameTexture.Release()
		s.frameTexture = nil
	}
}

func (s *swapchain) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("wgpu_backend: resize to %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseFrame()
	s.dev.width, s.dev.height = width, height
	s.configure(width, height)
	return nil
}

func (s *swapchain) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseFrame()
}
