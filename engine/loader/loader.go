package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// LoaderBackendType identifies the image decoding backend to use.
type LoaderBackendType int

const (
	// BackendTypeImage selects the imaging backend (PNG, JPEG, GIF, BMP, TIFF, WebP).
	BackendTypeImage LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	textureCache map[string]*model.Texture

	backend loaderBackend

	flipVertical bool
	format       model.TextureFormat
	workers      int
	pool         worker.DynamicWorkerPool
}

// Loader decodes image files into textures and caches them by path. Mesh data is
// produced procedurally by the model package; the loader only imports textures.
type Loader interface {
	// LoadTexture decodes an image file and caches the result.
	// If the texture is already cached (by file path), the cached version is returned.
	//
	// Parameters:
	//   - path: the file path of the image
	//
	// Returns:
	//   - *model.Texture: the decoded texture, not yet uploaded
	//   - error: error if the format is unsupported or decoding fails
	LoadTexture(path string) (*model.Texture, error)

	// LoadTextures decodes several image files in parallel on the loader's worker pool.
	// Results are returned in the order of paths.
	//
	// Parameters:
	//   - paths: the file paths of the images
	//
	// Returns:
	//   - []*model.Texture: the decoded textures, nil where decoding failed
	//   - error: every decoding error joined, nil if all succeeded
	LoadTextures(paths ...string) ([]*model.Texture, error)

	// LoadReader decodes an image from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the texture
	//   - r: the reader providing encoded image data
	//
	// Returns:
	//   - *model.Texture: the decoded texture
	//   - error: error if decoding fails
	LoadReader(name string, r io.Reader) (*model.Texture, error)

	// Get retrieves a cached texture by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - *model.Texture: the cached texture or nil
	Get(name string) *model.Texture

	// Textures returns a copy of the texture cache.
	//
	// Returns:
	//   - map[string]*model.Texture: all cached textures keyed by name
	Textures() map[string]*model.Texture

	// Release stops the worker pool. The cache stays readable.
	Release()
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeImage)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:           sync.RWMutex{},
		textureCache: make(map[string]*model.Texture),
		format:       model.TextureFormatRGBA32,
		workers:      runtime.NumCPU(),
	}

	switch backendType {
	case BackendTypeImage:
		l.backend = newImageLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	l.pool = worker.NewDynamicWorkerPool(l.workers, 256, time.Second)
	return l
}

func (l *loader) LoadTexture(path string) (*model.Texture, error) {
	l.mu.RLock()
	if cached, ok := l.textureCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	if err := checkExtension(path); err != nil {
		return nil, err
	}
	img, err := l.backend.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: load %s: %w", path, err)
	}
	tex, err := toTexture(path, img, l.flipVertical, l.format)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.textureCache[path] = tex
	l.mu.Unlock()

	logger.Logger().Debug("texture loaded", "path", path, "width", tex.Width, "height", tex.Height)
	return tex, nil
}

func (l *loader) LoadTextures(paths ...string) ([]*model.Texture, error) {
	out := make([]*model.Texture, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		l.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				out[i], errs[i] = l.LoadTexture(path)
				return out[i], errs[i]
			},
		})
	}
	wg.Wait()
	return out, errors.Join(errs...)
}

func (l *loader) LoadReader(name string, r io.Reader) (*model.Texture, error) {
	l.mu.RLock()
	if cached, ok := l.textureCache[name]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	img, err := l.backend.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("loader: load from reader %q: %w", name, err)
	}
	tex, err := toTexture(name, img, l.flipVertical, l.format)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.textureCache[name] = tex
	l.mu.Unlock()
	return tex, nil
}

func (l *loader) Get(name string) *model.Texture {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.textureCache[name]
}

func (l *loader) Textures() map[string]*model.Texture {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*model.Texture, len(l.textureCache))
	for k, v := range l.textureCache {
		result[k] = v
	}
	return result
}

func (l *loader) Release() {
	if l.pool != nil {
		l.pool.Stop()
		l.pool = nil
	}
}

// checkExtension rejects files whose extension no registered decoder handles.
func checkExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return nil
	default:
		return fmt.Errorf("loader: unsupported image format %q", ext)
	}
}
