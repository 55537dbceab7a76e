// Package renderer drives the hybrid frame: a G-buffer raster pass over reflective
// entities, a ray-traced reflection pass against the scene acceleration structure and a
// composite raster pass that draws every entity with its material.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/reflection"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

// ErrNotInitialized is returned by Render before a successful Initialize.
var ErrNotInitialized = errors.New("renderer: not initialized")

// Stats is a snapshot of the renderer's GPU objects and counters.
type Stats struct {
	Frames             uint64
	BLASCount          int
	TLASInstances      int
	TableCapacity      uint32
	TableReserved      uint32
	DescriptorWrites   int
	Pipelines          int
	CompositePipelines int
	Layouts            int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	ctrl   upload.Controller
	device gpu.Device
	label  string
	width  uint32
	height uint32

	programOptions []shader.ProgramBuilderOption

	layouts   binding_layout.Builder
	pipelines pipeline.Cache

	gbuffer    builtin
	lit        builtin
	reflection builtin

	frame  *frameState
	frames uint64
}

// builtin is one of the programs embedded in the renderer with its binding model.
type builtin struct {
	program shader.Program
	agg     reflection.Aggregated
	layout  *binding_layout.Layout
}

// Renderer is the hybrid frame orchestrator. It owns the resource table, the
// acceleration structures, the shader table and the pass targets of the scene it was
// initialized with. Not safe for use by more than one frame loop at a time.
type Renderer interface {
	// NewMaterial creates a material instance for a program, building its binding layout
	// with the renderer's layout cache.
	//
	// Parameters:
	//   - name: the material name
	//   - program: a rasterization program, or nil for the built-in lit program
	//   - options: material initial values
	//
	// Returns:
	//   - material.Instance: the material
	//   - error: reflection or layout error
	NewMaterial(name string, program shader.Program, options ...material.InstanceBuilderOption) (material.Instance, error)

	// LitProgram returns the built-in composite program: a base color and reflectivity
	// block, an albedo texture and the lights, blended with the reflection pass output.
	//
	// Returns:
	//   - shader.Program: the lit program
	LitProgram() shader.Program

	// ReflectionProgram returns the built-in ray-tracing program used when the scene sets
	// none.
	//
	// Returns:
	//   - shader.Program: the reflection program
	ReflectionProgram() shader.Program

	// Initialize builds every GPU object a scene needs: pass targets, uploaded meshes and
	// textures, the light buffer, the resource table, the acceleration structures, the
	// pipelines and the shader table. Any previous scene is released first. On failure
	// everything created by the call is released and the renderer is left uninitialized.
	//
	// Parameters:
	//   - s: the scene
	//
	// Returns:
	//   - error: the first failure
	Initialize(s scene.Scene) error

	// Render records and submits one frame of the initialized scene and presents it. The
	// call returns once the GPU has finished the frame.
	//
	// Parameters:
	//   - s: the scene, with the entity list it was initialized with
	//
	// Returns:
	//   - error: ErrNotInitialized, accel.ErrTopologyChanged, upload.ErrTimeout or the
	//     failing step's error
	Render(s scene.Scene) error

	// Resize resizes the swapchain and recreates the size-dependent pass targets. A zero
	// dimension is ignored.
	//
	// Parameters:
	//   - width, height: the new surface size in pixels
	//
	// Returns:
	//   - error: swapchain or target creation error
	Resize(width, height uint32) error

	// Size returns the current render size.
	//
	// Returns:
	//   - width, height: the size in pixels
	Size() (width, height uint32)

	// Stats returns counters describing the current scene objects.
	//
	// Returns:
	//   - Stats: the snapshot
	Stats() Stats

	// Release frees every GPU object the renderer created, including the binding layouts of
	// materials made with NewMaterial.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer submitting through ctrl and loads the built-in programs.
// NewRenderer panics if ctrl is nil.
//
// Parameters:
//   - ctrl: the upload controller of the device to render with
//   - options: variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer, not yet initialized with a scene
//   - error: error if a built-in program fails to load or its layout cannot be built
func NewRenderer(ctrl upload.Controller, options ...RendererBuilderOption) (Renderer, error) {
	if ctrl == nil {
		panic("renderer: NewRenderer requires a non-nil upload controller")
	}
	r := &renderer{
		mu:     &sync.Mutex{},
		ctrl:   ctrl,
		device: ctrl.Device(),
		label:  "oxy-rt",
		width:  800,
		height: 600,
	}
	for _, opt := range options {
		opt(r)
	}
	r.layouts = binding_layout.NewBuilder(r.device, binding_layout.WithLabel(r.label))
	r.pipelines = pipeline.NewCache(r.device)

	var err error
	if r.gbuffer, err = r.loadBuiltin("gbuffer", "assets/gbuffer.wgsl"); err != nil {
		r.layouts.Release()
		return nil, err
	}
	if r.lit, err = r.loadBuiltin("lit", "assets/lit.wgsl"); err != nil {
		r.layouts.Release()
		return nil, err
	}
	if r.reflection, err = r.loadBuiltin("reflection", "assets/reflection.wgsl"); err != nil {
		r.layouts.Release()
		return nil, err
	}
	logger.Logger().Info("renderer created", "label", r.label, "width", r.width, "height", r.height)
	return r, nil
}

// layoutFlags returns the layout usage of a program kind.
func layoutFlags(kind shader.ProgramKind) binding_layout.Flags {
	switch kind {
	case shader.KindRasterization:
		return binding_layout.FlagAllowInputAssembler
	case shader.KindRayTracing:
		return binding_layout.FlagRayTracing
	default:
		return 0
	}
}

// bindingModel aggregates a program's reflection and builds its layout.
func (r *renderer) bindingModel(program shader.Program) (reflection.Aggregated, *binding_layout.Layout, error) {
	agg, err := reflection.Aggregate(program)
	if err != nil {
		return reflection.Aggregated{}, nil, fmt.Errorf("renderer: %w", err)
	}
	layout, err := r.layouts.Build(agg, layoutFlags(program.Kind()))
	if err != nil {
		return reflection.Aggregated{}, nil, fmt.Errorf("renderer: program %q: %w", program.Key(), err)
	}
	return agg, layout, nil
}

func (r *renderer) NewMaterial(name string, program shader.Program, options ...material.InstanceBuilderOption) (material.Instance, error) {
	if program == nil {
		program = r.lit.program
	}
	if program.Kind() != shader.KindRasterization {
		return nil, fmt.Errorf("renderer: material %q: program %q is a %s program", name, program.Key(), program.Kind())
	}
	agg, layout, err := r.bindingModel(program)
	if err != nil {
		return nil, err
	}
	return material.NewInstance(name, program, agg, layout, options...), nil
}

func (r *renderer) LitProgram() shader.Program {
	return r.lit.program
}

func (r *renderer) ReflectionProgram() shader.Program {
	return r.reflection.program
}

func (r *renderer) Size() (uint32, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.device.Swapchain().Resize(width, height); err != nil {
		return fmt.Errorf("renderer: resize swapchain: %w", err)
	}
	r.width, r.height = width, height
	if r.frame == nil {
		return nil
	}
	if err := r.frame.resizeTargets(r.device, width, height); err != nil {
		return err
	}
	logger.Logger().Debug("renderer resized", "width", width, "height", height)
	return nil
}

func (r *renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		Frames:    r.frames,
		Pipelines: r.pipelines.Count(),
		Layouts:   r.layouts.Count(),
	}
	if st := r.frame; st != nil {
		s.BLASCount = st.accel.BLASCount()
		s.TLASInstances = st.accel.InstanceCount()
		s.TableCapacity = st.table.Capacity()
		s.TableReserved = st.table.Reserved()
		s.DescriptorWrites = st.table.Writes()
		s.CompositePipelines = st.compositePipelineCount()
	}
	return s
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frame != nil {
		r.frame.release()
		r.frame = nil
	}
	r.pipelines.Release()
	r.layouts.Release()
	logger.Logger().Info("renderer released", "label", r.label, "frames", r.frames)
}
