package shader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader/rtwgsl"
)

// Stage identifies one programmable stage.
type Stage int

const (
	StageVertex Stage = iota
	StagePixel
	StageGeometry
	StageCompute
	StageRayGeneration
	StageIntersection
	StageAnyHit
	StageClosestHit
	StageMiss
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	case StageGeometry:
		return "geometry"
	case StageCompute:
		return "compute"
	case StageRayGeneration:
		return "raygeneration"
	case StageIntersection:
		return "intersection"
	case StageAnyHit:
		return "anyhit"
	case StageClosestHit:
		return "closesthit"
	case StageMiss:
		return "miss"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// StageCode is the compiled output of one stage together with its reflection.
type StageCode struct {
	Stage      Stage
	EntryPoint string
	Source     string
	ByteCode   []byte
	Reflection StageReflection
}

// Payload is the kind-specific part of a program. It is one of *RasterizationStages,
// *RayTracingStages or *ComputeStage.
type Payload interface {
	isPayload()
}

// RasterizationStages holds the stages of a rasterization program.
type RasterizationStages struct {
	Vertex       StageCode
	Pixel        StageCode
	Geometry     *StageCode
	VertexLayout gpu.VertexLayout
}

// HitGroupStages holds the stages of one hit group. Absent stages are nil.
type HitGroupStages struct {
	Name         string
	ClosestHit   *StageCode
	AnyHit       *StageCode
	Intersection *StageCode
}

// RayTracingStages holds the stages of a ray-tracing library. Library is the module the
// native pipeline is created from; the per-stage entries carry reflection for the
// functions it exports.
type RayTracingStages struct {
	Library           StageCode
	RayGeneration     StageCode
	Miss              []StageCode
	HitGroups         []HitGroupStages
	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
	MaxRecursionDepth uint32
}

// ComputeStage holds the single stage of a compute program.
type ComputeStage struct {
	Compute       StageCode
	WorkgroupSize [3]uint32
}

func (*RasterizationStages) isPayload() {}
func (*RayTracingStages) isPayload()    {}
func (*ComputeStage) isPayload()        {}

// Exports returns the function names of the library in the form the lowering and the
// native pipeline expect.
//
// Returns:
//   - rtwgsl.Exports: ray-generation, miss and hit-group function names
func (r *RayTracingStages) Exports() rtwgsl.Exports {
	ex := rtwgsl.Exports{RayGeneration: r.RayGeneration.EntryPoint}
	for _, m := range r.Miss {
		ex.Miss = append(ex.Miss, m.EntryPoint)
	}
	for _, hg := range r.HitGroups {
		g := rtwgsl.HitGroup{Name: hg.Name}
		if hg.ClosestHit != nil {
			g.ClosestHit = hg.ClosestHit.EntryPoint
		}
		if hg.AnyHit != nil {
			g.AnyHit = hg.AnyHit.EntryPoint
		}
		if hg.Intersection != nil {
			g.Intersection = hg.Intersection.EntryPoint
		}
		ex.HitGroups = append(ex.HitGroups, g)
	}
	return ex
}

// program is the implementation of the Program interface.
type program struct {
	key         string
	descriptor  Descriptor
	source      string
	payload     Payload
	reflections []StageReflection

	compiler Compiler
	pp       PreProcessor
}

// Program is a loaded shader program: its descriptor, pre-processed source, compiled
// stages and per-stage reflection.
type Program interface {
	// Key retrieves the unique identifier for this program, used for caching and lookups.
	//
	// Returns:
	//   - string: the program's unique key
	Key() string

	// Kind returns the program kind from the descriptor.
	//
	// Returns:
	//   - ProgramKind: rasterization, ray tracing or compute
	Kind() ProgramKind

	// ShaderModel returns the shader-model string from the descriptor.
	//
	// Returns:
	//   - string: the shader model, e.g. "6_5"
	ShaderModel() string

	// Source retrieves the pre-processed WGSL source.
	//
	// Returns:
	//   - string: the source after annotation expansion
	Source() string

	// Descriptor returns the parsed companion descriptor.
	//
	// Returns:
	//   - Descriptor: the descriptor with defaults applied
	Descriptor() Descriptor

	// Payload returns the kind-specific stages. Callers type-switch over
	// *RasterizationStages, *RayTracingStages and *ComputeStage.
	//
	// Returns:
	//   - Payload: the compiled stages
	Payload() Payload

	// Reflections returns the reflection of every stage in load order.
	//
	// Returns:
	//   - []StageReflection: one entry per compiled stage
	Reflections() []StageReflection
}

var _ Program = &program{}

// LoadProgram reads a WGSL source file and its companion descriptor (the same path with
// a .json extension), then compiles and reflects every stage the descriptor names.
//
// Parameters:
//   - key: a unique identifier for the program
//   - sourcePath: path of the WGSL source file
//   - options: optional ProgramBuilderOption values
//
// Returns:
//   - Program: the loaded program
//   - error: error if a file cannot be read, the descriptor is invalid or a stage fails
//     to pre-process, compile or reflect
func LoadProgram(key string, sourcePath string, options ...ProgramBuilderOption) (Program, error) {
	dir, file := filepath.Split(sourcePath)
	if dir == "" {
		dir = "."
	}
	return LoadProgramFS(os.DirFS(dir), key, file, options...)
}

// LoadProgramFS is LoadProgram reading from a file system, such as an embed.FS.
//
// Parameters:
//   - fsys: the file system holding the source and descriptor
//   - key: a unique identifier for the program
//   - sourcePath: slash-separated path of the WGSL source inside fsys
//   - options: optional ProgramBuilderOption values
//
// Returns:
//   - Program: the loaded program
//   - error: error describing the first failure
func LoadProgramFS(fsys fs.FS, key string, sourcePath string, options ...ProgramBuilderOption) (Program, error) {
	p := &program{key: key}
	for _, opt := range options {
		opt(p)
	}
	if p.compiler == nil {
		p.compiler = NewNagaCompiler()
	}
	if p.pp == nil {
		p.pp = NewPreProcessor()
	}

	src, err := fs.ReadFile(fsys, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: read source: %w", key, err)
	}
	descPath := DescriptorPath(sourcePath)
	descData, err := fs.ReadFile(fsys, descPath)
	if err != nil {
		return nil, fmt.Errorf("shader: %s: read descriptor: %w", key, err)
	}
	if p.descriptor, err = ParseDescriptor(descData); err != nil {
		return nil, fmt.Errorf("shader: %s: %w", key, err)
	}
	if p.source, err = p.pp.Process(string(src)); err != nil {
		return nil, fmt.Errorf("shader: %s: pre-process: %w", key, err)
	}

	switch p.descriptor.Kind {
	case KindRasterization:
		err = p.loadRasterization()
	case KindRayTracing:
		err = p.loadRayTracing()
	case KindCompute:
		err = p.loadCompute()
	}
	if err != nil {
		return nil, fmt.Errorf("shader: %s: %w", key, err)
	}
	logger.Logger().Debug("shader program loaded", "key", key, "kind", p.descriptor.Kind, "stages", len(p.reflections))
	return p, nil
}

// DescriptorPath returns the companion descriptor path of a source path.
//
// Parameters:
//   - sourcePath: slash-separated source path
//
// Returns:
//   - string: the path with its extension replaced by .json
func DescriptorPath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, path.Ext(sourcePath)) + ".json"
}

func (p *program) Key() string {
	return p.key
}

func (p *program) Kind() ProgramKind {
	return p.descriptor.Kind
}

func (p *program) ShaderModel() string {
	return p.descriptor.ShaderModel
}

func (p *program) Source() string {
	return p.source
}

func (p *program) Descriptor() Descriptor {
	return p.descriptor
}

func (p *program) Payload() Payload {
	return p.payload
}

func (p *program) Reflections() []StageReflection {
	return p.reflections
}

// stage compiles and reflects one entry point of the pre-processed source. attribute is
// the WGSL stage attribute the entry must carry, or empty for library functions.
func (p *program) stage(m *reflectModule, compileSource string, stage Stage, entry, attribute string) (StageCode, error) {
	r, err := m.reflect(stage, entry)
	if err != nil {
		return StageCode{}, err
	}
	if attribute != "" && !m.hasAttribute(entry, attribute) {
		return StageCode{}, fmt.Errorf("%w: %s entry point %q is not marked %s", ErrMissingEntryPoint, stage, entry, attribute)
	}
	code := StageCode{Stage: stage, EntryPoint: entry, Source: compileSource, Reflection: r}
	if compileSource != "" {
		if code.ByteCode, err = p.compiler.Compile(compileSource, stage, entry); err != nil {
			return StageCode{}, err
		}
	}
	p.reflections = append(p.reflections, r)
	return code, nil
}

func (p *program) loadRasterization() error {
	d := p.descriptor
	m := newReflectModule(p.source)
	out := &RasterizationStages{}
	var err error
	if out.Vertex, err = p.stage(m, p.source, StageVertex, d.VSMain, "@vertex"); err != nil {
		return err
	}
	if out.Pixel, err = p.stage(m, p.source, StagePixel, d.PSMain, "@fragment"); err != nil {
		return err
	}
	if d.GSMain != "" {
		gs, err := p.stage(m, p.source, StageGeometry, d.GSMain, "")
		if err != nil {
			return err
		}
		out.Geometry = &gs
	}
	if layout, ok := parseVertexLayout(m.functions[d.VSMain], m.structs); ok {
		out.VertexLayout = layout
	}
	p.payload = out
	return nil
}

func (p *program) loadCompute() error {
	m := newReflectModule(p.source)
	cs, err := p.stage(m, p.source, StageCompute, p.descriptor.CSMain, "@compute")
	if err != nil {
		return err
	}
	p.payload = &ComputeStage{
		Compute:       cs,
		WorkgroupSize: parseWorkgroupSize(m.functions[p.descriptor.CSMain].attributes),
	}
	return nil
}

// loadRayTracing reflects every exported function on the dialect source, then lowers the
// module once and compiles the lowered library.
func (p *program) loadRayTracing() error {
	d := p.descriptor
	m := newReflectModule(p.source)
	out := &RayTracingStages{
		MaxPayloadSize:    d.PayloadSize,
		MaxAttributeSize:  d.AttributeSize,
		MaxRecursionDepth: d.MaxRecursionDepth,
	}
	var err error
	if out.RayGeneration, err = p.stage(m, "", StageRayGeneration, d.RayGeneration, ""); err != nil {
		return err
	}
	miss, err := p.stage(m, "", StageMiss, d.Miss, "")
	if err != nil {
		return err
	}
	out.Miss = []StageCode{miss}

	hg := HitGroupStages{Name: d.HitGroup}
	for _, s := range []struct {
		stage Stage
		entry string
		dst   **StageCode
	}{
		{StageClosestHit, d.ClosestHit, &hg.ClosestHit},
		{StageAnyHit, d.AnyHit, &hg.AnyHit},
		{StageIntersection, d.Intersection, &hg.Intersection},
	} {
		if s.entry == "" {
			continue
		}
		code, err := p.stage(m, "", s.stage, s.entry, "")
		if err != nil {
			return err
		}
		*s.dst = &code
	}
	out.HitGroups = []HitGroupStages{hg}

	lowered, err := rtwgsl.Lower(p.source, out.Exports())
	if err != nil {
		return err
	}
	byteCode, err := p.compiler.Compile(lowered, StageRayGeneration, rtwgsl.EntryPoint)
	if err != nil {
		return err
	}
	out.Library = StageCode{
		Stage:      StageRayGeneration,
		EntryPoint: rtwgsl.EntryPoint,
		Source:     lowered,
		ByteCode:   byteCode,
		Reflection: out.RayGeneration.Reflection,
	}
	p.payload = out
	return nil
}
