// Package rtwgsl lowers the ray-tracing WGSL dialect into a plain compute module.
//
// The dialect adds three things to WGSL:
//
//	@group(0) @binding(1) var scene: acceleration_structure;
//	traceRay(scene, mask, missIndex, origin, tMin, direction, tMax, &payload);
//	traceShadow(scene, origin, tMin, direction, tMax) -> bool
//
// Hit and miss programs are ordinary functions named by the program descriptor:
// closest-hit functions take (ptr<function, Payload>, HitInfo) and miss functions take
// (ptr<function, Payload>). The ray-generation function takes the launch id.
//
// Lowering turns the acceleration structure into a storage buffer holding the packed
// scene, appends a software traversal runtime and generates the compute entry point. Shader
// identifiers select the hit or miss function through the shader-table record.
package rtwgsl

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

//go:embed assets/rt_library.wgsl
var librarySource string

const (
	// SystemGroup is the bind group reserved for the shader table (binding 0) and the
	// dispatch parameters (binding 1). User bindings may not use it.
	SystemGroup = 3

	// EntryPoint is the name of the generated compute entry point.
	EntryPoint = "rt_main"

	// WorkgroupSize is the generated entry point's workgroup size in x and y.
	WorkgroupSize = 8

	// DispatchParamsSize is the byte size of the dispatch parameter block.
	DispatchParamsSize = 32
)

// Identifier kinds stored in the first word of a shader identifier.
const (
	KindRayGeneration uint32 = 0x52470000 + iota
	KindMiss
	KindHitGroup
)

var (
	// ErrUnsupported is returned for dialect features the lowering cannot express in WGSL.
	ErrUnsupported = errors.New("rtwgsl: unsupported feature")

	accelDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var\s+(\w+)\s*:\s*acceleration_structure\s*;`)
	groupRegex     = regexp.MustCompile(`@group\((\d+)\)`)
)

// HitGroup names the functions of one hit group.
type HitGroup struct {
	Name         string
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// Exports lists the ray-tracing functions of a module.
type Exports struct {
	RayGeneration string
	Miss          []string
	HitGroups     []HitGroup
}

// Lower rewrites a dialect module into a WGSL compute module.
//
// Parameters:
//   - source: the dialect source
//   - exports: ray-generation, miss and hit-group functions
//
// Returns:
//   - string: the lowered module, whose entry point is EntryPoint
//   - error: error if the module has no single acceleration structure, uses the system
//     group, names a missing function or needs any-hit or intersection programs
func Lower(source string, exports Exports) (string, error) {
	if exports.RayGeneration == "" {
		return "", fmt.Errorf("rtwgsl: no ray generation function")
	}
	for _, hg := range exports.HitGroups {
		if hg.AnyHit != "" || hg.Intersection != "" {
			return "", fmt.Errorf("%w: hit group %q uses any-hit or intersection programs", ErrUnsupported, hg.Name)
		}
	}
	for _, m := range groupRegex.FindAllStringSubmatch(source, -1) {
		if m[1] == fmt.Sprint(SystemGroup) {
			return "", fmt.Errorf("rtwgsl: @group(%d) is reserved for the ray tracing runtime", SystemGroup)
		}
	}

	decls := accelDeclRegex.FindAllStringSubmatch(source, -1)
	if len(decls) != 1 {
		return "", fmt.Errorf("rtwgsl: module must declare exactly one acceleration_structure, found %d", len(decls))
	}
	asName := decls[0][3]

	fns := []string{exports.RayGeneration}
	fns = append(fns, exports.Miss...)
	for _, hg := range exports.HitGroups {
		fns = append(fns, hg.ClosestHit)
	}
	for _, fn := range fns {
		if fn != "" && !regexp.MustCompile(`\bfn\s+`+regexp.QuoteMeta(fn)+`\s*\(`).MatchString(source) {
			return "", fmt.Errorf("rtwgsl: function %q not found", fn)
		}
	}

	payload, err := payloadType(source, exports)
	if err != nil {
		return "", err
	}

	out := accelDeclRegex.ReplaceAllString(source, fmt.Sprintf("@group($1) @binding($2) var<storage, read> %s: array<vec4<f32>>;", asName))
	out = regexp.MustCompile(`\btraceRay\s*\(\s*`+regexp.QuoteMeta(asName)+`\s*,\s*`).ReplaceAllString(out, "rt_trace_ray(")
	out = regexp.MustCompile(`\btraceShadow\s*\(\s*`+regexp.QuoteMeta(asName)+`\s*,\s*`).ReplaceAllString(out, "rt_trace_shadow(")

	var hitCases, missCases strings.Builder
	for i, hg := range exports.HitGroups {
		if hg.ClosestHit == "" {
			continue
		}
		fmt.Fprintf(&hitCases, "        case %du: { %s(payload, hit); }\n", i, hg.ClosestHit)
	}
	for i, m := range exports.Miss {
		fmt.Fprintf(&missCases, "        case %du: { %s(payload); }\n", i, m)
	}

	lib := strings.NewReplacer(
		"{{AS}}", asName,
		"{{PAYLOAD}}", payload,
		"{{SYSTEM_GROUP}}", fmt.Sprint(SystemGroup),
		"{{IDENTIFIER_SIZE}}", fmt.Sprint(IdentifierSize),
		"{{HIT_CASES}}", strings.TrimRight(hitCases.String(), "\n"),
		"{{MISS_CASES}}", strings.TrimRight(missCases.String(), "\n"),
		"{{WORKGROUP_X}}", fmt.Sprint(WorkgroupSize),
		"{{WORKGROUP_Y}}", fmt.Sprint(WorkgroupSize),
		"{{ENTRY}}", EntryPoint,
		"{{RAYGEN}}", exports.RayGeneration,
	).Replace(librarySource)

	return out + "\n" + lib, nil
}

// payloadType finds the payload struct named by the first pointer parameter of the hit
// and miss functions. All of them must agree.
func payloadType(source string, exports Exports) (string, error) {
	var fns []string
	fns = append(fns, exports.Miss...)
	for _, hg := range exports.HitGroups {
		if hg.ClosestHit != "" {
			fns = append(fns, hg.ClosestHit)
		}
	}
	if len(fns) == 0 {
		return "", fmt.Errorf("rtwgsl: module has no miss or closest-hit functions")
	}
	payload := ""
	for _, fn := range fns {
		re := regexp.MustCompile(`\bfn\s+` + regexp.QuoteMeta(fn) + `\s*\(\s*\w+\s*:\s*ptr<\s*function\s*,\s*(\w+)\s*>`)
		m := re.FindStringSubmatch(source)
		if m == nil {
			return "", fmt.Errorf("rtwgsl: %q must take ptr<function, Payload> as its first parameter", fn)
		}
		if payload != "" && payload != m[1] {
			return "", fmt.Errorf("rtwgsl: %q uses payload %q, expected %q", fn, m[1], payload)
		}
		payload = m[1]
	}
	return payload, nil
}

// IdentifierSize is the size of the shader identifiers produced by Identifier.
const IdentifierSize = 32

// Identifier builds the opaque shader identifier of an export: word 0 holds the kind,
// word 1 the index the generated dispatch switches on, and word 2 a per-pipeline tag.
//
// Parameters:
//   - kind: KindRayGeneration, KindMiss or KindHitGroup
//   - index: position of the export within its kind
//   - tag: per-pipeline value distinguishing identifiers of different pipelines
//
// Returns:
//   - []byte: IdentifierSize bytes
func Identifier(kind, index, tag uint32) []byte {
	id := make([]byte, IdentifierSize)
	binary.LittleEndian.PutUint32(id[0:], kind)
	binary.LittleEndian.PutUint32(id[4:], index)
	binary.LittleEndian.PutUint32(id[8:], tag)
	return id
}

// DispatchParams is the per-dispatch parameter block bound at SystemGroup binding 1.
// Bases and strides are byte offsets into the shader table.
type DispatchParams struct {
	RayGenBase uint32
	MissBase   uint32
	MissStride uint32
	HitBase    uint32
	HitStride  uint32
	Width      uint32
	Height     uint32
	Depth      uint32
}

// Marshal encodes the parameter block.
func (p DispatchParams) Marshal() []byte {
	buf := make([]byte, DispatchParamsSize)
	for i, v := range []uint32{p.RayGenBase, p.MissBase, p.MissStride, p.HitBase, p.HitStride, p.Width, p.Height, p.Depth} {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}
