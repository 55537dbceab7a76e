package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// wgslScalarLayouts holds the size and alignment of the host-shareable scalar types.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslScalarLayouts = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},
}

// wgslShorthandSuffixes maps the suffix of predeclared aliases such as vec3f or mat4x4h to
// their component type.
var wgslShorthandSuffixes = map[byte]string{
	'f': "f32",
	'i': "i32",
	'u': "u32",
	'h': "f16",
}

// primitiveLayout resolves scalar, vector, matrix and atomic types, in both the templated
// (vec3<f32>) and the alias (vec3f) spelling.
//
// Parameters:
//   - typeName: the WGSL type name
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false if typeName is not a primitive type
func primitiveLayout(typeName string) (wgslTypeLayout, bool) {
	if l, ok := wgslScalarLayouts[typeName]; ok {
		return l, true
	}
	base, param := splitTypeParams(typeName)
	if param == "" && len(base) > 3 && (strings.HasPrefix(base, "vec") || strings.HasPrefix(base, "mat")) {
		elem, ok := wgslShorthandSuffixes[base[len(base)-1]]
		if !ok {
			return wgslTypeLayout{}, false
		}
		base, param = base[:len(base)-1], elem
	}
	elem, ok := wgslScalarLayouts[param]
	if !ok {
		return wgslTypeLayout{}, false
	}

	switch {
	case base == "atomic":
		return elem, true
	case len(base) == 4 && strings.HasPrefix(base, "vec"):
		n, ok := dimension(base[3])
		if !ok {
			return wgslTypeLayout{}, false
		}
		return vectorLayout(n, elem), true
	case len(base) == 6 && strings.HasPrefix(base, "mat") && base[4] == 'x':
		cols, okCols := dimension(base[3])
		rows, okRows := dimension(base[5])
		if !okCols || !okRows {
			return wgslTypeLayout{}, false
		}
		// a matCxR is an array of C column vectors
		column := vectorLayout(rows, elem)
		stride := common.AlignUp(column.size, column.align)
		return wgslTypeLayout{size: cols * stride, align: column.align}, true
	}
	return wgslTypeLayout{}, false
}

// dimension parses a vector or matrix dimension digit.
func dimension(c byte) (uint64, bool) {
	if c < '2' || c > '4' {
		return 0, false
	}
	return uint64(c - '0'), true
}

// vectorLayout returns the layout of an n-component vector. A three-component vector is
// aligned like a four-component one.
func vectorLayout(n uint64, elem wgslTypeLayout) wgslTypeLayout {
	align := elem.align * n
	if n == 3 {
		align = elem.align * 4
	}
	return wgslTypeLayout{size: elem.size * n, align: align}
}

// structLayout is a resolved struct: its size, alignment and member offsets.
type structLayout struct {
	wgslTypeLayout
	members []Member
}

// typeLayouts resolves WGSL types against the structs of one module, caching each struct
// once resolved.
type typeLayouts struct {
	structs  map[string]parsedStruct
	resolved map[string]structLayout
	visiting map[string]bool
}

// newTypeLayouts indexes the structs of a module for layout resolution.
//
// Parameters:
//   - structs: every struct block parsed from the module
//
// Returns:
//   - *typeLayouts: the resolver
func newTypeLayouts(structs []parsedStruct) *typeLayouts {
	t := &typeLayouts{
		structs:  make(map[string]parsedStruct, len(structs)),
		resolved: make(map[string]structLayout, len(structs)),
		visiting: make(map[string]bool),
	}
	for _, ps := range structs {
		t.structs[ps.name] = ps
	}
	return t
}

// resolve returns the size and alignment of any host-shareable type. A runtime-sized
// array resolves to one element, the smallest useful binding.
//
// Parameters:
//   - typeName: the WGSL type, e.g. "f32", "CameraUniform", "array<Light, 10>"
//
// Returns:
//   - wgslTypeLayout: the layout
//   - bool: false for unknown or recursive types
func (t *typeLayouts) resolve(typeName string) (wgslTypeLayout, bool) {
	if l, ok := primitiveLayout(typeName); ok {
		return l, true
	}
	if _, ok := t.structs[typeName]; ok {
		sl, ok := t.structLayout(typeName)
		return sl.wgslTypeLayout, ok
	}

	base, param := splitTypeParams(typeName)
	if base != "array" || param == "" {
		return wgslTypeLayout{}, false
	}
	parts := splitAtTopLevelCommas(param)
	elem, ok := t.resolve(strings.TrimSpace(parts[0]))
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := common.AlignUp(elem.size, elem.align)
	if len(parts) == 1 {
		return wgslTypeLayout{size: stride, align: elem.align}, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{size: count * stride, align: elem.align}, true
}

// structLayout places each field of a struct at its next aligned offset and rounds the
// size up to the largest member alignment. Builtin fields are not part of the layout.
//
// Parameters:
//   - name: the struct name
//
// Returns:
//   - structLayout: the layout with member offsets
//   - bool: false if the struct is unknown, recursive or has an unresolvable member
func (t *typeLayouts) structLayout(name string) (structLayout, bool) {
	if sl, ok := t.resolved[name]; ok {
		return sl, true
	}
	ps, ok := t.structs[name]
	if !ok || t.visiting[name] {
		return structLayout{}, false
	}
	t.visiting[name] = true
	defer delete(t.visiting, name)

	sl := structLayout{wgslTypeLayout: wgslTypeLayout{align: 1}}
	var offset uint64
	for _, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		fl, ok := t.resolve(f.typeName)
		if !ok {
			return structLayout{}, false
		}
		offset = common.AlignUp(offset, fl.align)
		sl.members = append(sl.members, Member{
			Name:   f.name,
			Type:   f.typeName,
			Offset: uint32(offset),
			Size:   uint32(fl.size),
		})
		offset += fl.size
		sl.align = max(sl.align, fl.align)
	}
	sl.size = common.AlignUp(offset, sl.align)
	t.resolved[name] = sl
	return sl, true
}

// classifyResource determines the reflected resource type of a @group/@binding declaration
// from its address space qualifier and type name.
//
// Parameters:
//   - addressSpace: the address space qualifier (e.g. "uniform", "storage, read_write"), empty for handle types
//   - typeName: the WGSL type string (e.g. "CameraUniform", "texture_2d<f32>", "sampler")
//
// Returns:
//   - ResourceType: the resource type
//   - gpu.TextureFormat: the texel format for storage textures, undefined otherwise
//   - bool: false if the declaration is not a bindable resource type
func classifyResource(addressSpace, typeName string) (ResourceType, gpu.TextureFormat, bool) {
	space, access, _ := strings.Cut(addressSpace, ",")
	switch strings.TrimSpace(space) {
	case "uniform":
		return ResourceConstantBuffer, gpu.TextureFormatUndefined, true
	case "storage":
		if strings.TrimSpace(access) == "read_write" {
			return ResourceRWStructuredBuffer, gpu.TextureFormatUndefined, true
		}
		return ResourceStructuredBuffer, gpu.TextureFormatUndefined, true
	case "":
	default:
		return 0, gpu.TextureFormatUndefined, false
	}

	base, params := splitTypeParams(typeName)
	switch {
	case base == "sampler" || base == "sampler_comparison":
		return ResourceSampler, gpu.TextureFormatUndefined, true
	case base == "acceleration_structure":
		return ResourceAccelerationStructure, gpu.TextureFormatUndefined, true
	case strings.HasPrefix(base, "texture_storage_"):
		format, _, _ := strings.Cut(params, ",")
		return ResourceRWTexture, wgslTexelFormatMap[strings.TrimSpace(format)], true
	case strings.HasPrefix(base, "texture_"):
		return ResourceTexture, gpu.TextureFormatUndefined, true
	}
	return 0, gpu.TextureFormatUndefined, false
}

// splitTypeParams splits a parameterized type into its base name and its template
// parameters: "texture_2d<f32>" gives ("texture_2d", "f32") and "sampler" gives
// ("sampler", "").
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return strings.TrimSpace(typeName), ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(after), ">"))
}

// stripComments removes line comments and nested block comments in one pass. Newlines
// are kept so that line numbers in later diagnostics still match the source.
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with all comments removed
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		var next byte
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case depth > 0 && c == '*' && next == '/':
			depth--
			i++
		case depth > 0:
			if c == '\n' {
				sb.WriteByte('\n')
			}
		case c == '/' && next == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle
// brackets, so that "a: array<Light, 10>, b: f32" yields two fields.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
