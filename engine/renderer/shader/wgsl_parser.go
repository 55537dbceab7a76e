package shader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding gpu vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {gpu.VertexFormatFloat32, 4},
	"vec2f":     {gpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {gpu.VertexFormatFloat32x2, 8},
	"vec3f":     {gpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {gpu.VertexFormatFloat32x3, 12},
	"vec4f":     {gpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {gpu.VertexFormatFloat32x4, 16},
	"i32":       {gpu.VertexFormatSint32, 4},
	"u32":       {gpu.VertexFormatUint32, 4},
}

// wgslTexelFormatMap maps WGSL storage texel formats to gpu texture formats.
var wgslTexelFormatMap = map[string]gpu.TextureFormat{
	"rgba8unorm":  gpu.TextureFormatRGBA8Unorm,
	"bgra8unorm":  gpu.TextureFormatBGRA8Unorm,
	"rgba16float": gpu.TextureFormatRGBA16Float,
	"rgba32float": gpu.TextureFormatRGBA32Float,
	"r32float":    gpu.TextureFormatR32Float,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> camera: CameraUniform;
	// or handle types: @group(2) @binding(0) var diffuseTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)

	// fnDeclRegex matches the head of a function declaration, capturing the attributes
	// directly in front of it and its name
	fnDeclRegex = regexp.MustCompile(`((?:@\w+(?:\([^)]*\))?\s*)*)\bfn\s+(\w+)\s*\(`)

	// identRegex matches identifiers
	identRegex = regexp.MustCompile(`\b[A-Za-z_]\w*\b`)
)

// parseGlobals extracts all @group(N) @binding(M) resource declarations from WGSL source
// in declaration order.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedGlobal: the declarations
func parseGlobals(source string) []parsedGlobal {
	matches := bindGroupDeclRegex.FindAllStringSubmatch(source, -1)
	out := make([]parsedGlobal, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		out = append(out, parsedGlobal{
			group:        uint32(group),
			binding:      uint32(binding),
			addressSpace: strings.TrimSpace(match[3]),
			name:         strings.TrimSpace(match[4]),
			typeName:     strings.TrimSpace(match[5]),
		})
	}
	return out
}

// parseFunctions finds every fn declaration and captures its attributes, parameter list
// and brace-matched body.
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - map[string]parsedFunction: functions keyed by name
func parseFunctions(source string) map[string]parsedFunction {
	out := make(map[string]parsedFunction)
	for _, loc := range fnDeclRegex.FindAllStringSubmatchIndex(source, -1) {
		name := source[loc[4]:loc[5]]
		attrs := source[loc[2]:loc[3]]
		paramsStart := loc[1]

		depth := 1
		i := paramsStart
		for ; i < len(source) && depth > 0; i++ {
			switch source[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
		}
		params := source[paramsStart:max(paramsStart, i-1)]

		open := strings.IndexByte(source[i:], '{')
		if open < 0 {
			continue
		}
		start := i + open + 1
		depth = 1
		j := start
		for ; j < len(source) && depth > 0; j++ {
			switch source[j] {
			case '{':
				depth++
			case '}':
				depth--
			}
		}
		out[name] = parsedFunction{
			name:       name,
			attributes: attrs,
			params:     params,
			body:       source[start:max(start, j-1)],
		}
	}
	return out
}

// reachableGlobals walks the call graph from an entry function and returns the names of
// the resource globals referenced along the way.
//
// Parameters:
//   - entry: the function to start from
//   - functions: every function of the module
//   - globals: the names of all resource globals
//
// Returns:
//   - map[string]bool: referenced global names
func reachableGlobals(entry string, functions map[string]parsedFunction, globals map[string]bool) map[string]bool {
	used := make(map[string]bool)
	visited := map[string]bool{entry: true}
	queue := []string{entry}
	for len(queue) > 0 {
		fn := functions[queue[0]]
		queue = queue[1:]
		for _, ident := range identRegex.FindAllString(fn.params+" "+fn.body, -1) {
			if globals[ident] {
				used[ident] = true
			}
			if _, ok := functions[ident]; ok && !visited[ident] {
				visited[ident] = true
				queue = append(queue, ident)
			}
		}
	}
	return used
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from a function's
// attributes. Omitted dimensions default to 1.
// Returns [1, 1, 1] if no @workgroup_size annotation is found.
//
// Parameters:
//   - attributes: the attribute text in front of the entry point
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(attributes string) [3]uint32 {
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(attributes)
	if match == nil {
		return result
	}

	for i := 1; i <= 3; i++ {
		if match[i] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i], 10, 32); err == nil {
			result[i-1] = uint32(v)
		}
	}
	return result
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}

	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
//
// Parameters:
//   - body: the content between { and } of a struct declaration
//
// Returns:
//   - []parsedField: all fields found in the struct body
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var field parsedField
		field.isBuiltin = builtinRegex.MatchString(line)

		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			loc, err := strconv.Atoi(locMatch[1])
			if err == nil {
				field.location = loc
			}
		} else {
			field.location = -1
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])

		fields = append(fields, field)
	}

	return fields
}

// parseVertexLayout derives the vertex buffer layout of a vertex entry point from the
// struct type of its first parameter. Returns false when the entry takes no vertex input
// struct or a field has a type that is not a vertex format.
//
// Parameters:
//   - fn: the vertex entry point
//   - structs: all parsed structs of the module
//
// Returns:
//   - gpu.VertexLayout: the interleaved layout
//   - bool: true if a layout was derived
func parseVertexLayout(fn parsedFunction, structs []parsedStruct) (gpu.VertexLayout, bool) {
	for _, param := range splitAtTopLevelCommas(fn.params) {
		_, typeName, ok := strings.Cut(param, ":")
		if !ok {
			continue
		}
		typeName = strings.TrimSpace(typeName)
		for _, ps := range structs {
			if ps.name == typeName && isVertexInputStruct(ps) {
				return buildVertexLayout(ps)
			}
		}
	}
	return gpu.VertexLayout{}, false
}

// isVertexInputStruct returns true if the struct is a pure vertex input, meaning
// it has at least one @location field and zero @builtin fields. This distinguishes
// vertex input structs from vertex output structs which mix @location with @builtin(position).
//
// Parameters:
//   - ps: the parsed struct to check
//
// Returns:
//   - bool: true if this is a vertex input struct
func isVertexInputStruct(ps parsedStruct) bool {
	hasLocation := false
	for _, f := range ps.fields {
		if f.isBuiltin {
			return false
		}
		if f.location >= 0 {
			hasLocation = true
		}
	}
	return hasLocation
}

// buildVertexLayout converts a parsed vertex input struct into a gpu.VertexLayout with
// sequential, tightly packed offsets.
//
// Parameters:
//   - ps: the parsed struct containing vertex input fields
//
// Returns:
//   - gpu.VertexLayout: the constructed layout
//   - bool: false if a field type could not be mapped to a vertex format
func buildVertexLayout(ps parsedStruct) (gpu.VertexLayout, bool) {
	attrs := make([]gpu.VertexAttribute, 0, len(ps.fields))
	var offset uint32

	for _, f := range ps.fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return gpu.VertexLayout{}, false
		}
		attrs = append(attrs, gpu.VertexAttribute{
			Location: uint32(f.location),
			Format:   info.format,
			Offset:   offset,
		})
		offset += info.size
	}

	return gpu.VertexLayout{Stride: offset, Attributes: attrs}, true
}
