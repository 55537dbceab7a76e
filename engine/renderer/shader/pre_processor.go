package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
)

// directivePrefix marks a pre-processor directive inside a WGSL line comment:
//
//	//@oxy:include <struct>
//	//@oxy:group <group> <binding> <address_space> <var_name> <struct | array<struct>>
const directivePrefix = "@oxy:"

// addressSpaces maps the address space argument of a group directive to its WGSL
// declaration.
var addressSpaces = map[string]string{
	"storage_uniform":    "var<uniform>",
	"storage_read":       "var<storage, read>",
	"storage_read_write": "var<storage, read_write>",
}

// IncludeStruct is a WGSL struct that directives can name.
type IncludeStruct struct {
	// Source is the WGSL text injected by an include directive.
	Source string

	// Type is the struct name used in generated declarations.
	Type string
}

// PreProcessorBuilderOption is a functional option for configuring a PreProcessor.
type PreProcessorBuilderOption func(*preProcessor)

// WithInclude registers an additional struct, or replaces a built-in one, under key.
//
// Parameters:
//   - key: the name used in directives
//   - s: the struct source and type name
//
// Returns:
//   - PreProcessorBuilderOption: option function to apply
func WithInclude(key string, s IncludeStruct) PreProcessorBuilderOption {
	return func(p *preProcessor) {
		p.includes[key] = s
	}
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	includes map[string]IncludeStruct
}

// PreProcessor expands @oxy: directives in WGSL source.
type PreProcessor interface {
	// Process replaces include directives with registered struct source and group
	// directives with @group/@binding declarations. A struct is included at most once
	// per call even when several directives ask for it.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code
	//
	// Returns:
	//   - string: the processed source
	//   - error: an error naming the line of the first malformed directive
	Process(source string) (string, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the engine's GPU structs registered as
// camera, lights, transform, material and vertex.
//
// Parameters:
//   - options: optional PreProcessorBuilderOption values
//
// Returns:
//   - PreProcessor: the pre-processor
func NewPreProcessor(options ...PreProcessorBuilderOption) PreProcessor {
	p := &preProcessor{
		includes: map[string]IncludeStruct{
			"camera":    {Source: camera.GPUCameraUniformSource, Type: "CameraUniform"},
			"lights":    {Source: light.GPULightBufferSource, Type: "LightBuffer"},
			"transform": {Source: model.GPUTransformUniformSource, Type: "TransformUniform"},
			"material":  {Source: model.GPUMaterialParamsSource, Type: "MaterialParams"},
			"vertex":    {Source: model.GPUVertexSource, Type: "VertexInput"},
		},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *preProcessor) Process(source string) (string, error) {
	lines := strings.Split(source, "\n")
	included := make(map[string]bool)

	var sb strings.Builder
	sb.Grow(len(source))
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		args, ok := directiveArgs(line)
		if !ok {
			sb.WriteString(line)
			continue
		}
		out, err := p.expand(args, included)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", i+1, err)
		}
		sb.WriteString(out)
	}
	return sb.String(), nil
}

// directiveArgs returns the whitespace-separated words after the directive prefix of a
// comment line, or false if the line holds no directive.
func directiveArgs(line string) ([]string, bool) {
	comment, ok := strings.CutPrefix(strings.TrimSpace(line), "//")
	if !ok {
		return nil, false
	}
	_, after, ok := strings.Cut(comment, directivePrefix)
	if !ok {
		return nil, false
	}
	return strings.Fields(after), true
}

func (p *preProcessor) expand(args []string, included map[string]bool) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty @oxy directive")
	}
	switch args[0] {
	case "include":
		if len(args) != 2 {
			return "", fmt.Errorf("@oxy:include takes one struct name")
		}
		s, ok := p.includes[args[1]]
		if !ok {
			return "", fmt.Errorf("@oxy:include: unknown struct %q", args[1])
		}
		if included[args[1]] {
			return "", nil
		}
		included[args[1]] = true
		return strings.TrimRight(s.Source, "\n"), nil
	case "group":
		return p.declaration(args[1:])
	}
	return "", fmt.Errorf("unknown @oxy directive %q", args[0])
}

// declaration renders a group directive as a binding declaration.
func (p *preProcessor) declaration(args []string) (string, error) {
	if len(args) != 5 {
		return "", fmt.Errorf("@oxy:group takes group, binding, address space, name and struct")
	}
	group, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return "", fmt.Errorf("@oxy:group: invalid group %q", args[0])
	}
	binding, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return "", fmt.Errorf("@oxy:group: invalid binding %q", args[1])
	}
	space, ok := addressSpaces[args[2]]
	if !ok {
		return "", fmt.Errorf("@oxy:group: unknown address space %q", args[2])
	}

	key, isArray := strings.CutPrefix(args[4], "array<")
	if isArray {
		key = strings.TrimSuffix(key, ">")
	}
	s, ok := p.includes[key]
	if !ok {
		return "", fmt.Errorf("@oxy:group: unknown struct %q", key)
	}
	typeName := s.Type
	if isArray {
		typeName = "array<" + typeName + ">"
	}
	return fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", group, binding, space, args[3], typeName), nil
}
