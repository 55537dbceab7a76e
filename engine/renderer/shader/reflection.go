package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// ResourceType is the reflected type of a bound resource.
type ResourceType int

const (
	// ResourceConstantBuffer is a uniform buffer.
	ResourceConstantBuffer ResourceType = iota

	// ResourceTexture is a sampled or loaded texture.
	ResourceTexture

	// ResourceSampler is a sampler.
	ResourceSampler

	// ResourceStructuredBuffer is a read-only storage buffer.
	ResourceStructuredBuffer

	// ResourceRWTexture is a writable storage texture.
	ResourceRWTexture

	// ResourceRWStructuredBuffer is a read-write storage buffer.
	ResourceRWStructuredBuffer

	// ResourceAccelerationStructure is a top-level acceleration structure.
	ResourceAccelerationStructure
)

// String returns the resource type name.
func (t ResourceType) String() string {
	switch t {
	case ResourceConstantBuffer:
		return "cbuffer"
	case ResourceTexture:
		return "texture"
	case ResourceSampler:
		return "sampler"
	case ResourceStructuredBuffer:
		return "structured"
	case ResourceRWTexture:
		return "rwtexture"
	case ResourceRWStructuredBuffer:
		return "rwstructured"
	case ResourceAccelerationStructure:
		return "accelstruct"
	default:
		return fmt.Sprintf("ResourceType(%d)", int(t))
	}
}

// Member is one member of a constant buffer with its byte offset inside the buffer.
type Member struct {
	Name   string
	Type   string
	Offset uint32
	Size   uint32
}

// ResourceBinding is one resource bound by a stage. BindPoint is the register (WGSL
// @binding) and Space the register space (WGSL @group).
type ResourceBinding struct {
	Name      string
	Type      ResourceType
	BindPoint uint32
	Space     uint32
	Size      uint32
	Members   []Member
	Format    gpu.TextureFormat
}

// MemberCount returns the number of constant-buffer members.
func (b ResourceBinding) MemberCount() int {
	return len(b.Members)
}

// StageReflection lists the resources a single stage actually uses.
type StageReflection struct {
	Stage      Stage
	EntryPoint string
	Resources  []ResourceBinding
}

// reflectModule holds the parse results shared by every stage of one module.
type reflectModule struct {
	globals   []parsedGlobal
	names     map[string]bool
	functions map[string]parsedFunction
	structs   []parsedStruct
	layouts   *typeLayouts
}

func newReflectModule(source string) *reflectModule {
	cleaned := stripComments(source)
	m := &reflectModule{
		globals:   parseGlobals(cleaned),
		names:     make(map[string]bool),
		functions: parseFunctions(cleaned),
		structs:   parseStructBlocks(cleaned),
	}
	m.layouts = newTypeLayouts(m.structs)
	for _, g := range m.globals {
		m.names[g.name] = true
	}
	return m
}

// reflect produces the reflection of one stage: every resource global reachable from the
// entry function, sorted by space then register.
func (m *reflectModule) reflect(stage Stage, entry string) (StageReflection, error) {
	if _, ok := m.functions[entry]; !ok {
		return StageReflection{}, fmt.Errorf("%w: %s entry point %q", ErrMissingEntryPoint, stage, entry)
	}
	used := reachableGlobals(entry, m.functions, m.names)

	r := StageReflection{Stage: stage, EntryPoint: entry}
	for _, g := range m.globals {
		if !used[g.name] {
			continue
		}
		typ, format, ok := classifyResource(g.addressSpace, g.typeName)
		if !ok {
			return StageReflection{}, fmt.Errorf("shader: %s: unsupported resource %q of type %q", stage, g.name, g.typeName)
		}
		b := ResourceBinding{
			Name:      g.name,
			Type:      typ,
			BindPoint: g.binding,
			Space:     g.group,
			Format:    format,
		}
		if typ == ResourceConstantBuffer {
			members, size, err := m.constantBufferMembers(g.typeName)
			if err != nil {
				return StageReflection{}, fmt.Errorf("shader: %s: constant buffer %q: %w", stage, g.name, err)
			}
			b.Members = members
			b.Size = size
		} else if layout, ok := m.layouts.resolve(g.typeName); ok {
			b.Size = uint32(layout.size)
		}
		r.Resources = append(r.Resources, b)
	}
	sort.SliceStable(r.Resources, func(i, j int) bool {
		if r.Resources[i].Space != r.Resources[j].Space {
			return r.Resources[i].Space < r.Resources[j].Space
		}
		return r.Resources[i].BindPoint < r.Resources[j].BindPoint
	})
	return r, nil
}

// constantBufferMembers lays out a uniform type. A struct yields one member per field at
// its WGSL offset; any other type is a single member at offset 0.
func (m *reflectModule) constantBufferMembers(typeName string) ([]Member, uint32, error) {
	if _, ok := m.layouts.structs[typeName]; ok {
		sl, ok := m.layouts.structLayout(typeName)
		if !ok {
			return nil, 0, fmt.Errorf("struct %q has a member of unresolvable type", typeName)
		}
		return sl.members, uint32(sl.size), nil
	}
	layout, ok := m.layouts.resolve(typeName)
	if !ok {
		return nil, 0, fmt.Errorf("unresolvable type %q", typeName)
	}
	return []Member{{Name: typeName, Type: typeName, Size: uint32(layout.size)}}, uint32(layout.size), nil
}

// hasAttribute reports whether the function carries a stage attribute such as "@vertex".
func (m *reflectModule) hasAttribute(entry, attribute string) bool {
	fn, ok := m.functions[entry]
	if !ok {
		return false
	}
	return strings.Contains(fn.attributes, attribute)
}
