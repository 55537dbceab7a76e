// Package reflection merges per-stage shader reflection into the binding model of one
// program: inline constant groups, table-bound resources and samplers, each with a
// root-parameter index assigned in first-seen order.
package reflection

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// InlineConstantThreshold is the largest average member size, in bytes, for which a
// constant buffer is pushed inline instead of being bound through the resource table.
//
// This is a heuristic: 64 bytes is one 4x4 float matrix, a guess at what "a handful of
// scalars" looks like. It is not a contract of the reflection format. The average is an
// integer division, so a remainder below the member count never tips a buffer over.
const InlineConstantThreshold = 64

// ErrMalformedStage is returned when a stage reflection cannot be classified.
var ErrMalformedStage = errors.New("reflection: malformed stage")

// BindingKind classifies a merged binding.
type BindingKind int

const (
	// KindInlineConstant is a constant buffer pushed straight into the command stream.
	KindInlineConstant BindingKind = iota

	// KindTableCBV is a constant buffer bound through the resource table.
	KindTableCBV

	// KindTableSRV is a read-only resource bound through the resource table.
	KindTableSRV

	// KindTableUAV is a writable resource bound through the resource table.
	KindTableUAV

	// KindSampler is a sampler, emitted as a static sampler.
	KindSampler
)

// String returns the kind name.
func (k BindingKind) String() string {
	switch k {
	case KindInlineConstant:
		return "InlineConstant"
	case KindTableCBV:
		return "TableCBV"
	case KindTableSRV:
		return "TableSRV"
	case KindTableUAV:
		return "TableUAV"
	case KindSampler:
		return "Sampler"
	default:
		return fmt.Sprintf("BindingKind(%d)", int(k))
	}
}

// RangeType returns the descriptor range type of a table kind.
func (k BindingKind) RangeType() gpu.RangeType {
	switch k {
	case KindTableUAV:
		return gpu.RangeUAV
	case KindTableSRV:
		return gpu.RangeSRV
	default:
		return gpu.RangeCBV
	}
}

// ShaderBinding is one merged binding of a program.
type ShaderBinding struct {
	Name      string
	Kind      BindingKind
	BindPoint uint32
	Space     uint32
	ByteSize  uint32
	Resource  shader.ResourceType
	Format    gpu.TextureFormat
}

// Shape returns the resource shape native backends declare for a table binding.
func (b ShaderBinding) Shape() gpu.ResourceShape {
	switch b.Resource {
	case shader.ResourceTexture:
		return gpu.ShapeTexture2D
	case shader.ResourceStructuredBuffer, shader.ResourceRWStructuredBuffer:
		return gpu.ShapeStructuredBuffer
	case shader.ResourceRWTexture:
		return gpu.ShapeStorageTexture2D
	case shader.ResourceAccelerationStructure:
		return gpu.ShapeAccelerationStructure
	default:
		return gpu.ShapeConstantBuffer
	}
}

// ViewKind returns the descriptor kind written into a table slot for the binding.
func (b ShaderBinding) ViewKind() gpu.DescriptorKind {
	switch b.Kind {
	case KindTableSRV:
		return gpu.DescriptorKindSRV
	case KindTableUAV:
		return gpu.DescriptorKindUAV
	default:
		return gpu.DescriptorKindCBV
	}
}

// ConstantMember is one member of an inline constant group. Offset is relative to the
// start of the group.
type ConstantMember struct {
	Name   string
	Type   string
	Offset uint32
	Size   uint32
}

// RootConstantGroup is a constant buffer classified as inline constants.
type RootConstantGroup struct {
	Binding   ShaderBinding
	Members   []ConstantMember
	RootIndex int
}

// Num32BitValues returns how many 32-bit values the group pushes.
func (g RootConstantGroup) Num32BitValues() uint32 {
	return (g.Binding.ByteSize + 3) / 4
}

// TableResource is a binding read through the resource table.
type TableResource struct {
	Binding   ShaderBinding
	RootIndex int
}

// Aggregated is the merged binding model of a program.
type Aggregated struct {
	RootConstantGroups      []RootConstantGroup
	TableResources          []TableResource
	Samplers                []ShaderBinding
	TotalRootParameterCount int
}

// Parameter returns the root parameter at index i: exactly one of the results is non-nil
// when i is in range.
//
// Parameters:
//   - i: root-parameter index
//
// Returns:
//   - *RootConstantGroup: the inline group at i, or nil
//   - *TableResource: the table resource at i, or nil
func (a *Aggregated) Parameter(i int) (*RootConstantGroup, *TableResource) {
	for g := range a.RootConstantGroups {
		if a.RootConstantGroups[g].RootIndex == i {
			return &a.RootConstantGroups[g], nil
		}
	}
	for t := range a.TableResources {
		if a.TableResources[t].RootIndex == i {
			return nil, &a.TableResources[t]
		}
	}
	return nil, nil
}

// Binding looks up a merged binding by name.
//
// Parameters:
//   - name: binding name
//
// Returns:
//   - ShaderBinding: the binding
//   - bool: false if no stage declared the name
func (a *Aggregated) Binding(name string) (ShaderBinding, bool) {
	for _, g := range a.RootConstantGroups {
		if g.Binding.Name == name {
			return g.Binding, true
		}
	}
	for _, t := range a.TableResources {
		if t.Binding.Name == name {
			return t.Binding, true
		}
	}
	for _, s := range a.Samplers {
		if s.Name == name {
			return s, true
		}
	}
	return ShaderBinding{}, false
}

// Aggregator merges the reflection of every stage of a program.
type Aggregator interface {
	// AddStage merges the bindings of one stage. A name already added by a previous stage
	// is skipped. A malformed stage adds nothing.
	//
	// Parameters:
	//   - stage: the reflection of one compiled stage
	//
	// Returns:
	//   - error: an ErrMalformedStage wrap for zero-member constant buffers or unknown resource types
	AddStage(stage shader.StageReflection) error

	// Result returns the merged binding model so far.
	//
	// Returns:
	//   - Aggregated: a copy of the merged bindings
	Result() Aggregated
}

type aggregator struct {
	seen map[string]bool
	out  Aggregated
}

var _ Aggregator = &aggregator{}

// NewAggregator creates an empty Aggregator.
//
// Returns:
//   - Aggregator: the aggregator
func NewAggregator() Aggregator {
	return &aggregator{seen: make(map[string]bool)}
}

// Aggregate merges every stage reflection of a program in stage order.
//
// Parameters:
//   - program: a loaded shader program
//
// Returns:
//   - Aggregated: the merged binding model
//   - error: the first stage failure, wrapped with the program key
func Aggregate(program shader.Program) (Aggregated, error) {
	agg := NewAggregator()
	for _, r := range program.Reflections() {
		if err := agg.AddStage(r); err != nil {
			return Aggregated{}, fmt.Errorf("reflection: program %q: %w", program.Key(), err)
		}
	}
	return agg.Result(), nil
}

func (a *aggregator) AddStage(stage shader.StageReflection) error {
	var pending []classification
	local := make(map[string]bool)
	for _, res := range stage.Resources {
		if a.seen[res.Name] || local[res.Name] {
			continue
		}
		c, err := classify(res)
		if err != nil {
			return fmt.Errorf("%w: %s stage %q: %v", ErrMalformedStage, stage.Stage, stage.EntryPoint, err)
		}
		local[res.Name] = true
		pending = append(pending, c)
	}

	for _, c := range pending {
		a.seen[c.binding.Name] = true
		switch c.binding.Kind {
		case KindInlineConstant:
			a.out.RootConstantGroups = append(a.out.RootConstantGroups, RootConstantGroup{
				Binding:   c.binding,
				Members:   c.members,
				RootIndex: a.out.TotalRootParameterCount,
			})
			a.out.TotalRootParameterCount++
		case KindSampler:
			a.out.Samplers = append(a.out.Samplers, c.binding)
		default:
			a.out.TableResources = append(a.out.TableResources, TableResource{
				Binding:   c.binding,
				RootIndex: a.out.TotalRootParameterCount,
			})
			a.out.TotalRootParameterCount++
		}
	}
	return nil
}

func (a *aggregator) Result() Aggregated {
	out := Aggregated{TotalRootParameterCount: a.out.TotalRootParameterCount}
	out.RootConstantGroups = append(out.RootConstantGroups, a.out.RootConstantGroups...)
	out.TableResources = append(out.TableResources, a.out.TableResources...)
	out.Samplers = append(out.Samplers, a.out.Samplers...)
	return out
}

type classification struct {
	binding ShaderBinding
	members []ConstantMember
}

func classify(res shader.ResourceBinding) (classification, error) {
	b := ShaderBinding{
		Name:      res.Name,
		BindPoint: res.BindPoint,
		Space:     res.Space,
		ByteSize:  res.Size,
		Resource:  res.Type,
		Format:    res.Format,
	}

	switch res.Type {
	case shader.ResourceConstantBuffer:
		if res.MemberCount() == 0 {
			return classification{}, fmt.Errorf("constant buffer %q has no members", res.Name)
		}
		// integer average: 129 bytes over 2 members is 64 per member
		if res.Size/uint32(res.MemberCount()) > InlineConstantThreshold {
			b.Kind = KindTableCBV
			return classification{binding: b}, nil
		}
		b.Kind = KindInlineConstant
		members := make([]ConstantMember, 0, len(res.Members))
		for _, m := range res.Members {
			members = append(members, ConstantMember{Name: m.Name, Type: m.Type, Offset: m.Offset, Size: m.Size})
		}
		return classification{binding: b, members: members}, nil
	case shader.ResourceSampler:
		b.Kind = KindSampler
	case shader.ResourceTexture, shader.ResourceStructuredBuffer, shader.ResourceAccelerationStructure:
		b.Kind = KindTableSRV
	case shader.ResourceRWTexture, shader.ResourceRWStructuredBuffer:
		b.Kind = KindTableUAV
	default:
		return classification{}, fmt.Errorf("resource %q has unknown type %s", res.Name, res.Type)
	}
	return classification{binding: b}, nil
}
