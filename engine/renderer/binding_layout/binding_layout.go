// Package binding_layout turns the merged reflection of a program into an ordered list of
// binding slots and materializes the native binding layout for it.
package binding_layout

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/reflection"
)

// Flags tune how a layout is used by pipelines.
type Flags uint32

const (
	// FlagAllowInputAssembler marks layouts of rasterization pipelines with vertex input.
	FlagAllowInputAssembler Flags = 1 << iota

	// FlagRayTracing marks the global layout of a ray-tracing pipeline.
	FlagRayTracing
)

func (f Flags) gpuFlags() gpu.LayoutFlags {
	var out gpu.LayoutFlags
	if f&FlagAllowInputAssembler != 0 {
		out |= gpu.LayoutAllowInputAssembler
	}
	if f&FlagRayTracing != 0 {
		out |= gpu.LayoutRayTracing
	}
	return out
}

// Layout is an immutable binding layout. Programs whose bindings serialize identically
// share one Layout.
type Layout struct {
	Descriptor gpu.BindingLayoutDescriptor
	Blob       []byte
	Native     gpu.BindingLayout

	slotByName map[string]uint32
}

// SlotCount returns the number of root parameters.
func (l *Layout) SlotCount() int {
	return len(l.Descriptor.Slots)
}

// Slot returns the slot at root-parameter index i.
func (l *Layout) Slot(i int) gpu.LayoutSlot {
	return l.Descriptor.Slots[i]
}

// SlotOf returns the root-parameter index of a named binding.
//
// Parameters:
//   - name: binding name from reflection
//
// Returns:
//   - uint32: root-parameter index
//   - bool: false if the layout has no slot for the name
func (l *Layout) SlotOf(name string) (uint32, bool) {
	i, ok := l.slotByName[name]
	return i, ok
}

// Describe converts merged reflection into a layout description without creating any
// native object. Root parameter i is the inline group or table resource whose RootIndex
// is i; samplers become static samplers with point filtering, wrap addressing and an
// always-pass comparison.
//
// Parameters:
//   - agg: merged reflection of a program
//   - flags: layout usage flags
//   - label: debug label
//
// Returns:
//   - gpu.BindingLayoutDescriptor: the layout description
//   - error: error if a root index has no parameter
func Describe(agg reflection.Aggregated, flags Flags, label string) (gpu.BindingLayoutDescriptor, error) {
	desc := gpu.BindingLayoutDescriptor{Label: label, Flags: flags.gpuFlags()}
	for i := 0; i < agg.TotalRootParameterCount; i++ {
		group, table := agg.Parameter(i)
		switch {
		case group != nil:
			desc.Slots = append(desc.Slots, gpu.LayoutSlot{
				Kind:           gpu.SlotInlineConstants,
				Name:           group.Binding.Name,
				Register:       group.Binding.BindPoint,
				Space:          group.Binding.Space,
				Num32BitValues: group.Num32BitValues(),
			})
		case table != nil:
			b := table.Binding
			desc.Slots = append(desc.Slots, gpu.LayoutSlot{
				Kind:  gpu.SlotTable,
				Name:  b.Name,
				Space: b.Space,
				Range: gpu.DescriptorRange{
					Type:         b.Kind.RangeType(),
					Count:        1,
					BaseRegister: b.BindPoint,
					Space:        b.Space,
					Shape:        b.Shape(),
					Format:       b.Format,
				},
			})
		default:
			return gpu.BindingLayoutDescriptor{}, fmt.Errorf("binding_layout: root parameter %d has no binding", i)
		}
	}
	for _, s := range agg.Samplers {
		desc.StaticSamplers = append(desc.StaticSamplers, gpu.StaticSampler{
			Register: s.BindPoint,
			Space:    s.Space,
			Filter:   gpu.FilterPoint,
			Address:  gpu.AddressWrap,
			Compare:  gpu.CompareAlways,
		})
	}
	return desc, nil
}

// Builder creates binding layouts and caches them by their serialized form, so programs
// with identical bindings share one native layout.
type Builder interface {
	// Build describes, serializes and materializes the layout of a program. Nothing is
	// created when serialization fails.
	//
	// Parameters:
	//   - agg: merged reflection of the program
	//   - flags: layout usage flags
	//
	// Returns:
	//   - *Layout: the layout, shared with earlier builds of the same blob
	//   - error: a gpu.ErrInvalidLayout wrap on serialization failure, or the device error
	Build(agg reflection.Aggregated, flags Flags) (*Layout, error)

	// Count returns how many distinct native layouts were created.
	//
	// Returns:
	//   - int: number of cached layouts
	Count() int

	// Release frees every cached layout.
	Release()
}

type builder struct {
	mu     sync.Mutex
	device gpu.Device
	label  string
	cache  map[string]*Layout
}

var _ Builder = &builder{}

// NewBuilder creates a Builder on a device.
//
// Parameters:
//   - device: the device layouts are created on
//   - options: variadic list of BuilderOption functions
//
// Returns:
//   - Builder: the builder
func NewBuilder(device gpu.Device, options ...BuilderOption) Builder {
	if device == nil {
		panic("binding_layout: nil device")
	}
	b := &builder{device: device, label: "binding-layout", cache: make(map[string]*Layout)}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *builder) Build(agg reflection.Aggregated, flags Flags) (*Layout, error) {
	desc, err := Describe(agg, flags, b.label)
	if err != nil {
		return nil, err
	}
	blob, err := gpu.SerializeBindingLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("binding_layout: serialize: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.cache[string(blob)]; ok {
		return l, nil
	}
	native, err := b.device.CreateBindingLayout(blob)
	if err != nil {
		return nil, fmt.Errorf("binding_layout: create: %w", err)
	}

	l := &Layout{
		Descriptor: desc,
		Blob:       blob,
		Native:     native,
		slotByName: make(map[string]uint32, len(desc.Slots)),
	}
	for i, s := range desc.Slots {
		l.slotByName[s.Name] = uint32(i)
	}
	b.cache[string(blob)] = l
	logger.Logger().Debug("binding layout created", "slots", len(desc.Slots), "samplers", len(desc.StaticSamplers), "cost", desc.Cost())
	return l, nil
}

func (b *builder) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cache)
}

func (b *builder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, l := range b.cache {
		l.Native.Release()
		delete(b.cache, k)
	}
}
