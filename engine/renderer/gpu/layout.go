package gpu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SlotKind distinguishes inline-constant slots from descriptor-table slots.
type SlotKind uint8

const (
	// SlotInlineConstants holds 32-bit values pushed straight into the command stream.
	SlotInlineConstants SlotKind = iota

	// SlotTable holds a GPU handle to a range of descriptors in the bound heap.
	SlotTable
)

// String returns the slot kind name.
func (k SlotKind) String() string {
	if k == SlotInlineConstants {
		return "inline-constants"
	}
	return "table"
}

// RangeType is the descriptor class of a table range.
type RangeType uint8

const (
	// RangeCBV is a range of constant-buffer views.
	RangeCBV RangeType = iota

	// RangeSRV is a range of shader-resource views.
	RangeSRV

	// RangeUAV is a range of unordered-access views.
	RangeUAV
)

// String returns the range type name.
func (t RangeType) String() string {
	switch t {
	case RangeCBV:
		return "CBV"
	case RangeSRV:
		return "SRV"
	case RangeUAV:
		return "UAV"
	default:
		return "unknown"
	}
}

// ResourceShape describes what a table range points at, which native backends need to
// declare matching binding types.
type ResourceShape uint8

const (
	// ShapeConstantBuffer is a uniform buffer.
	ShapeConstantBuffer ResourceShape = iota

	// ShapeTexture2D is a sampled 2D texture.
	ShapeTexture2D

	// ShapeStructuredBuffer is a storage buffer.
	ShapeStructuredBuffer

	// ShapeStorageTexture2D is a writable 2D texture.
	ShapeStorageTexture2D

	// ShapeAccelerationStructure is a top-level acceleration structure.
	ShapeAccelerationStructure
)

// DescriptorRange is the single range of a table slot.
type DescriptorRange struct {
	Type         RangeType
	Count        uint32
	BaseRegister uint32
	Space        uint32
	Shape        ResourceShape
	Format       TextureFormat
}

// LayoutSlot is one root parameter of a binding layout.
type LayoutSlot struct {
	Kind           SlotKind
	Name           string
	Register       uint32
	Space          uint32
	Num32BitValues uint32
	Range          DescriptorRange
}

// FilterMode selects texel filtering for a static sampler.
type FilterMode uint8

const (
	// FilterPoint samples the nearest texel.
	FilterPoint FilterMode = iota
	// FilterLinear blends neighbouring texels.
	FilterLinear
)

// AddressMode selects out-of-range addressing for a static sampler.
type AddressMode uint8

const (
	// AddressWrap repeats the texture.
	AddressWrap AddressMode = iota
	// AddressClamp clamps to the edge texel.
	AddressClamp
)

// CompareFunction is the comparison used by comparison samplers.
type CompareFunction uint8

const (
	// CompareAlways always passes.
	CompareAlways CompareFunction = iota
	// CompareLess passes when the reference is less than the sample.
	CompareLess
)

// StaticSampler is a fixed-function sampler baked into a binding layout.
type StaticSampler struct {
	Register uint32
	Space    uint32
	Filter   FilterMode
	Address  AddressMode
	Compare  CompareFunction
}

// LayoutFlags tune how a binding layout is used.
type LayoutFlags uint32

const (
	// LayoutAllowInputAssembler marks layouts used by rasterization pipelines with vertex input.
	LayoutAllowInputAssembler LayoutFlags = 1 << iota

	// LayoutRayTracing marks the global layout of a ray-tracing state object.
	LayoutRayTracing
)

// Has reports whether every bit of flag is set in f.
func (f LayoutFlags) Has(flag LayoutFlags) bool {
	return f&flag == flag
}

// BindingLayoutDescriptor is the complete description of a binding layout.
type BindingLayoutDescriptor struct {
	Label          string
	Slots          []LayoutSlot
	StaticSamplers []StaticSampler
	Flags          LayoutFlags
}

// Cost returns the root cost of the layout in DWORDs: one per inline 32-bit value and
// one per table.
//
// Returns:
//   - uint32: the root cost
func (d BindingLayoutDescriptor) Cost() uint32 {
	var cost uint32
	for _, s := range d.Slots {
		if s.Kind == SlotInlineConstants {
			cost += s.Num32BitValues
		} else {
			cost++
		}
	}
	return cost
}

const (
	layoutMagic   = 0x4c42584f // "OXBL"
	layoutVersion = 1
)

type registerClass uint8

const (
	classB registerClass = iota
	classT
	classU
	classS
)

type registerKey struct {
	class    registerClass
	register uint32
	space    uint32
}

// Validate checks a layout against the device limits.
//
// Parameters:
//   - limits: device limits providing the maximum root cost
//
// Returns:
//   - error: an ErrInvalidLayout wrap describing the first problem found
func (d BindingLayoutDescriptor) Validate(limits Limits) error {
	if cost := d.Cost(); cost > limits.MaxRootCost {
		return fmt.Errorf("%w: root cost %d exceeds %d DWORDs", ErrInvalidLayout, cost, limits.MaxRootCost)
	}

	used := make(map[registerKey]string)
	claim := func(key registerKey, owner string) error {
		if prev, ok := used[key]; ok {
			return fmt.Errorf("%w: %q and %q both use register %d space %d", ErrInvalidLayout, prev, owner, key.register, key.space)
		}
		used[key] = owner
		return nil
	}

	for i, s := range d.Slots {
		switch s.Kind {
		case SlotInlineConstants:
			if s.Num32BitValues == 0 {
				return fmt.Errorf("%w: inline slot %d (%q) has no values", ErrInvalidLayout, i, s.Name)
			}
			if err := claim(registerKey{classB, s.Register, s.Space}, s.Name); err != nil {
				return err
			}
		case SlotTable:
			if s.Range.Count == 0 {
				return fmt.Errorf("%w: table slot %d (%q) has an empty range", ErrInvalidLayout, i, s.Name)
			}
			class := classT
			switch s.Range.Type {
			case RangeCBV:
				class = classB
			case RangeUAV:
				class = classU
			case RangeSRV:
			default:
				return fmt.Errorf("%w: table slot %d (%q) has unknown range type %d", ErrInvalidLayout, i, s.Name, s.Range.Type)
			}
			for r := uint32(0); r < s.Range.Count; r++ {
				if err := claim(registerKey{class, s.Range.BaseRegister + r, s.Range.Space}, s.Name); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: slot %d has unknown kind %d", ErrInvalidLayout, i, s.Kind)
		}
	}

	for i, smp := range d.StaticSamplers {
		if err := claim(registerKey{classS, smp.Register, smp.Space}, fmt.Sprintf("sampler#%d", i)); err != nil {
			return err
		}
	}
	return nil
}

// SerializeBindingLayout validates a layout description and encodes it into the blob
// accepted by Device.CreateBindingLayout.
//
// Parameters:
//   - desc: the layout description
//
// Returns:
//   - []byte: the serialized layout
//   - error: an ErrInvalidLayout wrap if validation fails
func SerializeBindingLayout(desc BindingLayoutDescriptor) ([]byte, error) {
	if err := desc.Validate(DefaultLimits()); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := func(v any) {
		// bytes.Buffer writes never fail
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	str := func(s string) {
		w(uint16(len(s)))
		buf.WriteString(s)
	}

	w(uint32(layoutMagic))
	w(uint32(layoutVersion))
	w(uint32(desc.Flags))
	str(desc.Label)

	w(uint32(len(desc.Slots)))
	for _, s := range desc.Slots {
		w(uint8(s.Kind))
		str(s.Name)
		w(s.Register)
		w(s.Space)
		w(s.Num32BitValues)
		w(uint8(s.Range.Type))
		w(s.Range.Count)
		w(s.Range.BaseRegister)
		w(s.Range.Space)
		w(uint8(s.Range.Shape))
		w(uint8(s.Range.Format))
	}

	w(uint32(len(desc.StaticSamplers)))
	for _, smp := range desc.StaticSamplers {
		w(smp.Register)
		w(smp.Space)
		w(uint8(smp.Filter))
		w(uint8(smp.Address))
		w(uint8(smp.Compare))
	}
	return buf.Bytes(), nil
}

// DeserializeBindingLayout decodes and re-validates a serialized layout.
//
// Parameters:
//   - blob: output of SerializeBindingLayout
//
// Returns:
//   - BindingLayoutDescriptor: the decoded description
//   - error: an ErrInvalidLayout wrap if the blob is truncated, foreign or invalid
func DeserializeBindingLayout(blob []byte) (BindingLayoutDescriptor, error) {
	var desc BindingLayoutDescriptor
	r := bytes.NewReader(blob)
	var err error
	rd := func(v any) {
		if err == nil {
			err = binary.Read(r, binary.LittleEndian, v)
		}
	}
	str := func() string {
		var n uint16
		rd(&n)
		if err != nil {
			return ""
		}
		b := make([]byte, n)
		if _, e := io.ReadFull(r, b); e != nil {
			err = e
			return ""
		}
		return string(b)
	}

	var magic, version, flags uint32
	rd(&magic)
	rd(&version)
	if err == nil && (magic != layoutMagic || version != layoutVersion) {
		return desc, fmt.Errorf("%w: not a serialized binding layout", ErrInvalidLayout)
	}
	rd(&flags)
	desc.Flags = LayoutFlags(flags)
	desc.Label = str()

	var slotCount uint32
	rd(&slotCount)
	if err == nil && uint64(slotCount) > uint64(len(blob)) {
		return desc, fmt.Errorf("%w: slot count %d out of range", ErrInvalidLayout, slotCount)
	}
	for i := uint32(0); i < slotCount && err == nil; i++ {
		var s LayoutSlot
		var kind, rangeType, shape, format uint8
		rd(&kind)
		s.Name = str()
		rd(&s.Register)
		rd(&s.Space)
		rd(&s.Num32BitValues)
		rd(&rangeType)
		rd(&s.Range.Count)
		rd(&s.Range.BaseRegister)
		rd(&s.Range.Space)
		rd(&shape)
		rd(&format)
		s.Kind = SlotKind(kind)
		s.Range.Type = RangeType(rangeType)
		s.Range.Shape = ResourceShape(shape)
		s.Range.Format = TextureFormat(format)
		desc.Slots = append(desc.Slots, s)
	}

	var samplerCount uint32
	rd(&samplerCount)
	if err == nil && uint64(samplerCount) > uint64(len(blob)) {
		return desc, fmt.Errorf("%w: sampler count %d out of range", ErrInvalidLayout, samplerCount)
	}
	for i := uint32(0); i < samplerCount && err == nil; i++ {
		var smp StaticSampler
		var filter, address, compare uint8
		rd(&smp.Register)
		rd(&smp.Space)
		rd(&filter)
		rd(&address)
		rd(&compare)
		smp.Filter = FilterMode(filter)
		smp.Address = AddressMode(address)
		smp.Compare = CompareFunction(compare)
		desc.StaticSamplers = append(desc.StaticSamplers, smp)
	}

	if err != nil {
		return BindingLayoutDescriptor{}, fmt.Errorf("%w: truncated blob: %v", ErrInvalidLayout, err)
	}
	if err := desc.Validate(DefaultLimits()); err != nil {
		return BindingLayoutDescriptor{}, err
	}
	return desc, nil
}
