package material

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/binding_layout"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/reflection"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/resource_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

var (
	// ErrUnknownField is returned by setters for a name the program does not declare.
	ErrUnknownField = errors.New("material: unknown field")

	// ErrFieldSize is returned by setters when the value does not match the field size.
	ErrFieldSize = errors.New("material: field size mismatch")

	// ErrFieldKind is returned when a constant setter targets a table field or the reverse.
	ErrFieldKind = errors.New("material: wrong field kind")
)

// constantRange is the location of a constant field inside the owned byte buffer.
type constantRange struct {
	offset uint32
	length uint32
}

// groupRange is one owned inline constant group.
type groupRange struct {
	name  string
	slot  uint32
	bytes constantRange
}

// tableField is one owned table field.
type tableField struct {
	name    string
	binding reflection.ShaderBinding
	texture *model.Texture
	view    gpu.ViewDescriptor
}

// instance is the implementation of the Instance interface.
type instance struct {
	name    string
	program shader.Program
	layout  *binding_layout.Layout

	data      []byte
	constants map[string]constantRange
	groups    []groupRange

	fields     []tableField
	fieldIndex map[string]int
	dirty      map[string]bool

	region  *resource_table.TableRegion
	handles map[string]resource_table.Handles
}

// Instance is a material bound to one shader program. Constant fields live in a single owned
// byte buffer laid out by reflection; table fields (textures and buffers) occupy consecutive
// slots of the resource table. Frame-context bindings are never owned by an instance.
type Instance interface {
	resource_table.Material

	// Program retrieves the shader program the instance was created for.
	//
	// Returns:
	//   - shader.Program: the owning program
	Program() shader.Program

	// Layout retrieves the binding layout of the owning program.
	//
	// Returns:
	//   - *binding_layout.Layout: the layout
	Layout() *binding_layout.Layout

	// ConstantFields lists the settable constant field names, group members first by group.
	//
	// Returns:
	//   - []string: field names
	ConstantFields() []string

	// SetColor writes an RGBA color into a vec4 field.
	//
	// Parameters:
	//   - field: member name, or "group.member"
	//   - rgba: the color
	//
	// Returns:
	//   - error: ErrUnknownField or ErrFieldSize
	SetColor(field string, rgba [4]float32) error

	// SetFloat writes a scalar into an f32 field.
	//
	// Parameters:
	//   - field: member name, or "group.member"
	//   - v: the value
	//
	// Returns:
	//   - error: ErrUnknownField or ErrFieldSize
	SetFloat(field string, v float32) error

	// SetVector writes a float vector into a field of exactly len(v) floats.
	//
	// Parameters:
	//   - field: member name, or "group.member"
	//   - v: the components
	//
	// Returns:
	//   - error: ErrUnknownField or ErrFieldSize
	SetVector(field string, v []float32) error

	// SetMatrix writes a column-major 4x4 matrix into a mat4x4 field.
	//
	// Parameters:
	//   - field: member name, or "group.member"
	//   - m: the matrix
	//
	// Returns:
	//   - error: ErrUnknownField or ErrFieldSize
	SetMatrix(field string, m common.Mat4) error

	// SetTexture assigns a texture to a sampled-texture table field and marks it dirty. A nil
	// texture, or one not yet uploaded, is bound as a null view.
	//
	// Parameters:
	//   - field: table field name
	//   - tex: the texture, may be nil
	//
	// Returns:
	//   - error: ErrUnknownField or ErrFieldKind
	SetTexture(field string, tex *model.Texture) error

	// SetView assigns an explicit view to any table field and marks it dirty.
	//
	// Parameters:
	//   - field: table field name
	//   - view: the view; its Kind is forced to the field's view kind
	//
	// Returns:
	//   - error: ErrUnknownField
	SetView(field string, view gpu.ViewDescriptor) error

	// Textures lists the distinct textures assigned to table fields, in field order.
	//
	// Returns:
	//   - []*model.Texture: the textures
	Textures() []*model.Texture

	// ConstantBytes returns the current bytes of an owned inline group. The slice aliases the
	// owned buffer and is bounded to the group.
	//
	// Parameters:
	//   - group: inline group name
	//
	// Returns:
	//   - []byte: the group bytes, or nil if the instance owns no such group
	ConstantBytes(group string) []byte

	// HitGroupPayload returns the shader-table payload of the instance: the GPU handle of its
	// table region (zero when unbound) followed by every owned constant byte.
	//
	// Returns:
	//   - []byte: the payload
	HitGroupPayload() []byte

	// FieldHandles returns the handles recorded for a table field by the resource table.
	//
	// Parameters:
	//   - field: table field name
	//
	// Returns:
	//   - resource_table.Handles: the handles
	//   - bool: false if the field is unknown or unbound
	FieldHandles(field string) (resource_table.Handles, bool)

	// Bind records every binding of the layout into cl: owned inline groups push their bytes,
	// owned table fields bind their recorded GPU handle and frame-context slots take their
	// values from frame. Bindings with no value are skipped.
	//
	// Parameters:
	//   - cl: the command list, with the program's layout already set
	//   - frame: per-frame and per-draw values of reserved bindings, may be nil
	Bind(cl gpu.CommandList, frame *FrameContext)

	// Detach forgets the table region and handles and marks every table field dirty, so the
	// instance can be bound into a new table.
	Detach()
}

var _ Instance = &instance{}

// NewInstance creates a material instance for a program. Options are applied after the
// owned buffer is laid out and panic if they name a field the program does not declare.
//
// Parameters:
//   - name: the material name
//   - program: the owning program
//   - agg: merged reflection of the program
//   - layout: the program's binding layout
//   - options: variadic list of InstanceBuilderOption functions
//
// Returns:
//   - Instance: the material instance
func NewInstance(name string, program shader.Program, agg reflection.Aggregated, layout *binding_layout.Layout, options ...InstanceBuilderOption) Instance {
	if layout == nil {
		panic("material: nil binding layout")
	}
	m := &instance{
		name:       name,
		program:    program,
		layout:     layout,
		constants:  make(map[string]constantRange),
		fieldIndex: make(map[string]int),
		dirty:      make(map[string]bool),
	}

	var size uint32
	for _, g := range agg.RootConstantGroups {
		if IsFrameContext(g.Binding.Name) {
			continue
		}
		slot, ok := layout.SlotOf(g.Binding.Name)
		if !ok {
			panic(fmt.Sprintf("material: layout has no slot for group %q", g.Binding.Name))
		}
		size = common.AlignUp(size, 4)
		gr := groupRange{name: g.Binding.Name, slot: slot, bytes: constantRange{offset: size, length: g.Binding.ByteSize}}
		m.groups = append(m.groups, gr)
		for _, mem := range g.Members {
			r := constantRange{offset: size + mem.Offset, length: mem.Size}
			if _, taken := m.constants[mem.Name]; !taken {
				m.constants[mem.Name] = r
			}
			m.constants[g.Binding.Name+"."+mem.Name] = r
		}
		size += g.Binding.ByteSize
	}
	m.data = make([]byte, size)

	for _, t := range agg.TableResources {
		if IsFrameContext(t.Binding.Name) {
			continue
		}
		m.fieldIndex[t.Binding.Name] = len(m.fields)
		m.fields = append(m.fields, tableField{
			name:    t.Binding.Name,
			binding: t.Binding,
			view:    gpu.ViewDescriptor{Kind: t.Binding.ViewKind()},
		})
		m.dirty[t.Binding.Name] = true
	}

	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *instance) Name() string {
	return m.name
}

func (m *instance) Program() shader.Program {
	return m.program
}

func (m *instance) Layout() *binding_layout.Layout {
	return m.layout
}

func (m *instance) ConstantFields() []string {
	var out []string
	for name := range m.constants {
		if !strings.Contains(name, ".") {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return m.constants[out[i]].offset < m.constants[out[j]].offset
	})
	return out
}

func (m *instance) constant(field string, size uint32) ([]byte, error) {
	r, ok := m.constants[field]
	if !ok {
		if _, table := m.fieldIndex[field]; table {
			return nil, fmt.Errorf("%w: %q is a table field of %q", ErrFieldKind, field, m.name)
		}
		return nil, fmt.Errorf("%w: %q in %q", ErrUnknownField, field, m.name)
	}
	if r.length != size {
		return nil, fmt.Errorf("%w: %q is %d bytes, got %d", ErrFieldSize, field, r.length, size)
	}
	return m.data[r.offset : r.offset+r.length : r.offset+r.length], nil
}

func putFloats(dst []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

func (m *instance) SetColor(field string, rgba [4]float32) error {
	dst, err := m.constant(field, 16)
	if err != nil {
		return err
	}
	putFloats(dst, rgba[:])
	return nil
}

func (m *instance) SetFloat(field string, v float32) error {
	dst, err := m.constant(field, 4)
	if err != nil {
		return err
	}
	putFloats(dst, []float32{v})
	return nil
}

func (m *instance) SetVector(field string, v []float32) error {
	dst, err := m.constant(field, uint32(len(v)*4))
	if err != nil {
		return err
	}
	putFloats(dst, v)
	return nil
}

func (m *instance) SetMatrix(field string, mat common.Mat4) error {
	dst, err := m.constant(field, 64)
	if err != nil {
		return err
	}
	putFloats(dst, mat[:])
	return nil
}

func (m *instance) tableField(field string) (*tableField, error) {
	i, ok := m.fieldIndex[field]
	if !ok {
		if _, c := m.constants[field]; c {
			return nil, fmt.Errorf("%w: %q is a constant field of %q", ErrFieldKind, field, m.name)
		}
		return nil, fmt.Errorf("%w: %q in %q", ErrUnknownField, field, m.name)
	}
	return &m.fields[i], nil
}

func (m *instance) SetTexture(field string, tex *model.Texture) error {
	f, err := m.tableField(field)
	if err != nil {
		return err
	}
	if f.binding.Shape() != gpu.ShapeTexture2D {
		return fmt.Errorf("%w: %q is a %s binding, not a sampled texture", ErrFieldKind, field, f.binding.Resource)
	}
	f.texture = tex
	f.view = gpu.ViewDescriptor{Kind: f.binding.ViewKind()}
	m.dirty[field] = true
	return nil
}

func (m *instance) SetView(field string, view gpu.ViewDescriptor) error {
	f, err := m.tableField(field)
	if err != nil {
		return err
	}
	view.Kind = f.binding.ViewKind()
	f.texture = nil
	f.view = view
	m.dirty[field] = true
	return nil
}

func (m *instance) Textures() []*model.Texture {
	var out []*model.Texture
	seen := make(map[*model.Texture]bool)
	for _, f := range m.fields {
		if f.texture == nil || seen[f.texture] {
			continue
		}
		seen[f.texture] = true
		out = append(out, f.texture)
	}
	return out
}

func (m *instance) ConstantBytes(group string) []byte {
	for _, g := range m.groups {
		if g.name == group {
			r := g.bytes
			return m.data[r.offset : r.offset+r.length : r.offset+r.length]
		}
	}
	return nil
}

func (m *instance) HitGroupPayload() []byte {
	p := GPUHitGroupPayload{Constants: m.data}
	if m.region != nil && len(m.fields) > 0 {
		if h, ok := m.handles[m.fields[0].name]; ok {
			p.TableBase = h.GPU.Ptr
		}
	}
	return p.Marshal()
}

func (m *instance) FieldHandles(field string) (resource_table.Handles, bool) {
	h, ok := m.handles[field]
	return h, ok
}

func (m *instance) TableFields() []string {
	out := make([]string, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.name
	}
	return out
}

func (m *instance) FieldView(field string) gpu.ViewDescriptor {
	i, ok := m.fieldIndex[field]
	if !ok {
		return gpu.ViewDescriptor{Kind: gpu.DescriptorKindSRV}
	}
	f := m.fields[i]
	if f.texture != nil {
		if t := f.texture.GPU(); t != nil {
			return gpu.ViewDescriptor{Kind: f.binding.ViewKind(), Texture: t}
		}
	}
	return f.view
}

func (m *instance) DirtyFields() []string {
	var out []string
	for _, f := range m.fields {
		if m.dirty[f.name] {
			out = append(out, f.name)
		}
	}
	return out
}

func (m *instance) MarkClean(field string) {
	delete(m.dirty, field)
}

func (m *instance) Region() (resource_table.TableRegion, bool) {
	if m.region == nil {
		return resource_table.TableRegion{}, false
	}
	return *m.region, true
}

func (m *instance) Attach(region resource_table.TableRegion, handles map[string]resource_table.Handles) {
	m.region = &region
	m.handles = handles
}

func (m *instance) Detach() {
	m.region = nil
	m.handles = nil
	for _, f := range m.fields {
		m.dirty[f.name] = true
	}
}
