// Package resource_table allocates the shader-visible descriptor table shared by every pass
// of a frame. The table is sized up front by counting global slots and material fields;
// each material then owns a fixed region of it for the table's lifetime.
package resource_table

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

var (
	// ErrTableFull is returned when a reservation exceeds the table capacity. Tables never grow.
	ErrTableFull = errors.New("resource_table: table full")

	// ErrRegionMismatch is returned when a region is too small for a material, lies outside
	// the reserved part of the table, or differs from the region the material is bound to.
	ErrRegionMismatch = errors.New("resource_table: region mismatch")
)

// TableRegion is a run of consecutive table slots.
type TableRegion struct {
	Base  uint32
	Count uint32
}

// End returns one past the last slot of the region. It is widened so a region ending at
// the top of the slot range does not wrap to zero.
func (r TableRegion) End() uint64 {
	return uint64(r.Base) + uint64(r.Count)
}

// Contains reports whether slot lies inside the region.
func (r TableRegion) Contains(slot uint32) bool {
	return slot >= r.Base && uint64(slot) < r.End()
}

// Slot returns the absolute table slot of the i-th slot in the region.
func (r TableRegion) Slot(i uint32) uint32 {
	return r.Base + i
}

// Handles addresses one written table slot.
type Handles struct {
	Slot uint32
	CPU  gpu.DescriptorHandle
	GPU  gpu.DescriptorHandle
}

// Material is the view of a material instance the table binds. Field order is stable, so
// field i of a material always lands in slot i of its region.
type Material interface {
	// Name returns the material name for diagnostics.
	Name() string

	// TableFields returns the names of the fields that occupy table slots, in slot order.
	TableFields() []string

	// FieldView returns the view to write for a table field. A view with no resource is
	// written as a null descriptor of the view's kind.
	FieldView(field string) gpu.ViewDescriptor

	// DirtyFields returns the table fields changed since they were last written.
	DirtyFields() []string

	// MarkClean clears the dirty flag of a field.
	MarkClean(field string)

	// Region returns the region the material is bound to, if any.
	Region() (TableRegion, bool)

	// Attach records the region and the handles of every field after a bind.
	Attach(region TableRegion, handles map[string]Handles)
}

// CountSlots returns the capacity a table needs for the global slots plus every material
// table field. Materials appearing more than once are counted once.
//
// Parameters:
//   - globalSlots: number of fixed frame-context slots
//   - materials: every material of the scene
//
// Returns:
//   - uint32: the total slot count
func CountSlots(globalSlots uint32, materials ...Material) uint32 {
	total := globalSlots
	seen := make(map[Material]bool, len(materials))
	for _, m := range materials {
		if m == nil || seen[m] {
			continue
		}
		seen[m] = true
		total += uint32(len(m.TableFields()))
	}
	return total
}

// Table is a fixed-capacity shader-visible descriptor table.
type Table interface {
	// Heap returns the descriptor heap backing the table.
	//
	// Returns:
	//   - gpu.DescriptorHeap: the heap to bind with SetDescriptorHeap
	Heap() gpu.DescriptorHeap

	// Capacity returns the number of slots.
	//
	// Returns:
	//   - uint32: the fixed capacity
	Capacity() uint32

	// Reserved returns the number of slots handed out by Reserve.
	//
	// Returns:
	//   - uint32: reserved slot count
	Reserved() uint32

	// Reserve bump-allocates a region of count slots. Regions never move or overlap.
	//
	// Parameters:
	//   - count: number of slots
	//
	// Returns:
	//   - TableRegion: the reserved region
	//   - error: ErrTableFull if the table has fewer than count free slots
	Reserve(count uint32) (TableRegion, error)

	// Handles returns the CPU and GPU handles of a slot.
	//
	// Parameters:
	//   - slot: absolute table slot
	//
	// Returns:
	//   - Handles: the slot handles
	Handles(slot uint32) Handles

	// ReserveGlobals reserves the frame-context region. It may be called once, before any
	// material region is reserved.
	//
	// Parameters:
	//   - count: number of global slots
	//
	// Returns:
	//   - TableRegion: the global region
	//   - error: ErrRegionMismatch if globals are already reserved or slots were handed out
	//     first, ErrTableFull if the table is too small
	ReserveGlobals(count uint32) (TableRegion, error)

	// WriteGlobal writes a frame-context view into a slot of the global region.
	//
	// Parameters:
	//   - slot: absolute table slot, inside the region returned by ReserveGlobals
	//   - view: the view to write
	//
	// Returns:
	//   - Handles: the slot handles
	//   - error: ErrRegionMismatch if the slot is outside the global region, or the heap error
	WriteGlobal(slot uint32, view gpu.ViewDescriptor) (Handles, error)

	// BindRange writes every table field of a material into consecutive slots of region and
	// attaches the region and handles to the material. Binding again at the same region
	// rewrites it; binding at any other region is an error.
	//
	// Parameters:
	//   - m: the material
	//   - region: a region returned by Reserve with at least one slot per field
	//
	// Returns:
	//   - error: ErrRegionMismatch on a wrong region, or the heap error
	BindRange(m Material, region TableRegion) error

	// UpdateModified rewrites only the dirty fields of a bound material.
	//
	// Parameters:
	//   - m: a material previously passed to BindRange
	//
	// Returns:
	//   - int: number of slots written
	//   - error: ErrRegionMismatch if the material was never bound, or the heap error
	UpdateModified(m Material) (int, error)

	// Writes returns the total number of descriptor writes made through the table.
	//
	// Returns:
	//   - int: descriptor write count
	Writes() int

	// Release frees the heap.
	Release()
}

type table struct {
	heap     gpu.DescriptorHeap
	capacity uint32
	next     uint32
	globals  TableRegion
	writes   int
}

var _ Table = &table{}

// Allocate creates a table with exactly total slots.
//
// Parameters:
//   - device: the device to create the heap on
//   - total: capacity, normally the result of CountSlots
//   - label: debug label of the heap
//
// Returns:
//   - Table: the table, with no slots reserved
//   - error: error if the heap cannot be created
func Allocate(device gpu.Device, total uint32, label string) (Table, error) {
	heap, err := device.CreateDescriptorHeap(gpu.DescriptorHeapDescriptor{Label: label, Capacity: total})
	if err != nil {
		return nil, fmt.Errorf("resource_table: allocate %d slots: %w", total, err)
	}
	logger.Logger().Debug("resource table allocated", "label", label, "capacity", total)
	return &table{heap: heap, capacity: total}, nil
}

func (t *table) Heap() gpu.DescriptorHeap {
	return t.heap
}

func (t *table) Capacity() uint32 {
	return t.capacity
}

func (t *table) Reserved() uint32 {
	return t.next
}

func (t *table) Reserve(count uint32) (TableRegion, error) {
	if count > t.capacity-t.next {
		return TableRegion{}, fmt.Errorf("%w: %d slots requested, %d of %d free", ErrTableFull, count, t.capacity-t.next, t.capacity)
	}
	r := TableRegion{Base: t.next, Count: count}
	t.next += count
	return r, nil
}

func (t *table) ReserveGlobals(count uint32) (TableRegion, error) {
	if t.globals.Count != 0 {
		return TableRegion{}, fmt.Errorf("%w: globals already reserved at [%d, %d)", ErrRegionMismatch, t.globals.Base, t.globals.End())
	}
	if t.next != 0 {
		return TableRegion{}, fmt.Errorf("%w: %d slots reserved before the globals", ErrRegionMismatch, t.next)
	}
	r, err := t.Reserve(count)
	if err != nil {
		return TableRegion{}, err
	}
	t.globals = r
	return r, nil
}

func (t *table) Handles(slot uint32) Handles {
	inc := t.heap.Increment()
	return Handles{
		Slot: slot,
		CPU:  t.heap.CPUStart().Offset(slot, inc),
		GPU:  t.heap.GPUStart().Offset(slot, inc),
	}
}

func (t *table) write(slot uint32, view gpu.ViewDescriptor) (Handles, error) {
	h := t.Handles(slot)
	if err := t.heap.Write(h.CPU, view); err != nil {
		return Handles{}, fmt.Errorf("resource_table: write slot %d: %w", slot, err)
	}
	t.writes++
	return h, nil
}

func (t *table) WriteGlobal(slot uint32, view gpu.ViewDescriptor) (Handles, error) {
	if !t.globals.Contains(slot) {
		return Handles{}, fmt.Errorf("%w: slot %d is outside the global region [%d, %d)", ErrRegionMismatch, slot, t.globals.Base, t.globals.End())
	}
	return t.write(slot, view)
}

func (t *table) BindRange(m Material, region TableRegion) error {
	fields := m.TableFields()
	if uint32(len(fields)) > region.Count {
		return fmt.Errorf("%w: material %q has %d fields, region holds %d", ErrRegionMismatch, m.Name(), len(fields), region.Count)
	}
	if region.End() > uint64(t.next) {
		return fmt.Errorf("%w: region [%d, %d) is not reserved", ErrRegionMismatch, region.Base, region.End())
	}
	if prev, ok := m.Region(); ok && prev != region {
		return fmt.Errorf("%w: material %q is bound at [%d, %d)", ErrRegionMismatch, m.Name(), prev.Base, prev.End())
	}

	handles := make(map[string]Handles, len(fields))
	for i, f := range fields {
		h, err := t.write(region.Slot(uint32(i)), m.FieldView(f))
		if err != nil {
			return err
		}
		handles[f] = h
	}
	m.Attach(region, handles)
	for _, f := range fields {
		m.MarkClean(f)
	}
	return nil
}

func (t *table) UpdateModified(m Material) (int, error) {
	region, ok := m.Region()
	if !ok {
		return 0, fmt.Errorf("%w: material %q is not bound", ErrRegionMismatch, m.Name())
	}
	index := make(map[string]uint32)
	for i, f := range m.TableFields() {
		index[f] = uint32(i)
	}

	written := 0
	for _, f := range m.DirtyFields() {
		i, ok := index[f]
		if !ok {
			continue
		}
		if _, err := t.write(region.Slot(i), m.FieldView(f)); err != nil {
			return written, err
		}
		m.MarkClean(f)
		written++
	}
	return written, nil
}

func (t *table) Writes() int {
	return t.writes
}

func (t *table) Release() {
	t.heap.Release()
}
