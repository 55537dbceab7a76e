// Package shader_table lays out and fills the ray-tracing shader table: a ray-generation
// section, a miss section and a hit-group section, each holding records made of a shader
// identifier followed by a per-record payload.
package shader_table

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// ErrUnknownExport is returned when a record names a function the pipeline does not export.
var ErrUnknownExport = errors.New("shader_table: unknown export")

// SectionKind names one of the three sections, in table order.
type SectionKind int

const (
	SectionRayGeneration SectionKind = iota
	SectionMiss
	SectionHitGroup
)

func (k SectionKind) String() string {
	switch k {
	case SectionRayGeneration:
		return "RayGeneration"
	case SectionMiss:
		return "Miss"
	case SectionHitGroup:
		return "HitGroup"
	default:
		return fmt.Sprintf("SectionKind(%d)", int(k))
	}
}

// Record is one shader-table entry before identifiers are resolved.
type Record struct {
	Export  string
	Payload []byte
}

// Section is the placement of one section inside the table buffer.
type Section struct {
	Offset uint64
	Size   uint64
	Stride uint64
	Count  int
}

// Layout is the placement of all three sections.
type Layout struct {
	Sections [3]Section
	Size     uint64
}

// Section returns the placement of one section.
func (l Layout) Section(kind SectionKind) Section {
	return l.Sections[kind]
}

// ComputeLayout places the three sections. Every section starts on the table alignment; a
// section's stride is the largest identifier + payload among its records rounded up to the
// record alignment.
//
// Parameters:
//   - limits: device identifier size and alignments
//   - sections: the records of the ray-generation, miss and hit-group sections
//
// Returns:
//   - Layout: the section placement
func ComputeLayout(limits gpu.Limits, sections [3][]Record) Layout {
	var l Layout
	offset := uint64(0)
	for i, records := range sections {
		largest := uint64(limits.ShaderIdentifierSize)
		for _, r := range records {
			largest = max(largest, uint64(limits.ShaderIdentifierSize)+uint64(len(r.Payload)))
		}
		stride := common.AlignUp(largest, uint64(limits.ShaderRecordAlignment))
		offset = common.AlignUp(offset, uint64(limits.ShaderTableAlignment))
		l.Sections[i] = Section{
			Offset: offset,
			Size:   stride * uint64(len(records)),
			Stride: stride,
			Count:  len(records),
		}
		offset += l.Sections[i].Size
	}
	l.Size = max(offset, uint64(limits.ShaderTableAlignment))
	return l
}

// Table is a built shader table in an upload buffer.
type Table interface {
	// Layout returns the section placement.
	Layout() Layout

	// Buffer returns the buffer holding the table.
	Buffer() gpu.Buffer

	// Regions returns the dispatch ranges of the three sections.
	//
	// Returns:
	//   - rayGen, miss, hitGroup: buffer, offset, size and stride of each section
	Regions() (rayGen, miss, hitGroup gpu.ShaderTableRange)

	// DispatchRays returns a dispatch descriptor covering the table for a launch size.
	//
	// Parameters:
	//   - width, height, depth: the launch dimensions
	//
	// Returns:
	//   - gpu.DispatchRaysDescriptor: the descriptor
	DispatchRays(width, height, depth uint32) gpu.DispatchRaysDescriptor

	// UpdatePayload rewrites the payload of one record when it differs from what the table
	// holds.
	//
	// Parameters:
	//   - kind: the section
	//   - index: the record within the section
	//   - payload: the new payload, no longer than the section stride allows
	//
	// Returns:
	//   - bool: true if the record was rewritten
	//   - error: error if the record does not exist, the payload is too large or the write fails
	UpdatePayload(kind SectionKind, index int, payload []byte) (bool, error)

	// Release frees the buffer.
	Release()
}

type table struct {
	layout Layout
	buffer gpu.Buffer
	idSize uint64
	shadow []byte
	label  string
	limits gpu.Limits
}

var _ Table = &table{}

// Build resolves every record's identifier from the pipeline, lays the table out and
// writes it into a new upload buffer.
//
// Parameters:
//   - device: the device creating the buffer
//   - pipeline: the ray-tracing pipeline exporting the identifiers
//   - sections: the records of the ray-generation, miss and hit-group sections
//   - options: variadic list of TableBuilderOption functions
//
// Returns:
//   - Table: the shader table
//   - error: ErrUnknownExport, a layout error or a buffer error
func Build(device gpu.Device, pipeline gpu.RayTracingPipeline, sections [3][]Record, options ...TableBuilderOption) (Table, error) {
	t := &table{label: "shader table", limits: device.Limits()}
	for _, opt := range options {
		opt(t)
	}

	if len(sections[SectionRayGeneration]) != 1 {
		return nil, fmt.Errorf("shader_table: %q needs exactly one ray generation record, got %d", t.label, len(sections[SectionRayGeneration]))
	}

	t.idSize = uint64(t.limits.ShaderIdentifierSize)
	t.layout = ComputeLayout(t.limits, sections)
	t.shadow = make([]byte, t.layout.Size)

	for kind, records := range sections {
		s := t.layout.Sections[kind]
		for i, r := range records {
			id, ok := pipeline.ShaderIdentifier(r.Export)
			if !ok {
				return nil, fmt.Errorf("%w: %s record %d names %q in %q", ErrUnknownExport, SectionKind(kind), i, r.Export, pipeline.Label())
			}
			if uint64(len(id)) != t.idSize {
				return nil, fmt.Errorf("shader_table: identifier of %q is %d bytes, want %d", r.Export, len(id), t.idSize)
			}
			at := s.Offset + uint64(i)*s.Stride
			copy(t.shadow[at:], id)
			copy(t.shadow[at+t.idSize:], r.Payload)
		}
	}

	buf, err := device.CreateBuffer(gpu.BufferDescriptor{
		Label: t.label,
		Size:  t.layout.Size,
		Usage: gpu.BufferUsageUpload | gpu.BufferUsageShaderTable | gpu.BufferUsageShaderResource,
	})
	if err != nil {
		return nil, fmt.Errorf("shader_table: create %q: %w", t.label, err)
	}
	if err := buf.Write(0, t.shadow); err != nil {
		buf.Release()
		return nil, fmt.Errorf("shader_table: write %q: %w", t.label, err)
	}
	t.buffer = buf

	logger.Logger().Debug("shader table built", "label", t.label, "bytes", t.layout.Size,
		"missStride", t.layout.Sections[SectionMiss].Stride, "hitStride", t.layout.Sections[SectionHitGroup].Stride)
	return t, nil
}

func (t *table) Layout() Layout {
	return t.layout
}

func (t *table) Buffer() gpu.Buffer {
	return t.buffer
}

func (t *table) region(kind SectionKind) gpu.ShaderTableRange {
	s := t.layout.Sections[kind]
	return gpu.ShaderTableRange{Buffer: t.buffer, Offset: s.Offset, Size: s.Size, Stride: s.Stride}
}

func (t *table) Regions() (rayGen, miss, hitGroup gpu.ShaderTableRange) {
	return t.region(SectionRayGeneration), t.region(SectionMiss), t.region(SectionHitGroup)
}

func (t *table) DispatchRays(width, height, depth uint32) gpu.DispatchRaysDescriptor {
	rayGen, miss, hitGroup := t.Regions()
	return gpu.DispatchRaysDescriptor{
		RayGeneration: rayGen,
		Miss:          miss,
		HitGroup:      hitGroup,
		Width:         width,
		Height:        height,
		Depth:         max(depth, 1),
	}
}

func (t *table) UpdatePayload(kind SectionKind, index int, payload []byte) (bool, error) {
	if kind < SectionRayGeneration || kind > SectionHitGroup {
		return false, fmt.Errorf("shader_table: unknown section %d", int(kind))
	}
	s := t.layout.Sections[kind]
	if index < 0 || index >= s.Count {
		return false, fmt.Errorf("shader_table: %s record %d out of range (%d records)", kind, index, s.Count)
	}
	room := s.Stride - t.idSize
	if uint64(len(payload)) > room {
		return false, fmt.Errorf("shader_table: %s payload of %d bytes exceeds %d", kind, len(payload), room)
	}

	at := s.Offset + uint64(index)*s.Stride + t.idSize
	padded := make([]byte, room)
	copy(padded, payload)
	if bytes.Equal(t.shadow[at:at+room], padded) {
		return false, nil
	}
	if err := t.buffer.Write(at, padded); err != nil {
		return false, fmt.Errorf("shader_table: write %s record %d: %w", kind, index, err)
	}
	copy(t.shadow[at:], padded)
	return true, nil
}

func (t *table) Release() {
	t.buffer.Release()
}
