package material

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
)

// Reserved binding names. A shader binding with one of these names is a frame-context slot:
// it is filled from the FrameContext at bind time and is never owned by a material.
const (
	FrameCamera     = "camera"
	FrameLights     = "lights"
	FrameTransform  = "transform"
	FrameReflection = "reflection"
	FrameSceneBVH   = "sceneBVH"
	FrameGPosition  = "gPosition"
	FrameGNormal    = "gNormal"
	FrameGMask      = "gMask"
	FrameOutput     = "output"
)

var frameContextNames = map[string]bool{
	FrameCamera:     true,
	FrameLights:     true,
	FrameTransform:  true,
	FrameReflection: true,
	FrameSceneBVH:   true,
	FrameGPosition:  true,
	FrameGNormal:    true,
	FrameGMask:      true,
	FrameOutput:     true,
}

// IsFrameContext reports whether name is a reserved frame-context binding.
func IsFrameContext(name string) bool {
	return frameContextNames[name]
}

// FrameContext carries the values of reserved bindings for one draw or dispatch. Constants
// feed inline slots, Tables feed table slots.
type FrameContext struct {
	Constants map[string][]byte
	Tables    map[string]gpu.DescriptorHandle
}

// NewFrameContext creates an empty FrameContext.
//
// Returns:
//   - *FrameContext: the context
func NewFrameContext() *FrameContext {
	return &FrameContext{
		Constants: make(map[string][]byte),
		Tables:    make(map[string]gpu.DescriptorHandle),
	}
}

// SetConstants sets the bytes pushed to a reserved inline slot.
func (f *FrameContext) SetConstants(name string, data []byte) {
	f.Constants[name] = data
}

// SetTable sets the GPU handle bound to a reserved table slot.
func (f *FrameContext) SetTable(name string, handle gpu.DescriptorHandle) {
	f.Tables[name] = handle
}

func (m *instance) Bind(cl gpu.CommandList, frame *FrameContext) {
	for _, g := range m.groups {
		r := g.bytes
		cl.SetInlineConstants(g.slot, m.data[r.offset:r.offset+r.length])
	}

	for _, f := range m.fields {
		h, ok := m.handles[f.name]
		if !ok {
			continue
		}
		if slot, ok := m.layout.SlotOf(f.name); ok {
			cl.SetTable(slot, h.GPU)
		}
	}

	if frame == nil {
		return
	}
	for i, s := range m.layout.Descriptor.Slots {
		if !IsFrameContext(s.Name) {
			continue
		}
		switch s.Kind {
		case gpu.SlotInlineConstants:
			data, ok := frame.Constants[s.Name]
			if !ok {
				continue
			}
			if limit := int(s.Num32BitValues) * 4; len(data) > limit {
				data = data[:limit]
			}
			cl.SetInlineConstants(uint32(i), data)
		case gpu.SlotTable:
			if h, ok := frame.Tables[s.Name]; ok {
				cl.SetTable(uint32(i), h)
			}
		}
	}
}
