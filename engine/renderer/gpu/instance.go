package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// InstanceDescSize is the size in bytes of one top-level instance record.
const InstanceDescSize = 64

// InstanceFlags are per-instance ray-tracing flags stored in the top 8 bits of the
// hit-group word.
type InstanceFlags uint8

const (
	// InstanceFlagTriangleCullDisable disables back-face culling for the instance.
	InstanceFlagTriangleCullDisable InstanceFlags = 1 << iota

	// InstanceFlagTriangleFrontCCW treats counter-clockwise triangles as front facing.
	InstanceFlagTriangleFrontCCW

	// InstanceFlagForceOpaque skips any-hit shaders for the instance.
	InstanceFlagForceOpaque
)

// InstanceDesc is one record of a top-level acceleration structure's instance buffer.
//
// Byte layout (64 bytes, little endian):
//
//	0   [12]float32 row-major 3x4 object-to-world transform
//	48  uint32 instance id (low 24 bits) | mask (high 8 bits)
//	52  uint32 hit-group index (low 24 bits) | flags (high 8 bits)
//	56  uint64 bottom-level structure address
type InstanceDesc struct {
	Transform             [12]float32
	InstanceID            uint32
	Mask                  uint8
	HitGroupIndex         uint32
	Flags                 InstanceFlags
	AccelerationStructure uint64
}

// Size returns the byte size of the record.
func (d InstanceDesc) Size() int {
	return InstanceDescSize
}

// Marshal encodes the record into its 64-byte GPU layout. Id and hit-group index are
// truncated to 24 bits.
func (d InstanceDesc) Marshal() []byte {
	buf := make([]byte, InstanceDescSize)
	for i, v := range d.Transform {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[48:], d.InstanceID&0xFFFFFF|uint32(d.Mask)<<24)
	binary.LittleEndian.PutUint32(buf[52:], d.HitGroupIndex&0xFFFFFF|uint32(d.Flags)<<24)
	binary.LittleEndian.PutUint64(buf[56:], d.AccelerationStructure)
	return buf
}

// UnmarshalInstanceDesc decodes a 64-byte instance record.
//
// Parameters:
//   - b: at least InstanceDescSize bytes
//
// Returns:
//   - InstanceDesc: the decoded record
//   - error: error if b is too short
func UnmarshalInstanceDesc(b []byte) (InstanceDesc, error) {
	var d InstanceDesc
	if len(b) < InstanceDescSize {
		return d, fmt.Errorf("gpu: instance record needs %d bytes, got %d", InstanceDescSize, len(b))
	}
	for i := range d.Transform {
		d.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	idMask := binary.LittleEndian.Uint32(b[48:])
	d.InstanceID = idMask & 0xFFFFFF
	d.Mask = uint8(idMask >> 24)
	hgFlags := binary.LittleEndian.Uint32(b[52:])
	d.HitGroupIndex = hgFlags & 0xFFFFFF
	d.Flags = InstanceFlags(hgFlags >> 24)
	d.AccelerationStructure = binary.LittleEndian.Uint64(b[56:])
	return d, nil
}
