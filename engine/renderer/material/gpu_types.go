package material

import (
	"encoding/binary"
)

// GPUHitGroupPayloadHeaderSize is the size of the table handle that starts every hit-group payload.
const GPUHitGroupPayloadHeaderSize = 8

// GPUHitGroupPayload is the local root data of a hit-group shader-table record.
//
// Byte layout (little endian):
//
//	0  uint64 GPU handle of the material's first table slot, 0 when it has none
//	8  the material's owned constant bytes, in group order
type GPUHitGroupPayload struct {
	TableBase uint64
	Constants []byte
}

// Size returns the size of the payload in bytes.
//
// Returns:
//   - int: the size of the payload in bytes.
func (g *GPUHitGroupPayload) Size() int {
	return GPUHitGroupPayloadHeaderSize + len(g.Constants)
}

// Marshal serializes the payload into a byte buffer suitable for a shader-table record.
//
// Returns:
//   - []byte: Size() bytes ready for upload.
func (g *GPUHitGroupPayload) Marshal() []byte {
	buf := make([]byte, g.Size())
	binary.LittleEndian.PutUint64(buf[0:8], g.TableBase)
	copy(buf[GPUHitGroupPayloadHeaderSize:], g.Constants)
	return buf
}
