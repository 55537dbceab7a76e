package light

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// MaxDirectionalLights is the capacity of the directional array in LightBuffer.
	MaxDirectionalLights = 10

	// MaxPointLights is the capacity of the point array in LightBuffer.
	MaxPointLights = 10

	// GPULightBufferSize is the byte size of the WGSL LightBuffer struct.
	GPULightBufferSize = 16 + MaxDirectionalLights*32 + MaxPointLights*32
)

// GPULightBufferSource is the canonical WGSL definition of DirectionalLight, PointLight
// and LightBuffer. Matches GPULightBuffer layout exactly (656 bytes).
//
//go:embed assets/light_buffer.wgsl
var GPULightBufferSource string

// GPUDirectionalLight is the GPU-aligned representation of a directional light.
// Size: 32 bytes.
type GPUDirectionalLight struct {
	Direction [3]float32 // offset  0: normalized travel direction (vec4.xyz)
	_pad      float32    // offset 12: unused
	Color     [3]float32 // offset 16: RGB color (vec4.xyz)
	Intensity float32    // offset 28: intensity (vec4.w)
}

// GPUPointLight is the GPU-aligned representation of a point light.
// Size: 32 bytes.
type GPUPointLight struct {
	Position  [3]float32 // offset  0: world-space position (vec4.xyz)
	Range     float32    // offset 12: attenuation cutoff (vec4.w)
	Color     [3]float32 // offset 16: RGB color (vec4.xyz)
	Intensity float32    // offset 28: intensity (vec4.w)
}

// GPULightBuffer is the GPU-aligned representation of the scene's lights.
// Matches the WGSL LightBuffer struct layout exactly (see GPULightBufferSource).
type GPULightBuffer struct {
	DirectionalCount uint32
	PointCount       uint32
	Directional      [MaxDirectionalLights]GPUDirectionalLight
	Point            [MaxPointLights]GPUPointLight
}

// NewGPULightBuffer packs the enabled lights into a GPULightBuffer.
//
// Parameters:
//   - lights: the scene lights, in priority order
//
// Returns:
//   - GPULightBuffer: the packed buffer
//   - error: error if more than ten enabled lights of one type are given
func NewGPULightBuffer(lights []Light) (GPULightBuffer, error) {
	var b GPULightBuffer
	for _, l := range lights {
		p := l.Params()
		if !p.Enabled {
			continue
		}
		switch l.Type() {
		case LightTypeDirectional:
			if b.DirectionalCount == MaxDirectionalLights {
				return GPULightBuffer{}, fmt.Errorf("light: more than %d directional lights", MaxDirectionalLights)
			}
			b.Directional[b.DirectionalCount] = GPUDirectionalLight{Direction: p.Direction, Color: p.Color, Intensity: p.Intensity}
			b.DirectionalCount++
		case LightTypePoint:
			if b.PointCount == MaxPointLights {
				return GPULightBuffer{}, fmt.Errorf("light: more than %d point lights", MaxPointLights)
			}
			b.Point[b.PointCount] = GPUPointLight{Position: p.Position, Range: p.Range, Color: p.Color, Intensity: p.Intensity}
			b.PointCount++
		}
	}
	return b, nil
}

// Size returns the size of the GPULightBuffer struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (656)
func (g *GPULightBuffer) Size() int {
	return GPULightBufferSize
}

// Marshal serializes the GPULightBuffer into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 656-byte buffer ready for GPU upload
func (g *GPULightBuffer) Marshal() []byte {
	buf := make([]byte, GPULightBufferSize)
	binary.LittleEndian.PutUint32(buf[0:4], g.DirectionalCount)
	binary.LittleEndian.PutUint32(buf[4:8], g.PointCount)

	putVec4 := func(off int, v [3]float32, w float32) {
		for i := range 3 {
			binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(v[i]))
		}
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(w))
	}
	off := 16
	for _, d := range g.Directional {
		putVec4(off, d.Direction, 0)
		putVec4(off+16, d.Color, d.Intensity)
		off += 32
	}
	for _, p := range g.Point {
		putVec4(off, p.Position, p.Range)
		putVec4(off+16, p.Color, p.Intensity)
		off += 32
	}
	return buf
}
