package shader

import (
	"encoding/json"
	"fmt"
)

// ProgramKind is the closed set of program kinds.
type ProgramKind int

const (
	// KindRasterization is a vertex + pixel (+ optional geometry) program.
	KindRasterization ProgramKind = iota

	// KindRayTracing is a ray-generation + miss + hit-group library.
	KindRayTracing

	// KindCompute is a single compute kernel.
	KindCompute
)

// String returns the descriptor spelling of the kind.
func (k ProgramKind) String() string {
	switch k {
	case KindRasterization:
		return "Rasterization"
	case KindRayTracing:
		return "RayTracing"
	case KindCompute:
		return "Compute"
	default:
		return fmt.Sprintf("ProgramKind(%d)", int(k))
	}
}

// UnmarshalJSON parses "Rasterization", "RayTracing" or "Compute".
func (k *ProgramKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("shader: kind must be a string: %w", err)
	}
	switch s {
	case "Rasterization":
		*k = KindRasterization
	case "RayTracing":
		*k = KindRayTracing
	case "Compute":
		*k = KindCompute
	default:
		return fmt.Errorf("shader: unknown program kind %q", s)
	}
	return nil
}

// MarshalJSON writes the descriptor spelling of the kind.
func (k ProgramKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Descriptor is the companion JSON file of a shader source.
type Descriptor struct {
	Kind        ProgramKind `json:"kind"`
	ShaderModel string      `json:"shaderModel"`

	VSMain string `json:"vsMain,omitempty"`
	PSMain string `json:"psMain,omitempty"`
	GSMain string `json:"gsMain,omitempty"`
	CSMain string `json:"csMain,omitempty"`

	RayGeneration string `json:"rayGeneration,omitempty"`
	Intersection  string `json:"intersection,omitempty"`
	AnyHit        string `json:"anyHit,omitempty"`
	ClosestHit    string `json:"closestHit,omitempty"`
	Miss          string `json:"miss,omitempty"`

	HitGroup          string `json:"hitGroup,omitempty"`
	PayloadSize       uint32 `json:"payloadSize,omitempty"`
	AttributeSize     uint32 `json:"attributeSize,omitempty"`
	MaxRecursionDepth uint32 `json:"maxRecursionDepth,omitempty"`
}

// DefaultHitGroup is the hit-group name used when a descriptor does not name one.
const DefaultHitGroup = "HitGroup"

// ParseDescriptor decodes and validates a descriptor. Defaults are applied for the hit
// group name, attribute size and recursion depth.
//
// Parameters:
//   - data: the JSON document
//
// Returns:
//   - Descriptor: the decoded descriptor
//   - error: error if the JSON is malformed, the kind is absent (ErrMissingKind) or a
//     required entry point for the kind is missing
func ParseDescriptor(data []byte) (Descriptor, error) {
	// the zero ProgramKind is a valid kind, so presence is checked separately
	var head struct {
		Kind *ProgramKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Descriptor{}, fmt.Errorf("shader: parse descriptor: %w", err)
	}
	if head.Kind == nil {
		return Descriptor{}, ErrMissingKind
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("shader: parse descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	if d.Kind == KindRayTracing {
		if d.HitGroup == "" {
			d.HitGroup = DefaultHitGroup
		}
		if d.AttributeSize == 0 {
			d.AttributeSize = 8
		}
		if d.MaxRecursionDepth == 0 {
			d.MaxRecursionDepth = 1
		}
	}
	return d, nil
}

// Validate checks that every entry point required by the kind is named.
//
// Returns:
//   - error: an ErrMissingEntryPoint wrap naming the first missing entry
func (d Descriptor) Validate() error {
	missing := func(name string) error {
		return fmt.Errorf("%w: %s program needs %q", ErrMissingEntryPoint, d.Kind, name)
	}
	switch d.Kind {
	case KindRasterization:
		if d.VSMain == "" {
			return missing("vsMain")
		}
		if d.PSMain == "" {
			return missing("psMain")
		}
	case KindRayTracing:
		if d.RayGeneration == "" {
			return missing("rayGeneration")
		}
		if d.Miss == "" {
			return missing("miss")
		}
		if d.ClosestHit == "" && d.AnyHit == "" && d.Intersection == "" {
			return missing("closestHit")
		}
	case KindCompute:
		if d.CSMain == "" {
			return missing("csMain")
		}
	default:
		return fmt.Errorf("shader: unknown program kind %d", int(d.Kind))
	}
	return nil
}
