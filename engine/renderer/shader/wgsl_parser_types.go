package shader

import "github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"

// wgslTypeLayout holds the byte size and alignment of a host-shareable WGSL type.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedGlobal is one @group/@binding resource declaration.
type parsedGlobal struct {
	group        uint32
	binding      uint32
	addressSpace string
	name         string
	typeName     string
}

// parsedFunction is one fn declaration: its attributes, parameter list and body text.
type parsedFunction struct {
	name       string
	attributes string
	params     string
	body       string
}

// vertexFormatInfo pairs a gpu vertex format with its byte size.
type vertexFormatInfo struct {
	format gpu.VertexFormat
	size   uint32
}
