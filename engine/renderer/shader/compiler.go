package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Compiler turns a shader module into byte-code for one stage.
type Compiler interface {
	// Compile compiles the module containing the given entry point.
	//
	// Parameters:
	//   - source: the complete WGSL module
	//   - stage: the stage being compiled
	//   - entryPoint: the stage's entry point
	//
	// Returns:
	//   - []byte: the compiled byte-code
	//   - error: error describing the compile failure
	Compile(source string, stage Stage, entryPoint string) ([]byte, error)
}

// nagaCompiler compiles WGSL to SPIR-V with naga. A module is compiled once and shared
// by every stage that lives in it.
type nagaCompiler struct {
	cache map[string][]byte
}

var _ Compiler = &nagaCompiler{}

// NewNagaCompiler creates the default compiler, backed by github.com/gogpu/naga.
//
// Returns:
//   - Compiler: a WGSL to SPIR-V compiler
func NewNagaCompiler() Compiler {
	return &nagaCompiler{cache: make(map[string][]byte)}
}

func (c *nagaCompiler) Compile(source string, stage Stage, entryPoint string) ([]byte, error) {
	if spirv, ok := c.cache[source]; ok {
		return spirv, nil
	}
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile %s %q: %w", stage, entryPoint, err)
	}
	c.cache[source] = spirv
	return spirv, nil
}
