package shader

// ProgramBuilderOption is a functional option for configuring program loading.
type ProgramBuilderOption func(*program)

// WithCompiler replaces the default naga compiler.
//
// Parameters:
//   - compiler: the compiler used for every stage
//
// Returns:
//   - ProgramBuilderOption: a function that applies the compiler option
func WithCompiler(compiler Compiler) ProgramBuilderOption {
	return func(p *program) {
		p.compiler = compiler
	}
}

// WithPreProcessor replaces the default annotation pre-processor.
//
// Parameters:
//   - pp: the pre-processor applied to the source before reflection
//
// Returns:
//   - ProgramBuilderOption: a function that applies the pre-processor option
func WithPreProcessor(pp PreProcessor) ProgramBuilderOption {
	return func(p *program) {
		p.pp = pp
	}
}
