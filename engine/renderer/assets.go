package renderer

import (
	"embed"

	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

//go:embed assets/*.wgsl assets/*.json
var assetsFS embed.FS

// loadBuiltin loads an embedded program and builds its binding model.
func (r *renderer) loadBuiltin(key, path string) (builtin, error) {
	program, err := shader.LoadProgramFS(assetsFS, key, path, r.programOptions...)
	if err != nil {
		return builtin{}, err
	}
	agg, layout, err := r.bindingModel(program)
	if err != nil {
		return builtin{}, err
	}
	return builtin{program: program, agg: agg, layout: layout}, nil
}
