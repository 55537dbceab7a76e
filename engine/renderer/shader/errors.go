package shader

import "errors"

// ErrMissingEntryPoint is returned when a descriptor omits an entry point its kind needs,
// or names one the source does not define.
var ErrMissingEntryPoint = errors.New("shader: missing entry point")

// ErrMissingKind is returned when a descriptor does not name its program kind.
var ErrMissingKind = errors.New("shader: descriptor has no kind")
