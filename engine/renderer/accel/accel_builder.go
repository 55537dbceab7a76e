package accel

import "github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"

// ManagerBuilderOption is a function that configures a manager during construction.
type ManagerBuilderOption func(*manager)

// WithLabel sets the prefix of every object label the manager creates.
//
// Parameters:
//   - label: the label prefix
//
// Returns:
//   - ManagerBuilderOption: a function that applies the label to a manager
func WithLabel(label string) ManagerBuilderOption {
	return func(m *manager) {
		m.label = label
	}
}

// WithBuildFlags replaces the build preference flags applied to both levels. Update
// support on the top level is always requested.
//
// Parameters:
//   - flags: the build flags, typically BuildPreferFastTrace
//
// Returns:
//   - ManagerBuilderOption: a function that applies the flags to a manager
func WithBuildFlags(flags gpu.BuildFlags) ManagerBuilderOption {
	return func(m *manager) {
		m.flags = flags &^ gpu.BuildPerformUpdate
	}
}
