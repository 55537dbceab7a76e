package shader_table

// TableBuilderOption is a function that configures a table during construction.
type TableBuilderOption func(*table)

// WithLabel sets the debug label of the table buffer.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - TableBuilderOption: a function that applies the label to a table
func WithLabel(label string) TableBuilderOption {
	return func(t *table) {
		t.label = label
	}
}
