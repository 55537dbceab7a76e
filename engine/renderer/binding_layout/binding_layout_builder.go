package binding_layout

// BuilderOption is a functional option for configuring a Builder.
type BuilderOption func(*builder)

// WithLabel sets the debug label given to every layout the Builder creates.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - BuilderOption: a function that applies the label to a builder
func WithLabel(label string) BuilderOption {
	return func(b *builder) {
		b.label = label
	}
}
