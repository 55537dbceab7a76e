package upload

import "time"

// ControllerBuilderOption is a function that configures a controller during construction.
type ControllerBuilderOption func(*controller)

// WithTimeout sets how long ExecuteAndWait waits on the fence. Non-positive values keep
// DefaultTimeout.
//
// Parameters:
//   - timeout: the fence wait timeout
//
// Returns:
//   - ControllerBuilderOption: a function that applies the timeout to a controller
func WithTimeout(timeout time.Duration) ControllerBuilderOption {
	return func(c *controller) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}
