package chassis

import "errors"

var (
	// ErrConfiguration indicates the builder was given an invalid layout.
	ErrConfiguration = errors.New("chassis: invalid configuration")

	// ErrStallTimeout indicates a motion did not settle before the stall
	// timeout and was abandoned.
	ErrStallTimeout = errors.New("chassis: motion did not settle before stall timeout")

	// ErrCanceled indicates a motion was stopped or superseded.
	ErrCanceled = errors.New("chassis: motion canceled")

	// ErrClosed indicates the controller was closed.
	ErrClosed = errors.New("chassis: controller closed")
)

// ConfigError describes why Build rejected a configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return ErrConfiguration.Error() + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}
