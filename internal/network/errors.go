package network

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a malformed request: an empty node set, weights
// that sum to zero, or a conversion factor that cannot discount anything.
var ErrConfiguration = errors.New("configuration error")

// ConfigError describes which operation rejected its input and why.
type ConfigError struct {
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrConfiguration, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Configf builds a ConfigError for op.
func Configf(op, format string, args ...any) error {
	return &ConfigError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
