package chaos

import (
	"errors"
	"fmt"
)

// ErrStreamUnsupported is wrapped when a mode that needs the whole sequence is
// used with InjectStream.
var ErrStreamUnsupported = errors.New("mode requires the complete message sequence")

// ConfigurationError reports structurally invalid chaos parameters. It is
// caller-fixable and never retried.
type ConfigurationError struct {
	Mode   Mode
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("chaos: invalid %s configuration", e.Mode)
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Reason != "" {
		msg += " " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func configErrorf(mode Mode, field, format string, args ...interface{}) error {
	return &ConfigurationError{Mode: mode, Field: field, Reason: fmt.Sprintf(format, args...)}
}
