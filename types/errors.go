package types

import (
	"errors"
	"fmt"
)

// ErrUnsupported is matched by every *UnsupportedError via errors.Is.
var ErrUnsupported = errors.New("unsupported configuration")

// ConfigError reports invalid or missing configuration.
type ConfigError struct {
	// Path is the config file, if known.
	Path  string
	Field string
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	msg := "invalid config"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UnsupportedError reports a module requesting an unimplemented code path.
type UnsupportedError struct {
	Module  string
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("module %s: %s is not supported", e.Module, e.Feature)
}

// Is reports whether target is ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}
