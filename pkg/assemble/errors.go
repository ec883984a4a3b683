package assemble

import "fmt"

// ConfigError is a fatal configuration problem, such as a missing include
// reference or an unparsable namespace. Value names the offending input.
type ConfigError struct {
	Op    string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Value)
	}
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(op, value, format string, args ...any) error {
	return &ConfigError{Op: op, Value: value, Err: fmt.Errorf(format, args...)}
}
