package schedfile

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField          = errors.New("missing required field")
	ErrInvalidRecipient      = errors.New("invalid USER_ID")
	ErrUnterminatedBlock     = errors.New("unterminated multi-line string")
	ErrUnknownWeekday        = errors.New("unknown weekday")
	ErrMalformedEntry        = errors.New("malformed scheduled entry")
	ErrMalformedStartMessage = errors.New("malformed START_MESSAGE")
)

// ConfigError reports a schedule file that cannot be used. Err is one of the
// sentinel errors above, so callers can match with errors.Is.
type ConfigError struct {
	Line   int // 1-based; 0 when the error is not tied to a line
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Line > 0 {
		return fmt.Sprintf("config line %d: %s", e.Line, msg)
	}
	return "config: " + msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(line int, kind error, format string, args ...any) error {
	return &ConfigError{Line: line, Reason: fmt.Sprintf(format, args...), Err: kind}
}
