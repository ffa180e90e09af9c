package lang

import "github.com/pkg/errors"

// ParseError is returned by ParseFile/ParseReader on a syntax error.
// It always carries the 1-based source line the problem was found on, so
// that callers can format "Line N: …" diagnostics.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return errors.Errorf("Line %d: %s", e.Line, e.Msg).Error()
}

func parseErr(line int, format string, args ...interface{}) error {
	return &ParseError{Line: line, Msg: errors.Errorf(format, args...).Error()}
}
