package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormat matches every *FormatError.
	ErrFormat = errors.New("format error")
	// ErrValue matches every *ValueError.
	ErrValue = errors.New("value error")
)

// FormatError reports a file whose shape does not match the column contract.
type FormatError struct {
	Missing []string
	Reason  string
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required column(s): %s", strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ValueError reports a cell that cannot be parsed. Line is 1-based and counts
// the header row.
type ValueError struct {
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("line %d, column %s: invalid value %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ValueError) Is(target error) bool { return target == ErrValue }

func (e *ValueError) Unwrap() error { return e.Err }
