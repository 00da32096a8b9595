package diag

import (
	"fmt"
	"strconv"
	"strings"
)

// Location points at an instruction inside a function. Path holds the index
// at each nesting level, outermost first.
type Location struct {
	Func string
	Path []int
}

func (l Location) String() string {
	if l.Func == "" {
		return "<program>"
	}
	if len(l.Path) == 0 {
		return l.Func
	}
	parts := make([]string, len(l.Path))
	for i, p := range l.Path {
		parts[i] = strconv.Itoa(p)
	}
	return l.Func + "@" + strings.Join(parts, ".")
}

type Note struct {
	At  Location
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	At       Location
	Notes    []Note
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s %s: %s", d.Severity, d.Code.ID(), d.At, d.Message)
}

// Error is a fatal diagnostic returned as an error value.
type Error struct {
	Diagnostic
}

// Errorf builds a fatal diagnostic error.
func Errorf(code Code, at Location, format string, args ...any) *Error {
	return &Error{Diagnostic{
		Severity: SevError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		At:       at,
	}}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s): %s", e.At, e.Code.Title(), e.Code.ID(), e.Message)
}

// Unwrap exposes the class sentinel of the code.
func (e *Error) Unwrap() error {
	return e.Code.Sentinel()
}
