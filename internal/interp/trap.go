package interp

import (
	"fmt"
	"strings"
)

// TrapCode identifies why execution aborted.
type TrapCode int

// Stable trap codes - do not change values.
const (
	TrapUnreachable       TrapCode = 1001 // VM1001: unreachable executed
	TrapDivideByZero      TrapCode = 1002 // VM1002: integer divide by zero
	TrapIntOverflow       TrapCode = 1003 // VM1003: integer overflow
	TrapInvalidConversion TrapCode = 1004 // VM1004: invalid conversion to integer
	TrapOutOfBounds       TrapCode = 1005 // VM1005: memory or table access out of bounds
	TrapIndirectCall      TrapCode = 1006 // VM1006: indirect call signature mismatch
	TrapStepLimit         TrapCode = 1007 // VM1007: step budget exhausted
	TrapCallDepth         TrapCode = 1008 // VM1008: call stack exhausted
)

// String returns the code as "VM1001" format.
func (c TrapCode) String() string {
	return fmt.Sprintf("VM%d", c)
}

// Trap is returned when execution aborts. Both interpreters produce the
// same traps for the same program.
type Trap struct {
	Code      TrapCode
	Message   string
	Backtrace []string // function names, innermost first
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap %s: %s", t.Code, t.Message)
}

// Format renders the trap with its backtrace.
func (t *Trap) Format() string {
	var sb strings.Builder
	sb.WriteString(t.Error())
	sb.WriteString("\n")
	if len(t.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, fn := range t.Backtrace {
			fmt.Fprintf(&sb, "  %d: %s\n", i, fn)
		}
	}
	return sb.String()
}

func trapf(code TrapCode, format string, args ...any) *Trap {
	return &Trap{Code: code, Message: fmt.Sprintf(format, args...)}
}
