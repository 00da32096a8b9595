package diag

import (
	"errors"
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Дисциплина стека
	StackInfo         Code = 1000
	StackUnderflow    Code = 1001
	StackTypeMismatch Code = 1002
	StackLeftover     Code = 1003

	// Неразрешённые ссылки
	RefInfo         Code = 2000
	UnresolvedCall  Code = 2001
	UnresolvedName  Code = 2002
	ImmutableGlobal Code = 2003
	UnresolvedLabel Code = 2004

	// Арность ветвлений и циклов
	ArityInfo     Code = 3000
	ArityMismatch Code = 3001

	// Форма диспетчеризации
	DispatchInfo  Code = 4000
	DispatchShape Code = 4001

	// Пакетная сборка
	BatchInfo    Code = 5000
	BatchFailure Code = 5001
	BatchInvalid Code = 5002
)

var codeNames = map[Code]string{
	UnknownCode:       "E0000",
	StackUnderflow:    "STK1001",
	StackTypeMismatch: "STK1002",
	StackLeftover:     "STK1003",
	UnresolvedCall:    "REF2001",
	UnresolvedName:    "REF2002",
	ImmutableGlobal:   "REF2003",
	UnresolvedLabel:   "REF2004",
	ArityMismatch:     "ARI3001",
	DispatchShape:     "DSP4001",
	BatchFailure:      "BAT5001",
	BatchInvalid:      "BAT5002",
}

var codeTitles = map[Code]string{
	StackUnderflow:    "operand stack underflow",
	StackTypeMismatch: "operand type mismatch",
	StackLeftover:     "values left on the stack",
	UnresolvedCall:    "unresolved call target",
	UnresolvedName:    "unresolved variable",
	ImmutableGlobal:   "write to immutable global",
	UnresolvedLabel:   "unresolved jump label",
	ArityMismatch:     "arity mismatch",
	DispatchShape:     "unrecognized dispatch shape",
	BatchFailure:      "function translation failed",
	BatchInvalid:      "invalid program",
}

func (c Code) ID() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("E%04d", uint16(c))
}

func (c Code) Title() string {
	if title, ok := codeTitles[c]; ok {
		return title
	}
	return "unknown error"
}

func (c Code) String() string {
	return c.ID()
}

// Class returns the family a code belongs to (the code rounded down to the
// thousand).
func (c Code) Class() Code {
	return c / 1000 * 1000
}

// Sentinels for errors.Is checks against the four fatal classes.
var (
	ErrStackDiscipline = errors.New("stack discipline violation")
	ErrUnresolved      = errors.New("unresolved reference")
	ErrArity           = errors.New("arity mismatch")
	ErrDispatchShape   = errors.New("unrecognized dispatch shape")
)

// Sentinel returns the class sentinel for c, or nil.
func (c Code) Sentinel() error {
	switch c.Class() {
	case StackInfo:
		return ErrStackDiscipline
	case RefInfo:
		return ErrUnresolved
	case ArityInfo:
		return ErrArity
	case DispatchInfo:
		return ErrDispatchShape
	default:
		return nil
	}
}
