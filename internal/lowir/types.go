package lowir

import (
	"fmt"
	"math"
	"strconv"
)

// Type is a primitive value type of the stack machine.
type Type uint8

const (
	TypeInvalid Type = iota
	I32
	I64
	F32
	F64
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	I32:         "i32",
	I64:         "i64",
	F32:         "f32",
	F64:         "f64",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool { return t == I32 || t == I64 }

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// Bits returns the width of the type in bits.
func (t Type) Bits() int {
	switch t {
	case I32, F32:
		return 32
	case I64, F64:
		return 64
	default:
		return 0
	}
}

// MarshalText encodes the zero Type as an empty string so unused payload
// fields survive a round trip.
func (t Type) MarshalText() ([]byte, error) {
	if t == TypeInvalid {
		return nil, nil
	}
	if int(t) >= len(typeNames) {
		return nil, fmt.Errorf("lowir: cannot encode %s", t)
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = TypeInvalid
		return nil
	}
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseType converts a type name ("i32", "f64", ...) to a Type.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if i > 0 && name == s {
			return Type(i), nil
		}
	}
	return TypeInvalid, fmt.Errorf("lowir: unknown type %q", s)
}

// Value is a typed constant. Bits holds the raw representation: integers are
// stored zero-extended, floats as their IEEE-754 bit pattern.
type Value struct {
	Type Type   `json:"type"`
	Bits uint64 `json:"bits"`
}

func I32Value(v int32) Value   { return Value{Type: I32, Bits: uint64(uint32(v))} }
func I64Value(v int64) Value   { return Value{Type: I64, Bits: uint64(v)} }
func F32Value(v float32) Value { return Value{Type: F32, Bits: uint64(math.Float32bits(v))} }
func F64Value(v float64) Value { return Value{Type: F64, Bits: math.Float64bits(v)} }

// Zero returns the zero value of t.
func Zero(t Type) Value { return Value{Type: t} }

func (v Value) I32() int32     { return int32(uint32(v.Bits)) }
func (v Value) U32() uint32    { return uint32(v.Bits) }
func (v Value) I64() int64     { return int64(v.Bits) }
func (v Value) F32() float32   { return math.Float32frombits(uint32(v.Bits)) }
func (v Value) F64() float64   { return math.Float64frombits(v.Bits) }
func (v Value) IsZero() bool   { return v.Bits == 0 }
func (v Value) Equal(o Value) bool {
	return v.Type == o.Type && v.Bits == o.Bits
}

func (v Value) String() string {
	switch v.Type {
	case I32:
		return strconv.FormatInt(int64(v.I32()), 10)
	case I64:
		return strconv.FormatInt(v.I64(), 10) + "L"
	case F32:
		return strconv.FormatFloat(float64(v.F32()), 'g', -1, 32) + "f"
	case F64:
		return strconv.FormatFloat(v.F64(), 'g', -1, 64)
	default:
		return "<invalid>"
	}
}
