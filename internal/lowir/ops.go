package lowir

import "fmt"

// UnaryOp enumerates unary operators.
type UnaryOp uint8

const (
	UnaryInvalid UnaryOp = iota
	// UnaryEqz compares an integer with zero, producing i32 0 or 1.
	UnaryEqz
	UnaryNeg
	UnaryAbs
	UnarySqrt
	UnaryCeil
	UnaryFloor
	UnaryTrunc
	UnaryNearest
	// UnaryCast converts between numeric types. The exact conversion (wrap,
	// extend, convert, truncate, promote, demote) follows from From, To and
	// Unsigned.
	UnaryCast
	// UnaryReinterpret reinterprets the bits of a value as another type of
	// the same width.
	UnaryReinterpret
)

var unaryNames = [...]string{
	UnaryInvalid:     "invalid",
	UnaryEqz:         "eqz",
	UnaryNeg:         "neg",
	UnaryAbs:         "abs",
	UnarySqrt:        "sqrt",
	UnaryCeil:        "ceil",
	UnaryFloor:       "floor",
	UnaryTrunc:       "trunc",
	UnaryNearest:     "nearest",
	UnaryCast:        "cast",
	UnaryReinterpret: "reinterpret",
}

func (op UnaryOp) String() string {
	if int(op) < len(unaryNames) {
		return unaryNames[op]
	}
	return fmt.Sprintf("unary(%d)", op)
}

func (op UnaryOp) MarshalText() ([]byte, error) {
	return marshalName(op.String(), op == UnaryInvalid)
}

func (op *UnaryOp) UnmarshalText(b []byte) error {
	i, err := lookupName(unaryNames[:], string(b))
	*op = UnaryOp(i)
	return err
}

// IsBoolean reports whether the operator always yields 0 or 1.
func (op UnaryOp) IsBoolean() bool { return op == UnaryEqz }

// BinaryOp enumerates binary operators.
type BinaryOp uint8

const (
	BinaryInvalid BinaryOp = iota
	BinaryAdd
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryRem
	BinaryAnd
	BinaryOr
	BinaryXor
	BinaryShl
	BinaryShr
	BinaryRotl
	BinaryRotr
	BinaryMin
	BinaryMax
	BinaryCopysign
	BinaryEq
	BinaryNe
	BinaryLt
	BinaryGt
	BinaryLe
	BinaryGe
)

var binaryNames = [...]string{
	BinaryInvalid:  "invalid",
	BinaryAdd:      "add",
	BinarySub:      "sub",
	BinaryMul:      "mul",
	BinaryDiv:      "div",
	BinaryRem:      "rem",
	BinaryAnd:      "and",
	BinaryOr:       "or",
	BinaryXor:      "xor",
	BinaryShl:      "shl",
	BinaryShr:      "shr",
	BinaryRotl:     "rotl",
	BinaryRotr:     "rotr",
	BinaryMin:      "min",
	BinaryMax:      "max",
	BinaryCopysign: "copysign",
	BinaryEq:       "eq",
	BinaryNe:       "ne",
	BinaryLt:       "lt",
	BinaryGt:       "gt",
	BinaryLe:       "le",
	BinaryGe:       "ge",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return fmt.Sprintf("binary(%d)", op)
}

func (op BinaryOp) MarshalText() ([]byte, error) {
	return marshalName(op.String(), op == BinaryInvalid)
}

func (op *BinaryOp) UnmarshalText(b []byte) error {
	i, err := lookupName(binaryNames[:], string(b))
	*op = BinaryOp(i)
	return err
}

// IsCompare reports whether op is a comparison producing i32 0 or 1.
func (op BinaryOp) IsCompare() bool { return op >= BinaryEq && op <= BinaryGe }

// Flipped returns the comparison that yields the same result when the
// operands are swapped. Non-comparisons and symmetric comparisons are
// returned unchanged.
func (op BinaryOp) Flipped() BinaryOp {
	switch op {
	case BinaryLt:
		return BinaryGt
	case BinaryGt:
		return BinaryLt
	case BinaryLe:
		return BinaryGe
	case BinaryGe:
		return BinaryLe
	default:
		return op
	}
}

// Commutative reports whether swapping operands preserves the result.
func (op BinaryOp) Commutative() bool {
	switch op {
	case BinaryAdd, BinaryMul, BinaryAnd, BinaryOr, BinaryXor, BinaryEq, BinaryNe:
		return true
	default:
		return false
	}
}

// ResultType returns the type produced by op applied to operands of type t.
func (op BinaryOp) ResultType(t Type) Type {
	if op.IsCompare() {
		return I32
	}
	return t
}

// ValidFor reports whether op is defined on operands of type t.
func (op BinaryOp) ValidFor(t Type) bool {
	switch op {
	case BinaryAdd, BinarySub, BinaryMul, BinaryDiv, BinaryEq, BinaryNe,
		BinaryLt, BinaryGt, BinaryLe, BinaryGe:
		return t.IsInt() || t.IsFloat()
	case BinaryRem, BinaryAnd, BinaryOr, BinaryXor, BinaryShl, BinaryShr, BinaryRotl, BinaryRotr:
		return t.IsInt()
	case BinaryMin, BinaryMax, BinaryCopysign:
		return t.IsFloat()
	default:
		return false
	}
}

func marshalName(name string, invalid bool) ([]byte, error) {
	if invalid {
		return nil, nil
	}
	return []byte(name), nil
}

func lookupName(names []string, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	for i, name := range names {
		if i > 0 && name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("lowir: unknown operator %q", s)
}
