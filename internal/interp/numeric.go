package interp

import (
	"math"
	"math/bits"

	"unstack/internal/lowir"
)

func mask(t lowir.Type) uint64 {
	if t == lowir.I32 || t == lowir.F32 {
		return math.MaxUint32
	}
	return math.MaxUint64
}

func intValue(t lowir.Type, b uint64) lowir.Value {
	return lowir.Value{Type: t, Bits: b & mask(t)}
}

func boolValue(b bool) lowir.Value {
	if b {
		return lowir.I32Value(1)
	}
	return lowir.I32Value(0)
}

func signedOf(v lowir.Value) int64 {
	if v.Type == lowir.I32 {
		return int64(v.I32())
	}
	return v.I64()
}

func unsignedOf(v lowir.Value) uint64 {
	return v.Bits & mask(v.Type)
}

func floatOf(v lowir.Value) float64 {
	if v.Type == lowir.F32 {
		return float64(v.F32())
	}
	return v.F64()
}

func floatValue(t lowir.Type, f float64) lowir.Value {
	if t == lowir.F32 {
		return lowir.F32Value(float32(f))
	}
	return lowir.F64Value(f)
}

func minSigned(t lowir.Type) int64 {
	if t == lowir.I32 {
		return math.MinInt32
	}
	return math.MinInt64
}

// evalBinary applies op to operands of type t.
func evalBinary(op lowir.BinaryOp, t lowir.Type, unsigned bool, x, y lowir.Value) (lowir.Value, error) {
	if t.IsFloat() {
		return evalBinaryFloat(op, t, x, y), nil
	}
	a, b := unsignedOf(x), unsignedOf(y)
	sa, sb := signedOf(x), signedOf(y)
	width := uint64(t.Bits())
	switch op {
	case lowir.BinaryAdd:
		return intValue(t, a+b), nil
	case lowir.BinarySub:
		return intValue(t, a-b), nil
	case lowir.BinaryMul:
		return intValue(t, a*b), nil
	case lowir.BinaryDiv:
		if b == 0 {
			return lowir.Value{}, trapf(TrapDivideByZero, "integer divide by zero")
		}
		if unsigned {
			return intValue(t, a/b), nil
		}
		if sb == -1 && sa == minSigned(t) {
			return lowir.Value{}, trapf(TrapIntOverflow, "integer overflow in %s division", t)
		}
		return intValue(t, uint64(sa/sb)), nil
	case lowir.BinaryRem:
		if b == 0 {
			return lowir.Value{}, trapf(TrapDivideByZero, "integer remainder by zero")
		}
		if unsigned {
			return intValue(t, a%b), nil
		}
		if sb == -1 {
			return intValue(t, 0), nil
		}
		return intValue(t, uint64(sa%sb)), nil
	case lowir.BinaryAnd:
		return intValue(t, a&b), nil
	case lowir.BinaryOr:
		return intValue(t, a|b), nil
	case lowir.BinaryXor:
		return intValue(t, a^b), nil
	case lowir.BinaryShl:
		return intValue(t, a<<(b%width)), nil
	case lowir.BinaryShr:
		if unsigned {
			return intValue(t, a>>(b%width)), nil
		}
		return intValue(t, uint64(sa>>(b%width))), nil
	case lowir.BinaryRotl, lowir.BinaryRotr:
		k := int(b % width)
		if op == lowir.BinaryRotr {
			k = -k
		}
		if t == lowir.I32 {
			return intValue(t, uint64(bits.RotateLeft32(uint32(a), k))), nil
		}
		return intValue(t, bits.RotateLeft64(a, k)), nil
	case lowir.BinaryEq:
		return boolValue(a == b), nil
	case lowir.BinaryNe:
		return boolValue(a != b), nil
	case lowir.BinaryLt:
		if unsigned {
			return boolValue(a < b), nil
		}
		return boolValue(sa < sb), nil
	case lowir.BinaryGt:
		if unsigned {
			return boolValue(a > b), nil
		}
		return boolValue(sa > sb), nil
	case lowir.BinaryLe:
		if unsigned {
			return boolValue(a <= b), nil
		}
		return boolValue(sa <= sb), nil
	case lowir.BinaryGe:
		if unsigned {
			return boolValue(a >= b), nil
		}
		return boolValue(sa >= sb), nil
	default:
		return lowir.Value{}, errUnsupported("binary", op.String(), t)
	}
}

func evalBinaryFloat(op lowir.BinaryOp, t lowir.Type, x, y lowir.Value) lowir.Value {
	a, b := floatOf(x), floatOf(y)
	switch op {
	case lowir.BinaryAdd:
		return floatValue(t, a+b)
	case lowir.BinarySub:
		return floatValue(t, a-b)
	case lowir.BinaryMul:
		return floatValue(t, a*b)
	case lowir.BinaryDiv:
		return floatValue(t, a/b)
	case lowir.BinaryMin:
		if math.IsNaN(a) || math.IsNaN(b) {
			return floatValue(t, math.NaN())
		}
		return floatValue(t, math.Min(a, b))
	case lowir.BinaryMax:
		if math.IsNaN(a) || math.IsNaN(b) {
			return floatValue(t, math.NaN())
		}
		return floatValue(t, math.Max(a, b))
	case lowir.BinaryCopysign:
		return floatValue(t, math.Copysign(a, b))
	case lowir.BinaryEq:
		return boolValue(a == b)
	case lowir.BinaryNe:
		return boolValue(a != b)
	case lowir.BinaryLt:
		return boolValue(a < b)
	case lowir.BinaryGt:
		return boolValue(a > b)
	case lowir.BinaryLe:
		return boolValue(a <= b)
	case lowir.BinaryGe:
		return boolValue(a >= b)
	default:
		return floatValue(t, math.NaN())
	}
}

// evalUnary applies op to x of type from, producing a value of type to.
func evalUnary(op lowir.UnaryOp, from, to lowir.Type, unsigned bool, x lowir.Value) (lowir.Value, error) {
	switch op {
	case lowir.UnaryEqz:
		return boolValue(unsignedOf(x) == 0), nil
	case lowir.UnaryNeg:
		if from.IsInt() {
			return intValue(from, -unsignedOf(x)), nil
		}
		return floatValue(from, -floatOf(x)), nil
	case lowir.UnaryAbs:
		if from.IsInt() {
			if s := signedOf(x); s < 0 {
				return intValue(from, uint64(-s)), nil
			}
			return x, nil
		}
		return floatValue(from, math.Abs(floatOf(x))), nil
	case lowir.UnarySqrt:
		return floatValue(from, math.Sqrt(floatOf(x))), nil
	case lowir.UnaryCeil:
		return floatValue(from, math.Ceil(floatOf(x))), nil
	case lowir.UnaryFloor:
		return floatValue(from, math.Floor(floatOf(x))), nil
	case lowir.UnaryTrunc:
		return floatValue(from, math.Trunc(floatOf(x))), nil
	case lowir.UnaryNearest:
		return floatValue(from, math.RoundToEven(floatOf(x))), nil
	case lowir.UnaryCast:
		return convert(from, to, unsigned, x)
	case lowir.UnaryReinterpret:
		return lowir.Value{Type: to, Bits: x.Bits & mask(to)}, nil
	default:
		return lowir.Value{}, errUnsupported("unary", op.String(), from)
	}
}

func convert(from, to lowir.Type, unsigned bool, x lowir.Value) (lowir.Value, error) {
	switch {
	case from == to:
		return x, nil
	case from.IsInt() && to.IsInt():
		if to == lowir.I32 {
			return intValue(to, x.Bits), nil
		}
		if unsigned {
			return lowir.I64Value(int64(x.U32())), nil
		}
		return lowir.I64Value(int64(x.I32())), nil
	case from.IsInt() && to.IsFloat():
		if to == lowir.F32 {
			if unsigned {
				return lowir.F32Value(float32(unsignedOf(x))), nil
			}
			return lowir.F32Value(float32(signedOf(x))), nil
		}
		if unsigned {
			return lowir.F64Value(float64(unsignedOf(x))), nil
		}
		return lowir.F64Value(float64(signedOf(x))), nil
	case from.IsFloat() && to.IsFloat():
		return floatValue(to, floatOf(x)), nil
	default:
		return truncate(to, unsigned, floatOf(x))
	}
}

// truncate converts a float to an integer, trapping when the result is not
// representable.
func truncate(to lowir.Type, unsigned bool, f float64) (lowir.Value, error) {
	if math.IsNaN(f) {
		return lowir.Value{}, trapf(TrapInvalidConversion, "invalid conversion to %s", to)
	}
	t := math.Trunc(f)
	var lo, hi float64 // exclusive bounds
	switch {
	case to == lowir.I32 && unsigned:
		lo, hi = -1, 1<<32
	case to == lowir.I32:
		lo, hi = math.MinInt32-1, 1<<31
	case unsigned:
		lo, hi = -1, 1<<64
	default:
		lo, hi = math.MinInt64, 1<<63
		if t == math.MinInt64 {
			return lowir.I64Value(math.MinInt64), nil
		}
	}
	if t <= lo || t >= hi {
		return lowir.Value{}, trapf(TrapIntOverflow, "integer overflow converting %g to %s", f, to)
	}
	if unsigned {
		return intValue(to, uint64(t)), nil
	}
	return intValue(to, uint64(int64(t))), nil
}
