package declir

import (
	"slices"

	"unstack/internal/lowir"
)

// ExprKind enumerates declarative expression kinds.
type ExprKind uint8

const (
	// ExprConst represents a literal.
	ExprConst ExprKind = iota
	// ExprVar represents a read of a named binding.
	ExprVar
	// ExprUnary represents a unary operation.
	ExprUnary
	// ExprBinary represents a binary operation.
	ExprBinary
	// ExprCall represents a call to a pure function.
	ExprCall
	// ExprField represents one result of a multi-result call aggregate.
	ExprField
)

// Expr is a side-effect free expression tree.
type Expr struct {
	Kind ExprKind
	Type lowir.Type

	Const  lowir.Value
	Name   string // ExprVar, ExprField aggregate, ExprCall callee
	Index  int    // ExprField
	Unary  UnaryExpr
	Binary BinaryExpr
	Args   []Expr // ExprCall
}

// UnaryExpr is the payload of ExprUnary.
type UnaryExpr struct {
	Op       lowir.UnaryOp
	From     lowir.Type
	Unsigned bool
	X        *Expr
}

// BinaryExpr is the payload of ExprBinary. Operand is the operand type; the
// expression type is the result type.
type BinaryExpr struct {
	Op       lowir.BinaryOp
	Operand  lowir.Type
	Unsigned bool
	X, Y     *Expr
}

func ConstExpr(v lowir.Value) Expr { return Expr{Kind: ExprConst, Type: v.Type, Const: v} }

func VarExpr(name string, t lowir.Type) Expr { return Expr{Kind: ExprVar, Type: t, Name: name} }

func FieldExpr(agg string, index int, t lowir.Type) Expr {
	return Expr{Kind: ExprField, Type: t, Name: agg, Index: index}
}

func CallExpr(fn string, result lowir.Type, args []Expr) Expr {
	return Expr{Kind: ExprCall, Type: result, Name: fn, Args: args}
}

func UnaryOf(op lowir.UnaryOp, from, to lowir.Type, unsigned bool, x Expr) Expr {
	return Expr{Kind: ExprUnary, Type: to, Unary: UnaryExpr{Op: op, From: from, Unsigned: unsigned, X: &x}}
}

func BinaryOf(op lowir.BinaryOp, operand lowir.Type, unsigned bool, x, y Expr) Expr {
	return Expr{
		Kind:   ExprBinary,
		Type:   op.ResultType(operand),
		Binary: BinaryExpr{Op: op, Operand: operand, Unsigned: unsigned, X: &x, Y: &y},
	}
}

// IsLiteral reports whether e is a constant.
func (e *Expr) IsLiteral() bool { return e.Kind == ExprConst }

// IsName reports whether e is a bare variable reference.
func (e *Expr) IsName() bool { return e.Kind == ExprVar }

// VisitNames calls fn for every name read by e, including field aggregates.
// Callee names of pure calls are not reads.
func (e *Expr) VisitNames(fn func(name string)) {
	switch e.Kind {
	case ExprConst:
	case ExprVar, ExprField:
		fn(e.Name)
	case ExprUnary:
		e.Unary.X.VisitNames(fn)
	case ExprBinary:
		e.Binary.X.VisitNames(fn)
		e.Binary.Y.VisitNames(fn)
	case ExprCall:
		for i := range e.Args {
			e.Args[i].VisitNames(fn)
		}
	}
}

// Names returns the sorted, deduplicated set of names read by e.
func (e *Expr) Names() []string {
	var out []string
	e.VisitNames(func(name string) { out = append(out, name) })
	slices.Sort(out)
	return slices.Compact(out)
}

// HasCall reports whether e contains a pure call.
func (e *Expr) HasCall() bool {
	switch e.Kind {
	case ExprCall:
		return true
	case ExprUnary:
		return e.Unary.X.HasCall()
	case ExprBinary:
		return e.Binary.X.HasCall() || e.Binary.Y.HasCall()
	default:
		return false
	}
}

// CanTrap reports whether evaluating e may abort execution. Calls are
// judged by their arguments only.
func (e *Expr) CanTrap() bool {
	switch e.Kind {
	case ExprUnary:
		u := lowir.UnaryInstr{Op: e.Unary.Op, From: e.Unary.From, To: e.Type, Unsigned: e.Unary.Unsigned}
		return u.CanTrap() || e.Unary.X.CanTrap()
	case ExprBinary:
		b := lowir.BinaryInstr{Op: e.Binary.Op, Type: e.Binary.Operand, Unsigned: e.Binary.Unsigned}
		return b.CanTrap() || e.Binary.X.CanTrap() || e.Binary.Y.CanTrap()
	case ExprCall:
		for i := range e.Args {
			if e.Args[i].CanTrap() {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of e.
func (e Expr) Clone() Expr {
	switch e.Kind {
	case ExprUnary:
		x := e.Unary.X.Clone()
		e.Unary.X = &x
	case ExprBinary:
		x, y := e.Binary.X.Clone(), e.Binary.Y.Clone()
		e.Binary.X, e.Binary.Y = &x, &y
	case ExprCall:
		args := make([]Expr, len(e.Args))
		for i := range e.Args {
			args[i] = e.Args[i].Clone()
		}
		e.Args = args
	}
	return e
}

// Replace returns a copy of e with every read of name substituted by with.
// The second result reports whether a substitution happened.
func (e Expr) Replace(name string, with Expr) (Expr, bool) {
	switch e.Kind {
	case ExprVar:
		if e.Name == name {
			return with.Clone(), true
		}
	case ExprUnary:
		x, ok := e.Unary.X.Replace(name, with)
		if ok {
			e.Unary.X = &x
		}
		return e, ok
	case ExprBinary:
		x, okx := e.Binary.X.Replace(name, with)
		y, oky := e.Binary.Y.Replace(name, with)
		if okx || oky {
			e.Binary.X, e.Binary.Y = &x, &y
		}
		return e, okx || oky
	case ExprCall:
		changed := false
		args := make([]Expr, len(e.Args))
		for i := range e.Args {
			var ok bool
			args[i], ok = e.Args[i].Replace(name, with)
			changed = changed || ok
		}
		if changed {
			e.Args = args
		}
		return e, changed
	}
	return e, false
}
