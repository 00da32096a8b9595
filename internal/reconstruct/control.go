package reconstruct

import (
	"slices"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/lowir"
)

// constArm returns the i32 value of an arm consisting of a single constant.
func constArm(body []lowir.Instr) (int32, bool) {
	if len(body) != 1 || body[0].Kind != lowir.InstrConst || body[0].Const.Type != lowir.I32 {
		return 0, false
	}
	return body[0].Const.I32(), true
}

func (s *scope) ifInstr(in *lowir.IfInstr) (bool, error) {
	cond, err := s.pop(lowir.I32)
	if err != nil {
		return false, err
	}

	// if (c) 1 else 0 and its negation reduce to the condition itself.
	if len(in.Params) == 0 && slices.Equal(in.Results, []lowir.Type{lowir.I32}) {
		a, okA := constArm(in.Then)
		b, okB := constArm(in.Else)
		if okA && okB {
			switch {
			case a == 1 && b == 0:
				s.push(s.asBool(cond))
				return false, nil
			case a == 0 && b == 1:
				s.push(element{
					expr:   declir.UnaryOf(lowir.UnaryEqz, lowir.I32, lowir.I32, false, cond.expr),
					deps:   cond.deps,
					isBool: true,
				})
				return false, nil
			}
		}
	}

	if len(in.Else) == 0 && !slices.Equal(in.Params, in.Results) {
		return false, s.errorf(diag.ArityMismatch, "if without else must map %v to itself, declared %v", in.Params, in.Results)
	}
	if len(s.stack) < len(in.Params) {
		return false, s.errorf(diag.StackUnderflow, "if expects %d parameters, stack has %d", len(in.Params), len(s.stack))
	}
	base := len(s.stack) - len(in.Params)
	for i, t := range in.Params {
		e := s.stack[base+i]
		if e.expr.Type != t {
			return false, s.errorf(diag.StackTypeMismatch, "if parameter %d: expected %s, found %s", i, t, e.expr.Type)
		}
		if !e.expr.IsName() && !e.expr.IsLiteral() {
			s.stack[base+i] = s.materialize(e)
		}
	}
	params := slices.Clone(s.stack[base:])
	s.stack = s.stack[:base]

	names := make([]string, len(in.Results))
	for i, t := range in.Results {
		names[i] = s.t.temp()
		s.emit(declir.ZeroDecl(names[i], t))
	}

	if cond.expr.IsLiteral() {
		taken, arm := in.Then, 0
		if cond.expr.Const.IsZero() {
			taken, arm = in.Else, 1
		}
		body, terminated, err := s.arm(arm, taken, params, in.Results, names)
		if err != nil {
			return false, err
		}
		s.out = append(s.out, body...)
		if terminated {
			return true, nil
		}
		s.pushNames(names, in.Results)
		return false, nil
	}

	then, thenDone, err := s.arm(0, in.Then, params, in.Results, names)
	if err != nil {
		return false, err
	}
	els, elseDone, err := s.arm(1, in.Else, params, in.Results, names)
	if err != nil {
		return false, err
	}
	s.emit(declir.If(cond.expr, then, els))
	if thenDone && elseDone {
		return true, nil
	}
	s.pushNames(names, in.Results)
	return false, nil
}

// asBool turns an i32 condition into a boolean expression.
func (s *scope) asBool(cond element) element {
	if cond.isBool {
		return cond
	}
	return element{
		expr:   declir.BinaryOf(lowir.BinaryNe, lowir.I32, false, cond.expr, declir.ConstExpr(lowir.I32Value(0))),
		deps:   cond.deps,
		isBool: true,
	}
}

func (s *scope) pushNames(names []string, types []lowir.Type) {
	for i, name := range names {
		s.push(element{expr: declir.VarExpr(name, types[i]), deps: []string{name}})
	}
}

// arm translates one branch starting from params and, unless it
// terminates, assigns what it leaves on the stack to names.
func (s *scope) arm(n int, body []lowir.Instr, params []element, results []lowir.Type, names []string) ([]declir.Instr, bool, error) {
	c := s.child(n, params)
	terminated, err := c.run(body)
	if err != nil {
		return nil, false, err
	}
	if terminated {
		return c.out, true, nil
	}
	c.idx = len(body)
	if err := c.syncResults(results, names); err != nil {
		return nil, false, err
	}
	return c.out, false, nil
}

// syncResults checks that the stack holds exactly results and assigns the
// values to names.
func (s *scope) syncResults(results []lowir.Type, names []string) error {
	if len(s.stack) != len(results) {
		return s.errorf(diag.ArityMismatch, "branch leaves %d values, %d declared", len(s.stack), len(results))
	}
	vals, err := s.popTypes(results)
	if err != nil {
		return diag.Errorf(diag.ArityMismatch, s.loc(), "branch result types differ from %v", results)
	}
	for i, v := range vals {
		s.emit(declir.Assign(names[i], v.expr))
	}
	return nil
}

func (s *scope) loop(in *lowir.LoopInstr) (bool, error) {
	names := make([]string, len(in.Results))
	for i, t := range in.Results {
		names[i] = s.t.temp()
		s.emit(declir.ZeroDecl(names[i], t))
	}

	body := in.Body
	continues := len(body) > 0 && body[len(body)-1].Kind == lowir.InstrJump && body[len(body)-1].Jump.Label == in.Label
	if continues {
		body = body[:len(body)-1]
	}

	c := s.child(0, nil)
	c.head = in.Label
	s.t.loops = append(s.t.loops, loopFrame{label: in.Label, loop: in})
	terminated, err := c.run(body)
	s.t.loops = s.t.loops[:len(s.t.loops)-1]
	if err != nil {
		return false, err
	}

	exits := !continues && !terminated
	if exits {
		c.idx = len(body)
		if err := c.syncResults(in.Results, names); err != nil {
			return false, err
		}
		c.emit(declir.Break())
	}
	s.emit(declir.Loop(in.Label, c.out))
	if !exits {
		return true, nil
	}
	s.pushNames(names, in.Results)
	return false, nil
}
