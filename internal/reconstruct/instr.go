package reconstruct

import (
	"slices"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/liveness"
	"unstack/internal/lowir"
)

// instr translates a single instruction and reports whether it terminates
// the current list.
func (s *scope) instr(ins *lowir.Instr) (bool, error) {
	switch ins.Kind {
	case lowir.InstrConst:
		s.push(element{expr: declir.ConstExpr(ins.Const)})
		return false, nil

	case lowir.InstrParamGet, lowir.InstrLocalGet, lowir.InstrGlobalGet:
		return false, s.get(ins)

	case lowir.InstrParamSet, lowir.InstrLocalSet, lowir.InstrGlobalSet:
		return false, s.set(ins)

	case lowir.InstrLoad:
		addr, err := s.pop(lowir.I32)
		if err != nil {
			return false, err
		}
		name := s.t.temp()
		s.emit(declir.Instr{Kind: declir.InstrLoad, Mem: declir.MemInstr{Name: name, Access: ins.Mem, Addr: addr.expr}})
		s.push(element{expr: declir.VarExpr(name, ins.Mem.Type), deps: []string{name}})
		return false, nil

	case lowir.InstrStore:
		val, err := s.pop(ins.Mem.Type)
		if err != nil {
			return false, err
		}
		addr, err := s.pop(lowir.I32)
		if err != nil {
			return false, err
		}
		s.emit(declir.Instr{Kind: declir.InstrStore, Mem: declir.MemInstr{Access: ins.Mem, Addr: addr.expr, Value: val.expr}})
		return false, nil

	case lowir.InstrUnary:
		return false, s.unary(&ins.Unary)

	case lowir.InstrBinary:
		return false, s.binary(&ins.Binary)

	case lowir.InstrCall:
		return false, s.call(ins.Call.Func)

	case lowir.InstrCallIndirect:
		return false, s.callIndirect(&ins.CallIndirect)

	case lowir.InstrIf:
		return s.ifInstr(&ins.If)

	case lowir.InstrLoop:
		return s.loop(&ins.Loop)

	case lowir.InstrJump:
		if !s.t.inLoop(ins.Jump.Label) {
			return false, s.errorf(diag.UnresolvedLabel, "jump to %q outside of that loop", ins.Jump.Label)
		}
		s.emit(declir.Goto(ins.Jump.Label))
		return true, nil

	case lowir.InstrJumpIf:
		if !s.t.inLoop(ins.Jump.Label) {
			return false, s.errorf(diag.UnresolvedLabel, "jump to %q outside of that loop", ins.Jump.Label)
		}
		cond, err := s.pop(lowir.I32)
		if err != nil {
			return false, err
		}
		s.emit(declir.If(cond.expr, []declir.Instr{declir.Goto(ins.Jump.Label)}, nil))
		return false, nil

	case lowir.InstrSwitch:
		return s.dispatch(&ins.Switch)

	case lowir.InstrDrop:
		_, err := s.pop(lowir.TypeInvalid)
		return false, err

	case lowir.InstrReturn:
		vals, err := s.popTypes(s.t.fn.Results)
		if err != nil {
			return false, err
		}
		s.emit(declir.Return(exprs(vals)...))
		return true, nil

	case lowir.InstrUnreachable:
		s.emit(declir.Trap())
		return true, nil

	case lowir.InstrComment:
		s.emit(declir.Comment(ins.Text))
		return false, nil

	default:
		return false, s.errorf(diag.StackTypeMismatch, "unsupported instruction %s", ins.Kind)
	}
}

func (t *translator) inLoop(label string) bool {
	for _, l := range t.loops {
		if l.label == label {
			return true
		}
	}
	return false
}

// lookup resolves the declared type of a get/set target.
func (s *scope) lookup(ins *lowir.Instr) (lowir.Type, error) {
	name := ins.Var.Name
	switch ins.Kind {
	case lowir.InstrParamGet, lowir.InstrParamSet:
		if p, ok := s.t.fn.Param(name); ok {
			return p.Type, nil
		}
		return lowir.TypeInvalid, s.errorf(diag.UnresolvedName, "unknown parameter %q", name)
	case lowir.InstrLocalGet, lowir.InstrLocalSet:
		if l, ok := s.t.fn.Local(name); ok {
			return l.Type, nil
		}
		return lowir.TypeInvalid, s.errorf(diag.UnresolvedName, "unknown local %q", name)
	default:
		g, ok := s.t.tables.Globals[name]
		if !ok {
			return lowir.TypeInvalid, s.errorf(diag.UnresolvedName, "unknown global %q", name)
		}
		if ins.Kind == lowir.InstrGlobalSet && !g.Mutable {
			return lowir.TypeInvalid, s.errorf(diag.ImmutableGlobal, "global %q is immutable", name)
		}
		return g.Type, nil
	}
}

// get pushes a name reference, or a snapshot of the current value when the
// name is overwritten later in this list.
func (s *scope) get(ins *lowir.Instr) error {
	t, err := s.lookup(ins)
	if err != nil {
		return err
	}
	name := ins.Var.Name
	valid := s.lw.Valid(name, s.idx)
	if ins.Kind == lowir.InstrGlobalGet {
		valid = valid && s.lw.Valid(liveness.GlobalsName, s.idx)
	}
	e := element{expr: declir.VarExpr(name, t), deps: []string{name}}
	if !valid {
		e = s.materialize(e)
	}
	s.push(e)
	return nil
}

func (s *scope) set(ins *lowir.Instr) error {
	t, err := s.lookup(ins)
	if err != nil {
		return err
	}
	v, err := s.pop(t)
	if err != nil {
		return err
	}
	s.emit(declir.Assign(ins.Var.Name, v.expr))
	return nil
}

func (s *scope) unary(u *lowir.UnaryInstr) error {
	x, err := s.pop(u.From)
	if err != nil {
		return err
	}
	e := element{
		expr:   declir.UnaryOf(u.Op, u.From, u.Result(), u.Unsigned, x.expr),
		deps:   trapDeps(u.CanTrap(), x.deps),
		isBool: u.Op.IsBoolean(),
	}
	if s.lw.AnyInvalid(e.deps, s.idx) {
		e = s.materialize(e)
	}
	s.push(e)
	return nil
}

func (s *scope) binary(b *lowir.BinaryInstr) error {
	if !b.Op.ValidFor(b.Type) {
		return s.errorf(diag.StackTypeMismatch, "%s is not defined for %s", b.Op, b.Type)
	}
	y, err := s.pop(b.Type)
	if err != nil {
		return err
	}
	x, err := s.pop(b.Type)
	if err != nil {
		return err
	}
	op := b.Op
	// Keep literals on the right of comparisons.
	if op.IsCompare() && x.expr.IsLiteral() && !y.expr.IsLiteral() {
		x, y = y, x
		op = op.Flipped()
	}
	e := element{
		expr:   declir.BinaryOf(op, b.Type, b.Unsigned, x.expr, y.expr),
		deps:   trapDeps(b.CanTrap(), unionDeps(x, y)),
		isBool: op.IsCompare(),
	}
	if s.lw.AnyInvalid(e.deps, s.idx) {
		e = s.materialize(e)
	}
	s.push(e)
	return nil
}

// trapDeps adds MemoryName to the dependencies of a node that may trap: it
// is bound before any later memory or global write or impure call.
func trapDeps(traps bool, deps []string) []string {
	if !traps || slices.Contains(deps, liveness.MemoryName) {
		return deps
	}
	return append(slices.Clone(deps), liveness.MemoryName)
}

func (s *scope) call(name string) error {
	info, ok := s.t.tables.Funcs[name]
	if !ok {
		return s.errorf(diag.UnresolvedCall, "call to unknown function %q", name)
	}
	args, err := s.popTypes(info.Sig.Params)
	if err != nil {
		return err
	}
	if len(info.Sig.Results) == 1 && s.t.isPure(name) {
		deps := unionDeps(args...)
		if s.t.opts.StrictPureDeferral {
			deps = append(deps, liveness.MemoryName, liveness.GlobalsName)
		}
		if !s.lw.AnyInvalid(deps, s.idx) {
			s.push(element{expr: declir.CallExpr(name, info.Sig.Results[0], exprs(args)), deps: deps})
			return nil
		}
	}
	s.callStmt(name, false, args, info.Sig.Results)
	return nil
}

func (s *scope) callIndirect(ci *lowir.CallIndirectInstr) error {
	if len(s.t.tables.Table) == 0 {
		return s.errorf(diag.UnresolvedCall, "indirect call without a function table")
	}
	idx, err := s.pop(lowir.I32)
	if err != nil {
		return err
	}
	ptr := s.t.temp()
	s.emit(declir.Instr{Kind: declir.InstrFuncPtr, FuncPtr: declir.FuncPtrInstr{Name: ptr, Sig: ci.Sig, Index: idx.expr}})
	args, err := s.popTypes(ci.Sig.Params)
	if err != nil {
		return err
	}
	s.callStmt(ptr, true, args, ci.Sig.Results)
	return nil
}

// callStmt emits a call statement and pushes its results, if any.
func (s *scope) callStmt(callee string, indirect bool, args []element, results []lowir.Type) {
	c := declir.CallInstr{Callee: callee, Indirect: indirect, Args: exprs(args), Results: results}
	if len(results) == 0 {
		s.emit(declir.Instr{Kind: declir.InstrCall, Call: c})
		return
	}
	c.Bind = declir.BindDeclare
	c.Name = s.t.temp()
	s.emit(declir.Instr{Kind: declir.InstrCall, Call: c})
	if len(results) == 1 {
		s.push(element{expr: declir.VarExpr(c.Name, results[0]), deps: []string{c.Name}})
		return
	}
	for i, t := range results {
		name := s.t.temp()
		s.emit(declir.Decl(name, declir.FieldExpr(c.Name, i, t)))
		s.push(element{expr: declir.VarExpr(name, t), deps: []string{name}})
	}
}
