package interp

import (
	"context"
	"fmt"

	"unstack/internal/declir"
	"unstack/internal/lowir"
)

type declFrame struct {
	m    *Machine
	fn   *declir.Func
	vars map[string]lowir.Value
	aggs map[string][]lowir.Value
	ptrs map[string]string
	ret  []lowir.Value
}

func (m *Machine) runDecl(ctx context.Context, fn *declir.Func, args []lowir.Value) ([]lowir.Value, error) {
	fr := &declFrame{
		m:    m,
		fn:   fn,
		vars: make(map[string]lowir.Value, len(fn.Params)),
		aggs: make(map[string][]lowir.Value),
		ptrs: make(map[string]string),
	}
	for i, p := range fn.Params {
		fr.vars[p.Name] = args[i]
	}
	f, err := fr.list(ctx, fn.Body)
	if err != nil {
		return nil, err
	}
	switch f.kind {
	case flowReturn:
		return fr.ret, nil
	case flowJump:
		return nil, fmt.Errorf("interp: %s: goto unknown label %q", fn.Name, f.label)
	case flowBreak:
		return nil, fmt.Errorf("interp: %s: break outside loop", fn.Name)
	}
	if len(fn.Results) != 0 {
		return nil, fmt.Errorf("interp: %s: fell off the end without a return", fn.Name)
	}
	return nil, nil
}

func blockIndex(body []declir.Instr, label string) int {
	for i := range body {
		if body[i].Kind == declir.InstrBlock && body[i].Loop.Label == label {
			return i
		}
	}
	return -1
}

func (fr *declFrame) list(ctx context.Context, body []declir.Instr) (flow, error) {
	for i := 0; i < len(body); i++ {
		f, err := fr.instr(ctx, &body[i])
		if err != nil {
			return next, err
		}
		switch f.kind {
		case flowNext:
		case flowJump:
			j := blockIndex(body, f.label)
			if j < 0 {
				return f, nil
			}
			i = j - 1
		default:
			return f, nil
		}
	}
	return next, nil
}

func (fr *declFrame) set(name string, v lowir.Value) {
	if _, ok := fr.m.globals[name]; ok {
		if _, local := fr.vars[name]; !local {
			fr.m.globals[name] = v
			return
		}
	}
	fr.vars[name] = v
}

func (fr *declFrame) instr(ctx context.Context, ins *declir.Instr) (flow, error) {
	if err := fr.m.tick(); err != nil {
		return next, err
	}
	switch ins.Kind {
	case declir.InstrZeroDecl:
		fr.vars[ins.Var.Name] = lowir.Zero(ins.Var.Type)
	case declir.InstrDecl, declir.InstrAssign:
		v, err := fr.eval(ctx, &ins.Var.Value)
		if err != nil {
			return next, err
		}
		if ins.Kind == declir.InstrDecl {
			fr.vars[ins.Var.Name] = v
		} else {
			fr.set(ins.Var.Name, v)
		}
	case declir.InstrCall:
		return fr.call(ctx, &ins.Call)
	case declir.InstrReturn:
		vals, err := fr.evalAll(ctx, ins.Return.Values)
		if err != nil {
			return next, err
		}
		fr.ret = vals
		return flow{kind: flowReturn}, nil
	case declir.InstrIf:
		c, err := fr.eval(ctx, &ins.If.Cond)
		if err != nil {
			return next, err
		}
		if c.Bits != 0 {
			return fr.list(ctx, ins.If.Then)
		}
		return fr.list(ctx, ins.If.Else)
	case declir.InstrLoop:
		return fr.loop(ctx, &ins.Loop)
	case declir.InstrBlock:
		return fr.list(ctx, ins.Loop.Body)
	case declir.InstrGoto:
		return flow{kind: flowJump, label: ins.Goto.Label}, nil
	case declir.InstrBreak:
		return flow{kind: flowBreak}, nil
	case declir.InstrLoad:
		addr, err := fr.eval(ctx, &ins.Mem.Addr)
		if err != nil {
			return next, err
		}
		v, err := fr.m.mem.load(ins.Mem.Access, addr.U32())
		if err != nil {
			return next, err
		}
		fr.vars[ins.Mem.Name] = v
	case declir.InstrStore:
		addr, err := fr.eval(ctx, &ins.Mem.Addr)
		if err != nil {
			return next, err
		}
		v, err := fr.eval(ctx, &ins.Mem.Value)
		if err != nil {
			return next, err
		}
		if err := fr.m.mem.store(ins.Mem.Access, addr.U32(), v); err != nil {
			return next, err
		}
	case declir.InstrFuncPtr:
		idx, err := fr.eval(ctx, &ins.FuncPtr.Index)
		if err != nil {
			return next, err
		}
		target, err := fr.m.resolve(idx, ins.FuncPtr.Sig)
		if err != nil {
			return next, err
		}
		fr.ptrs[ins.FuncPtr.Name] = target
	case declir.InstrTrap:
		return next, trapf(TrapUnreachable, "unreachable executed in %s", fr.fn.Name)
	case declir.InstrComment:
	default:
		return next, fmt.Errorf("interp: %s: unknown instruction kind %d", fr.fn.Name, ins.Kind)
	}
	return next, nil
}

func (fr *declFrame) loop(ctx context.Context, l *declir.LoopInstr) (flow, error) {
	for {
		f, err := fr.list(ctx, l.Body)
		if err != nil {
			return next, err
		}
		switch {
		case f.kind == flowNext:
		case f.kind == flowJump && f.label == l.Label:
		case f.kind == flowBreak:
			return next, nil
		default:
			return f, nil
		}
		if err := fr.m.tick(); err != nil {
			return next, err
		}
	}
}

func (fr *declFrame) call(ctx context.Context, c *declir.CallInstr) (flow, error) {
	callee := c.Callee
	if c.Indirect {
		target, ok := fr.ptrs[c.Callee]
		if !ok {
			return next, fmt.Errorf("interp: %s: unbound function pointer %q", fr.fn.Name, c.Callee)
		}
		callee = target
	}
	args, err := fr.evalAll(ctx, c.Args)
	if err != nil {
		return next, err
	}
	out, err := fr.m.call(ctx, callee, args)
	if err != nil {
		return next, err
	}
	switch c.Bind {
	case declir.BindDeclare:
		if len(out) == 1 {
			fr.vars[c.Name] = out[0]
		} else {
			fr.aggs[c.Name] = out
		}
	case declir.BindAssign:
		fr.set(c.Name, out[0])
	case declir.BindReturn:
		fr.ret = out
		return flow{kind: flowReturn}, nil
	}
	return next, nil
}

func (fr *declFrame) evalAll(ctx context.Context, es []declir.Expr) ([]lowir.Value, error) {
	out := make([]lowir.Value, len(es))
	for i := range es {
		v, err := fr.eval(ctx, &es[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (fr *declFrame) eval(ctx context.Context, e *declir.Expr) (lowir.Value, error) {
	switch e.Kind {
	case declir.ExprConst:
		return e.Const, nil
	case declir.ExprVar:
		if v, ok := fr.vars[e.Name]; ok {
			return v, nil
		}
		if v, ok := fr.m.globals[e.Name]; ok {
			return v, nil
		}
		return lowir.Value{}, fmt.Errorf("interp: %s: unbound name %q", fr.fn.Name, e.Name)
	case declir.ExprField:
		agg, ok := fr.aggs[e.Name]
		if !ok || e.Index >= len(agg) {
			return lowir.Value{}, fmt.Errorf("interp: %s: no field %d of %q", fr.fn.Name, e.Index, e.Name)
		}
		return agg[e.Index], nil
	case declir.ExprUnary:
		x, err := fr.eval(ctx, e.Unary.X)
		if err != nil {
			return lowir.Value{}, err
		}
		return evalUnary(e.Unary.Op, e.Unary.From, e.Type, e.Unary.Unsigned, x)
	case declir.ExprBinary:
		x, err := fr.eval(ctx, e.Binary.X)
		if err != nil {
			return lowir.Value{}, err
		}
		y, err := fr.eval(ctx, e.Binary.Y)
		if err != nil {
			return lowir.Value{}, err
		}
		return evalBinary(e.Binary.Op, e.Binary.Operand, e.Binary.Unsigned, x, y)
	case declir.ExprCall:
		args, err := fr.evalAll(ctx, e.Args)
		if err != nil {
			return lowir.Value{}, err
		}
		out, err := fr.m.call(ctx, e.Name, args)
		if err != nil {
			return lowir.Value{}, err
		}
		if len(out) != 1 {
			return lowir.Value{}, fmt.Errorf("interp: %s: call to %s in expression returned %d values", fr.fn.Name, e.Name, len(out))
		}
		return out[0], nil
	default:
		return lowir.Value{}, fmt.Errorf("interp: %s: unknown expression kind %d", fr.fn.Name, e.Kind)
	}
}
