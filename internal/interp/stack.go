package interp

import (
	"context"
	"fmt"

	"unstack/internal/lowir"
)

type flowKind uint8

const (
	flowNext flowKind = iota
	flowJump          // to Label
	flowBreak         // out of the innermost loop
	flowReturn
)

type flow struct {
	kind  flowKind
	label string
}

var next = flow{}

type stackFrame struct {
	m     *Machine
	fn    *lowir.Func
	vars  map[string]lowir.Value
	stack []lowir.Value
}

func (m *Machine) runStack(ctx context.Context, fn *lowir.Func, args []lowir.Value) ([]lowir.Value, error) {
	fr := &stackFrame{m: m, fn: fn, vars: make(map[string]lowir.Value, len(fn.Params)+len(fn.Locals))}
	for i, p := range fn.Params {
		fr.vars[p.Name] = args[i]
	}
	for _, l := range fn.Locals {
		fr.vars[l.Name] = lowir.Zero(l.Type)
	}
	f, err := fr.list(ctx, fn.Body)
	if err != nil {
		return nil, err
	}
	if f.kind == flowJump {
		return nil, fmt.Errorf("interp: %s: jump to unknown label %q", fn.Name, f.label)
	}
	n := len(fn.Results)
	if len(fr.stack) < n {
		return nil, fmt.Errorf("interp: %s: stack underflow on return", fn.Name)
	}
	return append([]lowir.Value(nil), fr.stack[len(fr.stack)-n:]...), nil
}

func (fr *stackFrame) push(v lowir.Value) { fr.stack = append(fr.stack, v) }

func (fr *stackFrame) pop() (lowir.Value, error) {
	if len(fr.stack) == 0 {
		return lowir.Value{}, fmt.Errorf("interp: %s: stack underflow", fr.fn.Name)
	}
	v := fr.stack[len(fr.stack)-1]
	fr.stack = fr.stack[:len(fr.stack)-1]
	return v, nil
}

func (fr *stackFrame) popN(n int) ([]lowir.Value, error) {
	if len(fr.stack) < n {
		return nil, fmt.Errorf("interp: %s: stack underflow", fr.fn.Name)
	}
	out := append([]lowir.Value(nil), fr.stack[len(fr.stack)-n:]...)
	fr.stack = fr.stack[:len(fr.stack)-n]
	return out, nil
}

func (fr *stackFrame) list(ctx context.Context, body []lowir.Instr) (flow, error) {
	for i := range body {
		f, err := fr.instr(ctx, &body[i])
		if err != nil || f.kind != flowNext {
			return f, err
		}
	}
	return next, nil
}

func (fr *stackFrame) instr(ctx context.Context, ins *lowir.Instr) (flow, error) {
	if err := fr.m.tick(); err != nil {
		return next, err
	}
	switch ins.Kind {
	case lowir.InstrConst:
		fr.push(ins.Const)
	case lowir.InstrParamGet, lowir.InstrLocalGet:
		fr.push(fr.vars[ins.Var.Name])
	case lowir.InstrGlobalGet:
		fr.push(fr.m.globals[ins.Var.Name])
	case lowir.InstrParamSet, lowir.InstrLocalSet, lowir.InstrGlobalSet:
		v, err := fr.pop()
		if err != nil {
			return next, err
		}
		if ins.Kind == lowir.InstrGlobalSet {
			fr.m.globals[ins.Var.Name] = v
		} else {
			fr.vars[ins.Var.Name] = v
		}
	case lowir.InstrLoad:
		addr, err := fr.pop()
		if err != nil {
			return next, err
		}
		v, err := fr.m.mem.load(ins.Mem, addr.U32())
		if err != nil {
			return next, err
		}
		fr.push(v)
	case lowir.InstrStore:
		vs, err := fr.popN(2)
		if err != nil {
			return next, err
		}
		if err := fr.m.mem.store(ins.Mem, vs[0].U32(), vs[1]); err != nil {
			return next, err
		}
	case lowir.InstrUnary:
		x, err := fr.pop()
		if err != nil {
			return next, err
		}
		u := ins.Unary
		v, err := evalUnary(u.Op, u.From, u.Result(), u.Unsigned, x)
		if err != nil {
			return next, err
		}
		fr.push(v)
	case lowir.InstrBinary:
		vs, err := fr.popN(2)
		if err != nil {
			return next, err
		}
		b := ins.Binary
		v, err := evalBinary(b.Op, b.Type, b.Unsigned, vs[0], vs[1])
		if err != nil {
			return next, err
		}
		fr.push(v)
	case lowir.InstrCall:
		return next, fr.callNamed(ctx, ins.Call.Func, fr.m.sigs[ins.Call.Func])
	case lowir.InstrCallIndirect:
		idx, err := fr.pop()
		if err != nil {
			return next, err
		}
		target, err := fr.m.resolve(idx, ins.CallIndirect.Sig)
		if err != nil {
			return next, err
		}
		return next, fr.callNamed(ctx, target, ins.CallIndirect.Sig)
	case lowir.InstrIf:
		c, err := fr.pop()
		if err != nil {
			return next, err
		}
		if c.Bits != 0 {
			return fr.list(ctx, ins.If.Then)
		}
		return fr.list(ctx, ins.If.Else)
	case lowir.InstrLoop:
		return fr.loop(ctx, &ins.Loop)
	case lowir.InstrJump:
		return flow{kind: flowJump, label: ins.Jump.Label}, nil
	case lowir.InstrJumpIf:
		c, err := fr.pop()
		if err != nil {
			return next, err
		}
		if c.Bits != 0 {
			return flow{kind: flowJump, label: ins.Jump.Label}, nil
		}
	case lowir.InstrSwitch:
		sel := fr.vars[ins.Switch.Var].U32()
		if uint64(sel) >= uint64(len(ins.Switch.Cases)) {
			return next, trapf(TrapUnreachable, "switch on %s: case %d out of range", ins.Switch.Var, sel)
		}
		return fr.list(ctx, ins.Switch.Cases[sel])
	case lowir.InstrDrop:
		_, err := fr.pop()
		return next, err
	case lowir.InstrReturn:
		return flow{kind: flowReturn}, nil
	case lowir.InstrUnreachable:
		return next, trapf(TrapUnreachable, "unreachable executed in %s", fr.fn.Name)
	case lowir.InstrComment:
	default:
		return next, fmt.Errorf("interp: %s: unknown instruction %s", fr.fn.Name, ins.Kind)
	}
	return next, nil
}

func (fr *stackFrame) callNamed(ctx context.Context, name string, sig lowir.Signature) error {
	args, err := fr.popN(len(sig.Params))
	if err != nil {
		return err
	}
	out, err := fr.m.call(ctx, name, args)
	if err != nil {
		return err
	}
	fr.stack = append(fr.stack, out...)
	return nil
}

func (fr *stackFrame) loop(ctx context.Context, l *lowir.LoopInstr) (flow, error) {
	height := len(fr.stack)
	for {
		f, err := fr.list(ctx, l.Body)
		if err != nil {
			return next, err
		}
		if f.kind == flowJump && f.label == l.Label {
			fr.stack = fr.stack[:height]
			continue
		}
		return f, nil
	}
}
