package reconstruct

import (
	"fmt"

	"fortio.org/safecast"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/lowir"
)

// caseTail describes a case ending in
//
//	(const k | if (c) const a else const b) local.set Var [local.set s]* jump host
//
// which selects the next case statically. at is the index of the target
// producer.
type caseTail struct {
	at     int
	target *lowir.Instr
}

// matchTail recognizes the static transfer pattern at the end of a case.
func matchTail(body []lowir.Instr, sw *lowir.SwitchInstr, host string) (caseTail, bool) {
	n := len(body)
	if n < 3 {
		return caseTail{}, false
	}
	last := &body[n-1]
	if last.Kind != lowir.InstrJump || last.Jump.Label != host {
		return caseTail{}, false
	}
	j := n - 2
	for j >= 0 && body[j].Kind == lowir.InstrLocalSet && body[j].Var.Name != sw.Var {
		j--
	}
	if j < 1 || body[j].Kind != lowir.InstrLocalSet || body[j].Var.Name != sw.Var {
		return caseTail{}, false
	}
	p := &body[j-1]
	inRange := func(v int32) bool { return v >= 0 && int(v) < len(sw.Cases) }
	switch p.Kind {
	case lowir.InstrConst:
		if p.Const.Type == lowir.I32 && inRange(p.Const.I32()) {
			return caseTail{at: j - 1, target: p}, true
		}
	case lowir.InstrIf:
		a, okA := constArm(p.If.Then)
		b, okB := constArm(p.If.Else)
		if okA && okB && len(p.If.Params) == 0 && inRange(a) && inRange(b) {
			return caseTail{at: j - 1, target: p}, true
		}
	}
	return caseTail{}, false
}

func countJumps(body []lowir.Instr, label string) int {
	n := 0
	lowir.Walk(body, func(ins *lowir.Instr) bool {
		if (ins.Kind == lowir.InstrJump || ins.Kind == lowir.InstrJumpIf) && ins.Jump.Label == label {
			n++
		}
		return true
	})
	return n
}

func readsLocal(body []lowir.Instr, name string) bool {
	found := false
	lowir.Walk(body, func(ins *lowir.Instr) bool {
		if ins.Kind == lowir.InstrLocalGet && ins.Var.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// dispatch lowers a switch into an entry chain of conditional gotos followed
// by one labeled block per case. Cases that statically select their
// successor jump straight to its block instead of through the loop head.
func (s *scope) dispatch(sw *lowir.SwitchInstr) (bool, error) {
	if len(s.stack) != 0 {
		return false, s.errorf(diag.DispatchShape, "switch entered with %d values on the stack", len(s.stack))
	}
	if len(s.t.loops) == 0 {
		return false, s.errorf(diag.DispatchShape, "switch outside of a loop")
	}
	if l, ok := s.t.fn.Local(sw.Var); !ok || l.Type != lowir.I32 {
		return false, s.errorf(diag.UnresolvedName, "switch variable %q is not an i32 local", sw.Var)
	}
	if len(sw.Cases) == 0 {
		return false, s.errorf(diag.DispatchShape, "switch without cases")
	}
	host := s.t.loops[len(s.t.loops)-1]

	// Direct transfers skip the loop head, so nothing may precede the switch
	// in the host body.
	direct := s.head == host.label
	for i := 0; direct && i < s.idx; i++ {
		direct = s.body[i].Kind == lowir.InstrComment
	}

	tails := make([]caseTail, len(sw.Cases))
	matched := make([]bool, len(sw.Cases))
	recognized := 0
	for i, c := range sw.Cases {
		if !direct {
			break
		}
		if tails[i], matched[i] = matchTail(c, sw, host.label); matched[i] {
			recognized++
		}
	}
	// The variable is only needed when something other than the entry chain
	// reads it, some transfer still goes through the loop head, or an
	// enclosing loop can enter the host again and dispatch on the value the
	// last case stored.
	elide := direct && len(s.t.loops) == 1 &&
		!readsLocal(s.t.fn.Body, sw.Var) &&
		countJumps(host.loop.Body, host.label) == recognized

	labels := make([]string, len(sw.Cases))
	for i := range sw.Cases {
		labels[i] = s.t.label(fmt.Sprintf("%s_case%d", host.label, i))
	}

	count, err := safecast.Conv[int32](len(sw.Cases))
	if err != nil {
		return false, s.errorf(diag.DispatchShape, "too many cases: %v", err)
	}
	v := declir.VarExpr(sw.Var, lowir.I32)
	n := declir.ConstExpr(lowir.I32Value(count))
	s.emit(declir.If(declir.BinaryOf(lowir.BinaryGe, lowir.I32, true, v, n), []declir.Instr{declir.Trap()}, nil))
	for i := int32(1); i < count; i++ {
		k := declir.ConstExpr(lowir.I32Value(i))
		s.emit(declir.If(declir.BinaryOf(lowir.BinaryEq, lowir.I32, false, v, k), []declir.Instr{declir.Goto(labels[i])}, nil))
	}

	for i, body := range sw.Cases {
		c := s.child(i, nil)
		last := i == len(sw.Cases)-1
		var (
			terminated bool
			err        error
		)
		if matched[i] {
			terminated, err = c.directCase(body, tails[i], sw, labels, elide)
		} else {
			terminated, err = c.run(body)
		}
		if err != nil {
			return false, err
		}
		if !terminated {
			c.idx = len(body)
			if !last {
				return false, c.errorf(diag.DispatchShape, "case %d falls through into case %d", i, i+1)
			}
			if len(c.stack) != 0 {
				return false, c.errorf(diag.DispatchShape, "last case leaves %d values on the stack", len(c.stack))
			}
		}
		if err := checkHostJumps(c, body, sw.Var, host.label); err != nil {
			return false, err
		}
		s.emit(declir.Block(labels[i], c.out))
		if last {
			return terminated, nil
		}
	}
	return false, nil
}

// checkHostJumps rejects a case that restarts the host loop without having
// selected the next case.
func checkHostJumps(c *scope, body []lowir.Instr, v, host string) error {
	setsVar := false
	lowir.Walk(body, func(ins *lowir.Instr) bool {
		if ins.Kind == lowir.InstrLocalSet && ins.Var.Name == v {
			setsVar = true
		}
		return !setsVar
	})
	if !setsVar && countJumps(body, host) > 0 {
		return c.errorf(diag.DispatchShape, "case jumps to %q without setting %s", host, v)
	}
	return nil
}

// directCase translates a case whose tail matched, replacing the transfer
// through the loop head with gotos to the selected case blocks.
func (s *scope) directCase(body []lowir.Instr, tail caseTail, sw *lowir.SwitchInstr, labels []string, elide bool) (bool, error) {
	terminated, err := s.runPrefix(body, tail.at)
	if err != nil || terminated {
		return terminated, err
	}

	target := tail.target
	var cond element
	if target.Kind == lowir.InstrIf {
		s.idx = tail.at
		if cond, err = s.pop(lowir.I32); err != nil {
			return false, err
		}
	}
	// Stack-saving sets between the variable store and the jump.
	for i := tail.at + 2; i < len(body)-1; i++ {
		s.idx = i
		if _, err := s.instr(&body[i]); err != nil {
			return false, err
		}
	}
	s.idx = len(body) - 1

	transfer := func(k int32) []declir.Instr {
		var out []declir.Instr
		if !elide {
			out = append(out, declir.Assign(sw.Var, declir.ConstExpr(lowir.I32Value(k))))
		}
		return append(out, declir.Goto(labels[k]))
	}
	if target.Kind == lowir.InstrConst {
		s.out = append(s.out, transfer(target.Const.I32())...)
		return true, nil
	}
	a, _ := constArm(target.If.Then)
	b, _ := constArm(target.If.Else)
	s.emit(declir.If(s.asBool(cond).expr, transfer(a), transfer(b)))
	return true, nil
}
