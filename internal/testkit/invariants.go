package testkit

import (
	"errors"
	"fmt"

	"unstack/internal/declir"
	"unstack/internal/lowir"
)

// CheckDeclInvariants runs a minimal set of invariants on a translated
// function:
// 1) every name read is a parameter, a global, or declared earlier
// 2) no name is declared twice
// 3) every goto targets a loop or block label of the function
// 4) break only appears inside a loop
func CheckDeclInvariants(fn *declir.Func, tables *lowir.Tables) error {
	if fn == nil {
		return errors.New("nil function")
	}
	declared := make(map[string]bool)
	for _, p := range fn.Params {
		declared[p.Name] = true
	}
	labels := make(map[string]bool)
	declir.Walk(fn.Body, func(ins *declir.Instr) bool {
		if ins.Kind == declir.InstrLoop || ins.Kind == declir.InstrBlock {
			labels[ins.Loop.Label] = true
		}
		return true
	})

	var errs []error
	var visit func(body []declir.Instr, inLoop bool)
	visit = func(body []declir.Instr, inLoop bool) {
		for i := range body {
			ins := &body[i]
			ins.VisitReads(func(name string) {
				if !declared[name] && !tables.IsGlobal(name) {
					errs = append(errs, fmt.Errorf("%s: read of undeclared %q", fn.Name, name))
				}
			})
			if ins.Kind != declir.InstrAssign && !(ins.Kind == declir.InstrCall && ins.Call.Bind == declir.BindAssign) {
				if name, ok := ins.Defines(); ok {
					if declared[name] {
						errs = append(errs, fmt.Errorf("%s: %q declared twice", fn.Name, name))
					}
					declared[name] = true
				}
			}
			switch ins.Kind {
			case declir.InstrGoto:
				if !labels[ins.Goto.Label] {
					errs = append(errs, fmt.Errorf("%s: goto unknown label %q", fn.Name, ins.Goto.Label))
				}
			case declir.InstrBreak:
				if !inLoop {
					errs = append(errs, fmt.Errorf("%s: break outside of a loop", fn.Name))
				}
			}
			for _, child := range ins.Children() {
				visit(child, inLoop || ins.Kind == declir.InstrLoop)
			}
		}
	}
	visit(fn.Body, false)
	return errors.Join(errs...)
}
