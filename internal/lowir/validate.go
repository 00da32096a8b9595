package lowir

import (
	"errors"
	"fmt"
)

// Validate checks structural program invariants: unique names, known
// variables, jump labels that refer to an enclosing loop and switch
// variables that are i32 locals. Type discipline of the operand stack is
// checked during reconstruction, not here.
func Validate(p *Program) error {
	if p == nil {
		return nil
	}
	var errs []error

	seen := make(map[string]string)
	claim := func(kind, name string) {
		if name == "" {
			errs = append(errs, fmt.Errorf("%s with empty name", kind))
			return
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q redeclares %s", kind, name, prev))
			return
		}
		seen[name] = kind
	}
	for _, g := range p.Globals {
		claim("global", g.Name)
		if g.Init.Type != TypeInvalid && g.Init.Type != g.Type {
			errs = append(errs, fmt.Errorf("global %s: initializer is %s, want %s", g.Name, g.Init.Type, g.Type))
		}
	}
	for _, im := range p.Imports {
		claim("import", im.Name)
	}
	for _, f := range p.Funcs {
		if f == nil {
			errs = append(errs, errors.New("nil function"))
			continue
		}
		claim("function", f.Name)
	}
	for i, name := range p.Table {
		if kind := seen[name]; kind != "function" && kind != "import" {
			errs = append(errs, fmt.Errorf("table[%d]: %q is not a function", i, name))
		}
	}

	for _, f := range p.Funcs {
		if f == nil {
			continue
		}
		if err := validateFunc(p, f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

type funcValidator struct {
	p       *Program
	f       *Func
	globals map[string]Global
	labels  []string
	errs    []error
}

func validateFunc(p *Program, f *Func) error {
	v := &funcValidator{p: p, f: f, globals: make(map[string]Global, len(p.Globals))}
	for _, g := range p.Globals {
		v.globals[g.Name] = g
	}

	names := make(map[string]bool, len(f.Params)+len(f.Locals))
	for _, prm := range f.Params {
		if names[prm.Name] {
			v.errorf("duplicate variable %q", prm.Name)
		}
		names[prm.Name] = true
	}
	for _, l := range f.Locals {
		if names[l.Name] {
			v.errorf("duplicate variable %q", l.Name)
		}
		names[l.Name] = true
	}

	v.list(f.Body)
	return errors.Join(v.errs...)
}

func (v *funcValidator) errorf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *funcValidator) list(body []Instr) {
	for i := range body {
		v.instr(&body[i])
	}
}

func (v *funcValidator) instr(ins *Instr) {
	switch ins.Kind {
	case InstrParamGet, InstrParamSet:
		p, ok := v.f.Param(ins.Var.Name)
		if !ok {
			v.errorf("%s: unknown parameter %q", ins.Kind, ins.Var.Name)
		} else if p.Type != ins.Var.Type {
			v.errorf("%s %s: type %s, declared %s", ins.Kind, ins.Var.Name, ins.Var.Type, p.Type)
		}
	case InstrLocalGet, InstrLocalSet:
		l, ok := v.f.Local(ins.Var.Name)
		if !ok {
			v.errorf("%s: unknown local %q", ins.Kind, ins.Var.Name)
		} else if l.Type != ins.Var.Type {
			v.errorf("%s %s: type %s, declared %s", ins.Kind, ins.Var.Name, ins.Var.Type, l.Type)
		}
	case InstrGlobalGet, InstrGlobalSet:
		g, ok := v.globals[ins.Var.Name]
		switch {
		case !ok:
			v.errorf("%s: unknown global %q", ins.Kind, ins.Var.Name)
		case g.Type != ins.Var.Type:
			v.errorf("%s %s: type %s, declared %s", ins.Kind, ins.Var.Name, ins.Var.Type, g.Type)
		case ins.Kind == InstrGlobalSet && !g.Mutable:
			v.errorf("global.set: %s is immutable", g.Name)
		}
	case InstrLoad, InstrStore:
		switch w := ins.Mem.Width(); {
		case w != 1 && w != 2 && w != 4 && w != 8:
			v.errorf("%s: invalid width %d", ins.Kind, w)
		case w*8 > ins.Mem.Type.Bits():
			v.errorf("%s: width %d exceeds %s", ins.Kind, w, ins.Mem.Type)
		}
	case InstrIf:
		v.list(ins.If.Then)
		v.list(ins.If.Else)
	case InstrLoop:
		if ins.Loop.Label == "" {
			v.errorf("loop without label")
		}
		v.labels = append(v.labels, ins.Loop.Label)
		v.list(ins.Loop.Body)
		v.labels = v.labels[:len(v.labels)-1]
	case InstrJump, InstrJumpIf:
		if !v.inScope(ins.Jump.Label) {
			v.errorf("%s: label %q is not an enclosing loop", ins.Kind, ins.Jump.Label)
		}
	case InstrSwitch:
		l, ok := v.f.Local(ins.Switch.Var)
		if !ok || l.Type != I32 {
			v.errorf("switch: dispatch variable %q is not an i32 local", ins.Switch.Var)
		}
		if len(ins.Switch.Cases) == 0 {
			v.errorf("switch on %q has no cases", ins.Switch.Var)
		}
		for _, c := range ins.Switch.Cases {
			v.list(c)
		}
	case InstrCallIndirect:
		if len(v.p.Table) == 0 {
			v.errorf("call_indirect without a function table")
		}
	case InstrConst, InstrUnary, InstrBinary, InstrCall, InstrDrop,
		InstrReturn, InstrUnreachable, InstrComment:
	}
}

func (v *funcValidator) inScope(label string) bool {
	for _, l := range v.labels {
		if l == label {
			return true
		}
	}
	return false
}
