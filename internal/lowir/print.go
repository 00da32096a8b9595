package lowir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a human-readable listing of p.
func Dump(w io.Writer, p *Program) error {
	if w == nil || p == nil {
		return nil
	}
	for _, g := range p.Globals {
		mut := ""
		if g.Mutable {
			mut = " mut"
		}
		if _, err := fmt.Fprintf(w, "global %s: %s%s = %s\n", g.Name, g.Type, mut, initOf(g)); err != nil {
			return err
		}
	}
	for _, im := range p.Imports {
		if _, err := fmt.Fprintf(w, "import %s%s\n", im.Name, sigString(im.Sig)); err != nil {
			return err
		}
	}
	if len(p.Table) > 0 {
		if _, err := fmt.Fprintf(w, "table [%s]\n", strings.Join(p.Table, ", ")); err != nil {
			return err
		}
	}
	for _, f := range p.Funcs {
		if err := DumpFunc(w, f); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunc writes a human-readable listing of f.
func DumpFunc(w io.Writer, f *Func) error {
	if w == nil || f == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s%s\n", f.Name, sigString(f.Sig()))
	for _, l := range f.Locals {
		fmt.Fprintf(&sb, "  local %s: %s\n", l.Name, l.Type)
	}
	dumpList(&sb, f.Body, 1)
	_, err := io.WriteString(w, sb.String())
	return err
}

func initOf(g Global) string {
	if g.Init.Type == TypeInvalid {
		return Zero(g.Type).String()
	}
	return g.Init.String()
}

func sigString(s Signature) string {
	return "(" + typeList(s.Params) + ") -> (" + typeList(s.Results) + ")"
}

func typeList(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func dumpList(sb *strings.Builder, body []Instr, depth int) {
	for i := range body {
		dumpInstr(sb, &body[i], depth)
	}
}

func dumpInstr(sb *strings.Builder, ins *Instr, depth int) {
	indent := strings.Repeat("  ", depth)
	sb.WriteString(indent)
	switch ins.Kind {
	case InstrConst:
		fmt.Fprintf(sb, "const %s %s\n", ins.Const.Type, ins.Const)
	case InstrParamGet, InstrParamSet, InstrLocalGet, InstrLocalSet, InstrGlobalGet, InstrGlobalSet:
		fmt.Fprintf(sb, "%s %s %s\n", ins.Kind, ins.Var.Type, ins.Var.Name)
	case InstrLoad, InstrStore:
		sign := ""
		if ins.Mem.Signed {
			sign = "s"
		}
		fmt.Fprintf(sb, "%s %s/%d%s +%d\n", ins.Kind, ins.Mem.Type, ins.Mem.Width()*8, sign, ins.Mem.Offset)
	case InstrUnary:
		u := ins.Unary
		fmt.Fprintf(sb, "%s %s -> %s%s\n", u.Op, u.From, u.To, unsignedSuffix(u.Unsigned))
	case InstrBinary:
		b := ins.Binary
		fmt.Fprintf(sb, "%s %s%s\n", b.Op, b.Type, unsignedSuffix(b.Unsigned))
	case InstrCall:
		fmt.Fprintf(sb, "call %s\n", ins.Call.Func)
	case InstrCallIndirect:
		targets := "?"
		if ins.CallIndirect.Targets != nil {
			targets = strings.Join(ins.CallIndirect.Targets, "|")
		}
		fmt.Fprintf(sb, "call_indirect %s [%s]\n", sigString(ins.CallIndirect.Sig), targets)
	case InstrIf:
		fmt.Fprintf(sb, "if (%s) -> (%s)\n", typeList(ins.If.Params), typeList(ins.If.Results))
		dumpList(sb, ins.If.Then, depth+1)
		if len(ins.If.Else) > 0 {
			sb.WriteString(indent + "else\n")
			dumpList(sb, ins.If.Else, depth+1)
		}
		sb.WriteString(indent + "end\n")
	case InstrLoop:
		fmt.Fprintf(sb, "loop %s -> (%s)\n", ins.Loop.Label, typeList(ins.Loop.Results))
		dumpList(sb, ins.Loop.Body, depth+1)
		sb.WriteString(indent + "end\n")
	case InstrJump, InstrJumpIf:
		fmt.Fprintf(sb, "%s %s\n", ins.Kind, ins.Jump.Label)
	case InstrSwitch:
		fmt.Fprintf(sb, "switch %s\n", ins.Switch.Var)
		for i, c := range ins.Switch.Cases {
			fmt.Fprintf(sb, "%s case %d:\n", indent, i)
			dumpList(sb, c, depth+1)
		}
		sb.WriteString(indent + "end\n")
	case InstrDrop, InstrReturn, InstrUnreachable:
		sb.WriteString(ins.Kind.String() + "\n")
	case InstrComment:
		fmt.Fprintf(sb, ";; %s\n", ins.Text)
	}
}

func unsignedSuffix(u bool) string {
	if u {
		return " unsigned"
	}
	return ""
}
