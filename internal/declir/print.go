package declir

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"unstack/internal/lowir"
)

// Dump writes a C-like listing of f. The listing is a debugging aid and is
// stable enough to compare in tests; it is not a target-language printer.
func Dump(w io.Writer, f *Func) error {
	if w == nil || f == nil {
		return nil
	}
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type.String() + " " + ident(p.Name)
	}
	results := make([]string, len(f.Results))
	for i, r := range f.Results {
		results[i] = r.String()
	}
	fmt.Fprintf(&sb, "func %s(%s) -> (%s) {\n", ident(f.Name), strings.Join(params, ", "), strings.Join(results, ", "))
	writeList(&sb, f.Body, 1)
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// DumpBody renders a body without the function header.
func DumpBody(body []Instr) string {
	var sb strings.Builder
	writeList(&sb, body, 0)
	return sb.String()
}

// ident normalizes names coming from arbitrary front ends so visually equal
// identifiers print identically.
func ident(name string) string {
	return norm.NFC.String(name)
}

func writeList(sb *strings.Builder, body []Instr, depth int) {
	for i := range body {
		writeInstr(sb, &body[i], depth)
	}
}

func writeInstr(sb *strings.Builder, ins *Instr, depth int) {
	indent := strings.Repeat("  ", depth)
	sb.WriteString(indent)
	switch ins.Kind {
	case InstrZeroDecl:
		fmt.Fprintf(sb, "%s %s = 0;\n", ins.Var.Type, ident(ins.Var.Name))
	case InstrDecl:
		fmt.Fprintf(sb, "%s %s = %s;\n", ins.Var.Type, ident(ins.Var.Name), ExprString(ins.Var.Value))
	case InstrAssign:
		fmt.Fprintf(sb, "%s = %s;\n", ident(ins.Var.Name), ExprString(ins.Var.Value))
	case InstrCall:
		call := callString(&ins.Call)
		switch ins.Call.Bind {
		case BindNone:
			fmt.Fprintf(sb, "%s;\n", call)
		case BindDeclare:
			typ := "auto"
			if len(ins.Call.Results) == 1 {
				typ = ins.Call.Results[0].String()
			}
			fmt.Fprintf(sb, "%s %s = %s;\n", typ, ident(ins.Call.Name), call)
		case BindAssign:
			fmt.Fprintf(sb, "%s = %s;\n", ident(ins.Call.Name), call)
		case BindReturn:
			fmt.Fprintf(sb, "return %s;\n", call)
		}
	case InstrReturn:
		switch len(ins.Return.Values) {
		case 0:
			sb.WriteString("return;\n")
		case 1:
			fmt.Fprintf(sb, "return %s;\n", ExprString(ins.Return.Values[0]))
		default:
			fmt.Fprintf(sb, "return {%s};\n", exprList(ins.Return.Values))
		}
	case InstrIf:
		fmt.Fprintf(sb, "if (%s) {\n", ExprString(ins.If.Cond))
		writeList(sb, ins.If.Then, depth+1)
		if len(ins.If.Else) > 0 {
			sb.WriteString(indent + "} else {\n")
			writeList(sb, ins.If.Else, depth+1)
		}
		sb.WriteString(indent + "}\n")
	case InstrLoop:
		fmt.Fprintf(sb, "%s: while (true) {\n", ident(ins.Loop.Label))
		writeList(sb, ins.Loop.Body, depth+1)
		sb.WriteString(indent + "}\n")
	case InstrBlock:
		fmt.Fprintf(sb, "%s: {\n", ident(ins.Loop.Label))
		writeList(sb, ins.Loop.Body, depth+1)
		sb.WriteString(indent + "}\n")
	case InstrGoto:
		fmt.Fprintf(sb, "goto %s;\n", ident(ins.Goto.Label))
	case InstrBreak:
		sb.WriteString("break;\n")
	case InstrLoad:
		fmt.Fprintf(sb, "%s %s = %s[%s];\n", ins.Mem.Access.Type, ident(ins.Mem.Name), memString(ins.Mem.Access), addrString(&ins.Mem))
	case InstrStore:
		fmt.Fprintf(sb, "%s[%s] = %s;\n", memString(ins.Mem.Access), addrString(&ins.Mem), ExprString(ins.Mem.Value))
	case InstrFuncPtr:
		fmt.Fprintf(sb, "fnptr %s = table[%s];\n", ident(ins.FuncPtr.Name), ExprString(ins.FuncPtr.Index))
	case InstrTrap:
		sb.WriteString("trap;\n")
	case InstrComment:
		fmt.Fprintf(sb, "// %s\n", ins.Text)
	}
}

func callString(c *CallInstr) string {
	return ident(c.Callee) + "(" + exprList(c.Args) + ")"
}

func memString(m lowir.MemAccess) string {
	s := fmt.Sprintf("mem%d", m.Width()*8)
	if m.Signed {
		s += "s"
	}
	return s
}

func addrString(m *MemInstr) string {
	addr := ExprString(m.Addr)
	if m.Access.Offset != 0 {
		addr = fmt.Sprintf("%s + %d", addr, m.Access.Offset)
	}
	return addr
}

func exprList(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = ExprString(e)
	}
	return strings.Join(parts, ", ")
}

var binarySymbols = map[lowir.BinaryOp]string{
	lowir.BinaryAdd: "+",
	lowir.BinarySub: "-",
	lowir.BinaryMul: "*",
	lowir.BinaryDiv: "/",
	lowir.BinaryRem: "%",
	lowir.BinaryAnd: "&",
	lowir.BinaryOr:  "|",
	lowir.BinaryXor: "^",
	lowir.BinaryShl: "<<",
	lowir.BinaryShr: ">>",
	lowir.BinaryEq:  "==",
	lowir.BinaryNe:  "!=",
	lowir.BinaryLt:  "<",
	lowir.BinaryGt:  ">",
	lowir.BinaryLe:  "<=",
	lowir.BinaryGe:  ">=",
}

// ExprString renders e in C-like syntax.
func ExprString(e Expr) string {
	switch e.Kind {
	case ExprConst:
		return e.Const.String()
	case ExprVar:
		return ident(e.Name)
	case ExprField:
		return fmt.Sprintf("%s.v%d", ident(e.Name), e.Index)
	case ExprCall:
		return ident(e.Name) + "(" + exprList(e.Args) + ")"
	case ExprUnary:
		return unaryString(e)
	case ExprBinary:
		b := e.Binary
		x, y := operand(*b.X), operand(*b.Y)
		if b.Unsigned && b.Operand.IsInt() {
			u := fmt.Sprintf("(u%d) ", b.Operand.Bits())
			x, y = u+x, u+y
		}
		if sym, ok := binarySymbols[b.Op]; ok {
			return x + " " + sym + " " + y
		}
		return fmt.Sprintf("%s(%s, %s)", b.Op, ExprString(*b.X), ExprString(*b.Y))
	default:
		return "?"
	}
}

func unaryString(e Expr) string {
	u := e.Unary
	x := operand(*u.X)
	switch u.Op {
	case lowir.UnaryEqz:
		return "!" + x
	case lowir.UnaryNeg:
		return "-" + x
	case lowir.UnaryCast:
		if u.Unsigned && u.From.IsInt() {
			x = fmt.Sprintf("(u%d) %s", u.From.Bits(), x)
		}
		if u.Unsigned && e.Type.IsInt() {
			return fmt.Sprintf("(u%d) %s", e.Type.Bits(), x)
		}
		return fmt.Sprintf("(%s) %s", e.Type, x)
	case lowir.UnaryReinterpret:
		return fmt.Sprintf("bitcast<%s>(%s)", e.Type, ExprString(*u.X))
	default:
		return fmt.Sprintf("%s(%s)", u.Op, ExprString(*u.X))
	}
}

func operand(e Expr) string {
	s := ExprString(e)
	if e.Kind == ExprBinary || (e.Kind == ExprConst && strings.HasPrefix(s, "-")) {
		return "(" + s + ")"
	}
	return s
}
