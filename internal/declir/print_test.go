package declir_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/declir"
	"unstack/internal/lowir"
)

var (
	x   = declir.VarExpr("x", lowir.I32)
	one = declir.ConstExpr(lowir.I32Value(1))
)

func TestDump(t *testing.T) {
	d := declir.VarExpr("d", lowir.I32)
	f := &declir.Func{
		Name:    "f",
		Params:  []lowir.Param{{Name: "x", Type: lowir.I32}},
		Results: []lowir.Type{lowir.I32},
		Body: []declir.Instr{
			declir.ZeroDecl("acc", lowir.I32),
			declir.Decl("d", declir.BinaryOf(lowir.BinarySub, lowir.I32, false,
				declir.BinaryOf(lowir.BinaryAdd, lowir.I32, false, x, one),
				declir.ConstExpr(lowir.I32Value(-2)))),
			{Kind: declir.InstrLoad, Mem: declir.MemInstr{
				Name:   "b",
				Access: lowir.MemAccess{Type: lowir.I32, Size: 1, Signed: true, Offset: 4},
				Addr:   x,
			}},
			{Kind: declir.InstrStore, Mem: declir.MemInstr{
				Access: lowir.MemAccess{Type: lowir.I64},
				Addr:   one,
				Value:  declir.ConstExpr(lowir.I64Value(3)),
			}},
			declir.Loop("L", []declir.Instr{
				declir.If(declir.BinaryOf(lowir.BinaryLt, lowir.I32, true, x, d),
					[]declir.Instr{declir.Goto("L")},
					[]declir.Instr{declir.Break()}),
			}),
			declir.Block("B", []declir.Instr{declir.Comment("note"), declir.Trap()}),
			declir.Return(declir.UnaryOf(lowir.UnaryReinterpret, lowir.F32, lowir.I32, false,
				declir.ConstExpr(lowir.F32Value(1)))),
		},
	}
	want := `func f(i32 x) -> (i32) {
  i32 acc = 0;
  i32 d = (x + 1) - (-2);
  i32 b = mem8s[x + 4];
  mem64[1] = 3L;
  L: while (true) {
    if ((u32) x < (u32) d) {
      goto L;
    } else {
      break;
    }
  }
  B: {
    // note
    trap;
  }
  return bitcast<i32>(1f);
}
`
	var sb strings.Builder
	if err := declir.Dump(&sb, f); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDump_Calls(t *testing.T) {
	body := []declir.Instr{
		{Kind: declir.InstrFuncPtr, FuncPtr: declir.FuncPtrInstr{Name: "p", Index: x}},
		{Kind: declir.InstrCall, Call: declir.CallInstr{Callee: "p", Indirect: true, Args: []declir.Expr{one}}},
		{Kind: declir.InstrCall, Call: declir.CallInstr{
			Callee: "pair", Results: []lowir.Type{lowir.I32, lowir.I32}, Bind: declir.BindDeclare, Name: "agg",
		}},
		{Kind: declir.InstrCall, Call: declir.CallInstr{
			Callee: "read", Results: []lowir.Type{lowir.I32}, Bind: declir.BindAssign, Name: "x",
		}},
		declir.Return(declir.FieldExpr("agg", 1, lowir.I32), declir.CallExpr("sq", lowir.I32, []declir.Expr{x})),
	}
	want := "fnptr p = table[x];\np(1);\nauto agg = pair();\nx = read();\nreturn {agg.v1, sq(x)};\n"
	if got := declir.DumpBody(body); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDump_NormalizesNames(t *testing.T) {
	decomposed := declir.DumpBody([]declir.Instr{declir.Assign("cafe\u0301", one)})
	if want := "caf\u00e9 = 1;\n"; decomposed != want {
		t.Errorf("got %q, want %q", decomposed, want)
	}
}

func TestCloneBody_IsDeep(t *testing.T) {
	orig := []declir.Instr{
		declir.If(x, []declir.Instr{
			declir.Assign("y", declir.BinaryOf(lowir.BinaryAdd, lowir.I32, false, x, one)),
		}, nil),
	}
	before := declir.DumpBody(orig)
	c := declir.CloneBody(orig)
	c[0].If.Then[0].Var.Value.Binary.X.Name = "z"
	c[0].If.Then = append(c[0].If.Then, declir.Break())
	if after := declir.DumpBody(orig); after != before {
		t.Errorf("original changed:\n%s", after)
	}
}

func TestReplaceAndNames(t *testing.T) {
	e := declir.BinaryOf(lowir.BinaryMul, lowir.I32, false, x, declir.VarExpr("t", lowir.I32))
	got, ok := e.Replace("t", declir.CallExpr("sq", lowir.I32, []declir.Expr{x}))
	if !ok {
		t.Fatal("Replace reported no change")
	}
	if s := declir.ExprString(got); s != "x * sq(x)" {
		t.Errorf("got %q", s)
	}
	if declir.ExprString(e) != "x * t" {
		t.Errorf("Replace modified its receiver: %s", declir.ExprString(e))
	}
	if !got.HasCall() || e.HasCall() {
		t.Errorf("HasCall: replaced %v, original %v", got.HasCall(), e.HasCall())
	}
	if diff := cmp.Diff([]string{"x"}, got.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestExprCanTrap(t *testing.T) {
	f := declir.VarExpr("f", lowir.F64)
	tests := []struct {
		name string
		e    declir.Expr
		want bool
	}{
		{"add", declir.BinaryOf(lowir.BinaryAdd, lowir.I32, false, x, one), false},
		{"int div", declir.BinaryOf(lowir.BinaryDiv, lowir.I32, false, x, one), true},
		{"unsigned rem", declir.BinaryOf(lowir.BinaryRem, lowir.I32, true, x, one), true},
		{"float div", declir.BinaryOf(lowir.BinaryDiv, lowir.F64, false, f, f), false},
		{"float to int", declir.UnaryOf(lowir.UnaryCast, lowir.F64, lowir.I32, false, f), true},
		{"int to float", declir.UnaryOf(lowir.UnaryCast, lowir.I32, lowir.F64, false, x), false},
		{"nested", declir.BinaryOf(lowir.BinaryAdd, lowir.I32, false, one,
			declir.BinaryOf(lowir.BinaryDiv, lowir.I32, false, x, x)), true},
		{"call argument", declir.CallExpr("g", lowir.I32, []declir.Expr{
			declir.BinaryOf(lowir.BinaryRem, lowir.I32, false, x, x)}), true},
	}
	for _, tt := range tests {
		if got := tt.e.CanTrap(); got != tt.want {
			t.Errorf("%s: CanTrap = %v, want %v", tt.name, got, tt.want)
		}
	}
}
