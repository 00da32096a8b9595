package reconstruct_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/lowir"
	"unstack/internal/purity"
	"unstack/internal/reconstruct"
	"unstack/internal/testkit"
)

var i32 = []lowir.Type{lowir.I32}

func translate(t *testing.T, p *lowir.Program, name string, opts reconstruct.Options) (*declir.Func, error) {
	t.Helper()
	ctx := context.Background()
	tables := lowir.NewTables(p, purity.Analyze(ctx, p).Pure)
	fn := p.Func(name)
	if fn == nil {
		t.Fatalf("no function %q", name)
	}
	return reconstruct.Translate(ctx, tables, fn, opts)
}

func mustTranslate(t *testing.T, p *lowir.Program, name string) string {
	t.Helper()
	out, err := translate(t, p, name, reconstruct.Options{})
	if err != nil {
		t.Fatalf("translate %s: %v", name, err)
	}
	return declir.DumpBody(out.Body)
}

func single(f *lowir.Func) *lowir.Program {
	return &lowir.Program{Funcs: []*lowir.Func{f}}
}

func TestTranslate_Expressions(t *testing.T) {
	x := lowir.Param{Name: "x", Type: lowir.I32}
	y := lowir.Param{Name: "y", Type: lowir.I32}
	tests := []struct {
		name string
		fn   *lowir.Func
		want string
	}{
		{
			name: "constant add",
			fn: &lowir.Func{Results: i32, Body: []lowir.Instr{
				lowir.ConstI32(3), lowir.ConstI32(4), lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
			}},
			want: "return 3 + 4;\n",
		},
		{
			name: "if one else zero",
			fn:   testkit.LessFunc(),
			want: "return x < y;\n",
		},
		{
			name: "if zero else one",
			fn: &lowir.Func{Params: []lowir.Param{x, y}, Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("x", lowir.I32), lowir.ParamGet("y", lowir.I32), lowir.Binary(lowir.BinaryLt, lowir.I32),
				lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(0)}, []lowir.Instr{lowir.ConstI32(1)}),
				lowir.Return(),
			}},
			want: "return !(x < y);\n",
		},
		{
			name: "non-boolean condition",
			fn: &lowir.Func{Params: []lowir.Param{x}, Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("x", lowir.I32),
				lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(1)}, []lowir.Instr{lowir.ConstI32(0)}),
				lowir.Return(),
			}},
			want: "return x != 0;\n",
		},
		{
			name: "literal moves right of comparison",
			fn: &lowir.Func{Params: []lowir.Param{x}, Results: i32, Body: []lowir.Instr{
				lowir.ConstI32(5), lowir.ParamGet("x", lowir.I32), lowir.Binary(lowir.BinaryLt, lowir.I32), lowir.Return(),
			}},
			want: "return x > 5;\n",
		},
		{
			name: "get before set is snapshotted",
			fn: &lowir.Func{Params: []lowir.Param{x}, Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("x", lowir.I32), lowir.ConstI32(1), lowir.ParamSet("x", lowir.I32), lowir.Return(),
			}},
			want: "i32 tmp0 = x;\nx = 1;\nreturn tmp0;\n",
		},
		{
			name: "implicit return",
			fn: &lowir.Func{Params: []lowir.Param{x}, Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("x", lowir.I32), lowir.Unary(lowir.UnaryEqz, lowir.I32, lowir.I32),
			}},
			want: "return !x;\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn.Name = "f"
			got := mustTranslate(t, single(tt.fn), "f")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslate_LoopWithConditionalContinue(t *testing.T) {
	got := mustTranslate(t, single(testkit.SumFunc()), "sum")
	want := `i32 i = 0;
i32 acc = 0;
L: while (true) {
  i32 tmp0 = acc;
  i32 tmp1 = i;
  acc = tmp0 + tmp1;
  i32 tmp2 = i;
  i = tmp2 + 1;
  if (i < n) {
    goto L;
  }
  break;
}
return acc;
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslate_DispatchGoesStraightToNextCase(t *testing.T) {
	got := mustTranslate(t, single(testkit.DispatchFunc()), "dispatch")
	want := `i32 lbl = 0;
i32 acc = 0;
lbl = 0;
L: while (true) {
  if ((u32) lbl >= (u32) 3) {
    trap;
  }
  if (lbl == 1) {
    goto L_case1;
  }
  if (lbl == 2) {
    goto L_case2;
  }
  L_case0: {
    acc = 1;
    goto L_case1;
  }
  L_case1: {
    i32 tmp0 = acc;
    acc = tmp0 + 2;
    goto L_case2;
  }
  L_case2: {
    return acc;
  }
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslate_DispatchConditionalTarget(t *testing.T) {
	got := mustTranslate(t, single(testkit.CondDispatchFunc()), "run")
	want := `  L_case0: {
    if (n > 0) {
      goto L_case1;
    } else {
      goto L_case2;
    }
  }
`
	if !strings.Contains(got, want) {
		t.Errorf("conditional transfer not lowered to gotos:\n%s", got)
	}
	if strings.Contains(got, "lbl = 1") || strings.Contains(got, "goto L;") {
		t.Errorf("dispatch variable still assigned:\n%s", got)
	}
}

func TestTranslate_DispatchKeepsVariableWhenRead(t *testing.T) {
	fn := testkit.DispatchFunc()
	// Case 2 now returns the dispatch variable itself.
	fn.Body[2].Loop.Body[0].Switch.Cases[2] = []lowir.Instr{lowir.LocalGet("lbl", lowir.I32), lowir.Return()}
	got := mustTranslate(t, single(fn), "dispatch")
	for _, frag := range []string{"lbl = 1;\n    goto L_case1;", "lbl = 2;\n    goto L_case2;"} {
		if !strings.Contains(got, frag) {
			t.Errorf("missing %q in:\n%s", frag, got)
		}
	}
}

func TestTranslate_DispatchKeepsVariableInNestedHost(t *testing.T) {
	got := mustTranslate(t, single(testkit.ReenteredDispatchFunc()), "reenter")
	// the outer loop enters the dispatch again, so the stored case must be kept
	for _, frag := range []string{"lbl = 1;", "lbl = 2;", "goto O;"} {
		if !strings.Contains(got, frag) {
			t.Errorf("missing %q in:\n%s", frag, got)
		}
	}
}

func TestTranslate_TrappingValuesPrecedeEffects(t *testing.T) {
	tests := []struct {
		sample, fn, want string
	}{
		{"trap-before-call", "main", "i32 tmp0 = x / y;\nlog(7);\nreturn tmp0;\n"},
		{"trap-before-store", "main", "i32 tmp0 = (i32) a;\nmem32[0] = 5;\nreturn tmp0;\n"},
		{"divide-by-zero", "div", "return x / y;\n"},
	}
	for _, tt := range tests {
		got := mustTranslate(t, sample(t, tt.sample), tt.fn)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.sample, diff)
		}
	}
}

func TestTranslate_Calls(t *testing.T) {
	t.Run("pure call folds into its consumer", func(t *testing.T) {
		got := mustTranslate(t, testkit.PureCallProgram(), "check")
		if want := "return sq(x) < 100;\n"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
	t.Run("global read before impure call is snapshotted", func(t *testing.T) {
		got := mustTranslate(t, sample(t, "global-snapshot"), "main")
		want := "i32 tmp0 = counter;\nbump();\nreturn tmp0 + counter;\n"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("multiple results", func(t *testing.T) {
		got := mustTranslate(t, sample(t, "multi-result"), "main")
		want := "auto tmp0 = pair();\ni32 tmp1 = tmp0.v0;\ni32 tmp2 = tmp0.v1;\nreturn tmp1 - tmp2;\n"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("indirect", func(t *testing.T) {
		got := mustTranslate(t, testkit.IndirectProgram(), "main")
		want := "fnptr tmp0 = table[sel];\ni32 tmp1 = tmp0(5);\nreturn tmp1;\n"
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTranslate_StrictPureDeferral(t *testing.T) {
	p := testkit.PureCallProgram()
	p.MemoryPages = 1
	p.Funcs = append(p.Funcs, &lowir.Func{
		Name:    "f",
		Params:  []lowir.Param{{Name: "x", Type: lowir.I32}},
		Results: i32,
		Body: []lowir.Instr{
			lowir.ParamGet("x", lowir.I32), lowir.Call("sq"),
			lowir.ConstI32(0), lowir.ConstI32(1), lowir.Store(lowir.MemAccess{Type: lowir.I32}),
			lowir.Return(),
		},
	})

	loose, err := translate(t, p, "f", reconstruct.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := declir.DumpBody(loose.Body), "mem32[0] = 1;\nreturn sq(x);\n"; got != want {
		t.Errorf("default: got %q, want %q", got, want)
	}

	strict, err := translate(t, p, "f", reconstruct.Options{StrictPureDeferral: true})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := declir.DumpBody(strict.Body), "i32 tmp0 = sq(x);\nmem32[0] = 1;\nreturn tmp0;\n"; got != want {
		t.Errorf("strict: got %q, want %q", got, want)
	}
}

func TestTranslate_BranchJoin(t *testing.T) {
	tests := []struct {
		sample, fn, want string
	}{
		{"if-join", "pick", `i32 tmp0 = 0;
if (c) {
  tmp0 = 10;
} else {
  tmp0 = 20;
}
return tmp0 + 1;
`},
		{"if-arm-returns", "clamp", `i32 tmp0 = 0;
if (x > 10) {
  return 10;
} else {
  tmp0 = x;
}
return tmp0 + 1;
`},
		{"if-params", "f", `i32 tmp0 = a * 3;
i32 tmp1 = 0;
if (a) {
  tmp1 = tmp0 + 1;
} else {
  tmp1 = tmp0 - 1;
}
return tmp1;
`},
	}
	for _, tt := range tests {
		got := mustTranslate(t, sample(t, tt.sample), tt.fn)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.sample, diff)
		}
	}
}

func TestTranslate_ConstantConditionTakesOneArm(t *testing.T) {
	fn := &lowir.Func{Name: "f", Results: i32, Body: []lowir.Instr{
		lowir.ConstI32(0),
		lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(10)}, []lowir.Instr{lowir.ConstI32(20)}),
		lowir.Return(),
	}}
	got := mustTranslate(t, single(fn), "f")
	if want := "i32 tmp0 = 0;\ntmp0 = 20;\nreturn tmp0;\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTranslate_Errors(t *testing.T) {
	c := []lowir.Param{{Name: "c", Type: lowir.I32}}
	tests := []struct {
		name string
		fn   *lowir.Func
		want error
		at   string
	}{
		{
			name: "underflow",
			fn:   &lowir.Func{Results: i32, Body: []lowir.Instr{lowir.Binary(lowir.BinaryAdd, lowir.I32)}},
			want: diag.ErrStackDiscipline,
			at:   "f@0",
		},
		{
			name: "underflow inside arm",
			fn: &lowir.Func{Params: c, Body: []lowir.Instr{
				lowir.ParamGet("c", lowir.I32),
				lowir.If(nil, nil, []lowir.Instr{lowir.Drop()}, nil),
			}},
			want: diag.ErrStackDiscipline,
			at:   "f@1.0.0",
		},
		{
			name: "unknown callee",
			fn:   &lowir.Func{Body: []lowir.Instr{lowir.Call("ghost")}},
			want: diag.ErrUnresolved,
			at:   "f@0",
		},
		{
			name: "jump outside loop",
			fn:   &lowir.Func{Body: []lowir.Instr{lowir.Jump("nowhere")}},
			want: diag.ErrUnresolved,
			at:   "f@0",
		},
		{
			name: "missing else changes arity",
			fn: &lowir.Func{Params: c, Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("c", lowir.I32),
				lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(1)}, nil),
				lowir.Return(),
			}},
			want: diag.ErrArity,
			at:   "f@1",
		},
		{
			name: "arm leaves too many values",
			fn: &lowir.Func{Params: c, Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("c", lowir.I32),
				lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(1), lowir.ConstI32(2)}, []lowir.Instr{lowir.ConstI32(3)}),
				lowir.Return(),
			}},
			want: diag.ErrArity,
			at:   "f@1.0.2",
		},
		{
			name: "loop body leaves too many values",
			fn: &lowir.Func{Results: i32, Body: []lowir.Instr{
				lowir.Loop("L", i32, lowir.ConstI32(1), lowir.ConstI32(2)),
				lowir.Return(),
			}},
			want: diag.ErrArity,
			at:   "f@0.0.2",
		},
		{
			name: "case falls through",
			fn: &lowir.Func{Locals: []lowir.Local{{Name: "lbl", Type: lowir.I32}}, Body: []lowir.Instr{
				lowir.Loop("L", nil, lowir.Switch("lbl",
					[]lowir.Instr{lowir.ConstI32(1), lowir.Drop()},
					[]lowir.Instr{lowir.Return()},
				)),
			}},
			want: diag.ErrDispatchShape,
			at:   "f@0.0.0.0.2",
		},
		{
			name: "jump to host without selecting a case",
			fn: &lowir.Func{Locals: []lowir.Local{{Name: "lbl", Type: lowir.I32}}, Body: []lowir.Instr{
				lowir.Loop("L", nil, lowir.Switch("lbl",
					[]lowir.Instr{lowir.Jump("L")},
					[]lowir.Instr{lowir.Return()},
				)),
			}},
			want: diag.ErrDispatchShape,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn.Name = "f"
			_, err := translate(t, single(tt.fn), "f", reconstruct.Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			var de *diag.Error
			if !errors.As(err, &de) {
				t.Fatalf("%v is not a *diag.Error", err)
			}
			if tt.at != "" && de.At.String() != tt.at {
				t.Errorf("location = %s, want %s", de.At, tt.at)
			}
		})
	}
}

func TestTranslate_SamplesSatisfyInvariants(t *testing.T) {
	ctx := context.Background()
	for _, s := range testkit.Samples() {
		tables := lowir.NewTables(s.Program, purity.Analyze(ctx, s.Program).Pure)
		for _, fn := range s.Program.Funcs {
			out, err := reconstruct.Translate(ctx, tables, fn, reconstruct.Options{})
			if err != nil {
				t.Errorf("%s/%s: %v", s.Name, fn.Name, err)
				continue
			}
			if err := testkit.CheckDeclInvariants(out, tables); err != nil {
				t.Errorf("%s/%s:\n%v\n%s", s.Name, fn.Name, err, declir.DumpBody(out.Body))
			}
		}
	}
}

func sample(t *testing.T, name string) *lowir.Program {
	t.Helper()
	for _, s := range testkit.Samples() {
		if s.Name == name {
			return s.Program
		}
	}
	t.Fatalf("no sample %q", name)
	return nil
}
