package interp_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/declir"
	"unstack/internal/declopt"
	"unstack/internal/interp"
	"unstack/internal/lowir"
	"unstack/internal/purity"
	"unstack/internal/reconstruct"
	"unstack/internal/testkit"
)

type outcome struct {
	results []lowir.Value
	trap    interp.TrapCode
	globals map[string]lowir.Value
	memory  []byte
	calls   []interp.HostCall
}

func execute(t *testing.T, s testkit.Sample, decl []*declir.Func) outcome {
	t.Helper()
	rec := interp.NewRecorder(nil, nil)
	opts := []interp.Option{interp.WithHost(rec)}
	if decl != nil {
		opts = append(opts, interp.WithDecl(decl...))
	}
	m := interp.New(s.Program, opts...)
	out, err := m.Call(context.Background(), s.Entry, s.Args...)
	var o outcome
	if err != nil {
		var trap *interp.Trap
		if !errors.As(err, &trap) {
			t.Fatalf("%s: %v", s.Name, err)
		}
		o.trap = trap.Code
	}
	o.results = out
	o.globals = make(map[string]lowir.Value)
	for _, g := range s.Program.Globals {
		o.globals[g.Name], _ = m.Global(g.Name)
	}
	o.memory = bytes.Clone(m.Memory())
	o.calls = rec.Calls()
	return o
}

func translateAll(t *testing.T, p *lowir.Program, strict, optimize bool) []*declir.Func {
	t.Helper()
	ctx := context.Background()
	tables := lowir.NewTables(p, purity.Analyze(ctx, p).Pure)
	out := make([]*declir.Func, 0, len(p.Funcs))
	for _, f := range p.Funcs {
		fn, err := reconstruct.Translate(ctx, tables, f, reconstruct.Options{StrictPureDeferral: strict})
		if err != nil {
			t.Fatalf("translate %s: %v", f.Name, err)
		}
		if optimize {
			fn = declopt.Optimize(ctx, tables, fn, declopt.Options{StrictPureDeferral: strict})
		}
		out = append(out, fn)
	}
	return out
}

func compare(t *testing.T, want, got outcome) {
	t.Helper()
	if diff := cmp.Diff(want.results, got.results); diff != "" {
		t.Errorf("results (-stack +decl):\n%s", diff)
	}
	if want.trap != got.trap {
		t.Errorf("trap: stack %v, decl %v", want.trap, got.trap)
	}
	if diff := cmp.Diff(want.globals, got.globals); diff != "" {
		t.Errorf("globals (-stack +decl):\n%s", diff)
	}
	if !bytes.Equal(want.memory, got.memory) {
		t.Errorf("memory differs")
	}
	if diff := cmp.Diff(want.calls, got.calls); diff != "" {
		t.Errorf("host calls (-stack +decl):\n%s", diff)
	}
}

func TestSamples_StackMachineMatchesExpected(t *testing.T) {
	for _, s := range testkit.Samples() {
		t.Run(s.Name, func(t *testing.T) {
			o := execute(t, s, nil)
			if s.Traps {
				if o.trap == 0 {
					t.Fatalf("expected a trap, got %v", o.results)
				}
				return
			}
			if o.trap != 0 {
				t.Fatalf("unexpected trap %v", o.trap)
			}
			if diff := cmp.Diff(s.Want, o.results); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSamples_TranslationPreservesBehavior(t *testing.T) {
	modes := []struct {
		name     string
		strict   bool
		optimize bool
	}{
		{"raw", false, false},
		{"optimized", false, true},
		{"strict", true, true},
	}
	for _, s := range testkit.Samples() {
		want := execute(t, s, nil)
		for _, mode := range modes {
			t.Run(s.Name+"/"+mode.name, func(t *testing.T) {
				got := execute(t, s, translateAll(t, s.Program, mode.strict, mode.optimize))
				compare(t, want, got)
			})
		}
	}
}

func TestSamples_LoopAccumulatorAcrossInputs(t *testing.T) {
	p := &lowir.Program{Funcs: []*lowir.Func{testkit.SumFunc()}}
	decl := translateAll(t, p, false, true)
	for _, n := range []int32{0, 1, 2, 7, 100} {
		s := testkit.Sample{Name: "sum", Program: p, Entry: "sum", Args: []lowir.Value{lowir.I32Value(n)}}
		compare(t, execute(t, s, nil), execute(t, s, decl))
	}
}

func TestSamples_ConditionalDispatchAcrossInputs(t *testing.T) {
	p := &lowir.Program{Funcs: []*lowir.Func{testkit.CondDispatchFunc()}}
	decl := translateAll(t, p, false, true)
	for _, n := range []int32{-3, 0, 4, 5, 6, 50} {
		s := testkit.Sample{Name: "run", Program: p, Entry: "run", Args: []lowir.Value{lowir.I32Value(n)}}
		compare(t, execute(t, s, nil), execute(t, s, decl))
	}
}

func TestSamples_EarlyReturnArmAcrossInputs(t *testing.T) {
	p := &lowir.Program{Funcs: []*lowir.Func{testkit.IfArmReturnsFunc()}}
	decl := translateAll(t, p, false, true)
	for _, x := range []int32{-4, 0, 10, 11, 99} {
		s := testkit.Sample{Name: "clamp", Program: p, Entry: "clamp", Args: []lowir.Value{lowir.I32Value(x)}}
		compare(t, execute(t, s, nil), execute(t, s, decl))
	}
}

func TestSamples_TrapOrderAcrossInputs(t *testing.T) {
	for _, s := range testkit.Samples() {
		if s.Name != "trap-before-call" {
			continue
		}
		decl := translateAll(t, s.Program, false, true)
		for _, y := range []int32{0, 1, 3} {
			s.Args = []lowir.Value{lowir.I32Value(6), lowir.I32Value(y)}
			want := execute(t, s, nil)
			if y == 0 && len(want.calls) != 0 {
				t.Fatalf("stack form called the host before trapping: %v", want.calls)
			}
			compare(t, want, execute(t, s, decl))
		}
	}
}

func eval(t *testing.T, result lowir.Type, body ...lowir.Instr) (lowir.Value, error) {
	t.Helper()
	p := &lowir.Program{MemoryPages: 1, Funcs: []*lowir.Func{{
		Name:    "main",
		Results: []lowir.Type{result},
		Body:    append(body, lowir.Return()),
	}}}
	out, err := interp.New(p).Call(context.Background(), "main")
	if err != nil {
		return lowir.Value{}, err
	}
	return out[0], nil
}

func trapCode(err error) interp.TrapCode {
	var trap *interp.Trap
	if errors.As(err, &trap) {
		return trap.Code
	}
	return 0
}

func TestNumeric(t *testing.T) {
	i32 := lowir.ConstI32
	i64 := lowir.ConstI64
	f64 := func(v float64) lowir.Instr { return lowir.Const(lowir.F64Value(v)) }
	bin := lowir.Binary
	ubin := lowir.BinaryUnsigned

	tests := []struct {
		name   string
		result lowir.Type
		body   []lowir.Instr
		want   lowir.Value
		trap   interp.TrapCode
	}{
		{"wrap add", lowir.I32, []lowir.Instr{i32(math.MaxInt32), i32(1), bin(lowir.BinaryAdd, lowir.I32)}, lowir.I32Value(math.MinInt32), 0},
		{"signed div", lowir.I32, []lowir.Instr{i32(-7), i32(2), bin(lowir.BinaryDiv, lowir.I32)}, lowir.I32Value(-3), 0},
		{"unsigned div", lowir.I32, []lowir.Instr{i32(-2), i32(2), ubin(lowir.BinaryDiv, lowir.I32)}, lowir.I32Value(math.MaxInt32), 0},
		{"div overflow", lowir.I32, []lowir.Instr{i32(math.MinInt32), i32(-1), bin(lowir.BinaryDiv, lowir.I32)}, lowir.Value{}, interp.TrapIntOverflow},
		{"rem min by -1", lowir.I32, []lowir.Instr{i32(math.MinInt32), i32(-1), bin(lowir.BinaryRem, lowir.I32)}, lowir.I32Value(0), 0},
		{"rem by zero", lowir.I64, []lowir.Instr{i64(5), i64(0), bin(lowir.BinaryRem, lowir.I64)}, lowir.Value{}, interp.TrapDivideByZero},
		{"shift mod width", lowir.I32, []lowir.Instr{i32(1), i32(33), bin(lowir.BinaryShl, lowir.I32)}, lowir.I32Value(2), 0},
		{"arithmetic shr", lowir.I32, []lowir.Instr{i32(-8), i32(1), bin(lowir.BinaryShr, lowir.I32)}, lowir.I32Value(-4), 0},
		{"logical shr", lowir.I32, []lowir.Instr{i32(-8), i32(28), ubin(lowir.BinaryShr, lowir.I32)}, lowir.I32Value(15), 0},
		{"rotl", lowir.I32, []lowir.Instr{i32(math.MinInt32), i32(1), bin(lowir.BinaryRotl, lowir.I32)}, lowir.I32Value(1), 0},
		{"rotr", lowir.I64, []lowir.Instr{i64(1), i64(1), bin(lowir.BinaryRotr, lowir.I64)}, lowir.I64Value(math.MinInt64), 0},
		{"unsigned compare", lowir.I32, []lowir.Instr{i32(-1), i32(1), ubin(lowir.BinaryGt, lowir.I32)}, lowir.I32Value(1), 0},
		{"signed compare", lowir.I32, []lowir.Instr{i32(-1), i32(1), bin(lowir.BinaryGt, lowir.I32)}, lowir.I32Value(0), 0},
		{"eqz", lowir.I32, []lowir.Instr{i64(0), lowir.Unary(lowir.UnaryEqz, lowir.I64, lowir.I32)}, lowir.I32Value(1), 0},
		{"sign extend", lowir.I64, []lowir.Instr{i32(-1), lowir.Unary(lowir.UnaryCast, lowir.I32, lowir.I64)}, lowir.I64Value(-1), 0},
		{"wrap to i32", lowir.I32, []lowir.Instr{i64(1<<32 + 5), lowir.Unary(lowir.UnaryCast, lowir.I64, lowir.I32)}, lowir.I32Value(5), 0},
		{"float min nan", lowir.F64, []lowir.Instr{f64(1), f64(math.NaN()), bin(lowir.BinaryMin, lowir.F64)}, lowir.F64Value(math.NaN()), 0},
		{"nearest even", lowir.F64, []lowir.Instr{f64(2.5), lowir.Unary(lowir.UnaryNearest, lowir.F64, lowir.F64)}, lowir.F64Value(2), 0},
		{"trunc to int", lowir.I32, []lowir.Instr{f64(-3.9), lowir.Unary(lowir.UnaryCast, lowir.F64, lowir.I32)}, lowir.I32Value(-3), 0},
		{"trunc nan", lowir.I32, []lowir.Instr{f64(math.NaN()), lowir.Unary(lowir.UnaryCast, lowir.F64, lowir.I32)}, lowir.Value{}, interp.TrapInvalidConversion},
		{"trunc overflow", lowir.I32, []lowir.Instr{f64(3e9), lowir.Unary(lowir.UnaryCast, lowir.F64, lowir.I32)}, lowir.Value{}, interp.TrapIntOverflow},
		{"reinterpret", lowir.I64, []lowir.Instr{f64(1), lowir.Unary(lowir.UnaryReinterpret, lowir.F64, lowir.I64)}, lowir.I64Value(0x3ff0000000000000), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, tt.result, tt.body...)
			if code := trapCode(err); code != tt.trap {
				t.Fatalf("trap = %v, want %v (err %v)", code, tt.trap, err)
			}
			if tt.trap != 0 {
				return
			}
			if tt.want.Type == lowir.F64 && math.IsNaN(tt.want.F64()) {
				if !math.IsNaN(got.F64()) {
					t.Fatalf("got %v, want NaN", got)
				}
				return
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemory(t *testing.T) {
	byteAt := lowir.MemAccess{Type: lowir.I32, Size: 1}
	got, err := eval(t, lowir.I32,
		lowir.ConstI32(3), lowir.ConstI32(0x1ff), lowir.Store(byteAt),
		lowir.ConstI32(3), lowir.Load(byteAt),
	)
	if err != nil || got.I32() != 0xff {
		t.Fatalf("narrow store/load: got %v, %v", got, err)
	}

	_, err = eval(t, lowir.I32, lowir.ConstI32(lowir.PageSize-2), lowir.Load(lowir.MemAccess{Type: lowir.I32}))
	if code := trapCode(err); code != interp.TrapOutOfBounds {
		t.Fatalf("out of bounds load: trap %v, err %v", code, err)
	}
}

func TestIndirectCallSignatureMismatch(t *testing.T) {
	p := testkit.IndirectProgram()
	p.Funcs = append(p.Funcs, &lowir.Func{Name: "nullary", Body: []lowir.Instr{lowir.Return()}})
	p.Table = append(p.Table, "nullary")
	for _, sel := range []int32{2, 7} {
		_, err := interp.New(p).Call(context.Background(), "main", lowir.I32Value(sel))
		want := interp.TrapIndirectCall
		if sel == 7 {
			want = interp.TrapOutOfBounds
		}
		if code := trapCode(err); code != want {
			t.Fatalf("sel %d: trap %v, err %v", sel, code, err)
		}
	}
}

func TestStepLimitAndBacktrace(t *testing.T) {
	p := &lowir.Program{Funcs: []*lowir.Func{
		{Name: "spin", Body: []lowir.Instr{lowir.Loop("L", nil, lowir.Jump("L"))}},
		{Name: "main", Body: []lowir.Instr{lowir.Call("spin")}},
	}}
	_, err := interp.New(p, interp.WithStepLimit(100)).Call(context.Background(), "main")
	var trap *interp.Trap
	if !errors.As(err, &trap) || trap.Code != interp.TrapStepLimit {
		t.Fatalf("err = %v", err)
	}
	if diff := cmp.Diff([]string{"spin", "main"}, trap.Backtrace); diff != "" {
		t.Errorf("backtrace (-want +got):\n%s", diff)
	}
	if !strings.Contains(trap.Format(), "0: spin") {
		t.Errorf("format: %q", trap.Format())
	}
}

func TestRecorderWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	rec := interp.NewRecorder(nil, &buf)
	var s testkit.Sample
	for _, c := range testkit.Samples() {
		if c.Name == "host-order" {
			s = c
		}
	}
	if _, err := interp.New(s.Program, interp.WithHost(rec)).Call(context.Background(), s.Entry); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range rec.Calls() {
		names = append(names, c.Name)
	}
	if diff := cmp.Diff([]string{"log", "read", "log", "read"}, names); diff != "" {
		t.Errorf("call order (-want +got):\n%s", diff)
	}
	if n := strings.Count(buf.String(), "\n"); n != 4 {
		t.Errorf("got %d lines:\n%s", n, buf.String())
	}
	if rec.Err() != nil {
		t.Errorf("recorder error: %v", rec.Err())
	}
}
