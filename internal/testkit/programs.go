package testkit

import (
	"unstack/internal/lowir"
)

// Sample is a small program together with an entry point and the result
// direct interpretation must produce.
type Sample struct {
	Name    string
	Program *lowir.Program
	Entry   string
	Args    []lowir.Value
	Want    []lowir.Value
	// Traps marks samples whose entry call must abort.
	Traps bool
}

var (
	i32  = []lowir.Type{lowir.I32}
	i32s = func(vs ...int32) []lowir.Value {
		out := make([]lowir.Value, len(vs))
		for i, v := range vs {
			out[i] = lowir.I32Value(v)
		}
		return out
	}
)

func params(names ...string) []lowir.Param {
	out := make([]lowir.Param, len(names))
	for i, n := range names {
		out[i] = lowir.Param{Name: n, Type: lowir.I32}
	}
	return out
}

func locals(names ...string) []lowir.Local {
	out := make([]lowir.Local, len(names))
	for i, n := range names {
		out[i] = lowir.Local{Name: n, Type: lowir.I32}
	}
	return out
}

func single(f *lowir.Func) *lowir.Program {
	return &lowir.Program{Funcs: []*lowir.Func{f}}
}

// Samples returns fresh copies of the sample programs.
func Samples() []Sample {
	return []Sample{
		{
			Name: "constant-add",
			Program: single(&lowir.Func{Name: "main", Results: i32, Body: []lowir.Instr{
				lowir.ConstI32(3), lowir.ConstI32(4), lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
			}}),
			Entry: "main",
			Want:  i32s(7),
		},
		{
			Name:    "compare-to-bool",
			Program: single(LessFunc()),
			Entry:   "less",
			Args:    i32s(2, 5),
			Want:    i32s(1),
		},
		{
			Name:    "loop-sum",
			Program: single(SumFunc()),
			Entry:   "sum",
			Args:    i32s(10),
			Want:    i32s(45),
		},
		{
			Name:    "dispatch",
			Program: single(DispatchFunc()),
			Entry:   "dispatch",
			Want:    i32s(3),
		},
		{
			Name:    "pure-call",
			Program: PureCallProgram(),
			Entry:   "check",
			Args:    i32s(7),
			Want:    i32s(1),
		},
		{
			Name: "global-snapshot",
			Program: &lowir.Program{
				Globals: []lowir.Global{{Name: "counter", Type: lowir.I32, Mutable: true, Init: lowir.I32Value(5)}},
				Funcs: []*lowir.Func{
					{Name: "bump", Body: []lowir.Instr{
						lowir.GlobalGet("counter", lowir.I32), lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32),
						lowir.GlobalSet("counter", lowir.I32),
					}},
					{Name: "main", Results: i32, Body: []lowir.Instr{
						lowir.GlobalGet("counter", lowir.I32), lowir.Call("bump"), lowir.GlobalGet("counter", lowir.I32),
						lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
					}},
				},
			},
			Entry: "main",
			Want:  i32s(11),
		},
		{
			Name: "memory",
			Program: &lowir.Program{MemoryPages: 1, Funcs: []*lowir.Func{{Name: "main", Results: i32, Body: []lowir.Instr{
				lowir.ConstI32(8), lowir.ConstI32(42), lowir.Store(lowir.MemAccess{Type: lowir.I32}),
				lowir.ConstI32(8), lowir.Load(lowir.MemAccess{Type: lowir.I32}),
				lowir.ConstI32(8), lowir.ConstI32(7), lowir.Store(lowir.MemAccess{Type: lowir.I32}),
				lowir.ConstI32(8), lowir.Load(lowir.MemAccess{Type: lowir.I32}),
				lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
			}}}},
			Entry: "main",
			Want:  i32s(49),
		},
		{
			Name: "narrow-memory",
			Program: &lowir.Program{MemoryPages: 1, Funcs: []*lowir.Func{{Name: "main", Results: i32, Body: []lowir.Instr{
				lowir.ConstI32(0), lowir.ConstI32(-1), lowir.Store(lowir.MemAccess{Type: lowir.I32, Size: 1}),
				lowir.ConstI32(0), lowir.Load(lowir.MemAccess{Type: lowir.I32, Size: 1, Signed: true}),
				lowir.ConstI32(1), lowir.Load(lowir.MemAccess{Type: lowir.I32, Size: 1}),
				lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
			}}}},
			Entry: "main",
			Want:  i32s(-1),
		},
		{
			Name: "multi-result",
			Program: &lowir.Program{Funcs: []*lowir.Func{
				{Name: "pair", Results: []lowir.Type{lowir.I32, lowir.I32}, Body: []lowir.Instr{
					lowir.ConstI32(3), lowir.ConstI32(4), lowir.Return(),
				}},
				{Name: "main", Results: i32, Body: []lowir.Instr{
					lowir.Call("pair"), lowir.Binary(lowir.BinarySub, lowir.I32), lowir.Return(),
				}},
			}},
			Entry: "main",
			Want:  i32s(-1),
		},
		{
			Name:    "indirect-call",
			Program: IndirectProgram(),
			Entry:   "main",
			Args:    i32s(1),
			Want:    i32s(15),
		},
		{
			Name: "if-join",
			Program: single(&lowir.Func{Name: "pick", Params: params("c"), Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("c", lowir.I32),
				lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(10)}, []lowir.Instr{lowir.ConstI32(20)}),
				lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
			}}),
			Entry: "pick",
			Args:  i32s(0),
			Want:  i32s(21),
		},
		{
			Name: "if-params",
			Program: single(&lowir.Func{Name: "f", Params: params("a"), Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("a", lowir.I32), lowir.ConstI32(3), lowir.Binary(lowir.BinaryMul, lowir.I32),
				lowir.ParamGet("a", lowir.I32),
				lowir.If(i32, i32,
					[]lowir.Instr{lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32)},
					[]lowir.Instr{lowir.ConstI32(1), lowir.Binary(lowir.BinarySub, lowir.I32)}),
				lowir.Return(),
			}}),
			Entry: "f",
			Args:  i32s(2),
			Want:  i32s(7),
		},
		{
			Name: "loop-result",
			Program: single(&lowir.Func{Name: "count", Results: i32, Locals: locals("i"), Body: []lowir.Instr{
				lowir.Loop("L", i32,
					lowir.LocalGet("i", lowir.I32), lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32),
					lowir.LocalSet("i", lowir.I32),
					lowir.LocalGet("i", lowir.I32), lowir.ConstI32(5), lowir.Binary(lowir.BinaryLt, lowir.I32),
					lowir.JumpIf("L"),
					lowir.LocalGet("i", lowir.I32),
				),
				lowir.Return(),
			}}),
			Entry: "count",
			Want:  i32s(5),
		},
		{
			Name:    "dispatch-conditional",
			Program: single(CondDispatchFunc()),
			Entry:   "run",
			Args:    i32s(5),
			Want:    i32s(105),
		},
		{
			Name: "dispatch-saved-stack",
			Program: single(&lowir.Func{Name: "saved", Results: i32, Locals: locals("lbl", "s"), Body: []lowir.Instr{
				lowir.Loop("L", nil, lowir.Switch("lbl",
					[]lowir.Instr{
						lowir.ConstI32(9), lowir.ConstI32(1), lowir.LocalSet("lbl", lowir.I32),
						lowir.LocalSet("s", lowir.I32), lowir.Jump("L"),
					},
					[]lowir.Instr{lowir.LocalGet("s", lowir.I32), lowir.Return()},
				)),
			}}),
			Entry: "saved",
			Want:  i32s(9),
		},
		{
			Name: "float",
			Program: single(&lowir.Func{
				Name:    "avg",
				Params:  []lowir.Param{{Name: "a", Type: lowir.F64}, {Name: "b", Type: lowir.F64}},
				Results: []lowir.Type{lowir.F64},
				Body: []lowir.Instr{
					lowir.ParamGet("a", lowir.F64), lowir.ParamGet("b", lowir.F64), lowir.Binary(lowir.BinaryAdd, lowir.F64),
					lowir.Const(lowir.F64Value(2)), lowir.Binary(lowir.BinaryDiv, lowir.F64), lowir.Return(),
				},
			}),
			Entry: "avg",
			Args:  []lowir.Value{lowir.F64Value(3), lowir.F64Value(5)},
			Want:  []lowir.Value{lowir.F64Value(4)},
		},
		{
			Name: "host-order",
			Program: &lowir.Program{
				Imports: []lowir.Import{
					{Name: "log", Sig: lowir.Signature{Params: i32}},
					{Name: "read", Sig: lowir.Signature{Results: i32}},
				},
				Funcs: []*lowir.Func{{Name: "main", Results: i32, Body: []lowir.Instr{
					lowir.ConstI32(1), lowir.Call("log"),
					lowir.Call("read"),
					lowir.ConstI32(2), lowir.Call("log"),
					lowir.Call("read"),
					lowir.Binary(lowir.BinarySub, lowir.I32),
					lowir.Return(),
				}}},
			},
			Entry: "main",
			Want:  i32s(0),
		},
		{
			Name:    "dispatch-reentered",
			Program: single(ReenteredDispatchFunc()),
			Entry:   "reenter",
			Want:    i32s(31),
		},
		{
			Name:    "if-arm-returns",
			Program: single(IfArmReturnsFunc()),
			Entry:   "clamp",
			Args:    i32s(50),
			Want:    i32s(10),
		},
		{
			Name: "trap-before-call",
			Program: &lowir.Program{
				Imports: []lowir.Import{{Name: "log", Sig: lowir.Signature{Params: i32}}},
				Funcs: []*lowir.Func{{Name: "main", Params: params("x", "y"), Results: i32, Body: []lowir.Instr{
					lowir.ParamGet("x", lowir.I32), lowir.ParamGet("y", lowir.I32), lowir.Binary(lowir.BinaryDiv, lowir.I32),
					lowir.ConstI32(7), lowir.Call("log"),
					lowir.Return(),
				}}},
			},
			Entry: "main",
			Args:  i32s(1, 0),
			Traps: true,
		},
		{
			Name: "trap-before-store",
			Program: &lowir.Program{MemoryPages: 1, Funcs: []*lowir.Func{{
				Name:    "main",
				Params:  []lowir.Param{{Name: "a", Type: lowir.F64}},
				Results: i32,
				Body: []lowir.Instr{
					lowir.ParamGet("a", lowir.F64), lowir.Unary(lowir.UnaryCast, lowir.F64, lowir.I32),
					lowir.ConstI32(0), lowir.ConstI32(5), lowir.Store(lowir.MemAccess{Type: lowir.I32}),
					lowir.Return(),
				},
			}}},
			Entry: "main",
			Args:  []lowir.Value{lowir.F64Value(1e20)},
			Traps: true,
		},
		{
			Name: "divide-by-zero",
			Program: single(&lowir.Func{Name: "div", Params: params("x", "y"), Results: i32, Body: []lowir.Instr{
				lowir.ParamGet("x", lowir.I32), lowir.ParamGet("y", lowir.I32), lowir.Binary(lowir.BinaryDiv, lowir.I32),
				lowir.Return(),
			}}),
			Entry: "div",
			Args:  i32s(1, 0),
			Traps: true,
		},
	}
}

// LessFunc returns less(x, y) computing x < y through an if/else that
// yields 1 or 0.
func LessFunc() *lowir.Func {
	return &lowir.Func{Name: "less", Params: params("x", "y"), Results: i32, Body: []lowir.Instr{
		lowir.ParamGet("x", lowir.I32), lowir.ParamGet("y", lowir.I32), lowir.Binary(lowir.BinaryLt, lowir.I32),
		lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(1)}, []lowir.Instr{lowir.ConstI32(0)}),
		lowir.Return(),
	}}
}

// SumFunc returns sum(n) adding 0..n-1 in a loop that continues while
// i < n.
func SumFunc() *lowir.Func {
	return &lowir.Func{Name: "sum", Params: params("n"), Results: i32, Locals: locals("i", "acc"), Body: []lowir.Instr{
		lowir.Loop("L", nil,
			lowir.LocalGet("acc", lowir.I32), lowir.LocalGet("i", lowir.I32), lowir.Binary(lowir.BinaryAdd, lowir.I32),
			lowir.LocalSet("acc", lowir.I32),
			lowir.LocalGet("i", lowir.I32), lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32),
			lowir.LocalSet("i", lowir.I32),
			lowir.LocalGet("i", lowir.I32), lowir.ParamGet("n", lowir.I32), lowir.Binary(lowir.BinaryLt, lowir.I32),
			lowir.JumpIf("L"),
		),
		lowir.LocalGet("acc", lowir.I32), lowir.Return(),
	}}
}

// DispatchFunc returns a three-case dispatch loop where every case selects
// its successor with a constant.
func DispatchFunc() *lowir.Func {
	return &lowir.Func{Name: "dispatch", Results: i32, Locals: locals("lbl", "acc"), Body: []lowir.Instr{
		lowir.ConstI32(0), lowir.LocalSet("lbl", lowir.I32),
		lowir.Loop("L", nil, lowir.Switch("lbl",
			[]lowir.Instr{
				lowir.ConstI32(1), lowir.LocalSet("acc", lowir.I32),
				lowir.ConstI32(1), lowir.LocalSet("lbl", lowir.I32), lowir.Jump("L"),
			},
			[]lowir.Instr{
				lowir.LocalGet("acc", lowir.I32), lowir.ConstI32(2), lowir.Binary(lowir.BinaryAdd, lowir.I32),
				lowir.LocalSet("acc", lowir.I32),
				lowir.ConstI32(2), lowir.LocalSet("lbl", lowir.I32), lowir.Jump("L"),
			},
			[]lowir.Instr{lowir.LocalGet("acc", lowir.I32), lowir.Return()},
		)),
	}}
}

// CondDispatchFunc returns a dispatch loop whose first case picks its
// successor with an if/else of constants.
func CondDispatchFunc() *lowir.Func {
	return &lowir.Func{Name: "run", Params: params("n"), Results: i32, Locals: locals("lbl", "acc"), Body: []lowir.Instr{
		lowir.Loop("L", nil, lowir.Switch("lbl",
			[]lowir.Instr{
				lowir.ParamGet("n", lowir.I32), lowir.ConstI32(0), lowir.Binary(lowir.BinaryGt, lowir.I32),
				lowir.If(nil, i32, []lowir.Instr{lowir.ConstI32(1)}, []lowir.Instr{lowir.ConstI32(2)}),
				lowir.LocalSet("lbl", lowir.I32), lowir.Jump("L"),
			},
			[]lowir.Instr{
				lowir.ConstI32(100), lowir.LocalSet("acc", lowir.I32),
				lowir.ConstI32(2), lowir.LocalSet("lbl", lowir.I32), lowir.Jump("L"),
			},
			[]lowir.Instr{
				lowir.LocalGet("acc", lowir.I32), lowir.ParamGet("n", lowir.I32), lowir.Binary(lowir.BinaryAdd, lowir.I32),
				lowir.Return(),
			},
		)),
	}}
}

// ReenteredDispatchFunc returns a dispatch loop nested in an outer loop.
// The last case restarts the outer loop, which enters the dispatch again
// with the case number stored by the previous pass.
func ReenteredDispatchFunc() *lowir.Func {
	return &lowir.Func{Name: "reenter", Results: i32, Locals: locals("lbl", "n"), Body: []lowir.Instr{
		lowir.Loop("O", nil,
			lowir.Loop("L", nil, lowir.Switch("lbl",
				[]lowir.Instr{
					lowir.ConstI32(1), lowir.LocalSet("lbl", lowir.I32), lowir.Jump("L"),
				},
				[]lowir.Instr{
					lowir.LocalGet("n", lowir.I32), lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32),
					lowir.LocalSet("n", lowir.I32),
					lowir.ConstI32(2), lowir.LocalSet("lbl", lowir.I32), lowir.Jump("L"),
				},
				[]lowir.Instr{
					lowir.LocalGet("n", lowir.I32), lowir.ConstI32(10), lowir.Binary(lowir.BinaryAdd, lowir.I32),
					lowir.LocalSet("n", lowir.I32),
					lowir.LocalGet("n", lowir.I32), lowir.ConstI32(25), lowir.Binary(lowir.BinaryLt, lowir.I32),
					lowir.JumpIf("O"),
					lowir.LocalGet("n", lowir.I32), lowir.Return(),
				},
			)),
		),
	}}
}

// IfArmReturnsFunc returns clamp(x): the then arm returns 10 early when
// x > 10, the else arm yields x to the join, which adds 1.
func IfArmReturnsFunc() *lowir.Func {
	return &lowir.Func{Name: "clamp", Params: params("x"), Results: i32, Body: []lowir.Instr{
		lowir.ParamGet("x", lowir.I32), lowir.ConstI32(10), lowir.Binary(lowir.BinaryGt, lowir.I32),
		lowir.If(nil, i32,
			[]lowir.Instr{lowir.ConstI32(10), lowir.Return()},
			[]lowir.Instr{lowir.ParamGet("x", lowir.I32)}),
		lowir.ConstI32(1), lowir.Binary(lowir.BinaryAdd, lowir.I32),
		lowir.Return(),
	}}
}

// PureCallProgram returns sq(x) = x*x and check(x) = sq(x) < 100.
func PureCallProgram() *lowir.Program {
	return &lowir.Program{Funcs: []*lowir.Func{
		{Name: "sq", Params: params("x"), Results: i32, Body: []lowir.Instr{
			lowir.ParamGet("x", lowir.I32), lowir.ParamGet("x", lowir.I32), lowir.Binary(lowir.BinaryMul, lowir.I32),
			lowir.Return(),
		}},
		{Name: "check", Params: params("x"), Results: i32, Body: []lowir.Instr{
			lowir.ParamGet("x", lowir.I32), lowir.Call("sq"), lowir.ConstI32(100), lowir.Binary(lowir.BinaryLt, lowir.I32),
			lowir.Return(),
		}},
	}}
}

// IndirectProgram returns main(sel) calling table[sel](5) where the table
// holds double and triple.
func IndirectProgram() *lowir.Program {
	unary := lowir.Signature{Params: i32, Results: i32}
	scale := func(name string, k int32) *lowir.Func {
		return &lowir.Func{Name: name, Params: params("x"), Results: i32, Body: []lowir.Instr{
			lowir.ParamGet("x", lowir.I32), lowir.ConstI32(k), lowir.Binary(lowir.BinaryMul, lowir.I32), lowir.Return(),
		}}
	}
	return &lowir.Program{
		Table: []string{"double", "triple"},
		Funcs: []*lowir.Func{
			scale("double", 2),
			scale("triple", 3),
			{Name: "main", Params: params("sel"), Results: i32, Body: []lowir.Instr{
				lowir.ConstI32(5), lowir.ParamGet("sel", lowir.I32),
				lowir.CallIndirect(unary, "double", "triple"),
				lowir.Return(),
			}},
		},
	}
}
