package declir

import (
	"slices"

	"unstack/internal/lowir"
)

// InstrKind enumerates declarative instruction kinds.
type InstrKind uint8

const (
	// InstrZeroDecl declares a name initialized to zero.
	InstrZeroDecl InstrKind = iota
	// InstrDecl declares a name with an initializer.
	InstrDecl
	// InstrAssign rebinds an existing name.
	InstrAssign
	// InstrCall represents a call statement.
	InstrCall
	// InstrReturn represents a structured return.
	InstrReturn
	// InstrIf represents a structured if/else.
	InstrIf
	// InstrLoop represents a labeled unconditional loop.
	InstrLoop
	// InstrBlock represents a labeled block that gotos may target.
	InstrBlock
	// InstrGoto jumps to a loop label (restarting it) or a block label.
	InstrGoto
	// InstrBreak leaves the innermost loop.
	InstrBreak
	// InstrLoad reads memory into a fresh name.
	InstrLoad
	// InstrStore writes memory.
	InstrStore
	// InstrFuncPtr binds a name to a function table entry.
	InstrFuncPtr
	// InstrTrap aborts execution.
	InstrTrap
	// InstrComment is inert.
	InstrComment
)

// Bind says what a call statement does with its result.
type Bind uint8

const (
	// BindNone discards the results.
	BindNone Bind = iota
	// BindDeclare declares Name holding the result (or the aggregate of
	// all results).
	BindDeclare
	// BindAssign assigns the single result to the existing Name.
	BindAssign
	// BindReturn returns the single result directly.
	BindReturn
)

// Instr is a declarative instruction. Only the payload matching Kind is
// meaningful.
type Instr struct {
	Kind InstrKind

	Var     VarInstr
	Call    CallInstr
	Return  ReturnInstr
	If      IfInstr
	Loop    LoopInstr
	Goto    GotoInstr
	Mem     MemInstr
	FuncPtr FuncPtrInstr
	Text    string
}

// VarInstr is the payload of ZeroDecl, Decl and Assign.
type VarInstr struct {
	Name  string
	Type  lowir.Type
	Value Expr // unused for ZeroDecl
}

// CallInstr is a call statement. Callee names a function, or for indirect
// calls the name bound by a preceding FuncPtr.
type CallInstr struct {
	Callee   string
	Indirect bool
	Args     []Expr
	Results  []lowir.Type
	Bind     Bind
	Name     string
}

type ReturnInstr struct {
	Values []Expr
}

type IfInstr struct {
	Cond Expr
	Then []Instr
	Else []Instr
}

// LoopInstr is the payload of Loop and Block.
type LoopInstr struct {
	Label string
	Body  []Instr
}

type GotoInstr struct {
	Label string
}

// MemInstr is the payload of Load and Store. Load binds Name; Store writes
// Value.
type MemInstr struct {
	Name   string
	Access lowir.MemAccess
	Addr   Expr
	Value  Expr
}

// FuncPtrInstr binds Name to Table[Index], which must have signature Sig.
type FuncPtrInstr struct {
	Name  string
	Sig   lowir.Signature
	Index Expr
}

// Func is a translated function.
type Func struct {
	Name    string
	Params  []lowir.Param
	Results []lowir.Type
	Body    []Instr
}

func ZeroDecl(name string, t lowir.Type) Instr {
	return Instr{Kind: InstrZeroDecl, Var: VarInstr{Name: name, Type: t}}
}

func Decl(name string, init Expr) Instr {
	return Instr{Kind: InstrDecl, Var: VarInstr{Name: name, Type: init.Type, Value: init}}
}

func Assign(name string, value Expr) Instr {
	return Instr{Kind: InstrAssign, Var: VarInstr{Name: name, Type: value.Type, Value: value}}
}

func Return(values ...Expr) Instr {
	return Instr{Kind: InstrReturn, Return: ReturnInstr{Values: values}}
}

func If(cond Expr, then, els []Instr) Instr {
	return Instr{Kind: InstrIf, If: IfInstr{Cond: cond, Then: then, Else: els}}
}

func Loop(label string, body []Instr) Instr {
	return Instr{Kind: InstrLoop, Loop: LoopInstr{Label: label, Body: body}}
}

func Block(label string, body []Instr) Instr {
	return Instr{Kind: InstrBlock, Loop: LoopInstr{Label: label, Body: body}}
}

func Goto(label string) Instr { return Instr{Kind: InstrGoto, Goto: GotoInstr{Label: label}} }

func Break() Instr { return Instr{Kind: InstrBreak} }

func Trap() Instr { return Instr{Kind: InstrTrap} }

func Comment(text string) Instr { return Instr{Kind: InstrComment, Text: text} }

// Children returns the nested bodies of ins.
func (ins *Instr) Children() [][]Instr {
	switch ins.Kind {
	case InstrIf:
		return [][]Instr{ins.If.Then, ins.If.Else}
	case InstrLoop, InstrBlock:
		return [][]Instr{ins.Loop.Body}
	default:
		return nil
	}
}

// Defines returns the name bound by ins itself (not by nested bodies).
func (ins *Instr) Defines() (string, bool) {
	switch ins.Kind {
	case InstrZeroDecl, InstrDecl, InstrAssign:
		return ins.Var.Name, true
	case InstrLoad:
		return ins.Mem.Name, true
	case InstrFuncPtr:
		return ins.FuncPtr.Name, true
	case InstrCall:
		if ins.Call.Bind == BindDeclare || ins.Call.Bind == BindAssign {
			return ins.Call.Name, true
		}
	}
	return "", false
}

// VisitExprs calls fn for every expression owned by ins itself, not by
// nested bodies.
func (ins *Instr) VisitExprs(fn func(e *Expr)) {
	switch ins.Kind {
	case InstrDecl, InstrAssign:
		fn(&ins.Var.Value)
	case InstrCall:
		for i := range ins.Call.Args {
			fn(&ins.Call.Args[i])
		}
	case InstrReturn:
		for i := range ins.Return.Values {
			fn(&ins.Return.Values[i])
		}
	case InstrIf:
		fn(&ins.If.Cond)
	case InstrLoad:
		fn(&ins.Mem.Addr)
	case InstrStore:
		fn(&ins.Mem.Addr)
		fn(&ins.Mem.Value)
	case InstrFuncPtr:
		fn(&ins.FuncPtr.Index)
	case InstrZeroDecl, InstrLoop, InstrBlock, InstrGoto, InstrBreak, InstrTrap, InstrComment:
	}
}

// VisitReads calls fn for every name read by ins itself, including the
// callee of an indirect call.
func (ins *Instr) VisitReads(fn func(name string)) {
	ins.VisitExprs(func(e *Expr) { e.VisitNames(fn) })
	if ins.Kind == InstrCall && ins.Call.Indirect {
		fn(ins.Call.Callee)
	}
}

// Walk calls fn for every instruction in body, depth first. Returning false
// skips the children of that instruction.
func Walk(body []Instr, fn func(ins *Instr) bool) {
	for i := range body {
		ins := &body[i]
		if !fn(ins) {
			continue
		}
		for _, child := range ins.Children() {
			Walk(child, fn)
		}
	}
}

// Reads reports whether ins or any nested instruction reads name.
func Reads(ins *Instr, name string) bool {
	found := false
	Walk([]Instr{*ins}, func(n *Instr) bool {
		n.VisitReads(func(r string) {
			if r == name {
				found = true
			}
		})
		return !found
	})
	return found
}

// Writes reports whether ins or any nested instruction binds name.
func Writes(ins *Instr, name string) bool {
	found := false
	Walk([]Instr{*ins}, func(n *Instr) bool {
		if d, ok := n.Defines(); ok && d == name {
			found = true
		}
		return !found
	})
	return found
}

// CloneBody returns a deep copy of body.
func CloneBody(body []Instr) []Instr {
	if body == nil {
		return nil
	}
	out := make([]Instr, len(body))
	for i, ins := range body {
		ins.Var.Value = ins.Var.Value.Clone()
		ins.Call.Args = cloneExprs(ins.Call.Args)
		ins.Call.Results = slices.Clone(ins.Call.Results)
		ins.Return.Values = cloneExprs(ins.Return.Values)
		ins.If.Cond = ins.If.Cond.Clone()
		ins.If.Then = CloneBody(ins.If.Then)
		ins.If.Else = CloneBody(ins.If.Else)
		ins.Loop.Body = CloneBody(ins.Loop.Body)
		ins.Mem.Addr = ins.Mem.Addr.Clone()
		ins.Mem.Value = ins.Mem.Value.Clone()
		ins.FuncPtr.Index = ins.FuncPtr.Index.Clone()
		out[i] = ins
	}
	return out
}

func cloneExprs(es []Expr) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i := range es {
		out[i] = es[i].Clone()
	}
	return out
}
