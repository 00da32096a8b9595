package lowir

import "fmt"

// InstrKind enumerates low-level instruction kinds.
type InstrKind uint8

const (
	// InstrConst pushes a constant.
	InstrConst InstrKind = iota
	// InstrParamGet pushes the value of a parameter.
	InstrParamGet
	// InstrParamSet pops a value into a parameter.
	InstrParamSet
	// InstrLocalGet pushes the value of a local.
	InstrLocalGet
	// InstrLocalSet pops a value into a local.
	InstrLocalSet
	// InstrGlobalGet pushes the value of a global.
	InstrGlobalGet
	// InstrGlobalSet pops a value into a global.
	InstrGlobalSet
	// InstrLoad pops an address and pushes the value read from memory.
	InstrLoad
	// InstrStore pops a value and an address and writes memory.
	InstrStore
	// InstrUnary applies a unary operator.
	InstrUnary
	// InstrBinary applies a binary operator.
	InstrBinary
	// InstrCall calls a function by name.
	InstrCall
	// InstrCallIndirect calls through the function table.
	InstrCallIndirect
	// InstrIf represents a conditional with declared arity.
	InstrIf
	// InstrLoop represents a labeled loop.
	InstrLoop
	// InstrJump jumps to the start of an enclosing loop.
	InstrJump
	// InstrJumpIf pops a condition and jumps when it is non-zero.
	InstrJumpIf
	// InstrSwitch represents a multi-way dispatch on a local.
	InstrSwitch
	// InstrDrop discards the top of the stack.
	InstrDrop
	// InstrReturn returns from the function.
	InstrReturn
	// InstrUnreachable traps.
	InstrUnreachable
	// InstrComment carries a note and has no effect.
	InstrComment
)

var instrKindNames = [...]string{
	InstrConst:        "const",
	InstrParamGet:     "param.get",
	InstrParamSet:     "param.set",
	InstrLocalGet:     "local.get",
	InstrLocalSet:     "local.set",
	InstrGlobalGet:    "global.get",
	InstrGlobalSet:    "global.set",
	InstrLoad:         "load",
	InstrStore:        "store",
	InstrUnary:        "unary",
	InstrBinary:       "binary",
	InstrCall:         "call",
	InstrCallIndirect: "call_indirect",
	InstrIf:           "if",
	InstrLoop:         "loop",
	InstrJump:         "jump",
	InstrJumpIf:       "jump_if",
	InstrSwitch:       "switch",
	InstrDrop:         "drop",
	InstrReturn:       "return",
	InstrUnreachable:  "unreachable",
	InstrComment:      "comment",
}

func (k InstrKind) String() string {
	if int(k) < len(instrKindNames) {
		return instrKindNames[k]
	}
	return fmt.Sprintf("instr(%d)", k)
}

func (k InstrKind) MarshalText() ([]byte, error) {
	if int(k) >= len(instrKindNames) {
		return nil, fmt.Errorf("lowir: cannot encode %s", k)
	}
	return []byte(instrKindNames[k]), nil
}

func (k *InstrKind) UnmarshalText(b []byte) error {
	for i, name := range instrKindNames {
		if name == string(b) {
			*k = InstrKind(i)
			return nil
		}
	}
	return fmt.Errorf("lowir: unknown instruction %q", b)
}

// Instr represents a low-level instruction. Only the payload matching Kind
// is meaningful.
type Instr struct {
	Kind InstrKind `json:"kind"`

	Const        Value             `json:"const,omitzero"`
	Var          VarRef            `json:"var,omitzero"`
	Mem          MemAccess         `json:"mem,omitzero"`
	Unary        UnaryInstr        `json:"unary,omitzero"`
	Binary       BinaryInstr       `json:"binary,omitzero"`
	Call         CallInstr         `json:"call,omitzero"`
	CallIndirect CallIndirectInstr `json:"call_indirect,omitzero"`
	If           IfInstr           `json:"if,omitzero"`
	Loop         LoopInstr         `json:"loop,omitzero"`
	Jump         JumpInstr         `json:"jump,omitzero"`
	Switch       SwitchInstr       `json:"switch,omitzero"`
	Text         string            `json:"text,omitempty"`
}

// VarRef names a parameter, local or global together with its type.
type VarRef struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// MemAccess describes a typed memory access. Size is the access width in
// bytes (0 means the natural width of Type); Signed selects sign extension
// for narrow loads.
type MemAccess struct {
	Type   Type   `json:"type"`
	Size   uint8  `json:"size,omitempty"`
	Signed bool   `json:"signed,omitempty"`
	Offset uint32 `json:"offset,omitempty"`
}

// Width returns the access width in bytes.
func (m MemAccess) Width() int {
	if m.Size != 0 {
		return int(m.Size)
	}
	return m.Type.Bits() / 8
}

// UnaryInstr applies Op to a value of type From producing To.
type UnaryInstr struct {
	Op       UnaryOp `json:"op"`
	From     Type    `json:"from"`
	To       Type    `json:"to"`
	Unsigned bool    `json:"unsigned,omitempty"`
}

// Result returns the type produced by the instruction.
func (u UnaryInstr) Result() Type {
	switch u.Op {
	case UnaryEqz:
		return I32
	case UnaryCast, UnaryReinterpret:
		return u.To
	default:
		return u.From
	}
}

// CanTrap reports whether the instruction may abort execution. Only float
// to integer conversions do.
func (u UnaryInstr) CanTrap() bool {
	return u.Op == UnaryCast && u.From.IsFloat() && u.To.IsInt()
}

// BinaryInstr applies Op to two operands of Type.
type BinaryInstr struct {
	Op       BinaryOp `json:"op"`
	Type     Type     `json:"type"`
	Unsigned bool     `json:"unsigned,omitempty"`
}

// Result returns the type produced by the instruction.
func (b BinaryInstr) Result() Type { return b.Op.ResultType(b.Type) }

// CanTrap reports whether the instruction may abort execution: integer
// division and remainder trap on a zero divisor or on overflow.
func (b BinaryInstr) CanTrap() bool {
	return b.Type.IsInt() && (b.Op == BinaryDiv || b.Op == BinaryRem)
}

// CallInstr calls the function named Func.
type CallInstr struct {
	Func string `json:"func"`
}

// CallIndirectInstr calls the table slot selected by an i32 index on top of
// the stack. Targets lists every function the slot may hold; nil means the
// set is unknown.
type CallIndirectInstr struct {
	Sig     Signature `json:"sig"`
	Targets []string  `json:"targets,omitempty"`
}

// IfInstr pops an i32 condition and runs Then when it is non-zero, Else
// otherwise. Both arms start with Params on the stack and leave Results.
type IfInstr struct {
	Params  []Type  `json:"params,omitempty"`
	Results []Type  `json:"results,omitempty"`
	Then    []Instr `json:"then,omitempty"`
	Else    []Instr `json:"else,omitempty"`
}

// LoopInstr runs Body; a jump to Label restarts it and falling off the end
// leaves Results on the stack.
type LoopInstr struct {
	Label   string  `json:"label"`
	Results []Type  `json:"results,omitempty"`
	Body    []Instr `json:"body,omitempty"`
}

// JumpInstr targets the loop labeled Label.
type JumpInstr struct {
	Label string `json:"label"`
}

// SwitchInstr dispatches on the i32 local Var. Cases[i] runs when Var == i;
// out-of-range values trap. A case that does not jump away continues after
// the switch.
type SwitchInstr struct {
	Var   string    `json:"var"`
	Cases [][]Instr `json:"cases"`
}

// Terminates reports whether control never falls through past ins.
func (ins *Instr) Terminates() bool {
	switch ins.Kind {
	case InstrJump, InstrReturn, InstrUnreachable:
		return true
	default:
		return false
	}
}

// IsConst reports whether ins pushes an i32 constant equal to v.
func (ins *Instr) IsConst(v int32) bool {
	return ins.Kind == InstrConst && ins.Const.Type == I32 && ins.Const.I32() == v
}

// Children returns the nested instruction lists of ins.
func (ins *Instr) Children() [][]Instr {
	switch ins.Kind {
	case InstrIf:
		return [][]Instr{ins.If.Then, ins.If.Else}
	case InstrLoop:
		return [][]Instr{ins.Loop.Body}
	case InstrSwitch:
		return ins.Switch.Cases
	default:
		return nil
	}
}

// Walk calls fn for every instruction in body, depth first, including nested
// bodies. Returning false from fn skips the children of that instruction.
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

// Convenience constructors used by tests and front ends.

func Const(v Value) Instr { return Instr{Kind: InstrConst, Const: v} }
func ConstI32(v int32) Instr { return Const(I32Value(v)) }
func ConstI64(v int64) Instr { return Const(I64Value(v)) }

func ParamGet(name string, t Type) Instr {
	return Instr{Kind: InstrParamGet, Var: VarRef{Name: name, Type: t}}
}

func ParamSet(name string, t Type) Instr {
	return Instr{Kind: InstrParamSet, Var: VarRef{Name: name, Type: t}}
}

func LocalGet(name string, t Type) Instr {
	return Instr{Kind: InstrLocalGet, Var: VarRef{Name: name, Type: t}}
}

func LocalSet(name string, t Type) Instr {
	return Instr{Kind: InstrLocalSet, Var: VarRef{Name: name, Type: t}}
}

func GlobalGet(name string, t Type) Instr {
	return Instr{Kind: InstrGlobalGet, Var: VarRef{Name: name, Type: t}}
}

func GlobalSet(name string, t Type) Instr {
	return Instr{Kind: InstrGlobalSet, Var: VarRef{Name: name, Type: t}}
}

func Load(m MemAccess) Instr  { return Instr{Kind: InstrLoad, Mem: m} }
func Store(m MemAccess) Instr { return Instr{Kind: InstrStore, Mem: m} }

func Unary(op UnaryOp, from, to Type) Instr {
	return Instr{Kind: InstrUnary, Unary: UnaryInstr{Op: op, From: from, To: to}}
}

func Binary(op BinaryOp, t Type) Instr {
	return Instr{Kind: InstrBinary, Binary: BinaryInstr{Op: op, Type: t}}
}

func BinaryUnsigned(op BinaryOp, t Type) Instr {
	return Instr{Kind: InstrBinary, Binary: BinaryInstr{Op: op, Type: t, Unsigned: true}}
}

func Call(name string) Instr { return Instr{Kind: InstrCall, Call: CallInstr{Func: name}} }

func Jump(label string) Instr { return Instr{Kind: InstrJump, Jump: JumpInstr{Label: label}} }

func JumpIf(label string) Instr { return Instr{Kind: InstrJumpIf, Jump: JumpInstr{Label: label}} }

func Drop() Instr        { return Instr{Kind: InstrDrop} }
func Return() Instr      { return Instr{Kind: InstrReturn} }
func Unreachable() Instr { return Instr{Kind: InstrUnreachable} }

func CallIndirect(sig Signature, targets ...string) Instr {
	return Instr{Kind: InstrCallIndirect, CallIndirect: CallIndirectInstr{Sig: sig, Targets: targets}}
}

func If(params, results []Type, then, els []Instr) Instr {
	return Instr{Kind: InstrIf, If: IfInstr{Params: params, Results: results, Then: then, Else: els}}
}

func Loop(label string, results []Type, body ...Instr) Instr {
	return Instr{Kind: InstrLoop, Loop: LoopInstr{Label: label, Results: results, Body: body}}
}

func Switch(v string, cases ...[]Instr) Instr {
	return Instr{Kind: InstrSwitch, Switch: SwitchInstr{Var: v, Cases: cases}}
}

func Comment(text string) Instr { return Instr{Kind: InstrComment, Text: text} }
