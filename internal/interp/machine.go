// Package interp executes programs in both representations: the stack form
// as written and the declarative form produced by reconstruction. The two
// share globals, memory, the function table and the host, so a program can
// be checked by running it both ways.
package interp

import (
	"context"
	"errors"
	"fmt"

	"unstack/internal/declir"
	"unstack/internal/lowir"
)

const (
	defaultStepLimit = 10_000_000
	defaultMaxDepth  = 1000
)

// Machine holds the state of one program execution.
type Machine struct {
	funcs   map[string]*lowir.Func
	decl    map[string]*declir.Func
	sigs    map[string]lowir.Signature
	imports map[string]bool
	table   []string
	globals map[string]lowir.Value
	mem     memory
	host    Host

	stepLimit int
	maxDepth  int
	steps     int
	depth     int
}

// Option configures a Machine.
type Option func(*Machine)

// WithHost routes import calls to h.
func WithHost(h Host) Option {
	return func(m *Machine) { m.host = h }
}

// WithStepLimit bounds the number of executed instructions.
func WithStepLimit(n int) Option {
	return func(m *Machine) { m.stepLimit = n }
}

// WithDecl runs the given functions in declarative form instead of their
// stack form. Functions not listed still run as stack code.
func WithDecl(funcs ...*declir.Func) Option {
	return func(m *Machine) {
		for _, f := range funcs {
			m.decl[f.Name] = f
		}
	}
}

// New prepares p for execution. Globals start at their initializers and
// memory is zeroed.
func New(p *lowir.Program, opts ...Option) *Machine {
	m := &Machine{
		funcs:     make(map[string]*lowir.Func, len(p.Funcs)),
		decl:      make(map[string]*declir.Func),
		sigs:      make(map[string]lowir.Signature, len(p.Funcs)+len(p.Imports)),
		imports:   make(map[string]bool, len(p.Imports)),
		table:     p.Table,
		globals:   make(map[string]lowir.Value, len(p.Globals)),
		mem:       memory{data: make([]byte, int(p.MemoryPages)*lowir.PageSize)},
		host:      ZeroHost{},
		stepLimit: defaultStepLimit,
		maxDepth:  defaultMaxDepth,
	}
	for _, f := range p.Funcs {
		m.funcs[f.Name] = f
		m.sigs[f.Name] = f.Sig()
	}
	for _, im := range p.Imports {
		m.imports[im.Name] = true
		m.sigs[im.Name] = im.Sig
	}
	for _, g := range p.Globals {
		v := g.Init
		if v.Type != g.Type {
			v = lowir.Zero(g.Type)
		}
		m.globals[g.Name] = v
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Call runs the function name with args and returns its results. Traps are
// reported as *Trap.
func (m *Machine) Call(ctx context.Context, name string, args ...lowir.Value) ([]lowir.Value, error) {
	return m.call(ctx, name, args)
}

// Global returns the current value of a global.
func (m *Machine) Global(name string) (lowir.Value, bool) {
	v, ok := m.globals[name]
	return v, ok
}

// Memory returns the linear memory. The slice aliases machine state.
func (m *Machine) Memory() []byte {
	return m.mem.data
}

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() int {
	return m.steps
}

func (m *Machine) call(ctx context.Context, name string, args []lowir.Value) ([]lowir.Value, error) {
	sig, ok := m.sigs[name]
	if !ok {
		return nil, fmt.Errorf("interp: unknown function %q", name)
	}
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("interp: %s: got %d arguments, want %d", name, len(args), len(sig.Params))
	}
	for i, t := range sig.Params {
		if args[i].Type != t {
			return nil, fmt.Errorf("interp: %s: argument %d is %s, want %s", name, i, args[i].Type, t)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.depth >= m.maxDepth {
		return nil, trapf(TrapCallDepth, "call depth exceeded %d", m.maxDepth)
	}
	m.depth++
	defer func() { m.depth-- }()

	var (
		out []lowir.Value
		err error
	)
	switch {
	case m.imports[name]:
		out, err = m.host.Call(ctx, name, sig, args)
	case m.decl[name] != nil:
		out, err = m.runDecl(ctx, m.decl[name], args)
	default:
		out, err = m.runStack(ctx, m.funcs[name], args)
	}
	if err != nil {
		var trap *Trap
		if errors.As(err, &trap) {
			trap.Backtrace = append(trap.Backtrace, name)
		}
		return nil, err
	}
	if len(out) != len(sig.Results) {
		return nil, fmt.Errorf("interp: %s returned %d values, want %d", name, len(out), len(sig.Results))
	}
	return out, nil
}

// resolve returns the function stored at table slot idx, checking that it
// has signature sig.
func (m *Machine) resolve(idx lowir.Value, sig lowir.Signature) (string, error) {
	i := idx.U32()
	if uint64(i) >= uint64(len(m.table)) {
		return "", trapf(TrapOutOfBounds, "table index %d out of bounds (size %d)", i, len(m.table))
	}
	target := m.table[i]
	if got, ok := m.sigs[target]; !ok || !got.Equal(sig) {
		return "", trapf(TrapIndirectCall, "indirect call to %s: signature mismatch", target)
	}
	return target, nil
}

func (m *Machine) tick() error {
	m.steps++
	if m.stepLimit > 0 && m.steps > m.stepLimit {
		return trapf(TrapStepLimit, "step limit %d exhausted", m.stepLimit)
	}
	return nil
}

func errUnsupported(kind, op string, t lowir.Type) error {
	return fmt.Errorf("interp: unsupported %s op %s on %s", kind, op, t)
}
