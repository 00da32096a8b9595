// Package reconstruct turns stack-machine function bodies into declarative
// bodies by executing them over a stack of expressions instead of values.
package reconstruct

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/liveness"
	"unstack/internal/lowir"
	"unstack/internal/trace"
)

// Options tunes the engine.
type Options struct {
	// StrictPureDeferral refuses to fold a pure call into an expression when
	// memory or a global may be written between the call site and the point
	// where its value is consumed.
	StrictPureDeferral bool
}

// element is one slot of the symbolic stack.
type element struct {
	expr   declir.Expr
	deps   []string
	isBool bool
}

type loopFrame struct {
	label string
	loop  *lowir.LoopInstr
}

// translator holds the state of one function translation. Nothing here is
// shared between functions except the read-only tables.
type translator struct {
	tables *lowir.Tables
	fn     *lowir.Func
	opts   Options
	tr     trace.Tracer

	next   int
	loops  []loopFrame
	labels map[string]bool
}

// scope translates one instruction list (a function body, branch arm, loop
// body or dispatch case) and owns the declarative list built for it.
type scope struct {
	t     *translator
	body  []lowir.Instr
	lw    liveness.LastWrite
	stack []element
	out   []declir.Instr
	path  []int
	idx   int
	// head is the label of the loop whose top-level body this scope
	// translates, or "".
	head string
}

// Translate converts one function. Failures are *diag.Error values and
// abort the translation of the whole function.
func Translate(ctx context.Context, tables *lowir.Tables, fn *lowir.Func, opts Options) (*declir.Func, error) {
	t := &translator{
		tables: tables,
		fn:     fn,
		opts:   opts,
		tr:     trace.FromContext(ctx),
		labels: make(map[string]bool),
	}
	lowir.Walk(fn.Body, func(ins *lowir.Instr) bool {
		if ins.Kind == lowir.InstrLoop {
			t.labels[ins.Loop.Label] = true
		}
		return true
	})

	s := t.newScope(nil, nil)
	for _, l := range fn.Locals {
		s.emit(declir.ZeroDecl(l.Name, l.Type))
	}
	terminated, err := s.run(fn.Body)
	if err != nil {
		return nil, err
	}
	if !terminated {
		s.idx = len(fn.Body)
		if len(s.stack) > len(fn.Results) {
			return nil, s.errorf(diag.StackLeftover, "%d values left on the stack at function end, %d declared results", len(s.stack), len(fn.Results))
		}
		vals, err := s.popTypes(fn.Results)
		if err != nil {
			return nil, err
		}
		s.emit(declir.Return(exprs(vals)...))
	}

	return &declir.Func{
		Name:    fn.Name,
		Params:  slices.Clone(fn.Params),
		Results: slices.Clone(fn.Results),
		Body:    s.out,
	}, nil
}

func (t *translator) newScope(parent *scope, stack []element) *scope {
	s := &scope{t: t, stack: slices.Clone(stack)}
	if parent != nil {
		s.path = append(slices.Clone(parent.path), parent.idx)
	}
	return s
}

func (t *translator) temp() string {
	name := "tmp" + strconv.Itoa(t.next)
	t.next++
	return name
}

// label returns base, or base with a numeric suffix if base is taken.
func (t *translator) label(base string) string {
	name := base
	for i := 1; t.labels[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	t.labels[name] = true
	return name
}

func (t *translator) isPure(name string) bool { return t.tables.IsPure(name) }

// child creates the scope for nested body number arm of the current
// instruction.
func (s *scope) child(arm int, stack []element) *scope {
	c := s.t.newScope(s, stack)
	c.path = append(c.path, arm)
	return c
}

// run translates body. The result reports whether control cannot fall off
// the end of the list; instructions after a terminating one are dead and
// skipped.
func (s *scope) run(body []lowir.Instr) (bool, error) {
	return s.runPrefix(body, len(body))
}

// runPrefix translates body[:end] with write indices taken from the whole
// of body.
func (s *scope) runPrefix(body []lowir.Instr, end int) (bool, error) {
	s.body = body
	s.lw = liveness.AnalyzeEffects(body, s.t.isPure)
	for i := range body[:end] {
		s.idx = i
		if s.t.tr.Level().ShouldEmit(trace.ScopeInstr) {
			trace.Point(s.t.tr, trace.ScopeInstr, body[i].Kind.String(), s.loc().String())
		}
		terminated, err := s.instr(&body[i])
		if err != nil {
			return false, err
		}
		if terminated {
			return true, nil
		}
	}
	return false, nil
}

func (s *scope) loc() diag.Location {
	return diag.Location{Func: s.t.fn.Name, Path: append(slices.Clone(s.path), s.idx)}
}

func (s *scope) errorf(code diag.Code, format string, args ...any) error {
	return diag.Errorf(code, s.loc(), format, args...)
}

func (s *scope) emit(ins declir.Instr) {
	s.out = append(s.out, ins)
}

func (s *scope) push(e element) {
	s.stack = append(s.stack, e)
}

// pop removes the top element, checking its type unless want is
// TypeInvalid.
func (s *scope) pop(want lowir.Type) (element, error) {
	if len(s.stack) == 0 {
		return element{}, s.errorf(diag.StackUnderflow, "pop from empty stack")
	}
	e := s.stack[len(s.stack)-1]
	if want != lowir.TypeInvalid && e.expr.Type != want {
		return element{}, s.errorf(diag.StackTypeMismatch, "expected %s on the stack, found %s", want, e.expr.Type)
	}
	s.stack = s.stack[:len(s.stack)-1]
	return e, nil
}

// popTypes pops len(types) elements and returns them in push order.
func (s *scope) popTypes(types []lowir.Type) ([]element, error) {
	out := make([]element, len(types))
	for i := len(types) - 1; i >= 0; i-- {
		e, err := s.pop(types[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// materialize binds e to a fresh name and returns a reference to it.
func (s *scope) materialize(e element) element {
	name := s.t.temp()
	s.emit(declir.Decl(name, e.expr))
	return element{expr: declir.VarExpr(name, e.expr.Type), deps: []string{name}, isBool: e.isBool}
}

func exprs(es []element) []declir.Expr {
	out := make([]declir.Expr, len(es))
	for i, e := range es {
		out[i] = e.expr
	}
	return out
}

func unionDeps(es ...element) []string {
	var deps []string
	for _, e := range es {
		deps = append(deps, e.deps...)
	}
	slices.Sort(deps)
	return slices.Compact(deps)
}
