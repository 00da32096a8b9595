// Package purity classifies functions as pure (free of observable side
// effects) or impure. The per-function Detect pass looks at one body; Analyze
// closes the result over the call graph.
package purity

import (
	"context"
	"fmt"
	"slices"

	"unstack/internal/lowir"
	"unstack/internal/trace"
)

// Verdict is the per-function result of Detect.
type Verdict struct {
	// MayBePure is false once the body shows a direct side effect.
	MayBePure bool
	// Reason names the first side effect found.
	Reason string
	// Deps lists every function the body may call, sorted.
	Deps []string
}

// Detect scans fn's body. known reports whether a callee exists and whether
// it is an opaque import; calling an unknown name is impure.
func Detect(fn *lowir.Func, known func(name string) (isImport, ok bool)) Verdict {
	d := detector{known: known, deps: make(map[string]struct{})}
	d.list(fn.Body)
	if d.reason != "" {
		return Verdict{Reason: d.reason}
	}
	deps := make([]string, 0, len(d.deps))
	for name := range d.deps {
		deps = append(deps, name)
	}
	slices.Sort(deps)
	return Verdict{MayBePure: true, Deps: deps}
}

type detector struct {
	known  func(string) (bool, bool)
	deps   map[string]struct{}
	reason string
}

func (d *detector) impure(format string, args ...any) {
	if d.reason == "" {
		d.reason = fmt.Sprintf(format, args...)
	}
}

func (d *detector) list(body []lowir.Instr) {
	for i := range body {
		if d.reason != "" {
			return
		}
		d.instr(&body[i])
	}
}

func (d *detector) instr(ins *lowir.Instr) {
	switch ins.Kind {
	case lowir.InstrGlobalSet:
		d.impure("writes global %s", ins.Var.Name)
	case lowir.InstrStore:
		d.impure("writes memory")
	case lowir.InstrCall:
		d.call(ins.Call.Func)
	case lowir.InstrCallIndirect:
		if ins.CallIndirect.Targets == nil {
			d.impure("indirect call with unknown targets")
			return
		}
		for _, target := range ins.CallIndirect.Targets {
			d.call(target)
		}
	case lowir.InstrIf, lowir.InstrLoop, lowir.InstrSwitch:
		for _, child := range ins.Children() {
			d.list(child)
		}
	case lowir.InstrConst, lowir.InstrParamGet, lowir.InstrParamSet, lowir.InstrLocalGet,
		lowir.InstrLocalSet, lowir.InstrGlobalGet, lowir.InstrLoad, lowir.InstrUnary,
		lowir.InstrBinary, lowir.InstrJump, lowir.InstrJumpIf, lowir.InstrDrop,
		lowir.InstrReturn, lowir.InstrUnreachable, lowir.InstrComment:
	}
}

func (d *detector) call(name string) {
	isImport, ok := d.known(name)
	switch {
	case !ok:
		d.impure("calls unknown function %s", name)
	case isImport:
		d.impure("calls import %s", name)
	default:
		d.deps[name] = struct{}{}
	}
}

// Result is the whole-program purity classification.
type Result struct {
	// Pure holds exactly the pure function names.
	Pure map[string]bool
	// Reasons explains why each impure function is impure.
	Reasons map[string]string
}

// Names returns the pure function names in sorted order.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Pure))
	for name := range r.Pure {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Analyze classifies every function of p. Impurity flows from callee to
// caller until nothing changes.
func Analyze(ctx context.Context, p *lowir.Program) Result {
	ctx, span := trace.StartSpan(ctx, trace.ScopePass, "purity")

	imports := make(map[string]bool, len(p.Imports))
	for _, im := range p.Imports {
		imports[im.Name] = true
	}
	funcs := make(map[string]bool, len(p.Funcs))
	for _, f := range p.Funcs {
		funcs[f.Name] = true
	}
	known := func(name string) (bool, bool) {
		if imports[name] {
			return true, true
		}
		return false, funcs[name]
	}

	res := Result{Pure: make(map[string]bool, len(p.Funcs)), Reasons: make(map[string]string)}
	calledBy := make(map[string][]string)
	var work []string
	for _, f := range p.Funcs {
		v := Detect(f, known)
		if !v.MayBePure {
			res.Reasons[f.Name] = v.Reason
			work = append(work, f.Name)
			continue
		}
		res.Pure[f.Name] = true
		for _, dep := range v.Deps {
			calledBy[dep] = append(calledBy[dep], f.Name)
		}
	}

	for len(work) > 0 {
		callee := work[len(work)-1]
		work = work[:len(work)-1]
		for _, caller := range calledBy[callee] {
			if !res.Pure[caller] {
				continue
			}
			delete(res.Pure, caller)
			res.Reasons[caller] = "calls impure " + callee
			work = append(work, caller)
		}
	}

	trace.Point(trace.FromContext(ctx), trace.ScopeFunc, "purity",
		fmt.Sprintf("pure functions: %d/%d", len(res.Pure), len(p.Funcs)))
	span.End("")
	return res
}
