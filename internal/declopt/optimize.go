// Package declopt simplifies translated functions: it removes dead
// bindings, fuses zero declarations with their first assignment, inlines
// single-use declarations and folds call results into their consumer.
package declopt

import (
	"context"
	"strconv"

	"unstack/internal/declir"
	"unstack/internal/lowir"
	"unstack/internal/trace"
)

// Options tunes the optimizer.
type Options struct {
	// StrictPureDeferral keeps declarations whose initializer calls a pure
	// function from moving across memory or global writes.
	StrictPureDeferral bool
}

// Stats counts the rewrites applied by one Optimize call.
type Stats struct {
	Rounds  int
	Dead    int
	Fused   int
	Inlined int
	Folded  int
}

type optimizer struct {
	tables *lowir.Tables
	opts   Options
	fn     *declir.Func
	reads  map[string]int
	writes map[string]int
	stats  Stats
}

// Optimize returns a simplified copy of fn. fn itself is not modified.
// The result is a fixed point: optimizing it again changes nothing.
func Optimize(ctx context.Context, tables *lowir.Tables, fn *declir.Func, opts Options) *declir.Func {
	out, _ := OptimizeStats(ctx, tables, fn, opts)
	return out
}

// OptimizeStats is Optimize that also reports what was rewritten.
func OptimizeStats(ctx context.Context, tables *lowir.Tables, fn *declir.Func, opts Options) (*declir.Func, Stats) {
	_, span := trace.StartSpan(ctx, trace.ScopeFunc, "optimize:"+fn.Name)

	o := &optimizer{
		tables: tables,
		opts:   opts,
		fn: &declir.Func{
			Name:    fn.Name,
			Params:  fn.Params,
			Results: fn.Results,
			Body:    declir.CloneBody(fn.Body),
		},
	}
	passes := []func([]declir.Instr) ([]declir.Instr, bool){
		o.dead,
		o.fuse,
		o.inline,
		o.fold,
	}
	for changed := true; changed; {
		o.stats.Rounds++
		changed = false
		for _, pass := range passes {
			o.count()
			var body []declir.Instr
			body, changed = eachList(o.fn.Body, pass)
			o.fn.Body = body
			if changed {
				break
			}
		}
		if !changed {
			changed = o.trimReturn()
		}
	}

	span.WithExtra("rounds", strconv.Itoa(o.stats.Rounds)).
		WithExtra("inlined", strconv.Itoa(o.stats.Inlined)).
		End("")
	return o.fn, o.stats
}

// eachList applies pass to body and to every nested list, innermost first.
func eachList(body []declir.Instr, pass func([]declir.Instr) ([]declir.Instr, bool)) ([]declir.Instr, bool) {
	changed := false
	for i := range body {
		ins := &body[i]
		var c bool
		switch ins.Kind {
		case declir.InstrIf:
			ins.If.Then, c = eachList(ins.If.Then, pass)
			changed = changed || c
			ins.If.Else, c = eachList(ins.If.Else, pass)
			changed = changed || c
		case declir.InstrLoop, declir.InstrBlock:
			ins.Loop.Body, c = eachList(ins.Loop.Body, pass)
			changed = changed || c
		}
	}
	body, c := pass(body)
	return body, changed || c
}

func (o *optimizer) count() {
	o.reads = make(map[string]int)
	o.writes = make(map[string]int)
	declir.Walk(o.fn.Body, func(ins *declir.Instr) bool {
		ins.VisitReads(func(name string) { o.reads[name]++ })
		if name, ok := ins.Defines(); ok {
			o.writes[name]++
		}
		return true
	})
}

// removable reports whether bindings of name may be deleted when it is
// never read. Globals stay observable after the function returns.
func (o *optimizer) removable(name string) bool {
	return !o.tables.IsGlobal(name) && o.reads[name] == 0
}

func (o *optimizer) dead(body []declir.Instr) ([]declir.Instr, bool) {
	out := body[:0]
	changed := false
	for _, ins := range body {
		drop := false
		switch ins.Kind {
		case declir.InstrZeroDecl, declir.InstrDecl, declir.InstrAssign:
			drop = o.removable(ins.Var.Name)
		case declir.InstrLoad:
			// an unread load goes away together with its bounds trap
			drop = o.removable(ins.Mem.Name)
		case declir.InstrFuncPtr:
			drop = o.removable(ins.FuncPtr.Name)
		case declir.InstrCall:
			if (ins.Call.Bind == declir.BindDeclare || ins.Call.Bind == declir.BindAssign) && o.removable(ins.Call.Name) {
				ins.Call.Bind, ins.Call.Name = declir.BindNone, ""
				changed = true
				o.stats.Dead++
			}
		case declir.InstrIf:
			drop = len(ins.If.Then) == 0 && len(ins.If.Else) == 0
		}
		if drop {
			changed = true
			o.stats.Dead++
			continue
		}
		out = append(out, ins)
	}
	return out, changed
}

// mentions reports whether ins or anything nested in it reads or binds name.
func mentions(ins *declir.Instr, name string) bool {
	return declir.Reads(ins, name) || declir.Writes(ins, name)
}

func ownReads(ins *declir.Instr, name string) bool {
	found := false
	ins.VisitExprs(func(e *declir.Expr) {
		e.VisitNames(func(n string) {
			if n == name {
				found = true
			}
		})
	})
	if ins.Kind == declir.InstrCall && ins.Call.Indirect && ins.Call.Callee == name {
		found = true
	}
	return found
}

// fuse turns "T x = 0; ... x = e;" into "... T x = e;" when nothing between
// the two mentions x.
func (o *optimizer) fuse(body []declir.Instr) ([]declir.Instr, bool) {
	for d := range body {
		if body[d].Kind != declir.InstrZeroDecl {
			continue
		}
		name := body[d].Var.Name
		j := o.firstMention(body, d, name)
		if j < 0 {
			continue
		}
		ins := &body[j]
		switch {
		case ins.Kind == declir.InstrAssign && ins.Var.Name == name && !ownReads(ins, name):
			body[j] = declir.Decl(name, ins.Var.Value)
		case ins.Kind == declir.InstrCall && ins.Call.Bind == declir.BindAssign && ins.Call.Name == name && !ownReads(ins, name):
			ins.Call.Bind = declir.BindDeclare
		default:
			continue
		}
		o.stats.Fused++
		return append(body[:d], body[d+1:]...), true
	}
	return body, false
}

// firstMention returns the index of the first instruction after d that
// mentions name, or -1 if there is none or a goto may skip over it.
func (o *optimizer) firstMention(body []declir.Instr, d int, name string) int {
	for j := d + 1; j < len(body); j++ {
		if mentions(&body[j], name) {
			return j
		}
		if o.gotoOutside(&body[j]) {
			return -1
		}
	}
	return -1
}

// gotoOutside reports whether ins contains a goto to a block label.
func (o *optimizer) gotoOutside(ins *declir.Instr) bool {
	found := false
	declir.Walk([]declir.Instr{*ins}, func(n *declir.Instr) bool {
		if n.Kind == declir.InstrGoto && !o.isLoop(n.Goto.Label) {
			found = true
		}
		return !found
	})
	return found
}

func (o *optimizer) isLoop(label string) bool {
	found := false
	declir.Walk(o.fn.Body, func(n *declir.Instr) bool {
		if n.Kind == declir.InstrLoop && n.Loop.Label == label {
			found = true
		}
		return !found
	})
	return found
}

// hasEffect reports whether ins may write memory or a global.
func (o *optimizer) hasEffect(ins *declir.Instr) bool {
	found := false
	declir.Walk([]declir.Instr{*ins}, func(n *declir.Instr) bool {
		switch n.Kind {
		case declir.InstrStore:
			found = true
		case declir.InstrCall:
			found = n.Call.Indirect || !o.tables.IsPure(n.Call.Callee)
		}
		if name, ok := n.Defines(); ok && o.tables.IsGlobal(name) {
			found = true
		}
		return !found
	})
	return found
}

// inline substitutes single-use declarations into their only reader.
func (o *optimizer) inline(body []declir.Instr) ([]declir.Instr, bool) {
	changed := false
	for d := 0; d < len(body); d++ {
		decl := &body[d]
		if decl.Kind != declir.InstrDecl {
			continue
		}
		name := decl.Var.Name
		if o.tables.IsGlobal(name) || o.writes[name] != 1 || o.reads[name] != 1 {
			continue
		}
		r := o.reader(body, d)
		if r < 0 {
			continue
		}
		var ok bool
		body[r].VisitExprs(func(e *declir.Expr) {
			if !ok {
				*e, ok = e.Replace(name, decl.Var.Value)
			}
		})
		if !ok {
			continue
		}
		body = append(body[:d], body[d+1:]...)
		d--
		changed = true
		o.stats.Inlined++
	}
	return body, changed
}

// reader returns the index of the instruction that may absorb the
// declaration at d, or -1.
func (o *optimizer) reader(body []declir.Instr, d int) int {
	decl := &body[d]
	name := decl.Var.Name
	deps := decl.Var.Value.Names()
	guarded := (o.opts.StrictPureDeferral && decl.Var.Value.HasCall()) || decl.Var.Value.CanTrap()
	for _, dep := range deps {
		if o.tables.IsGlobal(dep) {
			guarded = true
		}
	}
	for j := d + 1; j < len(body); j++ {
		ins := &body[j]
		if ins.Kind == declir.InstrBlock {
			return -1
		}
		if declir.Reads(ins, name) {
			if !ownReads(ins, name) {
				return -1
			}
			return j
		}
		for _, dep := range deps {
			if declir.Writes(ins, dep) {
				return -1
			}
		}
		if guarded && o.hasEffect(ins) {
			return -1
		}
	}
	return -1
}

// fold binds a call result directly to the name, return or declaration
// that consumes it next.
func (o *optimizer) fold(body []declir.Instr) ([]declir.Instr, bool) {
	for d := 0; d+1 < len(body); d++ {
		c := &body[d]
		if c.Kind != declir.InstrCall || c.Call.Bind != declir.BindDeclare || len(c.Call.Results) != 1 {
			continue
		}
		t := c.Call.Name
		if o.writes[t] != 1 || o.reads[t] != 1 {
			continue
		}
		next := &body[d+1]
		switch {
		case next.Kind == declir.InstrReturn && len(next.Return.Values) == 1 && isVar(next.Return.Values[0], t):
			c.Call.Bind, c.Call.Name = declir.BindReturn, ""
		case next.Kind == declir.InstrDecl && isVar(next.Var.Value, t):
			c.Call.Name = next.Var.Name
		case next.Kind == declir.InstrAssign && isVar(next.Var.Value, t):
			c.Call.Bind, c.Call.Name = declir.BindAssign, next.Var.Name
		default:
			continue
		}
		o.stats.Folded++
		return append(body[:d+1], body[d+2:]...), true
	}
	return body, false
}

func isVar(e declir.Expr, name string) bool {
	return e.Kind == declir.ExprVar && e.Name == name
}

// trimReturn drops a final "return;" from a function without results.
func (o *optimizer) trimReturn() bool {
	body := o.fn.Body
	if len(o.fn.Results) != 0 || len(body) == 0 {
		return false
	}
	last := body[len(body)-1]
	if last.Kind != declir.InstrReturn || len(last.Return.Values) != 0 {
		return false
	}
	o.fn.Body = body[:len(body)-1]
	return true
}
