// Package liveness computes last-write tables over low-level instruction
// lists. A table answers whether a reference to a name taken at position i
// still denotes the current value when it is consumed later in the same
// list.
package liveness

import (
	"unstack/internal/lowir"
)

const (
	// GlobalsName is written by every instruction that may change some
	// global: global sets and calls to functions outside the pure set.
	GlobalsName = "<globals>"
	// MemoryName is written by every instruction that may change memory or
	// globals: stores, global sets and calls outside the pure set.
	MemoryName = "<mem>"
)

// LastWrite maps a name to the highest top-level index of an instruction
// that writes it, directly or inside a nested body.
type LastWrite map[string]int

// Analyze builds the table for body, tracking variable writes only.
func Analyze(body []lowir.Instr) LastWrite {
	return analyze(body, nil)
}

// AnalyzeEffects builds the table for body and additionally records
// GlobalsName and MemoryName. isPure classifies direct call targets; a nil
// isPure treats every call as impure.
func AnalyzeEffects(body []lowir.Instr, isPure func(name string) bool) LastWrite {
	if isPure == nil {
		isPure = func(string) bool { return false }
	}
	return analyze(body, isPure)
}

func analyze(body []lowir.Instr, isPure func(string) bool) LastWrite {
	lw := make(LastWrite)
	for i := range body {
		record(lw, &body[i], i, isPure)
	}
	return lw
}

func record(lw LastWrite, ins *lowir.Instr, i int, isPure func(string) bool) {
	effects := isPure != nil
	switch ins.Kind {
	case lowir.InstrParamSet, lowir.InstrLocalSet:
		lw[ins.Var.Name] = i
	case lowir.InstrGlobalSet:
		lw[ins.Var.Name] = i
		if effects {
			lw[GlobalsName] = i
			lw[MemoryName] = i
		}
	case lowir.InstrStore:
		if effects {
			lw[MemoryName] = i
		}
	case lowir.InstrCall:
		if effects && !isPure(ins.Call.Func) {
			lw[GlobalsName] = i
			lw[MemoryName] = i
		}
	case lowir.InstrCallIndirect:
		if effects && !allPure(ins.CallIndirect.Targets, isPure) {
			lw[GlobalsName] = i
			lw[MemoryName] = i
		}
	case lowir.InstrIf, lowir.InstrLoop, lowir.InstrSwitch:
		for _, child := range ins.Children() {
			for j := range child {
				record(lw, &child[j], i, isPure)
			}
		}
	case lowir.InstrConst, lowir.InstrParamGet, lowir.InstrLocalGet, lowir.InstrGlobalGet,
		lowir.InstrLoad, lowir.InstrUnary, lowir.InstrBinary, lowir.InstrJump, lowir.InstrJumpIf,
		lowir.InstrDrop, lowir.InstrReturn, lowir.InstrUnreachable, lowir.InstrComment:
	}
}

func allPure(targets []string, isPure func(string) bool) bool {
	if targets == nil {
		return false
	}
	for _, t := range targets {
		if !isPure(t) {
			return false
		}
	}
	return true
}

// Index returns the last write position of name. The boolean is false when
// the name is never written in the analyzed list.
func (lw LastWrite) Index(name string) (int, bool) {
	i, ok := lw[name]
	return i, ok
}

// Valid reports whether a reference to name taken at position i is still
// valid when consumed at any later position, i.e. no instruction at index
// i or above writes it.
func (lw LastWrite) Valid(name string, i int) bool {
	last, ok := lw[name]
	return !ok || last < i
}

// AnyInvalid reports whether some name in names is written at or after i.
func (lw LastWrite) AnyInvalid(names []string, i int) bool {
	for _, n := range names {
		if !lw.Valid(n, i) {
			return true
		}
	}
	return false
}
