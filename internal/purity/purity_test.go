package purity_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/lowir"
	"unstack/internal/purity"
)

func fn(name string, body ...lowir.Instr) *lowir.Func {
	return &lowir.Func{Name: name, Body: body}
}

func TestAnalyze_PropagatesImpurityThroughCallers(t *testing.T) {
	p := &lowir.Program{
		Globals: []lowir.Global{{Name: "g", Type: lowir.I32, Mutable: true}},
		Imports: []lowir.Import{{Name: "host"}},
		Funcs: []*lowir.Func{
			fn("leaf", lowir.ConstI32(1), lowir.Drop()),
			fn("readsGlobal", lowir.GlobalGet("g", lowir.I32), lowir.Drop()),
			fn("callsLeaf", lowir.Call("leaf")),
			fn("writer", lowir.ConstI32(1), lowir.GlobalSet("g", lowir.I32)),
			fn("a", lowir.Call("b")),
			fn("b", lowir.Call("c")),
			fn("c", lowir.Call("writer")),
			fn("usesHost", lowir.Call("host")),
			fn("nested", lowir.Instr{Kind: lowir.InstrLoop, Loop: lowir.LoopInstr{Label: "L", Body: []lowir.Instr{
				lowir.ConstI32(0), lowir.ConstI32(0), lowir.Store(lowir.MemAccess{Type: lowir.I32}),
			}}}),
			fn("recursive", lowir.Call("recursive")),
			fn("cycleWithWriter", lowir.Call("cycleWithWriter"), lowir.Call("writer")),
			fn("indirectKnown", lowir.Instr{Kind: lowir.InstrCallIndirect, CallIndirect: lowir.CallIndirectInstr{Targets: []string{"leaf"}}}),
			fn("indirectUnknown", lowir.Instr{Kind: lowir.InstrCallIndirect}),
		},
	}

	res := purity.Analyze(context.Background(), p)

	want := []string{"callsLeaf", "indirectKnown", "leaf", "readsGlobal", "recursive"}
	if diff := cmp.Diff(want, res.Names()); diff != "" {
		t.Errorf("pure set mismatch (-want +got):\n%s", diff)
	}
	for name, reason := range map[string]string{
		"writer":          "writes global g",
		"a":               "calls impure b",
		"c":               "calls impure writer",
		"usesHost":        "calls import host",
		"nested":          "writes memory",
		"indirectUnknown": "indirect call with unknown targets",
	} {
		if got := res.Reasons[name]; got != reason {
			t.Errorf("reason for %s = %q, want %q", name, got, reason)
		}
	}
}

func TestDetect_UnknownCalleeIsImpure(t *testing.T) {
	known := func(string) (bool, bool) { return false, false }
	v := purity.Detect(fn("f", lowir.Call("ghost")), known)
	if v.MayBePure {
		t.Fatal("call to an unknown function must be impure")
	}
}

func TestAnalyze_EmptyProgram(t *testing.T) {
	res := purity.Analyze(context.Background(), &lowir.Program{})
	if len(res.Pure) != 0 {
		t.Fatalf("expected empty pure set, got %v", res.Pure)
	}
}
