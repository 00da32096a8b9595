package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"unstack/internal/declir"
	"unstack/internal/diag"
	"unstack/internal/lowir"
	"unstack/internal/pipeline"
	"unstack/internal/testkit"
)

// broken adds a function that pops from an empty stack.
func broken(p *lowir.Program) *lowir.Program {
	p.Funcs = append(p.Funcs, &lowir.Func{Name: "bad", Results: []lowir.Type{lowir.I32}, Body: []lowir.Instr{
		lowir.Binary(lowir.BinaryAdd, lowir.I32), lowir.Return(),
	}})
	return p
}

func dumps(funcs []*pipeline.FuncResult) map[string]string {
	out := make(map[string]string)
	for _, fr := range funcs {
		if fr != nil {
			out[fr.Name] = declir.DumpBody(fr.Func.Body)
		}
	}
	return out
}

func TestCompile_AllSamples(t *testing.T) {
	for _, s := range testkit.Samples() {
		res, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: s.Program, Jobs: 2})
		if err != nil {
			t.Fatalf("%s: %v", s.Name, err)
		}
		if len(res.Funcs) != len(s.Program.Funcs) {
			t.Fatalf("%s: got %d results, want %d", s.Name, len(res.Funcs), len(s.Program.Funcs))
		}
		for i, fr := range res.Funcs {
			if fr == nil || fr.Name != s.Program.Funcs[i].Name {
				t.Fatalf("%s: result %d out of order: %+v", s.Name, i, fr)
			}
		}
		if res.Bag.HasErrors() {
			t.Errorf("%s: unexpected diagnostics %v", s.Name, res.Bag.Items())
		}
	}
}

func TestCompile_FailFast(t *testing.T) {
	p := broken(testkit.PureCallProgram())
	_, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p})
	if !errors.Is(err, diag.ErrStackDiscipline) {
		t.Fatalf("err = %v, want stack discipline error", err)
	}
}

func TestCompile_KeepGoing(t *testing.T) {
	p := broken(testkit.PureCallProgram())
	res, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, KeepGoing: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Funcs[2] != nil {
		t.Errorf("failed function has a result: %+v", res.Funcs[2])
	}
	if got := len(res.Translated()); got != 2 {
		t.Errorf("translated %d functions, want 2", got)
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.StackUnderflow || items[0].At.Func != "bad" {
		t.Fatalf("diagnostics = %v", items)
	}
	if !errors.Is(res.Bag.Err(), diag.ErrStackDiscipline) {
		t.Errorf("bag error = %v", res.Bag.Err())
	}
}

func TestCompile_InvalidProgram(t *testing.T) {
	p := &lowir.Program{Funcs: []*lowir.Func{{Name: "f"}, {Name: "f"}}}
	_, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p})
	var de *diag.Error
	if !errors.As(err, &de) || de.Code != diag.BatchInvalid {
		t.Fatalf("err = %v", err)
	}
}

func TestCompile_Only(t *testing.T) {
	p := testkit.PureCallProgram()
	res, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, Only: []string{"check"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Funcs) != 1 || res.Funcs[0].Name != "check" {
		t.Fatalf("got %+v", res.Funcs)
	}
	if !res.Tables.IsPure("sq") {
		t.Errorf("purity must still cover the whole program")
	}
	if _, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, Only: []string{"nope"}}); err == nil {
		t.Fatal("expected an error for an unknown function")
	}
}

func TestCompile_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipeline.Compile(ctx, &pipeline.Request{Program: testkit.PureCallProgram(), KeepGoing: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

type collector struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (c *collector) OnEvent(e pipeline.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) statuses(fn string) []pipeline.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []pipeline.Status
	for _, e := range c.events {
		if e.Func == fn {
			out = append(out, e.Status)
		}
	}
	return out
}

func TestCompile_ProgressAndCache(t *testing.T) {
	cache, err := pipeline.NewDiskCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := testkit.PureCallProgram()

	first := &collector{}
	res1, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, Cache: cache, Progress: first})
	if err != nil {
		t.Fatal(err)
	}
	want := []pipeline.Status{pipeline.StatusQueued, pipeline.StatusWorking, pipeline.StatusWorking, pipeline.StatusDone}
	if diff := cmp.Diff(want, first.statuses("check")); diff != "" {
		t.Errorf("first run events (-want +got):\n%s", diff)
	}

	second := &collector{}
	res2, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, Cache: cache, Progress: second})
	if err != nil {
		t.Fatal(err)
	}
	for _, fr := range res2.Funcs {
		if !fr.Cached {
			t.Errorf("%s was not served from the cache", fr.Name)
		}
	}
	if diff := cmp.Diff([]pipeline.Status{pipeline.StatusQueued, pipeline.StatusCached}, second.statuses("check")); diff != "" {
		t.Errorf("second run events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(dumps(res1.Funcs), dumps(res2.Funcs)); diff != "" {
		t.Errorf("cached output differs (-fresh +cached):\n%s", diff)
	}

	strict, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, Cache: cache, Strict: true})
	if err != nil {
		t.Fatal(err)
	}
	if strict.Funcs[0].Cached {
		t.Errorf("options must be part of the cache key")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	res3, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: p, Cache: cache})
	if err != nil {
		t.Fatal(err)
	}
	if res3.Funcs[0].Cached {
		t.Errorf("entry survived DropAll")
	}
}

func TestCompile_Timings(t *testing.T) {
	res, err := pipeline.Compile(context.Background(), &pipeline.Request{Program: testkit.PureCallProgram()})
	if err != nil {
		t.Fatal(err)
	}
	for _, stage := range []pipeline.Stage{pipeline.StageValidate, pipeline.StagePurity, pipeline.StageTranslate, pipeline.StageOptimize} {
		if !res.Timings.Has(stage) {
			t.Errorf("no timing for %s", stage)
		}
	}
	if n := len(res.Timer.Report().Phases); n != 4 {
		t.Errorf("got %d timer phases, want 4", n)
	}
}
