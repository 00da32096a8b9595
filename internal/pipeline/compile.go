// Package pipeline drives whole-program translation: validation, purity
// analysis, then per-function reconstruction and optimization on a bounded
// worker pool with an optional on-disk cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"unstack/internal/declir"
	"unstack/internal/declopt"
	"unstack/internal/diag"
	"unstack/internal/lowir"
	"unstack/internal/observ"
	"unstack/internal/purity"
	"unstack/internal/reconstruct"
	"unstack/internal/trace"
)

// Request configures one Compile call.
type Request struct {
	Program *lowir.Program
	// Jobs bounds the worker pool; 0 means GOMAXPROCS.
	Jobs int
	// KeepGoing records function failures as diagnostics instead of
	// aborting the whole program on the first one.
	KeepGoing      bool
	MaxDiagnostics int
	// Strict enables StrictPureDeferral in both reconstruction and the
	// optimizer.
	Strict     bool
	NoOptimize bool
	// Only restricts translation to the named functions.
	Only     []string
	Cache    *DiskCache
	Progress ProgressSink
}

// FuncResult is the outcome for one function.
type FuncResult struct {
	Name    string
	Func    *declir.Func
	Stats   declopt.Stats
	Cached  bool
	Elapsed time.Duration
}

// Result captures the translated program, diagnostics and timings.
type Result struct {
	// Funcs is in program order. With KeepGoing, failed functions leave a
	// nil slot.
	Funcs   []*FuncResult
	Purity  purity.Result
	Tables  *lowir.Tables
	Bag     *diag.Bag
	Timer   *observ.Timer
	Timings Timings
}

// Translated returns the successfully translated functions.
func (r *Result) Translated() []*declir.Func {
	out := make([]*declir.Func, 0, len(r.Funcs))
	for _, fr := range r.Funcs {
		if fr != nil {
			out = append(out, fr.Func)
		}
	}
	return out
}

// Compile translates every selected function of req.Program.
func Compile(ctx context.Context, req *Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return nil, fmt.Errorf("missing compile request")
	}
	if req.Program == nil {
		return nil, fmt.Errorf("missing program")
	}
	ctx, span := trace.StartSpan(ctx, trace.ScopeDriver, "compile")
	defer span.End("")

	maxDiags := req.MaxDiagnostics
	if maxDiags <= 0 {
		maxDiags = 100
	}
	res := &Result{Bag: diag.NewBag(maxDiags), Timer: observ.NewTimer()}
	p := req.Program

	start := time.Now()
	done := res.Timer.Track(string(StageValidate))
	err := lowir.Validate(p)
	done("")
	res.Timings.Add(StageValidate, time.Since(start))
	if err != nil {
		err = diag.Errorf(diag.BatchInvalid, diag.Location{}, "%v", err)
		emit(req.Progress, "", StageValidate, StatusError, err, 0)
		return res, err
	}

	funcs, err := selectFuncs(p, req.Only)
	if err != nil {
		return res, err
	}

	start = time.Now()
	done = res.Timer.Track(string(StagePurity))
	res.Purity = purity.Analyze(ctx, p)
	res.Tables = lowir.NewTables(p, res.Purity.Pure)
	done(strconv.Itoa(len(res.Purity.Pure)) + " pure")
	res.Timings.Add(StagePurity, time.Since(start))

	var keys keyer
	if req.Cache != nil {
		keys, err = newKeyer(p, res.Purity.Names(), req.Strict, !req.NoOptimize)
		if err != nil {
			return res, fmt.Errorf("cache key: %w", err)
		}
	}

	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}
	emitQueued(req.Progress, names)

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	// индексы уникальны для каждой горутины, мьютекс не нужен
	res.Funcs = make([]*FuncResult, len(funcs))

	w := &worker{req: req, res: res, keys: keys}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(funcs))))
	for i, f := range funcs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			fr, err := w.compile(gctx, f)
			if err != nil {
				emit(req.Progress, f.Name, StageTranslate, StatusError, err, 0)
				if req.KeepGoing && !errors.Is(err, context.Canceled) {
					res.Bag.AddError(diag.Location{Func: f.Name}, err)
					return nil
				}
				return err
			}
			res.Funcs[i] = fr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Bag.Sort()
	res.Bag.Dedup()
	span.WithExtra("funcs", strconv.Itoa(len(funcs)))
	return res, nil
}

func selectFuncs(p *lowir.Program, only []string) ([]*lowir.Func, error) {
	if len(only) == 0 {
		return p.Funcs, nil
	}
	out := make([]*lowir.Func, 0, len(only))
	for _, f := range p.Funcs {
		if slices.Contains(only, f.Name) {
			out = append(out, f)
		}
	}
	for _, name := range only {
		if p.Func(name) == nil {
			return nil, diag.Errorf(diag.UnresolvedCall, diag.Location{}, "no function named %q", name)
		}
	}
	return out, nil
}

type worker struct {
	req  *Request
	res  *Result
	keys keyer
}

func (w *worker) compile(ctx context.Context, f *lowir.Func) (*FuncResult, error) {
	ctx, span := trace.StartSpan(ctx, trace.ScopeFunc, "func:"+f.Name)
	defer span.End("")
	done := w.res.Timer.Track("func:" + f.Name)
	start := time.Now()

	var key Digest
	if w.req.Cache != nil {
		var err error
		if key, err = w.keys.key(f); err != nil {
			return nil, fmt.Errorf("cache key: %w", err)
		}
		entry, ok, err := w.req.Cache.Get(key)
		if err != nil {
			w.warn(f.Name, err)
		}
		if ok {
			elapsed := time.Since(start)
			done("cached")
			emit(w.req.Progress, f.Name, StageTranslate, StatusCached, nil, elapsed)
			return &FuncResult{Name: f.Name, Func: entry.Func, Stats: entry.Stats, Cached: true, Elapsed: elapsed}, nil
		}
	}

	emit(w.req.Progress, f.Name, StageTranslate, StatusWorking, nil, 0)
	t0 := time.Now()
	out, err := reconstruct.Translate(ctx, w.res.Tables, f, reconstruct.Options{StrictPureDeferral: w.req.Strict})
	w.res.Timings.Add(StageTranslate, time.Since(t0))
	if err != nil {
		done("error")
		return nil, err
	}

	fr := &FuncResult{Name: f.Name, Func: out}
	if !w.req.NoOptimize {
		emit(w.req.Progress, f.Name, StageOptimize, StatusWorking, nil, 0)
		t0 = time.Now()
		fr.Func, fr.Stats = declopt.OptimizeStats(ctx, w.res.Tables, out, declopt.Options{StrictPureDeferral: w.req.Strict})
		w.res.Timings.Add(StageOptimize, time.Since(t0))
	}

	if w.req.Cache != nil {
		if err := w.req.Cache.Put(key, &CacheEntry{Func: fr.Func, Stats: fr.Stats}); err != nil {
			w.warn(f.Name, err)
		}
	}
	fr.Elapsed = time.Since(start)
	done("")
	emit(w.req.Progress, f.Name, StageTranslate, StatusDone, nil, fr.Elapsed)
	return fr, nil
}

func (w *worker) warn(fn string, err error) {
	w.res.Bag.Add(diag.Diagnostic{
		Severity: diag.SevWarning,
		Code:     diag.BatchInfo,
		Message:  "translation cache: " + err.Error(),
		At:       diag.Location{Func: fn},
	})
}
