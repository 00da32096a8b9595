package observ_test

import (
	"strings"
	"sync"
	"testing"

	"unstack/internal/observ"
)

func TestTimer_ConcurrentPhases(t *testing.T) {
	timer := observ.NewTimer()
	done := timer.Track("compile")
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Track("func")("ok")
		}()
	}
	wg.Wait()
	done("")

	report := timer.Report()
	if len(report.Phases) != 9 {
		t.Fatalf("got %d phases, want 9", len(report.Phases))
	}
	if report.Phases[0].Name != "compile" {
		t.Errorf("first phase = %q", report.Phases[0].Name)
	}
	if report.TotalMS < report.Phases[0].DurationMS {
		t.Errorf("total %.3f shorter than outer phase %.3f", report.TotalMS, report.Phases[0].DurationMS)
	}
	if s := timer.Summary(); !strings.Contains(s, "// ok") || !strings.Contains(s, "total") {
		t.Errorf("summary:\n%s", s)
	}
}

func TestTimer_NilAndOutOfRange(t *testing.T) {
	var nilTimer *observ.Timer
	nilTimer.End(nilTimer.Begin("x"), "")
	if r := nilTimer.Report(); len(r.Phases) != 0 {
		t.Fatalf("nil timer reported %v", r)
	}
	timer := observ.NewTimer()
	timer.End(5, "ignored")
	if r := timer.Report(); r.TotalMS != 0 || len(r.Phases) != 0 {
		t.Fatalf("empty timer reported %v", r)
	}
}
