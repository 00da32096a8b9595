package diag_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"unstack/internal/diag"
)

func TestErrorUnwrapsToClassSentinel(t *testing.T) {
	tests := []struct {
		code diag.Code
		want error
	}{
		{diag.StackUnderflow, diag.ErrStackDiscipline},
		{diag.StackTypeMismatch, diag.ErrStackDiscipline},
		{diag.UnresolvedCall, diag.ErrUnresolved},
		{diag.ArityMismatch, diag.ErrArity},
		{diag.DispatchShape, diag.ErrDispatchShape},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", diag.Errorf(tt.code, diag.Location{Func: "f", Path: []int{2, 0}}, "boom"))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s does not unwrap to %v", tt.code, tt.want)
		}
		var de *diag.Error
		if !errors.As(err, &de) || de.Code != tt.code {
			t.Errorf("errors.As failed for %s", tt.code)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := diag.Errorf(diag.UnresolvedCall, diag.Location{Func: "main", Path: []int{3, 1}}, "call to %q", "nope")
	want := `main@3.1: unresolved call target (REF2001): call to "nope"`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestBag_SortDedupAndLimit(t *testing.T) {
	b := diag.NewBag(4)
	b.Add(diag.Diagnostic{Severity: diag.SevError, Code: diag.ArityMismatch, At: diag.Location{Func: "b"}})
	b.Add(diag.Diagnostic{Severity: diag.SevWarning, Code: diag.StackLeftover, At: diag.Location{Func: "a", Path: []int{1}}})
	b.AddError(diag.Location{Func: "a"}, errors.New("plain failure"))
	b.Add(diag.Diagnostic{Severity: diag.SevError, Code: diag.ArityMismatch, At: diag.Location{Func: "b"}})
	if b.Add(diag.Diagnostic{Code: diag.DispatchShape}) {
		t.Error("bag accepted a diagnostic beyond its limit")
	}

	b.Dedup()
	b.Sort()
	items := b.Items()
	if len(items) != 3 {
		t.Fatalf("got %d items after dedup, want 3", len(items))
	}
	var order []string
	for _, d := range items {
		order = append(order, d.At.String()+":"+d.Code.ID())
	}
	if got := strings.Join(order, " "); got != "a:BAT5001 a@1:STK1003 b:ARI3001" {
		t.Errorf("order = %s", got)
	}
	if !b.HasErrors() {
		t.Error("expected errors")
	}
	if err := b.Err(); !errors.Is(err, diag.ErrArity) {
		t.Errorf("joined error %v does not contain the arity class", err)
	}
}

func TestSeverityNames(t *testing.T) {
	if got := diag.SevWarning.String(); got != "warning" {
		t.Errorf("SevWarning = %q", got)
	}
	if got := diag.Severity(9).String(); got != "severity(9)" {
		t.Errorf("Severity(9) = %q", got)
	}
	if _, err := diag.Severity(9).MarshalText(); err == nil {
		t.Error("expected an error for an unknown severity")
	}
}
