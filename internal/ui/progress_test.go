package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"unstack/internal/pipeline"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"main", 10, "main"},
		{"very_long_function_name", 10, "very_lo..."},
		{"функция", 5, "фу..."},
		{"漢字漢字", 5, "漢..."},
		{"abcdef", 2, "ab"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestProgressModel_AppliesEvents(t *testing.T) {
	events := make(chan pipeline.Event)
	m := NewProgressModel("translating prog.mp", []string{"main", "sq"}, events).(*progressModel)

	steps := []pipeline.Event{
		{Func: "main", Stage: pipeline.StageTranslate, Status: pipeline.StatusWorking},
		{Func: "sq", Stage: pipeline.StageTranslate, Status: pipeline.StatusCached},
		{Func: "main", Stage: pipeline.StageOptimize, Status: pipeline.StatusWorking},
		{Func: "unknown", Stage: pipeline.StageTranslate, Status: pipeline.StatusDone},
	}
	for _, ev := range steps {
		m.Update(eventMsg(ev))
	}
	if m.items[0].status != "optimizing" || m.items[1].status != "cached" {
		t.Fatalf("statuses = %q, %q", m.items[0].status, m.items[1].status)
	}
	if got, want := m.percent(), (0.7+1)/2; got != want {
		t.Errorf("percent = %v, want %v", got, want)
	}

	m.Update(eventMsg{Stage: pipeline.StageValidate, Status: pipeline.StatusError})
	if !strings.Contains(m.View(), "validate failed") {
		t.Errorf("view does not report the failed stage:\n%s", m.View())
	}

	_, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("done must quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("done returned %T, want tea.QuitMsg", cmd())
	}
	if !strings.Contains(m.View(), "done: translating prog.mp") {
		t.Errorf("final view:\n%s", m.View())
	}
}
