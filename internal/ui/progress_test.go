package ui

import (
	"strings"
	"testing"

	"graphir/internal/pipeline"
)

func TestApplyEventTracksFinalStates(t *testing.T) {
	events := make(chan pipeline.Event)
	m := NewProgressModel("lowering", []string{"a.toml", "b.toml"}, events).(*progressModel)

	steps := []pipeline.Event{
		{File: "a.toml", Stage: pipeline.StageParse, Status: pipeline.StatusWorking},
		{File: "a.toml", Stage: pipeline.StageParse, Status: pipeline.StatusDone},
		{File: "b.toml", Stage: pipeline.StageTrace, Status: pipeline.StatusError},
		{File: "unknown.toml", Stage: pipeline.StageParse, Status: pipeline.StatusWorking},
	}
	for _, ev := range steps {
		m.applyEvent(ev)
	}
	if m.items[0].status != "parsing" || m.items[0].final {
		t.Fatalf("a.toml = %+v", m.items[0])
	}
	if m.items[1].status != "error" || !m.items[1].final {
		t.Fatalf("b.toml = %+v", m.items[1])
	}
	// events after a final state are ignored
	m.applyEvent(pipeline.Event{File: "b.toml", Stage: pipeline.StageLower, Status: pipeline.StatusWorking})
	if m.items[1].status != "error" {
		t.Fatalf("final state overwritten: %+v", m.items[1])
	}

	m.applyEvent(pipeline.Event{File: "a.toml", Stage: pipeline.StageEmit, Status: pipeline.StatusCached})
	if got := m.percent(); got != 1.0 {
		t.Fatalf("percent() = %v, want 1", got)
	}
	view := m.View()
	if !strings.Contains(view, "0 lowered, 1 cached, 1 failed") {
		t.Fatalf("View() missing summary:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"graphs/very_long_name.toml", 10, "graphs/..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
