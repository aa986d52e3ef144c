package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"graphir/internal/compcache"
)

const graphA = `
[graph]
name = "a"
outputs = ["y"]

[[node]]
id = "x"
op = "parameter"
shape = "f32[4]"

[[node]]
id = "y"
op = "exp"
operands = ["x"]
`

const graphBroken = `
[graph]
name = "broken"
outputs = ["y"]

[[node]]
id = "y"
op = "exp"
operands = ["missing"]
`

func writeGraph(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileOrderAndErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeGraph(t, dir, "a.toml", graphA)
	bad := writeGraph(t, dir, "broken.toml", graphBroken)

	sink := &SliceSink{}
	results, err := Compile(context.Background(), &Request{
		Files:    []string{bad, good},
		Jobs:     2,
		Progress: sink,
	})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("error = %v, want the broken file's error", err)
	}
	if len(results) != 2 || results[0].File != bad || results[1].File != good {
		t.Fatalf("results out of order: %+v", results)
	}
	if results[0].Err == nil || results[1].Err != nil {
		t.Fatalf("per-file errors: %v / %v", results[0].Err, results[1].Err)
	}
	comp := results[1].Computation
	if comp == nil || comp.RootShape().String() != "f32[4]" {
		t.Fatalf("computation = %v", comp)
	}
	for _, s := range Stages {
		if !results[1].Timings.Has(s) {
			t.Fatalf("no timing for stage %s", s)
		}
	}

	var queued, failed int
	for _, ev := range sink.Events() {
		switch ev.Status {
		case StatusQueued:
			queued++
		case StatusError:
			failed++
			if ev.File != bad || ev.Stage != StageParse {
				t.Fatalf("unexpected error event %+v", ev)
			}
		}
	}
	if queued != 2 || failed != 1 {
		t.Fatalf("queued=%d failed=%d", queued, failed)
	}
}

func TestCompileUsesCache(t *testing.T) {
	dir := t.TempDir()
	good := writeGraph(t, dir, "a.toml", graphA)
	cache, err := compcache.OpenDir(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	req := &Request{Files: []string{good}, Cache: cache}

	first, err := Compile(context.Background(), req)
	if err != nil || first[0].Cached {
		t.Fatalf("first compile: cached=%v err=%v", first[0].Cached, err)
	}
	second, err := Compile(context.Background(), req)
	if err != nil || !second[0].Cached {
		t.Fatalf("second compile: cached=%v err=%v", second[0].Cached, err)
	}
	if second[0].Hash != first[0].Hash || second[0].Computation.String() != first[0].Computation.String() {
		t.Fatalf("cached computation differs")
	}
	if second[0].Timings.Has(StageLower) {
		t.Fatalf("cached result still lowered")
	}
}

func TestCacheKeepsMetadataApart(t *testing.T) {
	dir := t.TempDir()
	scoped := func(scope string) string {
		return graphA + "scope = \"" + scope + "\"\n"
	}
	file := writeGraph(t, dir, "a.toml", scoped("layer1"))
	cache, err := compcache.OpenDir(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name       string
		scope      string
		noMetadata bool
		cached     bool
		want       string
	}{
		{"with metadata", "layer1", false, false, `op_name="layer1"`},
		{"without metadata", "layer1", true, false, ""},
		{"without metadata again", "layer1", true, true, ""},
		{"with metadata again", "layer1", false, true, `op_name="layer1"`},
		{"renamed scope", "renamed", false, false, `op_name="renamed"`},
		{"renamed scope again", "renamed", false, true, `op_name="renamed"`},
	}
	for _, step := range steps {
		writeGraph(t, dir, "a.toml", scoped(step.scope))
		results, err := Compile(context.Background(), &Request{
			Files:      []string{file},
			Cache:      cache,
			NoMetadata: step.noMetadata,
		})
		if err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		res := results[0]
		if res.Cached != step.cached {
			t.Fatalf("%s: cached = %v, want %v", step.name, res.Cached, step.cached)
		}
		text := res.Computation.String()
		if step.want == "" {
			if strings.Contains(text, "metadata=") {
				t.Fatalf("%s: metadata in output:\n%s", step.name, text)
			}
			continue
		}
		if !strings.Contains(text, step.want) || strings.Count(text, "op_name=") != 1 {
			t.Fatalf("%s: want exactly one %s:\n%s", step.name, step.want, text)
		}
	}
}

func TestCompileRejectsEmptyRequest(t *testing.T) {
	if _, err := Compile(context.Background(), &Request{}); err == nil {
		t.Fatalf("empty request accepted")
	}
	if _, err := Compile(context.Background(), nil); err == nil {
		t.Fatalf("nil request accepted")
	}
}
