package main

import (
	"path/filepath"
	"strings"
	"testing"
)

// onceConfig writes a sources file for url and a config that keeps all
// state under dir.
func onceConfig(t *testing.T, dir, url string) string {
	t.Helper()
	sources := writeFile(t, dir, "sources.json", `{"GitHub": "`+url+`"}`)
	return writeFile(t, dir, "statuswatch.yaml", `
sources_file: `+sources+`
timeout: 5s
state:
  path: `+filepath.Join(dir, "state.json")+`
log:
  format: text
`)
}

func TestRun_Once(t *testing.T) {
	f := newFeed(t, "inc-1")
	dir := t.TempDir()
	configPath := onceConfig(t, dir, f.URL)

	out, logs, err := execute(t, "run", "--once", "-c", configPath)
	if err != nil {
		t.Fatalf("run --once error = %v\nlogs: %s", err, logs)
	}
	want := "[2024-03-01 10:15:00] Product: GitHub - Incident inc-1 | Status: Investigating | ID: inc-1\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if !strings.Contains(logs, "cycle complete") {
		t.Errorf("logs = %q, want cycle summary", logs)
	}

	// unchanged feed: nothing to report
	out, _, err = execute(t, "run", "--once", "-c", configPath)
	if err != nil {
		t.Fatalf("second run --once error = %v", err)
	}
	if out != "" {
		t.Errorf("output = %q, want nothing for an unchanged feed", out)
	}

	f.set("inc-2")
	out, _, err = execute(t, "run", "--once", "-c", configPath)
	if err != nil {
		t.Fatalf("third run --once error = %v", err)
	}
	if !strings.Contains(out, "ID: inc-2") {
		t.Errorf("output = %q, want inc-2 line", out)
	}

	state, _, err := execute(t, "state", "-c", configPath)
	if err != nil {
		t.Fatalf("state command error = %v", err)
	}
	if !strings.Contains(state, "SOURCE") || !strings.Contains(state, "GitHub  inc-2") {
		t.Errorf("state output = %q, want GitHub inc-2", state)
	}
}

func TestRun_OnceCorruptState(t *testing.T) {
	f := newFeed(t, "inc-1")
	dir := t.TempDir()
	configPath := onceConfig(t, dir, f.URL)
	writeFile(t, dir, "state.json", "not json")

	out, _, err := execute(t, "run", "--once", "-c", configPath)
	if err == nil {
		t.Fatal("run --once expected error for corrupt state, got nil")
	}
	if !strings.Contains(err.Error(), "poll cycle failed") {
		t.Errorf("error = %v, want poll cycle failure", err)
	}
	if out != "" {
		t.Errorf("output = %q, want nothing", out)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "statuswatch.yaml", "state: {driver: redis}\n")

	_, _, err := execute(t, "run", "--once", "-c", configPath)
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("run error = %v, want config error", err)
	}
}

func TestState_Empty(t *testing.T) {
	configPath := writeFile(t, t.TempDir(), "statuswatch.yaml", "state: {driver: memory}\n")

	out, _, err := execute(t, "state", "-c", configPath)
	if err != nil {
		t.Fatalf("state command error = %v", err)
	}
	if !strings.Contains(out, "No incidents recorded yet.") {
		t.Errorf("output = %q, want empty message", out)
	}
}
