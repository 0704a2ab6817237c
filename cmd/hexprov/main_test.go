package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hexprov/hexprov/internal/trace"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	if code := run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("run(frobnicate)=%d, want 2", code)
	}
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Fatalf("run()=%d, want 2", code)
	}
}

func TestRunVersion(t *testing.T) {
	if code := run([]string{"version"}); code != 0 {
		t.Fatalf("run(version)=%d, want 0", code)
	}
}

// writeTraceFile persists a small length-prefixed-string trace and returns
// its path.
func writeTraceFile(t *testing.T) string {
	t.Helper()
	tr := trace.New([]byte("\x0c\x00\x00\x00hello, world"), 0)
	tr.Root.Append(trace.NewSpan("pascal_string",
		trace.NewSpan("length", trace.NewRead(4)),
		trace.NewRead(12),
	))

	var buf bytes.Buffer
	if err := trace.Encode(&buf, tr); err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "trace.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write trace file: %v", err)
	}
	return path
}

// writeConfigFile persists a config pointing storage at a temp sqlite file.
func writeConfigFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := "storage:\n  driver: sqlite\n  path: " + filepath.Join(dir, "archive.db") + "\n"
	path := filepath.Join(dir, "hexprov.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestViewRejectsAmbiguousSource(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := runView([]string{"--id", "abc", "some.json"}, &out, &errOut); code != 2 {
		t.Fatalf("runView()=%d, want 2", code)
	}
	if code := runView(nil, &out, &errOut); code != 2 {
		t.Fatalf("runView() without source=%d, want 2", code)
	}
}

func TestViewReportsMissingTrace(t *testing.T) {
	var out, errOut bytes.Buffer
	code := runView([]string{"--config", writeConfigFile(t), filepath.Join(t.TempDir(), "absent.json")}, &out, &errOut)
	if code != 1 {
		t.Fatalf("runView()=%d, want 1", code)
	}
	if errOut.Len() == 0 {
		t.Fatal("missing trace not reported")
	}
}
