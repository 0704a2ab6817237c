package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestReportTextOutput(t *testing.T) {
	tracePath := writeTraceFile(t)
	cfgPath := writeConfigFile(t)

	var out, errOut bytes.Buffer
	code := runReport([]string{"--config", cfgPath, tracePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("runReport()=%d, stderr=%q", code, errOut.String())
	}

	text := out.String()
	for _, want := range []string{
		"Trace Report",
		"Buffer bytes",
		"Spans by bytes covered",
		"root/pascal_string/length",
		"root/pascal_string",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report output missing %q:\n%s", want, text)
		}
	}
}

func TestReportJSONOutput(t *testing.T) {
	tracePath := writeTraceFile(t)
	cfgPath := writeConfigFile(t)

	var out, errOut bytes.Buffer
	code := runReport([]string{"--config", cfgPath, "--format", "json", tracePath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("runReport()=%d, stderr=%q", code, errOut.String())
	}

	var doc reportDocument
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("report json does not parse: %v", err)
	}
	if doc.SchemaVersion != reportSchemaVersion {
		t.Fatalf("schema_version=%q, want %q", doc.SchemaVersion, reportSchemaVersion)
	}
	if doc.Summary.ByteCount != 16 || doc.Summary.CoveredBytes != 16 {
		t.Fatalf("summary=%+v, want full 16-byte coverage", doc.Summary)
	}
	if doc.Summary.CoverageRatio != 1.0 {
		t.Fatalf("coverage_ratio=%v, want 1.0", doc.Summary.CoverageRatio)
	}
	if doc.Summary.ReadCount != 2 || doc.Summary.SpanCount != 3 {
		t.Fatalf("counts=(%d reads, %d spans), want (2, 3)", doc.Summary.ReadCount, doc.Summary.SpanCount)
	}
	if len(doc.Spans) != 3 {
		t.Fatalf("spans=%d, want 3 covered spans", len(doc.Spans))
	}
	// Widest coverage sorts first.
	if doc.Spans[0].Bytes < doc.Spans[len(doc.Spans)-1].Bytes {
		t.Fatalf("spans not sorted by bytes covered: %+v", doc.Spans)
	}
}

func TestReportRejectsBadFlags(t *testing.T) {
	tracePath := writeTraceFile(t)

	var out, errOut bytes.Buffer
	if code := runReport([]string{"--format", "xml", tracePath}, &out, &errOut); code != 2 {
		t.Fatalf("bad format: runReport()=%d, want 2", code)
	}
	if code := runReport([]string{"--top", "0", tracePath}, &out, &errOut); code != 2 {
		t.Fatalf("bad top: runReport()=%d, want 2", code)
	}
	if code := runReport([]string{"--id", "abc", tracePath}, &out, &errOut); code != 2 {
		t.Fatalf("ambiguous source: runReport()=%d, want 2", code)
	}
}
