package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"vidflow/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("vidflowd", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "vidflowd:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("vidflowd", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestCheckLinesDowngradesOptionalFailures(t *testing.T) {
	results := []preflight.Result{
		{Name: "AppSync", Detail: "timed out"},
		{Name: "RabbitMQ", Detail: "unreachable"},
		{Name: "Data directory", Passed: true, Detail: "ok"},
	}
	lines := checkLines(results, map[string]bool{"RabbitMQ": true}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] timed out") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[WARN] unreachable") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] ok") {
		t.Fatalf("unexpected third line %q", lines[2])
	}
}

func TestDisplayStatus(t *testing.T) {
	cases := map[string]string{
		"SUCCEEDED": "Succeeded",
		"TIMED_OUT": "Timed Out",
		"":          "-",
	}
	for in, want := range cases {
		if got := displayStatus(in); got != want {
			t.Fatalf("displayStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatCountsSortsKeys(t *testing.T) {
	got := formatCounts(map[string]int{"SUCCEEDED": 2, "FAILED": 1})
	if got != "Failed 1, Succeeded 2" {
		t.Fatalf("unexpected counts %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}
