package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"desmell/internal/repair"
)

func TestRunDirName(t *testing.T) {
	ts := time.Date(2025, 3, 9, 14, 5, 9, 0, time.UTC)
	if got := runDirName(ts); got != "run_20250309_140509" {
		t.Fatalf("expected run_20250309_140509, got %s", got)
	}
}

func TestRenderSummaryCounts(t *testing.T) {
	out := renderSummary(repair.Stats{
		Keys:          3,
		Methods:       12,
		Repaired:      7,
		Failed:        2,
		Deterministic: 3,
		Hunks:         9,
		Added:         31,
		Deleted:       4,
	})
	for _, want := range []string{"test classes", "methods visited", "12", "repaired", "7", "9 (+31/-4)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "skipped") {
		t.Fatalf("skipped row should be omitted at zero:\n%s", out)
	}
}

func TestRenderSummaryLimitNote(t *testing.T) {
	out := renderSummary(repair.Stats{LimitHit: true})
	if !strings.Contains(out, "limit reached") {
		t.Fatalf("expected limit note, got:\n%s", out)
	}
	quiet := renderSummary(repair.Stats{})
	if strings.Contains(quiet, "limit reached") {
		t.Fatalf("unexpected limit note:\n%s", quiet)
	}
}

func TestRunCommandRequiresFlags(t *testing.T) {
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"run"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error when required flags are missing")
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "desmell ") {
		t.Fatalf("unexpected version output: %q", buf.String())
	}
}
