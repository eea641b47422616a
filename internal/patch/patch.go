// Package patch builds and summarizes the unified diff artifacts written for
// every successful repair.
package patch

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"
)

// Unified renders a line-based unified diff between two file texts with
// a/<relPath> and b/<relPath> headers and three context lines. Equal inputs
// produce the empty string, which callers treat as a no-op edit.
func Unified(oldText, newText, relPath string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "a/" + relPath,
		ToFile:   "b/" + relPath,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return ""
	}
	return text
}

// Summary counts what a diff touches.
type Summary struct {
	Hunks   int
	Added   int
	Deleted int
	Changed int
}

// Summarize parses a unified diff produced by Unified and counts its hunks
// and line edits. An empty diff summarizes to zero.
func Summarize(diffText string) (Summary, error) {
	if diffText == "" {
		return Summary{}, nil
	}
	fd, err := godiff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return Summary{}, fmt.Errorf("parse diff: %w", err)
	}
	stat := fd.Stat()
	return Summary{
		Hunks:   len(fd.Hunks),
		Added:   int(stat.Added),
		Deleted: int(stat.Deleted),
		Changed: int(stat.Changed),
	}, nil
}
