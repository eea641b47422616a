// Package prompt assembles the chat messages sent to the completion
// endpoint for one repair attempt.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"desmell/internal/evidence"
	"desmell/internal/javasrc"
	"desmell/internal/llm"
	"desmell/internal/smell"
)

// Limits caps each prompt section, in characters.
type Limits struct {
	MaxSmellGuidesChars  int
	MaxEvidenceChars     int
	MaxTestMethodChars   int
	MaxCUTContextChars   int
	MaxCompileErrorChars int
}

// DefaultLimits returns the section caps used when the config leaves them
// unset.
func DefaultLimits() Limits {
	return Limits{
		MaxSmellGuidesChars:  12000,
		MaxEvidenceChars:     8000,
		MaxTestMethodChars:   8000,
		MaxCUTContextChars:   12000,
		MaxCompileErrorChars: 4000,
	}
}

// Inputs carries everything one attempt's messages are built from.
type Inputs struct {
	Smells                 []smell.ID
	Guides                 map[smell.ID]string
	Evidence               map[smell.ID]map[string]any
	AllowReflectionAsserts bool
	FileRelPath            string
	Context                javasrc.Context
	EvidenceLimits         evidence.Limits
	Limits                 Limits
	LastError              string
}

const systemPromptBase = `You are an expert Java test engineer. You repair named test smells in EvoSuite-generated JUnit 4 test methods.

Rules:
- Rewrite ONLY the target test method. Never touch imports, fields or other methods.
- Keep the method name and signature exactly as given.
- Keep edits minimal and deterministic. Do not reorder unrelated statements.
- Never add @Ignore or org.junit.Ignore.
- Only call methods and constructors shown in the provided context.`

// SystemPrompt returns the system message content.
func SystemPrompt(allowReflectionAsserts bool) string {
	if allowReflectionAsserts {
		return systemPromptBase + "\n- Reflection-based assertions on private state are allowed when no public accessor exists."
	}
	return systemPromptBase + "\n- Do not use reflection to read or assert on private state."
}

// BuildMessages renders the system and user messages for one attempt. On
// retries the previous failure text rides along as corrective feedback.
func BuildMessages(in Inputs) []llm.Message {
	var sb strings.Builder

	sb.WriteString("## Target\n")
	sb.WriteString(fmt.Sprintf("File: %s\n", in.FileRelPath))
	sb.WriteString(fmt.Sprintf("Test class: %s\n", in.Context.TestClassName))
	sb.WriteString(fmt.Sprintf("Test method: %s\n", in.Context.TestMethodName))
	if in.Context.CUTFQCN != "" {
		sb.WriteString(fmt.Sprintf("Class under test: %s\n", in.Context.CUTFQCN))
	}
	sb.WriteString("\n")

	sb.WriteString("## Smells to repair\n")
	for _, id := range in.Smells {
		sb.WriteString(fmt.Sprintf("- %s\n", id))
	}
	sb.WriteString("\n")

	if guides := renderGuides(in.Smells, in.Guides, in.Limits.MaxSmellGuidesChars); guides != "" {
		sb.WriteString(strings.TrimRight(guides, "\n"))
		sb.WriteString("\n\n")
	}

	if ev := renderEvidence(in.Smells, in.Evidence, in.EvidenceLimits, in.Limits.MaxEvidenceChars); ev != "" {
		sb.WriteString(strings.TrimRight(ev, "\n"))
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Current test method\n")
	sb.WriteString("```java\n")
	sb.WriteString(truncate(in.Context.TestMethodCode, in.Limits.MaxTestMethodChars))
	sb.WriteString("\n```\n\n")

	if in.Context.CUTCode != "" {
		sb.WriteString("## Class under test context\n")
		sb.WriteString("```java\n")
		sb.WriteString(truncate(in.Context.CUTCode, in.Limits.MaxCUTContextChars))
		sb.WriteString("\n```\n\n")
	}

	if in.LastError != "" {
		sb.WriteString("## Previous attempt failed\n")
		sb.WriteString(truncate(in.LastError, in.Limits.MaxCompileErrorChars))
		sb.WriteString("\nFix the cause of this failure in the rewritten method.\n\n")
	}

	sb.WriteString("## Output format\n")
	sb.WriteString("Respond with exactly one fenced code block:\n")
	sb.WriteString("```java\n<the complete rewritten test method>\n```\n")
	sb.WriteString(fmt.Sprintf("The block must contain the full declaration of %s, from its annotations through its closing brace. ", in.Context.TestMethodName))
	sb.WriteString("Do not output the class declaration, imports, other methods, explanations or a diff.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt(in.AllowReflectionAsserts)},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// LoadGuides reads per-smell repair guides (<ID>.md) from dir. Missing or
// unreadable guides are simply absent from the result; the builder renders
// a placeholder for them.
func LoadGuides(dir string, ids []smell.ID) map[smell.ID]string {
	guides := make(map[smell.ID]string, len(ids))
	for _, id := range ids {
		b, err := os.ReadFile(filepath.Join(dir, string(id)+".md"))
		if err != nil {
			continue
		}
		guides[id] = string(b)
	}
	return guides
}

func renderGuides(ids []smell.ID, guides map[smell.ID]string, maxChars int) string {
	if len(ids) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Repair guides\n")
	for _, id := range ids {
		text, ok := guides[id]
		if !ok || strings.TrimSpace(text) == "" {
			text = "(guide missing)"
		}
		sb.WriteString(fmt.Sprintf("### %s\n%s\n", id, strings.TrimSpace(text)))
	}
	return truncate(sb.String(), maxChars)
}

func renderEvidence(ids []smell.ID, ev map[smell.ID]map[string]any, lim evidence.Limits, maxChars int) string {
	var parts []string
	for _, id := range ids {
		raw, ok := ev[id]
		if !ok || len(raw) == 0 {
			continue
		}
		parts = append(parts, evidence.ForPrompt(id, raw, lim).Markdown())
	}
	if len(parts) == 0 {
		return ""
	}
	return truncate(strings.Join(parts, "\n"), maxChars)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return strings.TrimRight(s[:max], " \t\n\r") + "\n... [truncated]"
}
