package repair

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"desmell/internal/evidence"
	"desmell/internal/javasrc"
	"desmell/internal/patch"
	"desmell/internal/project"
	"desmell/internal/prompt"
	"desmell/internal/rules"
	"desmell/internal/smell"
)

// completionPreviewLen caps the completion excerpt carried by log events.
const completionPreviewLen = 2000

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeRepaired
	outcomeFailed
)

// methodJob is one flagged test method with everything known about it.
type methodJob struct {
	key       string
	realName  string
	cutSimple string
	project   project.Project
	testFile  string
	method    string
	remaining []smell.ID
	evidence  map[smell.ID]map[string]any
}

// repairMethod runs the attempt loop for one method. The file is restored to
// its pre-attempt text on every failed attempt, so the next attempt always
// splices into the same original. The last diff that reached the write stage
// is saved under patches/ whether or not the method succeeded; the returned
// summary counts the accepted diff's edits and is zero otherwise.
func (e *Engine) repairMethod(ctx context.Context, job methodJob) (outcome, patch.Summary) {
	cutFQCN := project.ResolveCUTFQCN(job.testFile, job.cutSimple)
	cutSrc := ""
	if cutFQCN != "" {
		cutSrc, _ = project.FindCUTSourceFile(job.project, cutFQCN)
	}

	subset := evidenceSubset(job.evidence, job.remaining)
	extraMethods := javasrc.InferCUTCallsFromEvidence(evidenceAsAny(subset))

	cctx, err := javasrc.BuildContext(javasrc.ContextParams{
		TestFile:            job.testFile,
		TestClassName:       strings.TrimSuffix(filepath.Base(job.testFile), ".java"),
		TestMethodName:      job.method,
		CUTFQCN:             cutFQCN,
		CUTSourceFile:       cutSrc,
		Mode:                e.Policy.ContextMode(),
		MaxChars:            e.Policy.CUTContextMaxChars,
		TransitiveDepth:     1,
		ExtraMethods:        extraMethods,
		SignatureWithFields: e.Policy.CUTSignatureIncludeFields,
		SignatureMaxMethods: e.Policy.CUTSignatureMaxMethods,
	})
	if err != nil {
		e.Logger.Info("skip_missing_test_method",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Error(err))
		return outcomeSkipped, patch.Summary{}
	}

	relPath := project.RelPath(job.project.Root, job.testFile)
	guides := prompt.LoadGuides(e.GuidesDir, job.remaining)

	originalData, err := os.ReadFile(job.testFile)
	if err != nil {
		e.Logger.Info("skip_missing_test_method",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Error(err))
		return outcomeSkipped, patch.Summary{}
	}
	originalText := string(originalData)

	promptLimits := prompt.Limits{
		MaxSmellGuidesChars:  e.Policy.MaxSmellGuidesChars,
		MaxEvidenceChars:     e.Policy.MaxEvidenceChars,
		MaxTestMethodChars:   e.Policy.MaxTestMethodChars,
		MaxCUTContextChars:   e.Policy.MaxCUTContextChars,
		MaxCompileErrorChars: e.Policy.MaxCompileErrorChars,
	}
	evidenceLimits := evidence.Limits{
		MaxListItems:   e.Policy.EvidenceMaxListItems,
		MaxGroupTests:  e.Policy.EvidenceMaxGroupTests,
		MaxPrefixStmts: e.Policy.EvidenceMaxPrefixStmts,
		MaxStrLen:      e.Policy.EvidenceMaxStrLen,
	}

	lastError := ""
	lastDiff := ""
	success := false

	for attempt := 1; attempt <= e.Policy.Attempts(); attempt++ {
		messages := prompt.BuildMessages(prompt.Inputs{
			Smells:                 job.remaining,
			Guides:                 guides,
			Evidence:               subset,
			AllowReflectionAsserts: e.Policy.AllowReflectionAsserts,
			FileRelPath:            relPath,
			Context:                cctx,
			EvidenceLimits:         evidenceLimits,
			Limits:                 promptLimits,
			LastError:              lastError,
		})
		e.Logger.Info("llm_request",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Int("attempt", attempt),
			zap.Strings("smells", idStrings(job.remaining)))

		raw, err := e.Completer.Chat(ctx, messages)
		if err != nil {
			lastError = err.Error()
			e.Logger.Info("llm_request_failed",
				zap.String("key", job.key),
				zap.String("method", job.method),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}
		e.Logger.Info("llm_response",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Int("attempt", attempt),
			zap.String("completion_preview", preview(raw)))

		block := javasrc.ExtractRefactoredMethod(raw, job.method)
		if block == "" {
			lastError = fmt.Sprintf("LLM output did not contain a full method declaration for %s.", job.method)
			continue
		}
		e.Logger.Info("llm_response_extracted",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Int("attempt", attempt),
			zap.String("completion_preview", preview(block)))

		newText, ok := javasrc.ReplaceTestMethod(originalText, job.method, block)
		if !ok {
			lastError = fmt.Sprintf("Failed to replace method %s in source.", job.method)
			continue
		}
		diffText := patch.Unified(originalText, newText, relPath)
		if strings.TrimSpace(diffText) == "" {
			lastError = "LLM output produced no changes."
			continue
		}
		lastDiff = diffText
		if err := os.WriteFile(job.testFile, []byte(newText), 0o644); err != nil {
			lastError = fmt.Sprintf("write repaired source: %v", err)
			continue
		}

		// Guard what actually landed on disk.
		if written, readErr := os.ReadFile(job.testFile); readErr == nil {
			newText = string(written)
		}
		guardErr := rules.EnsureNoDisallowedMarkers(newText)
		if guardErr == nil {
			guardErr = rules.EnsureTestMethodPresent(newText, job.method)
		}
		if guardErr != nil {
			lastError = fmt.Sprintf("Guard failed: %v", guardErr)
			rollback(job.testFile, originalData)
			continue
		}

		if err := e.Compiler.Compile(ctx, job.project.Root); err != nil {
			lastError = err.Error()
			rollback(job.testFile, originalData)
			continue
		}
		if err := e.Compiler.Test(ctx, job.project.Root); err != nil {
			lastError = err.Error()
			rollback(job.testFile, originalData)
			continue
		}

		if e.Policy.EnableValidityGate {
			if _, err := e.Gate.RunTestClass(ctx, job.project.Root, job.testFile); err != nil {
				lastError = fmt.Sprintf("Validity gate failed: %v", err)
				e.Logger.Info("validity_gate_failed",
					zap.String("key", job.key),
					zap.String("method", job.method),
					zap.Error(err))
				rollback(job.testFile, originalData)
				continue
			}
			e.Logger.Info("validity_gate_ok",
				zap.String("key", job.key),
				zap.String("method", job.method))
		}

		success = true
		break
	}

	e.writePatch(job, lastDiff)

	fields := []zap.Field{
		zap.String("key", job.key),
		zap.String("method", job.method),
		zap.Bool("success", success),
		zap.Strings("smells", idStrings(job.remaining)),
	}
	var sum patch.Summary
	if success {
		if s, err := patch.Summarize(lastDiff); err == nil {
			sum = s
		}
		fields = append(fields,
			zap.Int("hunks", sum.Hunks),
			zap.Int("added", sum.Added),
			zap.Int("deleted", sum.Deleted))
	}
	e.Logger.Info("method_done", fields...)

	if !success {
		return outcomeFailed, patch.Summary{}
	}
	return outcomeRepaired, sum
}

// writePatch records the method's last staged diff, empty when no attempt
// got that far.
func (e *Engine) writePatch(job methodJob, diffText string) {
	path := patchPath(e.RunDir, job.realName, job.cutSimple, job.method)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.Logger.Info("patch_write_failed",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Error(err))
		return
	}
	if err := os.WriteFile(path, []byte(diffText), 0o644); err != nil {
		e.Logger.Info("patch_write_failed",
			zap.String("key", job.key),
			zap.String("method", job.method),
			zap.Error(err))
	}
}

func rollback(testFile string, original []byte) {
	_ = os.WriteFile(testFile, original, 0o644)
}

func preview(s string) string {
	if len(s) > completionPreviewLen {
		return s[:completionPreviewLen]
	}
	return s
}

func evidenceSubset(all map[smell.ID]map[string]any, remaining []smell.ID) map[smell.ID]map[string]any {
	out := make(map[smell.ID]map[string]any)
	for _, id := range remaining {
		if ev, ok := all[id]; ok && len(ev) > 0 {
			out[id] = ev
		}
	}
	return out
}

func evidenceAsAny(subset map[smell.ID]map[string]any) map[string]any {
	out := make(map[string]any, len(subset))
	for id, ev := range subset {
		out[string(id)] = ev
	}
	return out
}
