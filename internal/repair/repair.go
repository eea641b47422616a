// Package repair drives the smell repair loop over a staged projects tree.
// Deterministic rules run first at file level, then each flagged test method
// goes through a bounded completion loop gated by guards, an Ant rebuild and
// an optional JUnit run. Every outcome lands in the run event log, and every
// method leaves a unified diff under the run's patches tree.
package repair

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"desmell/internal/config"
	"desmell/internal/llm"
	"desmell/internal/project"
	"desmell/internal/rules"
	"desmell/internal/smell"
)

// ===== COLLABORATORS =====

// Completer produces one chat completion per repair attempt.
type Completer interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Compiler rebuilds a project after an edit. Test is a no-op when no test
// targets are configured.
type Compiler interface {
	Compile(ctx context.Context, projectRoot string) error
	Test(ctx context.Context, projectRoot string) error
}

// GateRunner executes one test class and fails when the class fails.
type GateRunner interface {
	RunTestClass(ctx context.Context, projectRoot, testFile string) (string, error)
}

// Rescanner re-runs the smell detector over a project after its repairs.
type Rescanner interface {
	Rescan(ctx context.Context, p project.Project) (string, error)
}

// ===== ENGINE =====

// Engine holds the collaborators and policy for one run.
type Engine struct {
	Completer Completer
	Compiler  Compiler
	// Gate is consulted only when the policy enables the validity gate.
	Gate GateRunner
	// Rescanner may be nil to skip the per-project detector rerun.
	Rescanner Rescanner

	Catalog smell.Catalog
	Policy  config.RepairConfig

	// RunDir receives the patches/ tree.
	RunDir string
	// GuidesDir holds the per-smell repair guides (<ID>.md).
	GuidesDir string

	Logger *zap.Logger
}

// Stats summarizes a run for the end-of-run report.
type Stats struct {
	Keys          int // test classes visited
	Methods       int // flagged methods iterated
	Repaired      int
	Failed        int
	Deterministic int // methods fully covered by the deterministic rules
	Skipped       int // methods whose context could not be built
	LimitHit      bool

	// Accumulated over the accepted diffs.
	Hunks   int
	Added   int
	Deleted int
}

// DS extraction fires only when the shared setup prefix has at least this
// many lines.
const dsMinCommonLines = 2

// Run processes every key of the report in project order. It stops early
// only on context cancellation or when the configured method limit is hit.
func (e *Engine) Run(ctx context.Context, projects map[string]project.Project, report *smell.Report) (Stats, error) {
	var stats Stats
	processed := 0

	for _, key := range orderKeys(report.Keys, projects) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		realName, cutSimple, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		proj, ok := projects[realName]
		if !ok {
			e.Logger.Info("skip_missing_project",
				zap.String("key", key),
				zap.String("real_name", realName))
			continue
		}
		testFile, ok := project.FindEvosuiteTestFile(proj, cutSimple)
		if !ok {
			e.Logger.Info("skip_missing_test_file",
				zap.String("key", key),
				zap.String("project", proj.Root),
				zap.String("cut_simple", cutSimple))
			continue
		}
		stats.Keys++

		methods, smellsFor, evidenceFor := smell.CollectMethodSmells(report.ByKey[key], e.Catalog)

		if e.Policy.EnableDeterministicRules {
			e.applyDeterministicRules(ctx, key, proj, testFile, methods, smellsFor)
		}

		for _, method := range methods {
			processed++
			if e.Policy.LimitTests > 0 && processed > e.Policy.LimitTests {
				e.Logger.Info("limit_reached", zap.Int("limit_tests", e.Policy.LimitTests))
				stats.LimitHit = true
				break
			}
			stats.Methods++

			remaining := nonDeterministic(smellsFor[method])
			if len(remaining) == 0 {
				stats.Deterministic++
				continue
			}

			res, sum := e.repairMethod(ctx, methodJob{
				key:       key,
				realName:  realName,
				cutSimple: cutSimple,
				project:   proj,
				testFile:  testFile,
				method:    method,
				remaining: remaining,
				evidence:  evidenceFor[method],
			})
			switch res {
			case outcomeRepaired:
				stats.Repaired++
				stats.Hunks += sum.Hunks
				stats.Added += sum.Added
				stats.Deleted += sum.Deleted
			case outcomeFailed:
				stats.Failed++
			case outcomeSkipped:
				stats.Skipped++
			}
		}

		e.rescanProject(ctx, proj)
		if stats.LimitHit {
			break
		}
	}
	return stats, nil
}

// applyDeterministicRules rewrites the test file in place for the rule-based
// smells and recompiles once when anything changed. Failures never stop the
// run; the completion loop still sees the file as it landed on disk.
func (e *Engine) applyDeterministicRules(ctx context.Context, key string, proj project.Project, testFile string, methods []string, smellsFor map[string][]smell.ID) {
	data, err := os.ReadFile(testFile)
	if err != nil {
		return
	}
	text := string(data)
	changed := false

	if anyMethodHas(smellsFor, smell.NNA) {
		newText, removed := rules.RemoveRedundantAssertNotNull(text)
		if removed > 0 {
			text = newText
			changed = true
			e.Logger.Info("deterministic_nna",
				zap.String("key", key),
				zap.String("file", testFile),
				zap.Int("removed", removed))
		}
	}

	var dsMethods []string
	for _, m := range methods {
		if containsID(smellsFor[m], smell.DS) {
			dsMethods = append(dsMethods, m)
		}
	}
	if len(dsMethods) >= 2 {
		newText, ok := rules.ExtractDuplicatedSetupToBefore(text, dsMethods, dsMinCommonLines)
		if ok {
			text = newText
			changed = true
			e.Logger.Info("deterministic_ds",
				zap.String("key", key),
				zap.String("file", testFile),
				zap.Strings("methods", dsMethods))
		}
	}

	if !changed {
		return
	}
	if err := os.WriteFile(testFile, []byte(text), 0o644); err != nil {
		return
	}
	if err := e.Compiler.Compile(ctx, proj.Root); err != nil {
		e.Logger.Info("compile_failed_after_deterministic",
			zap.String("key", key),
			zap.String("file", testFile),
			zap.Error(err))
	}
}

func (e *Engine) rescanProject(ctx context.Context, proj project.Project) {
	if e.Rescanner == nil {
		return
	}
	out, err := e.Rescanner.Rescan(ctx, proj)
	if err != nil {
		e.Logger.Info("smelly_rerun_failed",
			zap.String("project", proj.RealName),
			zap.Error(err))
		return
	}
	e.Logger.Info("smelly_rerun_ok",
		zap.String("project", proj.RealName),
		zap.String("out", out))
}

// ===== ORDERING AND SMALL HELPERS =====

// orderKeys sorts report keys by the numeric folder index of their project,
// then by key. Keys without a resolvable project sort last.
func orderKeys(keys []string, projects map[string]project.Project) []string {
	out := append([]string(nil), keys...)
	rank := func(key string) int {
		realName, _, ok := strings.Cut(key, ".")
		if !ok {
			return project.Unindexed
		}
		proj, ok := projects[realName]
		if !ok {
			return project.Unindexed
		}
		return project.Index(proj.FolderName)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func nonDeterministic(ids []smell.ID) []smell.ID {
	var out []smell.ID
	for _, id := range ids {
		if !id.Deterministic() {
			out = append(out, id)
		}
	}
	return out
}

func anyMethodHas(smellsFor map[string][]smell.ID, want smell.ID) bool {
	for _, ids := range smellsFor {
		if containsID(ids, want) {
			return true
		}
	}
	return false
}

func containsID(ids []smell.ID, want smell.ID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func idStrings(ids []smell.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func patchPath(runDir, realName, cutSimple, method string) string {
	return filepath.Join(runDir, "patches", realName, cutSimple, method+".diff")
}
