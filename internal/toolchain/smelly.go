package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"desmell/internal/project"
)

// SmellyRunner invokes the Smelly detector jar. Flag names follow the
// jar's own CLI, misspellings included.
type SmellyRunner struct {
	JavaCmd            string
	SmellyJar          string
	EvosuiteRuntimeJar string
	JUnitJar           string
	Detectors          int
	Mode               int
	Suffix             string
	ResumeAnalysis     bool
	TimeoutSec         int
}

// Run executes the detector over sourcePath/testPath and returns the path
// of the JSON report it wrote.
func (r *SmellyRunner) Run(ctx context.Context, sourcePath, testPath, outputDir, outputName string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	safeName := strings.TrimSuffix(filepath.Base(outputName), ".json")
	outPath := filepath.Join(outputDir, safeName+".json")

	runCtx := ctx
	if r.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(r.TimeoutSec)*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, r.JavaCmd,
		"-jar", r.SmellyJar,
		"--detectors", strconv.Itoa(r.Detectors),
		"--evosuitePath", r.EvosuiteRuntimeJar,
		"--junitPath", r.JUnitJar,
		"--mode", strconv.Itoa(r.Mode),
		"--outputFilePath", outputDir,
		"--outputFileName", safeName,
		"--sourcePath", sourcePath,
		"--testPath", testPath,
		"-s", r.Suffix,
		"--resumeAnalisis", strconv.FormatBool(r.ResumeAnalysis),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("smelly failed\n%s", out)
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("smelly did not produce output: %s", outPath)
	}
	return outPath, nil
}

// ProjectRescanner re-runs the detector over a single repaired project so
// the after-repair report can be compared with the original one. The
// project tree is copied into an isolated folder first; the detector
// scans whole roots, and the other projects must not leak into the
// report.
type ProjectRescanner struct {
	Runner *SmellyRunner
	RunDir string
}

// Rescan stages the project under <runDir>/tmp_smelly and runs the
// detector, returning the report path.
func (r *ProjectRescanner) Rescan(ctx context.Context, p project.Project) (string, error) {
	tmpParent := filepath.Join(r.RunDir, "tmp_smelly")
	if err := project.EnsureEmptyDir(tmpParent); err != nil {
		return "", err
	}
	tmpRoot := filepath.Join(tmpParent, p.FolderName)
	if err := project.CopyTree(ctx, p.Root, tmpRoot); err != nil {
		return "", err
	}
	return r.Runner.Run(ctx, tmpParent, tmpParent,
		filepath.Join(r.RunDir, "reports"), "smelly_after_"+p.RealName)
}
