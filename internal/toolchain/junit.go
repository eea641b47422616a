package toolchain

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"desmell/internal/project"
)

// JUnitRunner executes a single test class through org.junit.runner.
// JUnitCore against the project's SF110 classpath. A non-zero exit means
// at least one test failed or the class did not load.
type JUnitRunner struct {
	JavaCmd    string
	TimeoutSec int
}

// DefaultJUnitRunner returns the validity gate defaults.
func DefaultJUnitRunner() *JUnitRunner {
	return &JUnitRunner{JavaCmd: "java", TimeoutSec: 600}
}

// RunTestClass runs the test class held in testFile and returns the
// combined runner output.
func (r *JUnitRunner) RunTestClass(ctx context.Context, projectRoot, testFile string) (string, error) {
	fqcn := project.TestClassFQCN(testFile)
	runCtx := ctx
	if r.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(r.TimeoutSec)*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, r.JavaCmd, "-cp", SF110Classpath(projectRoot), "org.junit.runner.JUnitCore", fqcn)
	cmd.Dir = projectRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("JUnitCore failed for %s\n%s", fqcn, out)
	}
	return string(out), nil
}

// ListJars returns every jar file under dir, sorted.
func ListJars(dir string) []string {
	var jars []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jar") {
			jars = append(jars, path)
		}
		return nil
	})
	sort.Strings(jars)
	return jars
}

// SF110Classpath assembles a project's run classpath: compiled classes,
// compiled EvoSuite tests, then the jars under lib/, test-lib/ and the
// workdir-level lib next to the project, absolute and deduplicated in
// order.
func SF110Classpath(projectRoot string) string {
	var entries []string
	for _, dir := range []string{
		filepath.Join(projectRoot, "build", "classes"),
		filepath.Join(projectRoot, "build", "evosuite"),
	} {
		if _, err := os.Stat(dir); err == nil {
			entries = append(entries, dir)
		}
	}
	entries = append(entries, ListJars(filepath.Join(projectRoot, "lib"))...)
	entries = append(entries, ListJars(filepath.Join(projectRoot, "test-lib"))...)
	entries = append(entries, ListJars(filepath.Join(filepath.Dir(projectRoot), "lib"))...)

	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		abs, err := filepath.Abs(e)
		if err != nil {
			abs = e
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	return strings.Join(out, string(os.PathListSeparator))
}
