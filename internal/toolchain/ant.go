// Package toolchain wraps the external tools a repair run drives: Ant
// builds, JUnitCore validity runs and the Smelly detector jar. Every
// runner takes a context and enforces its own wall-clock timeout, so a
// hung javac or detector cannot wedge the run.
package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// AntCompiler runs a project's Ant build. CompileTargets rebuild the
// sources and the generated tests; TestTargets are optional extra targets
// run after a candidate edit compiles.
type AntCompiler struct {
	AntCmd         string
	CompileTargets []string
	TestTargets    []string
	TimeoutSec     int
}

// DefaultAntCompiler returns the SF110 build convention: a full clean
// rebuild of sources plus EvoSuite tests, no extra test targets.
func DefaultAntCompiler() *AntCompiler {
	return &AntCompiler{
		AntCmd:         "ant",
		CompileTargets: []string{"clean", "compile", "compile-evosuite"},
		TimeoutSec:     1800,
	}
}

// Compile runs the compile targets in projectRoot.
func (c *AntCompiler) Compile(ctx context.Context, projectRoot string) error {
	_, err := c.run(ctx, projectRoot, c.CompileTargets)
	return err
}

// Test runs the configured test targets, if any.
func (c *AntCompiler) Test(ctx context.Context, projectRoot string) error {
	if len(c.TestTargets) == 0 {
		return nil
	}
	_, err := c.run(ctx, projectRoot, c.TestTargets)
	return err
}

func (c *AntCompiler) run(ctx context.Context, projectRoot string, targets []string) (string, error) {
	runCtx := ctx
	if c.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(c.TimeoutSec)*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, c.AntCmd, targets...)
	cmd.Dir = projectRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("ant failed (targets=%v)\n%s", targets, out)
	}
	return string(out), nil
}
