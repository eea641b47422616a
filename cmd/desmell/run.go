package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"desmell/internal/config"
	"desmell/internal/llm"
	"desmell/internal/project"
	"desmell/internal/repair"
	"desmell/internal/runlog"
	"desmell/internal/smell"
	"desmell/internal/toolchain"
)

// runDirName returns the timestamped directory name a run lives under.
func runDirName(now time.Time) string {
	return now.Format("run_20060102_150405")
}

func runRepair(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runDir := filepath.Join(outRoot, runDirName(time.Now()))
	if err := project.EnsureEmptyDir(runDir); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	logger, closeLog, err := runlog.New(filepath.Join(runDir, "logs", "pipeline.jsonl"), verbose || cfg.Logging.Verbose)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer closeLog()

	logger.Info("run_start",
		zap.String("config", configPath),
		zap.String("projects_root", projectsRoot),
		zap.String("smelly_json", smellyJSON),
		zap.String("run_id", uuid.NewString()))

	workdir := filepath.Join(runDir, "workdir")
	if err := project.CopyTree(ctx, projectsRoot, workdir); err != nil {
		return fmt.Errorf("failed to stage projects into workdir: %w", err)
	}
	logger.Info("workdir_ready", zap.String("workdir", workdir))

	projects, err := project.Discover(workdir)
	if err != nil {
		return fmt.Errorf("failed to discover projects: %w", err)
	}
	report, err := smell.LoadReport(smellyJSON)
	if err != nil {
		return err
	}

	project.PrepareSharedLibs(workdir, projectsRoot, projects, project.SharedLibSpec{
		EvosuiteRuntimeJar: cfg.Smelly.EvosuiteRuntimeJar,
		JUnitJar:           cfg.Smelly.JUnitJar,
		HamcrestJar:        cfg.Ant.HamcrestJar,
		SharedLibDir:       cfg.Ant.SharedLibDir,
	}, logger)

	engine := &repair.Engine{
		Completer: llm.NewClient(cfg.LLM),
		Compiler: &toolchain.AntCompiler{
			AntCmd:         cfg.Ant.AntCmd,
			CompileTargets: cfg.Ant.TargetsCompile,
			TestTargets:    cfg.Ant.TargetsTest,
			TimeoutSec:     cfg.Ant.TimeoutSec,
		},
		Gate: &toolchain.JUnitRunner{
			JavaCmd:    cfg.Ant.JavaCmd,
			TimeoutSec: cfg.Repair.ValidityGateTimeoutSec,
		},
		Rescanner: &toolchain.ProjectRescanner{
			Runner: &toolchain.SmellyRunner{
				JavaCmd:            cfg.Ant.JavaCmd,
				SmellyJar:          cfg.Smelly.Jar,
				EvosuiteRuntimeJar: cfg.Smelly.EvosuiteRuntimeJar,
				JUnitJar:           cfg.Smelly.JUnitJar,
				Detectors:          cfg.Smelly.Detectors,
				Mode:               cfg.Smelly.Mode,
				Suffix:             cfg.Smelly.Suffix,
				TimeoutSec:         cfg.Smelly.TimeoutSec,
			},
			RunDir: runDir,
		},
		Catalog:   smell.DefaultCatalog(),
		Policy:    cfg.Repair,
		RunDir:    runDir,
		GuidesDir: smellsDir,
		Logger:    logger,
	}

	stats, runErr := engine.Run(ctx, projects, report)
	logger.Info("run_end")

	fmt.Print(renderSummary(stats))
	fmt.Println(runDir)
	return runErr
}
