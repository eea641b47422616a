package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	projectsRoot string
	smellyJSON   string
	outRoot      string
	smellsDir    string
	verbose      bool
)

// version is overridden at build time via -ldflags.
var version = "dev"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "desmell",
	Short: "desmell - LLM-assisted repair of EvoSuite test smells",
	Long: `desmell repairs detector-flagged test smells in EvoSuite-generated
JUnit 4 suites over an SF110-style projects tree.

Deterministic rules fix the mechanical smells first; every remaining flagged
test method goes through a bounded completion loop whose candidates must
survive structural guards, a full Ant rebuild and an optional JUnitCore run
before they land. Each run writes its event log, per-method patches and
post-repair detector reports under its own run directory.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the desmell version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "desmell %s\n", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Repair one projects tree from a Smelly report",
	Long: `Stages the projects tree into a fresh run directory, prepares the
shared SF110 lib directory, then walks the detector report key by key:
deterministic rules first, the per-method completion loop after, and a
per-project detector rerun once a project's methods are done.

The run directory path is printed on success.`,
	RunE: runRepair,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "YAML run configuration (required)")
	runCmd.Flags().StringVar(&projectsRoot, "projects-root", "", "SF110-style projects tree to repair (required)")
	runCmd.Flags().StringVar(&smellyJSON, "smelly-json", "", "Smelly detector report driving the run (required)")
	runCmd.Flags().StringVar(&outRoot, "out-root", "", "directory that receives the run_<timestamp> directory (required)")
	runCmd.Flags().StringVar(&smellsDir, "smells-dir", "smells", "directory of per-smell repair guides (<ID>.md)")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "mirror run events to stdout regardless of config")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("projects-root")
	runCmd.MarkFlagRequired("smelly-json")
	runCmd.MarkFlagRequired("out-root")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
