// Package config loads the YAML runtime configuration for a repair run.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"desmell/internal/llm"
)

// Config holds all desmell configuration, one section per subsystem.
type Config struct {
	// Completion endpoint and sampling settings.
	LLM llm.Config `yaml:"llm"`

	// Smelly detector jar and its CLI knobs.
	Smelly SmellyConfig `yaml:"smelly"`

	// Ant build and JUnit tooling.
	Ant AntConfig `yaml:"ant"`

	// Repair loop behavior.
	Repair RepairConfig `yaml:"repair"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SmellyConfig configures the test smell detector jar.
type SmellyConfig struct {
	Jar                string `yaml:"jar"`
	EvosuiteRuntimeJar string `yaml:"evosuite_runtime_jar"`
	JUnitJar           string `yaml:"junit_jar"`
	Detectors          int    `yaml:"detectors"`
	Mode               int    `yaml:"mode"`
	// Key spelled the way the jar spells its flag.
	Suffix     string `yaml:"sufix"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// AntConfig configures the Ant build and the JUnit validity gate runner.
type AntConfig struct {
	AntCmd         string   `yaml:"ant_cmd"`
	JavaCmd        string   `yaml:"java_cmd"`
	TargetsCompile []string `yaml:"targets_compile"`
	TargetsTest    []string `yaml:"targets_test"`
	HamcrestJar    string   `yaml:"hamcrest_jar"`
	SharedLibDir   string   `yaml:"shared_lib_dir"`
	TimeoutSec     int      `yaml:"timeout_sec"`
}

// RepairConfig configures the per-method repair loop.
type RepairConfig struct {
	MaxLLMAttempts           int    `yaml:"max_llm_attempts"`
	AllowReflectionAsserts   bool   `yaml:"allow_reflection_asserts"`
	EnableDeterministicRules bool   `yaml:"enable_deterministic_rules"`
	LimitTests               int    `yaml:"limit_tests"`

	// Class-under-test context extraction.
	CUTContextMode            string `yaml:"cut_context_mode"` // signature or full
	CUTContextMaxChars        int    `yaml:"cut_context_max_chars"`
	CUTSignatureIncludeFields bool   `yaml:"cut_signature_include_fields"`
	CUTSignatureMaxMethods    int    `yaml:"cut_signature_max_methods"`

	// JUnit run of the repaired class after a successful compile.
	EnableValidityGate     bool `yaml:"enable_validity_gate"`
	ValidityGateTimeoutSec int  `yaml:"validity_gate_timeout_sec"`

	// Prompt section caps, in characters.
	MaxSmellGuidesChars  int `yaml:"max_smell_guides_chars"`
	MaxEvidenceChars     int `yaml:"max_evidence_chars"`
	MaxTestMethodChars   int `yaml:"max_test_method_chars"`
	MaxCUTContextChars   int `yaml:"max_cut_context_chars"`
	MaxCompileErrorChars int `yaml:"max_compile_error_chars"`

	// Evidence compaction bounds.
	EvidenceMaxListItems   int `yaml:"evidence_max_list_items"`
	EvidenceMaxGroupTests  int `yaml:"evidence_max_group_tests"`
	EvidenceMaxPrefixStmts int `yaml:"evidence_max_prefix_stmts"`
	EvidenceMaxStrLen      int `yaml:"evidence_max_str_len"`
}

// LoggingConfig configures the run event log.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Attempts returns the LLM attempt budget, never below one.
func (r RepairConfig) Attempts() int {
	if r.MaxLLMAttempts < 1 {
		return 1
	}
	return r.MaxLLMAttempts
}

// ContextMode returns the normalized cut_context_mode value.
func (r RepairConfig) ContextMode() string {
	return strings.ToLower(strings.TrimSpace(r.CUTContextMode))
}

// DefaultConfig returns the default configuration. Endpoint credentials and
// jar paths have no defaults and must come from the config file.
func DefaultConfig() *Config {
	return &Config{
		LLM: llm.DefaultConfig(),

		Smelly: SmellyConfig{
			Detectors:  0,
			Mode:       0,
			Suffix:     " ",
			TimeoutSec: 1800,
		},

		Ant: AntConfig{
			AntCmd:         "ant",
			JavaCmd:        "java",
			TargetsCompile: []string{"clean", "compile", "compile-evosuite"},
			TargetsTest:    []string{},
			TimeoutSec:     1800,
		},

		Repair: RepairConfig{
			MaxLLMAttempts:           3,
			AllowReflectionAsserts:   false,
			EnableDeterministicRules: true,
			LimitTests:               0,

			CUTContextMode:            "signature",
			CUTContextMaxChars:        12000,
			CUTSignatureIncludeFields: true,
			CUTSignatureMaxMethods:    80,

			EnableValidityGate:     true,
			ValidityGateTimeoutSec: 600,

			MaxSmellGuidesChars:  12000,
			MaxEvidenceChars:     8000,
			MaxTestMethodChars:   8000,
			MaxCUTContextChars:   12000,
			MaxCompileErrorChars: 4000,

			EvidenceMaxListItems:   6,
			EvidenceMaxGroupTests:  10,
			EvidenceMaxPrefixStmts: 2,
			EvidenceMaxStrLen:      240,
		},

		Logging: LoggingConfig{
			Verbose: true,
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Validate reports the required keys the file did not provide.
func (c *Config) Validate() error {
	var missing []string
	need := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	need("llm.base_url", c.LLM.BaseURL)
	need("llm.api_key", c.LLM.APIKey)
	need("llm.model", c.LLM.Model)
	need("smelly.jar", c.Smelly.Jar)
	need("smelly.evosuite_runtime_jar", c.Smelly.EvosuiteRuntimeJar)
	need("smelly.junit_jar", c.Smelly.JUnitJar)
	if len(missing) > 0 {
		return fmt.Errorf("config missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("DESMELL_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
}
