package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Jar names every staged workdir carries regardless of what build files
// reference.
const (
	junitJarName = "junit-4.11.jar"
)

var defaultEvosuiteAliases = []string{"evosuite.jar", "evosuite-standalone-runtime-1.2.0.jar"}

var evosuiteJarRE = regexp.MustCompile(`(?i)evosuite[^"'<>\s]*\.jar`)

// SharedLibSpec names the jars staged into the workdir-level lib directory.
type SharedLibSpec struct {
	EvosuiteRuntimeJar string
	JUnitJar           string
	// HamcrestJar overrides discovery under projectsRoot when set.
	HamcrestJar string
	// SharedLibDir overrides discovery of the jar source directory used to
	// hydrate each project's local lib directories.
	SharedLibDir string
}

// EvosuiteJarAliases scans a build file for the EvoSuite jar names it
// references, lowercased and deduplicated.
func EvosuiteJarAliases(buildXML string) []string {
	data, err := os.ReadFile(buildXML)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range evosuiteJarRE.FindAllString(string(data), -1) {
		n = strings.ToLower(n)
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// FindHamcrestJar looks for a hamcrest jar under searchRoot, checking
// searchRoot/lib before falling back to a full tree scan.
func FindHamcrestJar(searchRoot string) (string, bool) {
	if hits, _ := filepath.Glob(filepath.Join(searchRoot, "lib", "hamcrest*.jar")); len(hits) > 0 {
		sort.Strings(hits)
		return hits[0], true
	}
	var hits []string
	_ = filepath.WalkDir(searchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), "hamcrest") && strings.HasSuffix(d.Name(), ".jar") {
			hits = append(hits, path)
		}
		return nil
	})
	if len(hits) == 0 {
		return "", false
	}
	sort.Strings(hits)
	return hits[0], true
}

// ResolveSharedLibDir picks the jar directory used to hydrate project
// libs: the explicit config dir first, then <projectsRoot>/lib, then the
// sibling sf110_projects/lib layout.
func ResolveSharedLibDir(projectsRoot, configured string) (string, bool) {
	var candidates []string
	if configured != "" {
		candidates = append(candidates, configured)
	}
	candidates = append(candidates,
		filepath.Join(projectsRoot, "lib"),
		filepath.Join(filepath.Dir(projectsRoot), "sf110_projects", "lib"),
	)
	for _, cand := range candidates {
		if info, err := os.Stat(cand); err == nil && info.IsDir() {
			return cand, true
		}
	}
	return "", false
}

// CopySharedJarsIntoProjects copies every jar in sharedDir into each
// project's lib and test-lib, skipping jars already present. Ant compile
// targets in SF110 builds only reference those local directories.
func CopySharedJarsIntoProjects(sharedDir string, projects map[string]Project, logger *zap.Logger) error {
	jars, err := filepath.Glob(filepath.Join(sharedDir, "*.jar"))
	if err != nil {
		return err
	}
	sort.Strings(jars)
	if len(jars) == 0 {
		logger.Info("shared_lib_dir_empty", zap.String("path", sharedDir))
		return nil
	}
	for _, p := range sortedProjects(projects) {
		copied := 0
		for _, destDir := range []string{filepath.Join(p.Root, "lib"), filepath.Join(p.Root, "test-lib")} {
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return err
			}
			for _, jar := range jars {
				dest := filepath.Join(destDir, filepath.Base(jar))
				if _, err := os.Stat(dest); err == nil {
					continue
				}
				if err := copyFile(jar, dest, 0o644); err != nil {
					return err
				}
				copied++
			}
		}
		logger.Info("project_shared_lib_copied",
			zap.String("project", p.RealName),
			zap.String("shared_dir", sharedDir),
			zap.Int("jars", len(jars)),
			zap.Int("copied", copied))
	}
	return nil
}

// PrepareSharedLibs stages the workdir-level lib directory: the EvoSuite
// runtime under every alias the staged build files reference, the JUnit
// jar, a hamcrest jar for JUnitCore, and per-project lib hydration from a
// shared jar directory when one exists. Everything is best effort; staging
// problems are logged and never abort the run.
func PrepareSharedLibs(workdir, projectsRoot string, projects map[string]Project, spec SharedLibSpec, logger *zap.Logger) {
	sharedLib := filepath.Join(workdir, "lib")

	if err := stageEvosuiteAndJUnit(sharedLib, projects, spec); err != nil {
		logger.Info("shared_lib_prepare_failed", zap.Error(err), zap.String("path", sharedLib))
	} else {
		logger.Info("shared_lib_ready",
			zap.String("path", sharedLib),
			zap.Strings("evosuite_aliases", collectEvosuiteAliases(projects)))
	}

	hamcrest := spec.HamcrestJar
	if hamcrest == "" {
		hamcrest, _ = FindHamcrestJar(projectsRoot)
	}
	if hamcrest != "" {
		dest := filepath.Join(sharedLib, filepath.Base(hamcrest))
		if err := copyFile(hamcrest, dest, 0o644); err != nil {
			logger.Info("shared_lib_hamcrest_failed", zap.Error(err), zap.String("src", hamcrest))
		} else {
			logger.Info("shared_lib_hamcrest_ready", zap.String("path", dest))
		}
	} else {
		logger.Info("shared_lib_hamcrest_missing", zap.String("search_root", projectsRoot))
	}

	if sharedDir, ok := ResolveSharedLibDir(projectsRoot, spec.SharedLibDir); ok {
		if err := CopySharedJarsIntoProjects(sharedDir, projects, logger); err != nil {
			logger.Info("shared_lib_dir_copy_failed", zap.String("path", sharedDir), zap.Error(err))
		} else {
			logger.Info("shared_lib_dir_used", zap.String("path", sharedDir))
		}
	} else {
		logger.Info("shared_lib_dir_missing", zap.String("search_root", projectsRoot))
	}
}

func stageEvosuiteAndJUnit(sharedLib string, projects map[string]Project, spec SharedLibSpec) error {
	if err := os.MkdirAll(sharedLib, 0o755); err != nil {
		return err
	}
	for _, alias := range collectEvosuiteAliases(projects) {
		if err := copyFile(spec.EvosuiteRuntimeJar, filepath.Join(sharedLib, alias), 0o644); err != nil {
			return err
		}
	}
	return copyFile(spec.JUnitJar, filepath.Join(sharedLib, junitJarName), 0o644)
}

// collectEvosuiteAliases merges the default alias set with every alias any
// project's build.xml references.
func collectEvosuiteAliases(projects map[string]Project) []string {
	seen := map[string]bool{}
	for _, a := range defaultEvosuiteAliases {
		seen[a] = true
	}
	for _, p := range projects {
		for _, a := range EvosuiteJarAliases(filepath.Join(p.Root, "build.xml")) {
			seen[a] = true
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func sortedProjects(projects map[string]Project) []Project {
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RealName < out[j].RealName })
	return out
}
