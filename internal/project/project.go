// Package project discovers SF110-style project folders and resolves the
// files a repair run needs from them: generated test classes, CUT sources
// and the shared jar layout Ant builds expect.
package project

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Project is one SF110-style project folder, e.g. "1_tullibee" with real
// name "tullibee".
type Project struct {
	FolderName string
	RealName   string
	Root       string
}

// SrcMain returns the project's main source root.
func (p Project) SrcMain() string { return filepath.Join(p.Root, "src", "main", "java") }

// EvosuiteTests returns the project's generated-test root.
func (p Project) EvosuiteTests() string { return filepath.Join(p.Root, "evosuite-tests") }

var (
	realNameRE = regexp.MustCompile(`^\d+_(.+)$`)
	indexRE    = regexp.MustCompile(`^(\d+)_`)
)

// Unindexed sorts folders without a numeric prefix after every real one.
const Unindexed = 1_000_000_000

// Discover maps real project names to the projects found directly under
// projectsRoot. Folders that do not match the <index>_<name> shape are
// skipped.
func Discover(projectsRoot string) (map[string]Project, error) {
	entries, err := os.ReadDir(projectsRoot)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Project)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := realNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		out[m[1]] = Project{
			FolderName: e.Name(),
			RealName:   m[1],
			Root:       filepath.Join(projectsRoot, e.Name()),
		}
	}
	return out, nil
}

// Index extracts the numeric ordering prefix from a folder name.
func Index(folderName string) int {
	m := indexRE.FindStringSubmatch(folderName)
	if m == nil {
		return Unindexed
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Unindexed
	}
	return n
}

// FindEvosuiteTestFile returns the <CutSimple>_ESTest.java anywhere under
// the project's evosuite-tests tree. With several matches the
// lexicographically first wins.
func FindEvosuiteTestFile(p Project, cutSimple string) (string, bool) {
	want := cutSimple + "_ESTest.java"
	var matches []string
	_ = filepath.WalkDir(p.EvosuiteTests(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == want {
			matches = append(matches, path)
		}
		return nil
	})
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// ReadJavaPackageAndImports scans a Java file's header for its package
// declaration and imports, stopping at the class declaration.
func ReadJavaPackageAndImports(javaFile string) (string, []string, error) {
	f, err := os.Open(javaFile)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	var pkg string
	var imports []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "package ") {
			pkg = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "package "), ";"))
		} else if strings.HasPrefix(line, "import ") {
			imports = append(imports, strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "import "), ";")))
		}
		if strings.HasPrefix(line, "public class") {
			break
		}
	}
	return pkg, imports, sc.Err()
}

// ResolveCUTFQCN derives the CUT's fully qualified name from the test
// file's imports, falling back to the test's own package. Returns "" when
// neither yields one.
func ResolveCUTFQCN(testFile, cutSimple string) string {
	pkg, imports, err := ReadJavaPackageAndImports(testFile)
	if err != nil {
		return ""
	}
	for _, imp := range imports {
		if strings.HasSuffix(imp, "."+cutSimple) {
			return imp
		}
	}
	if pkg != "" {
		return pkg + "." + cutSimple
	}
	return ""
}

// FindCUTSourceFile locates the CUT's source under src/main/java. The
// direct package path is tried first, then a tree scan that prefers a file
// whose package declaration matches.
func FindCUTSourceFile(p Project, cutFQCN string) (string, bool) {
	if cutFQCN == "" {
		return "", false
	}
	parts := strings.Split(cutFQCN, ".")
	direct := filepath.Join(append([]string{p.SrcMain()}, parts...)...) + ".java"
	if _, err := os.Stat(direct); err == nil {
		return direct, true
	}

	want := parts[len(parts)-1] + ".java"
	var candidates []string
	_ = filepath.WalkDir(p.SrcMain(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && d.Name() == want {
			candidates = append(candidates, path)
		}
		return nil
	})
	if len(candidates) == 0 {
		return "", false
	}
	wantPkg := strings.Join(parts[:len(parts)-1], ".")
	for _, c := range candidates {
		pkg, _, err := ReadJavaPackageAndImports(c)
		if err == nil && pkg == wantPkg {
			return c, true
		}
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// RelPath returns file's path relative to root with forward slashes, the
// form used in diff headers and patch filenames.
func RelPath(root, file string) string {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

// TestClassFQCN returns the fully qualified class name of a test file,
// package-qualified when the file declares one.
func TestClassFQCN(testFile string) string {
	pkg, _, _ := ReadJavaPackageAndImports(testFile)
	stem := strings.TrimSuffix(filepath.Base(testFile), ".java")
	if pkg != "" {
		return pkg + "." + stem
	}
	return stem
}
