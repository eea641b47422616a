// Package rules holds the deterministic, non-LLM repairs and the structural
// guards applied to every candidate edit. The two transforms are whole-file
// text rewrites with narrow preconditions; when a precondition fails they
// return the input unchanged rather than guessing.
package rules

import (
	"regexp"
	"sort"
	"strings"
)

var (
	assertNotNullRE = regexp.MustCompile(`\bassertNotNull\s*\(\s*(?P<var>[A-Za-z_]\w*)\s*\)\s*;`)
	declNewRE       = regexp.MustCompile(`^\s*(?:final\s+)?(?P<type>[A-Za-z_][\w\.<>,\[\]]*)\s+(?P<var>[A-Za-z_]\w*)\s*=\s*new\s+.+;\s*$`)
	declRE          = regexp.MustCompile(`^\s*(?:final\s+)?(?P<type>[A-Za-z_][\w\.<>,\[\]]*)\s+(?P<var>[A-Za-z_]\w*)\s*=\s*(?P<rhs>.+);\s*$`)

	methodBlockRE = regexp.MustCompile(
		`(?ms)^\s*(?:@Test[^\n]*\n\s*)*(?:public\s+)?void\s+(?P<name>test\w+)\s*\([^)]*\)\s*(?:throws[^\{]+)?\{(?P<body>.*?)^\s*\}`)
)

// redundantWindow is how many following lines are searched for another
// assertion on the same variable.
const redundantWindow = 30

// RemoveRedundantAssertNotNull removes assertNotNull(var) lines that are
// redundant: either the immediately preceding non-blank line constructs var
// with new, or another assertion within the next 30 lines references var.
// Returns the new text and the number of removed lines.
func RemoveRedundantAssertNotNull(javaText string) (string, int) {
	trailingNL := strings.HasSuffix(javaText, "\n")
	lines := strings.Split(strings.TrimSuffix(javaText, "\n"), "\n")

	varIdx := assertNotNullRE.SubexpIndex("var")
	declVarIdx := declNewRE.SubexpIndex("var")

	remove := map[int]bool{}
	for i, line := range lines {
		m := assertNotNullRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v := m[varIdx]

		prev := i - 1
		for prev >= 0 && strings.TrimSpace(lines[prev]) == "" {
			prev--
		}
		if prev >= 0 {
			if md := declNewRE.FindStringSubmatch(lines[prev]); md != nil && md[declVarIdx] == v {
				remove[i] = true
				continue
			}
		}

		end := i + 1 + redundantWindow
		if end > len(lines) {
			end = len(lines)
		}
		window := strings.Join(lines[i+1:end], "\n")
		if strings.Contains(window, "assert") && wordRE(v).MatchString(window) {
			remove[i] = true
		}
	}

	if len(remove) == 0 {
		return javaText, 0
	}
	kept := make([]string, 0, len(lines)-len(remove))
	for i, ln := range lines {
		if !remove[i] {
			kept = append(kept, ln)
		}
	}
	out := strings.Join(kept, "\n")
	if trailingNL {
		out += "\n"
	}
	return out, len(remove)
}

func wordRE(ident string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(ident) + `\b`)
}

// ExtractDuplicatedSetupToBefore moves a setup prefix shared verbatim by the
// target test methods into a new @Before setUp() method, promoting prefix
// variable declarations to private fields. The transform only fires when at
// least two target bodies share a prefix of minCommonLines or more, the
// shared lines contain no assertion and open no try block, and the class has
// no @Before already. Every precondition failure is a silent no-op.
func ExtractDuplicatedSetupToBefore(javaText string, targetTestMethods []string, minCommonLines int) (string, bool) {
	if strings.Contains(javaText, "@Before") || strings.Contains(javaText, "org.junit.Before") {
		return javaText, false
	}

	targets := map[string]bool{}
	for _, nm := range targetTestMethods {
		targets[nm] = true
	}

	nameIdx := methodBlockRE.SubexpIndex("name")
	bodyIdx := methodBlockRE.SubexpIndex("body")

	var bodies [][]string
	for _, m := range methodBlockRE.FindAllStringSubmatchIndex(javaText, -1) {
		if !targets[javaText[m[2*nameIdx]:m[2*nameIdx+1]]] {
			continue
		}
		body := javaText[m[2*bodyIdx]:m[2*bodyIdx+1]]
		var kept []string
		for _, ln := range strings.Split(body, "\n") {
			if strings.TrimSpace(ln) != "" {
				kept = append(kept, ln)
			}
		}
		bodies = append(bodies, kept)
	}
	if len(bodies) < 2 {
		return javaText, false
	}

	shortest := len(bodies[0])
	for _, b := range bodies[1:] {
		if len(b) < shortest {
			shortest = len(b)
		}
	}

	var prefix []string
	for i := 0; i < shortest; i++ {
		li := bodies[0][i]
		same := true
		for _, b := range bodies[1:] {
			if b[i] != li {
				same = false
				break
			}
		}
		if !same {
			break
		}
		if strings.Contains(li, "assert") || strings.HasPrefix(strings.TrimSpace(li), "try") {
			break
		}
		prefix = append(prefix, li)
	}
	if len(prefix) < minCommonLines {
		return javaText, false
	}

	tyIdx := declRE.SubexpIndex("type")
	vIdx := declRE.SubexpIndex("var")
	rhsIdx := declRE.SubexpIndex("rhs")

	var fieldDecls, setupLines []string
	promoted := map[string]bool{}
	for _, ln := range prefix {
		md := declRE.FindStringSubmatch(ln)
		if md == nil {
			setupLines = append(setupLines, ln)
			continue
		}
		ty, v, rhs := md[tyIdx], md[vIdx], md[rhsIdx]
		promoted[v] = true
		fieldDecls = append(fieldDecls, "  private "+ty+" "+v+";")
		setupLines = append(setupLines, "    "+v+" = "+rhs+";")
	}

	insertion := "\n" + strings.Join(fieldDecls, "\n") + "\n\n" +
		"  @org.junit.Before\n  public void setUp() throws Exception {\n" +
		strings.Join(setupLines, "\n") + "\n  }\n"

	classOpen := strings.IndexByte(javaText, '{')
	if classOpen < 0 {
		return javaText, false
	}
	newText := javaText[:classOpen+1] + insertion + javaText[classOpen+1:]

	// Strip the prefix from every target first; rewriting redeclarations
	// before that would change the text the literal prefix match expects.
	prefixBlock := strings.Join(prefix, "\n")
	for _, nm := range targetTestMethods {
		re := regexp.MustCompile(
			`(?ms)(\bvoid\s+` + regexp.QuoteMeta(nm) + `\s*\([^)]*\)\s*(?:throws[^{]+)?\{\s*)` +
				regexp.QuoteMeta(prefixBlock) + `\n`)
		newText = replaceFirst(re, newText)
	}

	for _, v := range sortedVars(promoted) {
		re := regexp.MustCompile(`(?m)^\s*(?:final\s+)?[A-Za-z_][\w\.<>,\[\]]*\s+` + regexp.QuoteMeta(v) + `\s*=`)
		newText = re.ReplaceAllString(newText, "    "+v+" =")
	}

	return newText, true
}

// replaceFirst rewrites the first match of re to its first capture group.
func replaceFirst(re *regexp.Regexp, src string) string {
	m := re.FindStringSubmatchIndex(src)
	if m == nil {
		return src
	}
	return src[:m[0]] + src[m[2]:m[3]] + src[m[1]:]
}

func sortedVars(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
