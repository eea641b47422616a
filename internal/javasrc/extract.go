// Package javasrc provides best-effort extraction over EvoSuite-generated
// test classes and SF110 class sources. It is intentionally not a Java
// parser: a small regex-plus-brace-scanner core covers the generated code's
// shape and trades completeness for simple deployment.
package javasrc

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// methodStartRE matches a method header in CUT sources, up to and including
// the opening brace. Constructors never match because they lack the return
// type segment.
var methodStartRE = regexp.MustCompile(
	`(?ms)^\s*(?:@[^\n]+\n\s*)*` +
		`(?:public|protected|private|static|final|synchronized|native|abstract|\s)+` +
		`(?:<[^>]+>\s+)?` +
		`[\w\[\]<>,\.\s]+\s+` +
		`(?P<name>[A-Za-z_]\w*)\s*` +
		`\((?P<params>[^\)]*)\)\s*` +
		`(?:throws[^\{]+)?\{`)

// testMethodStartRE matches an EvoSuite test method header, annotations
// included, up to and including the opening brace.
var testMethodStartRE = regexp.MustCompile(
	`(?ms)^\s*(?:@Test[^\n]*\n\s*)*` +
		`(?:public\s+)?void\s+(?P<name>test\w+)\s*\([^\)]*\)\s*(?:throws[^\{]+)?\{`)

var (
	varDeclRE   = regexp.MustCompile(`^\s*(?:final\s+)?(?P<type>[A-Za-z_][\w\.<>,\[\]]*)\s+(?P<var>[A-Za-z_]\w*)\s*=\s*(?P<rhs>.+?);\s*$`)
	callOnVarRE = regexp.MustCompile(`\b(?P<var>[A-Za-z_]\w*)\.(?P<method>[A-Za-z_]\w*)\s*\(`)
	callNameRE  = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\(`)
	fieldRE     = regexp.MustCompile(`^\s*(?:public|protected|private|static|final|\s)+[\w\[\]<>,\.\s]+\s+[A-Za-z_]\w*\s*(?:=\s*[^;]+)?;`)

	classHeaderRE = regexp.MustCompile(`(?ms)^(.*?\bclass\b[^{]*\{)`)
)

// keywordLike holds identifiers that look like calls but never name a CUT
// method.
var keywordLike = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"new": true, "return": true, "throw": true, "super": true, "this": true,
	"assertTrue": true, "assertFalse": true, "assertEquals": true,
	"assertNotNull": true, "assertNull": true, "fail": true,
}

// isEscaped reports whether the character at idx is preceded by an odd number
// of backslashes.
func isEscaped(src string, idx int) bool {
	cnt := 0
	for j := idx - 1; j >= 0 && src[j] == '\\'; j-- {
		cnt++
	}
	return cnt%2 == 1
}

// scanToMatchingBrace returns the index of the '}' matching the '{' at
// openIdx, or -1. String literals, char literals and both comment forms are
// skipped so braces inside them do not affect the depth.
func scanToMatchingBrace(src string, openIdx int) int {
	depth := 0
	i := openIdx
	n := len(src)
	inSQ, inDQ := false, false
	inLineComment, inBlockComment := false, false
	for i < n {
		ch := src[i]
		var nxt byte
		if i+1 < n {
			nxt = src[i+1]
		}

		if inLineComment {
			if ch == '\n' {
				inLineComment = false
			}
			i++
			continue
		}
		if inBlockComment {
			if ch == '*' && nxt == '/' {
				inBlockComment = false
				i += 2
				continue
			}
			i++
			continue
		}

		if !inSQ && !inDQ {
			if ch == '/' && nxt == '/' {
				inLineComment = true
				i += 2
				continue
			}
			if ch == '/' && nxt == '*' {
				inBlockComment = true
				i += 2
				continue
			}
		}

		if ch == '"' && !inSQ {
			if !isEscaped(src, i) {
				inDQ = !inDQ
			}
			i++
			continue
		}
		if ch == '\'' && !inDQ {
			if !isEscaped(src, i) {
				inSQ = !inSQ
			}
			i++
			continue
		}

		if inSQ || inDQ {
			i++
			continue
		}

		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

func nameGroup(re *regexp.Regexp, src string, m []int) string {
	idx := re.SubexpIndex("name")
	if idx < 0 || m[2*idx] < 0 {
		return ""
	}
	return src[m[2*idx]:m[2*idx+1]]
}

// extractMethodBlock returns the full text of the named method, from the
// header match through the matching close brace, or "" when absent.
func extractMethodBlock(src, methodName string, startRE *regexp.Regexp) string {
	for _, m := range startRE.FindAllStringSubmatchIndex(src, -1) {
		if nameGroup(startRE, src, m) != methodName {
			continue
		}
		openIdx := m[1] - 1
		closeIdx := scanToMatchingBrace(src, openIdx)
		if closeIdx == -1 {
			return ""
		}
		return src[m[0] : closeIdx+1]
	}
	return ""
}

// ExtractMethodFromText locates methodName inside arbitrary text, such as a
// model completion. The text does not have to be a complete compilation unit.
func ExtractMethodFromText(text, methodName string) string {
	return extractMethodBlock(text, methodName, testMethodStartRE)
}

// ExtractTestMethod reads the test file and returns the named test method's
// full text.
func ExtractTestMethod(testFile, methodName string) (string, error) {
	data, err := os.ReadFile(testFile)
	if err != nil {
		return "", fmt.Errorf("read test file: %w", err)
	}
	blk := extractMethodBlock(string(data), methodName, testMethodStartRE)
	if blk == "" {
		return "", fmt.Errorf("cannot locate test method %s in %s", methodName, testFile)
	}
	return blk, nil
}

// splitFencedBlocks returns the contents of ``` fenced blocks, dropping a
// leading language tag line such as "java" or "diff".
func splitFencedBlocks(text string) []string {
	parts := strings.Split(text, "```")
	var blocks []string
	for i := 1; i < len(parts); i += 2 {
		lines := strings.Split(parts[i], "\n")
		if len(lines) > 0 {
			head := strings.ToLower(strings.TrimSpace(lines[0]))
			if strings.HasPrefix(head, "diff") || strings.HasPrefix(head, "java") {
				lines = lines[1:]
			}
		}
		blocks = append(blocks, strings.TrimSpace(strings.Join(lines, "\n")))
	}
	return blocks
}

// ExtractRefactoredMethod pulls a full replacement declaration of methodName
// out of a raw completion. Fenced code blocks are tried first, the raw text
// is the fallback. Returns "" when no candidate contains the method.
func ExtractRefactoredMethod(raw, methodName string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	var candidates []string
	if strings.Contains(text, "```") {
		for _, b := range splitFencedBlocks(text) {
			if b != "" {
				candidates = append(candidates, b)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = []string{text}
	}
	for _, cand := range candidates {
		if blk := extractMethodBlock(cand, methodName, testMethodStartRE); blk != "" {
			return strings.TrimSpace(blk)
		}
	}
	return ""
}

// Span is the byte range of one test method in a source file, together with
// the indentation of its first declaration line. The range starts at the
// beginning of that line and ends just past the closing brace, so replacing
// src[Start:End] with a reindented block keeps the surrounding text intact.
type Span struct {
	Start  int
	End    int
	Indent string
}

// FindTestMethodSpan locates the named test method and returns its span.
func FindTestMethodSpan(src, methodName string) (Span, bool) {
	for _, m := range testMethodStartRE.FindAllStringSubmatchIndex(src, -1) {
		if nameGroup(testMethodStartRE, src, m) != methodName {
			continue
		}
		openIdx := m[1] - 1
		closeIdx := scanToMatchingBrace(src, openIdx)
		if closeIdx == -1 {
			return Span{}, false
		}
		// The header pattern may start matching on a blank line above the
		// declaration. Anchor the span at the first declaration character's
		// own line so the extract+splice round trip is exact.
		i := m[0]
		for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
			i++
		}
		lineStart := strings.LastIndexByte(src[:i], '\n') + 1
		indent := src[lineStart:]
		if j := strings.IndexFunc(indent, func(r rune) bool { return r != ' ' && r != '\t' }); j >= 0 {
			indent = indent[:j]
		}
		return Span{Start: lineStart, End: closeIdx + 1, Indent: indent}, true
	}
	return Span{}, false
}

// NormalizeMethodBlock dedents the block and reapplies the target
// indentation. Whitespace-only lines become empty and the result carries no
// trailing newline, matching what a span replacement expects.
func NormalizeMethodBlock(block, indent string) string {
	cleaned := strings.Trim(dedent(block), "\n")
	if cleaned == "" {
		return ""
	}
	lines := strings.Split(cleaned, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = ""
			continue
		}
		out[i] = indent + line
	}
	return strings.Join(out, "\n")
}

// dedent strips the longest common leading whitespace from every non-blank
// line. Blank lines are normalized to empty.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ws := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = ws
			first = false
			continue
		}
		prefix = commonPrefix(prefix, ws)
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// ReplaceTestMethod splices newBlock over the named method's span. It
// returns the new file text, or "" and false when the method cannot be
// located or the replacement normalizes to nothing.
func ReplaceTestMethod(src, methodName, newBlock string) (string, bool) {
	span, ok := FindTestMethodSpan(src, methodName)
	if !ok {
		return "", false
	}
	normalized := NormalizeMethodBlock(newBlock, span.Indent)
	if normalized == "" {
		return "", false
	}
	return src[:span.Start] + normalized + src[span.End:], true
}
