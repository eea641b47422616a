package javasrc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxFieldSignatures caps the field section of a signature context.
const maxFieldSignatures = 40

// Context carries everything the prompt builder needs about one test method
// and its class under test.
type Context struct {
	TestFile       string
	TestClassName  string
	TestMethodName string
	TestMethodCode string
	CUTFQCN        string
	CUTSourceFile  string
	CUTCode        string
}

// ContextParams selects how much of the CUT source is pulled into a Context.
type ContextParams struct {
	TestFile       string
	TestClassName  string
	TestMethodName string
	CUTFQCN        string
	CUTSourceFile  string

	// Mode "signature" renders a pseudo-class of field and method
	// signatures; any other value extracts full method bodies.
	Mode                string
	MaxChars            int
	TransitiveDepth     int
	ExtraMethods        map[string]bool
	SignatureWithFields bool
	SignatureMaxMethods int
}

// InferCUTCallsFromTest returns the CUT method names a test method invokes,
// found by tracking variables declared with the CUT type and static calls on
// the CUT's simple name.
func InferCUTCallsFromTest(testMethodCode, cutSimple string) map[string]bool {
	varTypes := map[string]string{}
	for _, line := range strings.Split(testMethodCode, "\n") {
		md := varDeclRE.FindStringSubmatch(line)
		if md == nil {
			continue
		}
		ty := strings.TrimSpace(md[varDeclRE.SubexpIndex("type")])
		if i := strings.Index(ty, "<"); i >= 0 {
			ty = strings.TrimSpace(ty[:i])
		}
		varTypes[md[varDeclRE.SubexpIndex("var")]] = ty
	}

	invoked := map[string]bool{}
	for _, m := range callOnVarRE.FindAllStringSubmatch(testMethodCode, -1) {
		receiver := m[callOnVarRE.SubexpIndex("var")]
		meth := m[callOnVarRE.SubexpIndex("method")]
		if keywordLike[meth] {
			continue
		}
		if ty := varTypes[receiver]; ty != "" && (ty == cutSimple || strings.HasSuffix(ty, "."+cutSimple)) {
			invoked[meth] = true
		}
		// The same receiver token may also be the CUT's simple name in a
		// static call.
		if receiver == cutSimple {
			invoked[meth] = true
		}
	}
	return invoked
}

// InferCUTCallsFromEvidence walks detector evidence and collects method names
// from call-site fields, including names embedded in expression strings.
func InferCUTCallsFromEvidence(evidence map[string]any) map[string]bool {
	names := map[string]bool{}
	var visit func(obj any)
	visit = func(obj any) {
		switch t := obj.(type) {
		case map[string]any:
			for k, v := range t {
				if s, ok := v.(string); ok {
					switch k {
					case "called_method", "void_method_name", "method_name":
						names[s] = true
						continue
					case "expr", "signature", "name":
						for nm := range methodNamesFromExpr(s) {
							names[nm] = true
						}
						continue
					}
				}
				switch v.(type) {
				case map[string]any, []any:
					visit(v)
				}
			}
		case []any:
			for _, it := range t {
				visit(it)
			}
		}
	}
	visit(evidence)

	out := map[string]bool{}
	for n := range names {
		if n != "" && !keywordLike[n] {
			out[n] = true
		}
	}
	return out
}

func methodNamesFromExpr(expr string) map[string]bool {
	names := map[string]bool{}
	for _, m := range callNameRE.FindAllStringSubmatch(expr, -1) {
		if !keywordLike[m[1]] {
			names[m[1]] = true
		}
	}
	return names
}

func indexClassMethods(cutSrc string) map[string]bool {
	names := map[string]bool{}
	for _, m := range methodStartRE.FindAllStringSubmatchIndex(cutSrc, -1) {
		nm := nameGroup(methodStartRE, cutSrc, m)
		if !keywordLike[nm] {
			names[nm] = true
		}
	}
	return names
}

// normalizeSignature flattens a matched method header onto one line, drops
// annotation lines and the trailing open brace.
func normalizeSignature(sig string) string {
	var kept []string
	for _, ln := range strings.Split(sig, "\n") {
		if strings.HasPrefix(strings.TrimSpace(ln), "@") {
			continue
		}
		kept = append(kept, ln)
	}
	compact := strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
	if strings.HasSuffix(compact, "{") {
		compact = strings.TrimRight(compact[:len(compact)-1], " ")
	}
	return compact
}

func extractMethodSignatures(cutSrc string) map[string]string {
	sigs := map[string]string{}
	for _, m := range methodStartRE.FindAllStringSubmatchIndex(cutSrc, -1) {
		name := nameGroup(methodStartRE, cutSrc, m)
		if keywordLike[name] {
			continue
		}
		if sig := normalizeSignature(cutSrc[m[0]:m[1]]); sig != "" {
			sigs[name] = sig
		}
	}
	return sigs
}

// extractFieldSignatures scans the class head (text before the first method)
// for field declarations.
func extractFieldSignatures(cutSrc string, maxFields int) []string {
	head := cutSrc
	if loc := methodStartRE.FindStringIndex(cutSrc); loc != nil {
		head = cutSrc[:loc[0]]
	}
	var fields []string
	for _, line := range strings.Split(head, "\n") {
		if strings.Contains(line, "(") {
			continue
		}
		if !fieldRE.MatchString(line) {
			continue
		}
		ln := strings.TrimSpace(line)
		if i := strings.Index(ln, "//"); i >= 0 {
			ln = strings.TrimSpace(ln[:i])
		}
		if ln != "" {
			fields = append(fields, ln)
		}
		if maxFields > 0 && len(fields) >= maxFields {
			break
		}
	}
	return fields
}

func classHeader(src string) (string, bool) {
	if m := classHeaderRE.FindStringSubmatch(src); m != nil {
		return m[1], true
	}
	return "", false
}

// ExtractRelevantCUTCode renders the class header plus the bodies of the
// given methods and their unqualified callees up to transitiveDepth hops.
func ExtractRelevantCUTCode(cutSourceFile string, initialMethods map[string]bool, transitiveDepth int) (string, error) {
	data, err := os.ReadFile(cutSourceFile)
	if err != nil {
		return "", fmt.Errorf("read CUT source: %w", err)
	}
	src := string(data)
	known := indexClassMethods(src)

	selected := map[string]bool{}
	for m := range initialMethods {
		if known[m] {
			selected[m] = true
		}
	}
	frontier := make(map[string]bool, len(selected))
	for m := range selected {
		frontier[m] = true
	}

	for d := 0; d < transitiveDepth; d++ {
		next := map[string]bool{}
		for meth := range frontier {
			blk := extractMethodBlock(src, meth, methodStartRE)
			if blk == "" {
				continue
			}
			for _, m := range callNameRE.FindAllStringSubmatchIndex(blk, -1) {
				// Qualified calls (x.foo) are receiver calls, not local
				// helpers.
				if m[2] > 0 && blk[m[2]-1] == '.' {
					continue
				}
				callee := blk[m[2]:m[3]]
				if known[callee] && !selected[callee] && !keywordLike[callee] {
					next[callee] = true
				}
			}
		}
		for m := range next {
			selected[m] = true
		}
		frontier = next
	}

	header, ok := classHeader(src)
	if !ok {
		lines := strings.Split(src, "\n")
		if len(lines) > 80 {
			lines = lines[:80]
		}
		header = strings.Join(lines, "\n") + "\n{"
	}

	blocks := []string{header}
	for _, meth := range sortedKeys(selected) {
		if blk := extractMethodBlock(src, meth, methodStartRE); blk != "" {
			blocks = append(blocks, "\n"+strings.TrimSpace(blk)+"\n")
		}
	}
	blocks = append(blocks, "}")
	return strings.Join(blocks, "\n"), nil
}

// BuildCUTSignatureContext renders a pseudo-class of field and method
// signatures. With an empty methodNames set every known method is listed.
func BuildCUTSignatureContext(cutSourceFile string, methodNames map[string]bool, includeFields bool, maxMethods int) (string, error) {
	data, err := os.ReadFile(cutSourceFile)
	if err != nil {
		return "", fmt.Errorf("read CUT source: %w", err)
	}
	src := string(data)

	header, ok := classHeader(src)
	if ok {
		header = strings.TrimSpace(header)
	} else {
		stem := strings.TrimSuffix(filepath.Base(cutSourceFile), filepath.Ext(cutSourceFile))
		header = "class " + stem + " {"
	}

	sigs := extractMethodSignatures(src)
	var selected []string
	if len(methodNames) > 0 {
		for _, nm := range sortedKeys(methodNames) {
			if sig := sigs[nm]; sig != "" {
				selected = append(selected, sig)
			}
		}
	} else {
		for _, nm := range sortedMapKeys(sigs) {
			selected = append(selected, sigs[nm])
		}
	}
	if maxMethods > 0 && len(selected) > maxMethods {
		selected = selected[:maxMethods]
	}

	lines := []string{header}
	if includeFields {
		for _, fld := range extractFieldSignatures(src, maxFieldSignatures) {
			lines = append(lines, "  "+fld)
		}
	}
	for _, sig := range selected {
		if !strings.HasSuffix(sig, ";") {
			sig += ";"
		}
		lines = append(lines, "  "+sig)
	}
	lines = append(lines, "}")
	return strings.Join(lines, "\n"), nil
}

// BuildContext extracts the test method and assembles the CUT context in the
// requested mode. A missing CUT source yields an empty CUTCode, never an
// error; the test method itself must exist.
func BuildContext(p ContextParams) (Context, error) {
	testMethodCode, err := ExtractTestMethod(p.TestFile, p.TestMethodName)
	if err != nil {
		return Context{}, err
	}

	cutCode := ""
	if p.CUTSourceFile != "" {
		if _, statErr := os.Stat(p.CUTSourceFile); statErr == nil {
			cutSimple := strings.TrimSuffix(filepath.Base(p.CUTSourceFile), filepath.Ext(p.CUTSourceFile))
			if p.CUTFQCN != "" {
				parts := strings.Split(p.CUTFQCN, ".")
				cutSimple = parts[len(parts)-1]
			}
			invoked := InferCUTCallsFromTest(testMethodCode, cutSimple)
			for m := range p.ExtraMethods {
				invoked[m] = true
			}
			if p.Mode == "signature" {
				cutCode, err = BuildCUTSignatureContext(p.CUTSourceFile, invoked, p.SignatureWithFields, p.SignatureMaxMethods)
			} else if len(invoked) > 0 {
				cutCode, err = ExtractRelevantCUTCode(p.CUTSourceFile, invoked, p.TransitiveDepth)
			} else {
				var data []byte
				data, err = os.ReadFile(p.CUTSourceFile)
				cutCode = string(data)
			}
			if err != nil {
				return Context{}, err
			}
		}
	}

	if p.MaxChars > 0 && len(cutCode) > p.MaxChars {
		cutCode = strings.TrimRight(cutCode[:p.MaxChars], " \t\n\r") + "\n... [truncated]"
	}

	return Context{
		TestFile:       p.TestFile,
		TestClassName:  p.TestClassName,
		TestMethodName: p.TestMethodName,
		TestMethodCode: testMethodCode,
		CUTFQCN:        p.CUTFQCN,
		CUTSourceFile:  p.CUTSourceFile,
		CUTCode:        cutCode,
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedMapKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
