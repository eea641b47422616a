package javasrc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const cutSrc = `package com.example;

public class Stack {
  private int size; // current depth
  public static final int LIMIT = 64;

  public void push(String s) {
    ensureCapacity();
    this.helper();
    size++;
  }

  private void ensureCapacity() {
    grow();
  }

  private void grow() {
  }

  private void helper() {
  }

  public int size() {
    return size;
  }
}
`

func writeCUT(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Stack.java")
	require.NoError(t, os.WriteFile(path, []byte(cutSrc), 0o644))
	return path
}

func TestInferCUTCallsFromTest(t *testing.T) {
	code := `public void test00() throws Throwable {
    Stack stack = new Stack();
    ArrayList<String> items = new ArrayList<String>();
    com.example.Stack other = new com.example.Stack();
    stack.push("x");
    stack.pop();
    items.add("y");
    Stack.create();
    other.clear();
    if (stack.isEmpty()) {
      fail("unexpected");
    }
  }`

	got := InferCUTCallsFromTest(code, "Stack")
	want := map[string]bool{"push": true, "pop": true, "isEmpty": true, "create": true, "clear": true}
	require.Equal(t, want, got)
}

func TestInferCUTCallsFromTestIgnoresOtherTypes(t *testing.T) {
	code := `public void test01() throws Throwable {
    StringBuilder sb = new StringBuilder();
    sb.append("x");
  }`
	require.Empty(t, InferCUTCallsFromTest(code, "Stack"))
}

func TestInferCUTCallsFromEvidence(t *testing.T) {
	ev := map[string]any{
		"NASE": map[string]any{
			"unverified_side_effect_calls": []any{
				map[string]any{
					"act_call":      map[string]any{"expr": `stack.push("a")`},
					"called_method": "push",
				},
			},
		},
		"TSVM": map[string]any{
			"same_void_method_groups": []any{
				map[string]any{"void_method_name": "reset"},
			},
		},
		"AC": map[string]any{
			"constant_assertions": []any{
				map[string]any{"assert": "assertEquals(64, Stack.LIMIT)"},
			},
		},
	}

	got := InferCUTCallsFromEvidence(ev)
	require.Equal(t, map[string]bool{"push": true, "reset": true}, got)
}

func TestExtractRelevantCUTCodeFollowsLocalCalls(t *testing.T) {
	path := writeCUT(t)

	out, err := ExtractRelevantCUTCode(path, map[string]bool{"push": true}, 1)
	require.NoError(t, err)
	require.Contains(t, out, "public class Stack {")
	require.Contains(t, out, "public void push(String s)")
	require.Contains(t, out, "private void ensureCapacity()")
	require.NotContains(t, out, "private void grow()", "two hops away at depth 1")
	require.NotContains(t, out, "private void helper()", "qualified this.helper() is not a local closure edge")
	require.True(t, strings.HasSuffix(out, "}"))
}

func TestExtractRelevantCUTCodeDeeperClosure(t *testing.T) {
	path := writeCUT(t)

	out, err := ExtractRelevantCUTCode(path, map[string]bool{"push": true}, 2)
	require.NoError(t, err)
	require.Contains(t, out, "private void grow()")
}

func TestBuildCUTSignatureContext(t *testing.T) {
	path := writeCUT(t)

	out, err := BuildCUTSignatureContext(path, map[string]bool{"push": true, "size": true}, true, 80)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Equal(t, "package com.example;", lines[0])
	require.Contains(t, out, "  private int size;")
	require.Contains(t, out, "  public static final int LIMIT = 64;")
	require.Contains(t, out, "  public void push(String s);")
	require.Contains(t, out, "  public int size();")
	require.NotContains(t, out, "ensureCapacity", "unrequested methods stay out")
	require.Equal(t, "}", lines[len(lines)-1])
	require.NotContains(t, out, "// current depth", "line comments are stripped from fields")
}

func TestBuildCUTSignatureContextAllMethodsWhenUnfiltered(t *testing.T) {
	path := writeCUT(t)

	out, err := BuildCUTSignatureContext(path, nil, false, 80)
	require.NoError(t, err)
	for _, sig := range []string{"ensureCapacity", "grow", "helper", "push", "size"} {
		require.Contains(t, out, sig)
	}
	require.NotContains(t, out, "private int size;", "fields excluded on request")
}

func TestBuildCUTSignatureContextCapsMethods(t *testing.T) {
	path := writeCUT(t)

	out, err := BuildCUTSignatureContext(path, nil, false, 2)
	require.NoError(t, err)
	// Sorted by name: ensureCapacity, grow come first.
	require.Contains(t, out, "ensureCapacity")
	require.Contains(t, out, "grow")
	require.NotContains(t, out, "push")
}

func TestBuildContextSignatureMode(t *testing.T) {
	dir := t.TempDir()
	testPath := filepath.Join(dir, "Stack_ESTest.java")
	require.NoError(t, os.WriteFile(testPath, []byte(testClassSrc), 0o644))
	cutPath := filepath.Join(dir, "Stack.java")
	require.NoError(t, os.WriteFile(cutPath, []byte(cutSrc), 0o644))

	ctx, err := BuildContext(ContextParams{
		TestFile:            testPath,
		TestClassName:       "Stack_ESTest",
		TestMethodName:      "test00",
		CUTFQCN:             "com.example.Stack",
		CUTSourceFile:       cutPath,
		Mode:                "signature",
		TransitiveDepth:     1,
		SignatureWithFields: true,
		SignatureMaxMethods: 80,
	})
	require.NoError(t, err)
	require.Contains(t, ctx.TestMethodCode, `stack.push("a{b");`)
	require.Contains(t, ctx.CUTCode, "public void push(String s);")
	require.Contains(t, ctx.CUTCode, "public int size();", "size() is called via assertEquals arg")
}

func TestBuildContextTruncatesCUTCode(t *testing.T) {
	dir := t.TempDir()
	testPath := filepath.Join(dir, "Stack_ESTest.java")
	require.NoError(t, os.WriteFile(testPath, []byte(testClassSrc), 0o644))
	cutPath := filepath.Join(dir, "Stack.java")
	require.NoError(t, os.WriteFile(cutPath, []byte(cutSrc), 0o644))

	ctx, err := BuildContext(ContextParams{
		TestFile:       testPath,
		TestMethodName: "test00",
		CUTFQCN:        "com.example.Stack",
		CUTSourceFile:  cutPath,
		Mode:           "signature",
		MaxChars:       40,
	})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(ctx.CUTCode, "\n... [truncated]"))
	require.LessOrEqual(t, len(ctx.CUTCode), 40+len("\n... [truncated]"))
}

func TestBuildContextMissingCUTSourceIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	testPath := filepath.Join(dir, "Stack_ESTest.java")
	require.NoError(t, os.WriteFile(testPath, []byte(testClassSrc), 0o644))

	ctx, err := BuildContext(ContextParams{
		TestFile:       testPath,
		TestMethodName: "test00",
		CUTSourceFile:  filepath.Join(dir, "absent", "Stack.java"),
		Mode:           "signature",
	})
	require.NoError(t, err)
	require.Empty(t, ctx.CUTCode)
}

func TestBuildContextMissingTestMethodFails(t *testing.T) {
	dir := t.TempDir()
	testPath := filepath.Join(dir, "Stack_ESTest.java")
	require.NoError(t, os.WriteFile(testPath, []byte(testClassSrc), 0o644))

	_, err := BuildContext(ContextParams{TestFile: testPath, TestMethodName: "test99"})
	require.Error(t, err)
}

func TestNormalizeSignatureDropsAnnotationsAndBrace(t *testing.T) {
	in := "  @Override\n  public int size()   {"
	require.Equal(t, "public int size()", normalizeSignature(in))
}
