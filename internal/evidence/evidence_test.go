package evidence

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"desmell/internal/smell"
)

func TestTruncateStr(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays", "abc", 10, "abc"},
		{"exact stays", "abcde", 5, "abcde"},
		{"long gets ellipsis", "abcdefghij", 8, "abcde..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateStr(tt.in, tt.max); got != tt.want {
				t.Fatalf("truncateStr(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestCompactNilAndEmptyEvidence(t *testing.T) {
	require.Empty(t, Compact(smell.NARV, nil, DefaultLimits()))
	require.Empty(t, Compact(smell.NARV, map[string]any{}, DefaultLimits()))
}

func TestCompactDSBoundsGroups(t *testing.T) {
	tests := make([]any, 0, 15)
	for i := 0; i < 15; i++ {
		tests = append(tests, "test"+string(rune('a'+i)))
	}
	stmts := []any{"A a = new A();", "a.init();", "a.load();", "a.start();"}
	ev := map[string]any{
		"duplicated_setup_groups": []any{
			map[string]any{
				"group_id":          float64(1),
				"group_size":        float64(15),
				"group_tests":       tests,
				"prefix_statements": stmts,
			},
			map[string]any{"group_id": float64(2)},
			"not-a-group",
		},
	}

	got := Compact(smell.DS, ev, DefaultLimits())
	groups := got["duplicated_setup_groups"].([]any)
	require.Len(t, groups, 2, "non-object entries are dropped")

	g0 := groups[0].(map[string]any)
	require.Len(t, g0["group_tests"], 10)
	require.Len(t, g0["prefix_statements"], 2)

	g1 := groups[1].(map[string]any)
	require.Equal(t, []any{}, g1["group_tests"], "missing list fields compact to empty lists")
	require.Equal(t, []any{}, g1["prefix_statements"])
}

func TestCompactNARVProjectsCallSites(t *testing.T) {
	long := strings.Repeat("x", 300)
	ev := map[string]any{
		"unasserted_return_calls": []any{
			map[string]any{
				"expr":           "stack.pop()",
				"name":           "pop",
				"scope":          "stack",
				"args":           []any{},
				"declaring_type": "com.example.Stack",
				"signature":      "pop()",
				"return_type":    "java.lang.Object",
				"begin_line":     float64(12),
				"begin_col":      float64(5),
				"end_line":       float64(12),
				"end_col":        float64(16),
				"internal_id":    "drop-me",
				"comment":        long,
			},
		},
	}

	got := Compact(smell.NARV, ev, DefaultLimits())
	want := map[string]any{
		"unasserted_return_calls": []any{
			map[string]any{
				"expr":           "stack.pop()",
				"name":           "pop",
				"scope":          "stack",
				"args":           []any{},
				"declaring_type": "com.example.Stack",
				"signature":      "pop()",
				"return_type":    "java.lang.Object",
				"begin_line":     float64(12),
				"begin_col":      float64(5),
				"end_line":       float64(12),
				"end_col":        float64(16),
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("compact mismatch (-want +got):\n%s", diff)
	}
}

func TestCompactCallTruncatesLongStrings(t *testing.T) {
	lim := Limits{MaxListItems: 6, MaxGroupTests: 10, MaxPrefixStmts: 2, MaxStrLen: 20}
	ev := map[string]any{
		"unasserted_return_calls": []any{
			map[string]any{"expr": strings.Repeat("e", 50), "args": []any{strings.Repeat("a", 50)}},
		},
	}
	got := Compact(smell.NARV, ev, lim)
	call := got["unasserted_return_calls"].([]any)[0].(map[string]any)
	require.Len(t, call["expr"], 20)
	require.True(t, strings.HasSuffix(call["expr"].(string), "..."))
	require.Len(t, call["args"].([]any)[0], 20)
}

func TestCompactENETDispatchesOnSiteKind(t *testing.T) {
	ev := map[string]any{
		"first_statement_is_try": true,
		"try_catch_blocks": []any{
			map[string]any{"catch_types": []any{"Throwable"}, "begin_line": float64(3), "end_line": float64(9)},
		},
		"null_argument_sites": []any{
			map[string]any{
				"kind":      "method_call",
				"arg_index": float64(0),
				"arg_expr":  "(String) null",
				"in_try":    true,
				"call":      map[string]any{"expr": "p.parse((String) null)", "name": "parse", "noise": "x"},
			},
			map[string]any{
				"kind":        "constructor_call",
				"arg_index":   float64(1),
				"arg_expr":    "null",
				"in_try":      false,
				"constructor": map[string]any{"expr": "new Widget(1, null)", "type": "Widget", "noise": "x"},
			},
		},
	}

	got := Compact(smell.ENET, ev, DefaultLimits())
	require.Equal(t, true, got["first_statement_is_try"])

	tcs := got["try_catch_blocks"].([]any)
	require.Len(t, tcs, 1)
	require.Equal(t, map[string]any{
		"catch_types": []any{"Throwable"},
		"begin_line":  float64(3),
		"end_line":    float64(9),
	}, tcs[0])

	sites := got["null_argument_sites"].([]any)
	require.Len(t, sites, 2)

	mc := sites[0].(map[string]any)
	require.Equal(t, "method_call", mc["kind"])
	require.NotContains(t, mc, "constructor")
	call := mc["call"].(map[string]any)
	require.Equal(t, "parse", call["name"])
	require.NotContains(t, call, "noise")

	cc := sites[1].(map[string]any)
	require.NotContains(t, cc, "call")
	ctor := cc["constructor"].(map[string]any)
	require.Equal(t, "Widget", ctor["type"])
	require.NotContains(t, ctor, "noise")
}

func TestCompactOIMTOmitsAbsentSections(t *testing.T) {
	ev := map[string]any{
		"rules_triggered":  []any{"shared_init"},
		"object_creations": []any{map[string]any{"expr": "new Node(1)", "type": "Node", "scope": "drop"}},
	}

	got := Compact(smell.OIMT, ev, DefaultLimits())
	require.Equal(t, []any{"shared_init"}, got["rules_triggered"])
	require.NotContains(t, got, "shared_init_assert_keys")
	require.NotContains(t, got, "assert_calls")
	require.NotContains(t, got, "nontrivial_calls")

	ocs := got["object_creations"].([]any)
	oc := ocs[0].(map[string]any)
	require.Equal(t, "Node", oc["type"])
	require.NotContains(t, oc, "scope", "constructor projection drops call-only keys")
}

func TestCompactUnknownSmellFallsBackToShallowBound(t *testing.T) {
	lim := Limits{MaxListItems: 2, MaxGroupTests: 10, MaxPrefixStmts: 2, MaxStrLen: 10}
	ev := map[string]any{
		"note":  strings.Repeat("n", 40),
		"items": []any{"a", "b", "c", "d"},
		"count": float64(4),
	}
	got := Compact(smell.ID("XX"), ev, lim)
	require.Len(t, got["note"], 10)
	require.Len(t, got["items"], 2)
	require.Equal(t, float64(4), got["count"])
}

func TestPlanEnumeratesEvidence(t *testing.T) {
	ev := map[string]any{
		"unasserted_return_calls": []any{
			map[string]any{"expr": "stack.pop()", "return_type": "Object", "begin_line": float64(12)},
			map[string]any{"expr": "stack.peek()", "return_type": "Object", "begin_line": float64(14)},
		},
	}
	r := ForPrompt(smell.NARV, ev, DefaultLimits())
	require.Contains(t, r.Plan, "Calls to fix:")
	require.Contains(t, r.Plan, "- [1] stack.pop() (ret=Object, line=12)")
	require.Contains(t, r.Plan, "- [2] stack.peek() (ret=Object, line=14)")
}

func TestPlanWithoutEvidenceKeepsOnlySteps(t *testing.T) {
	r := ForPrompt(smell.NARV, map[string]any{"unasserted_return_calls": []any{}}, DefaultLimits())
	require.NotContains(t, r.Plan, "Calls to fix:")
	require.Contains(t, r.Plan, "1) For each unasserted return-value call")
}

func TestPlanForGroupSmells(t *testing.T) {
	for _, id := range []smell.ID{smell.DS, smell.TSES, smell.TSVM} {
		got := planFor(id, map[string]any{})
		require.Contains(t, got, "group-based")
		require.Contains(t, got, "@Before")
		require.Len(t, strings.Split(got, "\n"), 3)
	}
}

func TestPlanDefaultForUnknownSmell(t *testing.T) {
	got := planFor(smell.ID("XX"), map[string]any{})
	require.Equal(t, "1) Use the evidence JSON to locate the problematic lines.\n2) Apply the smell's repair playbook with minimal, deterministic changes.", got)
}

func TestMarkdownBlockShape(t *testing.T) {
	ev := map[string]any{
		"unasserted_return_calls": []any{
			map[string]any{"expr": "a.compare(x < y)", "begin_line": float64(3)},
		},
	}
	md := ForPrompt(smell.NARV, ev, DefaultLimits()).Markdown()

	require.True(t, strings.HasPrefix(md, "## NARV evidence (Smelly, compact)\n```json\n"))
	require.Contains(t, md, "\n```\nEvidence-driven repair plan template:\n")
	require.True(t, strings.HasSuffix(md, "\n"))
	require.Contains(t, md, `"a.compare(x < y)"`, "no HTML escaping inside the JSON block")
}
