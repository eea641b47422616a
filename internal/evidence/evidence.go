// Package evidence compacts raw detector evidence into bounded JSON shapes
// and pairs each one with an evidence-driven repair plan. Prompt size must be
// a function of the configured limits, never of the raw evidence size, so
// every projection slices lists and truncates strings before anything is
// rendered.
package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"desmell/internal/smell"
)

// Limits bounds the compacted output.
type Limits struct {
	MaxListItems   int
	MaxGroupTests  int
	MaxPrefixStmts int
	MaxStrLen      int
}

// DefaultLimits returns the caps used when the config does not override them.
func DefaultLimits() Limits {
	return Limits{
		MaxListItems:   6,
		MaxGroupTests:  10,
		MaxPrefixStmts: 2,
		MaxStrLen:      240,
	}
}

// Render is a compacted evidence object plus its repair plan, ready to embed
// in a prompt.
type Render struct {
	ID      smell.ID
	Compact map[string]any
	Plan    string
}

// ===== GENERIC BOUNDING HELPERS =====

// truncateAny shortens string values to max characters (with a "..." tail)
// and leaves every other type untouched.
func truncateAny(v any, max int) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return truncateStr(s, max)
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// limitList slices list values to max items and leaves every other type
// untouched.
func limitList(v any, max int) any {
	l, ok := v.([]any)
	if !ok {
		return v
	}
	if len(l) <= max {
		return l
	}
	return l[:max]
}

// getList reads a list-valued key, bounding it to max items. A missing key
// yields an empty list so the compact JSON always shows the field.
func getList(m map[string]any, k string, max int) any {
	v, ok := m[k]
	if !ok {
		return []any{}
	}
	return limitList(v, max)
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// compactRange keeps only source-position keys.
func compactRange(d map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range []string{"begin_line", "begin_col", "end_line", "end_col"} {
		if v, ok := d[k]; ok {
			out[k] = v
		}
	}
	return out
}

var callKeepKeys = []string{"expr", "name", "scope", "args", "declaring_type", "signature", "return_type"}

// compactCall projects a call-site object down to its actionable keys.
// Non-object values pass through unchanged.
func compactCall(call any, maxStr int) any {
	m, ok := asMap(call)
	if !ok {
		return call
	}
	out := map[string]any{}
	for _, k := range callKeepKeys {
		if v, ok := m[k]; ok && v != nil {
			out[k] = v
		}
	}
	shrinkStrings(out, maxStr)
	for k, v := range compactRange(m) {
		out[k] = v
	}
	return out
}

var ctorKeepKeys = []string{"expr", "type", "args", "resolved_type"}

func compactCtor(ctor any, maxStr int) any {
	m, ok := asMap(ctor)
	if !ok {
		return ctor
	}
	out := map[string]any{}
	for _, k := range ctorKeepKeys {
		if v, ok := m[k]; ok && v != nil {
			out[k] = v
		}
	}
	shrinkStrings(out, maxStr)
	for k, v := range compactRange(m) {
		out[k] = v
	}
	return out
}

func shrinkStrings(m map[string]any, maxStr int) {
	for k, v := range m {
		switch t := v.(type) {
		case string:
			m[k] = truncateStr(t, maxStr)
		case []any:
			shrunk := make([]any, len(t))
			for i, x := range t {
				shrunk[i] = truncateAny(x, maxStr)
			}
			m[k] = shrunk
		}
	}
}

// ===== PER-SMELL PROJECTIONS =====

// Compact projects raw evidence for one smell id into a bounded object.
// Unknown ids fall back to a shallow bound over all top-level fields; nil or
// empty evidence compacts to an empty object. Compact never fails on an
// unrecognized shape.
func Compact(id smell.ID, ev map[string]any, lim Limits) map[string]any {
	if len(ev) == 0 {
		return map[string]any{}
	}

	switch id {
	case smell.DS:
		var groups []any
		for _, g := range asList(limitList(ev["duplicated_setup_groups"], lim.MaxListItems)) {
			m, ok := asMap(g)
			if !ok {
				continue
			}
			groups = append(groups, map[string]any{
				"group_id":          m["group_id"],
				"group_size":        m["group_size"],
				"group_tests":       getList(m, "group_tests", lim.MaxGroupTests),
				"prefix_statements": getList(m, "prefix_statements", lim.MaxPrefixStmts),
			})
		}
		return map[string]any{"duplicated_setup_groups": emptyAsList(groups)}

	case smell.TSES:
		var groups []any
		for _, g := range asList(limitList(ev["same_exception_scenario_groups"], lim.MaxListItems)) {
			m, ok := asMap(g)
			if !ok {
				continue
			}
			groups = append(groups, map[string]any{
				"group_id":       m["group_id"],
				"group_size":     m["group_size"],
				"exception_type": m["exception_type"],
				"group_tests":    getList(m, "group_tests", lim.MaxGroupTests),
				"rule":           truncateAny(m["rule"], lim.MaxStrLen),
			})
		}
		return map[string]any{"same_exception_scenario_groups": emptyAsList(groups)}

	case smell.TSVM:
		var groups []any
		for _, g := range asList(limitList(ev["same_void_method_groups"], lim.MaxListItems)) {
			m, ok := asMap(g)
			if !ok {
				continue
			}
			groups = append(groups, map[string]any{
				"group_id":         m["group_id"],
				"void_method_name": m["void_method_name"],
				"group_size":       m["group_size"],
				"group_tests":      getList(m, "group_tests", lim.MaxGroupTests),
			})
		}
		return map[string]any{"same_void_method_groups": emptyAsList(groups)}

	case smell.NARV:
		var calls []any
		for _, c := range asList(limitList(ev["unasserted_return_calls"], lim.MaxListItems)) {
			calls = append(calls, compactCall(c, lim.MaxStrLen))
		}
		return map[string]any{"unasserted_return_calls": emptyAsList(calls)}

	case smell.NASE:
		var items []any
		for _, it := range asList(limitList(ev["unverified_side_effect_calls"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			items = append(items, map[string]any{
				"act_call":         compactCall(m["act_call"], lim.MaxStrLen),
				"called_method":    m["called_method"],
				"assignment_count": m["assignment_count"],
				"modified_fields":  getList(m, "modified_fields", lim.MaxListItems),
			})
		}
		return map[string]any{"unverified_side_effect_calls": emptyAsList(items)}

	case smell.ARPM:
		var items []any
		for _, it := range asList(limitList(ev["arpm_assertions"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			items = append(items, map[string]any{
				"assertion_call":             compactCall(m["assertion_call"], lim.MaxStrLen),
				"cut_call":                   compactCall(m["cut_call"], lim.MaxStrLen),
				"cut_declaring_type":         m["cut_declaring_type"],
				"ancestor_declaring_type":    m["ancestor_declaring_type"],
				"reason":                     m["reason"],
				"return_name":                m["return_name"],
				"return_changed_during_test": m["return_changed_during_test"],
			})
		}
		return map[string]any{"arpm_assertions": emptyAsList(items)}

	case smell.TOFA:
		var calls []any
		for _, c := range asList(limitList(ev["calls"], lim.MaxListItems)) {
			m, ok := asMap(c)
			if !ok {
				continue
			}
			cc := compactCall(m, lim.MaxStrLen)
			if cm, ok := asMap(cc); ok {
				if kind, has := m["kind"]; has {
					cm["kind"] = kind
				}
			}
			calls = append(calls, cc)
		}
		return map[string]any{
			"non_assert_call_count": ev["non_assert_call_count"],
			"calls":                 emptyAsList(calls),
		}

	case smell.AC:
		var items []any
		for _, it := range asList(limitList(ev["constant_assertions"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			entry := map[string]any{
				"assert":        truncateAny(m["assert"], lim.MaxStrLen),
				"assert_method": m["assert_method"],
				"constant":      truncateAny(m["constant"], lim.MaxStrLen),
			}
			for k, v := range compactRange(m) {
				entry[k] = v
			}
			items = append(items, entry)
		}
		return map[string]any{"constant_assertions": emptyAsList(items)}

	case smell.NNA:
		var items []any
		for _, it := range asList(limitList(ev["redundant_not_null_assertions"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			entry := map[string]any{
				"assert":                         truncateAny(m["assert"], lim.MaxStrLen),
				"variable":                       m["variable"],
				"redundant_because_new_object":   m["redundant_because_new_object"],
				"redundant_because_other_assert": m["redundant_because_other_assert"],
			}
			for k, v := range compactRange(m) {
				entry[k] = v
			}
			items = append(items, entry)
		}
		return map[string]any{"redundant_not_null_assertions": emptyAsList(items)}

	case smell.ENET:
		out := map[string]any{"first_statement_is_try": ev["first_statement_is_try"]}

		var tcs []any
		for _, it := range asList(limitList(ev["try_catch_blocks"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			entry := map[string]any{"catch_types": getList(m, "catch_types", lim.MaxListItems)}
			for k, v := range compactRange(m) {
				entry[k] = v
			}
			tcs = append(tcs, entry)
		}
		out["try_catch_blocks"] = emptyAsList(tcs)

		var sites []any
		for _, s := range asList(limitList(ev["null_argument_sites"], lim.MaxListItems)) {
			m, ok := asMap(s)
			if !ok {
				continue
			}
			entry := map[string]any{
				"kind":      m["kind"],
				"arg_index": m["arg_index"],
				"arg_expr":  truncateAny(m["arg_expr"], lim.MaxStrLen),
				"in_try":    m["in_try"],
			}
			switch m["kind"] {
			case "method_call":
				entry["call"] = compactCall(m["call"], lim.MaxStrLen)
			case "constructor_call":
				entry["constructor"] = compactCtor(m["constructor"], lim.MaxStrLen)
			}
			sites = append(sites, entry)
		}
		out["null_argument_sites"] = emptyAsList(sites)
		return out

	case smell.EDED:
		var items []any
		for _, it := range asList(limitList(ev["external_dependency_exceptions"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			items = append(items, map[string]any{
				"matched_exception_type": m["matched_exception_type"],
				"catch_types":            getList(m, "catch_types", lim.MaxListItems),
				"try_range":              m["try_range"],
			})
		}
		return map[string]any{"external_dependency_exceptions": emptyAsList(items)}

	case smell.EDIS:
		var items []any
		for _, it := range asList(limitList(ev["incomplete_setup_evidence"], lim.MaxListItems)) {
			m, ok := asMap(it)
			if !ok {
				continue
			}
			items = append(items, map[string]any{
				"trigger_call":                 compactCall(m["trigger_call"], lim.MaxStrLen),
				"called_method":                m["called_method"],
				"unmodified_variable":          m["unmodified_variable"],
				"declared_but_not_initialized": getList(m, "declared_but_not_initialized", lim.MaxListItems),
				"modified_variables":           getList(m, "modified_variables", lim.MaxListItems),
			})
		}
		return map[string]any{"incomplete_setup_evidence": emptyAsList(items)}

	case smell.OIMT:
		out := map[string]any{}
		if v, ok := ev["rules_triggered"]; ok {
			out["rules_triggered"] = limitList(v, lim.MaxListItems)
		}
		if v, ok := ev["shared_init_assert_keys"]; ok {
			out["shared_init_assert_keys"] = limitList(v, lim.MaxListItems)
		}
		if ocs := compactEach(ev["object_creations"], lim, compactCtor); len(ocs) > 0 {
			out["object_creations"] = ocs
		}
		if acs := compactEach(ev["assert_calls"], lim, compactCall); len(acs) > 0 {
			out["assert_calls"] = acs
		}
		if ncs := compactEach(ev["nontrivial_calls"], lim, compactCall); len(ncs) > 0 {
			out["nontrivial_calls"] = ncs
		}
		return out
	}

	// Unknown or not yet mapped smell: shallow bound over all top-level
	// fields.
	shallow := map[string]any{}
	for k, v := range ev {
		if _, isList := v.([]any); isList {
			shallow[k] = limitList(v, lim.MaxListItems)
		} else {
			shallow[k] = truncateAny(v, lim.MaxStrLen)
		}
	}
	return shallow
}

func compactEach(v any, lim Limits, f func(any, int) any) []any {
	var out []any
	for _, it := range asList(limitList(v, lim.MaxListItems)) {
		out = append(out, f(it, lim.MaxStrLen))
	}
	return out
}

func emptyAsList(l []any) []any {
	if l == nil {
		return []any{}
	}
	return l
}

// ===== RENDERING =====

// ForPrompt renders the compacted evidence and plan for one smell occurrence.
func ForPrompt(id smell.ID, ev map[string]any, lim Limits) Render {
	compact := Compact(id, ev, lim)
	return Render{ID: id, Compact: compact, Plan: planFor(id, compact)}
}

// Markdown emits the prompt-ready block: compact JSON plus the plan. HTML
// escaping is off so Java expressions like "a < b" survive verbatim.
func (r Render) Markdown() string {
	var js bytes.Buffer
	enc := json.NewEncoder(&js)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Compact); err != nil {
		js.Reset()
		js.WriteString("{}")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s evidence (Smelly, compact)\n", r.ID)
	fmt.Fprintf(&b, "```json\n%s\n```\n", strings.TrimRight(js.String(), "\n"))
	fmt.Fprintf(&b, "Evidence-driven repair plan template:\n%s\n", r.Plan)
	return b.String()
}
