package smell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ===== DETECTOR REPORT =====

// Instance is one detected occurrence of a smell inside a test class.
// Evidence is smell-specific structured JSON and may be nil.
type Instance struct {
	TestMethod string
	Evidence   map[string]any
}

// ClassSmells holds the detections for one test key, keyed by detector
// label. Label order matches the report file.
type ClassSmells struct {
	Labels  []string
	ByLabel map[string][]Instance
}

// Report maps test keys ("<project>.<ClassUnderTest>") to their detections.
// Key order matches the report file: the run processes methods in the
// report's insertion order, so decoding goes through the token stream
// instead of a plain map.
type Report struct {
	Keys  []string
	ByKey map[string]*ClassSmells
}

// LoadReport reads and normalizes a detector JSON report.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read smell report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse smell report %s: %w", path, err)
	}
	return &r, nil
}

func (r *Report) UnmarshalJSON(data []byte) error {
	r.Keys = nil
	r.ByKey = make(map[string]*ClassSmells)
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return err
		}
		cs := &ClassSmells{}
		if err := dec.Decode(cs); err != nil {
			return fmt.Errorf("test key %q: %w", key, err)
		}
		if _, seen := r.ByKey[key]; !seen {
			r.Keys = append(r.Keys, key)
		}
		r.ByKey[key] = cs
	}
	return expectDelim(dec, '}')
}

func (cs *ClassSmells) UnmarshalJSON(data []byte) error {
	cs.Labels = nil
	cs.ByLabel = make(map[string][]Instance)
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		label, err := stringToken(dec)
		if err != nil {
			return err
		}
		var items []json.RawMessage
		if err := dec.Decode(&items); err != nil {
			return fmt.Errorf("label %q: %w", label, err)
		}
		instances := make([]Instance, 0, len(items))
		for _, raw := range items {
			instances = append(instances, normalizeInstance(raw))
		}
		if _, seen := cs.ByLabel[label]; !seen {
			cs.Labels = append(cs.Labels, label)
		}
		cs.ByLabel[label] = instances
	}
	return expectDelim(dec, '}')
}

// normalizeInstance accepts the detector's two instance encodings: a bare
// method-name string, or an object carrying the method name under
// test_method/method/name plus either an explicit evidence object or loose
// evidence keys at the top level.
func normalizeInstance(raw json.RawMessage) Instance {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Instance{TestMethod: s}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		tm := firstString(obj, "test_method", "method", "name")
		if tm == "" {
			tm = strings.TrimSpace(string(raw))
		}
		var ev map[string]any
		if direct, ok := obj["evidence"].(map[string]any); ok {
			ev = direct
		} else {
			left := make(map[string]any)
			for k, v := range obj {
				switch k {
				case "test_method", "method", "name":
				default:
					left[k] = v
				}
			}
			if len(left) > 0 {
				ev = left
			}
		}
		return Instance{TestMethod: tm, Evidence: ev}
	}

	return Instance{TestMethod: strings.TrimSpace(string(raw))}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q in smell report, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key in smell report, got %v", tok)
	}
	return s, nil
}

// ===== PER-METHOD COLLECTION =====

// CollectMethodSmells flattens a class report into per-method smell id lists
// and per-method evidence. Methods come back in first-seen order, each
// method's id list is deduplicated in label order, and for a given
// (method, id) the first non-empty evidence wins. Labels the catalog does
// not know are skipped.
func CollectMethodSmells(cs *ClassSmells, cat Catalog) (methods []string, smellsFor map[string][]ID, evidenceFor map[string]map[ID]map[string]any) {
	smellsFor = make(map[string][]ID)
	evidenceFor = make(map[string]map[ID]map[string]any)

	for _, label := range cs.Labels {
		id, ok := cat.IDFor(label)
		if !ok {
			continue
		}
		for _, inst := range cs.ByLabel[label] {
			tm := inst.TestMethod
			if _, seen := smellsFor[tm]; !seen {
				methods = append(methods, tm)
				smellsFor[tm] = nil
			}
			if !containsID(smellsFor[tm], id) {
				smellsFor[tm] = append(smellsFor[tm], id)
			}
			if len(inst.Evidence) == 0 {
				continue
			}
			if evidenceFor[tm] == nil {
				evidenceFor[tm] = make(map[ID]map[string]any)
			}
			if _, have := evidenceFor[tm][id]; !have {
				evidenceFor[tm][id] = inst.Evidence
			}
		}
	}
	return methods, smellsFor, evidenceFor
}

func containsID(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
