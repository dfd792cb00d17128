package validate

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// fields reads typed values out of one decoded JSON object.
type fields struct {
	m    map[string]any
	base string
}

func (f fields) path(key string) string { return joinPath(f.base, key) }

func (f fields) child(key string) child {
	p := f.path(key)
	v, ok := f.m[key]
	if !ok {
		return child{path: p, err: fail(p, RuleRequired, "is required")}
	}
	m, err := object(p, v)
	return child{m: m, path: p, err: err}
}

func (f fields) str(key string, required bool, minLen, maxLen int) (string, error) {
	p := f.path(key)
	v, ok := f.m[key]
	if !ok {
		if required {
			return "", fail(p, RuleRequired, "is required")
		}
		return "", nil
	}
	return stringValue(p, v, minLen, maxLen)
}

func stringValue(p string, v any, minLen, maxLen int) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fail(p, RuleType, "must be a string")
	}
	n := utf8.RuneCountInString(s)
	if n < minLen {
		return "", fail(p, RuleMinLength, "must be at least %d characters", minLen)
	}
	if maxLen != noMax && n > maxLen {
		return "", fail(p, RuleMaxLength, "must be at most %d characters", maxLen)
	}
	return s, nil
}

// strList reads an optional array of strings. An empty array yields nil so
// that a validated case survives a marshal/parse round trip unchanged.
func (f fields) strList(key string, maxItems, minLen, maxLen int) ([]string, error) {
	p := f.path(key)
	v, ok := f.m[key]
	if !ok {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fail(p, RuleType, "must be an array")
	}
	if len(items) > maxItems {
		return nil, fail(p, RuleMaxItems, "must have at most %d items", maxItems)
	}
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := stringValue(fmt.Sprintf("%s[%d]", p, i), item, minLen, maxLen)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (f fields) intPtr(key string, lo, hi int) (*int, error) {
	p := f.path(key)
	v, ok := f.m[key]
	if !ok {
		return nil, nil
	}
	n, err := numberValue(p, v, float64(lo), float64(hi), true)
	if err != nil {
		return nil, err
	}
	i := int(n)
	return &i, nil
}

func numberValue(p string, v any, lo, hi float64, integer bool) (float64, error) {
	n, ok := number(v)
	if !ok {
		return 0, fail(p, RuleType, "must be a number")
	}
	if integer && !isInteger(n) {
		return 0, fail(p, RuleType, "must be an integer")
	}
	if n < lo {
		return 0, fail(p, RuleMin, "must be >= %v", lo)
	}
	if n > hi {
		return 0, fail(p, RuleMax, "must be <= %v", hi)
	}
	return n, nil
}

// openRule constrains one well-known key inside an open object.
type openRule struct {
	kind   string // "int", "number" or "string"
	lo, hi float64
	maxLen int
}

var demographicsRules = map[string]openRule{
	"age": {kind: "int", lo: 0, hi: 120},
	"sex": {kind: "string", maxLen: noMax},
}

var vitalsRules = map[string]openRule{
	"hr":   {kind: "int", lo: 20, hi: 250},
	"bp":   {kind: "string", maxLen: 20},
	"rr":   {kind: "int", lo: 5, hi: 80},
	"temp": {kind: "number", lo: 30, hi: 43},
	"spo2": {kind: "number", lo: 50, hi: 100},
}

// open reads an optional object that admits arbitrary extra keys. The result
// is a shallow copy; an empty object yields nil.
func (f fields) open(key string, rules map[string]openRule) (map[string]any, error) {
	p := f.path(key)
	v, ok := f.m[key]
	if !ok {
		return nil, nil
	}
	m, err := object(p, v)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{"age", "sex", "hr", "bp", "rr", "temp", "spo2"} {
		rule, known := rules[k]
		val, present := m[k]
		if !known || !present {
			continue
		}
		kp := joinPath(p, k)
		switch rule.kind {
		case "int":
			_, err = numberValue(kp, val, rule.lo, rule.hi, true)
		case "number":
			_, err = numberValue(kp, val, rule.lo, rule.hi, false)
		case "string":
			_, err = stringValue(kp, val, 0, rule.maxLen)
		}
		if err != nil {
			return nil, err
		}
	}
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = normalize(val)
	}
	return out, nil
}

// normalize turns float64 numbers into json.Number so values decoded either
// way compare equal after a round trip.
func normalize(v any) any {
	switch t := v.(type) {
	case float64:
		return json.Number(fmt.Sprint(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
