// Package validate turns untrusted JSON into a well-formed model.Case.
//
// Validation is pure: the input is never modified and the first violated
// constraint is reported as an *Error. Structural objects (case, meta, intro,
// actions, action, score, solution) reject unknown keys; demographics and
// vitals are open and keep any extra keys.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/pavelanni/casesim/internal/model"
)

// Rule names the kind of constraint that failed.
type Rule string

const (
	RuleSyntax      Rule = "syntax"
	RuleRequired    Rule = "required"
	RuleType        Rule = "type"
	RuleMinLength   Rule = "min_length"
	RuleMaxLength   Rule = "max_length"
	RuleMinItems    Rule = "min_items"
	RuleMaxItems    Rule = "max_items"
	RuleMin         Rule = "min"
	RuleMax         Rule = "max"
	RuleEnum        Rule = "enum"
	RuleUnknownKey  Rule = "unknown_key"
	RuleFormat      Rule = "format"
	RuleDuplicateID Rule = "duplicate_id"
)

// Error identifies the first violated constraint.
type Error struct {
	Path string // dotted JSON path, e.g. actions.history[0].text
	Rule Rule
	Msg  string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return e.Path + ": " + e.Msg
}

func fail(path string, rule Rule, format string, args ...any) error {
	return &Error{Path: path, Rule: rule, Msg: fmt.Sprintf(format, args...)}
}

// Limits are the per-group action count bounds.
type Limits struct {
	HistoryMin, HistoryMax int
	ExamMin, ExamMax       int
	TestsMin, TestsMax     int
}

var (
	// ClientLimits apply wherever a case enters the application.
	ClientLimits = Limits{HistoryMin: 1, HistoryMax: 12, ExamMin: 1, ExamMax: 12, TestsMin: 0, TestsMax: 12}
	// GeneratorLimits apply to raw LLM output before it is clamped.
	GeneratorLimits = Limits{HistoryMin: 1, HistoryMax: 10, ExamMin: 0, ExamMax: 10, TestsMin: 0, TestsMax: 10}
)

const noMax = -1

// Parse decodes data and validates it with ClientLimits.
func Parse(data []byte) (model.Case, error) {
	return ParseWith(data, ClientLimits)
}

// ParseWith decodes data and validates it with the given limits.
func ParseWith(data []byte, lim Limits) (model.Case, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return model.Case{}, fail("", RuleSyntax, "invalid JSON: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return model.Case{}, fail("", RuleSyntax, "invalid JSON: trailing data after top-level value")
	}
	return Check(v, lim)
}

// Check validates an already decoded JSON value (maps, slices, strings,
// json.Number or float64, bool, nil).
func Check(v any, lim Limits) (model.Case, error) {
	m, err := object("", v)
	if err != nil {
		return model.Case{}, err
	}
	if err := closed("", m, "id", "specialty", "difficulty", "meta", "intro", "actions", "solution", "references"); err != nil {
		return model.Case{}, err
	}
	f := fields{m: m}

	var c model.Case
	if c.ID, err = f.str("id", true, 1, 64); err != nil {
		return model.Case{}, err
	}
	if c.Specialty, err = f.str("specialty", true, 2, 40); err != nil {
		return model.Case{}, err
	}
	if c.Difficulty, err = difficulty(f); err != nil {
		return model.Case{}, err
	}
	if c.Meta, err = meta(f.child("meta")); err != nil {
		return model.Case{}, err
	}
	if c.Intro, err = intro(f.child("intro")); err != nil {
		return model.Case{}, err
	}
	if c.Actions, err = actions(f.child("actions"), lim); err != nil {
		return model.Case{}, err
	}
	if c.Solution, err = solution(f.child("solution")); err != nil {
		return model.Case{}, err
	}
	if c.References, err = f.strList("references", 8, 2, 120); err != nil {
		return model.Case{}, err
	}
	return c, nil
}

func difficulty(f fields) (model.Difficulty, error) {
	p := f.path("difficulty")
	v, ok := f.m["difficulty"]
	if !ok {
		return 0, fail(p, RuleRequired, "is required")
	}
	n, ok := number(v)
	if !ok {
		return 0, fail(p, RuleType, "must be a number")
	}
	d := model.Difficulty(n)
	if float64(d) != n || !d.Valid() {
		return 0, fail(p, RuleEnum, "must be one of 1, 2, 3")
	}
	return d, nil
}

// child is a required nested object.
type child struct {
	m    map[string]any
	path string
	err  error
}

func meta(ch child) (model.Meta, error) {
	if ch.err != nil {
		return model.Meta{}, ch.err
	}
	if err := closed(ch.path, ch.m, "title", "authors", "est_time_min"); err != nil {
		return model.Meta{}, err
	}
	f := fields{m: ch.m, base: ch.path}
	var out model.Meta
	var err error
	if out.Title, err = f.str("title", true, 3, 120); err != nil {
		return out, err
	}
	if out.Authors, err = f.strList("authors", 5, 1, noMax); err != nil {
		return out, err
	}
	if out.EstTimeMin, err = f.intPtr("est_time_min", 1, 30); err != nil {
		return out, err
	}
	return out, nil
}

func intro(ch child) (model.Intro, error) {
	if ch.err != nil {
		return model.Intro{}, ch.err
	}
	if err := closed(ch.path, ch.m, "demographics", "chief_complaint", "vitals", "context"); err != nil {
		return model.Intro{}, err
	}
	f := fields{m: ch.m, base: ch.path}
	var out model.Intro
	var err error
	if out.Demographics, err = f.open("demographics", demographicsRules); err != nil {
		return out, err
	}
	if out.ChiefComplaint, err = f.str("chief_complaint", true, 2, 120); err != nil {
		return out, err
	}
	if out.Vitals, err = f.open("vitals", vitalsRules); err != nil {
		return out, err
	}
	if out.Context, err = f.str("context", false, 0, 240); err != nil {
		return out, err
	}
	return out, nil
}

func actions(ch child, lim Limits) (model.Actions, error) {
	if ch.err != nil {
		return model.Actions{}, ch.err
	}
	if err := closed(ch.path, ch.m, "history", "exam", "tests"); err != nil {
		return model.Actions{}, err
	}
	f := fields{m: ch.m, base: ch.path}
	seen := make(map[string]string)
	var out model.Actions
	var err error
	if out.History, err = actionGroup(f, "history", lim.HistoryMin, lim.HistoryMax, seen); err != nil {
		return out, err
	}
	if out.Exam, err = actionGroup(f, "exam", lim.ExamMin, lim.ExamMax, seen); err != nil {
		return out, err
	}
	if out.Tests, err = actionGroup(f, "tests", lim.TestsMin, lim.TestsMax, seen); err != nil {
		return out, err
	}
	return out, nil
}

func actionGroup(f fields, key string, minItems, maxItems int, seen map[string]string) ([]model.Action, error) {
	p := f.path(key)
	v, ok := f.m[key]
	if !ok {
		return nil, fail(p, RuleRequired, "is required")
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fail(p, RuleType, "must be an array")
	}
	if len(items) < minItems {
		return nil, fail(p, RuleMinItems, "must have at least %d items", minItems)
	}
	if len(items) > maxItems {
		return nil, fail(p, RuleMaxItems, "must have at most %d items", maxItems)
	}
	out := make([]model.Action, 0, len(items))
	for i, item := range items {
		ip := fmt.Sprintf("%s[%d]", p, i)
		a, err := action(ip, item)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[a.ID]; dup {
			return nil, fail(ip+".id", RuleDuplicateID, "id %q already used at %s", a.ID, prev)
		}
		seen[a.ID] = ip
		out = append(out, a)
	}
	return out, nil
}

func action(p string, v any) (model.Action, error) {
	m, err := object(p, v)
	if err != nil {
		return model.Action{}, err
	}
	if err := closed(p, m, "id", "text", "cost", "reveal_text", "reveal_image", "score"); err != nil {
		return model.Action{}, err
	}
	f := fields{m: m, base: p}
	var a model.Action
	if a.ID, err = f.str("id", true, 1, noMax); err != nil {
		return a, err
	}
	if a.Text, err = f.str("text", true, 1, 140); err != nil {
		return a, err
	}
	if a.Cost, err = f.intPtr("cost", 0, 5); err != nil {
		return a, err
	}
	if a.RevealText, err = f.str("reveal_text", false, 0, 400); err != nil {
		return a, err
	}
	if a.RevealImage, err = f.str("reveal_image", false, 0, noMax); err != nil {
		return a, err
	}
	if _, present := m["reveal_image"]; present && !urlOrPath(a.RevealImage) {
		return a, fail(f.path("reveal_image"), RuleFormat, "must be an absolute URL or start with /")
	}
	if sv, ok := m["score"]; ok {
		sp := f.path("score")
		sm, err := object(sp, sv)
		if err != nil {
			return a, err
		}
		if err := closed(sp, sm, "learn", "must_have"); err != nil {
			return a, err
		}
		sf := fields{m: sm, base: sp}
		score := &model.ActionScore{}
		if score.Learn, err = sf.intPtr("learn", -5, 10); err != nil {
			return a, err
		}
		if mv, ok := sm["must_have"]; ok {
			b, ok := mv.(bool)
			if !ok {
				return a, fail(sf.path("must_have"), RuleType, "must be a boolean")
			}
			score.MustHave = b
		}
		a.Score = score
	}
	return a, nil
}

func solution(ch child) (model.Solution, error) {
	if ch.err != nil {
		return model.Solution{}, ch.err
	}
	if err := closed(ch.path, ch.m, "dx_primary", "ddx", "management_first", "red_flags", "teaching_points", "references"); err != nil {
		return model.Solution{}, err
	}
	f := fields{m: ch.m, base: ch.path}
	var out model.Solution
	var err error
	if out.DxPrimary, err = f.str("dx_primary", true, 2, 120); err != nil {
		return out, err
	}
	if out.DDx, err = f.strList("ddx", 6, 2, 120); err != nil {
		return out, err
	}
	if out.ManagementFirst, err = f.strList("management_first", 8, 2, 160); err != nil {
		return out, err
	}
	if out.RedFlags, err = f.strList("red_flags", 8, 2, 160); err != nil {
		return out, err
	}
	if out.TeachingPoints, err = f.strList("teaching_points", 8, 2, 160); err != nil {
		return out, err
	}
	if out.References, err = f.strList("references", 8, 2, 120); err != nil {
		return out, err
	}
	return out, nil
}

func urlOrPath(s string) bool {
	if strings.HasPrefix(s, "/") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && (u.Host != "" || u.Opaque != "")
}

func object(p string, v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fail(p, RuleType, "must be an object")
	}
	return m, nil
}

// closed rejects keys outside allowed. Keys are checked in sorted order so the
// reported violation is stable.
func closed(p string, m map[string]any, allowed ...string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			return fail(joinPath(p, k), RuleUnknownKey, "unexpected field %q", k)
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func isInteger(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
