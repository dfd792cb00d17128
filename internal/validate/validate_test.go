package validate

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const minimalCase = `{
  "id": "c1",
  "specialty": "cardiology",
  "difficulty": 2,
  "meta": {"title": "Chest pain"},
  "intro": {"chief_complaint": "Chest pain"},
  "actions": {
    "history": [{"id": "onset", "text": "Ask onset"}],
    "exam": [{"id": "cardiac", "text": "Cardiac exam"}],
    "tests": []
  },
  "solution": {"dx_primary": "Inferior STEMI"}
}`

const fullCase = `{
  "id": "mock-cardiology-1700000000000",
  "specialty": "cardiology",
  "difficulty": 3,
  "meta": {"title": "Crushing chest pain", "authors": ["A. Author"], "est_time_min": 12},
  "intro": {
    "demographics": {"age": 58, "sex": "M", "occupation": "driver"},
    "chief_complaint": "Chest pain",
    "vitals": {"hr": 104, "bp": "92/58", "rr": 22, "temp": 36.8, "spo2": 92, "pain": "8/10"},
    "context": "Pain started 45 minutes ago."
  },
  "actions": {
    "history": [
      {"id": "onset", "text": "Ask onset", "reveal_text": "Sudden.", "score": {"learn": 2}},
      {"id": "risk", "text": "Ask risk factors", "cost": 1}
    ],
    "exam": [{"id": "cardiac_exam", "text": "Cardiac exam", "reveal_image": "/img/exam.png"}],
    "tests": [
      {"id": "ecg", "text": "12-lead ECG", "reveal_image": "https://example.org/ecg.png", "score": {"learn": 4, "must_have": true}},
      {"id": "cxr", "text": "Chest X-ray", "score": {"learn": -1, "must_have": false}}
    ]
  },
  "solution": {
    "dx_primary": "Inferior STEMI",
    "ddx": ["Pulmonary embolism", "Aortic dissection"],
    "management_first": ["Aspirin", "Activate cath lab"],
    "red_flags": ["Hypotension"],
    "teaching_points": ["ECG localization"],
    "references": ["ESC STEMI guidelines"]
  },
  "references": ["Case adapted from teaching file"]
}`

// mutate decodes minimalCase, applies fn and re-encodes it.
func mutate(t *testing.T, fn func(m map[string]any)) []byte {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(minimalCase), &m); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	fn(m)
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

func obj(m map[string]any, key string) map[string]any {
	return m[key].(map[string]any)
}

func history(m map[string]any) []any {
	return obj(m, "actions")["history"].([]any)
}

func actionsN(prefix string, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"id": prefix + strings.Repeat("x", i+1), "text": "do"}
	}
	return out
}

func TestParseValid(t *testing.T) {
	for _, tt := range []struct {
		name string
		data string
	}{
		{"minimal", minimalCase},
		{"full", fullCase},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if c.Solution.DxPrimary != "Inferior STEMI" {
				t.Errorf("dx_primary = %q", c.Solution.DxPrimary)
			}
		})
	}
}

func TestParseFullFields(t *testing.T) {
	c, err := Parse([]byte(fullCase))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Meta.EstTimeMin == nil || *c.Meta.EstTimeMin != 12 {
		t.Errorf("est_time_min = %v, want 12", c.Meta.EstTimeMin)
	}
	if got := c.Intro.Vitals["pain"]; got != "8/10" {
		t.Errorf("extra vitals key = %v, want kept", got)
	}
	if got := c.Intro.Demographics["occupation"]; got != "driver" {
		t.Errorf("extra demographics key = %v, want kept", got)
	}
	ecg := c.Actions.Tests[0]
	if ecg.Score == nil || !ecg.Score.MustHave || ecg.Score.Learn == nil || *ecg.Score.Learn != 4 {
		t.Errorf("ecg score = %+v", ecg.Score)
	}
	if c.Actions.History[1].Cost == nil || *c.Actions.History[1].Cost != 1 {
		t.Errorf("risk cost = %v, want 1", c.Actions.History[1].Cost)
	}
	if len(c.References) != 1 {
		t.Errorf("references = %v", c.References)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantPath string
		wantRule Rule
	}{
		{
			name:     "syntax",
			data:     []byte(`{"id":`),
			wantRule: RuleSyntax,
		},
		{
			name:     "trailing data",
			data:     []byte(minimalCase + `{}`),
			wantRule: RuleSyntax,
		},
		{
			name:     "not an object",
			data:     []byte(`[1,2]`),
			wantRule: RuleType,
		},
		{
			name:     "missing id",
			data:     mutate(t, func(m map[string]any) { delete(m, "id") }),
			wantPath: "id",
			wantRule: RuleRequired,
		},
		{
			name:     "empty id",
			data:     mutate(t, func(m map[string]any) { m["id"] = "" }),
			wantPath: "id",
			wantRule: RuleMinLength,
		},
		{
			name:     "specialty too short",
			data:     mutate(t, func(m map[string]any) { m["specialty"] = "x" }),
			wantPath: "specialty",
			wantRule: RuleMinLength,
		},
		{
			name:     "difficulty out of enum",
			data:     mutate(t, func(m map[string]any) { m["difficulty"] = 4 }),
			wantPath: "difficulty",
			wantRule: RuleEnum,
		},
		{
			name:     "difficulty fractional",
			data:     mutate(t, func(m map[string]any) { m["difficulty"] = 1.5 }),
			wantPath: "difficulty",
			wantRule: RuleEnum,
		},
		{
			name:     "difficulty as string",
			data:     mutate(t, func(m map[string]any) { m["difficulty"] = "2" }),
			wantPath: "difficulty",
			wantRule: RuleType,
		},
		{
			name:     "unknown top-level key",
			data:     mutate(t, func(m map[string]any) { m["extra"] = true }),
			wantPath: "extra",
			wantRule: RuleUnknownKey,
		},
		{
			name:     "unknown meta key",
			data:     mutate(t, func(m map[string]any) { obj(m, "meta")["subtitle"] = "x" }),
			wantPath: "meta.subtitle",
			wantRule: RuleUnknownKey,
		},
		{
			name:     "missing meta",
			data:     mutate(t, func(m map[string]any) { delete(m, "meta") }),
			wantPath: "meta",
			wantRule: RuleRequired,
		},
		{
			name:     "title too short",
			data:     mutate(t, func(m map[string]any) { obj(m, "meta")["title"] = "ab" }),
			wantPath: "meta.title",
			wantRule: RuleMinLength,
		},
		{
			name: "too many authors",
			data: mutate(t, func(m map[string]any) {
				obj(m, "meta")["authors"] = []any{"a", "b", "c", "d", "e", "f"}
			}),
			wantPath: "meta.authors",
			wantRule: RuleMaxItems,
		},
		{
			name:     "est time too long",
			data:     mutate(t, func(m map[string]any) { obj(m, "meta")["est_time_min"] = 31 }),
			wantPath: "meta.est_time_min",
			wantRule: RuleMax,
		},
		{
			name:     "chief complaint missing",
			data:     mutate(t, func(m map[string]any) { delete(obj(m, "intro"), "chief_complaint") }),
			wantPath: "intro.chief_complaint",
			wantRule: RuleRequired,
		},
		{
			name:     "context too long",
			data:     mutate(t, func(m map[string]any) { obj(m, "intro")["context"] = strings.Repeat("a", 241) }),
			wantPath: "intro.context",
			wantRule: RuleMaxLength,
		},
		{
			name:     "age out of range",
			data:     mutate(t, func(m map[string]any) { obj(m, "intro")["demographics"] = map[string]any{"age": 130} }),
			wantPath: "intro.demographics.age",
			wantRule: RuleMax,
		},
		{
			name:     "heart rate too low",
			data:     mutate(t, func(m map[string]any) { obj(m, "intro")["vitals"] = map[string]any{"hr": 10} }),
			wantPath: "intro.vitals.hr",
			wantRule: RuleMin,
		},
		{
			name:     "heart rate fractional",
			data:     mutate(t, func(m map[string]any) { obj(m, "intro")["vitals"] = map[string]any{"hr": 80.5} }),
			wantPath: "intro.vitals.hr",
			wantRule: RuleType,
		},
		{
			name:     "blood pressure as number",
			data:     mutate(t, func(m map[string]any) { obj(m, "intro")["vitals"] = map[string]any{"bp": 120} }),
			wantPath: "intro.vitals.bp",
			wantRule: RuleType,
		},
		{
			name:     "history empty",
			data:     mutate(t, func(m map[string]any) { obj(m, "actions")["history"] = []any{} }),
			wantPath: "actions.history",
			wantRule: RuleMinItems,
		},
		{
			name:     "exam empty",
			data:     mutate(t, func(m map[string]any) { obj(m, "actions")["exam"] = []any{} }),
			wantPath: "actions.exam",
			wantRule: RuleMinItems,
		},
		{
			name:     "tests missing",
			data:     mutate(t, func(m map[string]any) { delete(obj(m, "actions"), "tests") }),
			wantPath: "actions.tests",
			wantRule: RuleRequired,
		},
		{
			name:     "too many history actions",
			data:     mutate(t, func(m map[string]any) { obj(m, "actions")["history"] = actionsN("h", 13) }),
			wantPath: "actions.history",
			wantRule: RuleMaxItems,
		},
		{
			name:     "action text missing",
			data:     mutate(t, func(m map[string]any) { delete(history(m)[0].(map[string]any), "text") }),
			wantPath: "actions.history[0].text",
			wantRule: RuleRequired,
		},
		{
			name:     "action text too long",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["text"] = strings.Repeat("a", 141) }),
			wantPath: "actions.history[0].text",
			wantRule: RuleMaxLength,
		},
		{
			name:     "action cost too high",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["cost"] = 6 }),
			wantPath: "actions.history[0].cost",
			wantRule: RuleMax,
		},
		{
			name:     "reveal image relative",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["reveal_image"] = "img/ecg.png" }),
			wantPath: "actions.history[0].reveal_image",
			wantRule: RuleFormat,
		},
		{
			name:     "reveal image empty",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["reveal_image"] = "" }),
			wantPath: "actions.history[0].reveal_image",
			wantRule: RuleFormat,
		},
		{
			name:     "learn below range",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["score"] = map[string]any{"learn": -6} }),
			wantPath: "actions.history[0].score.learn",
			wantRule: RuleMin,
		},
		{
			name:     "must_have not boolean",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["score"] = map[string]any{"must_have": "yes"} }),
			wantPath: "actions.history[0].score.must_have",
			wantRule: RuleType,
		},
		{
			name:     "unknown score key",
			data:     mutate(t, func(m map[string]any) { history(m)[0].(map[string]any)["score"] = map[string]any{"bonus": 1} }),
			wantPath: "actions.history[0].score.bonus",
			wantRule: RuleUnknownKey,
		},
		{
			name: "duplicate id across groups",
			data: mutate(t, func(m map[string]any) {
				obj(m, "actions")["tests"] = []any{map[string]any{"id": "onset", "text": "Repeat"}}
			}),
			wantPath: "actions.tests[0].id",
			wantRule: RuleDuplicateID,
		},
		{
			name:     "dx missing",
			data:     mutate(t, func(m map[string]any) { delete(obj(m, "solution"), "dx_primary") }),
			wantPath: "solution.dx_primary",
			wantRule: RuleRequired,
		},
		{
			name: "too many ddx",
			data: mutate(t, func(m map[string]any) {
				obj(m, "solution")["ddx"] = []any{"aa", "bb", "cc", "dd", "ee", "ff", "gg"}
			}),
			wantPath: "solution.ddx",
			wantRule: RuleMaxItems,
		},
		{
			name:     "ddx item too short",
			data:     mutate(t, func(m map[string]any) { obj(m, "solution")["ddx"] = []any{"a"} }),
			wantPath: "solution.ddx[0]",
			wantRule: RuleMinLength,
		},
		{
			name:     "ddx item not string",
			data:     mutate(t, func(m map[string]any) { obj(m, "solution")["ddx"] = []any{7} }),
			wantPath: "solution.ddx[0]",
			wantRule: RuleType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("error %T is not *Error", err)
			}
			if verr.Rule != tt.wantRule {
				t.Errorf("rule = %q, want %q (%v)", verr.Rule, tt.wantRule, err)
			}
			if tt.wantPath != "" && verr.Path != tt.wantPath {
				t.Errorf("path = %q, want %q", verr.Path, tt.wantPath)
			}
		})
	}
}

func TestGeneratorLimits(t *testing.T) {
	noExam := mutate(t, func(m map[string]any) { obj(m, "actions")["exam"] = []any{} })
	if _, err := ParseWith(noExam, GeneratorLimits); err != nil {
		t.Errorf("generator profile should accept empty exam: %v", err)
	}
	if _, err := ParseWith(noExam, ClientLimits); err == nil {
		t.Error("client profile should reject empty exam")
	}

	elevenTests := mutate(t, func(m map[string]any) { obj(m, "actions")["tests"] = actionsN("t", 11) })
	if _, err := ParseWith(elevenTests, GeneratorLimits); err == nil {
		t.Error("generator profile should reject 11 tests")
	}
	if _, err := ParseWith(elevenTests, ClientLimits); err != nil {
		t.Errorf("client profile should accept 11 tests: %v", err)
	}
}

func TestParseDoesNotModifyInput(t *testing.T) {
	var v any
	if err := json.Unmarshal([]byte(fullCase), &v); err != nil {
		t.Fatal(err)
	}
	before, _ := json.Marshal(v)
	if _, err := Check(v, ClientLimits); err != nil {
		t.Fatalf("Check: %v", err)
	}
	after, _ := json.Marshal(v)
	if string(before) != string(after) {
		t.Error("Check modified its input")
	}
}

func TestRoundTrip(t *testing.T) {
	for _, data := range []string{minimalCase, fullCase} {
		first, err := Parse([]byte(data))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		encoded, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		second, err := Parse(encoded)
		if err != nil {
			t.Fatalf("Parse round trip: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip changed the case:\nfirst:  %+v\nsecond: %+v", first, second)
		}
	}
}

func TestEmptyListsNormalized(t *testing.T) {
	data := mutate(t, func(m map[string]any) {
		obj(m, "solution")["ddx"] = []any{}
		obj(m, "intro")["vitals"] = map[string]any{}
	})
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Solution.DDx != nil {
		t.Errorf("ddx = %#v, want nil", c.Solution.DDx)
	}
	if c.Intro.Vitals != nil {
		t.Errorf("vitals = %#v, want nil", c.Intro.Vitals)
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Path: "meta.title", Rule: RuleRequired, Msg: "is required"}
	if got := err.Error(); got != "meta.title: is required" {
		t.Errorf("Error() = %q", got)
	}
	err = &Error{Rule: RuleSyntax, Msg: "invalid JSON"}
	if got := err.Error(); got != "invalid JSON" {
		t.Errorf("Error() = %q", got)
	}
}
