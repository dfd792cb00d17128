package generate

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/casesim/internal/model"
)

const defaultSpecialty = "general"

// Mock builds the canned inferior STEMI case. Any specialty and difficulty
// yield a case that passes validation: the specialty is normalized to 2-40
// characters and an out-of-range difficulty becomes medium.
func Mock(specialty string, difficulty model.Difficulty, now time.Time) model.Case {
	specialty = NormalizeSpecialty(specialty)
	if !difficulty.Valid() {
		difficulty = model.DifficultyMedium
	}
	return model.Case{
		ID:         fmt.Sprintf("mock-%s-%d", specialty, now.UnixMilli()),
		Specialty:  specialty,
		Difficulty: difficulty,
		Meta:       model.Meta{Title: "Mock " + capitalize(specialty) + " Case"},
		Intro: model.Intro{
			Demographics:   map[string]any{"age": 58, "sex": "M"},
			ChiefComplaint: "Chest pain",
			Vitals:         map[string]any{"hr": 104, "bp": "92/58", "rr": 22, "temp": 36.8, "spo2": 92},
			Context:        "Pain started 45 minutes ago while walking.",
		},
		Actions: model.Actions{
			History: []model.Action{
				{ID: "onset", Text: "Ask onset & triggers", RevealText: "Sudden onset on exertion; nausea present.", Score: learn(2, false)},
				{ID: "risk", Text: "Ask risk factors", RevealText: "Smoker, HTN, HLD.", Score: learn(2, false)},
			},
			Exam: []model.Action{
				{ID: "cardiac_exam", Text: "Focused cardiac exam", RevealText: "Diaphoretic, S3, cool extremities", Score: learn(1, false)},
			},
			Tests: []model.Action{
				{ID: "ecg", Text: "12-lead ECG", RevealText: "ST elevations II, III, aVF; reciprocal I, aVL", Score: learn(4, true)},
				{ID: "troponin", Text: "Troponin I", RevealText: "> 100x ULN", Score: learn(2, false)},
				{ID: "cxr", Text: "Chest X-ray", RevealText: "Mild congestion", Score: learn(-1, false)},
			},
		},
		Solution: model.Solution{
			DxPrimary:       "Inferior STEMI",
			DDx:             []string{"Pulmonary embolism", "Aortic dissection", "GERD"},
			ManagementFirst: []string{"Activate cath lab (PCI)", "Aspirin 325 mg chew + P2Y12", "Heparin per protocol"},
			RedFlags:        []string{"Hypotension"},
			TeachingPoints:  []string{"ECG localization for inferior MI", "Door-to-balloon targets"},
		},
	}
}

// NormalizeSpecialty lowercases and trims s and cuts it to forty characters,
// falling back to "general" when what remains is shorter than two.
func NormalizeSpecialty(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if r := []rune(s); len(r) > 40 {
		s = strings.TrimSpace(string(r[:40]))
	}
	if utf8.RuneCountInString(s) < 2 {
		return defaultSpecialty
	}
	return s
}

func learn(n int, mustHave bool) *model.ActionScore {
	return &model.ActionScore{Learn: &n, MustHave: mustHave}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
