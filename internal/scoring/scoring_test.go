package scoring

import (
	"testing"

	"github.com/pavelanni/casesim/internal/model"
)

func learn(n int, mustHave bool) *model.ActionScore {
	return &model.ActionScore{Learn: &n, MustHave: mustHave}
}

func stemiCase() model.Case {
	return model.Case{
		ID:         "c1",
		Specialty:  "cardiology",
		Difficulty: model.DifficultyMedium,
		Actions: model.Actions{
			History: []model.Action{
				{ID: "onset", Text: "Ask onset", Score: learn(2, false)},
				{ID: "risk", Text: "Ask risk factors", Score: learn(2, false)},
			},
			Exam: []model.Action{
				{ID: "cardiac_exam", Text: "Cardiac exam", Score: learn(1, false)},
				{ID: "unscored", Text: "General inspection"},
			},
			Tests: []model.Action{
				{ID: "ecg", Text: "12-lead ECG", Score: learn(4, true)},
				{ID: "troponin", Text: "Troponin", Score: learn(2, false)},
				{ID: "cxr", Text: "Chest X-ray", Score: learn(-1, false)},
			},
		},
		Solution: model.Solution{DxPrimary: "Inferior STEMI"},
	}
}

func TestLocal(t *testing.T) {
	c := stemiCase()
	tests := []struct {
		name  string
		picks []string
		dx    string
		mgmt  []string
		want  int
	}{
		{"nothing", nil, "", nil, 0},
		{"must-have pick", []string{"ecg"}, "", nil, 9},
		{"duplicate picks count once", []string{"ecg", "ecg", "ecg"}, "", nil, 9},
		{"unknown and unscored picks", []string{"nope", "unscored"}, "", nil, 0},
		{"exact diagnosis", nil, "Inferior STEMI", nil, 10},
		{"diagnosis inside longer text", nil, "probable   inferior stemi", nil, 10},
		{"diagnosis synonym", nil, "acute MI", nil, 10},
		{"wrong diagnosis", nil, "pneumonia", nil, 0},
		{"management keywords once each", nil, "", []string{"Aspirin 325mg", "more aspirin", "Heparin drip"}, 6},
		{"all keywords", nil, "", []string{"aspirin", "heparin", "anticoagulation", "PCI", "cath lab", "reperfusion"}, 18},
		{"negative learn clamps to zero", []string{"cxr"}, "", nil, 0},
		{
			name:  "seven distinct picks lose one point",
			picks: []string{"onset", "risk", "cardiac_exam", "unscored", "ecg", "troponin", "cxr"},
			want:  2 + 2 + 1 + 9 + 2 - 1 - 1,
		},
		{
			name:  "six distinct picks with repeats keep full score",
			picks: []string{"onset", "risk", "cardiac_exam", "ecg", "troponin", "cxr", "ecg", "onset"},
			want:  2 + 2 + 1 + 9 + 2 - 1,
		},
		{
			name:  "everything",
			picks: []string{"ecg", "troponin"},
			dx:    "STEMI",
			mgmt:  []string{"aspirin", "activate cath lab for PCI"},
			want:  9 + 2 + 10 + 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Local(tt.picks, c, tt.dx, tt.mgmt)
			if got != tt.want {
				t.Errorf("Local() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRawCanBeNegative(t *testing.T) {
	if got := Raw([]string{"cxr"}, stemiCase(), "", nil); got != -1 {
		t.Errorf("Raw() = %d, want -1", got)
	}
}

func TestDiagnosisMatches(t *testing.T) {
	tests := []struct {
		dx, primary string
		want        bool
	}{
		{"Inferior STEMI", "Inferior STEMI", true},
		{"heart attack", "Inferior STEMI", true},
		{"PE", "Pulmonary embolism", true},
		{"massive pulmonary embolus", "Pulmonary embolism", true},
		{"pneumonia", "Pulmonary embolism", false},
		{"DKA", "Diabetic ketoacidosis", true},
		{"sepsis", "Urosepsis", true},
		{"", "Inferior STEMI", false},
		{"stemi", "", false},
		{"asthmatic bronchitis", "COPD exacerbation", false},
		{"Guillain-Barre syndrome (AIDP)", "Guillain-Barre syndrome (AIDP)", true},
		{"likely (AIDP)", "(AIDP)", true},
		{"xAIDP", "AIDP", false},
	}
	for _, tt := range tests {
		t.Run(tt.dx+"/"+tt.primary, func(t *testing.T) {
			if got := DiagnosisMatches(tt.dx, tt.primary); got != tt.want {
				t.Errorf("DiagnosisMatches(%q, %q) = %v, want %v", tt.dx, tt.primary, got, tt.want)
			}
		})
	}
}

func TestManagementHits(t *testing.T) {
	if got := ManagementHits(nil); got != 0 {
		t.Errorf("ManagementHits(nil) = %d", got)
	}
	if got := ManagementHits([]string{"ASPIRIN", "aspirin"}); got != 1 {
		t.Errorf("ManagementHits(aspirin twice) = %d, want 1", got)
	}
}
