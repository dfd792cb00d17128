package model

// AppVersion is written into every SaveEntry as its format tag.
const AppVersion = "0.1.0"

// MaxMgmtLines is how many management lines are kept from a submission.
const MaxMgmtLines = 10

// Submission is a learner's answer for a case.
type Submission struct {
	DX    string   `json:"dx"`
	Mgmt  []string `json:"mgmt"`
	Picks []string `json:"picks"`
	Notes string   `json:"notes,omitempty"`
}

// ClampedMgmt returns the first MaxMgmtLines management lines.
func (s Submission) ClampedMgmt() []string {
	if len(s.Mgmt) > MaxMgmtLines {
		return s.Mgmt[:MaxMgmtLines]
	}
	return s.Mgmt
}

// AIReview is the sanitized form of an external review.
type AIReview struct {
	Score    *float64 `json:"score,omitempty"`
	Pros     []string `json:"pros"`
	Cons     []string `json:"cons"`
	RedFlags []string `json:"red_flags"`
	Feedback []string `json:"feedback,omitempty"`
}

// ScoreBreakdown is what the UI displays. Local is always the deterministic
// score; Total is the AI score when one was accepted, otherwise Local.
type ScoreBreakdown struct {
	Total    float64   `json:"total"`
	Local    int       `json:"local"`
	AIReview *AIReview `json:"ai_review,omitempty"`
}

// SaveEntry is one persisted attempt. It owns its Case snapshot.
type SaveEntry struct {
	ID         string         `json:"id"`
	CreatedAt  int64          `json:"created_at"` // epoch milliseconds
	Specialty  string         `json:"specialty"`
	Difficulty Difficulty     `json:"difficulty"`
	Case       Case           `json:"caseJson"`
	Submission Submission     `json:"submission"`
	Score      ScoreBreakdown `json:"score"`
	Version    string         `json:"version,omitempty"`
}

// Snippet is one search hit.
type Snippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Summary is a condensed view of a set of snippets.
type Summary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}
