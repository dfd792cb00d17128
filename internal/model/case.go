package model

// Difficulty is the case difficulty level. Only 1, 2 and 3 are valid.
type Difficulty int

const (
	DifficultyEasy   Difficulty = 1
	DifficultyMedium Difficulty = 2
	DifficultyHard   Difficulty = 3
)

// Valid reports whether d is one of the three allowed levels.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// MaxActionsPerGroup bounds each action group after generation, independent of
// the looser limits the validator accepts.
const MaxActionsPerGroup = 6

// ActionScore is the answer-key weight attached to an action.
type ActionScore struct {
	Learn    *int `json:"learn,omitempty"`
	MustHave bool `json:"must_have,omitempty"`
}

// Action is one selectable history, exam or test step.
type Action struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Cost        *int         `json:"cost,omitempty"`
	RevealText  string       `json:"reveal_text,omitempty"`
	RevealImage string       `json:"reveal_image,omitempty"`
	Score       *ActionScore `json:"score,omitempty"`
}

// Meta holds display metadata for a case.
type Meta struct {
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	EstTimeMin *int     `json:"est_time_min,omitempty"`
}

// Intro is what the learner sees before picking any action. Demographics and
// vitals are free-form clinical data and keep whatever keys the source sent.
type Intro struct {
	Demographics   map[string]any `json:"demographics,omitempty"`
	ChiefComplaint string         `json:"chief_complaint"`
	Vitals         map[string]any `json:"vitals,omitempty"`
	Context        string         `json:"context,omitempty"`
}

// Actions groups the selectable steps of a case.
type Actions struct {
	History []Action `json:"history"`
	Exam    []Action `json:"exam"`
	Tests   []Action `json:"tests"`
}

// All returns every action in history, exam, tests order.
func (a Actions) All() []Action {
	all := make([]Action, 0, len(a.History)+len(a.Exam)+len(a.Tests))
	all = append(all, a.History...)
	all = append(all, a.Exam...)
	all = append(all, a.Tests...)
	return all
}

// Solution is the answer key.
type Solution struct {
	DxPrimary       string   `json:"dx_primary"`
	DDx             []string `json:"ddx,omitempty"`
	ManagementFirst []string `json:"management_first,omitempty"`
	RedFlags        []string `json:"red_flags,omitempty"`
	TeachingPoints  []string `json:"teaching_points,omitempty"`
	References      []string `json:"references,omitempty"`
}

// Case is one clinical scenario. Treat values as immutable once validated.
type Case struct {
	ID         string     `json:"id"`
	Specialty  string     `json:"specialty"`
	Difficulty Difficulty `json:"difficulty"`
	Meta       Meta       `json:"meta"`
	Intro      Intro      `json:"intro"`
	Actions    Actions    `json:"actions"`
	Solution   Solution   `json:"solution"`
	References []string   `json:"references,omitempty"`
}

// Clamped returns a copy of c with each action group cut to at most n entries.
// The receiver's slices are never shared with the result.
func (c Case) Clamped(n int) Case {
	out := c
	out.Actions = Actions{
		History: clampActions(c.Actions.History, n),
		Exam:    clampActions(c.Actions.Exam, n),
		Tests:   clampActions(c.Actions.Tests, n),
	}
	return out
}

func clampActions(in []Action, n int) []Action {
	if len(in) > n {
		in = in[:n]
	}
	out := make([]Action, len(in))
	copy(out, in)
	return out
}
