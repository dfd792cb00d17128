package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/casesim/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var learnerTagRegex = regexp.MustCompile(`(?i)</?\s*learner-submission\b[^>]*>`)

// maxFieldRunes bounds each learner-written field placed in a prompt.
const maxFieldRunes = 2000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades harshly on missed diagnoses and unsafe management.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient gives partial credit generously.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

func load() (*template.Template, error) {
	loadOnce.Do(func() {
		templates, loadErr = template.New("prompts").
			Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
			ParseFS(templateFS, "templates/*.txt")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return templates, loadErr
}

func render(name string, data any) (string, error) {
	t, err := load()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Pair is a system and a user message.
type Pair struct {
	System string
	User   string
}

// CaseGenData holds template data for case generation.
type CaseGenData struct {
	ID         string
	Specialty  string
	Difficulty model.Difficulty
	MaxActions int
}

// BuildCaseGen builds the case generation prompts.
func BuildCaseGen(data CaseGenData) (Pair, error) {
	sys, err := render("casegen_system.txt", nil)
	if err != nil {
		return Pair{}, err
	}
	data.Specialty = jsonSafe(data.Specialty)
	user, err := render("casegen_user.txt", data)
	if err != nil {
		return Pair{}, err
	}
	return Pair{System: sys, User: user}, nil
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	CaseJSON string
	DX       string
	Mgmt     []string
	Picks    string
	MaxItems int
}

// BuildGrade builds grading prompts for the given variant.
func BuildGrade(variant PromptVariant, c model.Case, sub model.Submission, maxItems int) (Pair, error) {
	if !validVariants[variant] {
		return Pair{}, errors.New("invalid prompt variant: " + string(variant))
	}
	sys, err := render("grade_"+string(variant)+".txt", nil)
	if err != nil {
		return Pair{}, err
	}
	caseJSON, err := json.Marshal(c)
	if err != nil {
		return Pair{}, fmt.Errorf("marshal case: %w", err)
	}
	mgmt := make([]string, 0, len(sub.Mgmt))
	for _, line := range sub.ClampedMgmt() {
		mgmt = append(mgmt, sanitizeLearnerText(line))
	}
	user, err := render("grade_user.txt", GradeData{
		CaseJSON: string(caseJSON),
		DX:       sanitizeLearnerText(sub.DX),
		Mgmt:     mgmt,
		Picks:    sanitizeLearnerText(strings.Join(sub.Picks, ", ")),
		MaxItems: maxItems,
	})
	if err != nil {
		return Pair{}, err
	}
	return Pair{System: sys, User: user}, nil
}

// SummarizeData holds template data for snippet summarization.
type SummarizeData struct {
	Query    string
	Snippets []model.Snippet
}

// MaxSummarizeSnippets is how many snippets are given to the summarizer.
const MaxSummarizeSnippets = 8

// BuildSummarize builds summarization prompts.
func BuildSummarize(query string, snippets []model.Snippet) (Pair, error) {
	sys, err := render("summarize_system.txt", nil)
	if err != nil {
		return Pair{}, err
	}
	if len(snippets) > MaxSummarizeSnippets {
		snippets = snippets[:MaxSummarizeSnippets]
	}
	user, err := render("summarize_user.txt", SummarizeData{Query: query, Snippets: snippets})
	if err != nil {
		return Pair{}, err
	}
	return Pair{System: sys, User: user}, nil
}

// sanitizeLearnerText strips tags that could close the submission block and
// bounds the length.
func sanitizeLearnerText(s string) string {
	s = learnerTagRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return "[none]"
	}
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes]) + " [truncated]"
	}
	return s
}

// jsonSafe escapes s for embedding inside a JSON string literal.
func jsonSafe(s string) string {
	b, _ := json.Marshal(s)
	return string(b[1 : len(b)-1])
}
