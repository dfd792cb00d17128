// Package scoring computes the deterministic local score of a submission.
package scoring

import (
	"regexp"
	"strings"

	"github.com/pavelanni/casesim/internal/model"
)

const (
	MustHaveBonus         = 5
	DiagnosisBonus        = 10
	KeywordBonus          = 3
	MaxPicksBeforePenalty = 6
)

// ManagementKeywords each add KeywordBonus once when found in the joined,
// lowercased management plan.
var ManagementKeywords = []string{"aspirin", "heparin", "anticoag", "pci", "cath", "reperfusion"}

// diagnosisFamilies group synonyms for common primary diagnoses. A family
// applies to a case when it matches the case's dx_primary.
var diagnosisFamilies = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stemi|acute\s*mi\b|myocardial\s+infarction|heart\s+attack`),
	regexp.MustCompile(`(?i)pulmonary\s+embol|\bpe\b`),
	regexp.MustCompile(`(?i)aortic\s+dissection`),
	regexp.MustCompile(`(?i)pneumonia`),
	regexp.MustCompile(`(?i)stroke|cerebrovascular\s+accident|\bcva\b`),
	regexp.MustCompile(`(?i)sepsis|septic\s+shock`),
	regexp.MustCompile(`(?i)diabetic\s+ketoacidosis|\bdka\b`),
	regexp.MustCompile(`(?i)appendicitis`),
	regexp.MustCompile(`(?i)asthma`),
	regexp.MustCompile(`(?i)copd|chronic\s+obstructive`),
	regexp.MustCompile(`(?i)heart\s+failure|\bchf\b|\bhfref\b`),
	regexp.MustCompile(`(?i)pneumothorax`),
}

// Local is the clamped score: never negative.
func Local(picks []string, c model.Case, dx string, mgmt []string) int {
	return max(0, Raw(picks, c, dx, mgmt))
}

// Raw is the unclamped score for callers that blend it further.
func Raw(picks []string, c model.Case, dx string, mgmt []string) int {
	ids := make(map[string]struct{}, len(picks))
	for _, p := range picks {
		ids[p] = struct{}{}
	}

	score := 0
	for _, a := range c.Actions.All() {
		if _, ok := ids[a.ID]; !ok || a.Score == nil {
			continue
		}
		if a.Score.Learn != nil {
			score += *a.Score.Learn
		}
		if a.Score.MustHave {
			score += MustHaveBonus
		}
	}

	if DiagnosisMatches(dx, c.Solution.DxPrimary) {
		score += DiagnosisBonus
	}
	score += KeywordBonus * ManagementHits(mgmt)

	if len(ids) > MaxPicksBeforePenalty {
		score -= len(ids) - MaxPicksBeforePenalty
	}
	return score
}

// DiagnosisMatches reports whether the learner's dx names the expected
// diagnosis: either the primary diagnosis itself as whole words, or a synonym
// from a family the primary diagnosis belongs to.
func DiagnosisMatches(dx, primary string) bool {
	dx = normalize(dx)
	primary = normalize(primary)
	if dx == "" || primary == "" {
		return false
	}
	if regexp.MustCompile(`(^|\W)` + regexp.QuoteMeta(primary) + `(\W|$)`).MatchString(dx) {
		return true
	}
	for _, fam := range diagnosisFamilies {
		if fam.MatchString(primary) && fam.MatchString(dx) {
			return true
		}
	}
	return false
}

// ManagementHits counts distinct keywords present in the management plan.
func ManagementHits(mgmt []string) int {
	joined := strings.ToLower(strings.Join(mgmt, " "))
	hits := 0
	for _, kw := range ManagementKeywords {
		if strings.Contains(joined, kw) {
			hits++
		}
	}
	return hits
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
