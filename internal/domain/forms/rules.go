package forms

import (
	"fmt"
	"sort"
	"strings"

	"github.com/healthdesk/triage/internal/platform/apperr"
)

// Range is a closed integer interval [Min, Max].
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Overlaps reports whether the two closed intervals share any score.
func (a Range) Overlaps(b Range) bool {
	return !(a.Max < b.Min || a.Min > b.Max)
}

func (a Range) Contains(score int) bool {
	return score >= a.Min && score <= a.Max
}

func (a Range) String() string { return fmt.Sprintf("[%d, %d]", a.Min, a.Max) }

// OverlapError names the two ranges that collide. It matches
// apperr.ErrValidation.
type OverlapError struct {
	A, B Range
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("score ranges %s and %s overlap", e.A, e.B)
}

func (e *OverlapError) Unwrap() error { return apperr.ErrValidation }

// ValidateRule checks a single rule on its own.
func ValidateRule(r ScoreRule) error {
	if r.MinScore > r.MaxScore {
		return apperr.Validation("min_score (%d) cannot be greater than max_score (%d)", r.MinScore, r.MaxScore)
	}
	if strings.TrimSpace(r.Classification) == "" {
		return apperr.Validation("classification is required")
	}
	return nil
}

// ValidateNoOverlap checks every rule and then every unordered pair,
// failing on the first violation.
func ValidateNoOverlap(rules []ScoreRule) error {
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			return err
		}
	}
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			if a, b := rules[i].Range(), rules[j].Range(); a.Overlaps(b) {
				return &OverlapError{A: a, B: b}
			}
		}
	}
	return nil
}

// ValidateCandidate checks a rule being created or edited against the
// other rules of its form. A rule with the candidate's id is the stored
// version of the candidate itself and is skipped.
func ValidateCandidate(candidate ScoreRule, existing []ScoreRule) error {
	if err := ValidateRule(candidate); err != nil {
		return err
	}
	c := candidate.Range()
	for _, other := range existing {
		if other.ID == candidate.ID {
			continue
		}
		if o := other.Range(); c.Overlaps(o) {
			return &OverlapError{A: c, B: o}
		}
	}
	return nil
}

// MatchRule returns the lowest-order rule whose range contains score, or
// nil when the score falls in a gap. Rules sharing an order keep their
// input order.
func MatchRule(rules []ScoreRule, score int) *ScoreRule {
	sorted := make([]ScoreRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i := range sorted {
		if sorted[i].Range().Contains(score) {
			return &sorted[i]
		}
	}
	return nil
}
