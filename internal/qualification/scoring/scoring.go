// Package scoring is the single authoritative lead scoring implementation.
// The point tables are pricing/triage policy and must not be tuned without sign-off.
package scoring

import "windowleads_backend/internal/qualification/domain"

// scoreVersion tracks the scoring policy for debugging and analysis.
// Bump this when any table or threshold changes.
const scoreVersion = "2025-windows-v1"

// Segment thresholds, inclusive lower bounds.
const (
	hotThreshold     = 100
	warmThreshold    = 70
	nurtureThreshold = 40
)

var timelinePoints = map[domain.Timeline]int{
	domain.Timeline30Days:   40,
	domain.Timeline90Days:   30,
	domain.Timeline6Months:  15,
	domain.TimelineResearch: 5,
}

var quotePoints = map[domain.QuoteStatus]int{
	domain.QuoteYes:     30,
	domain.QuoteGetting: 15,
	domain.QuoteNo:      5,
}

const (
	homeownerPoints    = 25
	nonHomeownerPoints = -50
)

var scopePoints = map[domain.WindowScope]int{
	domain.Scope1To5:       10,
	domain.Scope6To15:      20,
	domain.Scope16Plus:     35,
	domain.ScopeWholeHouse: 35,
}

// Breakdown is the per-field contribution to a score.
type Breakdown struct {
	Timeline    int `json:"timeline"`
	HasQuote    int `json:"hasQuote"`
	Homeowner   int `json:"homeowner"`
	WindowScope int `json:"windowScope"`
}

// Total sums the contributions.
func (b Breakdown) Total() int {
	return b.Timeline + b.HasQuote + b.Homeowner + b.WindowScope
}

// Score computes the score and segment for answers. Unset fields contribute 0;
// production callers only score complete answers. The input is not modified.
func Score(answers domain.Answers) domain.ScoringResult {
	total := Explain(answers).Total()
	return domain.ScoringResult{
		Score:   total,
		Segment: SegmentFor(total),
		Version: scoreVersion,
	}
}

// Explain returns the per-field contributions behind Score.
func Explain(answers domain.Answers) Breakdown {
	var b Breakdown
	if answers.Timeline != nil {
		b.Timeline = timelinePoints[*answers.Timeline]
	}
	if answers.HasQuote != nil {
		b.HasQuote = quotePoints[*answers.HasQuote]
	}
	if answers.Homeowner != nil {
		if *answers.Homeowner {
			b.Homeowner = homeownerPoints
		} else {
			b.Homeowner = nonHomeownerPoints
		}
	}
	if answers.WindowScope != nil {
		b.WindowScope = scopePoints[*answers.WindowScope]
	}
	return b
}

// SegmentFor maps a score to its segment. The highest matching threshold wins.
func SegmentFor(score int) domain.Segment {
	switch {
	case score >= hotThreshold:
		return domain.SegmentHot
	case score >= warmThreshold:
		return domain.SegmentWarm
	case score >= nurtureThreshold:
		return domain.SegmentNurture
	default:
		return domain.SegmentLow
	}
}

// Version returns the active scoring policy version.
func Version() string {
	return scoreVersion
}
