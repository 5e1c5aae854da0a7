package domain

// Step is the position of a flow in the qualification sequence.
type Step string

const (
	StepCapture     Step = "capture"
	StepTimeline    Step = "timeline"
	StepQuote       Step = "quote"
	StepHomeowner   Step = "homeowner"
	StepWindowCount Step = "windowCount"
	StepResult      Step = "result"
)

var stepOrder = []Step{StepCapture, StepTimeline, StepQuote, StepHomeowner, StepWindowCount, StepResult}

// noBackSteps are the steps from which back navigation is unavailable.
// Timeline is included so a flow never returns into capture.
var noBackSteps = map[Step]bool{
	StepCapture:  true,
	StepTimeline: true,
	StepResult:   true,
}

// Next returns the step after s. ok is false for result.
func Next(s Step) (Step, bool) {
	for i, step := range stepOrder {
		if step == s && i+1 < len(stepOrder) {
			return stepOrder[i+1], true
		}
	}
	return "", false
}

// Previous returns the step back navigation leads to from s.
// ok is false when back navigation is unavailable from s.
func Previous(s Step) (Step, bool) {
	if noBackSteps[s] {
		return "", false
	}
	for i, step := range stepOrder {
		if step == s && i > 0 {
			return stepOrder[i-1], true
		}
	}
	return "", false
}

// CanGoBack reports whether back navigation is available from s.
func CanGoBack(s Step) bool {
	_, ok := Previous(s)
	return ok
}
