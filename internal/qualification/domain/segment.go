package domain

// Segment is the triage bucket derived from a lead score.
type Segment string

const (
	SegmentHot     Segment = "HOT"
	SegmentWarm    Segment = "WARM"
	SegmentNurture Segment = "NURTURE"
	SegmentLow     Segment = "LOW"
)

// Marketing event categories.
const (
	CategoryRetargeting    = "retargeting"
	CategoryInternalSignal = "internal_signal"
)

// Flow-level analytics event names.
const (
	EventLeadCaptured = "lead_captured"
	EventReengaged    = "funnel_reengaged"
)

// MarketingEvent is the segment-specific event emitted after qualification persistence.
type MarketingEvent struct {
	Category string
	Name     string
}

// MarketingEventFor routes a segment to its event. HOT and WARM go to
// retargeting; NURTURE and LOW are internal signals named after the segment.
func MarketingEventFor(s Segment) MarketingEvent {
	switch s {
	case SegmentHot:
		return MarketingEvent{Category: CategoryRetargeting, Name: "qualified_lead_hot"}
	case SegmentWarm:
		return MarketingEvent{Category: CategoryRetargeting, Name: "qualified_lead_warm"}
	case SegmentNurture:
		return MarketingEvent{Category: CategoryInternalSignal, Name: "nurture"}
	default:
		return MarketingEvent{Category: CategoryInternalSignal, Name: "low"}
	}
}

// ScoringResult is the outcome of scoring a completed set of answers.
type ScoringResult struct {
	Score   int     `json:"score"`
	Segment Segment `json:"segment"`
	Version string  `json:"version"`
}

// Completion is everything the dispatcher needs once the last answer is in.
type Completion struct {
	LeadID  string
	Contact *Contact
	Answers Answers
	Result  ScoringResult
}
