package domain

import "testing"

func TestPrevious(t *testing.T) {
	tests := []struct {
		from   Step
		want   Step
		wantOK bool
	}{
		{StepCapture, "", false},
		{StepTimeline, "", false},
		{StepQuote, StepTimeline, true},
		{StepHomeowner, StepQuote, true},
		{StepWindowCount, StepHomeowner, true},
		{StepResult, "", false},
	}

	for _, tc := range tests {
		got, ok := Previous(tc.from)
		if ok != tc.wantOK || got != tc.want {
			t.Errorf("Previous(%q) = (%q, %v), want (%q, %v)", tc.from, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestNextFollowsFixedOrder(t *testing.T) {
	step := StepCapture
	var seen []Step
	for {
		next, ok := Next(step)
		if !ok {
			break
		}
		seen = append(seen, next)
		step = next
	}
	want := []Step{StepTimeline, StepQuote, StepHomeowner, StepWindowCount, StepResult}
	if len(seen) != len(want) {
		t.Fatalf("expected %d steps, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("step %d: got %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestMarketingEventFor(t *testing.T) {
	tests := []struct {
		segment  Segment
		category string
		name     string
	}{
		{SegmentHot, CategoryRetargeting, "qualified_lead_hot"},
		{SegmentWarm, CategoryRetargeting, "qualified_lead_warm"},
		{SegmentNurture, CategoryInternalSignal, "nurture"},
		{SegmentLow, CategoryInternalSignal, "low"},
	}
	for _, tc := range tests {
		got := MarketingEventFor(tc.segment)
		if got.Category != tc.category || got.Name != tc.name {
			t.Errorf("MarketingEventFor(%s) = %+v", tc.segment, got)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseTimeline("next-year"); err == nil {
		t.Fatalf("expected unknown timeline to be rejected")
	}
	if _, err := ParseQuoteStatus("maybe"); err == nil {
		t.Fatalf("expected unknown quote status to be rejected")
	}
	if _, err := ParseWindowScope("100"); err == nil {
		t.Fatalf("expected unknown window scope to be rejected")
	}
	if got, err := ParseWindowScope(" whole_house "); err != nil || got != ScopeWholeHouse {
		t.Fatalf("expected trimmed whole_house to parse, got %q, %v", got, err)
	}
}
