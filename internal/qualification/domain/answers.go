// Package domain holds the value types of the lead qualification flow.
package domain

import (
	"strings"

	"windowleads_backend/platform/apperr"
)

// Timeline is when the homeowner plans to replace windows.
type Timeline string

const (
	Timeline30Days   Timeline = "30days"
	Timeline90Days   Timeline = "90days"
	Timeline6Months  Timeline = "6months"
	TimelineResearch Timeline = "research"
)

// QuoteStatus is whether the homeowner already has a competing quote.
type QuoteStatus string

const (
	QuoteYes     QuoteStatus = "yes"
	QuoteGetting QuoteStatus = "getting"
	QuoteNo      QuoteStatus = "no"
)

// WindowScope is how many windows the project covers.
type WindowScope string

const (
	Scope1To5       WindowScope = "1_5"
	Scope6To15      WindowScope = "6_15"
	Scope16Plus     WindowScope = "16_plus"
	ScopeWholeHouse WindowScope = "whole_house"
)

// ParseTimeline validates a raw timeline answer.
func ParseTimeline(raw string) (Timeline, error) {
	switch t := Timeline(strings.TrimSpace(raw)); t {
	case Timeline30Days, Timeline90Days, Timeline6Months, TimelineResearch:
		return t, nil
	}
	return "", apperr.FieldErrors(map[string]string{"timeline": "is not a recognised option"})
}

// ParseQuoteStatus validates a raw existing-quote answer.
func ParseQuoteStatus(raw string) (QuoteStatus, error) {
	switch q := QuoteStatus(strings.TrimSpace(raw)); q {
	case QuoteYes, QuoteGetting, QuoteNo:
		return q, nil
	}
	return "", apperr.FieldErrors(map[string]string{"hasQuote": "is not a recognised option"})
}

// ParseWindowScope validates a raw window-count answer.
func ParseWindowScope(raw string) (WindowScope, error) {
	switch s := WindowScope(strings.TrimSpace(raw)); s {
	case Scope1To5, Scope6To15, Scope16Plus, ScopeWholeHouse:
		return s, nil
	}
	return "", apperr.FieldErrors(map[string]string{"windowScope": "is not a recognised option"})
}

// Answers are the four qualification answers. A nil field is unset.
type Answers struct {
	Timeline    *Timeline    `json:"timeline,omitempty"`
	HasQuote    *QuoteStatus `json:"hasQuote,omitempty"`
	Homeowner   *bool        `json:"homeowner,omitempty"`
	WindowScope *WindowScope `json:"windowScope,omitempty"`
}

// Complete reports whether every answer is set.
func (a Answers) Complete() bool {
	return a.Timeline != nil && a.HasQuote != nil && a.Homeowner != nil && a.WindowScope != nil
}

// Clone returns a deep copy so callers cannot mutate machine-owned answers.
func (a Answers) Clone() Answers {
	var out Answers
	if a.Timeline != nil {
		v := *a.Timeline
		out.Timeline = &v
	}
	if a.HasQuote != nil {
		v := *a.HasQuote
		out.HasQuote = &v
	}
	if a.Homeowner != nil {
		v := *a.Homeowner
		out.Homeowner = &v
	}
	if a.WindowScope != nil {
		v := *a.WindowScope
		out.WindowScope = &v
	}
	return out
}

// Contact is the identity captured at the first step.
type Contact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	// Phone is the 10-digit national number.
	Phone string `json:"phone"`
}
