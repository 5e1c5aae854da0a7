// Package ports defines the collaborators the qualification flow depends on.
// Implementations live in the leads, session, tracking, callqueue and
// observability packages; tests use in-memory fakes.
package ports

import (
	"context"

	"windowleads_backend/internal/qualification/domain"
)

// NewLead is the contact submission sent to the lead store at step 1.
type NewLead struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Attribution map[string]string
}

// LeadCreator creates a lead record and returns its opaque identifier.
type LeadCreator interface {
	CreateLead(ctx context.Context, lead NewLead) (string, error)
}

// QualificationUpdate is persisted against an existing lead once scoring is done.
type QualificationUpdate struct {
	LeadID      string
	Timeline    domain.Timeline
	HasQuote    domain.QuoteStatus
	Homeowner   bool
	WindowScope domain.WindowScope
	Score       int
	Segment     domain.Segment
}

// QualificationPersister stores qualification answers on a lead.
type QualificationPersister interface {
	UpdateQualification(ctx context.Context, update QualificationUpdate) error
}

// EventEmitter forwards a named marketing/analytics event.
type EventEmitter interface {
	Emit(ctx context.Context, name string, payload map[string]any) error
}

// CallRequest asks the call queue to schedule an outbound call.
type CallRequest struct {
	LeadID  string
	Phone   string // E.164
	Payload map[string]any
}

// CallEnqueuer schedules an outbound phone contact attempt.
type CallEnqueuer interface {
	EnqueueCall(ctx context.Context, req CallRequest) error
}

// ErrorReporter receives non-critical failures absorbed by the flow.
type ErrorReporter interface {
	Report(ctx context.Context, operation string, err error, attrs map[string]any)
}

// SessionStore is a session-scoped key/value store. Get returns "" for a missing key.
type SessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
