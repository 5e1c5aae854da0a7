// Package dispatch sequences the externally visible effects of a completed
// qualification: persistence, then the segment marketing event, then the
// detached call-queue enqueue.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/phone"
)

// Operation names passed to the error reporter.
const (
	OpPersistQualification = "qualification.persist"
	OpEmitMarketingEvent   = "marketing.emit"
	OpEnqueueCall          = "callqueue.enqueue"
)

var errIncompleteAnswers = errors.New("dispatch called with incomplete answers")

// Outcome describes what Dispatch attempted.
type Outcome struct {
	Persisted    bool
	Event        domain.MarketingEvent
	EventEmitted bool
	CallQueued   bool
}

// Dispatcher runs the post-qualification side effects in their mandated order.
type Dispatcher struct {
	persister ports.QualificationPersister
	emitter   ports.EventEmitter
	calls     ports.CallEnqueuer
	reporter  ports.ErrorReporter
	region    string
	log       *logger.Logger

	detached sync.WaitGroup
}

// New creates a Dispatcher. calls may be nil when the call queue is disabled.
func New(persister ports.QualificationPersister, emitter ports.EventEmitter, calls ports.CallEnqueuer, reporter ports.ErrorReporter, phoneRegion string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		persister: persister,
		emitter:   emitter,
		calls:     calls,
		reporter:  reporter,
		region:    phoneRegion,
		log:       log,
	}
}

// Dispatch persists the qualification and emits the segment event, both
// awaited, then starts the call-queue enqueue without waiting for it.
// Failures are reported and never returned: the flow always reaches result.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Completion) Outcome {
	if !c.Answers.Complete() {
		d.reporter.Report(ctx, OpPersistQualification, errIncompleteAnswers, map[string]any{"leadId": c.LeadID})
		return Outcome{}
	}

	out := Outcome{Event: domain.MarketingEventFor(c.Result.Segment)}

	// Persistence must be attempted before any segment event goes out.
	if err := d.persister.UpdateQualification(ctx, qualificationUpdate(c)); err != nil {
		d.reporter.Report(ctx, OpPersistQualification, err, map[string]any{
			"leadId":  c.LeadID,
			"segment": string(c.Result.Segment),
		})
	} else {
		out.Persisted = true
	}

	if err := d.emitter.Emit(ctx, out.Event.Name, marketingPayload(c, out.Event)); err != nil {
		d.reporter.Report(ctx, OpEmitMarketingEvent, err, map[string]any{
			"leadId": c.LeadID,
			"event":  out.Event.Name,
		})
	} else {
		out.EventEmitted = true
	}

	if req, ok := CallRequestFor(c, d.region); ok && d.calls != nil {
		d.enqueueDetached(ctx, req)
		out.CallQueued = true
	}

	d.log.Info("qualification dispatched",
		"leadId", c.LeadID,
		"segment", c.Result.Segment,
		"score", c.Result.Score,
		"persisted", out.Persisted,
		"callQueued", out.CallQueued)

	return out
}

// Wait blocks until every detached enqueue has finished.
func (d *Dispatcher) Wait() {
	d.detached.Wait()
}

func (d *Dispatcher) enqueueDetached(ctx context.Context, req ports.CallRequest) {
	detachedCtx := context.WithoutCancel(ctx)
	d.detached.Add(1)
	go func() {
		defer d.detached.Done()
		if err := d.calls.EnqueueCall(detachedCtx, req); err != nil {
			d.reporter.Report(detachedCtx, OpEnqueueCall, err, map[string]any{"leadId": req.LeadID})
		}
	}()
}

// CallRequestFor returns the call-queue request for c when it qualifies:
// HOT segment, homeowner, timeline within 90 days, and a phone number that
// normalizes to a valid international number.
func CallRequestFor(c domain.Completion, region string) (ports.CallRequest, bool) {
	if c.Result.Segment != domain.SegmentHot {
		return ports.CallRequest{}, false
	}
	if c.Answers.Homeowner == nil || !*c.Answers.Homeowner {
		return ports.CallRequest{}, false
	}
	if c.Answers.Timeline == nil {
		return ports.CallRequest{}, false
	}
	if tl := *c.Answers.Timeline; tl != domain.Timeline30Days && tl != domain.Timeline90Days {
		return ports.CallRequest{}, false
	}
	if c.Contact == nil {
		return ports.CallRequest{}, false
	}
	e164, ok := phone.ToE164(c.Contact.Phone, region)
	if !ok {
		return ports.CallRequest{}, false
	}

	return ports.CallRequest{
		LeadID: c.LeadID,
		Phone:  e164,
		Payload: map[string]any{
			"firstName":   c.Contact.FirstName,
			"lastName":    c.Contact.LastName,
			"score":       c.Result.Score,
			"segment":     string(c.Result.Segment),
			"timeline":    string(*c.Answers.Timeline),
			"windowScope": string(*c.Answers.WindowScope),
		},
	}, true
}

func qualificationUpdate(c domain.Completion) ports.QualificationUpdate {
	return ports.QualificationUpdate{
		LeadID:      c.LeadID,
		Timeline:    *c.Answers.Timeline,
		HasQuote:    *c.Answers.HasQuote,
		Homeowner:   *c.Answers.Homeowner,
		WindowScope: *c.Answers.WindowScope,
		Score:       c.Result.Score,
		Segment:     c.Result.Segment,
	}
}

func marketingPayload(c domain.Completion, ev domain.MarketingEvent) map[string]any {
	return map[string]any{
		"category":     ev.Category,
		"leadId":       c.LeadID,
		"segment":      string(c.Result.Segment),
		"score":        c.Result.Score,
		"scoreVersion": c.Result.Version,
		"timeline":     string(*c.Answers.Timeline),
		"hasQuote":     string(*c.Answers.HasQuote),
		"homeowner":    *c.Answers.Homeowner,
		"windowScope":  string(*c.Answers.WindowScope),
	}
}
