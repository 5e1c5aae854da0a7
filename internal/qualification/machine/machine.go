// Package machine implements the lead qualification state machine:
// capture -> timeline -> quote -> homeowner -> windowCount -> result.
//
// A Machine owns one flow's answers and scoring result. Every mutation goes
// through its transition methods, which are safe for concurrent use. The
// machine lock is never held across a collaborator call.
package machine

import (
	"context"
	"strings"
	"sync"
	"time"

	"windowleads_backend/internal/qualification/dispatch"
	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/internal/qualification/scoring"
	"windowleads_backend/platform/apperr"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/phone"
	"windowleads_backend/platform/validator"
)

// Session store keys.
const (
	KeyLeadID    = "lead_id"
	KeyCompleted = "qualification_completed"
)

// Reporter operation names for failures absorbed by the machine.
const (
	OpSessionRead   = "session.read"
	OpSessionWrite  = "session.write"
	OpEmitFlowEvent = "marketing.emit_flow"
)

// GenericFailureMessage is shown when lead creation fails.
const GenericFailureMessage = "something went wrong, please try again"

var (
	ErrFlowClosed      = apperr.Conflict("qualification flow is not open")
	ErrFlowCompleted   = apperr.Conflict("qualification already completed for this session")
	ErrInvalidStep     = apperr.Conflict("answer does not match the current step")
	ErrBackUnavailable = apperr.Conflict("back navigation is not available from this step")
	ErrMissingLead     = apperr.Internal("qualification reached scoring without a lead")
)

// Dispatcher runs the post-qualification side effects.
type Dispatcher interface {
	Dispatch(ctx context.Context, c domain.Completion) dispatch.Outcome
}

// Deps are the collaborators of a Machine. Scheduler, Validator and Log
// default when nil.
type Deps struct {
	Leads      ports.LeadCreator
	Session    ports.SessionStore
	Dispatcher Dispatcher
	Emitter    ports.EventEmitter
	Reporter   ports.ErrorReporter
	Scheduler  Scheduler
	Validator  *validator.Validator
	Log        *logger.Logger
}

// Options tune a Machine.
type Options struct {
	// ResetDelay is how long answers survive a close. Zero clears immediately.
	ResetDelay  time.Duration
	PhoneRegion string
}

// ContactInput is the step-1 form.
type ContactInput struct {
	FirstName   string            `json:"firstName" validate:"personname"`
	LastName    string            `json:"lastName" validate:"personname"`
	Email       string            `json:"email" validate:"required,email"`
	Phone       string            `json:"phone" validate:"phone10"`
	Attribution map[string]string `json:"attribution,omitempty"`
}

// Snapshot is a read-only view of a flow for the presentation layer.
type Snapshot struct {
	Open      bool                  `json:"open"`
	Step      domain.Step           `json:"step"`
	LeadID    string                `json:"leadId,omitempty"`
	Answers   domain.Answers        `json:"answers"`
	Result    *domain.ScoringResult `json:"result,omitempty"`
	CanGoBack bool                  `json:"canGoBack"`
	Busy      bool                  `json:"busy"`
}

// Machine is one qualification flow.
type Machine struct {
	deps Deps
	opts Options

	mu      sync.Mutex
	open    bool
	step    domain.Step // "" until the entry point is chosen
	answers domain.Answers
	contact *domain.Contact
	leadID  string
	result  *domain.ScoringResult

	// Busy flags for the step-1 and final handlers.
	submitting bool
	finalizing bool

	reengagedThisOpen bool
	pendingReset      Timer
	resetGen          uint64
	// resetAfterFinalize defers a reset requested while the final
	// submission is in flight until it lands at result.
	resetAfterFinalize bool
}

// New creates a closed Machine. Call Open before any transition.
func New(deps Deps, opts Options) *Machine {
	if deps.Scheduler == nil {
		deps.Scheduler = ClockScheduler()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = phone.DefaultRegion
	}
	return &Machine{deps: deps, opts: opts}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		Open:      m.open,
		Step:      m.step,
		LeadID:    m.leadID,
		Answers:   m.answers.Clone(),
		CanGoBack: domain.CanGoBack(m.step) && !m.finalizing,
		Busy:      m.submitting || m.finalizing,
	}
	if m.result != nil {
		r := *m.result
		s.Result = &r
	}
	return s
}

// Open starts or resumes the flow. A pending deferred reset is cancelled, so
// answers given before a quick close/reopen survive. A session that already
// holds a lead enters at timeline and emits one re-engaged event per open.
func (m *Machine) Open(ctx context.Context) (Snapshot, error) {
	storedLead, err := m.sessionGet(ctx, KeyLeadID)
	if err != nil {
		return Snapshot{}, err
	}
	completed, err := m.sessionGet(ctx, KeyCompleted)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	if m.open {
		defer m.mu.Unlock()
		return m.snapshotLocked(), nil
	}
	m.cancelResetLocked()
	m.resetAfterFinalize = false

	if completed != "" && m.step != domain.StepResult && !m.finalizing {
		m.mu.Unlock()
		return Snapshot{}, ErrFlowCompleted
	}

	m.open = true
	reengaged := false
	if storedLead != "" && (m.step == "" || m.step == domain.StepCapture) {
		m.leadID = storedLead
		m.step = domain.StepTimeline
		if !m.reengagedThisOpen {
			m.reengagedThisOpen = true
			reengaged = true
		}
	} else if m.step == "" {
		m.step = domain.StepCapture
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if reengaged {
		m.deps.Log.Info("funnel re-engaged", "leadId", storedLead)
		m.emitFlowEvent(ctx, domain.EventReengaged, map[string]any{"leadId": storedLead})
	}
	return snap, nil
}

// SubmitContact validates the contact form and creates the lead. On failure
// the flow stays at capture and the caller may retry with the same data.
// A call while a submission is in flight is a no-op.
func (m *Machine) SubmitContact(ctx context.Context, in ContactInput) (Snapshot, error) {
	m.mu.Lock()
	if err := m.expectLocked(domain.StepCapture); err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	if m.submitting {
		defer m.mu.Unlock()
		return m.snapshotLocked(), nil
	}
	if err := m.deps.Validator.Struct(in); err != nil {
		m.mu.Unlock()
		return Snapshot{}, apperr.FieldErrors(validator.FieldMessages(err)).WithOp("contact")
	}
	m.submitting = true
	m.mu.Unlock()

	contact, lead := m.normalizeContact(in)

	// Lead creation outlives the caller: a close or disconnect must not lose the lead.
	detached := context.WithoutCancel(ctx)
	leadID, err := m.deps.Leads.CreateLead(detached, lead)
	if err != nil {
		m.mu.Lock()
		m.submitting = false
		m.mu.Unlock()
		m.deps.Log.Error("lead creation failed", "error", err)
		return Snapshot{}, apperr.Unavailable(GenericFailureMessage, err).WithOp("contact")
	}

	if err := m.deps.Session.Set(detached, KeyLeadID, leadID); err != nil {
		m.report(detached, OpSessionWrite, err, leadID)
	}

	m.mu.Lock()
	m.submitting = false
	m.leadID = leadID
	m.contact = &contact
	if m.step == domain.StepCapture || m.step == "" {
		m.transitionLocked(domain.StepTimeline)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.emitFlowEvent(detached, domain.EventLeadCaptured, captureEventPayload(leadID, lead.Attribution))
	return snap, nil
}

// SelectTimeline records the timeline answer.
func (m *Machine) SelectTimeline(_ context.Context, v domain.Timeline) (Snapshot, error) {
	return m.answer(domain.StepTimeline, func(a *domain.Answers) { a.Timeline = &v })
}

// SelectQuote records whether the homeowner already has a quote.
func (m *Machine) SelectQuote(_ context.Context, v domain.QuoteStatus) (Snapshot, error) {
	return m.answer(domain.StepQuote, func(a *domain.Answers) { a.HasQuote = &v })
}

// SelectHomeowner records homeownership.
func (m *Machine) SelectHomeowner(_ context.Context, v bool) (Snapshot, error) {
	return m.answer(domain.StepHomeowner, func(a *domain.Answers) { a.Homeowner = &v })
}

func (m *Machine) answer(step domain.Step, set func(*domain.Answers)) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.expectLocked(step); err != nil {
		return Snapshot{}, err
	}
	set(&m.answers)
	next, _ := domain.Next(step)
	m.transitionLocked(next)
	return m.snapshotLocked(), nil
}

// SelectWindowScope records the last answer, scores the flow, runs the side
// effects and moves to result. Only one scoring sequence runs per flow;
// calls while it is in flight are no-ops.
func (m *Machine) SelectWindowScope(ctx context.Context, v domain.WindowScope) (Snapshot, error) {
	m.mu.Lock()
	if err := m.expectLocked(domain.StepWindowCount); err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	if m.finalizing {
		defer m.mu.Unlock()
		return m.snapshotLocked(), nil
	}
	if m.leadID == "" {
		m.mu.Unlock()
		return Snapshot{}, ErrMissingLead
	}

	m.answers.WindowScope = &v
	result := scoring.Score(m.answers)
	m.result = &result
	m.finalizing = true

	completion := domain.Completion{
		LeadID:  m.leadID,
		Answers: m.answers.Clone(),
		Result:  result,
	}
	if m.contact != nil {
		c := *m.contact
		completion.Contact = &c
	}
	m.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	m.deps.Dispatcher.Dispatch(detached, completion)

	if err := m.deps.Session.Set(detached, KeyCompleted, completion.LeadID); err != nil {
		m.report(detached, OpSessionWrite, err, completion.LeadID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizing = false
	m.transitionLocked(domain.StepResult)
	snap := m.snapshotLocked()
	if m.resetAfterFinalize && !m.open {
		m.resetAfterFinalize = false
		m.resetLocked()
	}
	return snap, nil
}

// Back moves one step back and clears the answer of the step returned to.
// It is unavailable from capture, timeline and result, and while the final
// submission is in flight.
func (m *Machine) Back(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return Snapshot{}, ErrFlowClosed
	}
	if m.finalizing || m.submitting {
		return Snapshot{}, ErrBackUnavailable
	}
	prev, ok := domain.Previous(m.step)
	if !ok {
		return Snapshot{}, ErrBackUnavailable
	}
	clearFrom(&m.answers, prev)
	m.transitionLocked(prev)
	return m.snapshotLocked(), nil
}

// Close closes the flow. A finished flow resets immediately; an unfinished
// one keeps its answers for ResetDelay so a quick reopen resumes it.
// In-flight collaborator calls are not cancelled.
func (m *Machine) Close(_ context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return m.snapshotLocked()
	}
	m.open = false
	m.reengagedThisOpen = false

	if m.step == domain.StepResult || m.opts.ResetDelay <= 0 {
		m.requestResetLocked()
		return m.snapshotLocked()
	}

	m.cancelResetLocked()
	gen := m.resetGen
	m.pendingReset = m.deps.Scheduler.AfterFunc(m.opts.ResetDelay, func() {
		m.deferredReset(gen)
	})
	return m.snapshotLocked()
}

func (m *Machine) deferredReset(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.resetGen || m.open {
		return
	}
	m.pendingReset = nil
	m.requestResetLocked()
	m.deps.Log.Debug("qualification flow reset after close")
}

// requestResetLocked clears the flow, or marks it for clearing once an
// in-flight final submission reaches result.
func (m *Machine) requestResetLocked() {
	if m.finalizing {
		m.resetAfterFinalize = true
		return
	}
	m.resetLocked()
}

func (m *Machine) cancelResetLocked() {
	m.resetGen++
	if m.pendingReset != nil {
		m.pendingReset.Stop()
		m.pendingReset = nil
	}
}

func (m *Machine) resetLocked() {
	m.answers = domain.Answers{}
	m.result = nil
	m.contact = nil
	m.leadID = ""
	m.step = ""
}

func (m *Machine) expectLocked(step domain.Step) error {
	if !m.open {
		return ErrFlowClosed
	}
	if m.step != step {
		return ErrInvalidStep
	}
	return nil
}

func (m *Machine) transitionLocked(to domain.Step) {
	from := m.step
	m.step = to
	m.deps.Log.FunnelTransition(m.leadID, string(from), string(to))
}

// clearFrom unsets the answer belonging to step and every later answer.
func clearFrom(a *domain.Answers, step domain.Step) {
	switch step {
	case domain.StepTimeline:
		a.Timeline = nil
		fallthrough
	case domain.StepQuote:
		a.HasQuote = nil
		fallthrough
	case domain.StepHomeowner:
		a.Homeowner = nil
		fallthrough
	case domain.StepWindowCount:
		a.WindowScope = nil
	}
}

func (m *Machine) normalizeContact(in ContactInput) (domain.Contact, ports.NewLead) {
	digits, _ := phone.Digits10(in.Phone)
	contact := domain.Contact{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:     digits,
	}

	return contact, ports.NewLead{
		FirstName:   contact.FirstName,
		LastName:    contact.LastName,
		Email:       contact.Email,
		Phone:       phone.NormalizeE164(digits, m.opts.PhoneRegion),
		Attribution: in.Attribution,
	}
}

// sessionGet fails the open rather than treating an unreadable store as an
// empty one, which would start a second lead for a returning session.
func (m *Machine) sessionGet(ctx context.Context, key string) (string, error) {
	v, err := m.deps.Session.Get(ctx, key)
	if err != nil {
		m.report(ctx, OpSessionRead, err, "")
		return "", apperr.Unavailable(GenericFailureMessage, err).WithOp("open")
	}
	return v, nil
}

func (m *Machine) emitFlowEvent(ctx context.Context, name string, payload map[string]any) {
	if m.deps.Emitter == nil {
		return
	}
	if err := m.deps.Emitter.Emit(ctx, name, payload); err != nil {
		m.report(ctx, OpEmitFlowEvent, err, "")
	}
}

func (m *Machine) report(ctx context.Context, op string, err error, leadID string) {
	if m.deps.Reporter == nil {
		m.deps.Log.SideEffectFailed(op, leadID, err)
		return
	}
	m.deps.Reporter.Report(ctx, op, err, map[string]any{"leadId": leadID})
}

func captureEventPayload(leadID string, attribution map[string]string) map[string]any {
	payload := map[string]any{"leadId": leadID}
	if len(attribution) > 0 {
		payload["attribution"] = attribution
	}
	return payload
}
