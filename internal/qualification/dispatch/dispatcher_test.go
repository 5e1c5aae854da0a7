package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/platform/logger"
)

const testPhone = "2015550123"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type journal struct {
	mu    sync.Mutex
	steps []string
}

func (j *journal) add(step string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.steps = append(j.steps, step)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.steps...)
}

type fakePersister struct {
	j   *journal
	err error
	got []ports.QualificationUpdate
}

func (f *fakePersister) UpdateQualification(_ context.Context, u ports.QualificationUpdate) error {
	f.j.add("persist")
	f.got = append(f.got, u)
	return f.err
}

type fakeEmitter struct {
	j       *journal
	err     error
	names   []string
	payload map[string]any
}

func (f *fakeEmitter) Emit(_ context.Context, name string, payload map[string]any) error {
	f.j.add("emit:" + name)
	f.names = append(f.names, name)
	f.payload = payload
	return f.err
}

type fakeCalls struct {
	j   *journal
	err error
	mu  sync.Mutex
	got []ports.CallRequest
}

func (f *fakeCalls) EnqueueCall(_ context.Context, req ports.CallRequest) error {
	f.j.add("enqueue")
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	return f.err
}

type fakeReporter struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeReporter) Report(_ context.Context, op string, _ error, _ map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakeReporter) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type harness struct {
	j        *journal
	persist  *fakePersister
	emit     *fakeEmitter
	calls    *fakeCalls
	reporter *fakeReporter
	d        *Dispatcher
}

func newHarness() *harness {
	j := &journal{}
	h := &harness{
		j:        j,
		persist:  &fakePersister{j: j},
		emit:     &fakeEmitter{j: j},
		calls:    &fakeCalls{j: j},
		reporter: &fakeReporter{},
	}
	h.d = New(h.persist, h.emit, h.calls, h.reporter, "US", logger.Nop())
	return h
}

func completion(tl domain.Timeline, q domain.QuoteStatus, owner bool, s domain.WindowScope, segment domain.Segment, score int, phoneNumber string) domain.Completion {
	c := domain.Completion{
		LeadID:  "lead-1",
		Answers: domain.Answers{Timeline: &tl, HasQuote: &q, Homeowner: &owner, WindowScope: &s},
		Result:  domain.ScoringResult{Score: score, Segment: segment},
	}
	if phoneNumber != "" {
		c.Contact = &domain.Contact{FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com", Phone: phoneNumber}
	}
	return c
}

func hot(phoneNumber string) domain.Completion {
	return completion(domain.Timeline30Days, domain.QuoteYes, true, domain.Scope16Plus, domain.SegmentHot, 130, phoneNumber)
}

func TestDispatchOrdersPersistBeforeEmitBeforeEnqueue(t *testing.T) {
	h := newHarness()

	out := h.d.Dispatch(context.Background(), hot(testPhone))
	h.d.Wait()

	steps := h.j.list()
	want := []string{"persist", "emit:qualified_lead_hot", "enqueue"}
	if len(steps) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, steps)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step %d: got %q, want %q (all: %v)", i, steps[i], want[i], steps)
		}
	}
	if !out.Persisted || !out.EventEmitted || !out.CallQueued {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := h.calls.got[0].Phone; got != "+12015550123" {
		t.Fatalf("expected E.164 phone, got %q", got)
	}
	if h.emit.payload["category"] != domain.CategoryRetargeting {
		t.Fatalf("expected retargeting category, got %v", h.emit.payload["category"])
	}
}

func TestDispatchStillEmitsWhenPersistenceFails(t *testing.T) {
	h := newHarness()
	h.persist.err = errors.New("crm unavailable")

	out := h.d.Dispatch(context.Background(), completion(domain.TimelineResearch, domain.QuoteNo, true, domain.Scope1To5, domain.SegmentNurture, 45, testPhone))
	h.d.Wait()

	if out.Persisted {
		t.Fatalf("expected Persisted=false after failure")
	}
	if len(h.emit.names) != 1 || h.emit.names[0] != "nurture" {
		t.Fatalf("expected nurture event after failed persistence, got %v", h.emit.names)
	}
	if h.emit.payload["score"] != 45 || h.emit.payload["segment"] != "NURTURE" {
		t.Fatalf("expected locally computed score in payload, got %v", h.emit.payload)
	}
	if ops := h.reporter.list(); len(ops) != 1 || ops[0] != OpPersistQualification {
		t.Fatalf("expected persistence failure to be reported, got %v", ops)
	}
}

func TestDispatchAbsorbsSideEffectFailures(t *testing.T) {
	h := newHarness()
	h.emit.err = errors.New("pixel down")
	h.calls.err = errors.New("queue down")

	out := h.d.Dispatch(context.Background(), hot(testPhone))
	h.d.Wait()

	if !out.Persisted || out.EventEmitted || !out.CallQueued {
		t.Fatalf("unexpected outcome %+v", out)
	}
	ops := h.reporter.list()
	if len(ops) != 2 || ops[0] != OpEmitMarketingEvent || ops[1] != OpEnqueueCall {
		t.Fatalf("expected emit and enqueue failures reported, got %v", ops)
	}
}

func TestCallRequestEligibility(t *testing.T) {
	tests := []struct {
		name string
		in   domain.Completion
		want bool
	}{
		{"hot homeowner 30 days", hot(testPhone), true},
		{"hot homeowner 90 days", completion(domain.Timeline90Days, domain.QuoteYes, true, domain.Scope16Plus, domain.SegmentHot, 120, testPhone), true},
		{"hot non homeowner", completion(domain.Timeline30Days, domain.QuoteYes, false, domain.Scope16Plus, domain.SegmentHot, 100, testPhone), false},
		{"hot 6 months", completion(domain.Timeline6Months, domain.QuoteYes, true, domain.Scope16Plus, domain.SegmentHot, 105, testPhone), false},
		{"warm homeowner 30 days", completion(domain.Timeline30Days, domain.QuoteNo, true, domain.Scope1To5, domain.SegmentWarm, 80, testPhone), false},
		{"hot without phone", hot(""), false},
		{"hot with unusable phone", hot("0000000000"), false},
	}

	for _, tc := range tests {
		_, got := CallRequestFor(tc.in, "US")
		if got != tc.want {
			t.Errorf("%s: CallRequestFor() eligible = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDispatchSkipsEnqueueForIneligibleLead(t *testing.T) {
	h := newHarness()

	out := h.d.Dispatch(context.Background(), completion(domain.Timeline30Days, domain.QuoteYes, false, domain.Scope16Plus, domain.SegmentHot, 100, testPhone))
	h.d.Wait()

	if out.CallQueued || len(h.calls.got) != 0 {
		t.Fatalf("expected no enqueue for non-homeowner")
	}
	if len(h.reporter.list()) != 0 {
		t.Fatalf("ineligible leads must not be reported as errors")
	}
}

func TestDispatchWithoutCallQueue(t *testing.T) {
	h := newHarness()
	h.d = New(h.persist, h.emit, nil, h.reporter, "US", logger.Nop())

	out := h.d.Dispatch(context.Background(), hot(testPhone))
	if out.CallQueued {
		t.Fatalf("expected no enqueue when call queue is disabled")
	}
}

func TestDispatchRejectsIncompleteAnswers(t *testing.T) {
	h := newHarness()
	c := hot(testPhone)
	c.Answers.WindowScope = nil

	h.d.Dispatch(context.Background(), c)

	if len(h.j.list()) != 0 {
		t.Fatalf("expected no side effects for incomplete answers, got %v", h.j.list())
	}
}
