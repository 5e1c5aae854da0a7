package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"windowleads_backend/internal/email"
	"windowleads_backend/internal/events"
	"windowleads_backend/internal/leads/repository"
	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeEventStore struct {
	err error
	got []repository.FunnelEventRecord
}

func (f *fakeEventStore) RecordFunnelEvent(_ context.Context, rec repository.FunnelEventRecord) error {
	f.got = append(f.got, rec)
	return f.err
}

type fakeSender struct {
	mu  sync.Mutex
	to  []string
	got []email.HotLeadAlert
}

func (f *fakeSender) SendHotLeadAlert(_ context.Context, to string, alert email.HotLeadAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.got = append(f.got, alert)
	return nil
}

type fakeLeadReader struct {
	lead repository.Lead
	err  error
}

func (f fakeLeadReader) GetLead(context.Context, string) (repository.Lead, error) {
	return f.lead, f.err
}

func TestEmitRecordsEventWithCategory(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	store := &fakeEventStore{}
	NewRecorder(store).Register(bus)
	m := metrics.New(false)
	emitter := NewEmitter(bus, m)

	err := emitter.Emit(context.Background(), "qualified_lead_warm", map[string]any{
		"category": domain.CategoryRetargeting,
		"leadId":   "lead-1",
		"score":    80,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(store.got) != 1 {
		t.Fatalf("expected one recorded event, got %d", len(store.got))
	}
	rec := store.got[0]
	if rec.Name != "qualified_lead_warm" || rec.Category != domain.CategoryRetargeting || rec.LeadID != "lead-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.OccurredAt.IsZero() {
		t.Fatalf("expected occurrence time")
	}
	if got := testutil.ToFloat64(m.FunnelEvents.WithLabelValues("qualified_lead_warm")); got != 1 {
		t.Fatalf("expected event counter 1, got %v", got)
	}
}

func TestEmitDefaultsCategoryByName(t *testing.T) {
	if got := categoryOf(domain.EventLeadCaptured, nil); got != domain.CategoryRetargeting {
		t.Fatalf("lead_captured category = %q", got)
	}
	if got := categoryOf(domain.EventReengaged, map[string]any{}); got != domain.CategoryInternalSignal {
		t.Fatalf("funnel_reengaged category = %q", got)
	}
}

func TestEmitSurfacesRecorderFailure(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	NewRecorder(&fakeEventStore{err: errors.New("insert failed")}).Register(bus)

	if err := NewEmitter(bus, nil).Emit(context.Background(), "low", map[string]any{}); err == nil {
		t.Fatalf("expected recorder failure to reach the caller")
	}
}

func TestAlerterSendsOnlyForHotLeads(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	sender := &fakeSender{}
	reader := fakeLeadReader{lead: repository.Lead{FirstName: "Dana", LastName: "Reyes", Phone: "+12015550123"}}
	alerter := NewAlerter(sender, "sales@example.com", reader, logger.Nop())
	alerter.Register(bus)
	emitter := NewEmitter(bus, nil)
	ctx := context.Background()

	if err := emitter.Emit(ctx, "qualified_lead_warm", map[string]any{"leadId": "lead-1"}); err != nil {
		t.Fatalf("Emit warm: %v", err)
	}
	if err := emitter.Emit(ctx, "qualified_lead_hot", map[string]any{
		"leadId":      "lead-2",
		"score":       130,
		"segment":     "HOT",
		"timeline":    "30days",
		"windowScope": "16_plus",
	}); err != nil {
		t.Fatalf("Emit hot: %v", err)
	}
	alerter.Wait()

	if len(sender.got) != 1 {
		t.Fatalf("expected one alert, got %d", len(sender.got))
	}
	got := sender.got[0]
	if sender.to[0] != "sales@example.com" || got.LeadID != "lead-2" || got.Score != 130 {
		t.Fatalf("unexpected alert %+v", got)
	}
	if got.FirstName != "Dana" || got.Phone != "+12015550123" {
		t.Fatalf("expected contact details from the lead, got %+v", got)
	}
}

func TestAlerterSendsWithoutContactWhenLookupFails(t *testing.T) {
	sender := &fakeSender{}
	alerter := NewAlerter(sender, "sales@example.com", fakeLeadReader{err: repository.ErrNotFound}, logger.Nop())

	err := alerter.Handle(context.Background(), events.FunnelEventEmitted{
		BaseEvent: events.NewBaseEvent(),
		Name:      "qualified_lead_hot",
		LeadID:    "lead-3",
		Payload:   map[string]any{"score": 110},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	alerter.Wait()

	if len(sender.got) != 1 || sender.got[0].Score != 110 || sender.got[0].FirstName != "" {
		t.Fatalf("unexpected alerts %+v", sender.got)
	}
}

func TestRecorderStoresCallRequests(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	store := &fakeEventStore{}
	NewRecorder(store).Register(bus)

	ev := events.CallRequested{
		BaseEvent: events.NewBaseEvent(),
		RequestID: uuid.New(),
		LeadID:    "lead-9",
		Phone:     "+12015550123",
	}
	if err := bus.PublishSync(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(store.got) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(store.got))
	}
	rec := store.got[0]
	if rec.Name != CallRequestedEvent || rec.Category != domain.CategoryInternalSignal || rec.LeadID != "lead-9" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Payload["requestId"] != ev.RequestID.String() {
		t.Fatalf("expected request id in payload, got %v", rec.Payload)
	}
}
