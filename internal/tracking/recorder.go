package tracking

import (
	"context"

	"windowleads_backend/internal/events"
	"windowleads_backend/internal/leads/repository"
	"windowleads_backend/internal/qualification/domain"
)

// EventStore appends funnel events.
type EventStore interface {
	RecordFunnelEvent(ctx context.Context, rec repository.FunnelEventRecord) error
}

// CallRequestedEvent is the funnel_events name for a stored call request.
const CallRequestedEvent = "call_requested"

// Recorder writes every funnel event, and every stored call request, to the
// funnel_events table.
type Recorder struct {
	store EventStore
}

func NewRecorder(store EventStore) *Recorder {
	return &Recorder{store: store}
}

// Register subscribes the recorder on bus.
func (r *Recorder) Register(bus events.Bus) {
	bus.Subscribe(events.FunnelEventEmitted{}.EventName(), r)
	bus.Subscribe(events.CallRequested{}.EventName(), r)
}

func (r *Recorder) Handle(ctx context.Context, event events.Event) error {
	switch ev := event.(type) {
	case events.FunnelEventEmitted:
		return r.store.RecordFunnelEvent(ctx, repository.FunnelEventRecord{
			ID:         ev.ID,
			Name:       ev.Name,
			Category:   ev.Category,
			LeadID:     ev.LeadID,
			Payload:    ev.Payload,
			OccurredAt: ev.OccurredAt(),
		})
	case events.CallRequested:
		return r.store.RecordFunnelEvent(ctx, repository.FunnelEventRecord{
			ID:       ev.ID,
			Name:     CallRequestedEvent,
			Category: domain.CategoryInternalSignal,
			LeadID:   ev.LeadID,
			Payload: map[string]any{
				"requestId": ev.RequestID.String(),
				"phone":     ev.Phone,
			},
			OccurredAt: ev.OccurredAt(),
		})
	default:
		return nil
	}
}
