// Package tracking turns funnel events into bus events and the subscribers
// that act on them: the funnel_events recorder and the HOT lead alert.
package tracking

import (
	"context"

	"windowleads_backend/internal/events"
	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/platform/metrics"
)

// Emitter publishes funnel events on the bus. Subscribers run synchronously
// so their failures surface to the caller's error reporter.
type Emitter struct {
	bus     events.Bus
	metrics *metrics.Metrics
}

// NewEmitter creates an Emitter. m may be nil.
func NewEmitter(bus events.Bus, m *metrics.Metrics) *Emitter {
	return &Emitter{bus: bus, metrics: m}
}

func (e *Emitter) Emit(ctx context.Context, name string, payload map[string]any) error {
	ev := events.FunnelEventEmitted{
		BaseEvent: events.NewBaseEvent(),
		Name:      name,
		Category:  categoryOf(name, payload),
		LeadID:    stringFrom(payload["leadId"]),
		Payload:   payload,
	}
	if e.metrics != nil {
		e.metrics.FunnelEvents.WithLabelValues(name).Inc()
	}
	return e.bus.PublishSync(ctx, ev)
}

// categoryOf prefers the category the dispatcher put in the payload.
// lead_captured feeds ad-platform retargeting; other flow events are internal.
func categoryOf(name string, payload map[string]any) string {
	if c := stringFrom(payload["category"]); c != "" {
		return c
	}
	if name == domain.EventLeadCaptured {
		return domain.CategoryRetargeting
	}
	return domain.CategoryInternalSignal
}

func stringFrom(v any) string {
	s, _ := v.(string)
	return s
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

var _ ports.EventEmitter = (*Emitter)(nil)
