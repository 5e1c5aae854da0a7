// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"windowleads_backend/platform/events"
	"windowleads_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus used by the API and worker.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Funnel Domain Events
// =============================================================================

// FunnelEventEmitted is published for every marketing or internal funnel
// signal (lead_captured, funnel_reengaged, qualified_lead_hot, ...).
type FunnelEventEmitted struct {
	BaseEvent
	Name     string         `json:"name"`
	Category string         `json:"category"`
	LeadID   string         `json:"leadId,omitempty"`
	Payload  map[string]any `json:"payload"`
}

func (e FunnelEventEmitted) EventName() string { return "funnel.event.emitted" }

// =============================================================================
// Call Queue Domain Events
// =============================================================================

// CallRequested is published by the call worker once a call request is stored.
type CallRequested struct {
	BaseEvent
	RequestID uuid.UUID      `json:"requestId"`
	LeadID    string         `json:"leadId"`
	Phone     string         `json:"phone"`
	Payload   map[string]any `json:"payload"`
}

func (e CallRequested) EventName() string { return "callqueue.call.requested" }
