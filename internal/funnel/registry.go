package funnel

import (
	"context"
	"sync"
	"time"

	"windowleads_backend/internal/qualification/machine"
	"windowleads_backend/platform/metrics"
)

// MachineFactory builds the machine for a new session.
type MachineFactory func(sessionID string) *machine.Machine

type entry struct {
	machine  *machine.Machine
	lastSeen time.Time
}

// Registry holds one qualification machine per visitor session and drops
// machines that have been idle longer than idleTTL.
type Registry struct {
	mu      sync.Mutex
	flows   map[string]*entry
	factory MachineFactory
	idleTTL time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewRegistry creates a Registry. m may be nil.
func NewRegistry(factory MachineFactory, idleTTL time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		flows:   make(map[string]*entry),
		factory: factory,
		idleTTL: idleTTL,
		now:     time.Now,
		metrics: m,
	}
}

// Get returns the session's machine, creating it on first use.
func (r *Registry) Get(sessionID string) *machine.Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.flows[sessionID]
	if !ok {
		e = &entry{machine: r.factory(sessionID)}
		r.flows[sessionID] = e
		r.updateGaugeLocked()
	}
	e.lastSeen = r.now()
	return e.machine
}

// Len returns the number of held machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep evicts idle machines and returns how many were dropped. Machines with
// a submission in flight are kept.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.idleTTL)
	evicted := 0
	for id, e := range r.flows {
		if e.lastSeen.After(cutoff) || e.machine.Snapshot().Busy {
			continue
		}
		delete(r.flows, id)
		evicted++
	}
	if evicted > 0 {
		r.updateGaugeLocked()
	}
	return evicted
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) updateGaugeLocked() {
	if r.metrics != nil {
		r.metrics.ActiveFlows.Set(float64(len(r.flows)))
	}
}
