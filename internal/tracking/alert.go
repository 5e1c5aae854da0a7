package tracking

import (
	"context"
	"sync"

	"windowleads_backend/internal/email"
	"windowleads_backend/internal/events"
	"windowleads_backend/internal/leads/repository"
	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/platform/logger"
)

// LeadReader loads a stored lead.
type LeadReader interface {
	GetLead(ctx context.Context, leadID string) (repository.Lead, error)
}

// Alerter emails the sales inbox when a lead qualifies as HOT. Sending
// happens off the publishing goroutine.
type Alerter struct {
	sender email.Sender
	to     string
	leads  LeadReader
	log    *logger.Logger

	wg sync.WaitGroup
}

func NewAlerter(sender email.Sender, to string, leads LeadReader, log *logger.Logger) *Alerter {
	return &Alerter{sender: sender, to: to, leads: leads, log: log}
}

// Register subscribes the alerter on bus.
func (a *Alerter) Register(bus events.Bus) {
	bus.Subscribe(events.FunnelEventEmitted{}.EventName(), a)
}

func (a *Alerter) Handle(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.FunnelEventEmitted)
	if !ok || ev.Name != domain.MarketingEventFor(domain.SegmentHot).Name {
		return nil
	}

	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		alert := a.buildAlert(detached, ev)
		if err := a.sender.SendHotLeadAlert(detached, a.to, alert); err != nil {
			a.log.Error("hot lead alert failed", "leadId", ev.LeadID, "error", err)
			return
		}
		a.log.Info("hot lead alert sent", "leadId", ev.LeadID)
	}()
	return nil
}

// Wait blocks until pending alerts are sent.
func (a *Alerter) Wait() {
	a.wg.Wait()
}

func (a *Alerter) buildAlert(ctx context.Context, ev events.FunnelEventEmitted) email.HotLeadAlert {
	alert := email.HotLeadAlert{
		LeadID:      ev.LeadID,
		Score:       intFrom(ev.Payload["score"]),
		Segment:     stringFrom(ev.Payload["segment"]),
		Timeline:    stringFrom(ev.Payload["timeline"]),
		WindowScope: stringFrom(ev.Payload["windowScope"]),
	}
	if a.leads == nil {
		return alert
	}

	lead, err := a.leads.GetLead(ctx, ev.LeadID)
	if err != nil {
		a.log.Warn("hot lead alert without contact details", "leadId", ev.LeadID, "error", err)
		return alert
	}
	alert.FirstName = lead.FirstName
	alert.LastName = lead.LastName
	alert.Email = lead.Email
	alert.Phone = lead.Phone
	return alert
}
