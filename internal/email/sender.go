// Package email delivers internal notifications about qualified leads.
package email

import (
	"context"
	"fmt"
	"strings"

	"windowleads_backend/platform/config"
)

// HotLeadAlert is the content of a HOT lead notification.
type HotLeadAlert struct {
	LeadID      string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Score       int
	Segment     string
	Timeline    string
	WindowScope string
}

// Sender delivers notification emails.
type Sender interface {
	SendHotLeadAlert(ctx context.Context, toEmail string, alert HotLeadAlert) error
}

// NoopSender discards every message.
type NoopSender struct{}

func (NoopSender) SendHotLeadAlert(ctx context.Context, toEmail string, alert HotLeadAlert) error {
	return nil
}

// NewSender returns an SMTP sender when SMTP is configured, otherwise a NoopSender.
func NewSender(cfg config.AlertConfig) Sender {
	if strings.TrimSpace(cfg.GetSMTPHost()) == "" {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetSMTPFromAddress(),
		cfg.GetSMTPFromName(),
	)
}

func hotLeadContent(alert HotLeadAlert) (subject, html string, err error) {
	name := strings.TrimSpace(alert.FirstName + " " + alert.LastName)
	if name == "" {
		name = alert.LeadID
	}
	html, err = renderEmailTemplate("hot_lead.html", hotLeadEmailData{
		baseEmailData: baseEmailData{
			Title:      "HOT lead",
			Heading:    "New HOT lead",
			Subheading: "Call this homeowner while the interest is fresh.",
		},
		HotLeadAlert: alert,
		LeadName:     name,
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectHotLeadFmt, name, alert.Score), html, nil
}
