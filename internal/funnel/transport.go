package funnel

import (
	"windowleads_backend/internal/qualification/machine"
	"windowleads_backend/platform/sanitize"
)

// ContactRequest is the step-1 body. Attribution carries UTM parameters,
// the landing page and the referrer captured by the page.
type ContactRequest struct {
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	Attribution map[string]string `json:"attribution"`
}

// ChoiceRequest carries one option value for the timeline, quote and
// window-scope steps.
type ChoiceRequest struct {
	Value string `json:"value" binding:"required"`
}

// HomeownerRequest carries the yes/no homeowner answer.
type HomeownerRequest struct {
	Value *bool `json:"value" binding:"required"`
}

// StateResponse is returned by every funnel endpoint.
type StateResponse struct {
	machine.Snapshot
}

const (
	maxAttributionKeys  = 20
	maxAttributionKey   = 64
	maxAttributionValue = 512
)

func (r ContactRequest) toInput(referrer string) machine.ContactInput {
	attribution := make(map[string]string, len(r.Attribution)+1)
	for k, v := range r.Attribution {
		if len(attribution) >= maxAttributionKeys {
			break
		}
		key := sanitize.Truncate(sanitize.Text(k), maxAttributionKey)
		if key == "" {
			continue
		}
		attribution[key] = sanitize.Truncate(sanitize.Text(v), maxAttributionValue)
	}
	if _, ok := attribution["referrer"]; !ok && referrer != "" {
		attribution["referrer"] = sanitize.Truncate(referrer, maxAttributionValue)
	}

	return machine.ContactInput{
		FirstName:   sanitize.Text(r.FirstName),
		LastName:    sanitize.Text(r.LastName),
		Email:       r.Email,
		Phone:       r.Phone,
		Attribution: attribution,
	}
}
