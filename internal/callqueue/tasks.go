package callqueue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskCallRequest = "calls.request"

type CallRequestPayload struct {
	LeadID      string         `json:"leadId"`
	Phone       string         `json:"phone"`
	Payload     map[string]any `json:"payload,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
}

func NewCallRequestTask(payload CallRequestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallRequest, data), nil
}

func ParseCallRequestPayload(task *asynq.Task) (CallRequestPayload, error) {
	var payload CallRequestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CallRequestPayload{}, err
	}
	return payload, nil
}

// taskID makes enqueues idempotent per lead.
func taskID(leadID string) string {
	return "call-" + leadID
}
