package callqueue

import (
	"context"
	"fmt"
	"strings"

	"windowleads_backend/internal/events"
	"windowleads_backend/internal/leads/repository"
	"windowleads_backend/platform/config"
	"windowleads_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// CallStore records accepted call requests.
type CallStore interface {
	InsertCallRequest(ctx context.Context, rec repository.CallRequestRecord) (bool, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	store  CallStore
	bus    events.Bus
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, store CallStore, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		store:  store,
		bus:    bus,
		log:    log,
	}

	mux.HandleFunc(TaskCallRequest, w.handleCallRequest)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("call worker stopped", "error", err)
	}
}

func (w *Worker) handleCallRequest(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCallRequestPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if strings.TrimSpace(payload.LeadID) == "" || !strings.HasPrefix(payload.Phone, "+") {
		return fmt.Errorf("%w: call request needs a lead id and an E.164 phone", asynq.SkipRetry)
	}

	rec := repository.CallRequestRecord{
		ID:      uuid.New(),
		LeadID:  payload.LeadID,
		Phone:   payload.Phone,
		Payload: payload.Payload,
	}
	inserted, err := w.store.InsertCallRequest(ctx, rec)
	if err != nil {
		w.log.DatabaseError("insert call request", err)
		return err
	}
	if !inserted {
		w.log.Info("call request already recorded", "leadId", payload.LeadID)
		return nil
	}

	w.log.Info("call request recorded", "leadId", payload.LeadID, "requestId", rec.ID)

	if w.bus == nil {
		return nil
	}
	// The row is the source of truth; a failed subscriber must not re-run the task.
	if err := w.bus.PublishSync(ctx, events.CallRequested{
		BaseEvent: events.NewBaseEvent(),
		RequestID: rec.ID,
		LeadID:    rec.LeadID,
		Phone:     rec.Phone,
		Payload:   rec.Payload,
	}); err != nil {
		w.log.Error("call request subscribers failed", "leadId", rec.LeadID, "error", err)
	}
	return nil
}
