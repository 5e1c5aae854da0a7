package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"windowleads_backend/internal/callqueue"
	"windowleads_backend/internal/events"
	"windowleads_backend/internal/leads/repository"
	"windowleads_backend/internal/tracking"
	"windowleads_backend/platform/config"
	"windowleads_backend/platform/db"
	"windowleads_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Consumes call requests enqueued by the API and stores them for the sales
// dialer. Each stored request also lands in the funnel event log.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting call worker", "env", cfg.Env, "queue", cfg.GetAsynqQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	repo := repository.New(pool)
	eventBus := events.NewInMemoryBus(log)
	tracking.NewRecorder(repo).Register(eventBus)

	worker, err := callqueue.NewWorker(cfg, repo, eventBus, log)
	if err != nil {
		log.Error("failed to initialize call worker", "error", err)
		panic("failed to initialize call worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("call worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
