package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"windowleads_backend/internal/callqueue"
	"windowleads_backend/internal/email"
	"windowleads_backend/internal/events"
	"windowleads_backend/internal/funnel"
	apphttp "windowleads_backend/internal/http"
	"windowleads_backend/internal/http/router"
	"windowleads_backend/internal/leads/repository"
	"windowleads_backend/internal/observability"
	"windowleads_backend/internal/qualification/dispatch"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/internal/session"
	"windowleads_backend/internal/tracking"
	"windowleads_backend/platform/config"
	"windowleads_backend/platform/db"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/metrics"
	"windowleads_backend/platform/validator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	health := []apphttp.HealthChecker{pool}
	sessions, closeSessions := initSessionStore(cfg, log)
	defer closeSessions()
	if checker, ok := sessions.(apphttp.HealthChecker); ok {
		health = append(health, checker)
	}

	m := metrics.New(true)
	eventBus := events.NewInMemoryBus(log)
	val := validator.New()
	repo := repository.New(pool)

	// ========================================================================
	// Side Effects
	// ========================================================================

	reporter := observability.NewReporter(log, m)
	emitter := tracking.NewEmitter(eventBus, m)
	tracking.NewRecorder(repo).Register(eventBus)

	var alerter *tracking.Alerter
	if cfg.IsAlertEnabled() {
		alerter = tracking.NewAlerter(email.NewSender(cfg), cfg.GetHotLeadAlertEmail(), repo, log)
		alerter.Register(eventBus)
		log.Info("hot lead alerts enabled", "to", cfg.GetHotLeadAlertEmail())
	}

	calls, closeCalls := initCallQueue(cfg, log)
	defer closeCalls()

	dispatcher := dispatch.New(repo, emitter, calls, reporter, cfg.GetPhoneRegion(), log)

	// ========================================================================
	// Modules
	// ========================================================================

	funnelModule := funnel.NewModule(funnel.Deps{
		Leads:      repo,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Emitter:    emitter,
		Reporter:   reporter,
		Validator:  val,
		Metrics:    m,
		Log:        log,
	}, cfg)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   health,
		Metrics:  m,
		EventBus: eventBus,
		Modules:  []apphttp.Module{funnelModule},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		funnelModule.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
	}

	// Let in-flight side effects finish before the pool and queue close.
	dispatcher.Wait()
	if alerter != nil {
		alerter.Wait()
	}
	log.Info("server shutdown complete")
}

// initSessionStore returns the Redis-backed store when REDIS_URL is set and
// the in-process store otherwise.
func initSessionStore(cfg config.SessionConfig, log *logger.Logger) (session.Store, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not set, lead sessions will not survive restarts")
		return session.NewMemoryStore(), func() {}
	}

	store, err := session.NewRedisStore(cfg.GetRedisURL(), cfg.GetSessionTTL())
	if err != nil {
		log.Error("failed to initialize redis session store", "error", err)
		panic("failed to initialize redis session store: " + err.Error())
	}
	return store, func() {
		_ = store.Close()
	}
}

func initCallQueue(cfg config.SchedulerConfig, log *logger.Logger) (ports.CallEnqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not set, call requests are disabled")
		return nil, func() {}
	}

	client, err := callqueue.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize call queue client", "error", err)
		return nil, func() {}
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
