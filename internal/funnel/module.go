// Package funnel exposes the lead qualification flow over HTTP. Each visitor
// session owns one qualification machine held in a Registry.
package funnel

import (
	"context"

	apphttp "windowleads_backend/internal/http"
	"windowleads_backend/internal/qualification/machine"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/internal/session"
	"windowleads_backend/platform/config"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/metrics"
	"windowleads_backend/platform/validator"
)

// Deps are the shared collaborators handed to every session's machine.
type Deps struct {
	Leads      ports.LeadCreator
	Sessions   session.Store
	Dispatcher machine.Dispatcher
	Emitter    ports.EventEmitter
	Reporter   ports.ErrorReporter
	Validator  *validator.Validator
	Metrics    *metrics.Metrics
	Log        *logger.Logger
}

// Module is the funnel bounded context module implementing http.Module.
type Module struct {
	handler  *Handler
	registry *Registry
}

// NewModule wires the registry and handler.
func NewModule(deps Deps, cfg config.FunnelConfig) *Module {
	opts := machine.Options{
		ResetDelay:  cfg.GetFunnelResetDelay(),
		PhoneRegion: cfg.GetPhoneRegion(),
	}
	scheduler := machine.ClockScheduler()

	factory := func(sessionID string) *machine.Machine {
		return machine.New(machine.Deps{
			Leads:      deps.Leads,
			Session:    deps.Sessions.For(sessionID),
			Dispatcher: deps.Dispatcher,
			Emitter:    deps.Emitter,
			Reporter:   deps.Reporter,
			Scheduler:  scheduler,
			Validator:  deps.Validator,
			Log:        deps.Log.WithSessionID(sessionID),
		}, opts)
	}

	registry := NewRegistry(factory, cfg.GetFunnelIdleTTL(), deps.Metrics)
	return &Module{
		handler:  NewHandler(registry, deps.Metrics),
		registry: registry,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "funnel"
}

// RegisterRoutes mounts the funnel routes under /api/v1/funnel.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/funnel", ctx.SessionMiddleware, ctx.RateLimiter.RateLimit())
	m.handler.RegisterRoutes(group, ctx.ContactRateLimiter.RateLimit())
}

// Run evicts idle sessions until ctx is done.
func (m *Module) Run(ctx context.Context) {
	m.registry.Run(ctx)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
