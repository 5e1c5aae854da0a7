package funnel

import (
	"context"

	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/internal/qualification/machine"
	"windowleads_backend/platform/apperr"
	"windowleads_backend/platform/httpkit"
	"windowleads_backend/platform/metrics"

	"github.com/gin-gonic/gin"
)

const msgInvalidRequest = "invalid request"

type Handler struct {
	registry *Registry
	metrics  *metrics.Metrics
}

func NewHandler(registry *Registry, m *metrics.Metrics) *Handler {
	return &Handler{registry: registry, metrics: m}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, contactLimit gin.HandlerFunc) {
	rg.GET("/state", h.State)
	rg.POST("/open", h.Open)
	rg.POST("/contact", contactLimit, h.SubmitContact)
	rg.POST("/timeline", h.SelectTimeline)
	rg.POST("/quote", h.SelectQuote)
	rg.POST("/homeowner", h.SelectHomeowner)
	rg.POST("/window-scope", h.SelectWindowScope)
	rg.POST("/back", h.Back)
	rg.POST("/close", h.Close)
}

func (h *Handler) machineFor(c *gin.Context) *machine.Machine {
	return h.registry.Get(httpkit.SessionID(c))
}

func (h *Handler) State(c *gin.Context) {
	httpkit.OK(c, StateResponse{Snapshot: h.machineFor(c).Snapshot()})
}

func (h *Handler) Open(c *gin.Context) {
	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.Open(ctx)
	})
}

func (h *Handler) SubmitContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}

	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.SubmitContact(ctx, req.toInput(c.Request.Referer()))
	})
}

func (h *Handler) SelectTimeline(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	v, err := domain.ParseTimeline(req.Value)
	if httpkit.HandleError(c, err) {
		return
	}

	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.SelectTimeline(ctx, v)
	})
}

func (h *Handler) SelectQuote(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	v, err := domain.ParseQuoteStatus(req.Value)
	if httpkit.HandleError(c, err) {
		return
	}

	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.SelectQuote(ctx, v)
	})
}

func (h *Handler) SelectHomeowner(c *gin.Context) {
	var req HomeownerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}

	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.SelectHomeowner(ctx, *req.Value)
	})
}

func (h *Handler) SelectWindowScope(c *gin.Context) {
	var req ChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}
	v, err := domain.ParseWindowScope(req.Value)
	if httpkit.HandleError(c, err) {
		return
	}

	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.SelectWindowScope(ctx, v)
	})
}

func (h *Handler) Back(c *gin.Context) {
	m := h.machineFor(c)
	h.respond(c, m, m.Back)
}

func (h *Handler) Close(c *gin.Context) {
	m := h.machineFor(c)
	h.respond(c, m, func(ctx context.Context) (machine.Snapshot, error) {
		return m.Close(ctx), nil
	})
}

func (h *Handler) respond(c *gin.Context, m *machine.Machine, transition func(context.Context) (machine.Snapshot, error)) {
	before := m.Snapshot().Step

	snap, err := transition(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	h.observe(before, snap)
	httpkit.OK(c, StateResponse{Snapshot: snap})
}

func (h *Handler) observe(before domain.Step, snap machine.Snapshot) {
	if h.metrics == nil || before == snap.Step || snap.Step == "" {
		return
	}
	h.metrics.Transitions.WithLabelValues(string(before), string(snap.Step)).Inc()
	if snap.Step == domain.StepResult && snap.Result != nil {
		h.metrics.Qualified.WithLabelValues(string(snap.Result.Segment)).Inc()
	}
}
