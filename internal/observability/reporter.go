// Package observability collects failures the funnel absorbs instead of
// surfacing to the visitor.
package observability

import (
	"context"

	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/metrics"
)

// Reporter logs each absorbed failure with its operation and counts it.
type Reporter struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewReporter creates a Reporter. m may be nil.
func NewReporter(log *logger.Logger, m *metrics.Metrics) *Reporter {
	return &Reporter{log: log, metrics: m}
}

func (r *Reporter) Report(ctx context.Context, operation string, err error, attrs map[string]any) {
	leadID, _ := attrs["leadId"].(string)
	log := r.log.WithContext(ctx)

	args := make([]any, 0, 2*len(attrs))
	for k, v := range attrs {
		if k == "leadId" {
			continue
		}
		args = append(args, k, v)
	}
	if len(args) > 0 {
		log = &logger.Logger{Logger: log.With(args...)}
	}
	log.SideEffectFailed(operation, leadID, err)

	if r.metrics != nil {
		r.metrics.SideEffectErrors.WithLabelValues(operation).Inc()
	}
}

var _ ports.ErrorReporter = (*Reporter)(nil)
