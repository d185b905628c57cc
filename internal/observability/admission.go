package observability

import (
	"context"
	"roomgate/internal/admission"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DecisionMetrics counts admission decisions by check and outcome.
type DecisionMetrics struct {
	decisions metric.Int64Counter
}

var _ admission.DecisionRecorder = (*DecisionMetrics)(nil)

// NewDecisionMetrics creates the admission decision counter on meter.
func NewDecisionMetrics(meter metric.Meter) (*DecisionMetrics, error) {
	decisions, err := meter.Int64Counter(
		"admission.decisions",
		metric.WithDescription("Number of admission decisions by check and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &DecisionMetrics{decisions: decisions}, nil
}

func (m *DecisionMetrics) RecordDecision(ctx context.Context, check string, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

// CleanupNotifier counts force-ended rooms before handing them on.
type CleanupNotifier struct {
	next  admission.Notifier
	ended metric.Int64Counter
}

var _ admission.Notifier = (*CleanupNotifier)(nil)

// NewCleanupNotifier wraps next. A nil next logs.
func NewCleanupNotifier(meter metric.Meter, next admission.Notifier) (*CleanupNotifier, error) {
	ended, err := meter.Int64Counter(
		"rooms.force_ended",
		metric.WithDescription("Number of calls force-ended by room cleanup"),
		metric.WithUnit("{room}"),
	)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = admission.LogNotifier{}
	}
	return &CleanupNotifier{next: next, ended: ended}, nil
}

func (n *CleanupNotifier) NotifyRoomsEnded(ctx context.Context, rooms []string) error {
	n.ended.Add(ctx, int64(len(rooms)))
	return n.next.NotifyRoomsEnded(ctx, rooms)
}
