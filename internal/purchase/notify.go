package purchase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/metrics"
)

// LogNotifier writes one structured entry per outcome.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) OnOutcome(ctx context.Context, outcome Outcome) {
	fields := map[string]any{
		"item_id":  outcome.ItemID.String(),
		"status":   outcome.Status.String(),
		"duration": outcome.Duration().String(),
	}
	if outcome.IntentID != uuid.Nil {
		fields["intent_id"] = outcome.IntentID.String()
	}
	if outcome.Buyer != "" {
		fields["identity"] = outcome.Buyer.String()
	}
	if outcome.Reason != "" {
		fields["reason"] = outcome.Reason.String()
	}
	if outcome.AllowanceTx != "" {
		fields["allowance_tx"] = outcome.AllowanceTx
	}
	if outcome.PurchaseTx != "" {
		fields["purchase_tx"] = outcome.PurchaseTx
	}
	if outcome.AllowanceOutstanding {
		fields["allowance_outstanding"] = true
	}
	ctx = n.logg.WithFields(ctx, fields)

	switch {
	case outcome.Succeeded():
		n.logg.Info(ctx, "purchase succeeded")
	case errors.Is(outcome.Cause, ErrCancelled):
		n.logg.Warn(ctx, "purchase cancelled")
	case outcome.Cause != nil:
		n.logg.Error(ctx, "purchase failed", outcome.Cause)
	default:
		n.logg.Warn(ctx, "purchase not attempted")
	}
}

// MetricsNotifier exports outcomes and in-flight attempts to Prometheus.
type MetricsNotifier struct {
	metrics *metrics.PurchaseMetrics
}

func NewMetricsNotifier(m *metrics.PurchaseMetrics) *MetricsNotifier {
	return &MetricsNotifier{metrics: m}
}

func (n *MetricsNotifier) OnOutcome(_ context.Context, outcome Outcome) {
	n.metrics.ObserveOutcome(outcome.Status.String(), outcome.Reason.String(), outcome.Duration())
}

func (n *MetricsNotifier) IntentCreated(context.Context, IntentSnapshot) {
	n.metrics.Started()
}

func (n *MetricsNotifier) PhaseChanged(context.Context, IntentSnapshot, string) {}

func (n *MetricsNotifier) IntentFinished(context.Context, IntentSnapshot, Outcome) {
	n.metrics.Finished()
}
