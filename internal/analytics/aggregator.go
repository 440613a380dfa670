package analytics

import (
	"context"

	"notifyhub/internal/history"
	"notifyhub/internal/model"
)

// Aggregator is the component I contract: it fetches the relevant History
// slice for a request and reduces it with the pure functions in
// analytics.go. Every method here is the only impure layer in this
// package — the reduction itself stays deterministic and side-effect free.
type Aggregator struct {
	history *history.Store
}

// New builds an Aggregator over h.
func New(h *history.Store) *Aggregator { return &Aggregator{history: h} }

// DeliveryRate answers deliveryRate(channel, range).
func (a *Aggregator) DeliveryRate(ctx context.Context, channel model.Channel, r TimeRange) (DeliveryRate, error) {
	records, err := a.history.ListInRange(ctx, r.Start, r.End)
	if err != nil {
		return DeliveryRate{}, err
	}
	return ComputeDeliveryRate(records, channel), nil
}

// Engagement answers engagement(userId, range).
func (a *Aggregator) Engagement(ctx context.Context, userID string, r TimeRange) (Engagement, error) {
	records, err := a.history.ListByRecipientInRange(ctx, userID, r.Start, r.End)
	if err != nil {
		return Engagement{}, err
	}
	return ComputeEngagement(userID, records), nil
}

// ChannelPerformance answers channelPerformance(range).
func (a *Aggregator) ChannelPerformance(ctx context.Context, r TimeRange) ([]DeliveryRate, error) {
	records, err := a.history.ListInRange(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return ComputeChannelPerformance(records), nil
}

// TopFailureReasons answers the operator-triage extension to
// deliveryStatistics: the topN most common error messages in range.
func (a *Aggregator) TopFailureReasons(ctx context.Context, r TimeRange, topN int) ([]FailureReason, error) {
	records, err := a.history.ListInRange(ctx, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	return ComputeTopFailureReasons(records, topN), nil
}
