// Package analytics implements component I: pure, deterministic reductions
// over a slice of History records. Every operation here is a function of
// its input slice alone — no hidden clock, no I/O — so the same History
// slice always yields the same result, per spec.md §4.I.
package analytics

import (
	"sort"
	"time"

	"notifyhub/internal/model"
)

// TimeRange bounds a query as [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// DeliveryRate is the outcome of deliveryRate(channel, range).
type DeliveryRate struct {
	Channel      model.Channel
	TotalSent    int
	Delivered    int
	Failed       int
	DeliveryRate float64 // delivered / total * 100, 0 if total is 0
}

// ComputeDeliveryRate reduces records to the delivery-rate statistics for a
// single channel. "Sent" counts every record that left QUEUED for that
// channel (SENT, DELIVERED, READ, or terminal FAILED all count toward the
// attempted total); only DELIVERED/READ count as delivered.
func ComputeDeliveryRate(records []model.HistoryRecord, channel model.Channel) DeliveryRate {
	result := DeliveryRate{Channel: channel}
	for _, r := range records {
		if r.Channel != channel {
			continue
		}
		switch r.Status {
		case model.StatusSent, model.StatusDelivered, model.StatusRead:
			result.TotalSent++
			if r.Status == model.StatusDelivered || r.Status == model.StatusRead {
				result.Delivered++
			}
		case model.StatusFailed:
			result.TotalSent++
			result.Failed++
		}
	}
	if result.TotalSent > 0 {
		result.DeliveryRate = float64(result.Delivered) / float64(result.TotalSent) * 100
	}
	return result
}

// Engagement is the outcome of engagement(userId, range).
type Engagement struct {
	UserID          string
	TotalSent       int
	Delivered       int
	Read            int
	EngagementScore float64 // 0.3*deliveryRate + 0.7*readRate, both as fractions in [0,1]
}

// ComputeEngagement reduces one recipient's records into an engagement
// score blending delivery and read-through: 30% delivery rate, 70% read
// rate, both normalized to [0,1] rather than percentages.
func ComputeEngagement(userID string, records []model.HistoryRecord) Engagement {
	result := Engagement{UserID: userID}
	for _, r := range records {
		if r.Recipient != userID {
			continue
		}
		switch r.Status {
		case model.StatusSent, model.StatusDelivered, model.StatusRead, model.StatusFailed:
			result.TotalSent++
		}
		if r.Status == model.StatusDelivered || r.Status == model.StatusRead {
			result.Delivered++
		}
		if r.Status == model.StatusRead {
			result.Read++
		}
	}
	if result.TotalSent > 0 {
		deliveryRate := float64(result.Delivered) / float64(result.TotalSent)
		readRate := float64(result.Read) / float64(result.TotalSent)
		result.EngagementScore = 0.3*deliveryRate + 0.7*readRate
	}
	return result
}

// ComputeChannelPerformance reduces records into one DeliveryRate per
// channel observed, sorted by DeliveryRate descending (ties broken by
// channel name for determinism).
func ComputeChannelPerformance(records []model.HistoryRecord) []DeliveryRate {
	seen := map[model.Channel]bool{}
	var channels []model.Channel
	for _, r := range records {
		if !seen[r.Channel] {
			seen[r.Channel] = true
			channels = append(channels, r.Channel)
		}
	}

	out := make([]DeliveryRate, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ComputeDeliveryRate(records, ch))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeliveryRate != out[j].DeliveryRate {
			return out[i].DeliveryRate > out[j].DeliveryRate
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// FailureReason pairs an error message with its occurrence count.
type FailureReason struct {
	ErrorMessage string
	Count        int
}

// ComputeTopFailureReasons reduces FAILED records into the topN most
// frequent error messages, most frequent first (ties broken by message for
// determinism).
func ComputeTopFailureReasons(records []model.HistoryRecord, topN int) []FailureReason {
	counts := map[string]int{}
	for _, r := range records {
		if r.Status != model.StatusFailed || r.ErrorMessage == "" {
			continue
		}
		counts[r.ErrorMessage]++
	}

	out := make([]FailureReason, 0, len(counts))
	for msg, count := range counts {
		out = append(out, FailureReason{ErrorMessage: msg, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ErrorMessage < out[j].ErrorMessage
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
