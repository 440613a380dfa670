package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"notifyhub/internal/model"
)

func sample() []model.HistoryRecord {
	return []model.HistoryRecord{
		{NotificationID: "1", Channel: model.ChannelEmail, Recipient: "alice", Status: model.StatusDelivered},
		{NotificationID: "2", Channel: model.ChannelEmail, Recipient: "alice", Status: model.StatusRead},
		{NotificationID: "3", Channel: model.ChannelEmail, Recipient: "bob", Status: model.StatusFailed, ErrorMessage: "smtp timeout"},
		{NotificationID: "4", Channel: model.ChannelSMS, Recipient: "bob", Status: model.StatusSent},
		{NotificationID: "5", Channel: model.ChannelSMS, Recipient: "carol", Status: model.StatusFailed, ErrorMessage: "smtp timeout"},
		{NotificationID: "6", Channel: model.ChannelSMS, Recipient: "carol", Status: model.StatusQueued},
	}
}

func TestComputeDeliveryRate(t *testing.T) {
	result := ComputeDeliveryRate(sample(), model.ChannelEmail)
	assert.Equal(t, 3, result.TotalSent)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.InDelta(t, 66.67, result.DeliveryRate, 0.01)
}

func TestComputeDeliveryRate_EmptyChannelIsZeroNotNaN(t *testing.T) {
	result := ComputeDeliveryRate(sample(), model.ChannelPush)
	assert.Equal(t, 0, result.TotalSent)
	assert.Equal(t, 0.0, result.DeliveryRate)
}

func TestComputeEngagement(t *testing.T) {
	result := ComputeEngagement("alice", sample())
	assert.Equal(t, 2, result.TotalSent)
	assert.Equal(t, 2, result.Delivered)
	assert.Equal(t, 1, result.Read)
	assert.InDelta(t, 0.3*1.0+0.7*0.5, result.EngagementScore, 0.0001)
}

func TestComputeChannelPerformance_SortedDescending(t *testing.T) {
	out := ComputeChannelPerformance(sample())
	assert.Len(t, out, 2)
	assert.GreaterOrEqual(t, out[0].DeliveryRate, out[1].DeliveryRate)
	assert.Equal(t, model.ChannelEmail, out[0].Channel)
}

func TestComputeTopFailureReasons(t *testing.T) {
	out := ComputeTopFailureReasons(sample(), 5)
	assert.Len(t, out, 1)
	assert.Equal(t, "smtp timeout", out[0].ErrorMessage)
	assert.Equal(t, 2, out[0].Count)
}

func TestComputeTopFailureReasons_RespectsLimit(t *testing.T) {
	records := append(sample(), model.HistoryRecord{Channel: model.ChannelSMS, Status: model.StatusFailed, ErrorMessage: "rejected"})
	out := ComputeTopFailureReasons(records, 1)
	assert.Len(t, out, 1)
}

func TestDeterministic_SameInputSameOutput(t *testing.T) {
	records := sample()
	a := ComputeChannelPerformance(records)
	b := ComputeChannelPerformance(records)
	assert.Equal(t, a, b)
}
