package ingest

// TopicEventTypes maps each upstream topic in spec.md §6's topic set to the
// eventType values it may carry. An ingestor drops any record whose
// eventType isn't in its topic's set, without paying for a full decode.
var TopicEventTypes = map[string][]string{
	"trading-events": {
		"ORDER_PLACED", "ORDER_FILLED", "ORDER_CANCELLED", "ORDER_REJECTED",
	},
	"user-profile-events": {
		"PROFILE_UPDATED", "EMAIL_VERIFIED", "KYC_SUBMITTED", "KYC_VERIFIED",
	},
	"payment-events": {
		"DEPOSIT_COMPLETED", "WITHDRAWAL_COMPLETED", "PAYMENT_FAILED",
	},
	"security-events": {
		"SUSPICIOUS_LOGIN", "PASSWORD_CHANGED", "TWO_FA_ENABLED",
	},
	"portfolio-events": {
		"BALANCE_UPDATED", "POSITION_CLOSED",
	},
	"trading.notifications": {
		"PERFORMANCE_ALERT",
	},
}

// DefaultTopics lists the topic names Manager subscribes one ingestor to.
func DefaultTopics() []string {
	topics := make([]string, 0, len(TopicEventTypes))
	for t := range TopicEventTypes {
		topics = append(topics, t)
	}
	return topics
}
