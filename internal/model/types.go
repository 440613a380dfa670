// Package model holds the shared entity types described in spec §3: the
// vocabulary every other notifyhub package (rate limiter, stores, channel
// adapters, dispatcher, ingestors, analytics) builds on. Keeping these in one
// leaf package avoids import cycles between the components that all need to
// talk about a DispatchRequest or a HistoryRecord.
package model

import "time"

// Channel is one of the four delivery modalities a notification can take.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// Valid reports whether c is one of the four known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	default:
		return false
	}
}

// Priority affects ordering tie-break and retry budget.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// rank gives a total order over priorities for tie-breaking, LOW < MEDIUM < HIGH < URGENT.
func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 0
	}
}

// Less reports whether p has a lower rank than other.
func (p Priority) Less(other Priority) bool { return p.rank() < other.rank() }

// TemplateCategory groups templates for preference opt-in/opt-out.
type TemplateCategory string

const (
	CategoryTrading   TemplateCategory = "TRADING"
	CategoryAccount   TemplateCategory = "ACCOUNT"
	CategorySecurity  TemplateCategory = "SECURITY"
	CategoryMarketing TemplateCategory = "MARKETING"
	CategorySystem    TemplateCategory = "SYSTEM"
)

// NotificationStatus is a HistoryRecord's position in the state machine
// described in spec §4.D.
type NotificationStatus string

const (
	StatusQueued     NotificationStatus = "QUEUED"
	StatusProcessing NotificationStatus = "PROCESSING"
	StatusSent       NotificationStatus = "SENT"
	StatusDelivered  NotificationStatus = "DELIVERED"
	StatusRead       NotificationStatus = "READ"
	StatusFailed     NotificationStatus = "FAILED"
	StatusCancelled  NotificationStatus = "CANCELLED"
)

// DispatchRequest is the immutable internal work item describing one
// notification to send.
type DispatchRequest struct {
	NotificationID     string
	CorrelationID      string
	Channel            Channel
	Recipient          string // recipient key (userId, email, phone, device token depending on channel)
	Address            string // optional explicit email/phone/device address; falls back to Recipient
	Subject            string
	Content            string
	TemplateName       string
	TemplateVariables  map[string]interface{}
	Priority           Priority
	ScheduledAt        *time.Time
	ReferenceID        string
	ReferenceType      string
	MaxRetryAttempts   int
	Category           TemplateCategory
}

// DeliveryAddress returns the address to hand to the channel adapter,
// preferring an explicit Address over the bare Recipient key.
func (r DispatchRequest) DeliveryAddress() string {
	if r.Address != "" {
		return r.Address
	}
	return r.Recipient
}

// HistoryRecord is the durable record of a single notification's lifecycle.
type HistoryRecord struct {
	NotificationID    string
	CorrelationID     string
	Channel           Channel
	Recipient         string
	Subject           string
	Content           string
	TemplateName      string
	Status            NotificationStatus
	RetryCount        int
	MaxRetryAttempts  int
	CreatedAt         time.Time
	LastAttemptAt     time.Time
	DeliveredAt       *time.Time
	ErrorMessage      string
	ExternalMessageID string
	ReferenceID       string
	ReferenceType     string
	UpdatedBy         string
}

// CanRetry reports whether this record is eligible for another attempt,
// i.e. status=FAILED and retryCount < maxRetryAttempts.
func (h HistoryRecord) CanRetry() bool {
	return h.Status == StatusFailed && h.RetryCount < h.MaxRetryAttempts
}

// Template is a versioned rendering spec for subject/content/HTML.
type Template struct {
	ID                int64
	TemplateName      string
	DisplayName       string
	Description       string
	Channel           Channel
	Category          TemplateCategory
	SubjectTemplate   string
	ContentTemplate   string
	HTMLTemplate      string
	Active            bool
	Version           int
	DefaultPriority   Priority
	RateLimitPerHour  int
	CreatedBy         string
	UpdatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserPreference is a user's personal policy controlling which
// notifications they receive, through which channel, and when.
type UserPreference struct {
	UserID               string
	NotificationsEnabled bool
	PreferredChannel     Channel
	EnabledChannels      map[Channel]bool
	EnabledCategories    map[TemplateCategory]bool
	EmailAddress         string
	PhoneNumber          string
	DeviceToken          string
	QuietHoursEnabled    bool
	QuietStart           string // "HH:MM" in TimeZone
	QuietEnd             string // "HH:MM" in TimeZone
	TimeZone             string
	FrequencyLimitPerHour int
	FrequencyLimitPerDay  int
	Language             string
	UpdatedAt            time.Time
}

// HasChannel reports whether c is among the user's enabled channels.
func (p UserPreference) HasChannel(c Channel) bool {
	return p.EnabledChannels[c]
}

// HasCategory reports whether cat is among the user's enabled categories.
func (p UserPreference) HasCategory(cat TemplateCategory) bool {
	if cat == "" {
		return true
	}
	return p.EnabledCategories[cat]
}
