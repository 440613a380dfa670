package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"notifyhub/internal/model"
)

// eventEnvelope is the minimal shape every upstream record must satisfy;
// ingestor.go peeks at eventType before paying for a full decode, per the
// "filter before deserialize" rule.
type eventEnvelope struct {
	EventType string `json:"eventType"`
}

// rawEvent is the typed-event variant stand-in: every field upstream
// producers might send, decoded permissively. Individual ingestors only
// read the subset relevant to their topic's event types.
type rawEvent struct {
	EventType string                 `json:"eventType"`
	UserID    string                 `json:"userId"`
	Email     string                 `json:"email"`
	Fields    map[string]interface{} `json:"-"`
}

func decodeRawEvent(payload []byte) (rawEvent, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(payload, &generic); err != nil {
		return rawEvent{}, err
	}
	ev := rawEvent{Fields: generic}
	if v, ok := generic["eventType"].(string); ok {
		ev.EventType = v
	}
	if v, ok := generic["userId"].(string); ok {
		ev.UserID = v
	}
	if v, ok := generic["email"].(string); ok {
		ev.Email = v
	}
	return ev, nil
}

func (e rawEvent) field(name string) string {
	if v, ok := e.Fields[name]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// recipient picks the delivery address: the event's own email field if
// present, else the userId (the preference/dispatch layers key channel
// selection and quiet-hours off the userId either way).
func (e rawEvent) recipient() string {
	if e.Email != "" {
		return e.Email
	}
	return e.UserID
}

// defaultSubject and defaultContent produce a human-readable fallback when
// no active template exists for the route's templateName, per spec.md
// §4.G step 3 ("fallback DispatchRequest from a per-eventType default
// formatter").
func defaultSubject(eventType string) string {
	return humanize(eventType)
}

func defaultContent(e rawEvent) string {
	switch e.EventType {
	case "ORDER_PLACED", "ORDER_FILLED", "ORDER_CANCELLED", "ORDER_REJECTED":
		return fmt.Sprintf("Order %s: %s", e.field("orderId"), humanize(e.EventType))
	case "DEPOSIT_COMPLETED", "WITHDRAWAL_COMPLETED":
		return fmt.Sprintf("%s of %s %s completed", humanize(e.EventType), e.field("amount"), e.field("currency"))
	case "PAYMENT_FAILED":
		return fmt.Sprintf("Payment failed: %s", e.field("reason"))
	case "SUSPICIOUS_LOGIN":
		return fmt.Sprintf("Suspicious login detected from %s", e.field("ipAddress"))
	case "BALANCE_UPDATED":
		return fmt.Sprintf("Balance updated to %s %s", e.field("amount"), e.field("currency"))
	case "POSITION_CLOSED":
		return fmt.Sprintf("Position %s closed with P/L %s", e.field("symbol"), e.field("profitLoss"))
	default:
		return humanize(e.EventType) + " notification"
	}
}

func humanize(eventType string) string {
	out := make([]rune, 0, len(eventType))
	upperNext := true
	for _, r := range eventType {
		switch {
		case r == '_':
			out = append(out, ' ')
			upperNext = true
		case upperNext:
			out = append(out, r)
			upperNext = false
		default:
			out = append(out, toLower(r))
		}
	}
	return string(out)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// buildDispatchRequest turns one decoded event into a DispatchRequest with a
// freshly generated notificationId and default formatter subject/content;
// when a route was found it also carries the route's templateName, category
// and priority.
func buildDispatchRequest(route Route, found bool, e rawEvent, correlationID string) (model.DispatchRequest, error) {
	recipient := e.recipient()
	if recipient == "" {
		return model.DispatchRequest{}, fmt.Errorf("event %s carries no userId or email", e.EventType)
	}

	req := model.DispatchRequest{
		NotificationID:    uuid.NewString(),
		CorrelationID:     correlationID,
		Channel:           model.ChannelEmail,
		Recipient:         recipient,
		Priority:          model.PriorityMedium,
		MaxRetryAttempts:  3,
		ReferenceType:     "ingest",
		TemplateVariables: e.Fields,
	}

	if found {
		req.TemplateName = route.TemplateName
		req.Category = route.Category
		req.Priority = route.Priority
	}

	req.Subject = defaultSubject(e.EventType)
	req.Content = defaultContent(e)
	return req, nil
}
