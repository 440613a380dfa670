package channels

import (
	"context"

	"github.com/google/uuid"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

const maxSMSLength = 1600

// SMSGateway is the pluggable outbound SMS transport. notifyhub ships no
// concrete provider in the examples pack — every provider SDK observed in
// the corpus is domain-specific (marketplace/payment), so this is the one
// boundary where notifyhub defines its own minimal interface rather than
// importing a third-party SMS client; see DESIGN.md for the justification.
type SMSGateway interface {
	SendSMS(ctx context.Context, to, body string) (externalMessageID string, err error)
}

// SMSAdapter delivers DispatchRequests through an SMSGateway. Rendering
// happens once, in the Dispatcher, before Send is ever called.
type SMSAdapter struct {
	gateway SMSGateway
}

// NewSMSAdapter builds an SMSAdapter.
func NewSMSAdapter(gateway SMSGateway) *SMSAdapter {
	return &SMSAdapter{gateway: gateway}
}

func (a *SMSAdapter) Channel() model.Channel { return model.ChannelSMS }

// Send delivers req's already-rendered content through the SMS gateway.
func (a *SMSAdapter) Send(ctx context.Context, req model.DispatchRequest) (string, bool, error) {
	if a.gateway == nil {
		return "", false, apperr.New(apperr.KindMissingConfig, "no SMS gateway configured")
	}

	address := req.DeliveryAddress()
	if address == "" {
		return "", false, apperr.New(apperr.KindValidation, "SMS recipient is required")
	}

	if len(req.Content) > maxSMSLength {
		return "", false, apperr.New(apperr.KindValidation, "SMS body exceeds 1600 characters")
	}

	id, err := a.gateway.SendSMS(ctx, address, req.Content)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id, false, nil
}
