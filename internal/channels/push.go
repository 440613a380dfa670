package channels

import (
	"context"

	"github.com/google/uuid"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

const maxPushLength = 2048

// PushGateway is the pluggable outbound mobile-push transport, following
// the same rationale as SMSGateway: no push-provider SDK appears anywhere
// in the examples pack, so notifyhub defines a minimal interface here.
type PushGateway interface {
	SendPush(ctx context.Context, deviceToken, title, body string) (externalMessageID string, err error)
}

// PushAdapter delivers DispatchRequests through a PushGateway. Whatever
// subject/content the Dispatcher resolved (templated or inline) is handed
// to the gateway as-is; push payloads carry no HTML variant.
type PushAdapter struct {
	gateway PushGateway
}

// NewPushAdapter builds a PushAdapter.
func NewPushAdapter(gateway PushGateway) *PushAdapter {
	return &PushAdapter{gateway: gateway}
}

func (a *PushAdapter) Channel() model.Channel { return model.ChannelPush }

// Send delivers req through the push gateway.
func (a *PushAdapter) Send(ctx context.Context, req model.DispatchRequest) (string, bool, error) {
	if a.gateway == nil {
		return "", false, apperr.New(apperr.KindMissingConfig, "no push gateway configured")
	}
	if req.DeliveryAddress() == "" {
		return "", false, apperr.New(apperr.KindValidation, "push requires a device token")
	}
	if len(req.Content) > maxPushLength {
		return "", false, apperr.New(apperr.KindValidation, "push body exceeds 2048 characters")
	}

	id, err := a.gateway.SendPush(ctx, req.DeliveryAddress(), req.Subject, req.Content)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	return id, false, nil
}
