package channels

import (
	"context"

	"github.com/google/uuid"

	"notifyhub/internal/apperr"
	"notifyhub/internal/model"
)

// InAppPusher is the subset of the Socket Hub (component H) the IN_APP
// adapter needs: push a message to a connected session, or report that
// none is connected.
type InAppPusher interface {
	Push(ctx context.Context, userID string, payload InAppPayload) (delivered bool, err error)
}

// InAppPayload is what gets pushed down an open socket session.
type InAppPayload struct {
	NotificationID string
	Subject        string
	Content        string
	Priority       model.Priority
}

// InAppAdapter delivers DispatchRequests to the Socket Hub. Whether a
// notification with no connected session is rejected up front or accepted
// and held for later delivery is the IN_APP_REQUIRE_SESSION policy the
// Dispatcher enforces before this adapter is ever called; by the time Send
// runs, the decision to attempt delivery has already been made.
type InAppAdapter struct {
	hub InAppPusher
}

// NewInAppAdapter builds an InAppAdapter.
func NewInAppAdapter(hub InAppPusher) *InAppAdapter {
	return &InAppAdapter{hub: hub}
}

func (a *InAppAdapter) Channel() model.Channel { return model.ChannelInApp }

// Send pushes req to the recipient's connected session, if any. The
// returned delivered flag reports whether a local session accepted the
// frame synchronously, letting the Dispatcher skip straight to DELIVERED
// instead of waiting on a later ack.
func (a *InAppAdapter) Send(ctx context.Context, req model.DispatchRequest) (string, bool, error) {
	if a.hub == nil {
		return "", false, apperr.New(apperr.KindMissingConfig, "no socket hub configured")
	}
	if req.Recipient == "" {
		return "", false, apperr.New(apperr.KindValidation, "IN_APP requires a recipient userId")
	}

	delivered, err := a.hub.Push(ctx, req.Recipient, InAppPayload{
		NotificationID: req.NotificationID,
		Subject:        req.Subject,
		Content:        req.Content,
		Priority:       req.Priority,
	})
	if err != nil {
		return "", false, err
	}
	return uuid.NewString(), delivered, nil
}
