package channels

import (
	"context"

	"github.com/google/uuid"

	"notifyhub/internal/model"
)

// Noop is a test double Adapter that always succeeds, used by dispatcher
// and scheduler tests that don't care about a specific channel's delivery
// mechanics.
type Noop struct {
	channel model.Channel
	OnSend  func(req model.DispatchRequest) error
}

// NewNoop builds a Noop adapter for the given channel.
func NewNoop(channel model.Channel) *Noop { return &Noop{channel: channel} }

func (n *Noop) Channel() model.Channel { return n.channel }

func (n *Noop) Send(ctx context.Context, req model.DispatchRequest) (string, bool, error) {
	if n.OnSend != nil {
		if err := n.OnSend(req); err != nil {
			return "", false, err
		}
	}
	return uuid.NewString(), false, nil
}
