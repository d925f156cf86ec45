package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/db"
)

// InAppAdapter handles in-app notifications. Delivery is the row write
// itself: once the notification is stored, the inbox queries can serve
// it, so dispatch always succeeds immediately.
type InAppAdapter struct {
	logger *zap.Logger
}

// NewInAppAdapter creates the in-app adapter.
func NewInAppAdapter(logger *zap.Logger) *InAppAdapter {
	return &InAppAdapter{logger: logger}
}

func (a *InAppAdapter) Channel() db.Channel {
	return db.ChannelInApp
}

func (a *InAppAdapter) Configured() bool {
	return true
}

func (a *InAppAdapter) Send(ctx context.Context, n *db.Notification) Result {
	if n.InAppContent == nil {
		return invalid("in_app", "missing_content", "notification has no in-app content")
	}
	if n.Recipient.UserID == "" {
		return invalid("in_app", "missing_recipient", "in-app notifications require a user id")
	}

	a.logger.Debug("in-app notification delivered",
		zap.String("id", n.ID.String()),
		zap.String("user_id", n.Recipient.UserID),
	)
	return success("in_app", n.ID.String())
}
