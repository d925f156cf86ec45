package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/db"
)

const maxInboxPage = 100

// InboxStore is the persistence surface the inbox service needs.
// *db.Repository implements it.
type InboxStore interface {
	ListInbox(ctx context.Context, q db.InboxQuery) ([]*db.Notification, error)
	UnreadCount(ctx context.Context, userID string, userType db.UserType) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string, userType db.UserType) (int64, error)
	SoftDelete(ctx context.Context, id uuid.UUID, userID string) (bool, error)
}

// Inbox serves a user's in-app notification feed.
type Inbox struct {
	store  InboxStore
	logger *zap.Logger
}

// NewInbox creates the inbox service.
func NewInbox(store InboxStore, logger *zap.Logger) *Inbox {
	return &Inbox{store: store, logger: logger}
}

// List returns a page of the user's in-app notifications, newest first.
func (i *Inbox) List(ctx context.Context, q db.InboxQuery) ([]*db.Notification, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > maxInboxPage {
		q.Limit = maxInboxPage
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	return i.store.ListInbox(ctx, q)
}

// UnreadCount counts the user's unread in-app notifications.
func (i *Inbox) UnreadCount(ctx context.Context, userID string, userType db.UserType) (int, error) {
	return i.store.UnreadCount(ctx, userID, userType)
}

// MarkRead marks one notification read; false when the notification
// does not exist, belongs to someone else, or is already terminal.
func (i *Inbox) MarkRead(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	ok, err := i.store.MarkRead(ctx, id, userID)
	if err != nil {
		return false, err
	}
	if ok {
		i.logger.Debug("notification read",
			zap.String("notification_id", id.String()),
			zap.String("user_id", userID),
		)
	}
	return ok, nil
}

// MarkAllRead marks every unread notification for the user as read.
func (i *Inbox) MarkAllRead(ctx context.Context, userID string, userType db.UserType) (int64, error) {
	count, err := i.store.MarkAllRead(ctx, userID, userType)
	if err != nil {
		return 0, err
	}
	i.logger.Info("inbox marked read",
		zap.String("user_id", userID),
		zap.Int64("count", count),
	)
	return count, nil
}

// Delete hides a notification from the user's inbox.
func (i *Inbox) Delete(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	return i.store.SoftDelete(ctx, id, userID)
}
