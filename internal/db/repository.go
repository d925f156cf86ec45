package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a notification does not exist.
var ErrNotFound = errors.New("notification not found")

// Repository handles database operations for notifications
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const notificationColumns = `
	id, recipient, category, priority, channels,
	email_content, sms_content, push_content, in_app_content,
	status, delivery_attempts,
	scheduled_at, sent_at, delivered_at, read_at, failed_at,
	reference_type, reference_id,
	retry_count, max_retries, next_retry_at,
	opened, clicked, click_count, batch_id, deleted,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var n Notification
	var channels []string
	err := row.Scan(
		&n.ID, &n.Recipient, &n.Category, &n.Priority, &channels,
		&n.EmailContent, &n.SMSContent, &n.PushContent, &n.InAppContent,
		&n.Status, &n.DeliveryAttempts,
		&n.ScheduledAt, &n.SentAt, &n.DeliveredAt, &n.ReadAt, &n.FailedAt,
		&n.ReferenceType, &n.ReferenceID,
		&n.RetryCount, &n.MaxRetries, &n.NextRetryAt,
		&n.Opened, &n.Clicked, &n.ClickCount, &n.BatchID, &n.Deleted,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Channels = make([]Channel, len(channels))
	for i, c := range channels {
		n.Channels[i] = Channel(c)
	}
	return &n, nil
}

func channelStrings(channels []Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

// CreateNotification inserts a new notification.
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			id, recipient, category, priority, channels,
			email_content, sms_content, push_content, in_app_content,
			status, delivery_attempts,
			scheduled_at, reference_type, reference_id,
			retry_count, max_retries, next_retry_at, batch_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		RETURNING created_at, updated_at
	`

	if n.DeliveryAttempts == nil {
		n.DeliveryAttempts = []DeliveryAttempt{}
	}

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		n.ID,
		n.Recipient,
		n.Category,
		n.Priority,
		channelStrings(n.Channels),
		n.EmailContent,
		n.SMSContent,
		n.PushContent,
		n.InAppContent,
		n.Status,
		n.DeliveryAttempts,
		n.ScheduledAt,
		n.ReferenceType,
		n.ReferenceID,
		n.RetryCount,
		n.MaxRetries,
		n.NextRetryAt,
		n.BatchID,
	).Scan(&n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	r.logger.Info("notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("category", string(n.Category)),
		zap.Strings("channels", channelStrings(n.Channels)),
	)

	return nil
}

// GetNotification retrieves a notification by ID.
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("failed to get notification",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return n, nil
}

// UpdateDispatchState persists the outcome of one dispatch cycle: status,
// appended delivery attempts, retry bookkeeping and delivery timestamps.
// The full attempt list is written back; callers must hold the dispatch
// lock for this notification so cycles never interleave.
func (r *Repository) UpdateDispatchState(ctx context.Context, n *Notification) error {
	query := `
		UPDATE notifications
		SET status = $2, delivery_attempts = $3,
		    retry_count = $4, next_retry_at = $5,
		    sent_at = $6, failed_at = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		n.ID, n.Status, n.DeliveryAttempts,
		n.RetryCount, n.NextRetryAt,
		n.SentAt, n.FailedAt,
	)
	if err != nil {
		r.logger.Error("failed to update dispatch state",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("update dispatch state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, n.ID)
	}

	return nil
}

// ClaimDue atomically claims pending notifications that are due for
// dispatch: not scheduled for the future and past any retry backoff.
// Claimed rows get their next_retry_at pushed out by claimFor so that a
// crashed worker releases them after the horizon; FOR UPDATE SKIP LOCKED
// keeps concurrent workers from claiming the same row.
func (r *Repository) ClaimDue(ctx context.Context, limit int, claimFor time.Duration) ([]*Notification, error) {
	query := `
		UPDATE notifications
		SET next_retry_at = NOW() + $2::interval
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending'
			  AND deleted = FALSE
			  AND (scheduled_at IS NULL OR scheduled_at <= NOW())
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns

	rows, err := r.db.Pool().Query(ctx, query, limit, claimFor.String())
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// MarkDelivered moves a sent notification to delivered. Driven by provider
// delivery-confirmation callbacks.
func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE notifications
		SET status = 'delivered', delivered_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'sent' AND deleted = FALSE
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// CancelScheduled cancels a notification that has not been dispatched yet.
// Best effort: only pending notifications scheduled for the future qualify.
func (r *Repository) CancelScheduled(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE notifications
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND scheduled_at > NOW()
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("cancel scheduled: %w", err)
	}
	if result.RowsAffected() > 0 {
		r.logger.Info("scheduled notification cancelled", zap.String("notification_id", id.String()))
		return true, nil
	}
	return false, nil
}

// RecordOpen flags the notification as opened (tracking pixel / provider event).
func (r *Repository) RecordOpen(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notifications SET opened = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

// RecordClick increments the click counter.
func (r *Repository) RecordClick(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications
		SET clicked = TRUE, click_count = click_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

// InboxQuery narrows ListInbox results.
type InboxQuery struct {
	UserID     string
	UserType   UserType // optional
	UnreadOnly bool
	Limit      int
	Skip       int
}

// ListInbox returns a user's in-app notifications, newest first.
func (r *Repository) ListInbox(ctx context.Context, q InboxQuery) ([]*Notification, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient->>'user_id' = $1
		  AND channels @> ARRAY['in_app']
		  AND deleted = FALSE
		  AND ($2 = '' OR recipient->>'user_type' = $2)
		  AND ($3 = FALSE OR status <> 'read')
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.Pool().Query(ctx, query, q.UserID, string(q.UserType), q.UnreadOnly, q.Limit, q.Skip)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// UnreadCount counts a user's unread in-app notifications.
func (r *Repository) UnreadCount(ctx context.Context, userID string, userType UserType) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient->>'user_id' = $1
		  AND channels @> ARRAY['in_app']
		  AND deleted = FALSE
		  AND ($2 = '' OR recipient->>'user_type' = $2)
		  AND status <> 'read'
	`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID, string(userType)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read. The update only applies when the
// caller owns the notification and it is not already terminal.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	query := `
		UPDATE notifications
		SET status = 'read', read_at = NOW(), updated_at = NOW()
		WHERE id = $1
		  AND recipient->>'user_id' = $2
		  AND deleted = FALSE
		  AND status NOT IN ('read', 'failed', 'cancelled')
	`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// MarkAllRead marks every unread notification for a user as read and
// returns how many were updated.
func (r *Repository) MarkAllRead(ctx context.Context, userID string, userType UserType) (int64, error) {
	query := `
		UPDATE notifications
		SET status = 'read', read_at = NOW(), updated_at = NOW()
		WHERE recipient->>'user_id' = $1
		  AND deleted = FALSE
		  AND ($2 = '' OR recipient->>'user_type' = $2)
		  AND status NOT IN ('read', 'failed', 'cancelled')
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, string(userType))
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected(), nil
}

// SoftDelete hides a notification from the owner's inbox. Rows are never
// hard-deleted.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	query := `
		UPDATE notifications
		SET deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND recipient->>'user_id' = $2 AND deleted = FALSE
	`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("soft delete: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetPreferences loads a user's notification preferences. Returns
// (nil, nil) when the user never saved any.
func (r *Repository) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	query := `SELECT settings FROM notification_preferences WHERE user_id = $1`

	var p Preferences
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	p.UserID = userID
	return &p, nil
}

// UpsertPreferences saves a user's notification preferences.
func (r *Repository) UpsertPreferences(ctx context.Context, p *Preferences) error {
	query := `
		INSERT INTO notification_preferences (user_id, settings)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET settings = $2, updated_at = NOW()
	`

	if _, err := r.db.Pool().Exec(ctx, query, p.UserID, p); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
