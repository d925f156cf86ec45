package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/metrics"
)

// PreferenceStore loads a user's saved preferences; (nil, nil) means the
// user never saved any.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*db.Preferences, error)
}

// FrequencyCapper enforces a per-user per-channel send cap.
// *redis.FrequencyCaps implements it.
type FrequencyCapper interface {
	Allow(ctx context.Context, userID, channel string, limit int, window time.Duration) (bool, error)
}

// Suppression records one channel removed by preference filtering.
type Suppression struct {
	Channel db.Channel `json:"channel"`
	Reason  string     `json:"reason"`
}

// PreferenceFilter decides which requested channels a notification may
// actually use, given the recipient's saved preferences.
//
// Security alerts bypass filtering entirely. A missing or unreadable
// preference row fails open: losing a notification is worse than
// sending one the user could have opted out of.
type PreferenceFilter struct {
	store  PreferenceStore
	caps   FrequencyCapper
	logger *zap.Logger
}

// NewPreferenceFilter creates the filter. caps may be nil when no Redis
// is available; frequency caps are then skipped.
func NewPreferenceFilter(store PreferenceStore, caps FrequencyCapper, logger *zap.Logger) *PreferenceFilter {
	return &PreferenceFilter{store: store, caps: caps, logger: logger}
}

// Filter returns the channels that survive the user's preferences and
// the suppressions applied, in requested order.
func (f *PreferenceFilter) Filter(ctx context.Context, n *db.Notification) ([]db.Channel, []Suppression) {
	if n.Category == db.CategorySecurityAlert {
		return n.Channels, nil
	}

	prefs, err := f.store.GetPreferences(ctx, n.Recipient.UserID)
	if err != nil {
		f.logger.Warn("preference lookup failed, sending unfiltered",
			zap.String("user_id", n.Recipient.UserID),
			zap.Error(err),
		)
		return n.Channels, nil
	}
	if prefs == nil {
		prefs = db.DefaultPreferences(n.Recipient.UserID)
	}

	if !prefs.CategoryAllowed(n.Category) {
		suppressed := make([]Suppression, 0, len(n.Channels))
		for _, ch := range n.Channels {
			suppressed = append(suppressed, Suppression{Channel: ch, Reason: "category_opt_out"})
			metrics.RecordPreferenceSuppression(string(ch), "category_opt_out")
		}
		return nil, suppressed
	}

	quiet := f.inQuietHours(prefs, time.Now())

	var allowed []db.Channel
	var suppressed []Suppression

	suppress := func(ch db.Channel, reason string) {
		suppressed = append(suppressed, Suppression{Channel: ch, Reason: reason})
		metrics.RecordPreferenceSuppression(string(ch), reason)
	}

	for _, ch := range n.Channels {
		if !prefs.ChannelAllowed(ch) {
			suppress(ch, "channel_disabled")
			continue
		}

		// Quiet hours silence the interruptive channels; email and
		// in-app wait in the inbox anyway. High priority rings through.
		if quiet && n.Priority != db.PriorityHigh && (ch == db.ChannelSMS || ch == db.ChannelPush) {
			suppress(ch, "quiet_hours")
			continue
		}

		if !f.underCap(ctx, n.Recipient.UserID, ch, prefs) {
			suppress(ch, "frequency_cap")
			continue
		}

		allowed = append(allowed, ch)
	}

	return allowed, suppressed
}

func (f *PreferenceFilter) underCap(ctx context.Context, userID string, ch db.Channel, prefs *db.Preferences) bool {
	if f.caps == nil {
		return true
	}

	var limit int
	var window time.Duration
	switch ch {
	case db.ChannelEmail:
		limit, window = prefs.MaxEmailsPerDay, 24*time.Hour
	case db.ChannelSMS:
		limit, window = prefs.MaxSMSPerDay, 24*time.Hour
	case db.ChannelPush:
		limit, window = prefs.MaxPushPerHour, time.Hour
	default:
		return true
	}

	ok, err := f.caps.Allow(ctx, userID, string(ch), limit, window)
	if err != nil {
		f.logger.Warn("frequency cap check failed, allowing send",
			zap.String("user_id", userID),
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
		return true
	}
	return ok
}

// inQuietHours evaluates the user's quiet hours window in their
// timezone, handling windows that wrap midnight.
func (f *PreferenceFilter) inQuietHours(prefs *db.Preferences, now time.Time) bool {
	if !prefs.QuietHoursEnabled {
		return false
	}

	start, errS := parseClock(prefs.QuietHoursStart)
	end, errE := parseClock(prefs.QuietHoursEnd)
	if errS != nil || errE != nil || start == end {
		return false
	}

	loc, err := time.LoadLocation(prefs.QuietHoursTimezone)
	if err != nil {
		loc = time.UTC
	}

	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	if start < end {
		return minutes >= start && minutes < end
	}
	// window wraps midnight, e.g. 22:00-08:00
	return minutes >= start || minutes < end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
