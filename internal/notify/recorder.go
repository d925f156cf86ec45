package notify

import (
	"time"

	"github.com/marketfleet/courier/internal/channel"
	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/metrics"
)

// baseRetryDelay seeds the exponential backoff: 60s, 120s, 240s.
const baseRetryDelay = time.Minute

// retryDelay computes the backoff before retry number retryCount.
func retryDelay(retryCount int) time.Duration {
	d := baseRetryDelay
	for i := 1; i < retryCount; i++ {
		d *= 2
	}
	return d
}

// applyDispatch folds one dispatch cycle's per-channel results into the
// notification: appends delivery attempts and advances the status
// machine.
//
//   - Any successful channel (now or previously) makes the notification
//     sent. Partial failures do not retry once something went out.
//   - All channels failed with at least one transient failure: the retry
//     budget is spent one unit and the notification returns to pending
//     with exponential backoff, until the budget is exhausted.
//   - All failures permanent (bad addresses, missing tokens): retrying
//     cannot help, so the budget is exhausted immediately and the
//     notification is failed.
func applyDispatch(n *db.Notification, results map[db.Channel]channel.Result, now time.Time) {
	transient := false
	for _, ch := range n.Channels {
		res, ok := results[ch]
		if !ok {
			continue
		}

		attempt := db.DeliveryAttempt{
			Channel:           ch,
			AttemptedAt:       now,
			Provider:          res.Provider,
			ProviderMessageID: res.ProviderMessageID,
		}
		if res.Success {
			attempt.Status = db.StatusSent
			metrics.RecordDeliveryAttempt(string(ch), res.Provider, "sent")
		} else {
			attempt.Status = db.StatusFailed
			attempt.ErrorMessage = res.Error
			attempt.ErrorCode = res.ErrorCode
			if res.Transient {
				transient = true
			}
			metrics.RecordDeliveryAttempt(string(ch), res.Provider, "failed")
		}
		n.DeliveryAttempts = append(n.DeliveryAttempts, attempt)
	}

	if len(n.SucceededChannels()) > 0 {
		n.Status = db.StatusSent
		n.NextRetryAt = nil
		if n.SentAt == nil {
			t := now
			n.SentAt = &t
			for _, ch := range n.SucceededChannels() {
				metrics.RecordDispatchLatency(string(ch), now.Sub(n.CreatedAt))
			}
		}
		metrics.RecordFinalStatus(string(db.StatusSent))
		return
	}

	if !transient {
		n.RetryCount = n.MaxRetries
		markFailed(n, now)
		return
	}

	n.RetryCount++
	if n.RetryCount >= n.MaxRetries {
		markFailed(n, now)
		return
	}

	next := now.Add(retryDelay(n.RetryCount))
	n.Status = db.StatusPending
	n.NextRetryAt = &next
}

func markFailed(n *db.Notification, now time.Time) {
	n.Status = db.StatusFailed
	n.NextRetryAt = nil
	t := now
	n.FailedAt = &t
	metrics.RecordFinalStatus(string(db.StatusFailed))
}
