package channel

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/marketfleet/courier/internal/circuitbreaker"
	"github.com/marketfleet/courier/internal/db"
)

const multicastBatchSize = 500

// fcmClient is the slice of *messaging.Client the adapter uses; tests
// substitute a fake.
type fcmClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// PushAdapter delivers push notifications through Firebase Cloud
// Messaging. Targets resolve in order: explicit token list (multicast),
// topic, condition, then the recipient's device token.
type PushAdapter struct {
	client   fcmClient
	breakers *circuitbreaker.Registry
	logger   *zap.Logger
}

// NewPushAdapter initializes the Firebase app and messaging client.
// An empty credentials file leaves the adapter unconfigured.
func NewPushAdapter(ctx context.Context, credentialsFile, projectID string, breakers *circuitbreaker.Registry, logger *zap.Logger) (*PushAdapter, error) {
	a := &PushAdapter{breakers: breakers, logger: logger}
	if credentialsFile == "" {
		return a, nil
	}

	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: projectID},
		option.WithCredentialsFile(credentialsFile),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	a.client = client
	return a, nil
}

func (a *PushAdapter) Channel() db.Channel {
	return db.ChannelPush
}

func (a *PushAdapter) Configured() bool {
	return a.client != nil
}

func (a *PushAdapter) Send(ctx context.Context, n *db.Notification) Result {
	content := n.PushContent
	if content == nil {
		return invalid("fcm", "missing_content", "notification has no push content")
	}
	if content.Title == "" && content.Body == "" {
		return invalid("fcm", "missing_content", "push content has no title or body")
	}
	if !a.Configured() {
		return Result{
			Provider:  "fcm",
			Error:     "push provider not configured",
			ErrorCode: "no_provider",
			Transient: true,
		}
	}

	cb := a.breakers.For("fcm")
	if !cb.Allow() {
		return Result{
			Provider:  "fcm",
			Error:     "fcm circuit open",
			ErrorCode: "circuit_open",
			Transient: true,
		}
	}

	var res Result
	switch {
	case len(content.Tokens) > 0:
		res = a.sendMulticast(ctx, n, content)
	case content.Topic != "" || content.Condition != "":
		res = a.sendOne(ctx, n, content, "")
	case n.Recipient.DeviceToken != "":
		res = a.sendOne(ctx, n, content, n.Recipient.DeviceToken)
	default:
		return invalid("fcm", "missing_token", "recipient has no device token and content names no topic")
	}

	if res.Success {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
	return res
}

func (a *PushAdapter) buildMessage(content *db.PushContent, token string) *messaging.Message {
	msg := &messaging.Message{
		Token:     token,
		Topic:     content.Topic,
		Condition: content.Condition,
		Notification: &messaging.Notification{
			Title:    content.Title,
			Body:     content.Body,
			ImageURL: content.ImageURL,
		},
		Data: content.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Icon:        content.Icon,
				Sound:       orDefault(content.Sound, "default"),
				ClickAction: content.ClickAction,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: content.Title,
						Body:  content.Body,
					},
					Sound: orDefault(content.Sound, "default"),
					Badge: content.Badge,
				},
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: content.Title,
				Body:  content.Body,
				Icon:  content.Icon,
			},
		},
	}
	if content.ClickAction != "" {
		msg.Webpush.FCMOptions = &messaging.WebpushFCMOptions{Link: content.ClickAction}
	}
	return msg
}

func (a *PushAdapter) sendOne(ctx context.Context, n *db.Notification, content *db.PushContent, token string) Result {
	messageID, err := a.client.Send(ctx, a.buildMessage(content, token))
	if err != nil {
		return failure("fcm", transientErr("fcm_failed", fmt.Errorf("fcm send failed: %w", err)))
	}

	a.logger.Info("push sent via FCM",
		zap.String("id", n.ID.String()),
		zap.String("message_id", messageID),
	)
	return success("fcm", messageID)
}

// sendMulticast fans out to the token list in FCM's 500-token batches.
// The dispatch counts as successful when at least one device accepted
// the message.
func (a *PushAdapter) sendMulticast(ctx context.Context, n *db.Notification, content *db.PushContent) Result {
	tmpl := a.buildMessage(content, "")

	successCount := 0
	failureCount := 0

	for start := 0; start < len(content.Tokens); start += multicastBatchSize {
		end := min(start+multicastBatchSize, len(content.Tokens))

		batch := &messaging.MulticastMessage{
			Tokens:       content.Tokens[start:end],
			Notification: tmpl.Notification,
			Data:         tmpl.Data,
			Android:      tmpl.Android,
			APNS:         tmpl.APNS,
			Webpush:      tmpl.Webpush,
		}

		resp, err := a.client.SendEachForMulticast(ctx, batch)
		if err != nil {
			failureCount += end - start
			a.logger.Warn("fcm multicast batch failed",
				zap.String("id", n.ID.String()),
				zap.Error(err),
			)
			continue
		}
		successCount += resp.SuccessCount
		failureCount += resp.FailureCount
	}

	a.logger.Info("push multicast via FCM",
		zap.String("id", n.ID.String()),
		zap.Int("success", successCount),
		zap.Int("failure", failureCount),
	)

	if successCount == 0 {
		return failure("fcm", transientErr("fcm_multicast_failed",
			fmt.Errorf("all %d devices failed", failureCount)))
	}
	return success("fcm", fmt.Sprintf("multicast:%d/%d", successCount, successCount+failureCount))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
