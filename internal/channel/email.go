package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/marketfleet/courier/internal/circuitbreaker"
	"github.com/marketfleet/courier/internal/db"
)

// EmailProvider is one hop in the email fallback chain.
type EmailProvider interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, n *db.Notification, content *db.EmailContent) (messageID string, err error)
}

// EmailAdapter walks an ordered provider chain. A provider is skipped
// when unconfigured or its circuit is open; the chain advances on
// transient failures only. A permanent failure (rejected address,
// malformed content) stops the chain since every provider would reject
// the same message.
type EmailAdapter struct {
	providers []EmailProvider
	breakers  *circuitbreaker.Registry
	logger    *zap.Logger
}

// NewEmailAdapter builds the email adapter with providers in fallback order.
func NewEmailAdapter(breakers *circuitbreaker.Registry, logger *zap.Logger, providers ...EmailProvider) *EmailAdapter {
	return &EmailAdapter{
		providers: providers,
		breakers:  breakers,
		logger:    logger,
	}
}

func (a *EmailAdapter) Channel() db.Channel {
	return db.ChannelEmail
}

func (a *EmailAdapter) Configured() bool {
	for _, p := range a.providers {
		if p.Configured() {
			return true
		}
	}
	return false
}

func (a *EmailAdapter) Send(ctx context.Context, n *db.Notification) Result {
	content := n.EmailContent
	if content == nil {
		return invalid("email", "missing_content", "notification has no email content")
	}
	if n.Recipient.Email == "" {
		return invalid("email", "missing_recipient", "recipient has no email address")
	}
	if content.Subject == "" && content.TemplateID == "" {
		return invalid("email", "missing_subject", "email content has no subject")
	}

	var last Result
	attempted := false

	for _, p := range a.providers {
		if !p.Configured() {
			continue
		}

		cb := a.breakers.For(p.Name())
		if !cb.Allow() {
			a.logger.Warn("email provider circuit open, trying next",
				zap.String("provider", p.Name()),
				zap.String("notification_id", n.ID.String()),
			)
			continue
		}

		attempted = true
		messageID, err := p.Send(ctx, n, content)
		if err == nil {
			cb.RecordSuccess()
			return success(p.Name(), messageID)
		}

		cb.RecordFailure()
		last = failure(p.Name(), err)
		a.logger.Warn("email provider failed",
			zap.String("provider", p.Name()),
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)

		if !last.Transient {
			// Permanent rejection; other providers would refuse too.
			return last
		}
	}

	if !attempted {
		return Result{
			Provider:  "email",
			Error:     "no email provider available",
			ErrorCode: "no_provider",
			Transient: true,
		}
	}
	return last
}

// --- Postmark (primary) ---

// PostmarkProvider sends through the Postmark API, including
// provider-side templates when the content names one.
type PostmarkProvider struct {
	client *postmark.Client
	from   string
	logger *zap.Logger
}

// NewPostmarkProvider creates a Postmark provider. Unconfigured (empty
// token) providers are valid and simply skipped by the chain.
func NewPostmarkProvider(serverToken, accountToken, from string, logger *zap.Logger) *PostmarkProvider {
	p := &PostmarkProvider{from: from, logger: logger}
	if serverToken != "" {
		p.client = postmark.NewClient(serverToken, accountToken)
	}
	return p
}

func (p *PostmarkProvider) Name() string {
	return "postmark"
}

func (p *PostmarkProvider) Configured() bool {
	return p.client != nil && p.from != ""
}

func (p *PostmarkProvider) Send(ctx context.Context, n *db.Notification, content *db.EmailContent) (string, error) {
	if content.TemplateID != "" {
		return p.sendTemplated(ctx, n, content)
	}

	attachments := make([]postmark.Attachment, 0, len(content.Attachments))
	for _, a := range content.Attachments {
		attachments = append(attachments, postmark.Attachment{
			Name:        a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:        p.from,
		ReplyTo:     content.ReplyTo,
		To:          n.Recipient.Email,
		Cc:          strings.Join(content.CC, ","),
		Bcc:         strings.Join(content.BCC, ","),
		Subject:     content.Subject,
		HTMLBody:    content.HTMLBody,
		TextBody:    content.TextBody,
		Tag:         string(n.Category),
		TrackOpens:  true,
		TrackLinks:  "HtmlOnly",
		Attachments: attachments,
	})
	if err != nil {
		return "", transientErr("postmark_unreachable", err)
	}
	if resp.ErrorCode > 0 {
		return "", permanentErr(
			fmt.Sprintf("postmark_%d", resp.ErrorCode),
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return resp.MessageID, nil
}

func (p *PostmarkProvider) sendTemplated(ctx context.Context, n *db.Notification, content *db.EmailContent) (string, error) {
	model := make(map[string]any, len(content.TemplateData))
	for k, v := range content.TemplateData {
		model[k] = v
	}

	resp, err := p.client.SendTemplatedEmail(ctx, postmark.TemplatedEmail{
		TemplateAlias: content.TemplateID,
		TemplateModel: model,
		From:          p.from,
		ReplyTo:       content.ReplyTo,
		To:            n.Recipient.Email,
		Cc:            strings.Join(content.CC, ","),
		Bcc:           strings.Join(content.BCC, ","),
		Tag:           string(n.Category),
		TrackOpens:    true,
	})
	if err != nil {
		return "", transientErr("postmark_unreachable", err)
	}
	if resp.ErrorCode > 0 {
		return "", permanentErr(
			fmt.Sprintf("postmark_%d", resp.ErrorCode),
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return resp.MessageID, nil
}

// --- AWS SES (first fallback) ---

// SESProvider sends email via AWS SES.
type SESProvider struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

// NewSESProvider creates an SES provider in the given region. An empty
// from address leaves the provider unconfigured.
func NewSESProvider(ctx context.Context, region, from string, logger *zap.Logger) (*SESProvider, error) {
	p := &SESProvider{from: from, logger: logger}
	if from == "" {
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	p.client = ses.NewFromConfig(awsCfg)
	return p, nil
}

func (p *SESProvider) Name() string {
	return "ses"
}

func (p *SESProvider) Configured() bool {
	return p.client != nil && p.from != ""
}

func (p *SESProvider) Send(ctx context.Context, n *db.Notification, content *db.EmailContent) (string, error) {
	body := &sestypes.Body{}
	if content.HTMLBody != "" {
		body.Html = &sestypes.Content{
			Data:    aws.String(content.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if content.TextBody != "" {
		body.Text = &sestypes.Content{
			Data:    aws.String(content.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(p.from),
		Destination: &sestypes.Destination{
			ToAddresses:  []string{n.Recipient.Email},
			CcAddresses:  content.CC,
			BccAddresses: content.BCC,
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{
				Data:    aws.String(content.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: body,
		},
	}

	result, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", transientErr("ses_failed", fmt.Errorf("ses send failed: %w", err))
	}

	p.logger.Info("email sent via SES",
		zap.String("id", n.ID.String()),
		zap.String("to", n.Recipient.Email),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return aws.ToString(result.MessageId), nil
}

// --- SMTP (last resort) ---

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPProvider delivers through a plain SMTP relay with gomail.
type SMTPProvider struct {
	cfg    SMTPConfig
	logger *zap.Logger

	// send is swapped in tests; defaults to DialAndSend.
	send func(m *gomail.Message) error
}

// NewSMTPProvider creates the SMTP fallback provider.
func NewSMTPProvider(cfg SMTPConfig, logger *zap.Logger) *SMTPProvider {
	p := &SMTPProvider{cfg: cfg, logger: logger}
	p.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		return d.DialAndSend(m)
	}
	return p
}

func (p *SMTPProvider) Name() string {
	return "smtp"
}

func (p *SMTPProvider) Configured() bool {
	return p.cfg.Host != "" && p.cfg.From != ""
}

func (p *SMTPProvider) Send(ctx context.Context, n *db.Notification, content *db.EmailContent) (string, error) {
	if content.Subject == "" {
		return "", permanentErr("missing_subject", fmt.Errorf("smtp requires a rendered subject"))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.cfg.From)
	m.SetHeader("To", n.Recipient.Email)
	if len(content.CC) > 0 {
		m.SetHeader("Cc", content.CC...)
	}
	if len(content.BCC) > 0 {
		m.SetHeader("Bcc", content.BCC...)
	}
	if content.ReplyTo != "" {
		m.SetHeader("Reply-To", content.ReplyTo)
	}
	m.SetHeader("Subject", content.Subject)

	if content.HTMLBody != "" {
		m.SetBody("text/html", content.HTMLBody)
		if content.TextBody != "" {
			m.AddAlternative("text/plain", content.TextBody)
		}
	} else {
		m.SetBody("text/plain", content.TextBody)
	}

	if err := p.send(m); err != nil {
		return "", transientErr("smtp_failed", fmt.Errorf("smtp send failed: %w", err))
	}

	p.logger.Info("email sent via SMTP",
		zap.String("id", n.ID.String()),
		zap.String("to", n.Recipient.Email),
	)

	// SMTP gives no provider message id
	return "", nil
}
