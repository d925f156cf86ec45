package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/circuitbreaker"
	"github.com/marketfleet/courier/internal/db"
)

var e164Re = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// NormalizePhone converts a phone number to E.164. Formatting
// characters are stripped; "00" international prefixes become "+"; a
// leading "0" is replaced with defaultCountry (e.g. "+234") when one is
// configured. Returns an error when the result is not valid E.164.
func NormalizePhone(phone, defaultCountry string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting, drop
		default:
			return "", fmt.Errorf("invalid character %q in phone number", r)
		}
	}

	s := b.String()
	switch {
	case s == "":
		return "", fmt.Errorf("empty phone number")
	case strings.HasPrefix(s, "+"):
		// already international
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0") && defaultCountry != "":
		s = defaultCountry + s[1:]
	default:
		s = "+" + s
	}

	if !e164Re.MatchString(s) {
		return "", fmt.Errorf("not a valid E.164 number: %s", s)
	}
	return s, nil
}

// gsm7 holds the GSM 03.38 basic character set.
var gsm7 = func() map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà" {
		set[r] = true
	}
	return set
}()

// gsm7Extended characters encode as an escape plus the character, so
// they cost two septets.
var gsm7Extended = map[rune]bool{
	'^': true, '{': true, '}': true, '\\': true,
	'[': true, ']': true, '~': true, '|': true, '€': true,
}

// MessageSegments computes how many SMS segments a message occupies.
// GSM-7 messages fit 160 characters in one segment, 153 per segment
// once concatenation headers are needed. Unicode messages fit 70 and
// 67 respectively.
func MessageSegments(message string) int {
	if message == "" {
		return 0
	}

	length := 0
	unicode := false
	for _, r := range message {
		switch {
		case gsm7[r]:
			length++
		case gsm7Extended[r]:
			length += 2
		default:
			unicode = true
		}
	}

	if unicode {
		runes := len([]rune(message))
		if runes <= 70 {
			return 1
		}
		return (runes + 66) / 67
	}

	if length <= 160 {
		return 1
	}
	return (length + 152) / 153
}

// SMSProvider is one hop in the SMS fallback chain.
type SMSProvider interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, n *db.Notification, to string, content *db.SMSContent) (messageID string, err error)
}

// SMSAdapter normalizes the destination number and walks the provider
// chain. Unlike email, SMS advances to the next provider on any
// provider failure: carrier-side rejections are provider-specific
// often enough that a second gateway is worth trying.
type SMSAdapter struct {
	providers      []SMSProvider
	breakers       *circuitbreaker.Registry
	defaultCountry string
	logger         *zap.Logger
}

// NewSMSAdapter builds the SMS adapter with providers in fallback order.
func NewSMSAdapter(breakers *circuitbreaker.Registry, defaultCountry string, logger *zap.Logger, providers ...SMSProvider) *SMSAdapter {
	return &SMSAdapter{
		providers:      providers,
		breakers:       breakers,
		defaultCountry: defaultCountry,
		logger:         logger,
	}
}

func (a *SMSAdapter) Channel() db.Channel {
	return db.ChannelSMS
}

func (a *SMSAdapter) Configured() bool {
	for _, p := range a.providers {
		if p.Configured() {
			return true
		}
	}
	return false
}

func (a *SMSAdapter) Send(ctx context.Context, n *db.Notification) Result {
	content := n.SMSContent
	if content == nil {
		return invalid("sms", "missing_content", "notification has no sms content")
	}
	if content.Message == "" {
		return invalid("sms", "missing_message", "sms content has no message")
	}
	if n.Recipient.Phone == "" {
		return invalid("sms", "missing_recipient", "recipient has no phone number")
	}

	to, err := NormalizePhone(n.Recipient.Phone, a.defaultCountry)
	if err != nil {
		return invalid("sms", "invalid_phone", "invalid phone number: %v", err)
	}

	a.logger.Debug("dispatching sms",
		zap.String("notification_id", n.ID.String()),
		zap.Int("segments", MessageSegments(content.Message)),
	)

	var last Result
	attempted := false

	for _, p := range a.providers {
		if !p.Configured() {
			continue
		}

		cb := a.breakers.For(p.Name())
		if !cb.Allow() {
			a.logger.Warn("sms provider circuit open, trying next",
				zap.String("provider", p.Name()),
				zap.String("notification_id", n.ID.String()),
			)
			continue
		}

		attempted = true
		messageID, err := p.Send(ctx, n, to, content)
		if err == nil {
			cb.RecordSuccess()
			return success(p.Name(), messageID)
		}

		cb.RecordFailure()
		last = failure(p.Name(), err)
		a.logger.Warn("sms provider failed",
			zap.String("provider", p.Name()),
			zap.String("notification_id", n.ID.String()),
			zap.Error(err),
		)
	}

	if !attempted {
		return Result{
			Provider:  "sms",
			Error:     "no sms provider available",
			ErrorCode: "no_provider",
			Transient: true,
		}
	}
	return last
}

// --- Twilio (primary) ---

const twilioAPIBase = "https://api.twilio.com"

// TwilioProvider sends SMS through the Twilio Messages API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTwilioProvider creates a Twilio SMS provider.
func NewTwilioProvider(accountSID, authToken, from string, logger *zap.Logger) *TwilioProvider {
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (p *TwilioProvider) Name() string {
	return "twilio"
}

func (p *TwilioProvider) Configured() bool {
	return p.accountSID != "" && p.authToken != "" && p.from != ""
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (p *TwilioProvider) Send(ctx context.Context, n *db.Notification, to string, content *db.SMSContent) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", content.Message)
	if content.SenderID != "" {
		form.Set("From", content.SenderID)
	} else {
		form.Set("From", p.from)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, p.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", transientErr("twilio_unreachable", fmt.Errorf("twilio request failed: %w", err))
	}
	defer resp.Body.Close()

	var body twilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", transientErr("twilio_bad_response", fmt.Errorf("decode twilio response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return "", transientErr(
			fmt.Sprintf("twilio_%d", resp.StatusCode),
			fmt.Errorf("twilio server error %d: %s", resp.StatusCode, body.Message),
		)
	}
	if resp.StatusCode >= 400 {
		return "", permanentErr(
			fmt.Sprintf("twilio_%d", body.Code),
			fmt.Errorf("twilio rejected message (%d): %s", body.Code, body.Message),
		)
	}

	p.logger.Info("sms sent via Twilio",
		zap.String("id", n.ID.String()),
		zap.String("sid", body.SID),
	)

	return body.SID, nil
}

// --- AWS SNS (fallback) ---

// SNSProvider sends SMS via AWS SNS.
type SNSProvider struct {
	client *sns.Client
	logger *zap.Logger
}

// NewSNSProvider creates an SNS SMS provider; enabled reports whether
// the fallback should be wired at all.
func NewSNSProvider(ctx context.Context, region string, enabled bool, logger *zap.Logger) (*SNSProvider, error) {
	p := &SNSProvider{logger: logger}
	if !enabled {
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}
	p.client = sns.NewFromConfig(awsCfg)
	return p, nil
}

func (p *SNSProvider) Name() string {
	return "sns"
}

func (p *SNSProvider) Configured() bool {
	return p.client != nil
}

func (p *SNSProvider) Send(ctx context.Context, n *db.Notification, to string, content *db.SMSContent) (string, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(content.Message),
	}
	if content.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(content.SenderID),
			},
		}
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", transientErr("sns_failed", fmt.Errorf("sns publish failed: %w", err))
	}

	p.logger.Info("sms sent via SNS",
		zap.String("id", n.ID.String()),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return aws.ToString(result.MessageId), nil
}
