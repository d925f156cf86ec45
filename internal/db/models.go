package db

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies one delivery mechanism.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// ValidChannel reports whether c is one of the supported channels.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Status is the notification delivery state machine.
// Transitions only move forward, except pending->pending on reschedule.
// failed, read and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Priority is advisory; it is preserved but does not change delivery guarantees.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Category classifies the purpose of a notification. It drives preference
// filtering and template lookup.
type Category string

const (
	CategoryBookingConfirmation Category = "booking_confirmation"
	CategoryBookingUpdate       Category = "booking_update"
	CategoryBookingCancelled    Category = "booking_cancelled"
	CategoryPaymentReceived     Category = "payment_received"
	CategoryPaymentFailed       Category = "payment_failed"
	CategorySecurityAlert       Category = "security_alert"
	CategoryAccount             Category = "account"
	CategoryMarketing           Category = "marketing"
	CategoryNewsletter          Category = "newsletter"
	CategoryReminder            Category = "reminder"
	CategorySocial              Category = "social"
	CategorySystem              Category = "system"
)

// UserType distinguishes the marketplace audiences a notification can target.
type UserType string

const (
	UserTypeUser   UserType = "user"
	UserTypeVendor UserType = "vendor"
	UserTypeAgent  UserType = "agent"
	UserTypeAdmin  UserType = "admin"
)

// Recipient holds addressing for every channel a notification may use.
// Each requested channel requires its matching field to be populated.
type Recipient struct {
	UserID      string   `json:"user_id,omitempty"`
	UserType    UserType `json:"user_type,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	DeviceToken string   `json:"device_token,omitempty"`
	Name        string   `json:"name,omitempty"`
}

// Attachment is a base64-encoded email attachment.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// EmailContent is the email-specific payload. When TemplateID is set it
// refers to a provider-side template and overrides the raw bodies.
type EmailContent struct {
	Subject      string            `json:"subject"`
	HTMLBody     string            `json:"html_body,omitempty"`
	TextBody     string            `json:"text_body,omitempty"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
	CC           []string          `json:"cc,omitempty"`
	BCC          []string          `json:"bcc,omitempty"`
	ReplyTo      string            `json:"reply_to,omitempty"`
}

// SMSContent is the sms-specific payload.
type SMSContent struct {
	Message  string `json:"message"`
	SenderID string `json:"sender_id,omitempty"`
	Unicode  bool   `json:"unicode,omitempty"`
}

// PushContent is the push-specific payload. Topic or Condition may replace
// the recipient device token for broadcast sends.
type PushContent struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	ImageURL    string            `json:"image_url,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Badge       *int              `json:"badge,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	Data        map[string]string `json:"data,omitempty"`

	// Alternative push targets. When set they take precedence over the
	// recipient's device token: Tokens fans out to many devices, Topic
	// and Condition address FCM subscriptions.
	Tokens    []string `json:"tokens,omitempty"`
	Topic     string   `json:"topic,omitempty"`
	Condition string   `json:"condition,omitempty"`
}

// InAppContent is stored and later served through the inbox queries.
type InAppContent struct {
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Icon       string     `json:"icon,omitempty"`
	ActionURL  string     `json:"action_url,omitempty"`
	ActionText string     `json:"action_text,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// DeliveryAttempt is one immutable record of one try to deliver one
// notification over one channel. The list on a notification is append-only.
type DeliveryAttempt struct {
	Channel           Channel   `json:"channel"`
	AttemptedAt       time.Time `json:"attempted_at"`
	Status            Status    `json:"status"`
	Provider          string    `json:"provider,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ErrorCode         string    `json:"error_code,omitempty"`
}

// DefaultMaxRetries bounds automatic re-dispatch after transient failures.
const DefaultMaxRetries = 3

// Notification is one send request. It fans out to the channels listed in
// Channels; per-channel content lives in the matching *Content field.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Recipient Recipient `json:"recipient"`

	Category Category  `json:"category"`
	Priority Priority  `json:"priority"`
	Channels []Channel `json:"channels"`

	EmailContent *EmailContent `json:"email_content,omitempty"`
	SMSContent   *SMSContent   `json:"sms_content,omitempty"`
	PushContent  *PushContent  `json:"push_content,omitempty"`
	InAppContent *InAppContent `json:"in_app_content,omitempty"`

	Status           Status            `json:"status"`
	DeliveryAttempts []DeliveryAttempt `json:"delivery_attempts"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`

	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	Opened     bool `json:"opened"`
	Clicked    bool `json:"clicked"`
	ClickCount int  `json:"click_count"`

	BatchID string `json:"batch_id,omitempty"`
	Deleted bool   `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasChannel reports whether ch was requested on this notification.
func (n *Notification) HasChannel(ch Channel) bool {
	for _, c := range n.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// SucceededChannels returns the channels with a sent or delivered attempt.
func (n *Notification) SucceededChannels() []Channel {
	seen := make(map[Channel]bool)
	for _, a := range n.DeliveryAttempts {
		if a.Status == StatusSent || a.Status == StatusDelivered {
			seen[a.Channel] = true
		}
	}
	out := make([]Channel, 0, len(seen))
	for _, c := range n.Channels {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

// RemainingChannels returns requested channels without a successful attempt,
// i.e. the set a re-dispatch should try again.
func (n *Notification) RemainingChannels() []Channel {
	done := make(map[Channel]bool)
	for _, c := range n.SucceededChannels() {
		done[c] = true
	}
	var out []Channel
	for _, c := range n.Channels {
		if !done[c] {
			out = append(out, c)
		}
	}
	return out
}

// Template is a reusable, named message layout with {variable} placeholders
// per channel. Only active templates are served to senders.
type Template struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Category    Category  `json:"category"`
	Description string    `json:"description,omitempty"`

	EmailSubject string `json:"email_subject,omitempty"`
	EmailHTML    string `json:"email_html,omitempty"`
	EmailText    string `json:"email_text,omitempty"`
	SMSTemplate  string `json:"sms_template,omitempty"`
	PushTitle    string `json:"push_title,omitempty"`
	PushBody     string `json:"push_body,omitempty"`
	InAppTitle   string `json:"in_app_title,omitempty"`
	InAppMessage string `json:"in_app_message,omitempty"`

	// ProviderTemplateID points at a server-side template on the email
	// provider; when set it is forwarded instead of the rendered bodies.
	ProviderTemplateID string `json:"provider_template_id,omitempty"`

	Variables []string `json:"variables,omitempty"`
	Active    bool     `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Channels lists the channels this template carries content for.
func (t *Template) TemplateChannels() []Channel {
	var out []Channel
	if t.EmailSubject != "" || t.EmailHTML != "" || t.ProviderTemplateID != "" {
		out = append(out, ChannelEmail)
	}
	if t.SMSTemplate != "" {
		out = append(out, ChannelSMS)
	}
	if t.PushTitle != "" || t.PushBody != "" {
		out = append(out, ChannelPush)
	}
	if t.InAppTitle != "" || t.InAppMessage != "" {
		out = append(out, ChannelInApp)
	}
	return out
}

// Preferences are a recipient's notification settings. A missing row means
// everything is allowed (fail open).
type Preferences struct {
	UserID   string   `json:"user_id"`
	UserType UserType `json:"user_type,omitempty"`

	EmailEnabled bool `json:"email_enabled"`
	SMSEnabled   bool `json:"sms_enabled"`
	PushEnabled  bool `json:"push_enabled"`
	InAppEnabled bool `json:"in_app_enabled"`

	// Category toggles; unlisted categories default to allowed.
	Categories map[Category]bool `json:"categories,omitempty"`

	QuietHoursEnabled  bool   `json:"quiet_hours_enabled"`
	QuietHoursStart    string `json:"quiet_hours_start,omitempty"` // "HH:MM"
	QuietHoursEnd      string `json:"quiet_hours_end,omitempty"`   // "HH:MM"
	QuietHoursTimezone string `json:"quiet_hours_timezone,omitempty"`

	MaxEmailsPerDay int `json:"max_emails_per_day"`
	MaxSMSPerDay    int `json:"max_sms_per_day"`
	MaxPushPerHour  int `json:"max_push_per_hour"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings applied when a user has never
// saved any: transactional channels on, promotional categories off.
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:       userID,
		EmailEnabled: true,
		SMSEnabled:   true,
		PushEnabled:  true,
		InAppEnabled: true,
		Categories: map[Category]bool{
			CategoryMarketing:  false,
			CategoryNewsletter: false,
		},
		QuietHoursStart:    "22:00",
		QuietHoursEnd:      "08:00",
		QuietHoursTimezone: "UTC",
		MaxEmailsPerDay:    10,
		MaxSMSPerDay:       5,
		MaxPushPerHour:     5,
	}
}

// CategoryAllowed reports whether the category toggle permits sending.
func (p *Preferences) CategoryAllowed(c Category) bool {
	if p.Categories == nil {
		return true
	}
	allowed, ok := p.Categories[c]
	if !ok {
		return true
	}
	return allowed
}

// ChannelAllowed reports whether the per-channel toggle permits ch.
func (p *Preferences) ChannelAllowed(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelInApp:
		return p.InAppEnabled
	}
	return false
}
