// Package config loads service configuration from the environment,
// with a .env file honored in local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Postgres
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Dispatch worker
	WorkerPollInterval int // seconds between poll cycles
	WorkerBatchSize    int // notifications claimed per cycle
	DispatchParallel   int // channels dispatched concurrently per notification

	// Postmark (primary email provider)
	PostmarkServerToken  string
	PostmarkAccountToken string
	PostmarkFrom         string

	// SMTP fallback for email
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// AWS (SES email fallback, SNS SMS fallback)
	AWSRegion    string
	SESFromEmail string
	SNSRegion    string

	// Twilio (primary SMS provider)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string // E.164 sender or alphanumeric sender ID

	// SMSDefaultCountry is the calling code prefixed onto recipient
	// numbers in national format (leading 0). SNSEnabled gates the SNS
	// fallback in the SMS chain.
	SMSDefaultCountry string
	SNSEnabled        bool

	// Firebase Cloud Messaging
	FCMCredentialsFile string // service account JSON path
	FCMProjectID       string

	// API rate limiting
	RateLimitPerMinute int
}

// Load reads configuration from the environment. Unset variables keep
// defaults suitable for local development; malformed numeric variables
// fail startup rather than being silently ignored.
func Load() (*Config, error) {
	// Optional .env for local development; ignore when absent.
	_ = godotenv.Load()

	var e envReader

	cfg := &Config{
		Port:     e.intVal("PORT", 8080),
		LogLevel: e.strVal("LOG_LEVEL", "info"),
		Env:      e.strVal("ENV", "development"),

		DBHost:     e.strVal("DB_HOST", "localhost"),
		DBPort:     e.intVal("DB_PORT", 5432),
		DBUser:     e.strVal("DB_USER", "courier"),
		DBPassword: e.strVal("DB_PASSWORD", ""),
		DBName:     e.strVal("DB_NAME", "courier"),
		DBSSLMode:  e.strVal("DB_SSLMODE", "disable"),

		RedisHost:     e.strVal("REDIS_HOST", "localhost"),
		RedisPort:     e.intVal("REDIS_PORT", 6379),
		RedisPassword: e.strVal("REDIS_PASSWORD", ""),
		RedisDB:       e.intVal("REDIS_DB", 0),

		WorkerPollInterval: e.intVal("WORKER_POLL_INTERVAL", 5),
		WorkerBatchSize:    e.intVal("WORKER_BATCH_SIZE", 50),
		DispatchParallel:   e.intVal("DISPATCH_PARALLEL", 4),

		PostmarkServerToken:  e.strVal("POSTMARK_SERVER_TOKEN", ""),
		PostmarkAccountToken: e.strVal("POSTMARK_ACCOUNT_TOKEN", ""),
		PostmarkFrom:         e.strVal("POSTMARK_FROM", ""),

		SMTPHost:     e.strVal("SMTP_HOST", "localhost"),
		SMTPPort:     e.intVal("SMTP_PORT", 587),
		SMTPUsername: e.strVal("SMTP_USERNAME", ""),
		SMTPPassword: e.strVal("SMTP_PASSWORD", ""),
		SMTPFrom:     e.strVal("SMTP_FROM", "noreply@courier.local"),

		AWSRegion:    e.strVal("AWS_REGION", "us-east-1"),
		SESFromEmail: e.strVal("SES_FROM_EMAIL", "noreply@courier.local"),

		TwilioAccountSID: e.strVal("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  e.strVal("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       e.strVal("TWILIO_FROM", ""),

		SMSDefaultCountry: e.strVal("SMS_DEFAULT_COUNTRY", "+234"),
		SNSEnabled:        e.boolVal("SNS_ENABLED", true),

		FCMCredentialsFile: e.strVal("FCM_CREDENTIALS_FILE", ""),
		FCMProjectID:       e.strVal("FCM_PROJECT_ID", ""),

		RateLimitPerMinute: e.intVal("RATE_LIMIT_PER_MINUTE", 120),
	}

	// SNS follows the general AWS region unless overridden.
	cfg.SNSRegion = e.strVal("SNS_REGION", cfg.AWSRegion)

	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

// envReader accumulates the first parse error instead of making every
// lookup a two-value return.
type envReader struct {
	err error
}

func (e *envReader) strVal(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) boolVal(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return fallback
	}
	return b
}

func (e *envReader) intVal(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return fallback
	}
	return n
}
