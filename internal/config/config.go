package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendSQL      = "sql"
)

// Webhook verification modes.
const (
	WebhookStrict = "strict"
	WebhookLoose  = "loose"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTPTimeout bounds reading one inbound request; write and idle
	// timeouts scale from it.
	HTTPTimeout time.Duration

	// Per-call deadlines on outbound calls
	StoreTimeout    time.Duration
	ProviderTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTLPEndpoint string

	// Entity store
	StoreBackend       string
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	DatabaseURL        string

	// Payment provider
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeAPIURL        string // only set in tests / stripe-mock
	WebhookVerification string
	WebBaseURL          string
	Currency            string

	// Billing
	BillingTimezone       string
	LateGraceDays         int
	CronSchedule          string
	GenerationConcurrency int
	JobTimeout            time.Duration
	EventCacheTTL         time.Duration

	// Auth for owner/operator routes
	JWTSecret string

	// Reminder e-mails
	SendgridAPIKey    string
	SendgridFromEmail string
	SendgridSandbox   bool

	CORSAllowedOrigins []string
}

// Load reads .env (if present) and then the environment.
// Variables already set in the environment take precedence over .env.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 20),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendSupabase)),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		DatabaseURL:        getEnv("DATABASE_URL", "rentdesk.db"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeAPIURL:        getEnv("STRIPE_API_URL", ""),
		WebhookVerification: strings.ToLower(getEnv("WEBHOOK_VERIFICATION", WebhookStrict)),
		WebBaseURL:          getEnv("WEB_BASE_URL", "http://localhost:3000"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "eur")),

		BillingTimezone:       getEnv("BILLING_TIMEZONE", "Europe/Rome"),
		LateGraceDays:         getEnvInt("LATE_GRACE_DAYS", 0),
		CronSchedule:          getEnvAllowEmpty("CRON_SCHEDULE", "0 6 * * *"),
		GenerationConcurrency: getEnvInt("GENERATION_CONCURRENCY", 8),
		JobTimeout:            getEnvDuration("JOB_TIMEOUT", 10*time.Minute),
		EventCacheTTL:         getEnvDuration("EVENT_CACHE_TTL", 24*time.Hour),

		JWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		SendgridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendgridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "no-reply@rentdesk.app"),
		SendgridSandbox:   getEnvBool("SENDGRID_SANDBOX", false),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

// StrictWebhooks reports whether unsigned provider events must be rejected.
// Anything other than an explicit "loose" is treated as strict.
func (c *Config) StrictWebhooks() bool {
	return c.WebhookVerification != WebhookLoose
}

// ServerTimeouts derives the HTTP server read, write and idle timeouts.
func (c *Config) ServerTimeouts() (read, write, idle time.Duration) {
	read = c.HTTPTimeout
	if read <= 0 {
		read = 10 * time.Second
	}
	return read, 3 * read, 6 * read
}

// Location resolves BillingTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BillingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvAllowEmpty distinguishes an unset variable from one set to "".
func getEnvAllowEmpty(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
