package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the process-wide immutable configuration. It is loaded once at
// startup and passed explicitly to constructors; components never read the
// environment themselves.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	JWTSecret  string
	SessionTTL time.Duration
	SetupTTL   time.Duration

	PostmarkBaseURL string
	PostmarkToken   string
	MailFrom        string
	ResetLinkBase   string

	CloudinaryBaseURL string
	CloudinaryCloud   string
	CloudinaryKey     string
	CloudinarySecret  string
	CloudinaryPreset  string

	GatewayTimeout time.Duration
	SweepInterval  time.Duration
	SweepThreshold time.Duration

	// Group tags distinguishing the two sides of a dispute conversation.
	ExternalGroup    string
	CounterpartGroup string
}

// Load reads configuration from the environment. DATABASE_URL and JWT_SECRET
// are required; everything else has a default.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		SessionTTL: time.Hour,
		SetupTTL:   3525 * time.Hour,

		PostmarkBaseURL: getenv("POSTMARK_BASE_URL", "https://api.postmarkapp.com"),
		PostmarkToken:   os.Getenv("POSTMARK_SERVER_TOKEN"),
		MailFrom:        getenv("MAIL_FROM", "support@ringo.ng"),
		ResetLinkBase:   getenv("RESET_LINK_BASE", "http://localhost:3002/reset/password"),

		CloudinaryBaseURL: getenv("CLOUDINARY_BASE_URL", "https://api.cloudinary.com"),
		CloudinaryCloud:   os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:     os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret:  os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryPreset:  getenv("CLOUDINARY_UPLOAD_PRESET", "ml_default"),

		GatewayTimeout: 10 * time.Second,
		SweepInterval:  time.Hour,
		SweepThreshold: 24 * time.Hour,

		ExternalGroup:    getenv("EXTERNAL_GROUP", "ringo"),
		CounterpartGroup: getenv("COUNTERPART_GROUP", "sterling"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	if d, err := parseDuration("SWEEP_INTERVAL"); err != nil {
		return Config{}, err
	} else if d > 0 {
		cfg.SweepInterval = d
	}
	if d, err := parseDuration("GATEWAY_TIMEOUT"); err != nil {
		return Config{}, err
	} else if d > 0 {
		cfg.GatewayTimeout = d
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return d, nil
}
