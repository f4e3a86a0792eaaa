// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port      string
	LogLevel  slog.Level
	LogFormat string

	RootDir string
	WebRoot string
	TmpDir  string

	DBDSN          string
	MigrationsPath string

	// MirrorDriver is one of none, local, gcs or s3.
	MirrorDriver    string
	MirrorDir       string
	MirrorBaseURL   string
	GCSBucket       string
	GCSMakePublic   bool
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3Region        string
	S3UseSSL        bool
	S3PublicBaseURL string

	// EventsDriver is one of log, pubsub or none.
	EventsDriver string
	GCPProjectID string
	PubSubTopic  string
	PubSubMode   string

	SweepInterval time.Duration
	SweepMaxAge   time.Duration

	FetchMaxBytes     int64
	FetchMaxRedirects int
	FetchTimeout      time.Duration
	ImageQuality      int
	ImageMaxPixels    int
}

func Load() (*Config, error) {
	level, err := parseLevel(envOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            envOrDefault("PORT", "8080"),
		LogLevel:        level,
		LogFormat:       strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		RootDir:         envOrDefault("UPLOAD_ROOT_DIR", "public"),
		WebRoot:         os.Getenv("UPLOAD_WEB_ROOT"),
		TmpDir:          envOrDefault("UPLOAD_TMP_DIR", "tmp"),
		DBDSN:           os.Getenv("RECORD_DB_DSN"),
		MigrationsPath:  envOrDefault("MIGRATIONS_PATH", "migrations"),
		MirrorDriver:    strings.ToLower(envOrDefault("MIRROR_DRIVER", "none")),
		MirrorDir:       os.Getenv("MIRROR_DIR"),
		MirrorBaseURL:   os.Getenv("MIRROR_BASE_URL"),
		GCSBucket:       os.Getenv("GCS_BUCKET"),
		GCSMakePublic:   parseBoolEnv("GCS_MAKE_PUBLIC", false),
		S3Endpoint:      envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:     envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:     envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:        envOrDefault("S3_BUCKET", "uploads"),
		S3Region:        envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:        parseBoolEnv("S3_USE_SSL", false),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		EventsDriver:    strings.ToLower(envOrDefault("EVENTS_DRIVER", "log")),
		GCPProjectID:    os.Getenv("GCP_PROJECT_ID"),
		PubSubTopic:     os.Getenv("PUBSUB_TOPIC"),
		PubSubMode:      envOrDefault("PUBSUB_MODE", "cloud"),
	}

	if cfg.SweepInterval, err = parseDurationEnv("SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepMaxAge, err = parseDurationEnv("SWEEP_MAX_AGE", time.Hour); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDurationEnv("FETCH_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	maxBytes, err := parseIntEnv("FETCH_MAX_BYTES", 20<<20)
	if err != nil {
		return nil, err
	}
	cfg.FetchMaxBytes = int64(maxBytes)
	if cfg.FetchMaxRedirects, err = parseIntEnv("FETCH_MAX_REDIRECTS", 5); err != nil {
		return nil, err
	}
	if cfg.ImageQuality, err = parseIntEnv("IMAGE_QUALITY", 85); err != nil {
		return nil, err
	}
	if cfg.ImageMaxPixels, err = parseIntEnv("IMAGE_MAX_PIXELS", 40_000_000); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	switch c.MirrorDriver {
	case "none":
	case "local":
		if c.MirrorDir == "" {
			return fmt.Errorf("%w: MIRROR_DIR is required for the local mirror", ErrInvalid)
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("%w: GCS_BUCKET is required for the gcs mirror", ErrInvalid)
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET is required for the s3 mirror", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown MIRROR_DRIVER %q", ErrInvalid, c.MirrorDriver)
	}
	switch c.EventsDriver {
	case "log", "none":
	case "pubsub":
		if c.GCPProjectID == "" || c.PubSubTopic == "" {
			return fmt.Errorf("%w: GCP_PROJECT_ID and PUBSUB_TOPIC are required for pubsub events", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown EVENTS_DRIVER %q", ErrInvalid, c.EventsDriver)
	}
	if c.SweepMaxAge <= 0 {
		return fmt.Errorf("%w: SWEEP_MAX_AGE must be positive", ErrInvalid)
	}
	if c.ImageQuality < 1 || c.ImageQuality > 100 {
		return fmt.Errorf("%w: IMAGE_QUALITY must be within 1..100", ErrInvalid)
	}
	return nil
}

// NewLogger builds the process logger for the configured level and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalid, raw)
	}
	return level, nil
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer: %v", ErrInvalid, key, err)
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration: %v", ErrInvalid, key, err)
	}
	return value, nil
}
