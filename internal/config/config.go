package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port string `validate:"required,numeric"`

	// Auth
	APIKey string

	// Segmentation. Language is checked against the pattern library, not here.
	Language        string
	PatternsFile    string `validate:"omitempty,file"`
	SpeakerMaxRunes int    `validate:"min=1,max=1024"`

	// Worker pool
	WorkerCount     int `validate:"min=1"`
	MaxQueueSize    int `validate:"min=1"`
	PageConcurrency int `validate:"min=1"`
	BatchSize       int `validate:"min=1"`

	// Upload limits
	MaxUploadBytes int64 `validate:"min=1"`

	// Job state
	JobTTL time.Duration `validate:"min=1s"`

	// Output
	OutputDir       string
	DatabaseURL     string `validate:"omitempty,url"`
	TurnsTable      string `validate:"required"`
	PathstoreURL    string `validate:"omitempty,url"`
	PathstoreAPIKey string

	LogLevel string `validate:"oneof=debug info warn error"`
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("TALKTURNS_API_KEY"),

		Language:        envOr("LANGUAGE", "en"),
		PatternsFile:    os.Getenv("PATTERNS_FILE"),
		SpeakerMaxRunes: envInt("SPEAKER_MAX_RUNES", 127),

		WorkerCount:     envInt("WORKER_COUNT", 2),
		MaxQueueSize:    envInt("MAX_QUEUE_SIZE", 20),
		PageConcurrency: envInt("PAGE_CONCURRENCY", 8),
		BatchSize:       envInt("BATCH_SIZE", 64),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 268435456), // 256MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		OutputDir:       envOr("OUTPUT_DIR", os.TempDir()),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		TurnsTable:      envOr("TURNS_TABLE", "talk_turns"),
		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		LogLevel: strings.ToLower(envOr("LOG_LEVEL", "info")),
	}

	if cfg.SpeakerMaxRunes <= 0 {
		cfg.SpeakerMaxRunes = 127
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 20
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 8
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 268435456
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return err
	}
	return nil
}

// ValidateServer adds the checks that only the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("TALKTURNS_API_KEY is required")
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
