package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/chatline/internal/session"
)

// ErrMissingCredential is returned when the selected completion provider has no API key.
var ErrMissingCredential = errors.New("missing completion provider credential")

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	LogFile       string
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	TraceFile     string

	CompletionProvider  string
	GroqAPIKey          string
	GroqBaseURL         string
	GroqModel           string
	AnthropicAPIKey     string
	AnthropicModel      string
	CompletionTimeout   time.Duration
	CompletionMaxTokens int

	HistoryMaxMessages int
	HistoryMaxSessions int
	HistoryEvictionKey session.EvictionKey

	ArchiveURL       string
	ArchiveRedactPII bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "chatline"),
		AllowAnyOrigin:      true,
		LogFile:             stringsTrimSpace("APP_LOG_FILE"),
		LogLevel:            envOrDefault("APP_LOG_LEVEL", "info"),
		LogMaxSizeMB:        10,
		LogMaxBackups:       3,
		LogMaxAgeDays:       28,
		TraceFile:           stringsTrimSpace("APP_TRACE_FILE"),
		CompletionProvider:  strings.ToLower(envOrDefault("COMPLETION_PROVIDER", "groq")),
		GroqAPIKey:          stringsTrimSpace("GROQ_API_KEY"),
		GroqBaseURL:         stringsTrimSpace("GROQ_BASE_URL"),
		GroqModel:           envOrDefault("GROQ_MODEL", "llama3-8b-8192"),
		AnthropicAPIKey:     stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:      stringsTrimSpace("ANTHROPIC_MODEL"),
		CompletionTimeout:   60 * time.Second,
		CompletionMaxTokens: 1024,
		HistoryMaxMessages:  session.DefaultMaxMessages,
		HistoryMaxSessions:  session.DefaultMaxSessions,
		ArchiveURL:          stringsTrimSpace("ARCHIVE_URL"),
		ArchiveRedactPII:    true,
		ShutdownTimeout:     15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogMaxSizeMB, err = intFromEnv("APP_LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	if err != nil {
		return Config{}, err
	}
	cfg.LogMaxBackups, err = intFromEnv("APP_LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	if err != nil {
		return Config{}, err
	}
	cfg.LogMaxAgeDays, err = intFromEnv("APP_LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionTimeout, err = durationFromEnv("COMPLETION_TIMEOUT", cfg.CompletionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CompletionMaxTokens, err = intFromEnv("COMPLETION_MAX_TOKENS", cfg.CompletionMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryMaxMessages, err = intFromEnv("HISTORY_MAX_MESSAGES", cfg.HistoryMaxMessages)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryMaxSessions, err = intFromEnv("HISTORY_MAX_SESSIONS", cfg.HistoryMaxSessions)
	if err != nil {
		return Config{}, err
	}
	cfg.ArchiveRedactPII, err = boolFromEnv("ARCHIVE_REDACT_PII", cfg.ArchiveRedactPII)
	if err != nil {
		return Config{}, err
	}

	key, ok := session.ParseEvictionKey(stringsTrimSpace("HISTORY_EVICTION_KEY"))
	if !ok {
		return Config{}, fmt.Errorf("HISTORY_EVICTION_KEY must be first_message or created")
	}
	cfg.HistoryEvictionKey = key

	switch cfg.CompletionProvider {
	case "groq", "anthropic", "auto", "mock":
	default:
		return Config{}, fmt.Errorf("COMPLETION_PROVIDER must be one of groq, anthropic, auto, mock")
	}
	if err := cfg.checkCredential(); err != nil {
		return Config{}, err
	}
	if cfg.CompletionTimeout <= 0 {
		return Config{}, fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	if cfg.CompletionMaxTokens <= 0 {
		return Config{}, fmt.Errorf("COMPLETION_MAX_TOKENS must be positive")
	}
	if cfg.HistoryMaxMessages <= 0 {
		return Config{}, fmt.Errorf("HISTORY_MAX_MESSAGES must be positive")
	}
	if cfg.HistoryMaxSessions <= 0 {
		return Config{}, fmt.Errorf("HISTORY_MAX_SESSIONS must be positive")
	}

	return cfg, nil
}

// checkCredential requires the API key of the selected provider mode.
func (c Config) checkCredential() error {
	switch c.CompletionProvider {
	case "groq":
		if c.GroqAPIKey == "" {
			return fmt.Errorf("%w: GROQ_API_KEY is required", ErrMissingCredential)
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY is required", ErrMissingCredential)
		}
	case "auto":
		if c.GroqAPIKey == "" && c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: GROQ_API_KEY or ANTHROPIC_API_KEY is required", ErrMissingCredential)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
