// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TASK_TIMEZONE must resolve on hosts without a zoneinfo database.
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	RosterPath     string
	TaskTimezone   string
	DebugEndpoints bool
	Session        SessionConfig
	Extractor      ExtractorConfig
}

// SessionConfig controls the in-memory session store and its sweep.
type SessionConfig struct {
	TTL              time.Duration
	SweepInterval    time.Duration
	TurnLogRetention time.Duration
}

// ExtractorConfig selects and tunes the slot extractor.
type ExtractorConfig struct {
	GrpcAddr      string
	Timeout       time.Duration
	MaxConcurrent int
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
}

// Extractor kinds, in selection order.
const (
	ExtractorGRPC  = "grpc"
	ExtractorLLM   = "llm"
	ExtractorRules = "rules"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/voicetask.db"),
		RosterPath:   getEnv("ROSTER_PATH", ""),
		TaskTimezone: getEnv("TASK_TIMEZONE", "America/New_York"),
		Session: SessionConfig{
			TTL:              getEnvDuration("SESSION_TTL", 15*time.Minute),
			SweepInterval:    getEnvDuration("SESSION_SWEEP_INTERVAL", 2*time.Minute),
			TurnLogRetention: getEnvDuration("TURN_LOG_RETENTION", 7*24*time.Hour),
		},
		Extractor: ExtractorConfig{
			GrpcAddr:      getEnv("EXTRACTOR_GRPC_ADDR", ""),
			Timeout:       getEnvDuration("EXTRACTOR_TIMEOUT", 8*time.Second),
			MaxConcurrent: getEnvInt("EXTRACTOR_MAX_CONCURRENT", 16),
			LLMBaseURL:    getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			LLMAPIKey:     getEnv("LLM_API_KEY", ""),
			LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
	}
	cfg.DebugEndpoints = getEnvBool("DEBUG_ENDPOINTS", cfg.IsDevelopment())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return errors.New("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.Session.TurnLogRetention <= 0 {
		return errors.New("TURN_LOG_RETENTION must be > 0")
	}
	if c.Extractor.Timeout <= 0 {
		return errors.New("EXTRACTOR_TIMEOUT must be > 0")
	}
	if c.Extractor.MaxConcurrent <= 0 {
		return errors.New("EXTRACTOR_MAX_CONCURRENT must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TASK_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves TaskTimezone.
func (c *Config) Location() (*time.Location, error) {
	if c.TaskTimezone == "" {
		return nil, errors.New("time zone cannot be empty")
	}
	return time.LoadLocation(c.TaskTimezone)
}

// ExtractorKind returns which extractor the configuration selects:
// gRPC when an address is set, else the LLM when a key is set, else rules.
func (c *Config) ExtractorKind() string {
	switch {
	case c.Extractor.GrpcAddr != "":
		return ExtractorGRPC
	case c.Extractor.LLMAPIKey != "":
		return ExtractorLLM
	default:
		return ExtractorRules
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
