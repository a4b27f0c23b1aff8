// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	FrontendURL   string
	DBPath        string
	LogLevel      slog.Level
	MinTaskLength int
	StepsCooldown time.Duration
	PromptsFile   string // Empty means the embedded prompt set.
	Groq          GroqConfig
	Gemini        GeminiConfig
	HuggingFace   HuggingFaceConfig
	Timeout       TimeoutConfig
	RateLimit     RateLimitConfig
	Sweep         SweepConfig
}

// GroqConfig configures the primary provider.
type GroqConfig struct {
	APIKey       string
	BaseURL      string
	ModelConvert string
	ModelSteps   string
	ModelStory   string
}

// GeminiConfig configures the optional Gemini provider. Disabled when APIKey is empty.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// HuggingFaceConfig configures the fallback provider.
type HuggingFaceConfig struct {
	Token   string
	BaseURL string
	Model   string
}

// TimeoutConfig holds per-operation timeouts.
type TimeoutConfig struct {
	Provider    time.Duration
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// RateLimitConfig controls the per-device limit on model-backed routes.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// SweepConfig controls removal of boards for devices that went away.
type SweepConfig struct {
	Interval time.Duration
	BoardTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		DBPath:        getEnv("DB_PATH", "./data/anti-todo.db"),
		LogLevel:      getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		MinTaskLength: getEnvInt("MIN_TASK_LENGTH", 3),
		StepsCooldown: getEnvDuration("STEPS_COOLDOWN", time.Second),
		PromptsFile:   getEnv("PROMPTS_FILE", ""),
		Groq: GroqConfig{
			APIKey:       getEnv("GROQ_API_KEY", ""),
			BaseURL:      getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
			ModelConvert: getEnv("GROQ_MODEL_CONVERT", "llama-3.1-70b-versatile"),
			ModelSteps:   getEnv("GROQ_MODEL_STEPS", "mixtral-8x7b-32768"),
			ModelStory:   getEnv("GROQ_MODEL_STORY", "llama3-70b-8192"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		HuggingFace: HuggingFaceConfig{
			Token:   getEnv("HF_TOKEN", ""),
			BaseURL: getEnv("HF_BASE_URL", "https://api-inference.huggingface.co"),
			Model:   getEnv("HF_MODEL", "meta-llama/Llama-2-13b-chat-hf"),
		},
		Timeout: TimeoutConfig{
			Provider:    getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
			HealthCheck: 5 * time.Second,
			Shutdown:    10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Sweep: SweepConfig{
			Interval: getEnvDuration("SWEEP_INTERVAL", time.Hour),
			BoardTTL: getEnvDuration("BOARD_TTL", 30*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if strings.TrimSpace(c.Groq.APIKey) == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if c.Groq.BaseURL == "" {
		return fmt.Errorf("GROQ_BASE_URL cannot be empty")
	}
	if c.HuggingFace.BaseURL == "" || c.HuggingFace.Model == "" {
		return fmt.Errorf("HF_BASE_URL and HF_MODEL cannot be empty")
	}
	if c.MinTaskLength < 1 {
		return fmt.Errorf("MIN_TASK_LENGTH must be >= 1")
	}
	if c.Timeout.Provider <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be > 0")
	}
	if c.Sweep.Interval <= 0 || c.Sweep.BoardTTL <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and BOARD_TTL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// GeminiEnabled reports whether the Gemini provider should join the chains.
func (c *Config) GeminiEnabled() bool {
	return c.Gemini.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
