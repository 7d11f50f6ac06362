package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// Config - настройки сервиса, собранные из окружения.
type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
	LLMTimeout time.Duration

	AICostPerQuestion    int
	AIRateLimitPerMinute int

	ValkeyAddress  string
	ValkeyPassword string

	KafkaBrokers []string
	KafkaTopic   string

	AuthJWTSecret string

	NotifyAsync bool

	BreakerFailures uint32
	BreakerCooldown time.Duration
}

const (
	defaultPort     = "8080"
	defaultLLMModel = "gemini-2.5-flash"
	// OpenAI-совместимый эндпоинт Gemini
	defaultLLMBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// LoadEnvFile подгружает переменные из файла, если он есть.
func LoadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := gotenv.Load(path); err != nil {
		slog.Warn("[Config] No .env file found, using OS environment", slog.String("path", path))
	}
}

// Load читает конфигурацию из переменных окружения.
func Load() (*Config, error) {
	var errs []error

	cfg := &Config{
		Port:           getString("PORT", defaultPort),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LogLevel:       getString("LOG_LEVEL", "info"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMBaseURL:     getString("LLM_BASE_URL", defaultLLMBaseURL),
		LLMModel:       getString("LLM_MODEL", defaultLLMModel),
		ValkeyAddress:  os.Getenv("VALKEY_ADDRESS"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getString("KAFKA_TOPIC", "content-events"),
		AuthJWTSecret:  os.Getenv("AUTH_JWT_SECRET"),
	}

	cfg.LLMTimeout = getDuration("LLM_TIMEOUT", 60*time.Second, &errs)
	cfg.AICostPerQuestion = getInt("AI_COST_PER_QUESTION", 10, &errs)
	cfg.AIRateLimitPerMinute = getInt("AI_RATE_LIMIT_PER_MINUTE", 20, &errs)
	cfg.NotifyAsync = getBool("NOTIFY_ASYNC", true, &errs)
	breakerFailures := getInt("MODERATION_BREAKER_FAILURES", 5, &errs)
	if breakerFailures < 0 {
		errs = append(errs, errors.New("MODERATION_BREAKER_FAILURES must not be negative"))
		breakerFailures = 0
	}
	cfg.BreakerFailures = uint32(breakerFailures)
	cfg.BreakerCooldown = getDuration("MODERATION_BREAKER_COOLDOWN", 30*time.Second, &errs)

	if cfg.AICostPerQuestion < 0 {
		errs = append(errs, errors.New("AI_COST_PER_QUESTION must not be negative"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getBool(key string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
