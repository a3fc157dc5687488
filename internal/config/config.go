package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит конфигурацию времени выполнения для бота приема заявок.
type Config struct {
	BotToken                   string
	StaffGroupID               int64
	PrimaryAdminID             int64
	DatabaseURL                string
	RedisURL                   string
	AdminBaseURL               string
	Port                       string
	LogLevel                   string
	TelegramTimeout            time.Duration
	TelegramSendRate           float64
	TelegramWebhookURL         string
	TelegramWebhookSecret      string
	TelegramWebhookDropPending bool
	TelegramPollingEnabled     bool
	TelegramPollingTimeout     time.Duration
	TelegramPollingInterval    time.Duration
	TelegramPollingLimit       int
	TelegramPollingDropPending bool
	InboundRateLimit           int
	AdminTokenTTL              time.Duration
	PendingAcceptTTL           time.Duration
	DBMaxOpenConns             int
	DBMaxIdleConns             int
	DBConnMaxIdle              time.Duration
	DBConnMaxLife              time.Duration
}

// Load читает конфигурацию из переменных окружения.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:                       envOr("PORT", "8080"),
		LogLevel:                   envOr("LOG_LEVEL", "info"),
		TelegramTimeout:            durationOr("TELEGRAM_TIMEOUT", 5*time.Second),
		TelegramSendRate:           floatOr("TELEGRAM_SEND_RATE", 25),
		TelegramWebhookURL:         envOr("TELEGRAM_WEBHOOK_URL", ""),
		TelegramWebhookDropPending: boolOr("TELEGRAM_WEBHOOK_DROP_PENDING", false),
		TelegramPollingEnabled:     boolOr("TELEGRAM_POLLING_ENABLED", true),
		TelegramPollingTimeout:     durationOr("TELEGRAM_POLLING_TIMEOUT", 25*time.Second),
		TelegramPollingInterval:    durationOr("TELEGRAM_POLLING_INTERVAL", time.Second),
		TelegramPollingLimit:       intOr("TELEGRAM_POLLING_LIMIT", 50),
		TelegramPollingDropPending: boolOr("TELEGRAM_POLLING_DROP_PENDING", false),
		InboundRateLimit:           intOr("TELEGRAM_INBOUND_RATE_LIMIT_PER_MIN", 30),
		AdminTokenTTL:              durationOr("ADMIN_TOKEN_TTL", 30*time.Minute),
		PendingAcceptTTL:           durationOr("PENDING_ACCEPT_TTL", 15*time.Minute),
		DBMaxOpenConns:             intOr("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:             intOr("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxIdle:              durationOr("DB_CONN_MAX_IDLE", 5*time.Minute),
		DBConnMaxLife:              durationOr("DB_CONN_MAX_LIFE", 30*time.Minute),
		RedisURL:                   envOr("REDIS_URL", ""),
	}

	cfg.BotToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.TelegramWebhookSecret = strings.TrimSpace(os.Getenv("TELEGRAM_WEBHOOK_SECRET"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.AdminBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("ADMIN_BASE_URL")), "/")
	cfg.StaffGroupID = int64Or("STAFF_GROUP_ID", 0)
	cfg.PrimaryAdminID = int64Or("ADMIN_ID", 0)

	missing := make([]string, 0, 3)
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.StaffGroupID == 0 {
		missing = append(missing, "STAFF_GROUP_ID")
	}
	if cfg.PrimaryAdminID == 0 {
		missing = append(missing, "ADMIN_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.InboundRateLimit < 0 {
		return Config{}, fmt.Errorf("TELEGRAM_INBOUND_RATE_LIMIT_PER_MIN must not be negative")
	}
	if cfg.AdminTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ADMIN_TOKEN_TTL must be positive")
	}
	if cfg.PendingAcceptTTL <= 0 {
		return Config{}, fmt.Errorf("PENDING_ACCEPT_TTL must be positive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationOr(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return duration
}

func intOr(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func int64Or(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOr(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func boolOr(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
