package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config описывает настройки запуска пайплайна. Все значения читаются из
// окружения с разумными значениями по умолчанию; пустой PostgresDSN
// включает in-memory хранилище, пустой RedisAddr выключает кэш-слой,
// пустой MeiliHost переключает поиск на in-memory движок.
type Config struct {
	MetricsAddr string

	PostgresDSN  string
	KafkaBrokers []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MeiliHost   string
	MeiliAPIKey string

	CacheTTL           time.Duration
	SessionTTL         time.Duration
	RateLimit          int64
	RateWindow         time.Duration
	OutboxPollInterval time.Duration
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:        ":9090",
		CacheTTL:           5 * time.Minute,
		SessionTTL:         24 * time.Hour,
		RateLimit:          100,
		RateWindow:         time.Minute,
		OutboxPollInterval: time.Second,
	}
}

// LoadConfig собирает конфигурацию из переменных окружения CRM_*.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("CRM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("CRM_POSTGRES_DSN"))
	if v := strings.TrimSpace(os.Getenv("CRM_KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("CRM_REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("CRM_REDIS_PASSWORD")
	if v := os.Getenv("CRM_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = db
		}
	}
	cfg.MeiliHost = strings.TrimSpace(os.Getenv("CRM_MEILI_HOST"))
	cfg.MeiliAPIKey = os.Getenv("CRM_MEILI_API_KEY")

	if v := os.Getenv("CRM_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}
	if v := os.Getenv("CRM_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}
	if v := os.Getenv("CRM_RATE_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.RateLimit = n
		}
	}
	if v := os.Getenv("CRM_RATE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RateWindow = d
		}
	}
	if v := os.Getenv("CRM_OUTBOX_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.OutboxPollInterval = d
		}
	}

	return cfg
}
