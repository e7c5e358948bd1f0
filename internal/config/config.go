package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/iago/obra-back/internal/weekkey"
)

// Config centralizes runtime settings for the API and the rollover worker.
type Config struct {
	Port string

	AuthJWTSecret string

	DatabaseURL     string
	DatabaseMigrate bool

	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	QueueMaxAttempts int

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string

	WeekWrapMode weekkey.WrapMode
	SiteTimezone string

	ReportCacheTTLSeconds int
	ReportCacheMaxEntries int
	ReportPageSize        int

	WorkerEnabled bool

	LogFile      string
	AuditLogFile string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseMigrate: getEnvBool("DATABASE_MIGRATE", true),

		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "obra"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "obra_rollovers"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "obra_rollovers_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "obra_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		QueueMaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 3),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		WeekWrapMode: weekkey.ParseWrapMode(getEnv("WEEK_WRAP_MODE", string(weekkey.WrapFixed53))),
		SiteTimezone: getEnv("SITE_TIMEZONE", "UTC"),

		ReportCacheTTLSeconds: getEnvInt("REPORT_CACHE_TTL_SECONDS", 30),
		ReportCacheMaxEntries: getEnvInt("REPORT_CACHE_MAX_ENTRIES", 500),
		ReportPageSize:        getEnvInt("REPORT_PAGE_SIZE", 10),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),

		LogFile:      getEnv("LOG_FILE", ""),
		AuditLogFile: getEnv("AUDIT_LOG_FILE", ""),
	}
}

// Location resolves SiteTimezone, falling back to UTC for unknown zones.
func (c Config) Location() *time.Location {
	location, err := time.LoadLocation(c.SiteTimezone)
	if err != nil {
		return time.UTC
	}
	return location
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
