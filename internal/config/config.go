package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env     string
	Port    int
	Storage string
	DBURL   string

	JWTSecret           string
	JWTAccessTTLMinutes int
	JWTRefreshTTLDays   int

	AdminEmail    string
	AdminUsername string
	AdminPassword string
	AdminName     string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RealtimeChannel string

	OTLPEndpoint string
	ServiceName  string

	AllowedOrigins     []string
	MaxBodyBytes       int64
	AuthRatePerMin     int
	DocWriteRatePerMin int
	RolesCacheTTLSec   int

	LogFile      string
	LogFileMaxMB int
}

func Load() Config {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	return Config{
		Env:     getEnv("APP_ENV", "dev"),
		Port:    getEnvInt("PORT", 8080),
		Storage: strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		DBURL:   getEnv("DATABASE_URL", buildDBURL()),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 15),
		JWTRefreshTTLDays:   getEnvInt("JWT_REFRESH_TTL_DAYS", 7),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RealtimeChannel: getEnv("REALTIME_CHANNEL", "docman:rtc"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "docman-api"),

		AllowedOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		AuthRatePerMin:     getEnvInt("AUTH_RATE_PER_MIN", 20),
		DocWriteRatePerMin: getEnvInt("DOC_WRITE_RATE_PER_MIN", 120),
		RolesCacheTTLSec:   getEnvInt("ROLES_CACHE_TTL_SECONDS", 300),

		LogFile:      getEnv("LOG_FILE", ""),
		LogFileMaxMB: getEnvInt("LOG_FILE_MAX_MB", 50),
	}
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "docman")
	pass := getEnv("DB_PASSWORD", "docman")
	name := getEnv("DB_NAME", "docman")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %s=%q is not an integer, using %d\n", key, v, fallback)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
