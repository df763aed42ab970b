package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	ConnectAttempts    int
}

// MinIOConfig holds object storage settings for the rendered page mirror.
// The mirror is disabled when Endpoint is empty.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// Enabled reports whether a mirror endpoint is configured.
func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" }

// OffloadConfig sizes the worker pool that runs rendering and text extraction.
type OffloadConfig struct {
	Workers    int // 0 means runtime.NumCPU()
	QueueSize  int
	JobTimeout time.Duration // 0 means no timeout
}

// CacheConfig controls the in-process memo tables and their keying.
type CacheConfig struct {
	RenderCapacity  int
	ExcerptCapacity int
	// KeyMode is "filename" or "fingerprint".
	KeyMode string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	// AppHost is the swagger host advertised when a request carries no Host header.
	AppHost            string
	Port               string
	LogLevel           slog.Level
	DocsRoot           string
	PreviewConcurrency int
	Database           DatabaseConfig
	MinIO              MinIOConfig
	Offload            OffloadConfig
	Cache              CacheConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:            getEnv("APP_HOST", "localhost:8080"),
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		DocsRoot:           getEnv("DOCS_ROOT", "static"),
		PreviewConcurrency: getEnvInt("PREVIEW_CONCURRENCY", 4),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ConnectAttempts:    getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			URLExpiry: time.Duration(getEnvInt("MINIO_URL_EXPIRY_SEC", 900)) * time.Second,
		},
		Offload: OffloadConfig{
			Workers:    getEnvInt("OFFLOAD_WORKERS", 0),
			QueueSize:  getEnvInt("OFFLOAD_QUEUE_SIZE", 64),
			JobTimeout: time.Duration(getEnvInt("OFFLOAD_JOB_TIMEOUT_SEC", 0)) * time.Second,
		},
		Cache: CacheConfig{
			RenderCapacity:  getEnvInt("RENDER_CACHE_CAPACITY", 128),
			ExcerptCapacity: getEnvInt("EXCERPT_CACHE_CAPACITY", 128),
			KeyMode:         getEnv("CACHE_KEY_MODE", "filename"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvLevel(key string, def slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(v))); err == nil {
			return l
		}
	}
	return def
}
