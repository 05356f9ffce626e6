package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType               string // mysql, mariadb, postgres, sqlite, sqlite-pure, sqlserver
	DBHost               string
	DBPort               string
	DBDatabase           string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int
	DBLogLevel           string

	// Authorizer configuration
	AuthzURL      string
	AuthzClientID string

	// Bulk deletion
	ChunkSize      int
	ChunkSizeMedia int
	LockTTL        time.Duration
	LockBackend    string // database, memory

	// Media storage
	MediaDriver    string // local, s3
	MediaRoot      string
	MediaDeletable []string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables, reading ENV_FILE
// (or ./.env when present) first.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "3000"),
		DBType:               getEnv("DB_TYPE", "mysql"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBPort:               getEnv("DB_PORT", "3306"),
		DBDatabase:           getEnv("DB_DATABASE", ""),
		DBAppUser:            getEnv("DB_APP_USER", ""),
		DBAppPassword:        getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit: getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		DBLogLevel:           getEnv("DB_LOG_LEVEL", "warn"),
		AuthzURL:             getEnv("AUTHZ_URL", ""),
		AuthzClientID:        getEnv("AUTHZ_CLIENT_ID", ""),
		ChunkSize:            getEnvAsInt("BULK_DELETION_CHUNK_SIZE", 100),
		ChunkSizeMedia:       getEnvAsInt("BULK_DELETION_CHUNK_SIZE_MEDIA", 1000),
		LockTTL:              getEnvAsDuration("BULK_DELETION_LOCK_TTL", 600*time.Second),
		LockBackend:          getEnv("BULK_DELETION_LOCK_BACKEND", "database"),
		MediaDriver:          getEnv("MEDIA_DRIVER", "local"),
		MediaRoot:            getEnv("MEDIA_ROOT", "./storage"),
		MediaDeletable:       getEnvAsList("MEDIA_ENTRIES_DELETABLE", []string{"photo", "audio", "video"}),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerated values
func (cfg *Config) Validate() error {
	if cfg.DBDatabase == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	isSQLite := cfg.DBType == "sqlite" || cfg.DBType == "sqlite-pure"
	if !isSQLite && cfg.DBAppUser == "" {
		return fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.ChunkSize <= 0 || cfg.ChunkSizeMedia <= 0 {
		return fmt.Errorf("bulk deletion chunk sizes must be positive")
	}
	switch cfg.LockBackend {
	case "database", "memory":
	default:
		return fmt.Errorf("unsupported BULK_DELETION_LOCK_BACKEND: %s", cfg.LockBackend)
	}
	switch cfg.MediaDriver {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when MEDIA_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unsupported MEDIA_DRIVER: %s", cfg.MediaDriver)
	}
	return nil
}

// ValidateAuth checks the Authorizer settings the HTTP server needs
func (cfg *Config) ValidateAuth() error {
	if cfg.AuthzURL == "" {
		return fmt.Errorf("AUTHZ_URL is required")
	}
	if cfg.AuthzClientID == "" {
		return fmt.Errorf("AUTHZ_CLIENT_ID is required")
	}
	return nil
}

func loadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	// godotenv.Load never overrides variables already set in the environment
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts a Go duration ("10m") or a plain number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, keeping order
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
