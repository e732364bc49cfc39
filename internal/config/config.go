// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// devJWTSecret signs tokens in development when JWT_SECRET is not set.
const devJWTSecret = "development-secret-change-in-production"

var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set outside development")

// Config holds all runtime settings of the service.
type Config struct {
	Port string
	Env  string

	StoreDriver string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string
	DBSSLMode   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	AuthDevTokens bool

	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxTxAttempts     int

	TelegramBotToken string

	LogLevel string
}

// Load reads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "production"),

		StoreDriver: getEnv("STORE_DRIVER", DriverPostgres),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "user"),
		DBPassword:  getEnv("DB_PASSWORD", "password"),
		DBName:      getEnv("DB_NAME", "travelquestdb"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		AuthDevTokens: getBoolEnv("AUTH_DEV_TOKENS", false),

		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", DefaultRequestLimit),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", DefaultRequestWindow),
		MaxTxAttempts:     getIntEnv("MAX_TX_ATTEMPTS", MaxTxAttempts),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if cfg.JWTSecret == "" && cfg.Development() {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg
}

// Validate reports settings the service must not start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// Development reports whether the service runs in development mode.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
