// Package config provides configuration for the assistant backend.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Optional shared module-config table (PostgreSQL). Empty means the
	// local SQLite store is the configuration source.
	ConfigDatabaseURL string

	// Optional Redis for cross-instance session leases.
	RedisURL string

	// Default upstream model, used when no module row exists.
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int

	// Timeouts
	LLMConnectTimeout    time.Duration
	LLMIdleTimeout       time.Duration
	TurnTimeout          time.Duration
	ConfigCacheTTL       time.Duration
	ConfigRefreshTimeout time.Duration

	// Degraded generator pacing; 0 disables it.
	FallbackDelay time.Duration

	// Retries before the first upstream delta.
	UpstreamRetries int

	// Logging
	LogLevel string
}

// Load loads configuration from the environment. A .env file in the working
// directory is read first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("DATABASE_URL", "file:medassist.db?cache=shared&mode=rwc")
	v.SetDefault("CONFIG_DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "qwen-plus")
	v.SetDefault("LLM_TEMPERATURE", 0.7)
	v.SetDefault("LLM_MAX_TOKENS", 2000)
	v.SetDefault("LLM_CONNECT_TIMEOUT_MS", 10000)
	v.SetDefault("LLM_IDLE_TIMEOUT_MS", 60000)
	v.SetDefault("TURN_TIMEOUT_MS", 300000)
	v.SetDefault("CONFIG_CACHE_TTL_MS", 300000)
	v.SetDefault("CONFIG_REFRESH_TIMEOUT_MS", 5000)
	v.SetDefault("FALLBACK_DELAY_MS", 30)
	v.SetDefault("UPSTREAM_RETRIES", 1)
	v.SetDefault("LOG_LEVEL", "info")

	return &Config{
		HTTPPort:             v.GetInt("HTTP_PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		ConfigDatabaseURL:    v.GetString("CONFIG_DATABASE_URL"),
		RedisURL:             v.GetString("REDIS_URL"),
		LLMBaseURL:           v.GetString("LLM_BASE_URL"),
		LLMAPIKey:            v.GetString("LLM_API_KEY"),
		LLMModel:             v.GetString("LLM_MODEL"),
		LLMTemperature:       v.GetFloat64("LLM_TEMPERATURE"),
		LLMMaxTokens:         v.GetInt("LLM_MAX_TOKENS"),
		LLMConnectTimeout:    millis(v, "LLM_CONNECT_TIMEOUT_MS"),
		LLMIdleTimeout:       millis(v, "LLM_IDLE_TIMEOUT_MS"),
		TurnTimeout:          millis(v, "TURN_TIMEOUT_MS"),
		ConfigCacheTTL:       millis(v, "CONFIG_CACHE_TTL_MS"),
		ConfigRefreshTimeout: millis(v, "CONFIG_REFRESH_TIMEOUT_MS"),
		FallbackDelay:        millis(v, "FALLBACK_DELAY_MS"),
		UpstreamRetries:      v.GetInt("UPSTREAM_RETRIES"),
		LogLevel:             v.GetString("LOG_LEVEL"),
	}
}

func millis(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt(key)) * time.Millisecond
}
