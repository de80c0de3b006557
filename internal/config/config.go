// Package config loads process configuration from the environment, the way
// the rest of this stack does it: no config file, no viper, just getenv with
// defaults.
package config

import (
	"os"
	"strconv"
)

// Config is the complete set of environment-driven knobs for cmd/hubserver.
type Config struct {
	Addr        string
	LogLevel    string
	Production  bool

	DatabaseURL string
	RedisURL    string

	JWTSecret      string
	JWTIssuer      string
	SessionCookie  string

	SlackWebhookURL   string
	DiscordWebhookURL string
	GenericAlertURL   string

	RetrySweepInterval int // seconds
	HeartbeatInterval  int // seconds

	ShutdownTimeout int // seconds
}

// Load reads Config from the environment, applying the same defaults the
// rest of this stack uses for local development.
func Load() Config {
	return Config{
		Addr:       getEnv("HUB_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Production: getEnvBool("PRODUCTION", false),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/hub?sslmode=disable"),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "hub"),
		SessionCookie: getEnv("SESSION_COOKIE_NAME", "session_token"),

		SlackWebhookURL:   getEnv("ALERT_SLACK_URL", ""),
		DiscordWebhookURL: getEnv("ALERT_DISCORD_URL", ""),
		GenericAlertURL:   getEnv("ALERT_GENERIC_URL", ""),

		RetrySweepInterval: getEnvInt("RETRY_SWEEP_INTERVAL_SECONDS", 15),
		HeartbeatInterval:  getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 30),

		ShutdownTimeout: getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
