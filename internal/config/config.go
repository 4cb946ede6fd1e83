// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Twitch EventSub
	TwitchClientID     string
	TwitchClientSecret string
	EventSubSecret     string
	CallbackBaseURL    string

	// Reconciler
	ReconcileInterval      time.Duration
	ReconcileMaxConcurrent int

	// Long-poll delivery
	PollInterval time.Duration
	PollMaxWait  time.Duration

	// Rate Limit
	RateLimitRegistration int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.TwitchClientID = os.Getenv("TWITCH_EVENTSUB_CLIENTID")
	if cfg.TwitchClientID == "" {
		missing = append(missing, "TWITCH_EVENTSUB_CLIENTID")
	}

	cfg.TwitchClientSecret = os.Getenv("TWITCH_EVENTSUB_CLIENTSECRET")
	if cfg.TwitchClientSecret == "" {
		missing = append(missing, "TWITCH_EVENTSUB_CLIENTSECRET")
	}

	cfg.EventSubSecret = os.Getenv("TWITCH_EVENTSUB_SECRET")
	if cfg.EventSubSecret == "" {
		missing = append(missing, "TWITCH_EVENTSUB_SECRET")
	}

	cfg.CallbackBaseURL = os.Getenv("EVENTSUB_CALLBACK_URL")
	if cfg.CallbackBaseURL == "" {
		missing = append(missing, "EVENTSUB_CALLBACK_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 2*time.Minute)
	cfg.ReconcileMaxConcurrent = getEnvInt("RECONCILE_MAX_CONCURRENT", 10)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", time.Second/3)
	cfg.PollMaxWait = getEnvDuration("POLL_MAX_WAIT", 180*time.Second)
	cfg.RateLimitRegistration = getEnvInt("RATE_LIMIT_REGISTRATION", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
