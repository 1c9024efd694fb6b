// Package config は環境変数ベースのアプリケーション設定を提供する。
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

	// Message broker
	AMQPURL  string
	Exchange string

	// Service-to-service
	ServiceToken     string
	DirectoryBaseURL string
	DirectoryTimeout time.Duration

	// JWT
	JWTKeysFile   string
	JWTIssuer     string
	JWTAudience   string
	TokenLifetime time.Duration

	// Rate Limit
	LoginRateLimitPerMin int

	// Server
	ServerPort string
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

	cfg.AMQPURL = os.Getenv("AMQP_URL")
	if cfg.AMQPURL == "" {
		missing = append(missing, "AMQP_URL")
	}

	cfg.ServiceToken = os.Getenv("SERVICE_TOKEN")
	if cfg.ServiceToken == "" {
		missing = append(missing, "SERVICE_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Exchange = getEnvString("AMQP_EXCHANGE", "konecta.erp")
	cfg.DirectoryBaseURL = getEnvString("DIRECTORY_BASE_URL", "http://localhost:8083")
	cfg.DirectoryTimeout = getEnvDuration("DIRECTORY_TIMEOUT", 5*time.Second)
	cfg.JWTKeysFile = getEnvString("JWT_KEYS_FILE", "")
	cfg.JWTIssuer = getEnvString("JWT_ISSUER", "konecta-auth")
	cfg.JWTAudience = getEnvString("JWT_AUDIENCE", "konecta-erp")
	cfg.TokenLifetime = getEnvDuration("TOKEN_LIFETIME", 60*time.Minute)
	cfg.LoginRateLimitPerMin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

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
