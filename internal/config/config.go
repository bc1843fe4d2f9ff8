package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL   string
	APIToken     string
	APITimeout   time.Duration
	APIRateLimit float64 // req/sec
	APIRateBurst int

	// Server
	ServerPort        string
	CORSAllowedOrigin string
	GatewayRateLimit  int           // req/min
	RefreshInterval   time.Duration // 0は起動時の1回のみ

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// API_BASE_URLがhttp(s)の絶対URLでない場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:        strings.TrimRight(getEnvString("API_BASE_URL", "http://localhost:8000/api"), "/"),
		APIToken:          os.Getenv("API_TOKEN"),
		APITimeout:        getEnvDuration("API_TIMEOUT", 10*time.Second),
		APIRateLimit:      getEnvFloat("API_RATE_LIMIT", 10),
		APIRateBurst:      getEnvInt("API_RATE_BURST", 20),
		ServerPort:        getEnvString("SERVER_PORT", "8090"),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173"),
		GatewayRateLimit:  getEnvInt("GATEWAY_RATE_LIMIT", 240),
		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", 5*time.Minute),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
	}

	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("API_BASE_URL is not a valid http(s) URL: %q", cfg.APIBaseURL)
	}

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
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
