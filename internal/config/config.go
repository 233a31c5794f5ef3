package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Voice Conversation Provider
	VoiceAPIKey       string
	VoiceAgentID      string
	VoiceTimeout      time.Duration
	VoicePollInterval time.Duration
	VoicePollMaxWait  time.Duration

	// Mailer
	MailerAPIKey string
	MailerFrom   string

	// Avatar storage
	AvatarDir     string
	AvatarMaxSize int64

	// Invitation
	InvitationTTL time.Duration

	// Worker
	RoleplayStaleAfter time.Duration
	SweepInterval      time.Duration

	// Rate Limit (req/min/user)
	RateLimitGeneral  int
	RateLimitRoleplay int

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.VoiceAPIKey = os.Getenv("VOICE_API_KEY")
	if cfg.VoiceAPIKey == "" {
		missing = append(missing, "VOICE_API_KEY")
	}

	cfg.VoiceAgentID = os.Getenv("VOICE_AGENT_ID")
	if cfg.VoiceAgentID == "" {
		missing = append(missing, "VOICE_AGENT_ID")
	}

	cfg.MailerAPIKey = os.Getenv("MAILER_API_KEY")
	if cfg.MailerAPIKey == "" {
		missing = append(missing, "MAILER_API_KEY")
	}

	cfg.MailerFrom = os.Getenv("MAILER_FROM")
	if cfg.MailerFrom == "" {
		missing = append(missing, "MAILER_FROM")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.VoiceTimeout = getEnvDuration("VOICE_TIMEOUT", 15*time.Second)
	cfg.VoicePollInterval = getEnvDuration("VOICE_POLL_INTERVAL", 2*time.Second)
	cfg.VoicePollMaxWait = getEnvDuration("VOICE_POLL_MAX_WAIT", 60*time.Second)
	cfg.AvatarDir = getEnvString("AVATAR_DIR", "./data/avatars")
	cfg.AvatarMaxSize = getEnvInt64("AVATAR_MAX_SIZE", 2097152)
	cfg.InvitationTTL = getEnvDuration("INVITATION_TTL", 168*time.Hour)
	cfg.RoleplayStaleAfter = getEnvDuration("ROLEPLAY_STALE_AFTER", 2*time.Hour)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRoleplay = getEnvInt("RATE_LIMIT_ROLEPLAY", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
