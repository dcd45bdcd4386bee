// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all Quillbox server configuration. It is read once at
// process start and treated as immutable afterwards.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// SFTP remote store
	SFTPHost     string
	SFTPPort     int
	SFTPUser     string
	SFTPPassword string
	SFTPRoot     string
	SFTPTimeout  time.Duration

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Auth
	JWTSecret        string
	AuthPasswordHash string // bcrypt hash, preferred
	AuthPassword     string // plaintext fallback for development
	LoginRatePerMin  int

	// HTTP surface
	CORSOrigin    string
	PublicBaseURL string

	// Uploads and search
	MaxUploadSize    int64
	SearchMaxResults int
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		SFTPHost:         envOr("SFTP_HOST", ""),
		SFTPPort:         envInt("SFTP_PORT", 22),
		SFTPUser:         envOr("SFTP_USER", ""),
		SFTPPassword:     envOr("SFTP_PASSWORD", ""),
		SFTPRoot:         envOr("SFTP_ROOT", "/srv/quillbox"),
		SFTPTimeout:      envDuration("SFTP_TIMEOUT", 10*time.Second),
		TLSCertFile:      envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:       envOr("TLS_KEY_FILE", ""),
		JWTSecret:        envOr("JWT_SECRET", ""),
		AuthPasswordHash: envOr("AUTH_PASSWORD_HASH", ""),
		AuthPassword:     envOr("AUTH_PASSWORD", ""),
		LoginRatePerMin:  envInt("LOGIN_RATE_PER_MIN", 10),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
		PublicBaseURL:    envOr("PUBLIC_BASE_URL", ""),
		MaxUploadSize:    envInt64("MAX_UPLOAD_SIZE", 100*1024*1024), // 100MB default
		SearchMaxResults: envInt("SEARCH_MAX_RESULTS", 50),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AuthPasswordHash == "" && cfg.AuthPassword == "" {
		return nil, fmt.Errorf("AUTH_PASSWORD_HASH or AUTH_PASSWORD is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
