package config

import (
	"os"
	"strconv"
)

type Config struct {
	Web       WebConfig
	Admin     AdminConfig
	Database  DatabaseConfig
	Extractor ExtractorConfig
	Alert     AlertConfig
	Storage   StorageConfig
	Log       LogConfig
}

type WebConfig struct {
	Port          int
	SessionSecret string // HMAC key for API tokens
	CORSOrigin    string // allowed origin for browser clients
}

type AdminConfig struct {
	// ID is the identity granted administrative API access.
	ID string
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL string // face extraction service, defaults to http://localhost:8001
}

type AlertConfig struct {
	SMTPHost  string
	SMTPPort  int
	SMTPFrom  string
	SMTPTo    string // security operator address
	SMSURL    string // REST SMS gateway endpoint
	SMSToken  string
	SMSTarget string // operator phone number
}

type StorageConfig struct {
	FacesDir string // directory for enrolled reference photos
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envStr reads an environment variable with a fallback default.
func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		Web: WebConfig{
			Port:          envInt("PORT", 8000),
			SessionSecret: os.Getenv("SESSION_SECRET"),
			CORSOrigin:    envStr("CORS_ORIGIN", "*"),
		},
		Admin: AdminConfig{
			ID: os.Getenv("ADMIN_ID"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL: envStr("EXTRACTOR_URL", "http://localhost:8001"),
		},
		Alert: AlertConfig{
			SMTPHost:  os.Getenv("SMTP_HOST"),
			SMTPPort:  envInt("SMTP_PORT", 587),
			SMTPFrom:  os.Getenv("SMTP_FROM"),
			SMTPTo:    os.Getenv("SMTP_TO"),
			SMSURL:    os.Getenv("SMS_URL"),
			SMSToken:  os.Getenv("SMS_TOKEN"),
			SMSTarget: os.Getenv("SMS_TARGET"),
		},
		Storage: StorageConfig{
			FacesDir: envStr("FACES_DIR", "faces"),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Pretty: os.Getenv("LOG_PRETTY") == "true",
		},
	}
}
