package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	DatabaseURL     string
	Env             string

	// Google OAuth for the dashboard login flow.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	// Signing key material (PEM). Required whenever an envelope carries a
	// digital-signature field.
	SigningCertFile string
	SigningKeyFile  string
	SigningTimeout  time.Duration
	SigningLocation string

	// Renderer assets.
	FontDir string

	// Notifier dispatch queue. Empty means notifications are logged only.
	NotifyQueueURL string

	// Concurrency guard lock wait.
	LockTimeout time.Duration

	// Scheduler knobs.
	ReminderInterval time.Duration
	PurgeAfter       time.Duration
	JobInterval      time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType:    normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:      getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:        getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:        dbURL,
		Env:                env,
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		UIRedirectURL:      getEnv("UI_REDIRECT_URL", ""),
		SigningCertFile:    getEnv("SIGNING_CERT_FILE", ""),
		SigningKeyFile:     getEnv("SIGNING_KEY_FILE", ""),
		SigningTimeout:     getEnvDuration("SIGNING_TIMEOUT", 10*time.Second),
		SigningLocation:    getEnv("SIGNING_LOCATION", ""),
		FontDir:            getEnv("FONT_DIR", "./assets/fonts"),
		NotifyQueueURL:     getEnv("NOTIFY_SQS_QUEUE_URL", ""),
		LockTimeout:        getEnvDuration("ENVELOPE_LOCK_TIMEOUT", 5*time.Second),
		ReminderInterval:   getEnvDuration("REMINDER_INTERVAL", 72*time.Hour),
		PurgeAfter:         getEnvDuration("PURGE_AFTER", 30*24*time.Hour),
		JobInterval:        getEnvDuration("JOB_INTERVAL", time.Hour),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if val, err := time.ParseDuration(raw); err == nil {
		return val
	}
	// Bare integers are treated as seconds.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config env %s invalid duration, using default", key)
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
