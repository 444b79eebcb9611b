package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool

	// Channel selects the session backend: "multidevice" pairs a phone by
	// QR code, "cloud" uses the Cloud API credentials below.
	Channel    string
	ClientID   string
	SessionDir string

	// WhatsApp Cloud API
	WhatsAppToken  string
	PhoneNumberID  string
	WhatsAppAPIURL string

	// Message log storage
	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Dispatch pacing
	RecipientDelay  time.Duration
	AttachmentDelay time.Duration
	PairingTimeout  time.Duration

	MediaFetchTimeout time.Duration
	MediaMaxBytes     int64
}

// LoadConfig reads .env (if present) followed by the process environment.
func LoadConfig(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file")
	}

	return &Config{
		Port:      getEnv("PORT", "3000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getBool("LOG_PRETTY", true),

		Channel:    getEnv("WHATSAPP_CHANNEL", "multidevice"),
		ClientID:   getEnv("SESSION_CLIENT_ID", "weblast"),
		SessionDir: getEnv("SESSION_DIR", "./.weblast_auth"),

		WhatsAppToken:  getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:  getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppAPIURL: getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v19.0"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./weblast.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "weblast"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RecipientDelay:  getDuration("RECIPIENT_DELAY", 2*time.Second),
		AttachmentDelay: getDuration("ATTACHMENT_DELAY", time.Second),
		PairingTimeout:  getDuration("PAIRING_TIMEOUT", 0),

		MediaFetchTimeout: getDuration("MEDIA_FETCH_TIMEOUT", 30*time.Second),
		MediaMaxBytes:     getInt64("MEDIA_MAX_BYTES", 16<<20),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return fallback
	}
	return d
}

func getInt64(key string, fallback int64) int64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid boolean, using default")
		return fallback
	}
	return b
}
