package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	ClassifierGemini = "gemini"
	ClassifierStatic = "static"

	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

type Config struct {
	GeminiAPIKey      string
	GeminiModel       string
	Classifier        string
	ClassifierTimeout time.Duration

	StorageBackend string
	DatabaseURL    string
	ReportsFile    string

	HTTPPort string
	LogLevel string

	ResendAPIKey string
	EmailFrom    string

	HistoryPreview    int
	SessionCacheSize  int
	SessionTTL        time.Duration
	IdentityCacheSize int
}

var AppConfig Config

// LoadConfig reads .env (if any) and the environment into AppConfig.
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		Classifier:        getEnv("BESAFE_CLASSIFIER", ClassifierGemini),
		ClassifierTimeout: getEnvAsDuration("CLASSIFIER_TIMEOUT", 30*time.Second),

		StorageBackend: getEnv("STORAGE_BACKEND", StorageSQLite),
		DatabaseURL:    getEnv("DATABASE_URL", "besafe.db"),
		ReportsFile:    getEnv("REPORTS_FILE", "data/reports.json"),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		EmailFrom:    getEnv("EMAIL_FROM", ""),

		HistoryPreview:    getEnvAsInt("HISTORY_PREVIEW", 3),
		SessionCacheSize:  getEnvAsInt("SESSION_CACHE_SIZE", 1024),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", time.Hour),
		IdentityCacheSize: getEnvAsInt("IDENTITY_CACHE_SIZE", 4096),
	}
}

// Validate checks the settings needed to run the classifier and the store.
func (c Config) Validate() error {
	switch c.Classifier {
	case ClassifierGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
	case ClassifierStatic:
	default:
		return fmt.Errorf("unknown classifier %q", c.Classifier)
	}

	switch c.StorageBackend {
	case StorageSQLite, StorageFile:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}
	return nil
}

// MailConfigured reports whether outbound e-mail can be attempted.
func (c Config) MailConfigured() bool {
	return c.ResendAPIKey != "" && c.EmailFrom != ""
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
