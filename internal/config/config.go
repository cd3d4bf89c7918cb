package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMongoDB = "mongodb"
	StorageMemory  = "memory"
)

// Config represents the full application configuration surface.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	MongoDB    MongoDBConfig
	JobCatalog JobCatalogConfig
	Redis      RedisConfig
	Sheets     SheetsConfig
	Reporting  ReportingConfig
	WhatsApp   WhatsAppConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// StorageConfig selects the system of record.
type StorageConfig struct {
	Driver string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI          string
	DBName       string
	Transactions bool
}

// JobCatalogConfig points at the relational job catalog. An empty DSN disables it.
type JobCatalogConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
	CacheTTL     time.Duration
}

// Enabled reports whether catalog lookups are configured.
func (c JobCatalogConfig) Enabled() bool { return c.DSN != "" }

// RedisConfig configures the shared job lock and the catalog cache. An empty
// address falls back to an in-process lock and no cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
	LockWait time.Duration
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	SummaryRange    string
}

// Enabled reports whether summary export is configured.
func (c SheetsConfig) Enabled() bool { return c.CredentialsPath != "" && c.SpreadsheetID != "" }

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
	AutoRepair   bool
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken     string
	PhoneNumberID   string
	BaseURL         string
	APIVersion      string
	DigestRecipient string
}

// Enabled reports whether the audit digest can be sent.
func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != "" && c.DigestRecipient != ""
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getenvWithDefault("STORAGE_DRIVER", StorageMongoDB)),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "piecework"),
		},
		JobCatalog: JobCatalogConfig{
			DSN: os.Getenv("JOB_CATALOG_DSN"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDRESS"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			SummaryRange:    getenvWithDefault("GOOGLE_SHEET_SUMMARY_RANGE", "JobSummary!A:G"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("AUDIT_CRON_SCHEDULE", "0 2 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "UTC"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:     os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:   os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:         getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:      getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			DigestRecipient: os.Getenv("WHATSAPP_DIGEST_RECIPIENT"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
	}

	var err error
	if cfg.MongoDB.Transactions, err = getenvBool("MONGODB_TRANSACTIONS", false); err != nil {
		return nil, err
	}
	if cfg.Reporting.AutoRepair, err = getenvBool("AUDIT_AUTO_REPAIR", false); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getenvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.LockTTL, err = getenvDuration("JOB_LOCK_TTL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Redis.LockWait, err = getenvDuration("JOB_LOCK_WAIT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobCatalog.MaxOpenConns, err = getenvInt("JOB_CATALOG_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.JobCatalog.MaxIdleConns, err = getenvInt("JOB_CATALOG_MAX_IDLE_CONNS", 5); err != nil {
		return nil, err
	}
	if cfg.JobCatalog.MaxIdleTime, err = getenvDuration("JOB_CATALOG_MAX_IDLE_TIME", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JobCatalog.CacheTTL, err = getenvDuration("JOB_CATALOG_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Driver {
	case StorageMongoDB:
		if c.MongoDB.URI == "" {
			return errors.New("MONGODB_URI must be provided")
		}
		if c.MongoDB.DBName == "" {
			return errors.New("MONGODB_DB_NAME must not be empty")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMongoDB, StorageMemory, c.Storage.Driver)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("AUDIT_CRON_SCHEDULE must not be empty")
	}

	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}

	if c.Redis.Enabled() && (c.Redis.LockTTL <= 0 || c.Redis.LockWait <= 0) {
		return errors.New("JOB_LOCK_TTL and JOB_LOCK_WAIT must be positive")
	}

	if c.WhatsApp.DigestRecipient != "" && (c.WhatsApp.AccessToken == "" || c.WhatsApp.PhoneNumberID == "") {
		return errors.New("WHATSAPP_TOKEN and WHATSAPP_PHONE_NUMBER_ID must be provided with WHATSAPP_DIGEST_RECIPIENT")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}

func getenvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return parsed, nil
}
