package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendFile   = "file"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	ReportInterval time.Duration
	DigestTime     string

	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	FileStoreDir  string

	DefaultTimezone string
	MaxTasks        int
	EphemeralTTL    time.Duration

	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, optionally layered
// over the YAML file named by PLANNER_CONFIG. Environment wins.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("database_url", "task_planner.db")
	v.SetDefault("store_backend", BackendSQLite)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_database", "task_planner")
	v.SetDefault("file_store_dir", "data")
	v.SetDefault("default_timezone", "America/New_York")
	v.SetDefault("max_tasks", 50)
	v.SetDefault("ephemeral_ttl_seconds", 60)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if path := strings.TrimSpace(os.Getenv("PLANNER_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		TelegramToken:   strings.TrimSpace(v.GetString("telegram_token")),
		DatabaseURL:     strings.TrimSpace(v.GetString("database_url")),
		ReportInterval:  parseInterval(strings.TrimSpace(v.GetString("report_interval_hours"))),
		DigestTime:      strings.TrimSpace(v.GetString("digest_time")),
		StoreBackend:    strings.ToLower(strings.TrimSpace(v.GetString("store_backend"))),
		MongoURI:        strings.TrimSpace(v.GetString("mongo_uri")),
		MongoDatabase:   strings.TrimSpace(v.GetString("mongo_database")),
		FileStoreDir:    strings.TrimSpace(v.GetString("file_store_dir")),
		DefaultTimezone: strings.TrimSpace(v.GetString("default_timezone")),
		MaxTasks:        v.GetInt("max_tasks"),
		EphemeralTTL:    time.Duration(v.GetInt("ephemeral_ttl_seconds")) * time.Second,
		HTTPAddr:        strings.TrimSpace(v.GetString("http_addr")),
		LogLevel:        strings.TrimSpace(v.GetString("log_level")),
		LogFormat:       strings.TrimSpace(v.GetString("log_format")),
	}

	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendMongo, BackendFile:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of sqlite, mongo, file (got %q)", c.StoreBackend)
	}
	if c.MaxTasks <= 0 {
		return fmt.Errorf("MAX_TASKS must be positive")
	}
	if c.EphemeralTTL <= 0 {
		return fmt.Errorf("EPHEMERAL_TTL_SECONDS must be positive")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	if c.DigestTime != "" {
		if _, err := time.Parse("15:04", c.DigestTime); err != nil {
			return fmt.Errorf("DIGEST_TIME must be HH:MM (got %q)", c.DigestTime)
		}
	}
	return nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
