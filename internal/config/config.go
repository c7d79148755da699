package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSheets   = "sheets"
	BackendBigQuery = "bigquery"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	App AppConfig `yaml:"app"`

	// YouTube API settings
	YouTube YouTubeConfig `yaml:"youtube"`

	// Discovery behaviour
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Tracked-set store
	Storage StorageConfig `yaml:"storage"`

	// Google Cloud settings
	GCP GCPConfig `yaml:"gcp"`

	// Hourly trigger
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Server settings
	Server ServerConfig `yaml:"server"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Channel configuration
	Channels []ChannelConfig `yaml:"channels"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Environment string        `yaml:"environment"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
}

// YouTubeConfig contains YouTube API settings
type YouTubeConfig struct {
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// DiscoveryConfig controls how channel failures are handled
type DiscoveryConfig struct {
	IsolateChannelFailures bool `yaml:"isolate_channel_failures"`
}

// StorageConfig selects and configures the store backend
type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Bolt     BoltConfig     `yaml:"bolt"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// SheetsConfig contains Google Sheets settings
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	CredentialsFile string `yaml:"credentials_file"`
}

// BigQueryConfig contains BigQuery settings
type BigQueryConfig struct {
	DatasetID string `yaml:"dataset_id"`
	TableID   string `yaml:"table_id"`
	Location  string `yaml:"location"`
}

// BoltConfig contains the local database settings
type BoltConfig struct {
	Path string `yaml:"path"`
}

// SQLiteConfig contains the SQLite database settings
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// GCPConfig contains Google Cloud Platform settings
type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
}

// SchedulerConfig contains the background trigger settings
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChannelConfig represents a YouTube channel to monitor
type ChannelConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Environment: "development",
			RunTimeout:  10 * time.Minute,
		},
		YouTube: YouTubeConfig{
			RequestTimeout: 30 * time.Second,
			RetryDelay:     2 * time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendSheets,
			Sheets: SheetsConfig{
				SheetName: "Sheet1",
			},
			BigQuery: BigQueryConfig{
				DatasetID: "youtube",
				TableID:   "shorts_vph",
				Location:  "asia-south1",
			},
			Bolt: BoltConfig{
				Path: "data/shorts.db",
			},
			SQLite: SQLiteConfig{
				Path: "data/shorts.sqlite",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Spec:    "0 * * * *",
		},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1 MB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Channels: []ChannelConfig{},
	}
}

// Load loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(cfg *Config) {
	// Load .env file if in local environment
	if os.Getenv("GO_ENV") == "local" {
		godotenv.Load()
	}

	// App settings
	if env := os.Getenv("GO_ENV"); env != "" {
		cfg.App.Environment = env
	}

	// YouTube settings
	if env := os.Getenv("YOUTUBE_API_KEY"); env != "" {
		cfg.YouTube.APIKey = env
	}

	// GCP settings
	if env := os.Getenv("GOOGLE_CLOUD_PROJECT"); env != "" {
		cfg.GCP.ProjectID = env
	}
	if env := os.Getenv("PROJECT_ID"); env != "" && cfg.GCP.ProjectID == "" {
		cfg.GCP.ProjectID = env
	}

	// Storage settings
	if env := os.Getenv("STORAGE_BACKEND"); env != "" {
		cfg.Storage.Backend = env
	}
	if env := os.Getenv("SPREADSHEET_ID"); env != "" {
		cfg.Storage.Sheets.SpreadsheetID = env
	}
	if env := os.Getenv("SHEET_NAME"); env != "" {
		cfg.Storage.Sheets.SheetName = env
	}
	if env := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); env != "" && cfg.Storage.Sheets.CredentialsFile == "" {
		cfg.Storage.Sheets.CredentialsFile = env
	}
	if env := os.Getenv("BIGQUERY_DATASET"); env != "" {
		cfg.Storage.BigQuery.DatasetID = env
	}
	if env := os.Getenv("BIGQUERY_TABLE"); env != "" {
		cfg.Storage.BigQuery.TableID = env
	}
	if env := os.Getenv("BOLT_PATH"); env != "" {
		cfg.Storage.Bolt.Path = env
	}
	if env := os.Getenv("SQLITE_PATH"); env != "" {
		cfg.Storage.SQLite.Path = env
	}

	// Scheduler settings
	if env := os.Getenv("SCHEDULER_ENABLED"); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			cfg.Scheduler.Enabled = val
		}
	}

	// Server settings
	if env := os.Getenv("PORT"); env != "" {
		cfg.Server.Port = env
	}

	// Logging settings
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		cfg.Logging.Level = strings.ToLower(env)
	}
	if env := os.Getenv("LOG_FORMAT"); env != "" {
		cfg.Logging.Format = env
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("YouTube API key is required")
	}
	if c.YouTube.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.YouTube.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative")
	}

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case BackendSheets:
		if c.Storage.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("spreadsheet_id is required for the sheets backend")
		}
	case BackendBigQuery:
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("GCP project ID is required for the bigquery backend")
		}
		if c.Storage.BigQuery.DatasetID == "" || c.Storage.BigQuery.TableID == "" {
			return fmt.Errorf("dataset_id and table_id are required for the bigquery backend")
		}
	case BackendBolt:
		if c.Storage.Bolt.Path == "" {
			return fmt.Errorf("bolt path is required for the bolt backend")
		}
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		return fmt.Errorf("scheduler spec is required when the scheduler is enabled")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// At least one channel must be configured
	enabledChannels := 0
	for _, ch := range c.Channels {
		if ch.Enabled {
			enabledChannels++
			if ch.ID == "" {
				return fmt.Errorf("channel ID is required")
			}
		}
	}
	if enabledChannels == 0 {
		return fmt.Errorf("at least one enabled channel is required")
	}

	return nil
}

// GetEnabledChannelIDs returns a list of enabled channel IDs, in file order
func (c *Config) GetEnabledChannelIDs() []string {
	var ids []string
	for _, ch := range c.Channels {
		if ch.Enabled {
			ids = append(ids, ch.ID)
		}
	}
	return ids
}
