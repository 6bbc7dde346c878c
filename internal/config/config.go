package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside a data directory.
const FileName = "otter.yaml"

// Config represents the top-level otter.yaml configuration.
type Config struct {
	Household HouseholdConfig `yaml:"household"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Matching  MatchingConfig  `yaml:"matching"`
	Rules     RulesConfig     `yaml:"rules"`
	Sync      SyncConfig      `yaml:"sync"`
	Server    ServerConfig    `yaml:"server"`
}

// HouseholdConfig identifies the household whose books this is.
type HouseholdConfig struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// MatchingConfig tunes the reconciliation engine.
type MatchingConfig struct {
	ImportWindowDays int             `yaml:"import_window_days"`
	SyncWindowDays   int             `yaml:"sync_window_days"`
	AutoConfirm      float64         `yaml:"auto_confirm"`
	MerchantAliases  []MerchantAlias `yaml:"merchant_aliases,omitempty"`
}

// MerchantAlias maps descriptions matching Pattern (a regular expression,
// case-insensitive) to a canonical merchant name for scoring.
type MerchantAlias struct {
	Pattern  string `yaml:"pattern"`
	Merchant string `yaml:"merchant"`
}

// RulesConfig locates the categorization rules file.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig configures the bank aggregator feed client.
type SyncConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryMax     int           `yaml:"retry_max"`
	LookbackDays int           `yaml:"lookback_days"`
}

// ServerConfig configures `otter serve`.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// Load reads an otter.yaml file from disk, expands ${VAR} references, and
// applies OTTER_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("")
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new household.
func Default(household string) *Config {
	return &Config{
		Household: HouseholdConfig{
			Name:     household,
			Currency: "USD",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "otter.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Matching: MatchingConfig{
			ImportWindowDays: 3,
			SyncWindowDays:   5,
			AutoConfirm:      0.95,
			MerchantAliases: []MerchantAlias{
				{Pattern: `^(amzn|amazon)\b`, Merchant: "Amazon"},
			},
		},
		Rules: RulesConfig{
			Path: "rules/categorization-rules.yaml",
		},
		Sync: SyncConfig{
			Timeout:      30 * time.Second,
			RetryMax:     3,
			LookbackDays: 30,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Validate checks values the engine and store cannot work around.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite3 or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Matching.ImportWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("matching.import_window_days must be positive, got %d", c.Matching.ImportWindowDays))
	}
	if c.Matching.SyncWindowDays <= 0 {
		errs = append(errs, fmt.Errorf("matching.sync_window_days must be positive, got %d", c.Matching.SyncWindowDays))
	}
	if c.Matching.AutoConfirm < 0 || c.Matching.AutoConfirm > 1 {
		errs = append(errs, fmt.Errorf("matching.auto_confirm must be within [0, 1], got %g", c.Matching.AutoConfirm))
	}
	for i, a := range c.Matching.MerchantAliases {
		if a.Pattern == "" || a.Merchant == "" {
			errs = append(errs, fmt.Errorf("matching.merchant_aliases[%d]: pattern and merchant are required", i))
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"OTTER_DATABASE_DRIVER": &c.Database.Driver,
		"OTTER_DATABASE_DSN":    &c.Database.DSN,
		"OTTER_LOG_LEVEL":       &c.Logging.Level,
		"OTTER_LOG_FORMAT":      &c.Logging.Format,
		"OTTER_SYNC_API_KEY":    &c.Sync.APIKey,
		"OTTER_SYNC_BASE_URL":   &c.Sync.BaseURL,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("OTTER_SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OTTER_SERVER_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}
