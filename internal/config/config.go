package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "MDB"

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Bundle    BundleConfig    `yaml:"bundle" envconfig:"BUNDLE"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// Single-word leaf fields carry no envconfig tag: a tagged key is also
// looked up without the MDB_ prefix, which would pick up USER or NAME.

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" validate:"eq=json"`
	Output   string `yaml:"output" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	InputDir      string `yaml:"input_dir" envconfig:"INPUT_DIR" validate:"required"`
	StagingDir    string `yaml:"staging_dir" envconfig:"STAGING_DIR"`
	BundleDir     string `yaml:"bundle_dir" envconfig:"BUNDLE_DIR" validate:"required"`
	BusinessDays  string `yaml:"business_days" envconfig:"BUSINESS_DAYS" validate:"required"`
	FeedSchemas   string `yaml:"feed_schemas" envconfig:"FEED_SCHEMAS" validate:"required"`
	SymbolList    string `yaml:"symbol_list" envconfig:"SYMBOL_LIST"`
	TickerChanges string `yaml:"ticker_changes" envconfig:"TICKER_CHANGES"`
	MetricsFile   string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// BundleConfig controls how a run transforms its inputs.
type BundleConfig struct {
	Name           string  `yaml:"name" validate:"required"`
	Workers        int     `yaml:"workers" validate:"min=1,max=256"`
	ZeroFillVolume bool    `yaml:"zero_fill_volume" envconfig:"ZERO_FILL_VOLUME"`
	Tolerance      float64 `yaml:"tolerance" validate:"gt=0,lt=0.01"`
	TickerStrip    string  `yaml:"ticker_strip" envconfig:"TICKER_STRIP"`
}

// StoreConfig selects the backend the bundle is committed to.
type StoreConfig struct {
	Driver     string         `yaml:"driver" validate:"oneof=csv duckdb postgres"`
	DuckDBPath string         `yaml:"duckdb_path" envconfig:"DUCKDB_PATH"`
	Postgres   PostgresConfig `yaml:"postgres" envconfig:"POSTGRES"`
}

// PostgresConfig holds connection settings for the postgres store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"min=0,max=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"SSL_MODE" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MinConns int    `yaml:"min_conns" envconfig:"MIN_CONNS" validate:"min=0"`
	MaxConns int    `yaml:"max_conns" envconfig:"MAX_CONNS" validate:"min=0"`
}

// TelemetryConfig contains tracing and metrics settings
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	TraceFile      string  `yaml:"trace_file" envconfig:"TRACE_FILE"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	MetricsEnabled bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// Load builds the configuration from defaults, an optional YAML file and
// MDB_* environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = getConfigFilePath()
	}
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolvePaths fills derived paths left empty by the user.
func (c *Config) resolvePaths() {
	if c.Store.DuckDBPath == "" {
		c.Store.DuckDBPath = filepath.Join(c.Paths.BundleDir, "bundle.duckdb")
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "mdbundle-" + c.Bundle.Name
	}
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}
	if c.Store.Driver == "postgres" {
		if c.Store.Postgres.Host == "" || c.Store.Postgres.Name == "" {
			return fmt.Errorf("store.postgres.host and store.postgres.name are required for the postgres driver")
		}
		if c.Store.Postgres.MaxConns > 0 && c.Store.Postgres.MinConns > c.Store.Postgres.MaxConns {
			return fmt.Errorf("store.postgres.min_conns %d exceeds max_conns %d",
				c.Store.Postgres.MinConns, c.Store.Postgres.MaxConns)
		}
	}
	if strings.ContainsAny(c.Bundle.Name, `/\`) {
		return fmt.Errorf("bundle.name %q must not contain path separators", c.Bundle.Name)
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"mdbundle.yaml",
		"configs/mdbundle.yaml",
		"../configs/mdbundle.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/ingest.log",
		},
		Paths: PathsConfig{
			InputDir:     "data/incoming",
			StagingDir:   "data/staging",
			BundleDir:    "data/bundle",
			BusinessDays: "data/meta/bizdays.csv",
			FeedSchemas:  "configs/feeds.yaml",
		},
		Bundle: BundleConfig{
			Name:      "default",
			Workers:   4,
			Tolerance: 1e-6,
		},
		Store: StoreConfig{
			Driver: "csv",
			Postgres: PostgresConfig{
				Port:     5432,
				SSLMode:  "prefer",
				MinConns: 1,
				MaxConns: 4,
			},
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
			SampleRatio:   1.0,
		},
	}
}
