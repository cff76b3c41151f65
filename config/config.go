// Package config loads the regtune configuration from YAML, applies
// defaults and REGTUNE_* environment overrides, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REGTUNE_"

var validate = validator.New()

// Config is the root configuration.
type Config struct {
	Logging Logging `yaml:"logging"`
	Data    Data    `yaml:"data"`
	Model   Model   `yaml:"model"`
	Search  Search  `yaml:"search"`
	Cache   Cache   `yaml:"cache"`
	Metrics Metrics `yaml:"metrics"`
}

// Logging configures the logger.
type Logging struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
	Format     string `yaml:"format" default:"text" validate:"oneof=json text"`
	Output     string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	Filename   string `yaml:"filename" default:"logs/regtune.log"`
	MaxSize    int    `yaml:"max_size" default:"100" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" default:"30" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" default:"10" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Data configures dataset ingestion and the train/test split.
type Data struct {
	Path      string  `yaml:"path"`
	Target    string  `yaml:"target" default:"review_score" validate:"required"`
	Delimiter string  `yaml:"delimiter" default:"," validate:"len=1"`
	TestSize  float64 `yaml:"test_size" default:"0.2" validate:"gt=0,lt=1"`
	Seed      int64   `yaml:"seed" default:"42"`
	Stratify  bool    `yaml:"stratify" default:"true"`

	// FillMissing replaces missing numeric values with the column median
	// instead of dropping the row.
	FillMissing bool `yaml:"fill_missing"`

	// DropColumns are removed before training.
	DropColumns []string `yaml:"drop_columns"`
}

// Model selects the model family and the tuning behaviour.
type Model struct {
	// Name is a model family identifier or historical class name.
	Name string `yaml:"model_name" default:"LinearRegressionModel" validate:"required"`

	// FineTuning runs the hyperparameter tuner before the final fit.
	FineTuning bool `yaml:"fine_tuning"`

	// UseCachedParams lets the tuner return cached hyperparameters.
	UseCachedParams bool `yaml:"use_cached_params" default:"true"`

	// TrialBudget is the number of search trials.
	TrialBudget int `yaml:"trial_budget" default:"100" validate:"gt=0"`
}

// Search tunes the Bayesian search engine.
type Search struct {
	InitialSamples int     `yaml:"initial_samples" default:"10" validate:"gte=0"`
	NumCandidates  int     `yaml:"num_candidates" default:"64" validate:"gte=1"`
	Workers        int     `yaml:"workers" default:"1" validate:"gte=1"`
	Seed           int64   `yaml:"seed"`
	Acquisition    string  `yaml:"acquisition" default:"ucb" validate:"oneof=ucb pi ei thompson"`
	Beta           float64 `yaml:"beta" default:"2.0" validate:"gte=0"`
	Xi             float64 `yaml:"xi" default:"0.01" validate:"gte=0"`
	KernelWidth    float64 `yaml:"kernel_width" default:"0.25" validate:"gt=0"`
}

// Cache selects and configures the hyperparameter cache backend.
type Cache struct {
	Backend  string   `yaml:"backend" default:"file" validate:"oneof=file redis postgres memory"`
	Path     string   `yaml:"path" default:"best_params.json"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
}

// Redis configures the Redis cache backend.
type Redis struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Key      string `yaml:"key" default:"regtune:best_params"`
}

// Postgres configures the PostgreSQL cache backend.
type Postgres struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" default:"hyperparameter_cache"`
}

// Metrics configures the Prometheus export.
type Metrics struct {
	// Textfile, when set, receives the registry in text exposition format
	// at the end of a run.
	Textfile string `yaml:"textfile"`
}

//////
// Exported functionalities.
//////

// Default returns a configuration holding only default values.
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}

	return c
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadDotEnv loads variables from the given .env files (".env" when none is
// given) into the process environment. Missing files are ignored and
// variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	existing := make([]string, 0, len(files))

	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) == 0 {
		return nil
	}

	return godotenv.Load(existing...)
}

// ApplyEnv overrides fields from REGTUNE_* variables resolved by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	var errs []error

	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}

			*dst = b
		}
	}

	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}

			*dst = n
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("DATA_PATH", &c.Data.Path)
	str("DATA_TARGET", &c.Data.Target)
	str("MODEL_NAME", &c.Model.Name)
	boolean("FINE_TUNING", &c.Model.FineTuning)
	boolean("USE_CACHED_PARAMS", &c.Model.UseCachedParams)
	integer("TRIAL_BUDGET", &c.Model.TrialBudget)
	integer("SEARCH_WORKERS", &c.Search.Workers)
	str("CACHE_BACKEND", &c.Cache.Backend)
	str("CACHE_PATH", &c.Cache.Path)
	str("REDIS_ADDR", &c.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	integer("REDIS_DB", &c.Cache.Redis.DB)
	str("POSTGRES_DSN", &c.Cache.Postgres.DSN)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)

	return errors.Join(errs...)
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "file":
		if c.Cache.Path == "" {
			return errors.New("cache.path is required for the file backend")
		}
	case "redis":
		if c.Cache.Redis.Addr == "" || c.Cache.Redis.Key == "" {
			return errors.New("cache.redis.addr and cache.redis.key are required for the redis backend")
		}
	case "postgres":
		if c.Cache.Postgres.DSN == "" {
			return errors.New("cache.postgres.dsn is required for the postgres backend")
		}
	}

	if c.Logging.Output == "file" && c.Logging.Filename == "" {
		return errors.New("logging.filename is required when logging.output is file")
	}

	return nil
}
