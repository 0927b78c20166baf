package vocab

import (
	"fmt"
	"os"
	"time"

	"github.com/hyperengineering/vocab/internal/logging"
	"github.com/hyperengineering/vocab/internal/refine"
	"github.com/hyperengineering/vocab/internal/store"
	"gopkg.in/yaml.v3"
)

// Config configures the vocabulary service.
type Config struct {
	// DBPath is the path to the SQLite database.
	// If empty, DBPath is derived from Store.
	DBPath string `yaml:"dbPath"`

	// Store is the store ID to operate against.
	// If empty, resolved using store resolution (explicit > VOCAB_STORE env > "default").
	Store string `yaml:"store"`

	// RulesPath points to a YAML rule table. Empty uses the built-in table.
	RulesPath string `yaml:"rulesPath"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"logLevel"`

	// LogFormat is json or console. Defaults to json.
	LogFormat string `yaml:"logFormat"`

	// ExtractInterval is the extraction cadence. Defaults to 6 hours.
	ExtractInterval time.Duration `yaml:"extractInterval"`

	// MaintenanceInterval is the decay/prune cadence. Defaults to one week.
	MaintenanceInterval time.Duration `yaml:"maintenanceInterval"`

	// Lookback bounds how far back a run reads submissions. Defaults to 30 days.
	Lookback time.Duration `yaml:"lookback"`

	// Retention is the age past which low-confidence terms are pruned.
	// Defaults to 30 days.
	Retention time.Duration `yaml:"retention"`

	// DecayAfter is the idle time before a term starts losing confidence.
	// Defaults to 14 days.
	DecayAfter time.Duration `yaml:"decayAfter"`

	// DecayStep is subtracted from idle terms per maintenance cycle.
	// Defaults to 0.1.
	DecayStep float64 `yaml:"decayStep"`

	// DisableDecay turns off confidence decay during maintenance.
	DisableDecay bool `yaml:"disableDecay"`

	// TopN is the number of top terms recorded per snapshot. Defaults to 10.
	TopN int `yaml:"topN"`

	// BatchSize is the number of submissions read per page. Defaults to 200.
	BatchSize int `yaml:"batchSize"`

	// CallTimeout bounds curation and enrichment calls whose context has
	// no deadline. Defaults to 5 seconds.
	CallTimeout time.Duration `yaml:"callTimeout"`

	// AutoStart starts the background scheduler in New.
	AutoStart bool `yaml:"autoStart"`

	// MetricsAddr is the listen address for /metrics in serve mode.
	MetricsAddr string `yaml:"metricsAddr"`

	// Refine configures the optional text-generation collaborator.
	Refine refine.Config `yaml:"refine"`
}

// DefaultConfig returns a Config with sensible defaults.
// Store defaults to "default", and DBPath is derived from Store.
func DefaultConfig() Config {
	return Config{
		Store:               store.DefaultID,
		DBPath:              store.DBPath(store.DefaultID),
		LogLevel:            "info",
		LogFormat:           "json",
		ExtractInterval:     6 * time.Hour,
		MaintenanceInterval: 7 * 24 * time.Hour,
		Lookback:            30 * 24 * time.Hour,
		Retention:           30 * 24 * time.Hour,
		DecayAfter:          14 * 24 * time.Hour,
		DecayStep:           0.1,
		TopN:                10,
		BatchSize:           200,
		CallTimeout:         5 * time.Second,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	VOCAB_DB_PATH        → DBPath
//	VOCAB_STORE          → Store
//	VOCAB_RULES_PATH     → RulesPath
//	VOCAB_LOG_LEVEL      → LogLevel
//	VOCAB_LOG_FORMAT     → LogFormat
//	VOCAB_REFINE_URL     → Refine.Endpoint
//	VOCAB_REFINE_API_KEY → Refine.APIKey
//	VOCAB_REFINE_MODEL   → Refine.Model
func ConfigFromEnv() Config {
	return Config{
		DBPath:    os.Getenv("VOCAB_DB_PATH"),
		Store:     os.Getenv(store.EnvStore),
		RulesPath: os.Getenv("VOCAB_RULES_PATH"),
		LogLevel:  os.Getenv("VOCAB_LOG_LEVEL"),
		LogFormat: os.Getenv("VOCAB_LOG_FORMAT"),
		Refine: refine.Config{
			Endpoint: os.Getenv("VOCAB_REFINE_URL"),
			APIKey:   os.Getenv("VOCAB_REFINE_API_KEY"),
			Model:    os.Getenv("VOCAB_REFINE_MODEL"),
		},
	}
}

// LoadConfigFile reads a YAML config file. Unset fields stay zero so the
// result can be layered with Merge and WithDefaults.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of other onto c.
func (c Config) Merge(other Config) Config {
	setString(&c.DBPath, other.DBPath)
	setString(&c.Store, other.Store)
	setString(&c.RulesPath, other.RulesPath)
	setString(&c.LogLevel, other.LogLevel)
	setString(&c.LogFormat, other.LogFormat)
	setString(&c.MetricsAddr, other.MetricsAddr)
	setString(&c.Refine.Endpoint, other.Refine.Endpoint)
	setString(&c.Refine.APIKey, other.Refine.APIKey)
	setString(&c.Refine.Model, other.Refine.Model)
	setString(&c.Refine.SystemPrompt, other.Refine.SystemPrompt)

	setDuration(&c.ExtractInterval, other.ExtractInterval)
	setDuration(&c.MaintenanceInterval, other.MaintenanceInterval)
	setDuration(&c.Lookback, other.Lookback)
	setDuration(&c.Retention, other.Retention)
	setDuration(&c.DecayAfter, other.DecayAfter)
	setDuration(&c.CallTimeout, other.CallTimeout)
	setDuration(&c.Refine.Timeout, other.Refine.Timeout)
	if other.Refine.RateLimit > 0 {
		c.Refine.RateLimit = other.Refine.RateLimit
	}

	if other.DecayStep != 0 {
		c.DecayStep = other.DecayStep
	}
	if other.TopN != 0 {
		c.TopN = other.TopN
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	c.DisableDecay = c.DisableDecay || other.DisableDecay
	c.AutoStart = c.AutoStart || other.AutoStart
	return c
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return &ValidationError{Field: "DBPath", Message: "required: path to SQLite database"}
	}

	if c.Store != "" {
		if err := store.ValidateID(c.Store); err != nil {
			return &ValidationError{Field: "Store", Message: err.Error()}
		}
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Field: "LogLevel", Message: err.Error()}
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "console" {
		return &ValidationError{Field: "LogFormat", Message: "must be json or console"}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"ExtractInterval", c.ExtractInterval},
		{"MaintenanceInterval", c.MaintenanceInterval},
		{"Lookback", c.Lookback},
		{"Retention", c.Retention},
		{"DecayAfter", c.DecayAfter},
		{"CallTimeout", c.CallTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return &ValidationError{Field: d.field, Message: "must be non-negative"}
		}
	}

	if c.DecayStep < 0 || c.DecayStep > 1 {
		return &ValidationError{Field: "DecayStep", Message: "must be between 0 and 1"}
	}
	if c.TopN < 0 {
		return &ValidationError{Field: "TopN", Message: "must be non-negative"}
	}
	if c.BatchSize < 0 {
		return &ValidationError{Field: "BatchSize", Message: "must be non-negative"}
	}

	if c.Refine.Endpoint != "" && !c.Refine.Enabled() {
		return &ValidationError{Field: "Refine", Message: "endpoint requires model and API key"}
	}

	return nil
}

// WithDefaults fills in default values for unset fields.
// Store resolution: explicit Store field > VOCAB_STORE env > "default".
// DBPath is derived from the resolved Store if not explicitly set.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Store == "" {
		resolved, err := store.Resolve("")
		if err == nil {
			c.Store = resolved
		} else {
			c.Store = store.DefaultID
		}
	}
	if c.DBPath == "" {
		c.DBPath = store.DBPath(c.Store)
	}

	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}
	if c.ExtractInterval == 0 {
		c.ExtractInterval = defaults.ExtractInterval
	}
	if c.MaintenanceInterval == 0 {
		c.MaintenanceInterval = defaults.MaintenanceInterval
	}
	if c.Lookback == 0 {
		c.Lookback = defaults.Lookback
	}
	if c.Retention == 0 {
		c.Retention = defaults.Retention
	}
	if c.DecayAfter == 0 {
		c.DecayAfter = defaults.DecayAfter
	}
	if c.DecayStep == 0 && !c.DisableDecay {
		c.DecayStep = defaults.DecayStep
	}
	if c.DisableDecay {
		c.DecayStep = 0
	}
	if c.TopN == 0 {
		c.TopN = defaults.TopN
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaults.CallTimeout
	}

	return c
}
