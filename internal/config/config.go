package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/farmmap/internal/cost"
	"github.com/sells-group/farmmap/internal/resilience"
)

// APIKeyField is the JSON member read from the API key file.
const APIKeyField = "GOOGLE_API_KEY"

// DefaultSQLitePath is used when the sqlite driver has no database_url.
const DefaultSQLitePath = "data/stables.db"

// Config holds the full application configuration.
type Config struct {
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Portal   PortalConfig   `yaml:"portal" mapstructure:"portal"`
	Pricing  PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the stable list. Path may be an http(s) URL, in
// which case the file is downloaded to CachePath. Format is "delimited"
// for the licensed-stable file or "portal" for crawl output.
type InputConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	Format    string `yaml:"format" mapstructure:"format"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
}

// GeocodeConfig configures the geocoding client.
type GeocodeConfig struct {
	BaseURL     string      `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string      `yaml:"api_key" mapstructure:"api_key"`
	KeyFile     string      `yaml:"key_file" mapstructure:"key_file"`
	DelaySecs   float64     `yaml:"delay_secs" mapstructure:"delay_secs"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures geocode retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// OutputConfig locates the per-record JSON artifacts.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig selects an optional table store mirrored alongside the
// JSON artifacts.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// PipelineConfig configures run behavior.
type PipelineConfig struct {
	AbortOnInvalid bool `yaml:"abort_on_invalid" mapstructure:"abort_on_invalid"`
}

// PortalConfig configures the licensing portal crawler.
type PortalConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Workers     int     `yaml:"workers" mapstructure:"workers"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxPages    int     `yaml:"max_pages" mapstructure:"max_pages"`
	IDsPath     string  `yaml:"ids_path" mapstructure:"ids_path"`
	Output      string  `yaml:"output" mapstructure:"output"`
	FailedPath  string  `yaml:"failed_path" mapstructure:"failed_path"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Geocode cost.Rates `yaml:"geocode" mapstructure:"geocode"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FARMMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.path", "LicensedStables.csv")
	v.SetDefault("input.format", "delimited")
	v.SetDefault("input.delimiter", "tab")
	v.SetDefault("input.cache_path", "data/LicensedStables.csv")
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.api_key", "")
	v.SetDefault("geocode.key_file", "GoogleApiKey.json")
	v.SetDefault("geocode.delay_secs", 5)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.rate_limit", 1)
	v.SetDefault("geocode.retry.max_attempts", 3)
	v.SetDefault("geocode.retry.initial_backoff_ms", 500)
	v.SetDefault("geocode.retry.max_backoff_ms", 10000)
	v.SetDefault("geocode.retry.multiplier", 2.0)
	v.SetDefault("geocode.retry.jitter_fraction", 0.25)
	v.SetDefault("output.dir", "data/json")
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.table", "stables")
	v.SetDefault("pipeline.abort_on_invalid", true)
	v.SetDefault("portal.base_url", "https://portal.mda.maryland.gov/stables")
	v.SetDefault("portal.workers", 10)
	v.SetDefault("portal.rate_limit", 2)
	v.SetDefault("portal.max_pages", 100)
	v.SetDefault("portal.ids_path", "data/ids.txt")
	v.SetDefault("portal.output", "data/portalData.jsonl")
	v.SetDefault("portal.failed_path", "data/errIds.txt")
	v.SetDefault("portal.timeout_secs", 30)
	v.SetDefault("pricing.geocode.per_thousand", 5.00)
	v.SetDefault("pricing.geocode.volume_per_thousand", 4.00)
	v.SetDefault("pricing.geocode.volume_threshold", 100000)
	v.SetDefault("pricing.geocode.free_requests", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. Valid modes are
// geocode, status, export, sync and crawl.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "file", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be one of file, sqlite, postgres", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}

	switch c.Input.Delimiter {
	case "", "tab", "comma", "auto":
	default:
		errs = append(errs, fmt.Sprintf("input.delimiter %q must be one of tab, comma, auto", c.Input.Delimiter))
	}

	switch c.Input.Format {
	case "", "delimited", "portal":
	default:
		errs = append(errs, fmt.Sprintf("input.format %q must be one of delimited, portal", c.Input.Format))
	}

	switch mode {
	case "geocode":
		if c.Geocode.DelaySecs < 0 {
			errs = append(errs, "geocode.delay_secs must be >= 0")
		}
		if c.Geocode.TimeoutSecs <= 0 {
			errs = append(errs, "geocode.timeout_secs must be > 0")
		}
		if c.Geocode.Retry.MaxAttempts < 1 {
			errs = append(errs, "geocode.retry.max_attempts must be >= 1")
		}
		if c.Geocode.BaseURL == "" {
			errs = append(errs, "geocode.base_url is required")
		}
	case "status", "export":
	case "crawl":
		if c.Portal.BaseURL == "" {
			errs = append(errs, "portal.base_url is required")
		}
		if c.Portal.Workers < 1 {
			errs = append(errs, "portal.workers must be >= 1")
		}
		if c.Portal.MaxPages < 1 {
			errs = append(errs, "portal.max_pages must be >= 1")
		}
		if c.Portal.TimeoutSecs <= 0 {
			errs = append(errs, "portal.timeout_secs must be > 0")
		}
		if c.Portal.Output == "" {
			errs = append(errs, "portal.output is required")
		}
	case "sync":
		if c.Store.Driver == "file" {
			errs = append(errs, "store.driver must be sqlite or postgres to sync")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Delay returns the pause between geocode requests.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.Geocode.DelaySecs * float64(time.Second))
}

// Timeout returns the per-request HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Geocode.TimeoutSecs) * time.Second
}

// PortalTimeout returns the per-page HTTP timeout for the crawler.
func (c *Config) PortalTimeout() time.Duration {
	return time.Duration(c.Portal.TimeoutSecs) * time.Second
}

// RetryPolicy converts the retry section into a resilience.RetryConfig.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	r := c.Geocode.Retry
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// PortalFormat reports whether the input is crawl output rather than the
// delimited licensed-stable file.
func (c *Config) PortalFormat() bool {
	return c.Input.Format == "portal"
}

// StoreDSN returns the connection string for the table store.
func (c *Config) StoreDSN() string {
	if c.Store.Driver == "sqlite" && c.Store.DatabaseURL == "" {
		return DefaultSQLitePath
	}
	return c.Store.DatabaseURL
}

// ResolveAPIKey returns geocode.api_key when set and otherwise reads the
// key file.
func (c *Config) ResolveAPIKey() (string, error) {
	if key := strings.TrimSpace(c.Geocode.APIKey); key != "" {
		return key, nil
	}
	return LoadAPIKey(c.Geocode.KeyFile)
}

// LoadAPIKey reads {"GOOGLE_API_KEY": "..."} from path.
func LoadAPIKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "config: read api key file %s", path)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", eris.Wrapf(err, "config: parse api key file %s", path)
	}

	key, _ := doc[APIKeyField].(string)
	key = strings.TrimSpace(key)
	if key == "" {
		return "", eris.Errorf("config: %s missing from %s", APIKeyField, path)
	}
	return key, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
