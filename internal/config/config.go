// Package config loads runtime configuration from config.yaml and the
// environment. Environment variables win over the file, the file wins over
// defaults. Every key maps to MARKETSCOPE_<SECTION>_<KEY>, e.g.
// MARKETSCOPE_STORE_DATABASE_URL.
package config

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the root configuration shared by all subcommands.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Census     CensusConfig     `yaml:"census" mapstructure:"census"`
	BEA        BEAConfig        `yaml:"bea" mapstructure:"bea"`
	Crosswalk  CrosswalkConfig  `yaml:"crosswalk" mapstructure:"crosswalk"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Analyze    AnalyzeConfig    `yaml:"analyze" mapstructure:"analyze"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Path is the sqlite database file, ignored for postgres.
	Path string `yaml:"path" mapstructure:"path"`
}

// CensusConfig covers the Census Bureau data API (ACS tables).
type CensusConfig struct {
	// Key is optional below ~500 requests/day but recommended.
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Dataset string `yaml:"dataset" mapstructure:"dataset"`
	Year    int    `yaml:"year" mapstructure:"year"`
}

// BEAConfig covers the Bureau of Economic Analysis API. The API rejects
// requests without a registered UserID, so Key is required for sync.
type BEAConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CrosswalkConfig locates the Census CBSA delineation file.
type CrosswalkConfig struct {
	// URL is the published delineation workbook (list1).
	URL string `yaml:"url" mapstructure:"url"`
	// File overrides URL with a local xlsx or csv path.
	File string `yaml:"file" mapstructure:"file"`
	Year int    `yaml:"year" mapstructure:"year"`
}

// SyncConfig tunes the source sync engine.
type SyncConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	DataDir     string `yaml:"data_dir" mapstructure:"data_dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// AnalyzeConfig tunes the aggregation and scoring pipeline.
type AnalyzeConfig struct {
	// PolicyFile overrides the built-in rollup policy when set.
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
	// WeightsFile overrides the built-in opportunity weights when set.
	WeightsFile      string `yaml:"weights_file" mapstructure:"weights_file"`
	GDPSpanYears     int    `yaml:"gdp_span_years" mapstructure:"gdp_span_years"`
	GroupConcurrency int    `yaml:"group_concurrency" mapstructure:"group_concurrency"`
	TopN             int    `yaml:"top_n" mapstructure:"top_n"`
	// Strict fails aggregation on counties missing from the crosswalk
	// instead of skipping them.
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// ServerConfig covers the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig tunes the health checker that serve runs in the
// background, and the thresholds the status command reports against.
type MonitoringConfig struct {
	// WebhookURL receives triggered alerts as JSON POSTs. Empty means
	// alerts are logged but not delivered anywhere.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// FailureRateThreshold is the analysis-run failure fraction (0..1)
	// above which an alert fires.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// StaleAfterHours alerts when the newest completed run is older than
	// this many hours. Zero disables the staleness check.
	StaleAfterHours     int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	LookbackWindowHours int `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs   int `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig controls zap initialization.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml from the working directory if present, applies
// environment overrides, and returns the merged configuration.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.marketscope")

	v.SetEnvPrefix("MARKETSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.path", "marketscope.db")

	v.SetDefault("census.key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.dataset", "acs/acs5")
	v.SetDefault("census.year", 2023)

	v.SetDefault("bea.key", "")
	v.SetDefault("bea.base_url", "https://apps.bea.gov/api/data")

	v.SetDefault("crosswalk.url", "https://www2.census.gov/programs-surveys/metro-micro/geographies/reference-files/2023/delineation-files/list1_2023.xlsx")
	v.SetDefault("crosswalk.file", "")
	v.SetDefault("crosswalk.year", 2023)

	v.SetDefault("sync.temp_dir", "")
	v.SetDefault("sync.data_dir", "data")
	v.SetDefault("sync.concurrency", 2)

	v.SetDefault("analyze.policy_file", "")
	v.SetDefault("analyze.weights_file", "")
	v.SetDefault("analyze.gdp_span_years", 5)
	v.SetDefault("analyze.group_concurrency", 3)
	v.SetDefault("analyze.top_n", 15)
	v.SetDefault("analyze.strict", false)

	v.SetDefault("server.port", 8080)

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_hours", 0)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Validate checks the fields a given mode actually uses. Modes are
// "crosswalk", "sync", "analyze", and "serve".
func (c *Config) Validate(mode string) error {
	var errs *multierror.Error

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = multierror.Append(errs, eris.New("store.database_url is required for driver postgres"))
			}
		case "sqlite":
			if c.Store.Path == "" {
				errs = multierror.Append(errs, eris.New("store.path is required for driver sqlite"))
			}
		default:
			errs = multierror.Append(errs, eris.Errorf("store.driver %q is not supported (postgres, sqlite)", c.Store.Driver))
		}
	}

	switch mode {
	case "crosswalk":
		requireStore()
		if c.Crosswalk.URL == "" && c.Crosswalk.File == "" {
			errs = multierror.Append(errs, eris.New("crosswalk.url or crosswalk.file is required"))
		}
	case "sync":
		requireStore()
		if c.BEA.Key == "" {
			errs = multierror.Append(errs, eris.New("bea.key is required for sync"))
		}
		if c.Census.Year < 2010 {
			errs = multierror.Append(errs, eris.Errorf("census.year %d is before ACS 5-year coverage", c.Census.Year))
		}
		if c.Sync.Concurrency < 1 {
			errs = multierror.Append(errs, eris.New("sync.concurrency must be >= 1"))
		}
	case "analyze":
		requireStore()
		if c.Analyze.GDPSpanYears < 1 {
			errs = multierror.Append(errs, eris.New("analyze.gdp_span_years must be >= 1"))
		}
		if c.Analyze.TopN < 1 {
			errs = multierror.Append(errs, eris.New("analyze.top_n must be >= 1"))
		}
		if c.Analyze.GroupConcurrency < 1 {
			errs = multierror.Append(errs, eris.New("analyze.group_concurrency must be >= 1"))
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = multierror.Append(errs, eris.New("server.port must be between 1 and 65535"))
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = multierror.Append(errs, eris.New("monitoring.failure_rate_threshold must be between 0 and 1"))
		}
		if c.Monitoring.LookbackWindowHours < 1 {
			errs = multierror.Append(errs, eris.New("monitoring.lookback_window_hours must be >= 1"))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	return errs.ErrorOrNil()
}

// InitLogger builds the global zap logger from the log section and installs
// it via zap.ReplaceGlobals.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, eris.Wrapf(err, "config: parse log level %q", cfg.Log.Level)
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
