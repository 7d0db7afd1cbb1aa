package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/accesslens/internal/detect"
	"github.com/tinytelemetry/accesslens/internal/engine"
	"github.com/tinytelemetry/accesslens/internal/ingest"
	"github.com/tinytelemetry/accesslens/internal/model"
)

const (
	defaultInputFormat    = ingest.ProcessorModeJSON
	defaultWindow         = "all"
	defaultAnchor         = string(engine.AnchorWall)
	defaultFormat         = formatText
	defaultLogLevel       = "warn"
	defaultGeoConcurrency = model.DefaultGeoResolveConcurrent
	defaultGeoCacheTTL    = time.Hour
	defaultGeoCacheSize   = 4096
	defaultQueryTimeout   = 30 * time.Second
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Input           string            `mapstructure:"input"`
	InputFormat     string            `mapstructure:"input-format" validate:"oneof=json ndjson"`
	Window          string            `mapstructure:"window"`
	WindowAnchor    string            `mapstructure:"window-anchor" validate:"oneof=wall latest"`
	Timezone        string            `mapstructure:"timezone"`
	TopPathsLimit   int               `mapstructure:"top-paths-limit" validate:"gte=1"`
	Format          string            `mapstructure:"format" validate:"oneof=text json yaml"`
	LogLevel        string            `mapstructure:"log-level" validate:"oneof=trace debug info warn error disabled"`
	LogFile         string            `mapstructure:"log-file"`
	GeoCache        string            `mapstructure:"geo-cache"`
	GeoConcurrency  int               `mapstructure:"geo-concurrency" validate:"gte=1"`
	GeoCacheTTL     time.Duration     `mapstructure:"geo-cache-ttl" validate:"gte=0"`
	MetricsTextfile string            `mapstructure:"metrics-textfile"`
	DBPath          string            `mapstructure:"db-path"`
	QueryTimeout    time.Duration     `mapstructure:"query-timeout" validate:"gt=0"`
	Rules           detect.Thresholds `mapstructure:"rules"`
	ConfigPath      string            `mapstructure:"-"` // not from config file
	FlaggedOnly     bool              `mapstructure:"-"` // command-line only
}

func loadConfig(configPath string, overrides map[string]string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ACCESSLENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	th := detect.DefaultThresholds()
	v.SetDefault("input", "")
	v.SetDefault("input-format", defaultInputFormat)
	v.SetDefault("window", defaultWindow)
	v.SetDefault("window-anchor", defaultAnchor)
	v.SetDefault("timezone", "")
	v.SetDefault("top-paths-limit", model.DefaultTopPathsLimit)
	v.SetDefault("format", defaultFormat)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", "")
	v.SetDefault("geo-cache", "")
	v.SetDefault("geo-concurrency", defaultGeoConcurrency)
	v.SetDefault("geo-cache-ttl", defaultGeoCacheTTL)
	v.SetDefault("metrics-textfile", "")
	v.SetDefault("db-path", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("rules.error-storm-threshold", th.ErrorStorm)
	v.SetDefault("rules.burst-threshold", th.Burst)
	v.SetDefault("rules.bot-min-matches", th.BotMinMatches)
	v.SetDefault("rules.crawl-min-records", th.CrawlMinRecords)
	v.SetDefault("rules.crawl-min-pairs", th.CrawlMinPairs)
	v.SetDefault("rules.crawl-max-step", th.CrawlMaxStep)
	v.SetDefault("rules.not-found-threshold", th.NotFoundThreshold)
	v.SetDefault("rules.sensitive-min-matches", th.SensitiveMinMatches)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "accesslens", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.InputFormat = strings.ToLower(strings.TrimSpace(cfg.InputFormat))
	cfg.WindowAnchor = strings.ToLower(strings.TrimSpace(cfg.WindowAnchor))
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}

	// Expand ~ in paths
	for _, p := range []*string{&cfg.Input, &cfg.LogFile, &cfg.GeoCache, &cfg.MetricsTextfile, &cfg.DBPath} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}

	return cfg, nil
}

// validateConfig checks struct constraints and the values that need parsing.
func validateConfig(cfg appConfig) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := model.ParseWindow(cfg.Window); err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	return nil
}

// loadLocation resolves a timezone name; empty means the local zone.
func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
