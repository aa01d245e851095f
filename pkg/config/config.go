// Package config provides YAML-based configuration for codeshape.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/codeshape/pkg/calendar"
	"github.com/Sumatoshi-tech/codeshape/pkg/metrics"
	"github.com/Sumatoshi-tech/codeshape/pkg/observability"
	"github.com/Sumatoshi-tech/codeshape/pkg/snapcache"
	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// Sentinel validation errors.
var (
	ErrInvalidBackend   = errors.New("unknown cache backend")
	ErrInvalidStartDate = errors.New("invalid crawl start date")
	ErrInvalidMetrics   = errors.New("invalid metrics section")
	ErrInvalidPattern   = errors.New("invalid metric pattern")
	ErrEmptyCachePath   = errors.New("cache path must not be empty")
)

// Config holds all codeshape configuration.
type Config struct {
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository"`
	Crawl      CrawlConfig      `mapstructure:"crawl"      yaml:"crawl"`
	Cache      CacheConfig      `mapstructure:"cache"      yaml:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"  yaml:"telemetry"`
	Metrics    []MetricConfig   `mapstructure:"metrics"    yaml:"metrics"`
}

// RepositoryConfig selects the crawled repository.
type RepositoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`

	// MainBranch names the main line. Empty tries main, then master.
	MainBranch string `mapstructure:"main_branch" yaml:"main_branch"`
}

// CrawlConfig holds crawl loop settings.
type CrawlConfig struct {
	// StartDate (YYYY-MM-DD) overrides the discovered initial date.
	StartDate string `mapstructure:"start_date" yaml:"start_date"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// CacheConfig selects the snapshot cache.
type CacheConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json"  yaml:"json"`
}

// TelemetryConfig holds OTLP export settings. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	OTLPHeaders  string `mapstructure:"otlp_headers"  yaml:"otlp_headers"`
}

// MetricConfig declares one row column source.
type MetricConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Paths are git-style pathspec arguments; ":!x" entries exclude.
	Paths        []string `mapstructure:"paths"         yaml:"paths,omitempty"`
	Pattern      string   `mapstructure:"pattern"       yaml:"pattern,omitempty"`
	Languages    []string `mapstructure:"languages"     yaml:"languages,omitempty"`
	SkipVendored bool     `mapstructure:"skip_vendored" yaml:"skip_vendored,omitempty"`
}

// Validate checks settings that can be checked without the repository.
func (c *Config) Validate() error {
	if !slices.Contains(snapcache.Backends(), c.Cache.Backend) {
		return fmt.Errorf("%w: %q (want one of %s)",
			ErrInvalidBackend, c.Cache.Backend, strings.Join(snapcache.Backends(), ", "))
	}

	if c.Cache.Path == "" {
		return ErrEmptyCachePath
	}

	_, err := c.Start()
	if err != nil {
		return err
	}

	_, err = observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}

	_, err = c.Definitions()

	return err
}

// Start returns the configured start date, or the zero time when unset.
func (c *Config) Start() (time.Time, error) {
	if c.Crawl.StartDate == "" {
		return time.Time{}, nil
	}

	start, err := calendar.Parse(c.Crawl.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidStartDate, err)
	}

	return start, nil
}

// Definitions compiles the metrics section into row definitions.
func (c *Config) Definitions() ([]metrics.Definition, error) {
	defs := make([]metrics.Definition, 0, len(c.Metrics))

	for _, mc := range c.Metrics {
		def := metrics.Definition{Name: mc.Name, Kind: metrics.Kind(mc.Kind)}

		if def.Kind != metrics.KindContributors {
			spec := vcs.ParsePathspec(mc.Paths...)

			def.Group = metrics.FileGroup{
				Name:         mc.Name,
				Include:      spec.Include,
				Exclude:      spec.Exclude,
				Languages:    mc.Languages,
				SkipVendored: mc.SkipVendored,
			}

			if mc.Pattern != "" {
				re, err := regexp.Compile(mc.Pattern)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPattern, mc.Name, err)
				}

				def.Group.Pattern = re
			}
		}

		defs = append(defs, def)
	}

	err := metrics.Validate(defs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetrics, err)
	}

	return defs, nil
}

// ObservabilityConfig converts the logging and telemetry sections for observability.Init.
func (c *Config) ObservabilityConfig() (observability.Config, error) {
	cfg := observability.DefaultConfig()

	level, err := observability.ParseLevel(c.Logging.Level)
	if err != nil {
		return cfg, err
	}

	cfg.LogLevel = level
	cfg.LogJSON = c.Logging.JSON
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)

	return cfg, nil
}
