package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

const (
	fileStem  = ".codeshape" // searched as .codeshape.yaml in CWD, then $HOME
	envPrefix = "CODESHAPE"  // CODESHAPE_CACHE_BACKEND overrides cache.backend
)

//go:embed metrics.schema.json
var metricsSchema []byte

// LoadConfig layers defaults, the config file and CODESHAPE_* variables.
// With an empty path the file is optional; an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()

	for key, value := range defaultSettings() {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		v.SetConfigFile(path)
	default:
		v.SetConfigName(fileStem)
		v.AddConfigPath(".")

		if home, homeErr := os.UserHomeDir(); homeErr == nil {
			v.AddConfigPath(home)
		}
	}

	var notFound viper.ConfigFileNotFoundError

	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return v, nil
}

// decode checks the raw metrics list against the embedded JSON schema before
// mapstructure sees it, so typos in metric fields are reported by name.
func decode(v *viper.Viper) (*Config, error) {
	if err := checkMetricsSchema(v.Get("metrics")); err != nil {
		return nil, err
	}

	cfg := new(Config)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func checkMetricsSchema(raw any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(metricsSchema),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetrics, err)
	}

	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidMetrics, strings.Join(problems, "; "))
}

func defaultSettings() map[string]any {
	return map[string]any{
		"repository.path":         "",
		"repository.main_branch":  DefaultMainBranch,
		"crawl.start_date":        DefaultStartDate,
		"crawl.output_dir":        DefaultOutputDir,
		"cache.backend":           DefaultCacheBackend,
		"cache.path":              DefaultCachePath,
		"logging.level":           DefaultLogLevel,
		"logging.json":            DefaultLogJSON,
		"telemetry.otlp_endpoint": "",
		"telemetry.otlp_insecure": false,
		"telemetry.otlp_headers":  "",
		"metrics":                 defaultMetricsValue(),
	}
}
