package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codeshape/pkg/config"
	"github.com/Sumatoshi-tech/codeshape/pkg/metrics"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".codeshape.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Empty(t, cfg.Repository.MainBranch)
	assert.Equal(t, config.DefaultOutputDir, cfg.Crawl.OutputDir)
	assert.Equal(t, config.DefaultCacheBackend, cfg.Cache.Backend)
	assert.Equal(t, config.DefaultCachePath, cfg.Cache.Path)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.Len(t, cfg.Metrics, len(config.DefaultMetrics()))

	start, err := cfg.Start()
	require.NoError(t, err)
	assert.True(t, start.IsZero())
}

func TestDefaultMetrics_Compile(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 18)

	byName := make(map[string]metrics.Definition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}

	css := byName["css"]
	assert.Equal(t, metrics.KindGroup, css.Kind)
	assert.Equal(t, []string{"*.css"}, css.Group.Include)
	assert.Equal(t, []string{"vendor/*", "node_modules/*", "test/*"}, css.Group.Exclude)
	assert.Nil(t, css.Group.Pattern)

	routes := byName["get_routes"]
	assert.Equal(t, metrics.KindFirst, routes.Kind)
	require.NotNil(t, routes.Group.Pattern)
	assert.Equal(t, 2, routes.Group.Count([]byte("get '/a'\nget '/b'\npost '/c'\n")))

	nodes := byName["erb_nodes"]
	assert.Equal(t, 3, nodes.Group.Count([]byte("<div><%= x %></div><br/>")))

	assert.Equal(t, metrics.KindContributors, byName["unique_contributors"].Kind)
	assert.Equal(t, "css", defs[0].Name)
	assert.Equal(t, "unique_contributors", defs[len(defs)-1].Name)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `repository:
  path: ../app
  main_branch: trunk
crawl:
  start_date: "2024-11-19"
  output_dir: reports
cache:
  backend: json
  path: snapshots
logging:
  level: debug
  json: true
telemetry:
  otlp_endpoint: localhost:4317
  otlp_insecure: true
  otlp_headers: "api-key=secret"
metrics:
  - name: go
    kind: group
    paths: ["*.go", ":!:vendor/*"]
    languages: [Go]
    skip_vendored: true
  - name: todos
    kind: group
    paths: ["*.go"]
    pattern: "TODO"
  - name: authors
    kind: contributors
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "../app", cfg.Repository.Path)
	assert.Equal(t, "trunk", cfg.Repository.MainBranch)
	assert.Equal(t, "reports", cfg.Crawl.OutputDir)
	assert.Equal(t, "json", cfg.Cache.Backend)
	assert.True(t, cfg.Logging.JSON)

	start, err := cfg.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.November, 19, 0, 0, 0, 0, time.UTC), start)

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, []string{"*.go"}, defs[0].Group.Include)
	assert.Equal(t, []string{"vendor/*"}, defs[0].Group.Exclude)
	assert.Equal(t, []string{"Go"}, defs[0].Group.Languages)
	assert.True(t, defs[0].Group.SkipVendored)
	assert.Equal(t, 2, defs[1].Group.Count([]byte("// TODO a\n// TODO b\n")))
	assert.Equal(t, metrics.KindContributors, defs[2].Kind)

	telemetry, err := cfg.ObservabilityConfig()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, telemetry.LogLevel)
	assert.True(t, telemetry.LogJSON)
	assert.Equal(t, "localhost:4317", telemetry.OTLPEndpoint)
	assert.True(t, telemetry.OTLPInsecure)
	assert.Equal(t, map[string]string{"api-key": "secret"}, telemetry.OTLPHeaders)
}

func TestLoadConfig_SchemaViolations(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown kind": `metrics:
  - name: x
    kind: words
    paths: ["*.go"]
`,
		"group without paths": `metrics:
  - name: x
    kind: group
`,
		"unknown field": `metrics:
  - name: x
    kind: contributors
    regex: "a"
`,
		"missing name": `metrics:
  - kind: contributors
`,
		"comma in name": `metrics:
  - name: "a,b"
    kind: contributors
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, content))
			require.ErrorIs(t, err, config.ErrInvalidMetrics)
		})
	}
}

func TestLoadConfig_RejectsDuplicateMetricNames(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, `metrics:
  - name: a
    kind: contributors
  - name: a
    kind: contributors
`))
	require.ErrorIs(t, err, config.ErrInvalidMetrics)
	require.ErrorIs(t, err, metrics.ErrDuplicateName)
}

func TestLoadConfig_RejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, `metrics:
  - name: a
    kind: group
    paths: ["*.rb"]
    pattern: "("
`))
	require.ErrorIs(t, err, config.ErrInvalidPattern)
}

func TestLoadConfig_RejectsBadSettings(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "cache:\n  backend: redis\n"))
	require.ErrorIs(t, err, config.ErrInvalidBackend)

	_, err = config.LoadConfig(writeConfig(t, "crawl:\n  start_date: 2024-13-01x\n"))
	require.ErrorIs(t, err, config.ErrInvalidStartDate)

	_, err = config.LoadConfig(writeConfig(t, "cache:\n  path: \"\"\n"))
	require.ErrorIs(t, err, config.ErrEmptyCachePath)

	_, err = config.LoadConfig(writeConfig(t, "logging:\n  level: loud\n"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(writeConfig(t, "cache: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("CODESHAPE_CACHE_BACKEND", "json")
	t.Setenv("CODESHAPE_CRAWL_OUTPUT_DIR", "/tmp/out")

	cfg, err := config.LoadConfig(writeConfig(t, "cache:\n  backend: sqlite\n"))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Cache.Backend)
	assert.Equal(t, "/tmp/out", cfg.Crawl.OutputDir)
}
