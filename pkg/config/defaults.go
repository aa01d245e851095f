package config

// Crawl defaults.
const (
	DefaultMainBranch = ""
	DefaultStartDate  = ""
	DefaultOutputDir  = "."
)

// Cache defaults.
const (
	DefaultCacheBackend = "sqlite"
	DefaultCachePath    = "cache.db"
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// Shared pathspec exclusions of the default metric set.
var (
	excludeDeps  = []string{":!:vendor/*", ":!:node_modules/*", ":!:test/*"}
	erbViews     = []string{"app/views/*.erb", "packages/**/app/views/*.erb"}
	components   = []string{"app/components/*.html.erb", "app/components/*.rb"}
	controllers  = []string{"*_controller.rb", ":!:vendor/*", ":!:test/*"}
	markupNodes  = `(%>)|</|/>`
	closingNodes = `</|/>`
)

func withDeps(paths ...string) []string {
	return append(paths, excludeDeps...)
}

// DefaultMetrics returns the metric set used when the config has no metrics
// section: markup, styling, front-end and Rails structure of a typical Rails
// application with a React front end.
func DefaultMetrics() []MetricConfig {
	return []MetricConfig{
		{Name: "css", Kind: "group", Paths: withDeps("*.css")},
		{Name: "scss", Kind: "group", Paths: withDeps("*.scss")},
		{Name: "erb", Kind: "group", Paths: erbViews},
		{Name: "erb_nodes", Kind: "group", Paths: erbViews, Pattern: markupNodes},
		{Name: "view_components", Kind: "group", Paths: components},
		{Name: "view_components_nodes", Kind: "group", Paths: components, Pattern: markupNodes},
		{Name: "pvc_buttons", Kind: "group", Paths: components, Pattern: `(Button.new|ButtonComponent.new)`},
		{Name: "prc_buttons", Kind: "group", Paths: withDeps("*.tsx", ":!:*test.tsx"), Pattern: `<Button`},
		{Name: "coffee", Kind: "group", Paths: withDeps("*.coffee")},
		{Name: "js", Kind: "group", Paths: withDeps("*.js", ":!:*test.js")},
		{Name: "ts", Kind: "group", Paths: withDeps("*.ts", ":!:*test.ts")},
		{Name: "tsx", Kind: "group", Paths: withDeps("*.tsx", ":!:*test.tsx")},
		{Name: "tsx_nodes", Kind: "group", Paths: withDeps("*.tsx", ":!:*test.tsx"), Pattern: closingNodes},
		{Name: "controllers", Kind: "group", Paths: controllers},
		{Name: "models", Kind: "group", Paths: []string{"app/models/*.rb", "packages/**/app/models/*.rb"}},
		{Name: "get_routes", Kind: "first", Paths: []string{"config/routes.rb"}, Pattern: `get `},
		{Name: "react_routes_per_controller", Kind: "group", Paths: controllers, Pattern: `render_react_app`},
		{Name: "unique_contributors", Kind: "contributors"},
	}
}

// defaultMetricsValue is DefaultMetrics in the generic shape a decoded YAML
// file has, so defaults and file values go through the same schema check.
func defaultMetricsValue() []any {
	defs := DefaultMetrics()
	out := make([]any, 0, len(defs))

	for _, def := range defs {
		entry := map[string]any{"name": def.Name, "kind": def.Kind}

		if len(def.Paths) > 0 {
			paths := make([]any, 0, len(def.Paths))
			for _, p := range def.Paths {
				paths = append(paths, p)
			}

			entry["paths"] = paths
		}

		if def.Pattern != "" {
			entry["pattern"] = def.Pattern
		}

		out = append(out, entry)
	}

	return out
}
