// Package config defines the runtime configuration of a farmland run and
// loads it with viper: built-in defaults, then an optional farmland.yaml
// (in ".", "./configs", or the file named by FARMLAND_CONFIG), then
// FARMLAND_* environment variables. The three positional CLI arguments are
// applied on top by cmd/farmland.
//
// Example farmland.yaml:
//
//	log:
//	  level: debug
//	  format: json
//	input:
//	  kind: geojson
//	  pattern: "*.json"
//	aggregate:
//	  retain_unmerged: true
//	metrics:
//	  backend: pushgateway
//	  pushgateway_url: http://pushgateway:9091
package config

// Config is the full runtime configuration.
type Config struct {
	// InputRoot holds one entry (file or folder) per region.
	InputRoot string `mapstructure:"input_root"`
	// OutputRoot receives the per-region stores and the aggregate store.
	OutputRoot string `mapstructure:"output_root"`
	// Workers is the desired number of parallel region conversions.
	Workers int `mapstructure:"workers"`

	Log       Log       `mapstructure:"log"`
	Input     Input     `mapstructure:"input"`
	Store     Store     `mapstructure:"store"`
	Aggregate Aggregate `mapstructure:"aggregate"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Publish   Publish   `mapstructure:"publish"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// Input kinds.
const (
	InputAuto      = "auto"
	InputGeoJSON   = "geojson"
	InputShapefile = "shapefile"
)

// Input selects how regions are discovered under InputRoot.
type Input struct {
	// Kind is auto, geojson (one document file per region) or shapefile (one
	// folder per region). auto picks files matching Pattern and folders.
	Kind string `mapstructure:"kind"`
	// Pattern is the file-name glob for document regions.
	Pattern string `mapstructure:"pattern"`
}

// Store selects the feature store provider.
type Store struct {
	Kind string `mapstructure:"kind"`
	// DefaultSRID is used for regions whose geometry carries no CRS.
	DefaultSRID int `mapstructure:"default_srid"`
}

// Aggregate configures the merge step.
type Aggregate struct {
	// Collection is the merged collection name.
	Collection string `mapstructure:"collection"`
	// RetainUnmerged keeps per-region stores whose merge failed instead of
	// deleting them with the rest.
	RetainUnmerged bool `mapstructure:"retain_unmerged"`
}

// Metrics backends.
const (
	MetricsNone        = "none"
	MetricsPushgateway = "pushgateway"
	MetricsDatadog     = "datadog"
)

// Metrics selects and configures the metrics backend.
type Metrics struct {
	Backend        string `mapstructure:"backend"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	DatadogAddr    string `mapstructure:"datadog_addr"`
	// Job labels every metric and is the Pushgateway grouping key.
	Job string `mapstructure:"job"`
}

// Publish configures optional export of the aggregate collection.
type Publish struct {
	Postgres PostgresPublish `mapstructure:"postgres"`
}

// PostgresPublish exports the merged collection into a PostgreSQL table when
// DSN and Table are both set.
type PostgresPublish struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// Enabled reports whether the export is configured.
func (p PostgresPublish) Enabled() bool { return p.DSN != "" && p.Table != "" }
