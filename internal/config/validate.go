package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is the dotted configuration key (e.g. "metrics.pushgateway_url").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks cfg statically. storeKinds lists the registered store
// providers. It does not touch the filesystem.
func Validate(cfg Config, storeKinds []string) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(cfg.InputRoot) == "" {
		add(SeverityError, "input_root", "input root must not be empty")
	}
	if strings.TrimSpace(cfg.OutputRoot) == "" {
		add(SeverityError, "output_root", "output root must not be empty")
	}
	if cfg.InputRoot != "" && filepath.Clean(cfg.InputRoot) == filepath.Clean(cfg.OutputRoot) {
		add(SeverityWarning, "output_root", "output root is the input root; stores will be written next to region inputs")
	}
	if cfg.Workers < 1 {
		add(SeverityError, "workers", "worker count must be at least 1, got %d", cfg.Workers)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add(SeverityWarning, "log.level", "unknown log level %q; info is used", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		add(SeverityWarning, "log.format", "unknown log format %q; console is used", cfg.Log.Format)
	}

	switch cfg.Input.Kind {
	case InputAuto, InputGeoJSON, InputShapefile:
	default:
		add(SeverityError, "input.kind", "input kind must be one of auto, geojson, shapefile; got %q", cfg.Input.Kind)
	}
	if cfg.Input.Kind != InputShapefile {
		if strings.TrimSpace(cfg.Input.Pattern) == "" {
			add(SeverityError, "input.pattern", "input pattern must not be empty")
		} else if _, err := filepath.Match(cfg.Input.Pattern, ""); err != nil {
			add(SeverityError, "input.pattern", "invalid glob %q: %v", cfg.Input.Pattern, err)
		}
	}

	if !contains(storeKinds, cfg.Store.Kind) {
		add(SeverityError, "store.kind", "no store provider %q; available: %s", cfg.Store.Kind, strings.Join(storeKinds, ", "))
	}
	if cfg.Store.DefaultSRID <= 0 {
		add(SeverityError, "store.default_srid", "default spatial reference must be positive, got %d", cfg.Store.DefaultSRID)
	}
	if strings.TrimSpace(cfg.Aggregate.Collection) == "" {
		add(SeverityError, "aggregate.collection", "aggregate collection name must not be empty")
	}

	switch cfg.Metrics.Backend {
	case "", MetricsNone:
	case MetricsPushgateway:
		if cfg.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "pushgateway backend requires a gateway URL")
		}
	case MetricsDatadog:
		if cfg.Metrics.DatadogAddr == "" {
			add(SeverityError, "metrics.datadog_addr", "datadog backend requires a DogStatsD address")
		}
	default:
		add(SeverityError, "metrics.backend", "metrics backend must be one of none, pushgateway, datadog; got %q", cfg.Metrics.Backend)
	}
	if cfg.Metrics.Backend != "" && cfg.Metrics.Backend != MetricsNone && strings.TrimSpace(cfg.Metrics.Job) == "" {
		add(SeverityError, "metrics.job", "metrics job must not be empty; it labels every metric")
	}

	pg := cfg.Publish.Postgres
	switch {
	case pg.DSN != "" && pg.Table == "":
		add(SeverityError, "publish.postgres.table", "postgres export requires a table")
	case pg.DSN == "" && pg.Table != "":
		add(SeverityWarning, "publish.postgres.dsn", "postgres table is set without a DSN; export is disabled")
	}
	return issues
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
