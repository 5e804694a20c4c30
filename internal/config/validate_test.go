package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validConfig() Config {
	return Config{
		InputRoot:  "in",
		OutputRoot: "out",
		Workers:    4,
		Log:        Log{Level: "info", Format: "console"},
		Input:      Input{Kind: InputAuto, Pattern: "*.json"},
		Store:      Store{Kind: "sqlite", DefaultSRID: 4326},
		Aggregate:  Aggregate{Collection: "Farmland"},
		Metrics:    Metrics{Backend: MetricsNone, Job: "farmland"},
	}
}

var kinds = []string{"sqlite"}

func TestValidate_ValidConfig(t *testing.T) {
	if issues := Validate(validConfig(), kinds); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestValidate_Findings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		sev    IssueSeverity
		path   string
		substr string
	}{
		{"missing input root", func(c *Config) { c.InputRoot = "" }, SeverityError, "input_root", "must not be empty"},
		{"missing output root", func(c *Config) { c.OutputRoot = " " }, SeverityError, "output_root", "must not be empty"},
		{"same roots", func(c *Config) { c.OutputRoot = "in/" }, SeverityWarning, "output_root", "input root"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, SeverityError, "workers", "at least 1"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, SeverityWarning, "log.level", "unknown log level"},
		{"bad input kind", func(c *Config) { c.Input.Kind = "csv" }, SeverityError, "input.kind", "one of"},
		{"bad pattern", func(c *Config) { c.Input.Pattern = "[" }, SeverityError, "input.pattern", "invalid glob"},
		{"unknown store", func(c *Config) { c.Store.Kind = "gdb" }, SeverityError, "store.kind", "no store provider"},
		{"bad srid", func(c *Config) { c.Store.DefaultSRID = 0 }, SeverityError, "store.default_srid", "positive"},
		{"empty collection", func(c *Config) { c.Aggregate.Collection = "" }, SeverityError, "aggregate.collection", "must not be empty"},
		{"pushgateway without url", func(c *Config) { c.Metrics.Backend = MetricsPushgateway }, SeverityError, "metrics.pushgateway_url", "gateway URL"},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = MetricsDatadog }, SeverityError, "metrics.datadog_addr", "DogStatsD"},
		{"unknown metrics backend", func(c *Config) { c.Metrics.Backend = "graphite" }, SeverityError, "metrics.backend", "one of"},
		{"dsn without table", func(c *Config) { c.Publish.Postgres.DSN = "postgres://x" }, SeverityError, "publish.postgres.table", "requires a table"},
		{"table without dsn", func(c *Config) { c.Publish.Postgres.Table = "farmland" }, SeverityWarning, "publish.postgres.dsn", "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			issues := Validate(cfg, kinds)
			if !hasIssue(t, issues, tt.sev, tt.path, tt.substr) {
				t.Fatalf("expected %s at %s containing %q; got %+v", tt.sev, tt.path, tt.substr, issues)
			}
		})
	}
}

func TestValidate_ShapefileIgnoresPattern(t *testing.T) {
	cfg := validConfig()
	cfg.Input.Kind = InputShapefile
	cfg.Input.Pattern = ""
	if issues := Validate(cfg, kinds); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
}

func TestHasErrors(t *testing.T) {
	if HasErrors([]Issue{{Severity: SeverityWarning}}) {
		t.Fatal("warnings alone must not count as errors")
	}
	if !HasErrors([]Issue{{Severity: SeverityWarning}, {Severity: SeverityError}}) {
		t.Fatal("expected HasErrors to find the error")
	}
}

func TestIssueError(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "workers", Message: "bad"}
	if got := iss.Error(); got != "error at workers: bad" {
		t.Fatalf("Error() = %q", got)
	}
}
