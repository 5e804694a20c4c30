package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"farmland/internal/feature"
)

// EnvPrefix prefixes every environment override, e.g. FARMLAND_LOG_LEVEL.
const EnvPrefix = "FARMLAND"

// EnvConfigFile names an explicit configuration file.
const EnvConfigFile = EnvPrefix + "_CONFIG"

var defaults = map[string]any{
	"input_root":                "",
	"output_root":               "",
	"workers":                   1,
	"log.level":                 "info",
	"log.format":                "console",
	"input.kind":                InputAuto,
	"input.pattern":             "*.json",
	"store.kind":                "sqlite",
	"store.default_srid":        feature.DefaultSRID,
	"aggregate.collection":      "Farmland",
	"aggregate.retain_unmerged": false,
	"metrics.backend":           MetricsNone,
	"metrics.pushgateway_url":   "",
	"metrics.datadog_addr":      "",
	"metrics.job":               "farmland",
	"publish.postgres.dsn":      "",
	"publish.postgres.table":    "",
}

// Load builds the configuration from defaults, the optional config file and
// the environment.
func Load() (Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("farmland")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
