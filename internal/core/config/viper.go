package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using a fresh viper instance:
// SF_-prefixed environment variables take precedence over the config
// file, which takes precedence over defaults. CLI flags are not read here;
// callers apply flag overrides to the returned Config.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	return loadConfigWithViper(v, configPath)
}

func loadConfigWithViper(v *viper.Viper, configPath string) (*Config, error) {
	defaults := DefaultConfig()
	v.SetDefault("truncate_max_length", defaults.TruncateMaxLength)
	v.SetDefault("truncate_fields", defaults.TruncateFields)
	v.SetDefault("max_raw_samples", defaults.MaxRawSamples)
	v.SetDefault("max_examples_per_schema", defaults.MaxExamplesPerSchema)
	v.SetDefault("queue_concurrency", defaults.QueueConcurrency)
	v.SetDefault("queue_max_attempts", defaults.QueueMaxAttempts)
	v.SetDefault("queue_backoff_delay_ms", defaults.QueueBackoffDelay.Milliseconds())
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("db_url", defaults.DBURL)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)

	v.SetEnvPrefix("SF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		TruncateMaxLength:    v.GetInt("truncate_max_length"),
		TruncateFields:       v.GetStringSlice("truncate_fields"),
		MaxRawSamples:        v.GetInt("max_raw_samples"),
		MaxExamplesPerSchema: v.GetInt("max_examples_per_schema"),
		QueueConcurrency:     v.GetInt("queue_concurrency"),
		QueueMaxAttempts:     v.GetInt("queue_max_attempts"),
		QueueBackoffDelay:    time.Duration(v.GetInt64("queue_backoff_delay_ms")) * time.Millisecond,
		DataDir:              v.GetString("data_dir"),
		DBURL:                v.GetString("db_url"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
