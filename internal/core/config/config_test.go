package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("DefaultConfig() should validate clean: %v", err)
	}
	if cfg.TruncateMaxLength != 100 {
		t.Errorf("TruncateMaxLength = %d, want 100", cfg.TruncateMaxLength)
	}
	if cfg.QueueBackoffDelay != 2*time.Second {
		t.Errorf("QueueBackoffDelay = %v, want 2s", cfg.QueueBackoffDelay)
	}
}

func TestValidate_RejectsNonPositiveBounds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.TruncateMaxLength = 0 },
		func(c *Config) { c.MaxRawSamples = -1 },
		func(c *Config) { c.MaxExamplesPerSchema = 0 },
		func(c *Config) { c.QueueConcurrency = 0 },
		func(c *Config) { c.QueueMaxAttempts = 0 },
		func(c *Config) { c.QueueBackoffDelay = 0 },
		func(c *Config) { c.DataDir = "" },
		func(c *Config) { c.DBURL = "" },
		func(c *Config) { c.LogFormat = "xml" },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := validate(cfg); err == nil {
			t.Errorf("case %d: validate() = nil, want error", i)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	want := DefaultConfig()
	if cfg.TruncateMaxLength != want.TruncateMaxLength {
		t.Errorf("TruncateMaxLength = %d, want %d", cfg.TruncateMaxLength, want.TruncateMaxLength)
	}
	if cfg.QueueMaxAttempts != want.QueueMaxAttempts {
		t.Errorf("QueueMaxAttempts = %d, want %d", cfg.QueueMaxAttempts, want.QueueMaxAttempts)
	}
	if cfg.DBURL != want.DBURL {
		t.Errorf("DBURL = %q, want %q", cfg.DBURL, want.DBURL)
	}
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)
	os.Setenv("SF_QUEUE_MAX_ATTEMPTS", "7")
	os.Setenv("SF_DATA_DIR", "/tmp/sf-data")
	defer os.Unsetenv("SF_QUEUE_MAX_ATTEMPTS")
	defer os.Unsetenv("SF_DATA_DIR")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.QueueMaxAttempts != 7 {
		t.Errorf("QueueMaxAttempts = %d, want 7", cfg.QueueMaxAttempts)
	}
	if cfg.DataDir != "/tmp/sf-data" {
		t.Errorf("DataDir = %q, want /tmp/sf-data", cfg.DataDir)
	}
}

func TestLoadConfig_InvalidValueRejected(t *testing.T) {
	clearEnv(t)
	os.Setenv("SF_QUEUE_CONCURRENCY", "-3")
	defer os.Unsetenv("SF_QUEUE_CONCURRENCY")

	if _, err := LoadConfig(""); err == nil {
		t.Error("LoadConfig() = nil error, want rejection of negative queue_concurrency")
	}
}

func TestLoadConfig_ConfigFileOverriddenByEnvironment(t *testing.T) {
	clearEnv(t)
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())
	if _, err := tmpfile.WriteString("queue_max_attempts: 9\n"); err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()

	os.Setenv("SF_QUEUE_MAX_ATTEMPTS", "4")
	defer os.Unsetenv("SF_QUEUE_MAX_ATTEMPTS")

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.QueueMaxAttempts != 4 {
		t.Errorf("QueueMaxAttempts = %d, want 4 (environment overrides config file)", cfg.QueueMaxAttempts)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	for _, key := range []string{
		"SF_TRUNCATE_MAX_LENGTH", "SF_MAX_RAW_SAMPLES", "SF_MAX_EXAMPLES_PER_SCHEMA",
		"SF_QUEUE_CONCURRENCY", "SF_QUEUE_MAX_ATTEMPTS", "SF_QUEUE_BACKOFF_DELAY_MS",
		"SF_DATA_DIR", "SF_DB_URL", "SF_LOG_LEVEL", "SF_LOG_FORMAT",
	} {
		os.Unsetenv(key)
	}
}
