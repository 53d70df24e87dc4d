package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/metrics"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, logging.InfoLevel, cfg.Level())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /var/lib/cask
default_bucket: users
compression: snappy
cache_capacity: 64
backup:
  bucket: cask-backups
  region: eu-west-1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/cask", cfg.DataDir)
	assert.Equal(t, "users", cfg.DefaultBucket)
	assert.Equal(t, 64, cfg.CacheCapacity)
	assert.True(t, cfg.ReplayOnMissingHint, "unset fields keep defaults")
	assert.Equal(t, int64(record.DefaultMaxSegmentSize), cfg.MaxSegmentSize)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 4, cfg.Backup.Concurrency)
	assert.Equal(t, "cask", cfg.Backup.Prefix)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, status.IsNotFound(err))

	_, err = Load(writeConfig(t, "data_dir: [unterminated"))
	assert.Equal(t, status.InvalidArgument, status.KindOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "DataDir"},
		{"bad bucket name", func(c *Config) { c.DefaultBucket = "a/b" }, "DefaultBucket"},
		{"tiny segments", func(c *Config) { c.MaxSegmentSize = 10 }, "MaxSegmentSize"},
		{"huge segments", func(c *Config) { c.MaxSegmentSize = 1 << 33 }, "MaxSegmentSize"},
		{"negative cache", func(c *Config) { c.CacheCapacity = -1 }, "CacheCapacity"},
		{"unknown codec", func(c *Config) { c.Compression = "zstd" }, "Compression"},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
		{"backup without region", func(c *Config) { c.Backup.Bucket = "b" }, "Region"},
		{"half credentials", func(c *Config) { c.Backup.AccessKeyID = "id" }, "SecretAccessKey"},
		{"bad endpoint", func(c *Config) { c.Backup.Endpoint = "not a url" }, "Endpoint"},
		{"zero concurrency", func(c *Config) { c.Backup.Concurrency = 0 }, "Concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, status.InvalidArgument, status.KindOf(err))
			assert.True(t, strings.Contains(err.Error(), tt.field), "error %q should name %s", err, tt.field)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/cask-env")
	t.Setenv(EnvBucket, "env-bucket")
	t.Setenv(EnvLogLevel, " DEBUG ")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "/tmp/cask-env", cfg.DataDir)
	assert.Equal(t, "env-bucket", cfg.DefaultBucket)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, logging.DebugLevel, cfg.Level())
	require.NoError(t, cfg.Validate())
}

func TestCaskOptions(t *testing.T) {
	cfg := Default()
	cfg.Compression = "snappy"
	cfg.MaxSegmentSize = 4096
	cfg.CacheCapacity = 0
	cfg.ReplayOnMissingHint = false
	reg := metrics.NewRegistry()

	opts := cfg.CaskOptions(nil, reg)
	assert.Equal(t, record.CodecSnappy, opts.Compression)
	assert.Equal(t, int64(4096), opts.MaxSegmentSize)
	assert.Zero(t, opts.CacheCapacity)
	assert.False(t, opts.ReplayOnMissingHint)
	assert.Same(t, reg, opts.Metrics)
	assert.NotNil(t, opts.Logger)
	require.NoError(t, opts.Validate())
}
