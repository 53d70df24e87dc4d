// Package config loads cask settings from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-cask/pkg/cache"
	"github.com/dd0wney/cluso-cask/pkg/cask"
	"github.com/dd0wney/cluso-cask/pkg/catalog"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/metrics"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// Environment variables read by ApplyEnv.
const (
	EnvDataDir  = "CASK_DATA_DIR"
	EnvBucket   = "CASK_BUCKET"
	EnvLogLevel = "LOG_LEVEL"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("bucketname", func(fl validator.FieldLevel) bool {
		return catalog.ValidName(fl.Field().String()) == nil
	})
}

// Config is the on-disk configuration of a cask deployment.
type Config struct {
	DataDir             string `yaml:"data_dir" validate:"required"`
	DefaultBucket       string `yaml:"default_bucket" validate:"required,bucketname"`
	MaxSegmentSize      int64  `yaml:"max_segment_size" validate:"gte=64,lte=4294967295"`
	CacheCapacity       int    `yaml:"cache_capacity" validate:"gte=0"`
	Compression         string `yaml:"compression" validate:"oneof=none snappy"`
	MmapSealed          bool   `yaml:"mmap_sealed"`
	SyncWrites          bool   `yaml:"sync_writes"`
	ReplayOnMissingHint bool   `yaml:"replay_on_missing_hint"`
	LogLevel            string `yaml:"log_level" validate:"oneof=debug info warn warning error"`

	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig selects the S3 destination of backups.
type BackupConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region" validate:"required_with=Bucket"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	Concurrency     int    `yaml:"concurrency" validate:"gte=1,lte=64"`
}

// Enabled reports whether a backup destination is configured.
func (b BackupConfig) Enabled() bool { return b.Bucket != "" }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:             "./data",
		DefaultBucket:       "default",
		MaxSegmentSize:      record.DefaultMaxSegmentSize,
		CacheCapacity:       cache.DefaultCapacity,
		Compression:         "none",
		ReplayOnMissingHint: true,
		LogLevel:            "info",
		Backup: BackupConfig{
			Prefix:      "cask",
			Concurrency: 4,
		},
	}
}

// Load reads path over the defaults. Fields missing from the file keep
// their default values. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, status.FromOS("config_load", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, status.New(status.InvalidArgument).Op("config_load").
			Msg("parse %s", path).Cause(err).Err()
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvBucket); v != "" {
		c.DefaultBucket = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
}

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return status.New(status.InvalidArgument).Op("config_validate").
			Msg("%s", formatValidationError(err)).Err()
	}
	return nil
}

func formatValidationError(err error) string {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: field is required", field))
		case "required_with":
			msgs = append(msgs, fmt.Sprintf("%s: required when %s is set", field, e.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s: must be at least %s", field, e.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s: must not exceed %s", field, e.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s]", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: validation failed (%s)", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Level returns the configured log level.
func (c Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// CaskOptions converts the configuration to bucket options.
func (c Config) CaskOptions(logger logging.Logger, reg *metrics.Registry) cask.Options {
	opts := cask.DefaultOptions()
	opts.MaxSegmentSize = c.MaxSegmentSize
	opts.CacheCapacity = c.CacheCapacity
	if codec, ok := record.ParseCodec(c.Compression); ok {
		opts.Compression = codec
	}
	opts.MmapSealed = c.MmapSealed
	opts.SyncWrites = c.SyncWrites
	opts.ReplayOnMissingHint = c.ReplayOnMissingHint
	opts.Logger = logging.OrNop(logger)
	opts.Metrics = reg
	return opts
}
