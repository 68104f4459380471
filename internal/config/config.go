// Package config loads the viper-backed application configuration and
// initializes the global zap logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Tracks   TracksConfig   `yaml:"tracks" mapstructure:"tracks"`
	Export   ExportConfig   `yaml:"export" mapstructure:"export"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures where a run reads from and how wide it fans out.
type PipelineConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	InputDir    string `yaml:"input_dir" mapstructure:"input_dir"`
	TrackDir    string `yaml:"track_dir" mapstructure:"track_dir"`
	OutputDir   string `yaml:"output_dir" mapstructure:"output_dir"`
}

// TrackConfig selects how one annotation track is produced.
type TrackConfig struct {
	Skip   bool   `yaml:"skip" mapstructure:"skip"`
	Source string `yaml:"source" mapstructure:"source"`
}

// TracksConfig configures the three annotation tracks.
type TracksConfig struct {
	Engineered TrackConfig `yaml:"engineered" mapstructure:"engineered"`
	Natural    TrackConfig `yaml:"natural" mapstructure:"natural"`
	QC         TrackConfig `yaml:"qc" mapstructure:"qc"`
}

// Track sources.
const (
	SourceFile     = "file"
	SourceFeatures = "features"
	SourceNative   = "native"
)

// ExportConfig configures the golden table destination.
type ExportConfig struct {
	Format    string   `yaml:"format" mapstructure:"format"`
	Sink      string   `yaml:"sink" mapstructure:"sink"`
	TableName string   `yaml:"table_name" mapstructure:"table_name"`
	S3        S3Config `yaml:"s3" mapstructure:"s3"`
}

// Export sinks.
const (
	SinkFS    = "fs"
	SinkS3    = "s3"
	SinkStore = "store"
)

// S3Config configures the object storage sink.
type S3Config struct {
	Bucket           string `yaml:"bucket" mapstructure:"bucket"`
	Region           string `yaml:"region" mapstructure:"region"`
	Prefix           string `yaml:"prefix" mapstructure:"prefix"`
	Endpoint         string `yaml:"endpoint" mapstructure:"endpoint"`
	PathStyle        bool   `yaml:"path_style" mapstructure:"path_style"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.concurrency", 8)
	v.SetDefault("pipeline.input_dir", ".")
	v.SetDefault("pipeline.track_dir", "")
	v.SetDefault("pipeline.output_dir", "out")
	v.SetDefault("tracks.engineered.skip", false)
	v.SetDefault("tracks.engineered.source", SourceFile)
	v.SetDefault("tracks.natural.skip", false)
	v.SetDefault("tracks.natural.source", SourceFile)
	v.SetDefault("tracks.qc.skip", false)
	v.SetDefault("tracks.qc.source", SourceNative)
	v.SetDefault("export.format", "parquet")
	v.SetDefault("export.sink", SinkFS)
	v.SetDefault("export.table_name", "golden_table")
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.prefix", "")
	v.SetDefault("export.s3.endpoint", "")
	v.SetDefault("export.s3.path_style", false)
	v.SetDefault("export.s3.max_attempts", 3)
	v.SetDefault("export.s3.initial_backoff_ms", 500)
	v.SetDefault("export.s3.max_backoff_ms", 10000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "space.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("server.port", 8080)
}

// Load reads configuration from ./config.yaml (optional) and SPACE_*
// environment variables, on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment
// overrides exist.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Pipeline.Concurrency < 1 {
		return eris.Errorf("config: pipeline.concurrency must be positive, got %d", c.Pipeline.Concurrency)
	}
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"tracks.engineered.source", c.Tracks.Engineered.Source, []string{SourceFile, SourceFeatures}},
		{"tracks.natural.source", c.Tracks.Natural.Source, []string{SourceFile}},
		{"tracks.qc.source", c.Tracks.QC.Source, []string{SourceNative, SourceFile}},
		{"export.format", strings.ToLower(c.Export.Format), []string{"parquet", "csv", "xlsx", "jsonl"}},
		{"export.sink", c.Export.Sink, []string{SinkFS, SinkS3, SinkStore}},
		{"store.driver", c.Store.Driver, []string{"sqlite", "postgres"}},
	}
	for _, ch := range checks {
		if !contains(ch.allowed, ch.value) {
			return eris.Errorf("config: %s must be one of %s, got %q", ch.key, strings.Join(ch.allowed, "|"), ch.value)
		}
	}
	if c.Export.Sink == SinkS3 && c.Export.S3.Bucket == "" {
		return eris.New("config: export.s3.bucket is required for the s3 sink")
	}
	if c.Export.TableName == "" {
		return eris.New("config: export.table_name is required")
	}
	return nil
}

// Skips reports the per-track skip flags keyed by track name.
func (c *Config) Skips() map[string]bool {
	return map[string]bool{
		"engineered": c.Tracks.Engineered.Skip,
		"natural":    c.Tracks.Natural.Skip,
		"qc":         c.Tracks.QC.Skip,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
