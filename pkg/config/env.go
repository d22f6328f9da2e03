package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. DATALAB_ENGINE_MODE.
const EnvPrefix = "DATALAB"

// Keys that can be overridden from the environment or bound to CLI flags.
const (
	KeyEngineMode    = "engine.mode"
	KeyEngineNumProc = "engine.num_proc"
	KeyCacheEnabled  = "cache.enabled"
	KeyCacheBackend  = "cache.backend"
	KeyCacheDir      = "cache.dir"
	KeyCacheBucket   = "cache.bucket"
	KeyCachePrefix   = "cache.prefix"
	KeyLogLevel      = "logging.level"
	KeyLogEncoding   = "logging.encoding"
	KeyMetricsAddr   = "observability.metrics_addr"
	KeyTracing       = "observability.tracing.enabled"
)

// NewViper returns a viper instance reading DATALAB_* environment variables,
// with dots in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies every key set in v (by environment or bound flag) onto cfg.
func Overlay(cfg *Config, v *viper.Viper) {
	if v.IsSet(KeyEngineMode) {
		cfg.Engine.Mode = v.GetString(KeyEngineMode)
	}
	if v.IsSet(KeyEngineNumProc) {
		cfg.Engine.NumProc = v.GetInt(KeyEngineNumProc)
	}
	if v.IsSet(KeyCacheEnabled) {
		cfg.Cache.Enabled = v.GetBool(KeyCacheEnabled)
	}
	if v.IsSet(KeyCacheBackend) {
		cfg.Cache.Backend = v.GetString(KeyCacheBackend)
	}
	if v.IsSet(KeyCacheDir) {
		cfg.Cache.Dir = v.GetString(KeyCacheDir)
	}
	if v.IsSet(KeyCacheBucket) {
		cfg.Cache.Bucket = v.GetString(KeyCacheBucket)
	}
	if v.IsSet(KeyCachePrefix) {
		cfg.Cache.Prefix = v.GetString(KeyCachePrefix)
	}
	if v.IsSet(KeyLogLevel) {
		cfg.Logging.Level = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyLogEncoding) {
		cfg.Logging.Encoding = v.GetString(KeyLogEncoding)
	}
	if v.IsSet(KeyMetricsAddr) {
		cfg.Observability.MetricsAddr = v.GetString(KeyMetricsAddr)
	}
	if v.IsSet(KeyTracing) {
		cfg.Observability.Tracing.Enabled = v.GetBool(KeyTracing)
	}
}
