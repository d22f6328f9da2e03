// Package config defines the datalab configuration file.
//
// The configuration is organized into sections:
//   - Engine: default execution mode and worker count
//   - Cache: persisted cache backend and compression
//   - Logging: zap logger settings
//   - Observability: tracing and the metrics endpoint
//
// Example usage:
//
//	cfg, err := config.LoadFile("datalab.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// String values may reference environment variables as ${VAR} or
// ${VAR:-default}.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/ajitpratap0/datalab/pkg/cache"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/logger"
	"github.com/ajitpratap0/datalab/pkg/observability"
)

// Config is the root configuration.
type Config struct {
	Engine        EngineConfig        `yaml:"engine" json:"engine"`
	Cache         cache.Config        `yaml:"cache" json:"cache"`
	Logging       logger.Config       `yaml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// EngineConfig controls operation application defaults.
type EngineConfig struct {
	// Mode is the execution mode used when a call does not name one.
	Mode string `yaml:"mode" json:"mode"`
	// NumProc is the default worker count for per-record operations in
	// materializing and persisting modes. 0 means one worker per physical core.
	NumProc int `yaml:"num_proc" json:"num_proc"`
}

// ObservabilityConfig configures tracing and metrics exposure.
type ObservabilityConfig struct {
	Tracing observability.TracingConfig `yaml:"tracing" json:"tracing"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Mode:    "materializing",
			NumProc: 1,
		},
		Cache:   cache.DefaultConfig(),
		Logging: logger.DefaultConfig(),
		Observability: ObservabilityConfig{
			Tracing: observability.DefaultTracingConfig(),
		},
	}
}

// modeNames maps every accepted execution mode name, including the aliases
// realtime, memory and local, to its canonical name.
var modeNames = map[string]string{
	"streaming":     "streaming",
	"realtime":      "streaming",
	"materializing": "materializing",
	"memory":        "materializing",
	"persisting":    "persisting",
	"local":         "persisting",
}

// CanonicalMode resolves a mode name or alias, ignoring case and surrounding
// space.
func CanonicalMode(name string) (string, bool) {
	m, ok := modeNames[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, ok := CanonicalMode(c.Engine.Mode); !ok {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("engine.mode %q is not a known execution mode", c.Engine.Mode))
	}
	if c.Engine.NumProc < 0 {
		return errors.New(errors.ErrorTypeConfig, "engine.num_proc must not be negative")
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	switch c.Logging.Encoding {
	case "", "json", "console":
	default:
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("logging.encoding %q must be json or console", c.Logging.Encoding))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		return errors.New(errors.ErrorTypeConfig, "observability.tracing.sampling_rate must be within [0, 1]")
	}
	return nil
}

// WorkerCount resolves the configured worker count, replacing 0 with
// DefaultNumProc.
func (e EngineConfig) WorkerCount() int {
	if e.NumProc > 0 {
		return e.NumProc
	}
	return DefaultNumProc()
}

// DefaultNumProc returns the number of physical cores, falling back to the
// logical CPU count.
func DefaultNumProc() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}
