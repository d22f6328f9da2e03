package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/datalab/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "materializing", cfg.Engine.Mode)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "file", cfg.Cache.Backend)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"mode":          func(c *Config) { c.Engine.Mode = "batch" },
		"num_proc":      func(c *Config) { c.Engine.NumProc = -1 },
		"cache backend": func(c *Config) { c.Cache.Backend = "tape" },
		"encoding":      func(c *Config) { c.Logging.Encoding = "xml" },
		"sampling":      func(c *Config) { c.Observability.Tracing.SamplingRate = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestLoadFileWithEnvSubstitution(t *testing.T) {
	t.Setenv("DATALAB_TEST_CACHE_DIR", "/tmp/datalab-test")
	path := filepath.Join(t.TempDir(), "datalab.yaml")
	content := `
engine:
  mode: persisting
  num_proc: 4
cache:
  dir: ${DATALAB_TEST_CACHE_DIR}
  compression:
    algorithm: ${DATALAB_TEST_UNSET:-snappy}
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "persisting", cfg.Engine.Mode)
	assert.Equal(t, 4, cfg.Engine.WorkerCount())
	assert.Equal(t, "/tmp/datalab-test", cfg.Cache.Dir)
	assert.Equal(t, "snappy", string(cfg.Cache.Compression.Algorithm))
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "file", cfg.Cache.Backend, "unset keys keep their defaults")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Engine.NumProc = 3
	require.NoError(t, Save(path, cfg))

	back, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Engine.NumProc)
}

func TestDefaultNumProc(t *testing.T) {
	assert.Greater(t, DefaultNumProc(), 0)
	assert.Equal(t, DefaultNumProc(), EngineConfig{}.WorkerCount())
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("DATALAB_A", "x")
	assert.Equal(t, "x-y-", substituteEnvVars("${DATALAB_A}-${DATALAB_MISSING:-y}-${DATALAB_MISSING}"))
	assert.Equal(t, "no vars", substituteEnvVars("no vars"))
}

func TestOverlayFromEnvironment(t *testing.T) {
	t.Setenv("DATALAB_ENGINE_MODE", "streaming")
	t.Setenv("DATALAB_ENGINE_NUM_PROC", "6")
	t.Setenv("DATALAB_CACHE_ENABLED", "false")
	t.Setenv("DATALAB_LOGGING_LEVEL", "warn")

	cfg := Default()
	Overlay(cfg, NewViper())

	assert.Equal(t, "streaming", cfg.Engine.Mode)
	assert.Equal(t, 6, cfg.Engine.NumProc)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "file", cfg.Cache.Backend, "unset keys are left alone")
	require.NoError(t, cfg.Validate())
}

func TestCanonicalMode(t *testing.T) {
	cases := map[string]string{
		"streaming": "streaming", "realtime": "streaming",
		"Memory": "materializing", " materializing ": "materializing",
		"local": "persisting", "PERSISTING": "persisting",
	}
	for in, want := range cases {
		got, ok := CanonicalMode(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)

		cfg := Default()
		cfg.Engine.Mode = in
		assert.NoError(t, cfg.Validate(), in)
	}
	_, ok := CanonicalMode("batch")
	assert.False(t, ok)
}
