package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/datalab/pkg/compression"
	"github.com/ajitpratap0/datalab/pkg/errors"
)

// Config selects and configures a cache backend.
type Config struct {
	// Enabled is the initial state of the process-wide caching switch.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Backend is one of file, memory, s3 or gcs.
	Backend string `yaml:"backend" json:"backend"`
	// Dir is the file backend directory.
	Dir string `yaml:"dir" json:"dir"`

	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`

	Compression compression.Config `yaml:"compression" json:"compression"`
}

// DefaultDir is the file backend directory used when none is configured.
func DefaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "datalab")
	}
	return filepath.Join(os.TempDir(), "datalab-cache")
}

// DefaultConfig returns a file cache under DefaultDir compressed with zstd.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Backend:     "file",
		Dir:         DefaultDir(),
		Compression: *compression.DefaultConfig(),
	}
}

// Validate checks the backend specific settings.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "file", "":
		if c.Dir == "" {
			return errors.New(errors.ErrorTypeConfig, "cache.dir is required for the file backend")
		}
	case "memory":
	case "s3", "gcs":
		if c.Bucket == "" {
			return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("cache.bucket is required for the %s backend", c.Backend))
		}
	default:
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown cache backend %q", c.Backend))
	}
	if _, err := compression.ParseAlgorithm(string(c.Compression.Algorithm)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid cache.compression.algorithm")
	}
	return nil
}

// Open builds the backend described by cfg and wraps it in a BlobStore.
func Open(ctx context.Context, cfg Config) (*BlobStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backend Backend
	var err error
	switch strings.ToLower(cfg.Backend) {
	case "file", "":
		backend, err = NewFileBackend(cfg.Dir)
	case "memory":
		backend = NewMemoryBackend()
	case "s3":
		backend, err = NewS3Backend(ctx, S3Options{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case "gcs":
		backend, err = NewGCSBackend(ctx, GCSOptions{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			CredentialsFile: cfg.CredentialsFile,
		})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to open %s cache backend", cfg.Backend))
	}

	compCfg := cfg.Compression
	codec, err := NewCodec(&compCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create cache codec")
	}
	return NewBlobStore(backend, codec)
}
