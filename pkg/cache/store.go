// Package cache persists operation outputs keyed by their fingerprint.
//
// A Store saves and loads whole datasets. BlobStore implements Store on top
// of a byte-oriented Backend (local directory, memory, S3 or GCS) and a Codec
// that serializes and compresses the dataset.
package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/datalab/pkg/dataset"
	"github.com/ajitpratap0/datalab/pkg/errors"
	"github.com/ajitpratap0/datalab/pkg/logger"
)

var (
	// ErrNotFound is returned by Load when no entry exists for a fingerprint.
	ErrNotFound = stderrors.New("cache entry not found")
	// ErrCorrupt marks an entry that exists but cannot be decoded.
	ErrCorrupt = stderrors.New("cache entry corrupt")
)

// entrySuffix is appended to fingerprints to form backend keys.
const entrySuffix = ".dlc"

// Store persists datasets by fingerprint. Each Save is atomic; concurrent
// writers of the same key leave the last write in place.
type Store interface {
	Save(ctx context.Context, fp dataset.Fingerprint, ds *dataset.Dataset) error
	// Load returns ErrNotFound for a missing entry and an error of type
	// cache_corruption, wrapping ErrCorrupt, for an unreadable one.
	Load(ctx context.Context, fp dataset.Fingerprint) (*dataset.Dataset, error)
}

// Stats summarizes the entries of a store.
type Stats struct {
	Backend string `json:"backend"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Corrupt int64  `json:"corrupt"`
}

// BlobStore is a Store over a Backend.
type BlobStore struct {
	backend Backend
	codec   *Codec
	logger  *zap.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	corrupt atomic.Int64
}

// NewBlobStore creates a store. A nil codec uses zstd.
func NewBlobStore(backend Backend, codec *Codec) (*BlobStore, error) {
	if backend == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "cache backend is required")
	}
	if codec == nil {
		var err error
		if codec, err = NewCodec(nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create cache codec")
		}
	}
	return &BlobStore{
		backend: backend,
		codec:   codec,
		logger: logger.Get().With(
			zap.String("component", "cache"),
			zap.String("backend", backend.Name())),
	}, nil
}

// Backend returns the underlying backend.
func (s *BlobStore) Backend() Backend { return s.backend }

func key(fp dataset.Fingerprint) string { return fp.String() + entrySuffix }

// Save writes ds under fp.
func (s *BlobStore) Save(ctx context.Context, fp dataset.Fingerprint, ds *dataset.Dataset) error {
	if fp.IsZero() {
		return errors.New(errors.ErrorTypeValidation, "cannot cache under an empty fingerprint")
	}
	payload, err := s.codec.Encode(ds)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode cache entry").
			WithDetail(errors.DetailFingerprint, fp.String())
	}
	if err := s.backend.Put(ctx, key(fp), payload); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write cache entry").
			WithDetail(errors.DetailFingerprint, fp.String())
	}
	s.logger.Debug("cache entry saved",
		zap.String("fingerprint", fp.Short()),
		zap.Int("bytes", len(payload)),
		zap.Int("records", ds.Len()))
	return nil
}

// Load reads the entry stored under fp.
func (s *BlobStore) Load(ctx context.Context, fp dataset.Fingerprint) (*dataset.Dataset, error) {
	payload, err := s.backend.Get(ctx, key(fp))
	if stderrors.Is(err, ErrNotFound) {
		s.misses.Add(1)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read cache entry").
			WithDetail(errors.DetailFingerprint, fp.String())
	}

	ds, err := s.codec.Decode(payload)
	if err != nil {
		s.corrupt.Add(1)
		return nil, errors.Wrap(err, errors.ErrorTypeCacheCorruption, "cache entry is unreadable").
			WithDetail(errors.DetailFingerprint, fp.String())
	}
	if ds.Fingerprint() != fp {
		s.corrupt.Add(1)
		return nil, errors.Wrap(ErrCorrupt, errors.ErrorTypeCacheCorruption,
			fmt.Sprintf("cache entry holds fingerprint %s", ds.Fingerprint().Short())).
			WithDetail(errors.DetailFingerprint, fp.String())
	}
	s.hits.Add(1)
	return ds, nil
}

// Delete removes the entry stored under fp. Deleting a missing entry is not
// an error.
func (s *BlobStore) Delete(ctx context.Context, fp dataset.Fingerprint) error {
	if err := s.backend.Delete(ctx, key(fp)); err != nil && !stderrors.Is(err, ErrNotFound) {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to delete cache entry")
	}
	return nil
}

// Clear removes every entry and returns how many were deleted.
func (s *BlobStore) Clear(ctx context.Context) (int, error) {
	objs, err := s.backend.List(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to list cache entries")
	}
	n := 0
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, entrySuffix) {
			continue
		}
		if err := s.backend.Delete(ctx, o.Key); err != nil && !stderrors.Is(err, ErrNotFound) {
			return n, errors.Wrap(err, errors.ErrorTypeFile, fmt.Sprintf("failed to delete cache entry %s", o.Key))
		}
		n++
	}
	s.logger.Info("cache cleared", zap.Int("entries", n))
	return n, nil
}

// Stats lists the backend and reports entry counts with this store's
// lookup counters.
func (s *BlobStore) Stats(ctx context.Context) (Stats, error) {
	objs, err := s.backend.List(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to list cache entries")
	}
	st := Stats{
		Backend: s.backend.Name(),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
		Corrupt: s.corrupt.Load(),
	}
	for _, o := range objs {
		if strings.HasSuffix(o.Key, entrySuffix) {
			st.Entries++
			st.Bytes += o.Size
		}
	}
	return st, nil
}
