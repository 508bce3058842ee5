// Package store caches vector collections keyed by tenant identity, loading
// them lazily from durable storage.
//
// Durable storage is authoritative; the in-memory map is a cache populated on
// first access per key. Collections are created empty when absent on disk and
// live for the process lifetime.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/civium/matchd/pkg/collection"
	"github.com/civium/matchd/pkg/tenant"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds configuration for the collection store.
type Config struct {
	// DataDir is the root directory for collection artifacts.
	// Default: "collections"
	DataDir string `koanf:"data_dir"`

	// Dimension is the process-wide embedding dimensionality.
	// Default: 512
	Dimension int `koanf:"dimension"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "collections"
	}
	if c.Dimension == 0 {
		c.Dimension = 512
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Store owns the mapping from tenant key to collection.
type Store struct {
	config Config
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*collection.Collection

	// group guarantees at most one construction per key under concurrent
	// first access.
	group singleflight.Group
}

// New creates a store and ensures the category directories exist.
func New(config Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	for _, category := range []tenant.Category{tenant.CategoryPublic, tenant.CategoryPrivate} {
		dir := filepath.Join(config.DataDir, string(category))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}

	logger = logger.Named("store")
	logger.Info("collection store initialized",
		zap.String("data_dir", config.DataDir),
		zap.Int("dimension", config.Dimension),
	)

	return &Store{
		config: config,
		logger: logger,
		cache:  make(map[string]*collection.Collection),
	}, nil
}

// Dimension returns the process-wide embedding dimensionality.
func (s *Store) Dimension() int { return s.config.Dimension }

// GetOrCreate returns the cached collection for key, loading it from disk or
// creating an empty one on first access. Construction is single-flight per
// key: concurrent first accesses share one load and observe the same
// instance.
func (s *Store) GetOrCreate(ctx context.Context, key tenant.Key) (*collection.Collection, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cacheKey := key.String()
	s.mu.RLock()
	c, ok := s.cache[cacheKey]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	v, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		// Re-check under the flight: an earlier flight may have populated
		// the cache between our miss and this call.
		s.mu.RLock()
		c, ok := s.cache[cacheKey]
		s.mu.RUnlock()
		if ok {
			return c, nil
		}

		c = s.loadOrCreate(key)

		s.mu.Lock()
		s.cache[cacheKey] = c
		s.mu.Unlock()
		CollectionsLoaded.Inc()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*collection.Collection), nil
}

// loadOrCreate loads the collection artifacts, falling back to a fresh empty
// collection when they are absent or unreadable. Data loss is preferred over
// failing the caller.
func (s *Store) loadOrCreate(key tenant.Key) *collection.Collection {
	c, err := collection.Load(s.config.DataDir, key, s.config.Dimension, s.logger)
	switch {
	case err == nil:
		s.logger.Info("collection loaded",
			zap.String("collection", key.String()),
			zap.Int("total", c.Len()),
			zap.Int("valid", c.ValidLen()),
			zap.Int("tombstoned", c.TombstoneCount()),
		)
		return c
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("new collection created", zap.String("collection", key.String()))
	default:
		LoadFailures.Inc()
		s.logger.Warn("collection load failed, reinitializing empty",
			zap.String("collection", key.String()),
			zap.Error(err),
		)
	}

	c = collection.New(key, s.config.Dimension, s.logger)
	if err := s.Persist(c); err != nil {
		s.logger.Warn("persisting empty collection failed",
			zap.String("collection", key.String()),
			zap.Error(err),
		)
	}
	return c
}

// Persist rewrites the collection's artifacts under the data directory.
func (s *Store) Persist(c *collection.Collection) error {
	return c.Save(s.config.DataDir)
}

// ListPublicKnown enumerates every tenant directory under the public category
// and returns its known collection. Malformed or unreadable entries are
// logged and skipped; partial enumeration failure never aborts the listing.
func (s *Store) ListPublicKnown(ctx context.Context) []*collection.Collection {
	publicDir := filepath.Join(s.config.DataDir, string(tenant.CategoryPublic))
	entries, err := os.ReadDir(publicDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading public category directory failed",
				zap.String("dir", publicDir),
				zap.Error(err),
			)
		}
		return nil
	}

	collections := make([]*collection.Collection, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil {
			s.logger.Warn("skipping malformed tenant directory", zap.String("entry", entry.Name()))
			continue
		}
		key, err := tenant.NewKey(tenant.CategoryPublic, id, tenant.KindKnown)
		if err != nil {
			s.logger.Warn("skipping invalid tenant entry",
				zap.String("entry", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		c, err := s.GetOrCreate(ctx, key)
		if err != nil {
			s.logger.Warn("skipping unloadable public collection",
				zap.String("collection", key.String()),
				zap.Error(err),
			)
			continue
		}
		collections = append(collections, c)
	}
	return collections
}

// Loaded returns the number of cached collections.
func (s *Store) Loaded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Totals returns the aggregate valid and total (tombstones included) vector
// counts across cached collections.
func (s *Store) Totals() (valid, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cache {
		valid += c.ValidLen()
		total += c.Len()
	}
	return valid, total
}
