package vfs

import (
	"errors"
	"fmt"
	"log/slog"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// cacheConfig holds the resolved configuration for a block cache.
type cacheConfig struct {
	blockSize int
	capacity  int
}

// vfsConfig holds the resolved configuration for a VFS.
type vfsConfig struct {
	cache         *BlockCache
	cacheCfg      cacheConfig
	defaultBucket string
	logger        *slog.Logger
}

// Option configures VFS or block cache construction.
// Options implement methods for the constructors they support.
// Using an option with an unsupported constructor returns an error.
type Option interface {
	applyVFS(*vfsConfig) error
	applyCache(*cacheConfig) error
}

// ErrOptionNotValidForCache indicates an option was used with NewBlockCache
// that only applies to New.
var ErrOptionNotValidForCache = errors.New("option not valid for block cache")

// blockSizeOption implements Option for WithBlockSize.
type blockSizeOption struct {
	size int
}

// WithBlockSize sets the cache block size in bytes.
// Default: DefaultBlockSize. The block size is a tuning parameter
// independent of the SQLite page size; correctness does not depend on any
// particular ratio between the two.
func WithBlockSize(size int) Option {
	return &blockSizeOption{size: size}
}

func (o *blockSizeOption) applyVFS(cfg *vfsConfig) error {
	return o.applyCache(&cfg.cacheCfg)
}

func (o *blockSizeOption) applyCache(cfg *cacheConfig) error {
	if o.size <= 0 {
		return fmt.Errorf("WithBlockSize: size must be positive, got %d", o.size)
	}
	cfg.blockSize = o.size
	return nil
}

// cacheCapacityOption implements Option for WithCacheCapacity.
type cacheCapacityOption struct {
	capacity int
}

// WithCacheCapacity sets the cache capacity in bytes.
// Default: DefaultCacheCapacity. Capacities too small to hold 1024 full
// entries (block plus key and header) are rounded up so blocks are never
// too large to cache.
func WithCacheCapacity(capacity int) Option {
	return &cacheCapacityOption{capacity: capacity}
}

func (o *cacheCapacityOption) applyVFS(cfg *vfsConfig) error {
	return o.applyCache(&cfg.cacheCfg)
}

func (o *cacheCapacityOption) applyCache(cfg *cacheConfig) error {
	if o.capacity <= 0 {
		return fmt.Errorf("WithCacheCapacity: capacity must be positive, got %d", o.capacity)
	}
	cfg.capacity = o.capacity
	return nil
}

// sharedCacheOption implements Option for WithCache (VFS-only).
type sharedCacheOption struct {
	cache *BlockCache
}

// WithCache makes the VFS serve reads through an existing block cache
// instead of constructing its own. Use this to share one cache across
// multiple VFS instances in a process.
// This option is only valid for New.
func WithCache(cache *BlockCache) Option {
	return &sharedCacheOption{cache: cache}
}

func (o *sharedCacheOption) applyVFS(cfg *vfsConfig) error {
	if o.cache == nil {
		return errors.New("WithCache: cache must not be nil")
	}
	cfg.cache = o.cache
	return nil
}

func (o *sharedCacheOption) applyCache(*cacheConfig) error {
	return fmt.Errorf("WithCache: %w", ErrOptionNotValidForCache)
}

// defaultBucketOption implements Option for WithDefaultBucket (VFS-only).
type defaultBucketOption struct {
	bucket string
}

// WithDefaultBucket sets the bucket used for URIs that carry no bucket of
// their own (relative paths and path-style URIs without a bucket query
// parameter).
// This option is only valid for New.
func WithDefaultBucket(bucket string) Option {
	return &defaultBucketOption{bucket: bucket}
}

func (o *defaultBucketOption) applyVFS(cfg *vfsConfig) error {
	cfg.defaultBucket = o.bucket
	return nil
}

func (o *defaultBucketOption) applyCache(*cacheConfig) error {
	return fmt.Errorf("WithDefaultBucket: %w", ErrOptionNotValidForCache)
}

// loggerOption implements Option for WithLogger (VFS-only).
type loggerOption struct {
	logger *slog.Logger
}

// WithLogger sets the logger for open and access events.
// Default: slog.Default().
// This option is only valid for New.
func WithLogger(logger *slog.Logger) Option {
	return &loggerOption{logger: logger}
}

func (o *loggerOption) applyVFS(cfg *vfsConfig) error {
	if o.logger == nil {
		return errors.New("WithLogger: logger must not be nil")
	}
	cfg.logger = o.logger
	return nil
}

func (o *loggerOption) applyCache(*cacheConfig) error {
	return fmt.Errorf("WithLogger: %w", ErrOptionNotValidForCache)
}
