package vfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// -----------------------------------------------------------------------------
// Virtual filesystem registry
// -----------------------------------------------------------------------------

// VFS resolves database URIs to virtual file handles.
//
// A VFS owns a Fetcher and a BlockCache; every handle it opens shares both,
// so repeated opens of one object reuse already-fetched blocks. Multiple
// independent opens must go through the same VFS (or share a cache via
// WithCache) for that reuse to hold.
//
// A VFS is safe for concurrent use.
type VFS struct {
	fetcher       Fetcher
	cache         *BlockCache
	defaultBucket string
	logger        *slog.Logger
}

// New creates a VFS over the given fetcher with documented defaults.
//
// Default behavior:
//   - Cache: a private BlockCache with default block size and capacity
//   - Default bucket: none (URIs must carry their own bucket)
//   - Logger: slog.Default()
//
// Use option functions to override defaults:
//   - WithCache(c) to share a cache across VFS instances
//   - WithBlockSize(n), WithCacheCapacity(n) to tune the private cache
//   - WithDefaultBucket(b) to resolve bucketless URIs
//   - WithLogger(l) to route open/access logging
func New(fetcher Fetcher, opts ...Option) (*VFS, error) {
	if fetcher == nil {
		return nil, errors.New("vfs: fetcher is required")
	}

	cfg := &vfsConfig{
		cacheCfg: cacheConfig{
			blockSize: DefaultBlockSize,
			capacity:  DefaultCacheCapacity,
		},
	}

	for _, opt := range opts {
		if err := opt.applyVFS(cfg); err != nil {
			return nil, fmt.Errorf("vfs: %w", err)
		}
	}

	cache := cfg.cache
	if cache == nil {
		var err error
		cache, err = NewBlockCache(fetcher,
			WithBlockSize(cfg.cacheCfg.blockSize),
			WithCacheCapacity(cfg.cacheCfg.capacity),
		)
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &VFS{
		fetcher:       fetcher,
		cache:         cache,
		defaultBucket: cfg.defaultBucket,
		logger:        logger,
	}, nil
}

// Cache returns the block cache this VFS serves reads through.
func (v *VFS) Cache() *BlockCache {
	return v.cache
}

// Open resolves uri and returns a file handle for the referenced object.
//
// The object is probed immediately, so a missing object fails here with
// ErrNotFound rather than on first read. Only read-only opens are accepted;
// write-intent flags fail with ErrUnsupported. The returned handle is owned
// by the caller from this point on.
func (v *VFS) Open(ctx context.Context, uri string, flag OpenFlag) (*File, error) {
	if flag != OpenReadOnly {
		return nil, fmt.Errorf("vfs: open %q with write intent: %w", uri, ErrUnsupported)
	}

	ref, err := ParseURI(uri, v.defaultBucket)
	if err != nil {
		return nil, err
	}

	info, err := v.fetcher.Probe(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("vfs: open %s: %w", ref, err)
	}

	v.logger.Debug("vfs: opened database",
		"bucket", ref.Bucket,
		"key", ref.Key,
		"size", info.Size,
	)

	return &File{
		ref:     ref,
		cache:   v.cache,
		fetcher: v.fetcher,
		info:    info,
		lock:    LockNone,
	}, nil
}

// Delete always fails: objects are immutable and owned by their writers.
func (v *VFS) Delete(_ context.Context, uri string) error {
	return fmt.Errorf("vfs: delete %q: %w", uri, ErrUnsupported)
}

// Access reports whether the referenced object exists and is readable.
// Writability checks always answer false. A malformed URI fails with
// ErrInvalidURI; probe failures other than ErrNotFound propagate.
func (v *VFS) Access(ctx context.Context, uri string, flag AccessFlag) (bool, error) {
	if flag == AccessReadWrite {
		return false, nil
	}

	ref, err := ParseURI(uri, v.defaultBucket)
	if err != nil {
		return false, err
	}

	_, err = v.fetcher.Probe(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vfs: access %s: %w", ref, err)
	}
	return true, nil
}

// FullPathname returns the canonical s3://bucket/key form of uri without
// performing any I/O.
func (v *VFS) FullPathname(uri string) (string, error) {
	ref, err := ParseURI(uri, v.defaultBucket)
	if err != nil {
		return "", err
	}
	return ref.String(), nil
}
