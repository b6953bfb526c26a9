package vfs

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/coocood/freecache"
	"github.com/oxtoacart/bpool"
	"golang.org/x/sync/singleflight"

	"github.com/MaTriXy/athena-sqlite/vfs/metrics"
)

// Cache defaults.
const (
	// DefaultBlockSize is the default cache block size.
	// Independent of SQLite's page size.
	DefaultBlockSize = 32 * 1024

	// DefaultCacheCapacity is the default cache capacity in bytes.
	DefaultCacheCapacity = 64 * 1024 * 1024
)

// poolBuffers is the number of reusable block buffers kept for read assembly.
const poolBuffers = 64

// entryOverhead is headroom per cache entry for the key and the store's
// fixed per-entry header. The store rejects any entry larger than 1/1024 of
// its size, so the capacity floor must cover the full entry, not just the
// block bytes.
const entryOverhead = 64

// -----------------------------------------------------------------------------
// Block cache
// -----------------------------------------------------------------------------

// BlockCache turns arbitrary-offset reads against remote objects into
// whole-block fetches plus in-memory slicing.
//
// Blocks are keyed by (bucket, key, block index), so handles opened on the
// same object share fetched blocks. Capacity is bounded in bytes with
// least-recently-used eviction; reads copy out of the cache, so an eviction
// can never invalidate a read in progress. Concurrent misses for the same
// block are collapsed into a single fetch.
//
// A BlockCache is safe for concurrent use and is normally shared by every
// VFS in the process.
type BlockCache struct {
	fetcher   Fetcher
	blockSize int
	cache     *freecache.Cache
	pool      *bpool.BytePool
	group     singleflight.Group
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int64
}

// NewBlockCache creates a block cache over the given fetcher with documented
// defaults.
//
// Default behavior:
//   - Block size: DefaultBlockSize (32 KiB)
//   - Capacity: DefaultCacheCapacity (64 MiB)
//
// Use option functions to override defaults:
//   - WithBlockSize(n) to change the fetch granularity
//   - WithCacheCapacity(n) to change the resident-byte bound
func NewBlockCache(fetcher Fetcher, opts ...Option) (*BlockCache, error) {
	if fetcher == nil {
		return nil, errors.New("vfs: fetcher is required")
	}

	cfg := &cacheConfig{
		blockSize: DefaultBlockSize,
		capacity:  DefaultCacheCapacity,
	}

	for _, opt := range opts {
		if err := opt.applyCache(cfg); err != nil {
			return nil, fmt.Errorf("vfs: %w", err)
		}
	}

	// An entry is the block plus its key and header, and the backing cache
	// rejects entries larger than 1/1024 of its size, so the capacity must
	// hold 1024 full entries or nothing would ever be cached. Smaller
	// requests are rounded up.
	if floor := 1024 * (cfg.blockSize + entryOverhead); cfg.capacity < floor {
		cfg.capacity = floor
	}

	return &BlockCache{
		fetcher:   fetcher,
		blockSize: cfg.blockSize,
		cache:     freecache.NewCache(cfg.capacity),
		pool:      bpool.NewBytePool(poolBuffers, cfg.blockSize),
	}, nil
}

// BlockSize returns the configured block size in bytes.
func (c *BlockCache) BlockSize() int {
	return c.blockSize
}

// Stats returns cache effectiveness counters and refreshes the exported
// eviction gauge, which otherwise only updates on the miss path.
func (c *BlockCache) Stats() CacheStats {
	evictions := c.cache.EvacuateCount()
	metrics.CacheEvictions.Set(float64(evictions))
	return CacheStats{
		Hits:      c.cache.HitCount(),
		Misses:    c.cache.MissCount(),
		Evictions: evictions,
		Entries:   c.cache.EntryCount(),
	}
}

// Read returns up to length bytes of the object starting at offset.
//
// The covering blocks are taken from the cache or fetched whole; the result
// is assembled by slicing across them. Fewer than length bytes are returned
// only when the range crosses the end of the object. An offset at or beyond
// the end fails with ErrRangeUnsatisfiable.
func (c *BlockCache) Read(ctx context.Context, ref ObjectRef, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("vfs: negative offset or length: %w", ErrRangeUnsatisfiable)
	}
	if length == 0 {
		return []byte{}, nil
	}

	bs := int64(c.blockSize)
	out := make([]byte, 0, length)

	// Reusable buffer for cache lookups. Cache hits are copied straight
	// from this buffer into the result, so the cache entry itself is never
	// referenced after the lookup returns.
	buf := c.pool.Get()
	defer c.pool.Put(buf)

	for idx := offset / bs; int64(len(out)) < length; idx++ {
		block, err := c.block(ctx, ref, idx, buf)
		if err != nil {
			// Hitting the end of the object on a block boundary mid-range
			// is a short read, not an error; the caller decides.
			if errors.Is(err, ErrRangeUnsatisfiable) && len(out) > 0 {
				break
			}
			return nil, err
		}

		inner := int64(0)
		if start := idx * bs; start < offset {
			inner = offset - start
		}
		if inner >= int64(len(block)) {
			break // short tail block, nothing left at this offset
		}

		take := block[inner:]
		if need := length - int64(len(out)); int64(len(take)) > need {
			take = take[:need]
		}
		out = append(out, take...)

		if int64(len(block)) < bs {
			break // short block means end of object
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("vfs: read at %d: %w", offset, ErrRangeUnsatisfiable)
	}
	return out, nil
}

// block returns the bytes of one block, from cache or via a deduplicated
// fetch. The returned slice may alias buf (cache hit) or be shared with
// concurrent waiters (miss); callers must copy, not mutate.
func (c *BlockCache) block(ctx context.Context, ref ObjectRef, idx int64, buf []byte) ([]byte, error) {
	key := cacheKey(ref, idx)

	if b, err := c.cache.GetWithBuf(key, buf); err == nil {
		metrics.CacheHitsTotal.Inc()
		return b, nil
	}
	metrics.CacheMissesTotal.Inc()

	// Single-flight: concurrent misses for the same block share one fetch.
	// The flight runs on a detached context so an abandoned waiter still
	// leaves the result in the cache for future reads.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flightKey(ref, idx), func() (any, error) {
		// Double-check under the flight: a racing flight may have filled
		// the cache between our miss and this closure running.
		if b, err := c.cache.Get(key); err == nil {
			return b, nil
		}

		data, err := c.fetcher.Fetch(flightCtx, ref, idx*int64(c.blockSize), int64(c.blockSize))
		if err != nil {
			return nil, err
		}

		// Expiry 0: blocks are immutable and only leave under LRU pressure.
		// A rejected entry (an object key long enough to push the entry
		// over the store's per-entry size limit) still serves this read;
		// it just stays uncached.
		if setErr := c.cache.Set(key, data, 0); setErr != nil {
			metrics.CacheStoreErrorsTotal.Inc()
		}
		metrics.CacheEvictions.Set(float64(c.cache.EvacuateCount()))
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cacheKey builds the cache key for (ref, block index).
func cacheKey(ref ObjectRef, idx int64) []byte {
	key := make([]byte, 8, 8+len(ref.Bucket)+1+len(ref.Key))
	binary.LittleEndian.PutUint64(key, uint64(idx))
	key = append(key, ref.Bucket...)
	key = append(key, 0)
	key = append(key, ref.Key...)
	return key
}

// flightKey builds the singleflight key for (ref, block index).
func flightKey(ref ObjectRef, idx int64) string {
	return ref.Bucket + "\x00" + ref.Key + "\x00" + strconv.FormatInt(idx, 10)
}
