package vfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// -----------------------------------------------------------------------------
// Virtual file handle
// -----------------------------------------------------------------------------

// File is the open-file abstraction presented to the database engine for one
// remote object.
//
// A File is created by VFS.Open and owned by the caller that opened it; it is
// not shared across logical connections, though every File serves its reads
// through the shared block cache. Concurrent ReadAt calls on one File are
// safe.
type File struct {
	ref     ObjectRef
	cache   *BlockCache
	fetcher Fetcher // size re-probe only

	mu     sync.Mutex
	info   ObjectInfo
	lock   LockLevel
	closed bool
}

// Ref returns the object reference this handle was opened on.
func (f *File) Ref() ObjectRef {
	return f.ref
}

// Size returns the object's byte length as probed at open time.
func (f *File) Size() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, fmt.Errorf("vfs: size of %s: %w", f.ref, ErrClosed)
	}
	return f.info.Size, nil
}

// ReadAt reads len(p) bytes of the object starting at offset off.
//
// A request that starts inside the object but extends past its end returns
// the available bytes and ErrShortRead; a request starting at or past the
// end returns 0 and ErrShortRead. The engine treats a short read as "read
// past end of file" and applies its own page-integrity checks.
func (f *File) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	size, err := f.readSize()
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("vfs: read %s at %d: %w", f.ref, off, ErrRangeUnsatisfiable)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= size {
		return 0, fmt.Errorf("vfs: read %s at %d past size %d: %w", f.ref, off, size, ErrShortRead)
	}

	want := int64(len(p))
	if remaining := size - off; want > remaining {
		want = remaining
	}

	data, err := f.cache.Read(ctx, f.ref, off, want)
	if errors.Is(err, ErrRangeUnsatisfiable) {
		// The request passed the size check but the store disagreed.
		// Refresh the probed size once and re-evaluate; a second mismatch
		// propagates.
		size, err = f.refreshSize(ctx)
		if err != nil {
			return 0, err
		}
		if off >= size {
			return 0, fmt.Errorf("vfs: read %s at %d past size %d: %w", f.ref, off, size, ErrShortRead)
		}
		if remaining := size - off; want > remaining {
			want = remaining
		}
		data, err = f.cache.Read(ctx, f.ref, off, want)
	}
	if err != nil {
		return 0, fmt.Errorf("vfs: read %s at %d: %w", f.ref, off, err)
	}

	n := copy(p, data)
	if n < len(p) {
		return n, fmt.Errorf("vfs: read %s at %d: %d of %d bytes: %w", f.ref, off, n, len(p), ErrShortRead)
	}
	return n, nil
}

// WriteAt always fails: remote objects are immutable.
func (f *File) WriteAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("vfs: write %s: %w", f.ref, ErrUnsupported)
}

// Truncate always fails: remote objects are immutable.
func (f *File) Truncate(int64) error {
	return fmt.Errorf("vfs: truncate %s: %w", f.ref, ErrUnsupported)
}

// Lock acquires the requested lock level.
//
// Every transition is granted: the catalog layer guarantees a single reader
// and no writer per object, so the ladder carries no contention. The level
// is still recorded so the engine's lock ordering always observes the state
// it set.
func (f *File) Lock(level LockLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("vfs: lock %s: %w", f.ref, ErrClosed)
	}
	f.lock = level
	return nil
}

// Unlock releases down to the requested lock level.
func (f *File) Unlock(level LockLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("vfs: unlock %s: %w", f.ref, ErrClosed)
	}
	if level < f.lock {
		f.lock = level
	}
	return nil
}

// LockLevel returns the currently held lock level.
func (f *File) LockLevel() LockLevel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lock
}

// CheckReservedLock reports whether any connection holds a reserved lock.
// Always false: no writer can exist.
func (f *File) CheckReservedLock() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, fmt.Errorf("vfs: check reserved lock %s: %w", f.ref, ErrClosed)
	}
	return false, nil
}

// Sync is a no-op: nothing is buffered because nothing is written.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("vfs: sync %s: %w", f.ref, ErrClosed)
	}
	return nil
}

// Close releases the handle. Idempotent. Cached blocks stay resident for
// other handles and future opens of the same object.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.lock = LockNone
	return nil
}

// readSize returns the cached size, failing if the handle is closed.
func (f *File) readSize() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, fmt.Errorf("vfs: read %s: %w", f.ref, ErrClosed)
	}
	return f.info.Size, nil
}

// refreshSize re-probes the object and updates the cached info.
func (f *File) refreshSize(ctx context.Context) (int64, error) {
	info, err := f.fetcher.Probe(ctx, f.ref)
	if err != nil {
		return 0, fmt.Errorf("vfs: re-probe %s: %w", f.ref, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
	return info.Size, nil
}
