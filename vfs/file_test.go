package vfs

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
)

// newTestFile opens a handle on a seeded object through a fresh VFS.
func newTestFile(t *testing.T, data []byte, opts ...Option) (*File, *MemoryFetcher) {
	t.Helper()
	fetcher := NewMemoryFetcher()
	fetcher.Put(testBucket, "db.sqlite", data)

	fs, err := New(fetcher, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f, err := fs.Open(t.Context(), "s3://"+testBucket+"/db.sqlite", OpenReadOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f, fetcher
}

// -----------------------------------------------------------------------------
// Size
// -----------------------------------------------------------------------------

func TestFile_Size(t *testing.T) {
	f, fetcher := newTestFile(t, testObject(100_000))

	size, err := f.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 100_000 {
		t.Errorf("expected size 100000, got %d", size)
	}

	// The size was probed once at open; Size serves the cached value.
	if got := fetcher.ProbeCalls(); got != 1 {
		t.Errorf("expected 1 probe, got %d", got)
	}
}

// -----------------------------------------------------------------------------
// ReadAt
// -----------------------------------------------------------------------------

func TestFile_ReadAt(t *testing.T) {
	data := testObject(100_000)
	f, _ := newTestFile(t, data)
	ctx := t.Context()

	tests := []struct {
		name   string
		offset int64
		length int
	}{
		{"start", 0, 16},
		{"page boundary", 4096, 4096},
		{"mid object", 50_000, 1000},
		{"exact tail", 99_000, 1000},
	}

	for _, tt := range tests {
		buf := make([]byte, tt.length)
		n, err := f.ReadAt(ctx, buf, tt.offset)
		if err != nil {
			t.Fatalf("%s: ReadAt failed: %v", tt.name, err)
		}
		if n != tt.length {
			t.Errorf("%s: expected %d bytes, got %d", tt.name, tt.length, n)
		}
		if !bytes.Equal(buf, data[tt.offset:tt.offset+int64(tt.length)]) {
			t.Errorf("%s: wrong bytes", tt.name)
		}
	}
}

func TestFile_ReadAt_ShortReadCrossingEOF(t *testing.T) {
	data := testObject(100_000)
	f, _ := newTestFile(t, data)

	buf := make([]byte, 20)
	n, err := f.ReadAt(t.Context(), buf, 99_990)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got: %v", err)
	}
	if n != 10 {
		t.Errorf("expected 10 bytes before EOF, got %d", n)
	}
	if !bytes.Equal(buf[:n], data[99_990:]) {
		t.Error("partial read returned wrong bytes")
	}
}

func TestFile_ReadAt_PastEOF(t *testing.T) {
	f, _ := newTestFile(t, testObject(100_000))

	buf := make([]byte, 16)
	n, err := f.ReadAt(t.Context(), buf, 100_000)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead at object size, got: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 bytes past EOF, got %d", n)
	}

	if _, err := f.ReadAt(t.Context(), buf, 1<<30); !errors.Is(err, ErrShortRead) {
		t.Errorf("expected ErrShortRead far past EOF, got: %v", err)
	}
}

func TestFile_ReadAt_NegativeOffset(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))

	buf := make([]byte, 16)
	if _, err := f.ReadAt(t.Context(), buf, -1); !errors.Is(err, ErrRangeUnsatisfiable) {
		t.Errorf("expected ErrRangeUnsatisfiable for negative offset, got: %v", err)
	}
}

func TestFile_ReadAt_EmptyBuffer(t *testing.T) {
	f, fetcher := newTestFile(t, testObject(1000))

	n, err := f.ReadAt(t.Context(), nil, 0)
	if err != nil || n != 0 {
		t.Errorf("expected (0, nil) for empty buffer, got (%d, %v)", n, err)
	}
	if fetcher.FetchCalls() != 0 {
		t.Error("empty read should not fetch")
	}
}

func TestFile_ReadAt_Concurrent(t *testing.T) {
	data := testObject(100_000)
	f, _ := newTestFile(t, data, WithBlockSize(4096))
	ctx := t.Context()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				off := int64((g*20 + i) * 500 % 99_000)
				buf := make([]byte, 500)
				if _, err := f.ReadAt(ctx, buf, off); err != nil {
					t.Errorf("concurrent ReadAt(%d) failed: %v", off, err)
					return
				}
				if !bytes.Equal(buf, data[off:off+500]) {
					t.Errorf("concurrent ReadAt(%d) returned wrong bytes", off)
					return
				}
			}
		}()
	}
	wg.Wait()
}

// staleSizeFetcher reports a wrong size on the first probe, then defers to
// the real object. Exercises the one-shot size refresh on a range mismatch.
type staleSizeFetcher struct {
	*MemoryFetcher
	staleSize int64
	mu        sync.Mutex
	probed    bool
}

func (s *staleSizeFetcher) Probe(ctx context.Context, ref ObjectRef) (ObjectInfo, error) {
	s.mu.Lock()
	first := !s.probed
	s.probed = true
	s.mu.Unlock()
	if first {
		return ObjectInfo{Size: s.staleSize}, nil
	}
	return s.MemoryFetcher.Probe(ctx, ref)
}

func TestFile_ReadAt_SizeRefreshOnRangeMismatch(t *testing.T) {
	data := testObject(100_000)
	inner := NewMemoryFetcher()
	inner.Put(testBucket, "db.sqlite", data)
	fetcher := &staleSizeFetcher{MemoryFetcher: inner, staleSize: 200_000}

	fs, err := New(fetcher)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f, err := fs.Open(t.Context(), "s3://"+testBucket+"/db.sqlite", OpenReadOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = f.Close() }()

	// The stale probe let this offset pass the bounds check; the store
	// disagrees, the handle re-probes, and the read fails cleanly.
	buf := make([]byte, 16)
	if _, err := f.ReadAt(t.Context(), buf, 150_000); !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead after size refresh, got: %v", err)
	}

	// The refreshed size serves subsequent reads correctly.
	if _, err := f.ReadAt(t.Context(), buf, 0); err != nil {
		t.Fatalf("read after refresh failed: %v", err)
	}
	if !bytes.Equal(buf, data[:16]) {
		t.Error("read after refresh returned wrong bytes")
	}
}

// -----------------------------------------------------------------------------
// Write paths
// -----------------------------------------------------------------------------

func TestFile_WritePathsUnsupported(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))

	if _, err := f.WriteAt([]byte("x"), 0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("WriteAt: expected ErrUnsupported, got: %v", err)
	}
	if _, err := f.WriteAt(nil, 1<<20); !errors.Is(err, ErrUnsupported) {
		t.Errorf("WriteAt past EOF: expected ErrUnsupported, got: %v", err)
	}
	if err := f.Truncate(0); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Truncate: expected ErrUnsupported, got: %v", err)
	}
	if err := f.Truncate(1 << 20); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Truncate grow: expected ErrUnsupported, got: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Lock ladder
// -----------------------------------------------------------------------------

// The engine walks the full ladder around every transaction; each transition
// must be granted and observable even though no contention can exist.
func TestFile_LockLadder(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))

	ladder := []LockLevel{LockShared, LockReserved, LockPending, LockExclusive}
	for _, level := range ladder {
		if err := f.Lock(level); err != nil {
			t.Fatalf("Lock(%s) failed: %v", level, err)
		}
		if got := f.LockLevel(); got != level {
			t.Errorf("after Lock(%s): level is %s", level, got)
		}
	}

	if err := f.Unlock(LockShared); err != nil {
		t.Fatalf("Unlock(SHARED) failed: %v", err)
	}
	if got := f.LockLevel(); got != LockShared {
		t.Errorf("after Unlock(SHARED): level is %s", got)
	}

	// Unlock never escalates.
	if err := f.Unlock(LockExclusive); err != nil {
		t.Fatalf("Unlock(EXCLUSIVE) failed: %v", err)
	}
	if got := f.LockLevel(); got != LockShared {
		t.Errorf("Unlock escalated the level to %s", got)
	}

	if err := f.Unlock(LockNone); err != nil {
		t.Fatalf("Unlock(NONE) failed: %v", err)
	}
	if got := f.LockLevel(); got != LockNone {
		t.Errorf("after Unlock(NONE): level is %s", got)
	}
}

func TestFile_CheckReservedLock(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))

	// Even while holding an exclusive lock ourselves: no writer can exist.
	if err := f.Lock(LockExclusive); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	reserved, err := f.CheckReservedLock()
	if err != nil {
		t.Fatalf("CheckReservedLock failed: %v", err)
	}
	if reserved {
		t.Error("CheckReservedLock claimed a writer exists")
	}
}

func TestFile_Sync(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))
	if err := f.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Close
// -----------------------------------------------------------------------------

func TestFile_Close_Idempotent(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestFile_OperationsAfterClose(t *testing.T) {
	f, _ := newTestFile(t, testObject(1000))
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	buf := make([]byte, 16)
	if _, err := f.ReadAt(t.Context(), buf, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadAt: expected ErrClosed, got: %v", err)
	}
	if _, err := f.Size(); !errors.Is(err, ErrClosed) {
		t.Errorf("Size: expected ErrClosed, got: %v", err)
	}
	if err := f.Lock(LockShared); !errors.Is(err, ErrClosed) {
		t.Errorf("Lock: expected ErrClosed, got: %v", err)
	}
	if err := f.Unlock(LockNone); !errors.Is(err, ErrClosed) {
		t.Errorf("Unlock: expected ErrClosed, got: %v", err)
	}
	if err := f.Sync(); !errors.Is(err, ErrClosed) {
		t.Errorf("Sync: expected ErrClosed, got: %v", err)
	}
	if _, err := f.CheckReservedLock(); !errors.Is(err, ErrClosed) {
		t.Errorf("CheckReservedLock: expected ErrClosed, got: %v", err)
	}
}

// Closing a handle leaves cached blocks for the next open of the object.
func TestFile_CloseKeepsCacheWarm(t *testing.T) {
	data := testObject(10_000)
	fetcher := NewMemoryFetcher()
	fetcher.Put(testBucket, "db.sqlite", data)

	fs, err := New(fetcher, WithBlockSize(4096))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := t.Context()
	uri := "s3://" + testBucket + "/db.sqlite"

	f1, err := fs.Open(ctx, uri, OpenReadOnly)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	buf := make([]byte, 100)
	if _, err := f1.ReadAt(ctx, buf, 0); err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	if err := f1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	fetchesAfterFirst := fetcher.FetchCalls()

	f2, err := fs.Open(ctx, uri, OpenReadOnly)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer func() { _ = f2.Close() }()
	if _, err := f2.ReadAt(ctx, buf, 0); err != nil {
		t.Fatalf("second read failed: %v", err)
	}

	if got := fetcher.FetchCalls(); got != fetchesAfterFirst {
		t.Errorf("expected the block to survive Close, got %d extra fetches", got-fetchesAfterFirst)
	}
}
