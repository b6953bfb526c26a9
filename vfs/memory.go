package vfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// In-memory fetcher
// -----------------------------------------------------------------------------

// MemoryFetcher is an in-memory Fetcher and Lister for tests and local
// development. It records call counts and supports deterministic fault
// injection so cache and handle behavior can be verified without a network.
//
// Safe for concurrent use.
type MemoryFetcher struct {
	mu      sync.Mutex
	objects map[string][]byte

	fetchCalls int
	probeCalls int
	listCalls  int

	// Fault injection: the next fetchFailures Fetch calls return fetchErr.
	fetchErr      error
	fetchFailures int
	probeErr      error
}

// NewMemoryFetcher creates an empty in-memory fetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		objects: make(map[string][]byte),
	}
}

// Put stores an object. Later Puts overwrite; tests control immutability.
func (m *MemoryFetcher) Put(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = data
}

// FailFetches makes the next n Fetch calls return err before touching the
// stored objects. Used to exercise fault propagation through the cache.
func (m *MemoryFetcher) FailFetches(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
	m.fetchFailures = n
}

// SetProbeError makes Probe return err until cleared with a nil err.
func (m *MemoryFetcher) SetProbeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeErr = err
}

// FetchCalls returns the number of Fetch invocations so far.
func (m *MemoryFetcher) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// ProbeCalls returns the number of Probe invocations so far.
func (m *MemoryFetcher) ProbeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeCalls
}

// ResetCounts resets call counters for test isolation.
func (m *MemoryFetcher) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls = 0
	m.probeCalls = 0
	m.listCalls = 0
}

// Fetch implements Fetcher.
func (m *MemoryFetcher) Fetch(_ context.Context, ref ObjectRef, offset, length int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchCalls++
	if m.fetchFailures > 0 {
		m.fetchFailures--
		return nil, m.fetchErr
	}

	data, ok := m.objects[memKey(ref.Bucket, ref.Key)]
	if !ok {
		return nil, fmt.Errorf("memory: fetch %s: %w", ref, ErrNotFound)
	}
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("memory: fetch %s: %w", ref, ErrRangeUnsatisfiable)
	}
	if offset >= int64(len(data)) {
		return nil, fmt.Errorf("memory: fetch %s at %d: %w", ref, offset, ErrRangeUnsatisfiable)
	}

	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}

	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}

// Probe implements Fetcher.
func (m *MemoryFetcher) Probe(_ context.Context, ref ObjectRef) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.probeCalls++
	if m.probeErr != nil {
		return ObjectInfo{}, m.probeErr
	}

	data, ok := m.objects[memKey(ref.Bucket, ref.Key)]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("memory: probe %s: %w", ref, ErrNotFound)
	}

	return ObjectInfo{
		Size: int64(len(data)),
		ETag: fmt.Sprintf(`"mem-%d"`, len(data)),
	}, nil
}

// ListKeys implements Lister. Only keys directly under prefix are returned,
// matching an object store listing with a "/" delimiter.
func (m *MemoryFetcher) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++

	var keys []string
	wantPrefix := bucket + "\x00" + prefix
	for k := range m.objects {
		if !strings.HasPrefix(k, wantPrefix) {
			continue
		}
		key := strings.SplitN(k, "\x00", 2)[1]
		if strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			continue
		}
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}

// memKey builds the storage map key for (bucket, key).
func memKey(bucket, key string) string {
	return bucket + "\x00" + key
}
