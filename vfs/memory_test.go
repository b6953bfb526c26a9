package vfs

import (
	"bytes"
	"errors"
	"testing"
)

func TestMemoryFetcher_Fetch(t *testing.T) {
	data := testObject(1000)
	fetcher := NewMemoryFetcher()
	fetcher.Put(testBucket, "db.sqlite", data)
	ref := ObjectRef{Bucket: testBucket, Key: "db.sqlite"}
	ctx := t.Context()

	got, err := fetcher.Fetch(ctx, ref, 100, 200)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !bytes.Equal(got, data[100:300]) {
		t.Error("wrong bytes")
	}

	// Truncated at EOF.
	got, err = fetcher.Fetch(ctx, ref, 900, 500)
	if err != nil {
		t.Fatalf("Fetch crossing EOF failed: %v", err)
	}
	if len(got) != 100 {
		t.Errorf("expected 100 bytes, got %d", len(got))
	}

	// Offset beyond EOF.
	if _, err := fetcher.Fetch(ctx, ref, 1000, 1); !errors.Is(err, ErrRangeUnsatisfiable) {
		t.Errorf("expected ErrRangeUnsatisfiable, got: %v", err)
	}

	// Missing object.
	missing := ObjectRef{Bucket: testBucket, Key: "absent"}
	if _, err := fetcher.Fetch(ctx, missing, 0, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}

	if got := fetcher.FetchCalls(); got != 4 {
		t.Errorf("expected 4 recorded calls, got %d", got)
	}
}

func TestMemoryFetcher_Probe(t *testing.T) {
	fetcher := NewMemoryFetcher()
	fetcher.Put(testBucket, "db.sqlite", testObject(1234))
	ctx := t.Context()

	info, err := fetcher.Probe(ctx, ObjectRef{Bucket: testBucket, Key: "db.sqlite"})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Size != 1234 {
		t.Errorf("expected size 1234, got %d", info.Size)
	}
	if info.ETag == "" {
		t.Error("expected a non-empty ETag")
	}

	if _, err := fetcher.Probe(ctx, ObjectRef{Bucket: testBucket, Key: "absent"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryFetcher_FaultInjection(t *testing.T) {
	fetcher := NewMemoryFetcher()
	fetcher.Put(testBucket, "db.sqlite", testObject(100))
	ref := ObjectRef{Bucket: testBucket, Key: "db.sqlite"}
	ctx := t.Context()

	fetcher.FailFetches(ErrTransient, 2)
	for i := range 2 {
		if _, err := fetcher.Fetch(ctx, ref, 0, 10); !errors.Is(err, ErrTransient) {
			t.Fatalf("call %d: expected injected ErrTransient, got: %v", i, err)
		}
	}
	if _, err := fetcher.Fetch(ctx, ref, 0, 10); err != nil {
		t.Errorf("expected recovery after injected faults, got: %v", err)
	}
}
