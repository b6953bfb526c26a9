// Package vfs implements a read-only SQLite virtual filesystem backed by
// S3-compatible object storage.
//
// The package presents immutable database objects to a page-structured
// engine through the file operations SQLite requires (ReadAt, Size, the
// lock ladder, Sync, Close) while every byte is served from byte-range
// reads against the object store. Reads flow through a shared, bounded
// block cache; writes are rejected at every level.
package vfs

import (
	"context"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// ObjectRef identifies a remote object by bucket and key.
// A ref is immutable once a File has been opened against it.
type ObjectRef struct {
	// Bucket is the object store bucket name.
	Bucket string

	// Key is the object key within the bucket.
	Key string
}

// String returns the canonical s3://bucket/key form of the reference.
func (r ObjectRef) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

// ObjectInfo holds the metadata returned by a size probe.
type ObjectInfo struct {
	// Size is the object's total length in bytes.
	Size int64

	// ETag is the object's entity tag, when the backend reports one.
	ETag string
}

// -----------------------------------------------------------------------------
// Fetcher interface
// -----------------------------------------------------------------------------

// Fetcher retrieves byte ranges and metadata from an object store.
//
// Implementations must be safe for concurrent use; the block cache issues
// overlapping fetches for different blocks from multiple goroutines.
type Fetcher interface {
	// Fetch returns up to length bytes starting at offset.
	//
	// Fewer bytes are returned only when the range crosses the end of the
	// object. An offset at or beyond the end of the object fails with
	// ErrRangeUnsatisfiable; a missing object fails with ErrNotFound.
	// Transient backend failures are retried internally and surface as
	// ErrTransient only after the retry budget is exhausted.
	Fetch(ctx context.Context, ref ObjectRef, offset, length int64) ([]byte, error)

	// Probe returns the object's size and ETag without transferring its body.
	// A missing object fails with ErrNotFound.
	Probe(ctx context.Context, ref ObjectRef) (ObjectInfo, error)
}

// Lister enumerates object keys. It is a separate capability from Fetcher
// because only the catalog collaborator needs it; the read path never lists.
type Lister interface {
	// ListKeys returns the keys directly under prefix (non-recursive),
	// following pagination to completion.
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// -----------------------------------------------------------------------------
// Lock ladder
// -----------------------------------------------------------------------------

// LockLevel models SQLite's file lock ladder. Every transition is granted
// trivially because the catalog layer guarantees a single reader and no
// writer per object, but the full ladder is kept so the engine's own lock
// ordering assertions always see well-defined state.
type LockLevel int

// Lock levels in escalation order.
const (
	LockNone LockLevel = iota
	LockShared
	LockReserved
	LockPending
	LockExclusive
)

// String returns the lock level name as SQLite spells it.
func (l LockLevel) String() string {
	switch l {
	case LockNone:
		return "NONE"
	case LockShared:
		return "SHARED"
	case LockReserved:
		return "RESERVED"
	case LockPending:
		return "PENDING"
	case LockExclusive:
		return "EXCLUSIVE"
	default:
		return "UNKNOWN"
	}
}

// -----------------------------------------------------------------------------
// Open and access flags
// -----------------------------------------------------------------------------

// OpenFlag carries the engine's open-mode intent.
type OpenFlag int

// Open modes. Anything beyond read-only is rejected at Open with
// ErrUnsupported; remote objects are immutable under this system.
const (
	OpenReadOnly OpenFlag = iota
	OpenReadWrite
	OpenCreate
)

// AccessFlag selects what an Access check should answer.
type AccessFlag int

// Access checks. AccessReadWrite always answers false: this filesystem
// never claims writability.
const (
	AccessExists AccessFlag = iota
	AccessRead
	AccessReadWrite
)
