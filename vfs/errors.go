package vfs

import "errors"

// Error sentinel values for the storage adapter.
//
// Callers discriminate with errors.Is; implementations wrap these with
// fmt.Errorf("...: %w", ...) to add context without losing identity.
var (
	// ErrNotFound indicates the referenced object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrTransient indicates a network or throttling failure that persisted
	// through the fetcher's retry budget.
	ErrTransient = errors.New("transient storage failure")

	// ErrRangeUnsatisfiable indicates a read whose offset lies at or beyond
	// the end of the object.
	ErrRangeUnsatisfiable = errors.New("range not satisfiable")

	// ErrShortRead indicates a read that started inside the object but
	// requested bytes past its end. The bytes up to the end are returned
	// alongside this error.
	ErrShortRead = errors.New("short read past end of object")

	// ErrUnsupported indicates a write-path operation. Objects are immutable;
	// calling a write operation is a programming error in the caller.
	ErrUnsupported = errors.New("unsupported operation on read-only storage")

	// ErrInvalidURI indicates a database URI that could not be parsed into a
	// bucket and object key.
	ErrInvalidURI = errors.New("invalid database URI")

	// ErrClosed indicates an operation on a closed file handle.
	ErrClosed = errors.New("file handle is closed")

	// ErrNotDatabase indicates an object whose first page does not carry a
	// SQLite database header.
	ErrNotDatabase = errors.New("object is not a sqlite database")
)
