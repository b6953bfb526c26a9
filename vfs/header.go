package vfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

// HeaderSize is the length of the SQLite database header on page 1.
const HeaderSize = 100

// headerMagic is the 16-byte string that opens every SQLite database file.
var headerMagic = []byte("SQLite format 3\x00")

// Header is the decoded SQLite database header.
//
// Decoding the header lets callers validate that an object is a plausible
// database image, and compare the engine's page size against the cache
// block size, before a query engine touches the file.
type Header struct {
	// PageSize is the database page size in bytes (512..65536, power of two).
	PageSize int

	// PageCount is the size of the database in pages.
	PageCount uint32

	// ReadVersion is the file format read version (1 legacy, 2 WAL).
	ReadVersion byte

	// WriteVersion is the file format write version (1 legacy, 2 WAL).
	WriteVersion byte

	// TextEncoding is the database text encoding (1 UTF-8, 2 UTF-16le,
	// 3 UTF-16be).
	TextEncoding uint32

	// FreelistPages is the number of pages on the freelist.
	FreelistPages uint32

	// ChangeCounter is the file change counter. Constant for an immutable
	// object, but decoded for completeness.
	ChangeCounter uint32
}

// DecodeHeader parses a SQLite database header from the first HeaderSize
// bytes of a database image. Fails with ErrNotDatabase when the magic
// string or page size is invalid.
func DecodeHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, fmt.Errorf("vfs: header is %d bytes, need %d: %w", len(b), HeaderSize, ErrNotDatabase)
	}
	if !bytes.Equal(b[:16], headerMagic) {
		return nil, fmt.Errorf("vfs: bad magic: %w", ErrNotDatabase)
	}

	// Page size is a big-endian uint16 at offset 16; the value 1 encodes
	// 65536, which does not fit in 16 bits.
	pageSize := int(binary.BigEndian.Uint16(b[16:18]))
	if pageSize == 1 {
		pageSize = 65536
	}
	if pageSize < 512 || pageSize&(pageSize-1) != 0 {
		return nil, fmt.Errorf("vfs: bad page size %d: %w", pageSize, ErrNotDatabase)
	}

	return &Header{
		PageSize:      pageSize,
		WriteVersion:  b[18],
		ReadVersion:   b[19],
		ChangeCounter: binary.BigEndian.Uint32(b[24:28]),
		PageCount:     binary.BigEndian.Uint32(b[28:32]),
		FreelistPages: binary.BigEndian.Uint32(b[36:40]),
		TextEncoding:  binary.BigEndian.Uint32(b[56:60]),
	}, nil
}

// ReadHeader reads and decodes the database header through an open handle.
func ReadHeader(ctx context.Context, f *File) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(ctx, buf, 0); err != nil {
		return nil, fmt.Errorf("vfs: read header of %s: %w", f.Ref(), err)
	}
	return DecodeHeader(buf)
}
