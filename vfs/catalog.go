package vfs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// sqliteExt is the object key suffix that marks a database in the catalog.
const sqliteExt = ".sqlite"

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// Catalog enumerates the databases available under one bucket prefix.
//
// A database is any object named <prefix>/<name>.sqlite directly under the
// prefix; listing does not recurse into deeper prefixes. This is the
// schema-discovery collaborator of the VFS, not part of the file contract.
type Catalog struct {
	lister Lister
	bucket string
	prefix string
}

// NewCatalog creates a catalog over the given lister.
// The prefix is normalized to end with a single trailing slash; an empty
// prefix lists the bucket root.
func NewCatalog(lister Lister, bucket, prefix string) (*Catalog, error) {
	if lister == nil {
		return nil, errors.New("vfs: lister is required")
	}
	if bucket == "" {
		return nil, errors.New("vfs: bucket is required")
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Catalog{
		lister: lister,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Databases returns the database names under the catalog prefix, sorted,
// with the .sqlite extension stripped.
func (c *Catalog) Databases(ctx context.Context) ([]string, error) {
	keys, err := c.lister.ListKeys(ctx, c.bucket, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("vfs: list catalog %s/%s: %w", c.bucket, c.prefix, err)
	}

	var names []string
	for _, key := range keys {
		name := strings.TrimPrefix(key, c.prefix)
		if !strings.HasSuffix(name, sqliteExt) || strings.Contains(name, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, sqliteExt))
	}

	sort.Strings(names)
	return names, nil
}

// URI returns the canonical open URI for a database name in this catalog.
func (c *Catalog) URI(name string) string {
	return (ObjectRef{Bucket: c.bucket, Key: c.prefix + name + sqliteExt}).String()
}
