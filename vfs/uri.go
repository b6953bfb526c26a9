package vfs

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ParseURI resolves a database URI to an object reference.
//
// Accepted forms:
//
//	s3://bucket/path/to/db.sqlite
//	file:/path/to/db.sqlite?bucket=name   (engine-style path URI)
//	/path/to/db.sqlite?bucket=name
//	path/to/db.sqlite                     (resolved against defaultBucket)
//
// A bucket query parameter overrides the bucket from any other source.
// The key is normalized (relative components resolved, leading slash
// stripped); keys that are empty or escape upward fail with ErrInvalidURI.
func ParseURI(uri, defaultBucket string) (ObjectRef, error) {
	if uri == "" {
		return ObjectRef{}, fmt.Errorf("vfs: empty uri: %w", ErrInvalidURI)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("vfs: parse %q: %w", uri, ErrInvalidURI)
	}

	var bucket, rawKey string
	switch u.Scheme {
	case "s3":
		bucket = u.Host
		rawKey = u.Path
	case "file", "":
		bucket = defaultBucket
		rawKey = u.Path
		if u.Opaque != "" {
			rawKey = u.Opaque
		}
	default:
		return ObjectRef{}, fmt.Errorf("vfs: unknown scheme %q: %w", u.Scheme, ErrInvalidURI)
	}

	if b := u.Query().Get("bucket"); b != "" {
		bucket = b
	}
	if bucket == "" {
		return ObjectRef{}, fmt.Errorf("vfs: no bucket in %q and no default configured: %w", uri, ErrInvalidURI)
	}

	key, err := cleanKey(rawKey)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("vfs: key in %q: %w", uri, err)
	}

	return ObjectRef{Bucket: bucket, Key: key}, nil
}

// cleanKey normalizes an object key and rejects empty or escaping keys.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidURI
	}

	cleaned := path.Clean(key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidURI
	}

	return cleaned, nil
}
