package vfs

import (
	"errors"
	"testing"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name          string
		uri           string
		defaultBucket string
		want          ObjectRef
	}{
		{
			name: "s3 scheme",
			uri:  "s3://mybucket/data/catalog.sqlite",
			want: ObjectRef{Bucket: "mybucket", Key: "data/catalog.sqlite"},
		},
		{
			name: "path with bucket parameter",
			uri:  "/data/catalog.sqlite?bucket=mybucket",
			want: ObjectRef{Bucket: "mybucket", Key: "data/catalog.sqlite"},
		},
		{
			name: "file scheme with bucket parameter",
			uri:  "file:/data/catalog.sqlite?bucket=mybucket",
			want: ObjectRef{Bucket: "mybucket", Key: "data/catalog.sqlite"},
		},
		{
			name:          "relative path with default bucket",
			uri:           "data/catalog.sqlite",
			defaultBucket: "fallback",
			want:          ObjectRef{Bucket: "fallback", Key: "data/catalog.sqlite"},
		},
		{
			name:          "bucket parameter overrides default",
			uri:           "data/catalog.sqlite?bucket=explicit",
			defaultBucket: "fallback",
			want:          ObjectRef{Bucket: "explicit", Key: "data/catalog.sqlite"},
		},
		{
			name: "bucket parameter overrides s3 host",
			uri:  "s3://hostbucket/data/db.sqlite?bucket=parambucket",
			want: ObjectRef{Bucket: "parambucket", Key: "data/db.sqlite"},
		},
		{
			name: "redundant path components resolved",
			uri:  "s3://mybucket//data/./sub/../catalog.sqlite",
			want: ObjectRef{Bucket: "mybucket", Key: "data/catalog.sqlite"},
		},
	}

	for _, tt := range tests {
		got, err := ParseURI(tt.uri, tt.defaultBucket)
		if err != nil {
			t.Errorf("%s: ParseURI failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.name, tt.want, got)
		}
	}
}

func TestParseURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"empty", ""},
		{"no bucket anywhere", "/data/catalog.sqlite"},
		{"unknown scheme", "gs://bucket/key.sqlite"},
		{"empty key", "s3://bucket"},
		{"root key", "s3://bucket/"},
		{"escaping key", "../etc/passwd?bucket=b"},
		{"dot key", "s3://bucket/."},
		{"control character", "s3://bucket/\x7f%zz"},
	}

	for _, tt := range tests {
		if _, err := ParseURI(tt.uri, ""); !errors.Is(err, ErrInvalidURI) {
			t.Errorf("%s: expected ErrInvalidURI, got: %v", tt.name, err)
		}
	}
}

func TestObjectRef_String(t *testing.T) {
	ref := ObjectRef{Bucket: "mybucket", Key: "data/catalog.sqlite"}
	if got := ref.String(); got != "s3://mybucket/data/catalog.sqlite" {
		t.Errorf("unexpected canonical form: %s", got)
	}
}
