// Command athena-sqlite inspects SQLite databases stored in S3-compatible
// object storage through the read-only VFS.
//
// Usage:
//
//	athena-sqlite [flags] ls
//	athena-sqlite [flags] stat <uri>
//	athena-sqlite [flags] header <uri>
//	athena-sqlite [flags] read <uri> <offset> <length>
//
// URIs take any form the VFS accepts, e.g. s3://bucket/path/db.sqlite or
// /path/db.sqlite?bucket=name.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/credentials"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"

	"github.com/MaTriXy/athena-sqlite/internal/config"
	"github.com/MaTriXy/athena-sqlite/internal/logging"
	"github.com/MaTriXy/athena-sqlite/vfs"
	"github.com/MaTriXy/athena-sqlite/vfs/metrics"
	s3vfs "github.com/MaTriXy/athena-sqlite/vfs/s3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "athena-sqlite:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("athena-sqlite", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to YAML configuration file")
	bucket := flags.String("bucket", "", "default bucket for URIs without one (and catalog bucket)")
	prefix := flags.String("prefix", "", "catalog key prefix for ls")
	region := flags.String("region", "", "AWS region")
	endpoint := flags.String("endpoint", "", "custom S3 endpoint (MinIO, LocalStack, R2)")
	pathStyle := flags.Bool("path-style", false, "use path-style addressing")
	blockSize := flags.Int("block-size", 0, "cache block size in bytes")
	cacheSize := flags.Int("cache-size", 0, "cache capacity in bytes")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn, error")
	logFormat := flags.String("log-format", "", "log format: text or json")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command: ls, stat, header, or read")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, flags, *bucket, *prefix, *region, *endpoint, *pathStyle, *blockSize, *cacheSize, *logLevel, *logFormat)

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	ctx := context.Background()

	clientCfg := s3vfs.ClientConfig{
		Region:       cfg.S3.Region,
		Endpoint:     cfg.S3.Endpoint,
		UsePathStyle: cfg.S3.UsePathStyle,
	}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		clientCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	}
	client, err := s3vfs.NewClient(ctx, clientCfg)
	if err != nil {
		return fmt.Errorf("creating S3 client: %w", err)
	}

	fetcher, err := s3vfs.New(client, s3vfs.Config{Logger: logger})
	if err != nil {
		return err
	}

	fs, err := vfs.New(fetcher,
		vfs.WithDefaultBucket(cfg.Catalog.Bucket),
		vfs.WithBlockSize(cfg.Cache.BlockSize),
		vfs.WithCacheCapacity(cfg.Cache.CapacityBytes),
		vfs.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	switch args[0] {
	case "ls":
		return runLs(ctx, fetcher, cfg)
	case "stat":
		if len(args) != 2 {
			return fmt.Errorf("usage: stat <uri>")
		}
		return runStat(ctx, fs, args[1])
	case "header":
		if len(args) != 2 {
			return fmt.Errorf("usage: header <uri>")
		}
		return runHeader(ctx, fs, args[1])
	case "read":
		if len(args) != 4 {
			return fmt.Errorf("usage: read <uri> <offset> <length>")
		}
		return runRead(ctx, fs, args[1], args[2], args[3])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// applyFlagOverrides overlays explicitly-set flags on the loaded config.
func applyFlagOverrides(cfg *config.Config, flags *pflag.FlagSet, bucket, prefix, region, endpoint string, pathStyle bool, blockSize, cacheSize int, logLevel, logFormat string) {
	if bucket != "" {
		cfg.Catalog.Bucket = bucket
	}
	if prefix != "" {
		cfg.Catalog.Prefix = prefix
	}
	if region != "" {
		cfg.S3.Region = region
	}
	if endpoint != "" {
		cfg.S3.Endpoint = endpoint
	}
	if flags.Changed("path-style") {
		cfg.S3.UsePathStyle = pathStyle
	}
	if blockSize > 0 {
		cfg.Cache.BlockSize = blockSize
	}
	if cacheSize > 0 {
		cfg.Cache.CapacityBytes = cacheSize
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
}

// runLs lists the databases under the catalog bucket and prefix.
func runLs(ctx context.Context, fetcher *s3vfs.Fetcher, cfg *config.Config) error {
	catalog, err := vfs.NewCatalog(fetcher, cfg.Catalog.Bucket, cfg.Catalog.Prefix)
	if err != nil {
		return err
	}

	names, err := catalog.Databases(ctx)
	if err != nil {
		return err
	}

	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]string{
			"database": name,
			"uri":      catalog.URI(name),
		})
	}
	return printJSON(out)
}

// runStat probes a database object and prints its metadata.
func runStat(ctx context.Context, fs *vfs.VFS, uri string) error {
	f, err := fs.Open(ctx, uri, vfs.OpenReadOnly)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	size, err := f.Size()
	if err != nil {
		return err
	}

	canonical, err := fs.FullPathname(uri)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"uri":  canonical,
		"size": size,
	})
}

// runHeader reads and prints the SQLite database header.
func runHeader(ctx context.Context, fs *vfs.VFS, uri string) error {
	f, err := fs.Open(ctx, uri, vfs.OpenReadOnly)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	hdr, err := vfs.ReadHeader(ctx, f)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"page_size":      hdr.PageSize,
		"page_count":     hdr.PageCount,
		"read_version":   hdr.ReadVersion,
		"write_version":  hdr.WriteVersion,
		"text_encoding":  hdr.TextEncoding,
		"freelist_pages": hdr.FreelistPages,
	})
}

// runRead reads a byte range and prints it as hex.
func runRead(ctx context.Context, fs *vfs.VFS, uri, offsetArg, lengthArg string) error {
	offset, err := strconv.ParseInt(offsetArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", offsetArg, err)
	}
	length, err := strconv.ParseInt(lengthArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", lengthArg, err)
	}

	f, err := fs.Open(ctx, uri, vfs.OpenReadOnly)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, length)
	n, err := f.ReadAt(ctx, buf, offset)
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"offset": offset,
		"bytes":  n,
		"hex":    fmt.Sprintf("%x", buf[:n]),
	})
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
