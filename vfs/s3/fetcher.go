// Package s3 provides the S3-compatible range fetcher for the VFS.
//
// The fetcher supports AWS S3, MinIO, LocalStack, Cloudflare R2, and other
// S3-compatible object stores. It is strictly read-side: ranged GetObject
// for block fetches, HeadObject for size probes, and ListObjectsV2 for the
// catalog collaborator.
//
// Transient failures (throttling, 5xx, network errors) are retried with
// bounded exponential backoff inside the fetcher; construct clients with
// SDK retries disabled (see NewClient) so this is the only retry layer.
// All other failures map onto the vfs error taxonomy and propagate
// unchanged.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/MaTriXy/athena-sqlite/vfs"
	"github.com/MaTriXy/athena-sqlite/vfs/metrics"
)

// Retry defaults: 4 attempts total, exponential backoff from 50ms capped
// at 1s, with context-aware waits.
const (
	defaultMaxAttempts = 4
	defaultBackoffBase = 50 * time.Millisecond
	defaultBackoffCap  = time.Second
)

// maxFetchLength guards the int64 to int conversion on 32-bit platforms.
const maxFetchLength = int64(math.MaxInt)

// API defines the subset of the S3 client interface used by the fetcher.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the fetcher.
type Config struct {
	// MaxAttempts is the total request budget per operation, including the
	// first attempt. Default: 4.
	MaxAttempts int

	// BackoffBase is the first retry delay; each retry doubles it.
	// Default: 50ms.
	BackoffBase time.Duration

	// BackoffCap bounds the retry delay. Default: 1s.
	BackoffCap time.Duration

	// Logger receives retry warnings and fetch traffic at debug level.
	// Default: slog.Default().
	Logger *slog.Logger
}

// Fetcher implements vfs.Fetcher and vfs.Lister over an S3-compatible store.
type Fetcher struct {
	client      API
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	logger      *slog.Logger
}

// Interface checks.
var (
	_ vfs.Fetcher = (*Fetcher)(nil)
	_ vfs.Lister  = (*Fetcher)(nil)
)

// New creates a fetcher with the given client and configuration.
//
// The client must be pre-configured with credentials, region, and endpoint;
// use NewClient or the service presets in this package.
func New(client API, cfg Config) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.MaxAttempts < 0 || cfg.BackoffBase < 0 || cfg.BackoffCap < 0 {
		return nil, errors.New("s3: retry configuration must not be negative")
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Fetcher{
		client:      client,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		logger:      cfg.Logger,
	}, nil
}

// Fetch returns up to length bytes of the object starting at offset.
//
// The range is requested with an HTTP Range header, so only the requested
// span transfers. Fewer bytes come back only when the range crosses the end
// of the object; an offset at or beyond the end fails with
// vfs.ErrRangeUnsatisfiable.
func (f *Fetcher) Fetch(ctx context.Context, ref vfs.ObjectRef, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || length > maxFetchLength || offset > math.MaxInt64-length {
		return nil, fmt.Errorf("s3: fetch %s at %d+%d: %w", ref, offset, length, vfs.ErrRangeUnsatisfiable)
	}
	if length == 0 {
		return []byte{}, nil
	}

	// S3 Range header format: "bytes=start-end" (inclusive).
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	var data []byte
	err := f.do(ctx, "get", func(ctx context.Context) error {
		out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(ref.Bucket),
			Key:    aws.String(ref.Key),
			Range:  aws.String(rangeHeader),
		})
		if err != nil {
			return err
		}
		defer func() { _ = out.Body.Close() }()

		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("s3: fetch %s at %d+%d: %w", ref, offset, length, err)
	}

	metrics.FetchBytesTotal.Add(float64(len(data)))
	f.logger.Debug("s3: fetched range",
		"bucket", ref.Bucket,
		"key", ref.Key,
		"offset", offset,
		"bytes", len(data),
	)
	return data, nil
}

// Probe returns the object's size and ETag via HeadObject, without
// transferring the body.
func (f *Fetcher) Probe(ctx context.Context, ref vfs.ObjectRef) (vfs.ObjectInfo, error) {
	var info vfs.ObjectInfo
	err := f.do(ctx, "head", func(ctx context.Context) error {
		out, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(ref.Bucket),
			Key:    aws.String(ref.Key),
		})
		if err != nil {
			return err
		}
		info = vfs.ObjectInfo{
			Size: aws.ToInt64(out.ContentLength),
			ETag: aws.ToString(out.ETag),
		}
		return nil
	})
	if err != nil {
		return vfs.ObjectInfo{}, fmt.Errorf("s3: probe %s: %w", ref, err)
	}
	return info, nil
}

// ListKeys returns the keys directly under prefix (delimiter "/"), following
// pagination to completion.
func (f *Fetcher) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	var continuationToken *string

	for {
		var out *s3.ListObjectsV2Output
		err := f.do(ctx, "list", func(ctx context.Context) error {
			var err error
			out, err = f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				ContinuationToken: continuationToken,
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list %s/%s: %w", bucket, prefix, err)
		}

		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return keys, nil
}

// do runs op with the retry policy, mapping terminal failures onto the vfs
// error taxonomy. Only transient failures are retried; after the attempt
// budget is exhausted the last failure surfaces wrapped in vfs.ErrTransient.
func (f *Fetcher) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		metrics.FetchAttemptsTotal.WithLabelValues(op).Inc()
		start := time.Now()
		err := fn(ctx)
		metrics.FetchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}

		// Cancellation is the caller's decision, never retried or remapped.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if isNotFound(err) {
			return vfs.ErrNotFound
		}
		if isInvalidRange(err) {
			return vfs.ErrRangeUnsatisfiable
		}
		if !isTransient(err) {
			return err
		}

		lastErr = err
		if attempt == f.maxAttempts {
			break
		}

		delay := f.backoff(attempt)
		metrics.FetchRetriesTotal.WithLabelValues(op).Inc()
		f.logger.Warn("s3: transient failure, retrying",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %d attempts: %v", vfs.ErrTransient, f.maxAttempts, lastErr)
}

// backoff returns the delay before the next attempt: base doubled per
// attempt, capped.
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := f.backoffBase << (attempt - 1)
	if delay > f.backoffCap || delay <= 0 {
		delay = f.backoffCap
	}
	return delay
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isNotFound checks if an error indicates the object was not found.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "NoSuchBucket" || code == "404"
	}
	return false
}

// isInvalidRange checks if an error indicates a range starting beyond EOF.
func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "InvalidRange" || code == "416"
	}
	return false
}

// isTransient checks if an error is worth retrying. API errors are matched
// by throttling and server-fault codes; anything that is not an API error
// (connection resets, truncated bodies) is treated as transient.
func isTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
			"InternalError", "ServiceUnavailable", "500", "503":
			return true
		}
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Call counters for test assertions
	GetObjectCalls     int
	HeadObjectCalls    int
	ListObjectsV2Calls int

	// FailGetObjectCalls causes the next N GetObject calls to return
	// GetObjectErr before touching stored objects. Set GetObjectErr to a
	// transient code to exercise the retry path.
	FailGetObjectCalls int
	GetObjectErr       error

	// FailHeadObjectCalls causes the next N HeadObject calls to return
	// HeadObjectErr.
	FailHeadObjectCalls int
	HeadObjectErr       error

	// PageSize truncates ListObjectsV2 responses to exercise pagination.
	// 0 means everything in one page.
	PageSize int
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string][]byte),
	}
}

// PutObject stores an object in the mock. Not part of API; the fetcher has
// no write path, so tests seed state directly.
func (m *MockS3Client) PutObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// ResetCounts resets call counters for test isolation.
func (m *MockS3Client) ResetCounts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetObjectCalls = 0
	m.HeadObjectCalls = 0
	m.ListObjectsV2Calls = 0
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.GetObjectCalls++
	if m.FailGetObjectCalls > 0 {
		m.FailGetObjectCalls--
		err := m.GetObjectErr
		m.mu.Unlock()
		return nil, err
	}
	data, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NoSuchKey{}
	}

	if params.Range != nil {
		rangeStr := aws.ToString(params.Range)
		var start, end int64
		_, _ = fmt.Sscanf(rangeStr, "bytes=%d-%d", &start, &end)

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange", message: "range start beyond object size"}
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(params.Key)

	m.mu.Lock()
	m.HeadObjectCalls++
	if m.FailHeadObjectCalls > 0 {
		m.FailHeadObjectCalls--
		err := m.HeadObjectErr
		m.mu.Unlock()
		return nil, err
	}
	data, exists := m.objects[key]
	m.mu.Unlock()

	if !exists {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(fmt.Sprintf(`"mock-%d"`, len(data))),
	}, nil
}

// ListObjectsV2 implements API.ListObjectsV2 for testing. Supports Prefix,
// Delimiter ("/"), and continuation-token pagination.
func (m *MockS3Client) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)
	after := aws.ToString(params.ContinuationToken)

	m.mu.Lock()
	m.ListObjectsV2Calls++
	var all []string
	for key := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if delimiter != "" && strings.Contains(strings.TrimPrefix(key, prefix), delimiter) {
			continue
		}
		all = append(all, key)
	}
	m.mu.Unlock()

	// Deterministic order for pagination.
	sort.Strings(all)

	start := 0
	if after != "" {
		for i, k := range all {
			if k > after {
				start = i
				break
			}
			start = i + 1
		}
	}

	page := all[start:]
	truncated := false
	if m.PageSize > 0 && len(page) > m.PageSize {
		page = page[:m.PageSize]
		truncated = true
	}

	var contents []types.Object
	for _, k := range page {
		contents = append(contents, types.Object{Key: aws.String(k)})
	}

	out := &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(truncated),
	}
	if truncated {
		out.NextContinuationToken = aws.String(page[len(page)-1])
	}
	return out, nil
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}
