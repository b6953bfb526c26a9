package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig controls construction of the underlying S3 client.
type ClientConfig struct {
	// Region is the AWS region. Required; S3 compatibles usually accept
	// any value here.
	Region string

	// Endpoint overrides the service endpoint when talking to an
	// S3-compatible store rather than AWS itself.
	Endpoint string

	// UsePathStyle switches request addressing from virtual-hosted to
	// path style. Most self-hosted compatibles need it.
	UsePathStyle bool

	// Credentials overrides the default credential chain when non-nil.
	Credentials aws.CredentialsProvider
}

// NewClient builds an S3 client from cfg.
//
// SDK-internal retries are disabled: the Fetcher carries the only retry
// policy, so transient failures are not retried twice at different layers.
//
// Against AWS only Region is needed. Against a compatible store, set
// Endpoint, UsePathStyle, and static credentials, or use one of the
// presets below.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}

	if cfg.Credentials != nil {
		opts = append(opts, config.WithCredentialsProvider(cfg.Credentials))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// NewLocalStackClient builds a client against a local LocalStack instance
// on its default port, with the test/test credentials LocalStack accepts.
func NewLocalStackClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:4566",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

// NewMinIOClient builds a client against a local MinIO instance on its
// default port, with MinIO's out-of-the-box root credentials.
func NewMinIOClient(ctx context.Context) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("minioadmin", "minioadmin", ""),
	})
}

// NewR2Client builds a client for a Cloudflare R2 account. Pass the
// account ID and an R2 API token key pair.
func NewR2Client(
	ctx context.Context,
	accountID, accessKeyID, secretAccessKey string,
) (*s3.Client, error) {
	return NewClient(ctx, ClientConfig{
		Region:       "auto",
		Endpoint:     "https://" + accountID + ".r2.cloudflarestorage.com",
		UsePathStyle: false, // R2 supports virtual-hosted style
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	})
}
