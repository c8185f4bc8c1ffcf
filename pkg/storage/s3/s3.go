// Package s3 lists and reads objects through the AWS SDK. It works against
// AWS as well as S3-compatible services such as LocalStack and MinIO.
package s3

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/visilake/edaproc/pkg/storage/object"
)

// Config configures a Client.
type Config struct {
	Region string

	// Endpoint replaces the AWS endpoint for S3-compatible services.
	Endpoint string

	// UsePathStyle addresses buckets as endpoint/bucket/key, as LocalStack
	// and MinIO expect.
	UsePathStyle bool

	// Static credentials. When unset the SDK default chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Timeouts. Zero means none: the scheduler owns the run deadline.
	ListTimeout time.Duration
	GetTimeout  time.Duration
}

// Client lists and reads objects.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a Client from cfg.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		cfg: cfg,
		client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.UsePathStyle
		}),
	}, nil
}

// Open starts a GetObject and returns the body with its content length.
// The request context lives until the body is closed.
func (c *Client) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.GetTimeout)

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, 0, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	return &cancelOnCloseReader{ReadCloser: out.Body, cancel: cancel}, aws.ToInt64(out.ContentLength), nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}

// List returns every object under prefix in bucket, following continuation
// tokens until the listing is complete.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]object.ObjectInfo, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.ListTimeout)
	defer cancel()

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var all []object.ObjectInfo
	pages := s3.NewListObjectsV2Paginator(c.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			all = append(all, object.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return all, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
