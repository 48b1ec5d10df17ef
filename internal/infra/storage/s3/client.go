package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"propchat/internal/app/transcripts"
)

const defaultLinkTTL = 24 * time.Hour

// Client stores transcripts in a private S3-compatible bucket and hands out
// presigned download links.
type Client struct {
	bucket         string
	linkTTL        time.Duration
	client         *minio.Client
	signer         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

type Options struct {
	Endpoint       string
	PublicEndpoint string
	UseSSL         bool
	AccessKey      string
	SecretKey      string
	Bucket         string
	LinkTTL        time.Duration
}

// NewClient configures an uploader using the provided endpoint and credentials.
// Links are signed against PublicEndpoint so they resolve outside the cluster.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	creds := credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), "")

	client, err := minio.New(parseEndpoint(endpoint), &minio.Options{Creds: creds, Secure: opts.UseSSL})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	signer := client
	if public := strings.TrimSpace(opts.PublicEndpoint); public != "" && public != endpoint {
		signer, err = minio.New(parseEndpoint(public), &minio.Options{
			Creds:  creds,
			Secure: strings.HasPrefix(public, "https://") || opts.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: create signer: %w", err)
		}
	}
	ttl := opts.LinkTTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	return &Client{
		bucket:  bucket,
		linkTTL: ttl,
		client:  client,
		signer:  signer,
		logger:  logger,
	}, nil
}

// Upload stores the content and returns a presigned GET link.
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, contentType string) (string, error) {
	if reader == nil {
		return "", errors.New("s3: reader is required")
	}
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("s3: object key is required")
	}
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := c.client.PutObject(ctx, c.bucket, key, reader, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	link, err := c.signer.PresignedGetObject(ctx, c.bucket, key, c.linkTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("s3: presign: %w", err)
	}
	if c.logger != nil {
		c.logger.Info("s3 upload completed", "bucket", c.bucket, "key", key, "size", info.Size)
	}
	return link.String(), nil
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("s3: ping: %w", err)
	}
	return nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.bucketInitOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return c.bucketInitErr
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ transcripts.Uploader = (*Client)(nil)
