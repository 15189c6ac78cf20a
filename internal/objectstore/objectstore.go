// Package objectstore uploads run outputs to an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"lofi/internal/config"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Client is a minio client bound to one bucket.
type Client struct {
	client *minio.Client
	bucket string
	region string
}

// Validate checks the settings needed to reach the bucket.
func Validate(cfg config.ObjectStore) error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("object_store.endpoint is required")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return fmt.Errorf("object_store.endpoint must not include scheme: %q", cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return errors.New("object_store.bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return errors.New("object_store credentials are required")
	}
	return nil
}

// New constructs a client from configuration.
func New(cfg config.ObjectStore) (*Client, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Client{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Bucket returns the bound bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Check reports whether the bucket is reachable and present.
func (c *Client) Check(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket missing: %s", c.bucket)
	}
	return nil
}

// PutFile uploads the file at path under key.
func (c *Client) PutFile(ctx context.Context, key, path, contentType string) (ObjectInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ObjectInfo{}, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return ObjectInfo{}, err
	}
	return c.put(ctx, key, f, stat.Size(), contentType)
}

// PutBytes uploads data under key.
func (c *Client) PutBytes(ctx context.Context, key string, data []byte, contentType string) (ObjectInfo, error) {
	return c.put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (c *Client) put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectInfo, error) {
	info, err := c.client.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  contentType,
		LastModified: info.LastModified,
	}, nil
}

// Stat returns metadata for key.
func (c *Client) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s: %w", key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
