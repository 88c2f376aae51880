// Package s3 serves a blobcache table from an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/IvanBrykalov/blobcache/remote"
)

// Store implements remote.Store and remote.Deleter on one bucket. The
// table name is the bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// Option configures a Store.
type Option func(*options)

type options struct {
	client *minio.Client
	region string
}

// WithClient uses an existing client instead of building one from the
// table config.
func WithClient(c *minio.Client) Option {
	return func(o *options) { o.client = c }
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// New validates cfg and builds a store. cfg.Endpoint is the S3 URL
// (scheme selects TLS), cfg.Auth is "accessKey:secretKey" and cfg.Table is
// the bucket.
func New(cfg remote.TableConfig, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	client := o.client
	if client == nil {
		access, secret, ok := strings.Cut(cfg.Auth, ":")
		if !ok || access == "" || secret == "" {
			return nil, &remote.ConfigError{Field: "Auth", Reason: `must be "accessKey:secretKey"`}
		}
		u, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
		if err != nil {
			return nil, &remote.ConfigError{Field: "Endpoint", Reason: err.Error()}
		}
		if u.Path != "" && u.Path != "/" {
			return nil, &remote.ConfigError{Field: "Endpoint", Reason: "must not carry a path"}
		}
		client, err = minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(access, secret, ""),
			Secure: u.Scheme == "https",
			Region: o.region,
		})
		if err != nil {
			return nil, &remote.ConfigError{Field: "Endpoint", Reason: err.Error()}
		}
	}
	return &Store{client: client, bucket: cfg.Table}, nil
}

// Fetch downloads the object stored under key.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate("get", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; errors such as NoSuchKey surface on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate("get", key, err)
	}
	return data, nil
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return translate("put", key, err)
	}
	return nil
}

// Delete removes key. S3 treats deleting an absent key as success.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translate("delete", key, err)
	}
	return nil
}

// translate maps S3 error responses onto the remote taxonomy.
func translate(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" && op == "get" {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, key)
	}
	return &remote.TransportError{Op: op, Key: key, StatusCode: resp.StatusCode, Err: err}
}

var (
	_ remote.Store   = (*Store)(nil)
	_ remote.Deleter = (*Store)(nil)
)
