package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gif-proxy/config"
)

// objectStore is the part of an S3 client the cache needs.
type objectStore interface {
	getObject(ctx context.Context, bucket, key string) (*CacheValue, error)
	putObject(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

// S3Cache is a second tier result cache in an S3 compatible bucket.
// The zero value and a nil *S3Cache are disabled caches.
type S3Cache struct {
	Enabled bool
	Bucket  string
	Prefix  string

	store objectStore
}

type S3Option func(*minio.Options)

// WithTransport overrides the HTTP transport used by the S3 client.
func WithTransport(rt http.RoundTripper) S3Option {
	return func(o *minio.Options) { o.Transport = rt }
}

// NewS3Cache connects to the configured bucket. It returns a disabled cache
// when no endpoint is configured.
func NewS3Cache(cfg config.S3Config, opts ...S3Option) (*S3Cache, error) {
	if !cfg.Enabled() {
		return &S3Cache{}, nil
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	for _, opt := range opts {
		opt(options)
	}

	client, err := minio.New(cfg.Endpoint, options)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3Cache{
		Enabled: true,
		Bucket:  cfg.Bucket,
		Prefix:  cfg.Prefix,
		store:   minioStore{client: client},
	}, nil
}

func (s *S3Cache) active() bool {
	return s != nil && s.Enabled && s.store != nil
}

// Get returns nil, nil when the key is not cached.
func (s *S3Cache) Get(ctx context.Context, key string) (*CacheValue, error) {
	if !s.active() {
		return nil, nil
	}
	return s.store.getObject(ctx, s.Bucket, s.objectKey(key))
}

func (s *S3Cache) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if !s.active() {
		return nil
	}
	return s.store.putObject(ctx, s.Bucket, s.objectKey(key), body, contentType)
}

// objectKey hashes cache keys, which embed source URLs, into safe object names.
func (s *S3Cache) objectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return s.Prefix + hex.EncodeToString(sum[:])
}

type minioStore struct {
	client *minio.Client
}

func (m minioStore) getObject(ctx context.Context, bucket, key string) (*CacheValue, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return &CacheValue{Body: body, ContentType: info.ContentType}, nil
}

func (m minioStore) putObject(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
