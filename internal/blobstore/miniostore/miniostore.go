// Package miniostore keeps grid artifacts in an S3-compatible bucket.
package miniostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mohammed-shakir/pvgrid-cache/internal/blobstore"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

// Config holds MinIO connection settings.
type Config struct {
	Endpoint  string // e.g. "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store implements blobstore.Store on MinIO.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects and creates the bucket when it is missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *Store) Exists(ctx context.Context, key blobstore.ObjectKey) (bool, error) {
	start := time.Now()
	_, err := s.client.StatObject(ctx, s.bucket, key.Key(), minio.StatObjectOptions{})
	observability.ObserveUpstreamLatency("minio", time.Since(start).Seconds())
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("minio stat %s: %w", key.Key(), err)
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, key blobstore.ObjectKey) ([]byte, error) {
	start := time.Now()
	defer func() { observability.ObserveUpstreamLatency("minio", time.Since(start).Seconds()) }()

	obj, err := s.client.GetObject(ctx, s.bucket, key.Key(), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("minio get %s: %w", key.Key(), err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; a missing key surfaces on first read
	b, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("minio read %s: %w", key.Key(), err)
	}
	return b, nil
}

func (s *Store) Put(ctx context.Context, key blobstore.ObjectKey, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, s.bucket, key.Key(), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: metadata(key),
	})
	observability.ObserveUpstreamLatency("minio", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("minio put %s: %w", key.Key(), err)
	}
	return nil
}

func metadata(key blobstore.ObjectKey) map[string]string {
	return map[string]string{
		"azimuth-res": strconv.Itoa(key.AzimuthRes),
		"slope-res":   strconv.Itoa(key.SlopeRes),
		"year":        strconv.Itoa(key.Year),
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
