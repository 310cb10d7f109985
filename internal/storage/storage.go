// Package storage wraps MinIO/S3 access for uploaded media and worker-written
// transcripts. The browser uploads straight to storage via presigned PUT URLs;
// the server itself only ever reads transcripts and deletes objects.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the storage surface the services depend on.
type ObjectStore interface {
	PresignUpload(ctx context.Context, objectKey, contentType string, expiry time.Duration) (string, error)
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
	PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
	Bucket() string
}

// Config carries the S3/MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Storage implements ObjectStore on a MinIO client.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO-backed store.
func New(cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.bucket
}

// EnsureBucket makes sure the bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PresignUpload returns a signed PUT URL the browser uploads against.
func (s *Storage) PresignUpload(ctx context.Context, objectKey, contentType string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign upload %s: %w", objectKey, err)
	}
	_ = contentType // enforced client-side; presigned PUT does not pin it
	return u.String(), nil
}

// PresignDownload returns a signed GET URL.
func (s *Storage) PresignDownload(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// GetObject fetches an object's bytes.
func (s *Storage) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	return buf, nil
}

// PutObject uploads data under objectKey.
func (s *Storage) PutObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

// RemoveObject deletes an object. Missing objects are not an error.
func (s *Storage) RemoveObject(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}
