// Package assets implements content-addressed binary storage for email
// images and their derived variants.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"mailroom/internal/config"
	"mailroom/internal/constants"
)

type PutResult struct {
	StorageKey string
	Size       int64
}

// Store is the storage driver contract. Writes to the same key replace
// content; keys are content-derived, so a concurrent duplicate write is
// byte-identical and harmless.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (*PutResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// URL produces a fetchable URL for the key. The s3 driver pre-signs
	// with the given TTL; the disk driver returns an application-served
	// URL whose access control is the token layer, not the URL itself.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Driver() string
}

type DiskStore struct {
	root          string
	publicBaseURL string
}

func NewDiskStore(cfg config.StorageConfig) *DiskStore {
	return &DiskStore{
		root:          cfg.Disk.Root,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (s *DiskStore) Driver() string {
	return constants.StorageDriverDisk
}

func (s *DiskStore) Put(ctx context.Context, key, contentType string, data []byte) (*PutResult, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}

	return &PutResult{StorageKey: key, Size: int64(len(data))}, nil
}

func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *DiskStore) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.publicBaseURL + "/storage/" + key, nil
}

type S3Store struct {
	client *minio.Client
	bucket string
}

func NewS3Store(client *minio.Client, cfg config.S3Config) *S3Store {
	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
	}
}

func (s *S3Store) Driver() string {
	return constants.StorageDriverS3
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (*PutResult, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return &PutResult{StorageKey: key, Size: int64(len(data))}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}
