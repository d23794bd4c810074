// Package objectstore mirrors run files into an S3-compatible object store
// after a successful local save. Archival is best-effort: the local file is
// the durable copy, and upload failures are downgraded to warnings by the
// persistence coordinator.
package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store struct {
	client *minio.Client
	bucket string
}

func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the archive bucket when absent. Idempotent.
func (s *Store) EnsureBucket(ctx context.Context, region string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("object store not initialized")
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

// ArchiveFile uploads a run file under its base name.
func (s *Store) ArchiveFile(ctx context.Context, path string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("object store not initialized")
	}
	key := filepath.Base(path)
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if _, err := s.client.FPutObject(ctx, s.bucket, key, path, opts); err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
