// Package archive keeps a copy of every ingested résumé file in
// S3-compatible object storage, keyed by candidate id.
package archive

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

// Archive stores original documents.
type Archive interface {
	// Put uploads the file at localPath as the original of candidate id.
	Put(ctx context.Context, id, filename, localPath string) error
	// Delete removes every object stored for candidate id.
	Delete(ctx context.Context, id string) error
	// Clear removes every archived document.
	Clear(ctx context.Context) error
	Enabled() bool
}

// New returns a MinIO archive when cfg.Enabled, otherwise a no-op.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *errors.Logger) (Archive, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "Invalid archive configuration", err)
	}

	store := NewMinIO(client, cfg.Bucket, cfg.Prefix, logger)
	if err := store.ensureBucket(ctx); err != nil {
		return nil, errors.NewDependencyError(errors.ErrCodeDependencyUnavailable,
			"Document archive unavailable", err).WithContext("endpoint", cfg.Endpoint)
	}
	return store, nil
}

// Noop discards everything.
type Noop struct{}

func (Noop) Put(context.Context, string, string, string) error { return nil }
func (Noop) Delete(context.Context, string) error               { return nil }
func (Noop) Clear(context.Context) error                        { return nil }
func (Noop) Enabled() bool                                      { return false }

// MinIO archives documents in a bucket under prefix/<id>/<filename>.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
	logger *errors.Logger
}

var _ Archive = (*MinIO)(nil)

func NewMinIO(client *minio.Client, bucket, prefix string, logger *errors.Logger) *MinIO {
	return &MinIO{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return err
	}
	m.logger.Info("Created archive bucket", "bucket", m.bucket)
	return nil
}

func (m *MinIO) candidatePrefix(id string) string {
	return path.Join(m.prefix, id) + "/"
}

func (m *MinIO) Put(ctx context.Context, id, filename, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	key := m.candidatePrefix(id) + path.Base(filepath.ToSlash(filename))
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, file, info.Size(), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"candidate-id": id},
	})
	if err != nil {
		return errors.NewDependencyError(errors.ErrCodeArchiveFailed,
			fmt.Sprintf("Failed to archive %s", filename), err)
	}
	return nil
}

func (m *MinIO) Delete(ctx context.Context, id string) error {
	return m.removePrefix(ctx, m.candidatePrefix(id))
}

func (m *MinIO) Clear(ctx context.Context) error {
	prefix := m.prefix
	if prefix != "" {
		prefix = path.Clean(prefix) + "/"
	}
	return m.removePrefix(ctx, prefix)
}

func (m *MinIO) removePrefix(ctx context.Context, prefix string) error {
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return obj.Err
		}
		err := m.client.RemoveObject(ctx, m.bucket, obj.Key, minio.RemoveObjectOptions{})
		if err != nil {
			code := minio.ToErrorResponse(err).Code
			if code == "NoSuchKey" || code == "NotFound" {
				continue
			}
			return err
		}
	}
	return nil
}

func (m *MinIO) Enabled() bool { return true }
