// Package archive copies finished artifacts to an S3-compatible bucket.
// Archiving is best effort: the pipeline logs a failed upload and still
// reports the job as successful.
package archive

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/afero"

	"github.com/backmassage/voicediary/internal/config"
)

// Publisher uploads one local file under an object key.
type Publisher interface {
	Publish(ctx context.Context, key, localPath string) error
}

// ObjectKey returns the bucket key for an artifact: videos/{id}.mp4 for
// videos and journal/{YYYY-MM-DD}.md for journal documents. Journal keys
// come from the document name, so every upload of a day replaces the last.
func ObjectKey(mode config.Mode, jobID, localPath string) string {
	if mode == config.ModeTranscription {
		return path.Join("journal", filepath.Base(localPath))
	}
	return path.Join("videos", jobID+".mp4")
}

// ContentType returns the MIME type stored with an object.
func ContentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp4":
		return "video/mp4"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// MinIO publishes to a bucket through minio-go.
type MinIO struct {
	client *minio.Client
	bucket string
	fs     afero.Fs
}

// NewMinIO connects to cfg.Endpoint and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg config.ArchiveConfig, fsys afero.Fs) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("archive client for %s: %w", cfg.Endpoint, err)
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
	return &MinIO{client: client, bucket: cfg.Bucket, fs: fsys}, nil
}

// Bucket returns the target bucket name.
func (m *MinIO) Bucket() string { return m.bucket }

// Publish implements [Publisher].
func (m *MinIO) Publish(ctx context.Context, key, localPath string) error {
	f, err := m.fs.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, f, fi.Size(), minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("upload %s to %s/%s: %w", localPath, m.bucket, key, err)
	}
	return nil
}
