package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOConfig configures the report archive bucket.
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
}

// Enabled reports whether an endpoint is configured.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Archived locates a stored report.
type Archived struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	// URL is a presigned download link, empty when presigning is off.
	URL string `json:"url,omitempty"`
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// MinIOArchiver writes weekly reports as JSON objects.
type MinIOArchiver struct {
	client objectStore
	bucket string
	expiry time.Duration
	logger *zap.Logger
}

// NewMinIOArchiver connects to MinIO and creates the bucket if it is
// missing.
func NewMinIOArchiver(ctx context.Context, cfg MinIOConfig, logger *zap.Logger) (*MinIOArchiver, error) {
	if !cfg.Enabled() || cfg.BucketName == "" {
		return nil, fmt.Errorf("minio archive needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newArchiver(ctx, client, cfg, logger)
}

func newArchiver(ctx context.Context, client objectStore, cfg MinIOConfig, logger *zap.Logger) (*MinIOArchiver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("reports").With(zap.String("bucket", cfg.BucketName))

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		logger.Info("creating report bucket")
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.BucketName, err)
		}
	}
	return &MinIOArchiver{
		client: client,
		bucket: cfg.BucketName,
		expiry: cfg.PresignExpiry,
		logger: logger,
	}, nil
}

// Archive stores r under ObjectKey and returns its location. A report for
// the same child and week overwrites the previous one.
func (a *MinIOArchiver) Archive(ctx context.Context, r WeeklyReport) (Archived, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return Archived{}, fmt.Errorf("encode report: %w", err)
	}
	key := ObjectKey(r.ChildID, r.Week.EndDate)

	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return Archived{}, fmt.Errorf("upload %s: %w", key, err)
	}
	out := Archived{Bucket: a.bucket, Key: key, Size: info.Size}

	if a.expiry > 0 {
		u, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.expiry, nil)
		if err != nil {
			a.logger.Warn("presign failed", zap.String("key", key), zap.Error(err))
		} else {
			out.URL = u.String()
		}
	}
	a.logger.Info("weekly report archived", zap.String("child_id", r.ChildID), zap.String("key", key))
	return out, nil
}
