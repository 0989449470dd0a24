// Package storage issues time-limited download URLs for message
// attachments. Clients upload directly to the object store through the
// portal's upload flow; this service only resolves the stored keys that
// ride along on messages.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"carelink-backend/pkg/constants"
)

// Config holds object store connection settings
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AttachmentService presigns download URLs for attachment object keys
type AttachmentService struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

func NewAttachmentService(cfg *Config) (*AttachmentService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &AttachmentService{
		client: client,
		bucket: cfg.Bucket,
		expiry: constants.PresignedURLExpiry,
	}, nil
}

// PresignDownload returns a time-limited download URL for one key.
func (s *AttachmentService) PresignDownload(ctx context.Context, key string) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return presigned.String(), nil
}

// PresignAll maps attachment keys to download URLs, preserving order.
func (s *AttachmentService) PresignAll(ctx context.Context, keys []string) ([]string, error) {
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		presigned, err := s.PresignDownload(ctx, key)
		if err != nil {
			return nil, err
		}
		urls = append(urls, presigned)
	}
	return urls, nil
}
