// Package media mirrors generated thumbnails into MinIO and hands out
// presigned download URLs for them.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/princekumarofficial/video-service/internal/config"
)

const (
	thumbnailPrefix      = "thumbnails/"
	thumbnailContentType = "image/jpeg"
	defaultRegion        = "us-east-1"
)

var ErrDisabled = errors.New("object storage is not configured")

type Service struct {
	client     *minio.Client
	bucketName string
	presignTTL time.Duration
}

// NewService connects to MinIO and makes sure the bucket exists.
func NewService(ctx context.Context, cfg config.MinIO) (*Service, error) {
	if cfg.Endpoint == "" {
		return nil, ErrDisabled
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: defaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	service := &Service{
		client:     client,
		bucketName: cfg.BucketName,
		presignTTL: ttl,
	}

	if err := service.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return service, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: defaultRegion})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ThumbnailKey is the object key of a video's thumbnail.
func ThumbnailKey(videoID string) string {
	return thumbnailPrefix + videoID + ".jpg"
}

// PublishThumbnail uploads the local thumbnail file.
func (s *Service) PublishThumbnail(ctx context.Context, videoID, localPath string) error {
	_, err := s.client.FPutObject(ctx, s.bucketName, ThumbnailKey(videoID), localPath, minio.PutObjectOptions{
		ContentType: thumbnailContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload thumbnail: %w", err)
	}
	return nil
}

// PresignedThumbnailURL returns a time-limited GET URL for the thumbnail.
func (s *Service) PresignedThumbnailURL(ctx context.Context, videoID string) (*url.URL, error) {
	return s.client.PresignedGetObject(ctx, s.bucketName, ThumbnailKey(videoID), s.presignTTL, nil)
}

// DeleteThumbnail removes the mirrored thumbnail; a missing object is not an error.
func (s *Service) DeleteThumbnail(ctx context.Context, videoID string) error {
	return s.client.RemoveObject(ctx, s.bucketName, ThumbnailKey(videoID), minio.RemoveObjectOptions{})
}
