// Package storage serves lesson supplementary materials from
// S3-compatible object storage. Files are never streamed through the
// API; members download via short-lived presigned URLs.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/andersonlima/membergate/backend/internal/config"
)

// Presigner issues download URLs for stored objects
type Presigner interface {
	PresignDownload(ctx context.Context, key string) (string, time.Duration, error)
}

// StorageService handles S3/MinIO operations for lesson materials
type StorageService struct {
	client             *s3.Client
	presignClient      *s3.PresignClient
	bucket             string
	presignedURLExpiry time.Duration
}

// NewStorageService creates a storage service against S3 or MinIO
func NewStorageService(cfg *config.StorageConfig) (*StorageService, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}

	var endpointURL string
	if strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://") {
		endpointURL = cfg.Endpoint
	} else {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + cfg.Endpoint
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true, // MinIO requires path-style addressing
	})

	expiry := cfg.PresignedURLExpiry
	if expiry == 0 {
		expiry = 15 * time.Minute
	}

	return &StorageService{
		client:             client,
		presignClient:      s3.NewPresignClient(client),
		bucket:             cfg.Bucket,
		presignedURLExpiry: expiry,
	}, nil
}

// PresignDownload generates a presigned GET URL for a material's
// storage key. The URL expires after the configured duration.
func (s *StorageService) PresignDownload(ctx context.Context, key string) (string, time.Duration, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignedURLExpiry))
	if err != nil {
		return "", 0, fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return req.URL, s.presignedURLExpiry, nil
}

// DeleteObject removes a single material from storage
func (s *StorageService) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// Bucket returns the configured bucket name
func (s *StorageService) Bucket() string {
	return s.bucket
}
