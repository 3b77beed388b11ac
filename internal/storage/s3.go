// Package storage publishes catalog snapshots to an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrBucketRequired indicates the object store has not been configured.
var ErrBucketRequired = errors.New("s3 storage: bucket is required")

// Config describes the target bucket.
type Config struct {
	Bucket        string
	Endpoint      string
	Region        string
	PublicBaseURL string
}

// Uploader is the part of manager.Uploader the storage needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Storage writes public objects into a single bucket.
type S3Storage struct {
	uploader Uploader
	bucket   string
	baseURL  string
}

// NewS3Storage configures an uploader targeting the provided object store.
// Credentials come from the default AWS chain.
func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrBucketRequired
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return NewS3StorageWithUploader(uploader, cfg)
}

// NewS3StorageWithUploader builds the storage on top of an existing uploader.
func NewS3StorageWithUploader(uploader Uploader, cfg Config) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrBucketRequired
	}
	if uploader == nil {
		return nil, errors.New("s3 storage: uploader is required")
	}
	return &S3Storage{
		uploader: uploader,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Save uploads r under name and returns its public location, or the bare key
// when no public base URL is configured.
func (s *S3Storage) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	key := strings.TrimLeft(name, "/")
	if key == "" {
		return "", fmt.Errorf("s3 storage: empty key")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   manager.ReadSeekCloser(r),
		ACL:    s3types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}

	if s.baseURL == "" {
		return key, nil
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key), nil
}
