// Package archive uploads evidentiary audit exports to S3-compatible object
// storage and hands out presigned download URLs for evidence delivery.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ContentTypeJSON is the content type stored for archived exports.
const ContentTypeJSON = "application/json"

// ArchiveResult describes a completed archival: where the export landed and a
// time-limited URL for retrieving it.
type ArchiveResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service archives audit trail exports to a bucket.
type Service struct {
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	urlExpiry     time.Duration
	timeNow       func() time.Time // For testability
}

// ServiceConfig holds configuration for the archive service.
type ServiceConfig struct {
	BucketName       string
	AccessKeyID      string
	SecretAccessKey  string
	Endpoint         string
	URLExpiryMinutes int // Default: 15 minutes
}

// NewService creates a new archive service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 15
	}

	// S3-compatible configuration: works against R2, MinIO, or AWS proper.
	s3Client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Service{
		s3Client:      s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		urlExpiry:     time.Duration(cfg.URLExpiryMinutes) * time.Minute,
		timeNow:       time.Now,
	}, nil
}

// ObjectKey builds the bucket key for a document's export. A UUID suffix
// keeps repeated archivals of the same document from overwriting each other;
// every archived export is itself evidence of what the trail looked like at
// that moment.
func ObjectKey(documentID int64) string {
	return fmt.Sprintf("audit-exports/%d/AuditTrail_QSL-%06d-%s.json", documentID, documentID, uuid.New().String())
}

// ArchiveExport uploads the export document and returns the bucket key plus a
// presigned GET URL for retrieval.
func (s *Service) ArchiveExport(ctx context.Context, documentID int64, export []byte) (*ArchiveResult, error) {
	key := ObjectKey(documentID)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(export),
		ContentType:   aws.String(ContentTypeJSON),
		ContentLength: aws.Int64(int64(len(export))),
	})
	if err != nil {
		return nil, fmt.Errorf("upload export to bucket: %w", err)
	}

	presignedReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("presign export download: %w", err)
	}

	return &ArchiveResult{
		Key:       key,
		URL:       presignedReq.URL,
		ExpiresAt: s.timeNow().Add(s.urlExpiry),
	}, nil
}
