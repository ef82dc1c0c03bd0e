package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const mediaURLTTL = time.Hour

// BlobStore is the media storage contract: upload a blob under a path, get
// a URL back for it later.
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, blob []byte) error
	PublicURL(ctx context.Context, path string) (string, error)
}

// MediaService stores message attachments (images, voice notes) in S3.
type MediaService struct {
	client *s3.Client
	bucket string
}

type MediaConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

func NewMediaService(ctx context.Context, cfg MediaConfig) (*MediaService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &MediaService{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

// Upload writes the blob under path. Paths are caller-generated, typically
// <sender>/<timestamp>_<name>.
func (m *MediaService) Upload(ctx context.Context, path, contentType string, blob []byte) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("uploading to S3: %w", err)
	}
	return nil
}

// PublicURL returns a presigned GET URL for the stored blob, valid for an
// hour. The bucket stays private.
func (m *MediaService) PublicURL(ctx context.Context, path string) (string, error) {
	presign := s3.NewPresignClient(m.client)
	req, err := presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(path),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = mediaURLTTL
	})
	if err != nil {
		return "", fmt.Errorf("presigning URL: %w", err)
	}
	return req.URL, nil
}

// MediaPath builds the canonical storage path for an upload.
func MediaPath(senderID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%d_%s", senderID, time.Now().Unix(), filename)
}
