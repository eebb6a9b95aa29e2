package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/internal/pkg/env"
)

// S3Config holds the object storage settings for the s3 driver.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
	PublicURL       string
	KeyPrefix       string
}

// LoadS3Config loads the s3 driver configuration from environment variables.
func LoadS3Config() (*S3Config, error) {
	cfg := &S3Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "ap-southeast-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicURL:       env.GetEnv("S3_PUBLIC_URL", ""),
		KeyPrefix:       strings.Trim(env.GetEnv("S3_KEY_PREFIX", ""), "/"),
	}

	if cfg.AccessKeyID == "" {
		return nil, errors.New("S3_ACCESS_KEY_ID is required when STORAGE_DRIVER=s3")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("S3_SECRET_ACCESS_KEY is required when STORAGE_DRIVER=s3")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("S3_BUCKET_NAME is required when STORAGE_DRIVER=s3")
	}
	return cfg, nil
}

// ObjectKey maps a canonical path to the bucket key.
func (c *S3Config) ObjectKey(canonicalPath string) string {
	if c.KeyPrefix == "" {
		return canonicalPath
	}
	return path.Join(c.KeyPrefix, canonicalPath)
}

// S3Backend stores artifacts in an S3-compatible bucket.
type S3Backend struct {
	client *s3.Client
	cfg    *S3Config
}

func NewS3Backend(ctx context.Context, cfg *S3Config) (*S3Backend, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	b := &S3Backend{client: client, cfg: cfg}
	if err := b.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Artifact] S3 backend ready for bucket: %s", cfg.BucketName)
	return b, nil
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.cfg.BucketName),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", b.cfg.BucketName, err)
	}
	return nil
}

func (b *S3Backend) Put(ctx context.Context, canonicalPath string, body io.ReadSeeker, size int64, contentType string) error {
	key := b.cfg.ObjectKey(canonicalPath)
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek body: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.BucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			"upload-source": "pmb-intake",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debugf("[Artifact] Uploaded s3://%s/%s (%d bytes)", b.cfg.BucketName, key, size)
	return nil
}

// Delete relies on DeleteObject being idempotent for missing keys.
func (b *S3Backend) Delete(ctx context.Context, canonicalPath string) error {
	key := b.cfg.ObjectKey(canonicalPath)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (b *S3Backend) URL(canonicalPath string) string {
	key := b.cfg.ObjectKey(canonicalPath)
	base := strings.TrimRight(b.cfg.PublicURL, "/")
	if base == "" {
		if b.cfg.EndpointURL != "" {
			base = strings.TrimRight(b.cfg.EndpointURL, "/") + "/" + b.cfg.BucketName
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", b.cfg.BucketName, b.cfg.Region)
		}
	}
	u, err := url.JoinPath(base, key)
	if err != nil {
		return base + "/" + key
	}
	return u
}
