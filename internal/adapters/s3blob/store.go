package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config locates the bucket and how its objects are addressed publicly.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string // custom endpoint, e.g. MinIO; enables path-style addressing
	PublicBaseURL string // overrides the virtual-hosted S3 URL
}

// Store implements ports.BlobStore on S3.
type Store struct {
	client API
	cfg    Config
}

// NewClient builds an S3 client from the default AWS credential chain.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New creates a Store.
func New(client API, cfg Config) *Store {
	return &Store{client: client, cfg: cfg}
}

// Upload writes data under key.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return nil
}

// URL returns the public URL of key.
func (s *Store) URL(ctx context.Context, key string) (string, error) {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key, nil
	case s.cfg.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key), nil
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key), nil
	}
}
