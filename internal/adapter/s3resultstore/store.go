// Package s3resultstore implements the resultstore.Store port over
// S3/MinIO, offloading result pickles that exceed
// resultstore.InlineThresholdBytes (§2.2).
package s3resultstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the S3/MinIO-backed implementation of resultstore.Store.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config holds S3/MinIO connection configuration.
type Config struct {
	// Endpoint for MinIO (e.g. "minio.grid.svc:9000"); leave empty for AWS S3.
	Endpoint string

	Bucket string
	Region string

	AccessKeyID     string
	SecretAccessKey string

	UseSSL bool

	// Prefix is prepended to every object key (e.g. "results/").
	Prefix string
}

// New creates a Store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3resultstore: bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3resultstore: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// Put uploads data under key and returns an "s3://bucket/key" reference.
func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	fullKey := s.fullKey(key)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("application/octet-stream"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3resultstore: put %s: %w", fullKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, fullKey), nil
}

// Get downloads the blob referenced by ref (an "s3://bucket/key" URI).
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	key, err := extractKey(s.bucket, ref)
	if err != nil {
		return nil, fmt.Errorf("s3resultstore: %w", err)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3resultstore: get %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3resultstore: read %s: %w", key, err)
	}
	return data, nil
}

func extractKey(bucket, ref string) (string, error) {
	trimmed := strings.TrimPrefix(ref, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[0] != bucket {
		return "", fmt.Errorf("malformed or foreign result ref %q", ref)
	}
	return parts[1], nil
}
