package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/reelforge/api/internal/config"
)

// StorageClient mirrors generated artifacts into durable object storage.
// The lifecycle manager treats it as optional: without one, asset URLs keep
// pointing at the provider's CDN.
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	PublicURL(key string) string
}

// R2Storage stores project artifacts (keyframes, segment videos, voiceover
// audio, final cuts) in a Cloudflare R2 bucket via the S3 API.
type R2Storage struct {
	s3c       *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string
}

var errR2Incomplete = errors.New("r2: account id and key pair are required")

func NewR2Storage(cfg *config.R2Config) (*R2Storage, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errR2Incomplete
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(string, string, ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint}, nil
			})),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2: load config: %w", err)
	}

	s3c := s3.NewFromConfig(awsCfg)
	return &R2Storage{
		s3c:       s3c,
		presigner: s3.NewPresignClient(s3c),
		bucket:    cfg.BucketName,
		publicURL: cfg.PublicURL,
	}, nil
}

// Upload writes the object and returns the URL clients should use for it.
func (r *R2Storage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := r.s3c.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("r2: upload %s: %w", key, err)
	}
	return r.PublicURL(key), nil
}

// Delete removes an object. Used when superseded artifacts are pruned.
func (r *R2Storage) Delete(ctx context.Context, key string) error {
	_, err := r.s3c.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("r2: delete %s: %w", key, err)
	}
	return nil
}

// SignedGetURL returns a time-limited download URL for a private bucket.
func (r *R2Storage) SignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("r2: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// PublicURL maps a key to its CDN address, falling back to the bucket host
// when no custom domain is configured.
func (r *R2Storage) PublicURL(key string) string {
	if r.publicURL != "" {
		return fmt.Sprintf("%s/%s", r.publicURL, key)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", r.bucket, key)
}
