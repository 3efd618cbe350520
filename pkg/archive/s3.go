package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Store persists and retrieves tenant export bundles.
type Store interface {
	PutBundle(ctx context.Context, tenantID string, data []byte) (string, error)
	GetBundle(ctx context.Context, tenantID string) ([]byte, error)
	DeleteBundle(ctx context.Context, tenantID string) error
}

// S3Client is the subset of the S3 API the store needs; the real client
// and test mocks both satisfy it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config configures the export bucket. Endpoint and ForcePathStyle
// support S3-compatible services such as MinIO.
type S3Config struct {
	Bucket         string `env:"EXPORT_S3_BUCKET,required"`
	Region         string `env:"EXPORT_S3_REGION,required"`
	AccessKeyID    string `env:"EXPORT_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"EXPORT_S3_SECRET_KEY"`
	Endpoint       string `env:"EXPORT_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"EXPORT_S3_FORCE_PATH_STYLE" envDefault:"false"`
	KeyPrefix      string `env:"EXPORT_S3_KEY_PREFIX" envDefault:"exports"`
}

// S3Store implements Store over an S3 bucket. One bundle per tenant at a
// deterministic key; a new export overwrites the previous one.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3Store creates a store, building the client from config unless one
// is injected for tests.
func NewS3Store(ctx context.Context, cfg S3Config, client S3Client) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket and region are required", ErrInvalidConfig)
	}

	if client == nil {
		awsOptions := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				awsconfig.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
		}
		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

// Key returns the object key for a tenant's bundle.
func (s *S3Store) Key(tenantID string) string {
	return path.Join(s.prefix, "tenant-"+tenantID, "bundle.json")
}

// PutBundle uploads the bundle and returns its object key.
func (s *S3Store) PutBundle(ctx context.Context, tenantID string, data []byte) (string, error) {
	key := s.Key(tenantID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", errors.Join(ErrUploadFailed, err)
	}
	return key, nil
}

// GetBundle downloads the tenant's bundle.
func (s *S3Store) GetBundle(ctx context.Context, tenantID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(tenantID)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrBundleNotFound
		}
		return nil, errors.Join(ErrDownloadFailed, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Join(ErrDownloadFailed, err)
	}
	return data, nil
}

// DeleteBundle removes the tenant's bundle after the retention period.
func (s *S3Store) DeleteBundle(ctx context.Context, tenantID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(tenantID)),
	})
	if err != nil {
		return errors.Join(ErrUploadFailed, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
