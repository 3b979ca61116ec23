package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"marketslip/internal/platform/config"
	dErrors "marketslip/pkg/domain-errors"
	"marketslip/pkg/platform/sentinel"
	"marketslip/pkg/requestcontext"
)

// DefaultURLTTL is the lifetime of a presigned link when none is configured.
const DefaultURLTTL = time.Hour

// S3Store keeps slip images in a single S3 bucket.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	creds     aws.CredentialsProvider
	bucket    string
	logger    *slog.Logger
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

func WithLogger(logger *slog.Logger) S3Option {
	return func(s *S3Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// LoadAWSConfig resolves region and credentials. Static keys win when both
// are set; otherwise the SDK default chain applies (env, profile, IAM role).
func LoadAWSConfig(ctx context.Context, cfg config.Storage) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewS3Store builds a store for bucket. A non-empty endpoint targets an
// S3-compatible server (MinIO, localstack) with path-style addressing.
func NewS3Store(awsCfg aws.Config, bucket, endpoint string, opts ...S3Option) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	store := &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		creds:     awsCfg.Credentials,
		bucket:    bucket,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Put uploads data under key and returns the key.
func (s *S3Store) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if err := s.requireCredentials(ctx); err != nil {
		return "", err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "s3 put failed",
			"key", key,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return "", dErrors.Wrap(err, dErrors.CodeStorageFailure, "storage unavailable")
	}
	return key, nil
}

// PresignedGet returns a time-limited GET link for key. ttl <= 0 means
// DefaultURLTTL.
func (s *S3Store) PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if err := s.requireCredentials(ctx); err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeStorageFailure, "storage unavailable")
	}
	return req.URL, nil
}

// Delete removes key. A missing object is reported as not found.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "file not found")
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		if isNotFound(err) {
			return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "file not found")
		}
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "storage unavailable")
	}
	return nil
}

// Exists reports whether key is present in the bucket.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.requireCredentials(ctx); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeStorageFailure, "storage unavailable")
	}
	return true, nil
}

func (s *S3Store) requireCredentials(ctx context.Context) error {
	if s.creds == nil {
		return dErrors.Wrap(sentinel.ErrMissingCredentials, dErrors.CodeStorageFailure, "storage credentials not available")
	}
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return dErrors.Wrap(errors.Join(sentinel.ErrMissingCredentials, err), dErrors.CodeStorageFailure, "storage credentials not available")
	}
	if !creds.HasKeys() {
		return dErrors.Wrap(sentinel.ErrMissingCredentials, dErrors.CodeStorageFailure, "storage credentials not available")
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
