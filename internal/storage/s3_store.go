package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store reads snapshots published to an S3 bucket.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *events.Logger
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, bucket, prefix string, logger *events.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// NewS3StoreWithClient creates a store around an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger *events.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.WithField("component", "s3_store"),
	}
}

// Read downloads the object.
func (s *S3Store) Read(ctx context.Context, filePath string) ([]byte, error) {
	key := s.buildKey(filePath)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, s.wrap(key, fmt.Errorf("read object: %w", err))
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Read snapshot from S3")

	return data, nil
}

// Modified returns the object's LastModified time.
func (s *S3Store) Modified(ctx context.Context, filePath string) (time.Time, error) {
	key := s.buildKey(filePath)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return time.Time{}, s.wrap(key, err)
	}

	return aws.ToTime(result.LastModified), nil
}

// Location returns the s3:// URI for path.
func (s *S3Store) Location(filePath string) string {
	return "s3://" + s.bucket + "/" + s.buildKey(filePath)
}

func (s *S3Store) buildKey(filePath string) string {
	// Clean and normalize the path
	cleanPath := path.Clean("/" + filePath)
	cleanPath = strings.TrimPrefix(cleanPath, "/")

	if s.prefix != "" {
		return path.Join(s.prefix, cleanPath)
	}
	return cleanPath
}

func (s *S3Store) wrap(key string, err error) error {
	fetchErr := &models.FetchError{URL: "s3://" + s.bucket + "/" + key, Err: err}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		fetchErr.StatusCode = 404
	}
	return fetchErr
}
