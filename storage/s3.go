package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numStoreRetries = 3
const storeRetryWait = 2 * time.Second

// S3Params ...
type S3Params struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  log.Logger
}

// NewS3Store creates an ObjectStore backed by an S3 bucket. Credentials fall
// back to the default AWS chain when the static pair is not provided.
func NewS3Store(ctx context.Context, params S3Params, logger log.Logger) (ObjectStore, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSConfig(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(*cfg)
	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  params.Bucket,
		logger:  logger,
	}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploader := manager.NewUploader(s.client)
	return retry.Times(numStoreRetries).Wait(storeRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err(), true
			}
			return fmt.Errorf("put %s: %w", key, err), false
		}
		return nil, true
	})
}

func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.Times(numStoreRetries).Wait(storeRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				return ErrObjectNotFound, true
			}
			if ctx.Err() != nil {
				return ctx.Err(), true
			}
			return fmt.Errorf("get %s: %w", key, err), false
		}
		defer result.Body.Close() //nolint:errcheck

		data, err = io.ReadAll(result.Body)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err), false
		}
		return nil, true
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	// S3 delete is idempotent already: removing a missing key succeeds.
	return retry.Times(numStoreRetries).Wait(storeRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err(), true
			}
			return fmt.Errorf("delete %s: %w", key, err), false
		}
		return nil, true
	})
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := retry.Times(numStoreRetries).Wait(storeRetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		keys = keys[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err(), true
				}
				return fmt.Errorf("list %s: %w", prefix, err), false
			}
			for _, object := range page.Contents {
				keys = append(keys, aws.ToString(object.Key))
			}
		}
		return nil, true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return true, nil
}

func (s *s3Store) SignedURL(ctx context.Context, key string, ttl time.Duration, intent Intent) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if intent == IntentDownload {
		disposition := fmt.Sprintf("attachment; filename=%q", path.Base(key))
		input.ResponseContentDisposition = aws.String(disposition)
	}

	request, err := s.presign.PresignGetObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return request.URL, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		code := apiError.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func loadAWSConfig(ctx context.Context, region, accessKeyID, secretKey string) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" && secretKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}
	return &cfg, nil
}
