package pipeline

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/reelforge/reelforge/generation"
	"github.com/reelforge/reelforge/ratelimit"
	"github.com/reelforge/reelforge/storage"
)

// Environment variables consumed by NewFromEnv. The S3 credential pair is
// optional; when absent the default AWS chain is used.
const (
	apiURLEnvKey     = "REELFORGE_GENERATION_API_URL"
	apiTokenEnvKey   = "REELFORGE_GENERATION_API_TOKEN"
	bucketEnvKey     = "REELFORGE_S3_BUCKET"
	regionEnvKey     = "REELFORGE_S3_REGION"
	accessKeyEnvKey  = "REELFORGE_S3_ACCESS_KEY_ID"
	secretKeyEnvKey  = "REELFORGE_S3_SECRET_ACCESS_KEY"
	defaultAWSRegion = "us-east-1"
)

// NewFromEnv builds a Producer wired to the real S3 store and generation
// service using environment configuration. The counter stays injected since
// its backing store is a deployment decision; nil disables the budget.
func NewFromEnv(ctx context.Context, envRepo env.Repository, counter ratelimit.Counter, logger log.Logger, config Config) (*Producer, error) {
	apiURL := envRepo.Get(apiURLEnvKey)
	if apiURL == "" {
		return nil, fmt.Errorf("%s is not defined", apiURLEnvKey)
	}
	apiToken := envRepo.Get(apiTokenEnvKey)
	if apiToken == "" {
		return nil, fmt.Errorf("%s is not defined", apiTokenEnvKey)
	}
	bucket := envRepo.Get(bucketEnvKey)
	if bucket == "" {
		return nil, fmt.Errorf("%s is not defined", bucketEnvKey)
	}
	region := envRepo.Get(regionEnvKey)
	if region == "" {
		region = defaultAWSRegion
	}

	store, err := storage.NewS3Store(ctx, storage.S3Params{
		Region:          region,
		Bucket:          bucket,
		AccessKeyID:     envRepo.Get(accessKeyEnvKey),
		SecretAccessKey: envRepo.Get(secretKeyEnvKey),
	}, logger)
	if err != nil {
		return nil, err
	}

	client := generation.NewClient(apiURL, apiToken, logger)
	return NewProducer(store, client, nil, counter, logger, config), nil
}
