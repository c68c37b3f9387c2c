package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/marmos91/evnet/pkg/store/blob"
	blobBadger "github.com/marmos91/evnet/pkg/store/blob/badger"
	blobMemory "github.com/marmos91/evnet/pkg/store/blob/memory"
	blobS3 "github.com/marmos91/evnet/pkg/store/blob/s3"
	"github.com/mitchellh/mapstructure"
)

// defaultS3MaxRetries is higher than the SDK default of 3 to ride out
// transient 5xx responses from S3-compatible servers.
const defaultS3MaxRetries = 10

// S3StoreOptions is the decoded form of the store.s3 section.
type S3StoreOptions struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
	SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
}

// CreateStore creates a blob store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/store/blob/memory (ephemeral)
//   - "badger": Uses pkg/store/blob/badger (BadgerDB, persistent)
//   - "s3": Uses pkg/store/blob/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Store configuration
//   - m: Store metrics collector (nil for no metrics)
func CreateStore(ctx context.Context, cfg *StoreConfig, m metrics.StoreMetrics) (blob.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return blobMemory.New(m), nil
	case "badger":
		return createBadgerStore(ctx, cfg.Badger, m)
	case "s3":
		return createS3Store(ctx, cfg.S3, m)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, badger, s3)", cfg.Type)
	}
}

// decodeOptions decodes a store-specific map into out, accepting duration
// strings such as "10m".
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// createBadgerStore creates a BadgerDB-based persistent blob store.
func createBadgerStore(ctx context.Context, options map[string]any, m metrics.StoreMetrics) (blob.Store, error) {
	var storeCfg blobBadger.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store options: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	store, err := blobBadger.New(ctx, storeCfg, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	return store, nil
}

// createS3Store creates an S3-based blob store.
func createS3Store(ctx context.Context, options map[string]any, m metrics.StoreMetrics) (blob.Store, error) {
	var storeCfg S3StoreOptions
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store options: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := blobS3.New(ctx, blobS3.Config{
		Client:          client,
		Bucket:          storeCfg.Bucket,
		KeyPrefix:       storeCfg.KeyPrefix,
		SkipBucketCheck: storeCfg.SkipBucketCheck,
	}, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// newS3Client builds an S3 client from the decoded options.
func newS3Client(ctx context.Context, storeCfg S3StoreOptions) (*s3.Client, error) {
	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultS3MaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	cfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
