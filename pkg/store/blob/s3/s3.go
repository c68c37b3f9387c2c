// Package s3 implements a blob.Store on Amazon S3 or any S3-compatible
// service (MinIO, Localstack, Cubbit DS3).
//
// Every call is a single S3 request except Delete, which issues a HEAD first
// because DeleteObject succeeds for missing keys. There is no local caching.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/marmos91/evnet/pkg/store/blob"
)

const backendName = "s3"

// API is the subset of *s3.Client used by the store.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config contains configuration for the S3 blob store.
type Config struct {
	// Client is the configured S3 client.
	Client API

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is prepended to every key.
	// Example: "evnet/blobs/" stores "a.txt" as "evnet/blobs/a.txt".
	KeyPrefix string

	// SkipBucketCheck disables the HeadBucket probe in New.
	SkipBucketCheck bool
}

// Store is a blob.Store backed by an S3 bucket.
type Store struct {
	client    API
	bucket    string
	keyPrefix string
	metrics   metrics.StoreMetrics
}

// New creates a store and verifies the bucket is reachable. m may be nil.
func New(ctx context.Context, cfg Config, m metrics.StoreMetrics) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, errors.New("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}

	if !cfg.SkipBucketCheck {
		if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		}); err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

func (s *Store) objectKey(key string) string {
	return s.keyPrefix + key
}

// isNotFound reports whether err means the object does not exist. GetObject
// reports NoSuchKey while HeadObject, which has no body, reports NotFound.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "get", start, len(data), err)
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := blob.ValidateKey(key); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %q: %w", key, blob.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err = io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) (err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "put", start, len(data), err)
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateKey(key); err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to write object to S3: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "delete", start, 0, err)
	}(time.Now())

	ok, err := s.exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete %q: %w", key, blob.ErrNotFound)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (ok bool, err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "exists", start, 0, err)
	}(time.Now())

	return s.exists(ctx, key)
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := blob.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (s *Store) Close() error {
	return nil
}
