package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/filmgraph/backend/internal/util"
	"github.com/filmgraph/backend/pkg/loader"
)

// ObjectAPI is the part of the S3 client used by the loader. *s3.Client
// satisfies it.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3FileLoader is a FileLoader implementation that loads dataset objects
// from an S3 bucket. It uses the AWS SDK v2 for Go.
type S3FileLoader struct {
	bucket string
	client ObjectAPI

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3FileLoaderWithClient creates a new S3FileLoader using an existing
// client.
func NewS3FileLoaderWithClient(bucket string, client ObjectAPI) *S3FileLoader {
	return &S3FileLoader{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// NewS3FileLoaderParams defines the configuration parameters for creating a
// new S3FileLoader. Endpoint allows overriding the S3 endpoint for
// S3-compatible storage like MinIO.
type NewS3FileLoaderParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// ParamsFromEnv reads AWS_BUCKET, AWS_ENDPOINT, AWS_REGION, AWS_ACCESS_KEY
// and AWS_SECRET_KEY.
func ParamsFromEnv() NewS3FileLoaderParams {
	return NewS3FileLoaderParams{
		Bucket:    util.GetEnv("AWS_BUCKET"),
		Endpoint:  util.GetEnv("AWS_ENDPOINT"),
		Region:    util.GetEnv("AWS_REGION"),
		AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
		SecretKey: util.GetEnv("AWS_SECRET_KEY"),
	}
}

// NewS3FileLoader creates a new S3FileLoader with static credentials and
// path style addressing.
//
// Example:
//
//	l, err := s3.NewS3FileLoader(ctx, s3.ParamsFromEnv())
//	if err != nil {
//		log.Fatal(err)
//	}
//	file := loader.NewDatasetFile("films", "datasets/films.json", l)
//	report, err := loader.Import(ctx, file, docs, loader.ImportOptions{})
func NewS3FileLoader(ctx context.Context, params NewS3FileLoaderParams) (*S3FileLoader, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return NewS3FileLoaderWithClient(params.Bucket, client), nil
}

// GetFileText retrieves the contents of the given dataset from the
// configured bucket. It implements the FileLoader interface.
func (l *S3FileLoader) GetFileText(ctx context.Context, file loader.DatasetFile) ([]byte, error) {
	cacheKey := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[cacheKey]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(file.Path),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get file from S3: %w", err)
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, fmt.Errorf("failed to read file contents: %w", err)
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Upload stores a dataset under prefix/key and returns the object key. The
// cached copy of that key, if any, is dropped.
func (l *S3FileLoader) Upload(ctx context.Context, prefix, key string, body io.Reader) (string, error) {
	objectKey := key
	if prefix != "" {
		objectKey = prefix + "/" + key
	}
	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}

	l.cacheMu.Lock()
	for k := range l.cache {
		if strings.HasSuffix(k, ":"+objectKey) {
			delete(l.cache, k)
		}
	}
	l.cacheMu.Unlock()

	return objectKey, nil
}
