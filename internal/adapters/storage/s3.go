package storage

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jobrunner/archivesync/internal/domain"
	"github.com/jobrunner/archivesync/internal/ports/output"
)

// s3API is the subset of *s3.Client used by the adapter.
type s3API interface {
	s3.ListObjectsV2APIClient
	manager.UploadAPIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage implements ObjectStorage for AWS S3. Objects larger than one part
// are sent as multipart uploads so a dropped connection only costs a part.
type S3Storage struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// S3Config holds S3 configuration.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PartSize        int64 // multipart part size; default manager.DefaultUploadPartSize
	Concurrency     int   // parts in flight per object
}

// NewS3Storage creates a new S3 storage adapter.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)
	return newS3Storage(client, cfg.Bucket, cfg.Prefix, func(u *manager.Uploader) {
		if cfg.PartSize > 0 {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	}), nil
}

func newS3Storage(client s3API, bucket, prefix string, opts ...func(*manager.Uploader)) *S3Storage {
	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client, opts...),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// List returns every object under prefix, following ListObjectsV2 pagination.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &domain.StorageError{Operation: "list", Key: prefix, Err: err}
		}

		for _, obj := range page.Contents {
			objects = append(objects, output.StorageObject{
				Key:          s.relKey(aws.ToString(obj.Key)),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).Unix(),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
			})
		}
	}

	return objects, nil
}

// Put uploads body to key. Bodies that fit in one part go out as a single
// PutObject; the uploader sizes parts itself, so size is not needed.
func (s *S3Storage) Put(ctx context.Context, key string, body io.Reader, _ int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   body,
	}
	if strings.HasSuffix(key, ".csv") {
		input.ContentType = aws.String("text/csv")
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return &domain.StorageError{Operation: "put", Key: key, Err: err}
	}
	return nil
}

// Delete removes key. S3 answers DeleteObject on a missing key with success,
// which already gives the idempotence the port requires.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		return &domain.StorageError{Operation: "delete", Key: key, Err: err}
	}
	return nil
}

// fullKey returns the full S3 key including prefix.
func (s *S3Storage) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// relKey strips the configured prefix from a listed key.
func (s *S3Storage) relKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}
