package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the S3 backend. Endpoint selects an S3-compatible
// service and forces path-style addressing.
type S3Options struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Object metadata keys. S3 returns them lower-cased.
const (
	metaDrive     = "drive"
	metaFilename  = "filename"
	metaSize      = "size"
	metaSHA256    = "sha256"
	metaSource    = "source"
	metaModified  = "modified"
	metaFetchedAt = "fetched-at"
)

// S3Store keeps each record as one object; the record travels as object
// metadata.
type S3Store struct {
	client    S3API
	bucket    string
	keyPrefix string
}

// NewS3 builds an S3 client from opts and verifies bucket access.
func NewS3(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}

	var configOptions []func(*awsConfig.LoadOptions) error
	if opts.Region != "" {
		configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
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
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WithClient(ctx, client, opts.Bucket, opts.KeyPrefix)
}

// NewS3WithClient uses an existing client.
func NewS3WithClient(ctx context.Context, client S3API, bucket, keyPrefix string) (*S3Store, error) {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", bucket, err)
	}
	return &S3Store{client: client, bucket: bucket, keyPrefix: keyPrefix}, nil
}

func (s *S3Store) key(id string) string {
	return s.keyPrefix + id
}

func (s *S3Store) Put(ctx context.Context, rec Record, data []byte) (Record, error) {
	rec, err := complete(rec, data)
	if err != nil {
		return Record{}, err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(rec.ID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      recordMetadata(rec),
	})
	if err != nil {
		return Record{}, fmt.Errorf("put object %s: %w", rec.ID, err)
	}
	return rec, nil
}

func (s *S3Store) Get(ctx context.Context, id string) (Record, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return Record{}, nil, ErrNotFound
		}
		return Record{}, nil, fmt.Errorf("get object %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Record{}, nil, fmt.Errorf("read object %s: %w", id, err)
	}
	rec, err := parseMetadata(id, out.Metadata)
	if err != nil {
		return Record{}, nil, err
	}
	return rec, data, nil
}

func (s *S3Store) List(ctx context.Context) ([]Record, error) {
	var recs []Record
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return nil, fmt.Errorf("head object %s: %w", key, err)
			}
			rec, err := parseMetadata(strings.TrimPrefix(key, s.keyPrefix), head.Metadata)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
	}
	sortRecords(recs)
	return recs, nil
}

func (s *S3Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// recordMetadata escapes the filename since object metadata must be ASCII.
func recordMetadata(rec Record) map[string]string {
	m := map[string]string{
		metaDrive:     strconv.Itoa(int(rec.Drive)),
		metaFilename:  url.PathEscape(rec.Filename),
		metaSize:      strconv.FormatInt(rec.Size, 10),
		metaSHA256:    rec.SHA256,
		metaFetchedAt: rec.FetchedAt.Format(time.RFC3339Nano),
	}
	if rec.Source != "" {
		m[metaSource] = rec.Source
	}
	if !rec.Modified.IsZero() {
		m[metaModified] = rec.Modified.Format(time.RFC3339Nano)
	}
	return m
}

func parseMetadata(id string, m map[string]string) (Record, error) {
	rec := Record{ID: id, SHA256: m[metaSHA256], Source: m[metaSource]}
	drive, err := strconv.ParseUint(m[metaDrive], 10, 16)
	if err != nil {
		return Record{}, fmt.Errorf("object %s: bad drive metadata: %w", id, err)
	}
	rec.Drive = uint16(drive)
	if rec.Filename, err = url.PathUnescape(m[metaFilename]); err != nil {
		return Record{}, fmt.Errorf("object %s: bad filename metadata: %w", id, err)
	}
	if rec.Size, err = strconv.ParseInt(m[metaSize], 10, 64); err != nil {
		return Record{}, fmt.Errorf("object %s: bad size metadata: %w", id, err)
	}
	if rec.FetchedAt, err = time.Parse(time.RFC3339Nano, m[metaFetchedAt]); err != nil {
		return Record{}, fmt.Errorf("object %s: bad fetch time metadata: %w", id, err)
	}
	if v := m[metaModified]; v != "" {
		if rec.Modified, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return Record{}, fmt.Errorf("object %s: bad modified metadata: %w", id, err)
		}
	}
	return rec, nil
}
