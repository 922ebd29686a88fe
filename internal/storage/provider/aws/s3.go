package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
)

// metaDeadline is the object metadata entry holding the epoch millisecond
// after which the object is treated as gone.
const metaDeadline = "deadline-ms"

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps each record as a JSON object. S3 has no per-object TTL, so
// the deadline travels in object metadata and expired objects are deleted
// when read. A bucket lifecycle rule is expected to reap the rest. DeleteObject
// does not say whether anything was removed and there is no cheap count.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Store(ctx context.Context, region, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}, nil
}

func (s *S3Store) objectKey(key string) *string {
	return aws.String(s.prefix + key + ".json")
}

func (s *S3Store) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	deadline := storagetypes.DeadlineMillis(s.now(), ttl)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  s.objectKey(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String("application/json"),
		ACL:                  types.ObjectCannedACLPrivate,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
		Metadata:             map[string]string{metaDeadline: strconv.FormatInt(deadline, 10)},
	})
	if err != nil {
		return fmt.Errorf("failed to upload record to S3: %w", err)
	}

	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, storagetypes.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download record from S3: %w", err)
	}
	defer out.Body.Close()

	if deadline, err := strconv.ParseInt(out.Metadata[metaDeadline], 10, 64); err == nil && storagetypes.Reached(deadline, s.now()) {
		if _, err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, storagetypes.ErrNotFound
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read the S3 object content: %w", err)
	}

	var rec storagetypes.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid record encoding: %w", err)
	}
	return &rec, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    s.objectKey(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete record from S3: %w", err)
	}

	return true, nil
}

func (s *S3Store) Count(ctx context.Context) (int64, bool, error) {
	return 0, false, nil
}

func (s *S3Store) Keys(ctx context.Context, fn func(key string) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if key, ok := strings.CutSuffix(name, ".json"); ok {
				if err := fn(key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
