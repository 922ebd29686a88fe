package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type BucketHandleInterface interface {
	Object(name string) ObjectHandleInterface
	ForEachName(ctx context.Context, prefix string, fn func(name string) error) error
}

type ObjectHandleInterface interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	NewWriter(ctx context.Context) io.WriteCloser
	Delete(ctx context.Context) error
}

type bucketHandleWrapper struct {
	bucket *storage.BucketHandle
}

func (b *bucketHandleWrapper) Object(name string) ObjectHandleInterface {
	return &objectHandleWrapper{obj: b.bucket.Object(name)}
}

func (b *bucketHandleWrapper) ForEachName(ctx context.Context, prefix string, fn func(name string) error) error {
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

type objectHandleWrapper struct {
	obj *storage.ObjectHandle
}

func (o *objectHandleWrapper) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return o.obj.NewReader(ctx)
}

func (o *objectHandleWrapper) NewWriter(ctx context.Context) io.WriteCloser {
	w := o.obj.NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

func (o *objectHandleWrapper) Delete(ctx context.Context) error {
	return o.obj.Delete(ctx)
}

// GCSStore keeps each record as a JSON envelope carrying its deadline.
// Objects past their deadline are deleted when read; a bucket lifecycle
// rule is expected to reap the rest. Counting is not supported.
type GCSStore struct {
	client *storage.Client
	bucket BucketHandleInterface
	prefix string
	now    func() time.Time
}

func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: &bucketHandleWrapper{bucket: client.Bucket(bucket)},
		prefix: prefix,
		now:    time.Now,
	}, nil
}

func (g *GCSStore) objectName(key string) string {
	return g.prefix + key + ".json"
}

func (g *GCSStore) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	data, err := json.Marshal(storagetypes.NewEnvelope(rec, g.now(), ttl))
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	writer := g.bucket.Object(g.objectName(key)).NewWriter(ctx)

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return nil
}

func (g *GCSStore) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	reader, err := g.bucket.Object(g.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, storagetypes.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record from GCS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read record content from GCS: %w", err)
	}

	var env storagetypes.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid record encoding: %w", err)
	}

	if env.Expired(g.now()) {
		if _, err := g.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, storagetypes.ErrNotFound
	}

	return &env.Record, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := g.bucket.Object(g.objectName(key)).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete record from GCS: %w", err)
	}

	return true, nil
}

func (g *GCSStore) Count(ctx context.Context) (int64, bool, error) {
	return 0, false, nil
}

func (g *GCSStore) Keys(ctx context.Context, fn func(key string) error) error {
	return g.bucket.ForEachName(ctx, g.prefix, func(name string) error {
		key, ok := strings.CutSuffix(strings.TrimPrefix(name, g.prefix), ".json")
		if !ok {
			return nil
		}
		return fn(key)
	})
}

func (g *GCSStore) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
