package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
)

const scanBatch = 100

// RedisAPI defines the subset of the go-redis client we use
type RedisAPI interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	DBSize(ctx context.Context) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	Close() error
}

// RedisStore keeps each record as a JSON string with a native expiry.
type RedisStore struct {
	client RedisAPI
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisStore{client: goredis.NewClient(opts)}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storagetypes.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record from redis: %w", err)
	}

	var rec storagetypes.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("invalid record encoding: %w", err)
	}
	return &rec, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	// SET ... PX takes milliseconds but is fed whole seconds like every
	// other backend.
	expiration := time.Duration(storagetypes.TTLSeconds(ttl)) * time.Second
	if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to store record in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete record from redis: %w", err)
	}
	return n == 1, nil
}

func (r *RedisStore) Count(ctx context.Context) (int64, bool, error) {
	n, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to count redis keys: %w", err)
	}
	return n, true, nil
}

func (r *RedisStore) Keys(ctx context.Context, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, "", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan redis keys: %w", err)
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
