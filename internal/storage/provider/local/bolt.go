package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/log"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltStore keeps records as JSON envelopes in a single bbolt bucket.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "records.bolt")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Infof("bbolt store initialized at %s", dbPath)
	return &BoltStore{db: db, now: time.Now}, nil
}

func (b *BoltStore) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(storagetypes.NewEnvelope(rec, b.now(), ttl))
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (b *BoltStore) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var env *storagetypes.Envelope
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		env = &storagetypes.Envelope{}
		return json.Unmarshal(v, env)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if env == nil || env.Expired(b.now()) {
		return nil, storagetypes.ErrNotFound
	}
	return &env.Record, nil
}

func (b *BoltStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var existed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		existed = bucket.Get([]byte(key)) != nil
		if !existed {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	return existed, nil
}

func (b *BoltStore) Count(ctx context.Context) (int64, bool, error) {
	var n int64
	err := b.forEachLive(func(string) error {
		n++
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to count records: %w", err)
	}
	return n, true, nil
}

func (b *BoltStore) Keys(ctx context.Context, fn func(key string) error) error {
	var keys []string
	if err := b.forEachLive(func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	// fn runs outside the read transaction so it may write to this store.
	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (b *BoltStore) forEachLive(fn func(key string) error) error {
	now := b.now()
	return b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var env storagetypes.Envelope
			if err := json.Unmarshal(v, &env); err != nil || env.Expired(now) {
				return nil
			}
			return fn(string(k))
		})
	})
}

func (b *BoltStore) Purge(ctx context.Context) (int64, error) {
	now := b.now()
	var n int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(recordsBucket)
		var expired [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			var env storagetypes.Envelope
			if err := json.Unmarshal(v, &env); err == nil && env.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge records: %w", err)
	}
	return n, nil
}

func (b *BoltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
