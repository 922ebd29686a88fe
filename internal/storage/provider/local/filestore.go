package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
)

const recordExt = ".json"

func isValidKey(key string) bool {
	return !strings.Contains(key, "/") &&
		!strings.Contains(key, "\\") &&
		!strings.Contains(key, "..") &&
		key != ""
}

// FileStore keeps one JSON envelope per record in a directory. Writes go
// through a temporary file and a rename so readers never see partial data.
type FileStore struct {
	dataDir string
	now     func() time.Time
}

func NewFileStore(dataDir string) (*FileStore, error) {
	recordsDir := filepath.Join(dataDir, "records")

	if err := os.MkdirAll(recordsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}

	log.Infof("Local file store initialized at %s", recordsDir)
	return &FileStore{
		dataDir: recordsDir,
		now:     time.Now,
	}, nil
}

func (l *FileStore) path(key string) string {
	return filepath.Join(l.dataDir, key+recordExt)
}

func (l *FileStore) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	if !isValidKey(key) {
		return fmt.Errorf("invalid key")
	}

	data, err := json.Marshal(storagetypes.NewEnvelope(rec, l.now(), ttl))
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(l.dataDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := os.Rename(tmp.Name(), l.path(key)); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	return nil
}

func (l *FileStore) read(key string) (*storagetypes.Envelope, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storagetypes.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var env storagetypes.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid record encoding: %w", err)
	}
	return &env, nil
}

func (l *FileStore) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	if !isValidKey(key) {
		return nil, fmt.Errorf("invalid key")
	}

	env, err := l.read(key)
	if err != nil {
		return nil, err
	}
	if env.Expired(l.now()) {
		return nil, storagetypes.ErrNotFound
	}
	return &env.Record, nil
}

func (l *FileStore) Delete(ctx context.Context, key string) (bool, error) {
	if !isValidKey(key) {
		return false, fmt.Errorf("invalid key")
	}

	err := os.Remove(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete record: %w", err)
	}

	return true, nil
}

func (l *FileStore) keys() ([]string, error) {
	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := strings.CutSuffix(e.Name(), recordExt); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (l *FileStore) Count(ctx context.Context) (int64, bool, error) {
	var n int64
	err := l.Keys(ctx, func(string) error {
		n++
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Keys lists live records only.
func (l *FileStore) Keys(ctx context.Context, fn func(key string) error) error {
	keys, err := l.keys()
	if err != nil {
		return err
	}

	now := l.now()
	for _, key := range keys {
		env, err := l.read(key)
		if errors.Is(err, storagetypes.ErrNotFound) {
			continue
		}
		if err != nil || env.Expired(now) {
			continue
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (l *FileStore) Purge(ctx context.Context) (int64, error) {
	keys, err := l.keys()
	if err != nil {
		return 0, err
	}

	now := l.now()
	var n int64
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		env, err := l.read(key)
		if err != nil || !env.Expired(now) {
			continue
		}
		if removed, err := l.Delete(ctx, key); err == nil && removed {
			n++
		}
	}
	return n, nil
}
