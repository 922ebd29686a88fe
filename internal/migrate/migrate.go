// Package migrate copies live records between two stores, keeping each
// record's absolute expiry.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/labstack/gommon/log"
	"github.com/nckslvrmn/drop/internal/access"
	"github.com/nckslvrmn/drop/internal/storage/types"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize  = 10
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// Source is a store whose keys can be enumerated.
type Source interface {
	types.Store
	types.Scanner
}

type Migrator struct {
	Source Source
	Dest   types.Store
	// BatchSize bounds the number of keys copied concurrently.
	BatchSize int
	// Attempts and RetryDelay apply to destination writes only.
	Attempts   int
	RetryDelay time.Duration
	Logger     *log.Logger

	now func() time.Time
}

type KeyError struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

type Report struct {
	Timestamp  time.Time  `json:"timestamp"`
	DurationMS int64      `json:"durationMs"`
	Total      int        `json:"total"`
	Migrated   int        `json:"migrated"`
	Skipped    int        `json:"skipped"`
	Expired    int        `json:"expired"`
	Failed     int        `json:"failed"`
	Errors     []KeyError `json:"errors"`

	mu sync.Mutex
}

func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

type outcome int

const (
	migrated outcome = iota
	skipped
	expired
	failed
)

func (r *Report) record(key string, o outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case migrated:
		r.Migrated++
	case skipped:
		r.Skipped++
	case expired:
		r.Expired++
	case failed:
		r.Failed++
		r.Errors = append(r.Errors, KeyError{Key: key, Error: err.Error()})
	}
}

func (m *Migrator) defaults() {
	if m.BatchSize <= 0 {
		m.BatchSize = DefaultBatchSize
	}
	if m.Attempts <= 0 {
		m.Attempts = DefaultAttempts
	}
	if m.RetryDelay <= 0 {
		m.RetryDelay = DefaultRetryDelay
	}
	if m.Logger == nil {
		m.Logger = log.New("migrate")
	}
	if m.now == nil {
		m.now = time.Now
	}
}

// Run copies every key of Source into Dest. Failures on single keys are
// recorded in the report and never stop the run; only a failed key scan or
// a cancelled ctx returns an error.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	m.defaults()

	start := m.now()
	report := &Report{Timestamp: start.UTC(), Errors: []KeyError{}}

	var keys []string
	if err := m.Source.Keys(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return report, fmt.Errorf("failed to scan source keys: %w", err)
	}
	report.Total = len(keys)
	m.Logger.Infof("Found %d keys to migrate", report.Total)

	var g errgroup.Group
	g.SetLimit(m.BatchSize)

	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o, err := m.migrateKey(ctx, key)
			report.record(key, o, err)
			return nil
		})
	}
	g.Wait()

	report.DurationMS = m.now().Sub(start).Milliseconds()
	m.Logger.Infof("Migration finished: %d migrated, %d skipped, %d expired, %d failed",
		report.Migrated, report.Skipped, report.Expired, report.Failed)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (m *Migrator) migrateKey(ctx context.Context, key string) (outcome, error) {
	rec, err := m.Source.Get(ctx, key)
	if errors.Is(err, types.ErrNotFound) || (err == nil && rec.Data == "") {
		m.Logger.Warnf("Skipping empty record: %s", key)
		return skipped, nil
	}
	if err != nil {
		m.Logger.Errorf("Failed to read %s: %v", key, err)
		return failed, err
	}

	ttl, ok := m.destTTL(key, rec)
	if !ok {
		m.Logger.Warnf("Skipping expired record: %s", key)
		return expired, nil
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.Dest.Set(ctx, key, rec, ttl)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(m.RetryDelay)),
		backoff.WithMaxTries(uint(m.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.Logger.Warnf("Retrying %s in %v: %v", key, next, err)
		}),
	)
	if err != nil {
		m.Logger.Errorf("Failed to migrate %s: %v", key, err)
		return failed, err
	}

	m.Logger.Infof("Migrated %s (ttl %v)", key, ttl)
	return migrated, nil
}

// destTTL returns the lifetime left on rec, or false once it has passed.
// Records written without an expiry get the default lifetime from now.
func (m *Migrator) destTTL(key string, rec *types.Record) (time.Duration, bool) {
	if rec.Expiry == 0 {
		m.Logger.Warnf("Record %s has no expiry, using default ttl %v", key, access.DefaultTTL)
		rec.Expiry = access.ExpiryAt(m.now(), access.DefaultTTL)
		return access.DefaultTTL, true
	}
	remaining := time.UnixMilli(rec.Expiry).Sub(m.now())
	if remaining <= 0 {
		return 0, false
	}
	// Round up so the destination, which floors to seconds, keeps the
	// original expiry.
	return (remaining + time.Second - 1).Truncate(time.Second), true
}
