package types

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when no live record exists under a key.
var ErrNotFound = errors.New("record not found")

// Record is the unit of storage. Field names on the wire match the layout
// written by earlier deployments so their data can be migrated as is.
type Record struct {
	Data     string `json:"data"`
	IPRule   string `json:"ip"`
	Password string `json:"password,omitempty"`
	Expiry   int64  `json:"expiredTime"`
}

// Store is implemented by every backend adapter.
type Store interface {
	// Get returns ErrNotFound when the key is absent or physically expired.
	Get(ctx context.Context, key string) (*Record, error)
	// Set writes rec under key, replacing any previous value. The backend
	// drops the record once ttl elapses, rounded per TTLSeconds.
	Set(ctx context.Context, key string, rec *Record, ttl time.Duration) error
	// Delete reports whether the backend acknowledged removing something.
	Delete(ctx context.Context, key string) (bool, error)
	// Count returns ok=false when the backend cannot report a record count.
	Count(ctx context.Context) (n int64, ok bool, err error)
}

// Scanner is implemented by stores that can enumerate their keys.
type Scanner interface {
	Keys(ctx context.Context, fn func(key string) error) error
}

// Purger is implemented by stores without native expiry. Purge physically
// removes expired records and returns how many were dropped.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// TTLSeconds converts a ttl to whole seconds for backends. It always floors,
// so a record can disappear up to a second before its logical expiry, and
// never returns less than one second.
func TTLSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Deadline returns the absolute time at which a backend should drop a record
// written at now with the given ttl.
func Deadline(now time.Time, ttl time.Duration) time.Time {
	return now.Add(time.Duration(TTLSeconds(ttl)) * time.Second)
}

// DeadlineMillis is Deadline in epoch milliseconds. Stored deadlines keep
// millisecond precision so the write time's fraction of a second is not
// lost to truncation.
func DeadlineMillis(now time.Time, ttl time.Duration) int64 {
	return Deadline(now, ttl).UnixMilli()
}

// Reached reports whether a deadline in epoch milliseconds has passed at now.
func Reached(deadlineMillis int64, now time.Time) bool {
	return deadlineMillis <= now.UnixMilli()
}

// Envelope is the stored form for backends that keep a record and its
// physical deadline (epoch milliseconds) in one value.
type Envelope struct {
	Deadline int64 `json:"deadlineMs"`
	Record
}

func NewEnvelope(rec *Record, now time.Time, ttl time.Duration) Envelope {
	return Envelope{Deadline: DeadlineMillis(now, ttl), Record: *rec}
}

// Expired reports whether the deadline has been reached at now.
func (e Envelope) Expired(now time.Time) bool {
	return Reached(e.Deadline, now)
}
