// Package records manages the lifecycle of stored records: it validates
// requests in a fixed order, so malformed or unauthorized requests never
// reach the backend, and maps outcomes to typed errors.
//
// Reading with delete is a read followed by a separate delete. A concurrent
// reader can still observe the record between the two steps, so single
// retrieval is advisory.
package records

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/nckslvrmn/drop/internal/access"
	"github.com/nckslvrmn/drop/internal/storage/types"
)

type Manager struct {
	store  types.Store
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now as the source of write times.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(store types.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		logger: log.New("records"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type WriteRequest struct {
	// Payload is nil when the caller sent none.
	Payload  *string
	Password string
	IPRule   string
	// TTL defaults to access.DefaultTTL when nil.
	TTL *time.Duration
	Key string
}

type WriteResult struct {
	Key       string
	ExpiresAt string
	Password  string
	IPRule    string
}

type ReadRequest struct {
	Key         string
	Password    string
	CallerIP    string
	DeleteAfter bool
}

type ReadResult struct {
	Key       string
	Payload   string
	ExpiresAt string
	Password  string
	IPRule    string
	Deleted   bool
}

type RemoveRequest struct {
	Key      string
	Password string
	CallerIP string
}

type StatusResult struct {
	Count     int64
	Available bool
}

func (m *Manager) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if req.Payload == nil || *req.Payload == "" {
		return nil, invalid("missing data field")
	}
	if access.PayloadTooLong(*req.Payload) {
		return nil, invalid("data exceeds the 1MB limit")
	}
	if req.Password != "" && access.PasswordTooLong(req.Password) {
		return nil, invalid("password exceeds the 128 character limit")
	}
	if req.IPRule != "" && !access.ValidIPRule(req.IPRule) {
		return nil, invalid("invalid IP rule, valid example: 1.2-3.*.4")
	}

	ttl := access.DefaultTTL
	if req.TTL != nil {
		ttl = *req.TTL
	}
	if ttl <= 0 {
		return nil, invalid("expiry time must be positive")
	}

	key, ok := access.NormalizeUUID(req.Key)
	if !ok {
		key = access.NewUUID()
	}

	ipRule := req.IPRule
	if ipRule == "" {
		ipRule = access.AnyIP
	}

	rec := &types.Record{
		Data:     *req.Payload,
		IPRule:   ipRule,
		Password: req.Password,
		Expiry:   access.ExpiryAt(m.now(), ttl),
	}
	if err := m.store.Set(ctx, key, rec, ttl); err != nil {
		return nil, backend("error storing record", err)
	}

	return &WriteResult{
		Key:       key,
		ExpiresAt: access.FormatExpiry(rec.Expiry),
		Password:  rec.Password,
		IPRule:    rec.IPRule,
	}, nil
}

func (m *Manager) Read(ctx context.Context, req ReadRequest) (*ReadResult, error) {
	key, rec, err := m.authorize(ctx, req.Key, req.Password, req.CallerIP)
	if err != nil {
		return nil, err
	}

	deleted := false
	if req.DeleteAfter {
		deleted = m.deleteQuietly(ctx, key)
	}

	return &ReadResult{
		Key:       key,
		Payload:   rec.Data,
		ExpiresAt: access.FormatExpiry(rec.Expiry),
		Password:  rec.Password,
		IPRule:    rec.IPRule,
		Deleted:   deleted,
	}, nil
}

// ReadPayload is Read without the metadata.
func (m *Manager) ReadPayload(ctx context.Context, req ReadRequest) (string, error) {
	res, err := m.Read(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Payload, nil
}

// Remove deletes an authorized record. A backend that acknowledges nothing
// was deleted yields a validation error, the same as any other failed delete.
func (m *Manager) Remove(ctx context.Context, req RemoveRequest) error {
	key, _, err := m.authorize(ctx, req.Key, req.Password, req.CallerIP)
	if err != nil {
		return err
	}

	ok, err := m.store.Delete(ctx, key)
	if err != nil {
		return backend("error deleting record", err)
	}
	if !ok {
		return invalid("delete failed")
	}
	return nil
}

// Status reports the number of stored records when the backend can tell.
func (m *Manager) Status(ctx context.Context) (*StatusResult, error) {
	n, ok, err := m.store.Count(ctx)
	if err != nil {
		return nil, backend("error counting records", err)
	}
	return &StatusResult{Count: n, Available: ok}, nil
}

// authorize runs the checks shared by reads and deletes, in order: key
// presence, key syntax, existence, caller address, password.
func (m *Manager) authorize(ctx context.Context, rawKey, password, callerIP string) (string, *types.Record, error) {
	if rawKey == "" {
		return "", nil, invalid("missing uuid")
	}
	key, ok := access.NormalizeUUID(rawKey)
	if !ok {
		return "", nil, invalid("malformed uuid")
	}

	rec, err := m.store.Get(ctx, key)
	if errors.Is(err, types.ErrNotFound) {
		return "", nil, errNotFound
	}
	if err != nil {
		return "", nil, backend("error reading record", err)
	}

	if !access.MatchIP(rec.IPRule, callerIP) {
		return "", nil, errForbidden
	}
	if !access.CheckPassword(rec.Password, password) {
		return "", nil, errUnauthorized
	}
	return key, rec, nil
}

func (m *Manager) deleteQuietly(ctx context.Context, key string) bool {
	ok, err := m.store.Delete(ctx, key)
	if err != nil {
		m.logger.Warnf("post-read delete of %s failed: %v", key, err)
		return false
	}
	return ok
}
