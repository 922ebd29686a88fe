package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nckslvrmn/drop/internal/storage/types"
)

type entry struct {
	rec      types.Record
	deadline time.Time
}

// MockStore is an in-memory Store for tests. Records vanish once their
// deadline passes on the store's clock, which tests can move with Advance.
type MockStore struct {
	mu      sync.Mutex
	records map[string]entry
	now     time.Time

	// Errors returned by the matching operation when set.
	GetErr    error
	SetErr    error
	DeleteErr error
	CountErr  error

	// CountUnavailable makes Count report that no count is available.
	CountUnavailable bool
	// DeleteMisses makes Delete report false, as if the record had vanished.
	DeleteMisses bool

	Calls struct {
		Get, Set, Delete, Count int
	}
	LastTTL time.Duration
}

func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]entry),
		now:     time.Now(),
	}
}

// Now is the store's clock; pass it to the code under test.
func (m *MockStore) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockStore) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *MockStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls.Get + m.Calls.Set + m.Calls.Delete + m.Calls.Count
}

func (m *MockStore) Get(ctx context.Context, key string) (*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Get++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	e, ok := m.records[key]
	if !ok || !m.now.Before(e.deadline) {
		return nil, types.ErrNotFound
	}
	rec := e.rec
	return &rec, nil
}

func (m *MockStore) Set(ctx context.Context, key string, rec *types.Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Set++
	m.LastTTL = ttl
	if m.SetErr != nil {
		return m.SetErr
	}
	m.records[key] = entry{rec: *rec, deadline: types.Deadline(m.now, ttl)}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Delete++
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	_, ok := m.records[key]
	delete(m.records, key)
	if m.DeleteMisses {
		return false, nil
	}
	return ok, nil
}

func (m *MockStore) Count(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls.Count++
	if m.CountErr != nil {
		return 0, false, m.CountErr
	}
	if m.CountUnavailable {
		return 0, false, nil
	}
	var n int64
	for _, e := range m.records {
		if m.now.Before(e.deadline) {
			n++
		}
	}
	return n, true, nil
}

func (m *MockStore) Keys(ctx context.Context, fn func(key string) error) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockStore) Purge(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.records {
		if !m.now.Before(e.deadline) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// Put stores rec directly, bypassing call accounting.
func (m *MockStore) Put(key string, rec types.Record, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = entry{rec: rec, deadline: deadline}
}
