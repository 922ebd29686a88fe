package records

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nckslvrmn/drop/internal/access"
	"github.com/nckslvrmn/drop/internal/storage/mock"
)

func setupTest() (*Manager, *mock.MockStore) {
	store := mock.NewMockStore()
	return NewManager(store, WithClock(store.Now)), store
}

func ptr[T any](v T) *T {
	return &v
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if got := KindOf(err); got != kind {
		t.Fatalf("error = %v (kind %v), want kind %v", err, got, kind)
	}
}

func TestWriteValidation(t *testing.T) {
	tests := []struct {
		name string
		req  WriteRequest
	}{
		{"missing payload", WriteRequest{}},
		{"empty payload", WriteRequest{Payload: ptr("")}},
		{"payload too long", WriteRequest{Payload: ptr(strings.Repeat("a", access.MaxPayloadLength+1))}},
		{"password too long", WriteRequest{Payload: ptr("x"), Password: strings.Repeat("p", 129)}},
		{"bad ip rule", WriteRequest{Payload: ptr("x"), IPRule: "999.*.*.*"}},
		{"short ip rule", WriteRequest{Payload: ptr("x"), IPRule: "10.0.*"}},
		{"zero ttl", WriteRequest{Payload: ptr("x"), TTL: ptr(time.Duration(0))}},
		{"negative ttl", WriteRequest{Payload: ptr("x"), TTL: ptr(-time.Second)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := setupTest()
			_, err := m.Write(context.Background(), tt.req)
			wantKind(t, err, KindValidation)
			if store.TotalCalls() != 0 {
				t.Errorf("rejected write reached the store %d times", store.TotalCalls())
			}
		})
	}
}

func TestWriteBoundaries(t *testing.T) {
	m, _ := setupTest()
	ctx := context.Background()

	if _, err := m.Write(ctx, WriteRequest{Payload: ptr(strings.Repeat("a", access.MaxPayloadLength))}); err != nil {
		t.Errorf("payload at the limit rejected: %v", err)
	}
	if _, err := m.Write(ctx, WriteRequest{Payload: ptr("x"), Password: strings.Repeat("p", 128)}); err != nil {
		t.Errorf("password at the limit rejected: %v", err)
	}
}

func TestWriteDefaults(t *testing.T) {
	m, store := setupTest()

	res, err := m.Write(context.Background(), WriteRequest{Payload: ptr("hello")})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !access.ValidUUID(res.Key) || res.Key != strings.ToLower(res.Key) {
		t.Errorf("Write() key = %q, want lowercase v4 uuid", res.Key)
	}
	if res.IPRule != access.AnyIP {
		t.Errorf("Write() ip rule = %q, want %q", res.IPRule, access.AnyIP)
	}
	if res.Password != "" {
		t.Errorf("Write() password = %q, want empty", res.Password)
	}
	if store.LastTTL != access.DefaultTTL {
		t.Errorf("store ttl = %v, want %v", store.LastTTL, access.DefaultTTL)
	}
	want := access.FormatExpiry(store.Now().Add(access.DefaultTTL).UnixMilli())
	if res.ExpiresAt != want {
		t.Errorf("Write() expiry = %q, want %q", res.ExpiresAt, want)
	}
}

func TestWriteRequestedKey(t *testing.T) {
	m, _ := setupTest()
	ctx := context.Background()

	upper := "3F2B8C1E-9D4A-4B6F-AE2A-1C3D5E7F9A0B"
	res, err := m.Write(ctx, WriteRequest{Payload: ptr("x"), Key: upper})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Key != strings.ToLower(upper) {
		t.Errorf("Write() key = %q, want canonical requested key", res.Key)
	}

	res, err = m.Write(ctx, WriteRequest{Payload: ptr("x"), Key: "not-a-uuid"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if res.Key == "not-a-uuid" || !access.ValidUUID(res.Key) {
		t.Errorf("Write() key = %q, want a generated uuid", res.Key)
	}
}

func TestRoundTrip(t *testing.T) {
	m, _ := setupTest()
	ctx := context.Background()

	w, err := m.Write(ctx, WriteRequest{Payload: ptr("payload bytes ✓"), Password: "pw", IPRule: "10.0.0.*"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r, err := m.Read(ctx, ReadRequest{Key: w.Key, Password: "pw", CallerIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.Payload != "payload bytes ✓" || r.Password != "pw" || r.IPRule != "10.0.0.*" || r.Key != w.Key {
		t.Errorf("Read() = %+v, does not match write", r)
	}
	if r.ExpiresAt != w.ExpiresAt {
		t.Errorf("Read() expiry = %q, want %q", r.ExpiresAt, w.ExpiresAt)
	}
}

func TestIdempotentOverwrite(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()
	key := access.NewUUID()

	for _, p := range []string{"first", "second"} {
		if _, err := m.Write(ctx, WriteRequest{Payload: ptr(p), Key: key}); err != nil {
			t.Fatalf("Write(%q) error = %v", p, err)
		}
	}

	got, err := m.ReadPayload(ctx, ReadRequest{Key: key, CallerIP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("ReadPayload() error = %v", err)
	}
	if got != "second" {
		t.Errorf("ReadPayload() = %q, want latest payload", got)
	}
	if n, _, _ := store.Count(ctx); n != 1 {
		t.Errorf("store holds %d records, want 1", n)
	}
}

func TestReadValidation(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()

	_, err := m.Read(ctx, ReadRequest{CallerIP: "1.1.1.1"})
	wantKind(t, err, KindValidation)

	_, err = m.Read(ctx, ReadRequest{Key: "abc", CallerIP: "1.1.1.1"})
	wantKind(t, err, KindValidation)

	if store.TotalCalls() != 0 {
		t.Errorf("malformed reads reached the store")
	}

	_, err = m.Read(ctx, ReadRequest{Key: access.NewUUID(), CallerIP: "1.1.1.1"})
	wantKind(t, err, KindNotFound)
}

// Scenario A: a record is readable until the backend expires it.
func TestScenarioExpiry(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()

	w, err := m.Write(ctx, WriteRequest{Payload: ptr("hello"), TTL: ptr(time.Second)})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	store.Advance(500 * time.Millisecond)
	got, err := m.ReadPayload(ctx, ReadRequest{Key: w.Key, CallerIP: "1.2.3.4"})
	if err != nil || got != "hello" {
		t.Fatalf("ReadPayload() = %q, %v; want hello", got, err)
	}

	store.Advance(time.Second)
	_, err = m.ReadPayload(ctx, ReadRequest{Key: w.Key, CallerIP: "1.2.3.4"})
	wantKind(t, err, KindNotFound)
}

// Scenario B: password and address restrictions.
func TestScenarioPasswordAndIP(t *testing.T) {
	m, _ := setupTest()
	ctx := context.Background()

	w, err := m.Write(ctx, WriteRequest{Payload: ptr("secret"), Password: "p1", IPRule: "10.0.0.*"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := m.Read(ctx, ReadRequest{Key: w.Key, Password: "p1", CallerIP: "10.0.0.5"}); err != nil {
		t.Errorf("authorized read failed: %v", err)
	}

	_, err = m.Read(ctx, ReadRequest{Key: w.Key, Password: "p1", CallerIP: "10.0.1.5"})
	wantKind(t, err, KindForbidden)

	_, err = m.Read(ctx, ReadRequest{Key: w.Key, Password: "wrong", CallerIP: "10.0.0.5"})
	wantKind(t, err, KindUnauthorized)

	// the address check comes before the password check
	_, err = m.Read(ctx, ReadRequest{Key: w.Key, Password: "wrong", CallerIP: "10.0.1.5"})
	wantKind(t, err, KindForbidden)
}

// Scenario C: ranges within an octet.
func TestScenarioRangeRule(t *testing.T) {
	m, _ := setupTest()
	ctx := context.Background()

	w, err := m.Write(ctx, WriteRequest{Payload: ptr("x"), IPRule: "1.2-3.*.4"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := m.Read(ctx, ReadRequest{Key: w.Key, CallerIP: "1.2.9.4"}); err != nil {
		t.Errorf("read from 1.2.9.4 failed: %v", err)
	}
	_, err = m.Read(ctx, ReadRequest{Key: w.Key, CallerIP: "1.4.9.4"})
	wantKind(t, err, KindForbidden)
}

// Scenario E: read with delete removes the record.
func TestScenarioReadAndDelete(t *testing.T) {
	m, _ := setupTest()
	ctx := context.Background()

	w, _ := m.Write(ctx, WriteRequest{Payload: ptr("once")})

	r, err := m.Read(ctx, ReadRequest{Key: strings.ToUpper(w.Key), CallerIP: "1.1.1.1", DeleteAfter: true})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !r.Deleted || r.Payload != "once" {
		t.Errorf("Read() = %+v, want deleted payload", r)
	}

	_, err = m.Read(ctx, ReadRequest{Key: w.Key, CallerIP: "1.1.1.1"})
	wantKind(t, err, KindNotFound)
}

func TestReadDeleteFailureIsSwallowed(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()

	w, _ := m.Write(ctx, WriteRequest{Payload: ptr("x")})
	store.DeleteErr = errors.New("backend down")

	r, err := m.Read(ctx, ReadRequest{Key: w.Key, CallerIP: "1.1.1.1", DeleteAfter: true})
	if err != nil {
		t.Fatalf("Read() error = %v, want success despite delete failure", err)
	}
	if r.Deleted {
		t.Error("Read() reported a failed delete as done")
	}
}

func TestRemove(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()

	w, _ := m.Write(ctx, WriteRequest{Payload: ptr("x"), Password: "pw", IPRule: "10.*.*.*"})

	wantKind(t, m.Remove(ctx, RemoveRequest{CallerIP: "10.0.0.1"}), KindValidation)
	wantKind(t, m.Remove(ctx, RemoveRequest{Key: "zzz", CallerIP: "10.0.0.1"}), KindValidation)
	wantKind(t, m.Remove(ctx, RemoveRequest{Key: access.NewUUID(), CallerIP: "10.0.0.1"}), KindNotFound)
	wantKind(t, m.Remove(ctx, RemoveRequest{Key: w.Key, Password: "pw", CallerIP: "11.0.0.1"}), KindForbidden)
	wantKind(t, m.Remove(ctx, RemoveRequest{Key: w.Key, Password: "no", CallerIP: "10.0.0.1"}), KindUnauthorized)

	if err := m.Remove(ctx, RemoveRequest{Key: w.Key, Password: "pw", CallerIP: "10.0.0.1"}); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := store.Get(ctx, w.Key); err == nil {
		t.Error("record still present after Remove()")
	}
}

func TestRemoveUnacknowledged(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()

	w, _ := m.Write(ctx, WriteRequest{Payload: ptr("x")})
	store.DeleteMisses = true

	err := m.Remove(ctx, RemoveRequest{Key: w.Key, CallerIP: "1.1.1.1"})
	wantKind(t, err, KindValidation)
	if err.Error() != "delete failed" {
		t.Errorf("Remove() error = %q, want %q", err.Error(), "delete failed")
	}
}

func TestBackendErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	m, store := setupTest()
	store.SetErr = boom
	_, err := m.Write(ctx, WriteRequest{Payload: ptr("x")})
	wantKind(t, err, KindBackend)
	if !errors.Is(err, boom) {
		t.Errorf("backend cause not preserved: %v", err)
	}

	m, store = setupTest()
	store.GetErr = boom
	_, err = m.Read(ctx, ReadRequest{Key: access.NewUUID(), CallerIP: "1.1.1.1"})
	wantKind(t, err, KindBackend)

	m, store = setupTest()
	w, _ := m.Write(ctx, WriteRequest{Payload: ptr("x")})
	store.DeleteErr = boom
	wantKind(t, m.Remove(ctx, RemoveRequest{Key: w.Key, CallerIP: "1.1.1.1"}), KindBackend)

	m, store = setupTest()
	store.CountErr = boom
	_, err = m.Status(ctx)
	wantKind(t, err, KindBackend)
}

func TestStatus(t *testing.T) {
	m, store := setupTest()
	ctx := context.Background()

	m.Write(ctx, WriteRequest{Payload: ptr("a")})
	m.Write(ctx, WriteRequest{Payload: ptr("b")})

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Available || st.Count != 2 {
		t.Errorf("Status() = %+v, want 2 available", st)
	}

	store.CountUnavailable = true
	st, err = m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Available {
		t.Errorf("Status() = %+v, want unavailable", st)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 400},
		{KindUnauthorized, 401},
		{KindForbidden, 403},
		{KindNotFound, 404},
		{KindBackend, 500},
	}
	for _, tt := range tests {
		err := &Error{Kind: tt.kind, Message: "m"}
		if got := err.Status(); got != tt.want {
			t.Errorf("%v.Status() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
