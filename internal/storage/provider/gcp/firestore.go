package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	storagetypes "github.com/nckslvrmn/drop/internal/storage/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fieldExpireAt is the timestamp field a Firestore TTL policy should be
// configured on.
const fieldExpireAt = "expire_at"

// FirestoreClientInterface defines the interface for Firestore client operations we use
type FirestoreClientInterface interface {
	Collection(path string) CollectionRefInterface
	Close() error
}

// CollectionRefInterface defines the interface for collection operations we use
type CollectionRefInterface interface {
	Doc(id string) DocumentRefInterface
	// CountLive counts documents whose expire_at is after now.
	CountLive(ctx context.Context, now time.Time) (int64, error)
	ForEachID(ctx context.Context, fn func(id string) error) error
}

// DocumentRefInterface defines the interface for document operations we use
type DocumentRefInterface interface {
	Get(ctx context.Context) (DocumentSnapshotInterface, error)
	Set(ctx context.Context, data any) (*firestore.WriteResult, error)
	Delete(ctx context.Context, opts ...firestore.Precondition) (*firestore.WriteResult, error)
}

// DocumentSnapshotInterface defines the interface for document snapshot operations we use
type DocumentSnapshotInterface interface {
	Data() map[string]any
}

// firestoreClientWrapper wraps firestore.Client to implement FirestoreClientInterface
type firestoreClientWrapper struct {
	client *firestore.Client
}

func (f *firestoreClientWrapper) Collection(path string) CollectionRefInterface {
	return &collectionRefWrapper{collection: f.client.Collection(path)}
}

func (f *firestoreClientWrapper) Close() error {
	return f.client.Close()
}

// collectionRefWrapper wraps firestore.CollectionRef to implement CollectionRefInterface
type collectionRefWrapper struct {
	collection *firestore.CollectionRef
}

func (c *collectionRefWrapper) Doc(id string) DocumentRefInterface {
	return &documentRefWrapper{doc: c.collection.Doc(id)}
}

func (c *collectionRefWrapper) CountLive(ctx context.Context, now time.Time) (int64, error) {
	q := c.collection.Where(fieldExpireAt, ">", now)
	results, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	value, ok := results["all"].(*firestorepb.Value)
	if !ok {
		return 0, errors.New("count missing from aggregation result")
	}
	return value.GetIntegerValue(), nil
}

func (c *collectionRefWrapper) ForEachID(ctx context.Context, fn func(id string) error) error {
	refs := c.collection.DocumentRefs(ctx)
	for {
		ref, err := refs.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(ref.ID); err != nil {
			return err
		}
	}
}

// documentRefWrapper wraps firestore.DocumentRef to implement DocumentRefInterface
type documentRefWrapper struct {
	doc *firestore.DocumentRef
}

func (d *documentRefWrapper) Get(ctx context.Context) (DocumentSnapshotInterface, error) {
	snapshot, err := d.doc.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &documentSnapshotWrapper{snapshot: snapshot}, nil
}

func (d *documentRefWrapper) Set(ctx context.Context, data any) (*firestore.WriteResult, error) {
	return d.doc.Set(ctx, data)
}

func (d *documentRefWrapper) Delete(ctx context.Context, opts ...firestore.Precondition) (*firestore.WriteResult, error) {
	return d.doc.Delete(ctx, opts...)
}

// documentSnapshotWrapper wraps firestore.DocumentSnapshot to implement DocumentSnapshotInterface
type documentSnapshotWrapper struct {
	snapshot *firestore.DocumentSnapshot
}

func (d *documentSnapshotWrapper) Data() map[string]any {
	return d.snapshot.Data()
}

// FirestoreStore keeps records as documents. Firestore deletes are not
// acknowledged, so Delete always reports success.
type FirestoreStore struct {
	client     FirestoreClientInterface
	collection string
	now        func() time.Time
}

func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{
		client:     &firestoreClientWrapper{client: client},
		collection: collection,
		now:        time.Now,
	}, nil
}

func (f *FirestoreStore) Set(ctx context.Context, key string, rec *storagetypes.Record, ttl time.Duration) error {
	doc := map[string]any{
		"data":        rec.Data,
		"ip":          rec.IPRule,
		"expiredTime": rec.Expiry,
		fieldExpireAt: storagetypes.Deadline(f.now(), ttl),
	}
	if rec.Password != "" {
		doc["password"] = rec.Password
	}

	if _, err := f.client.Collection(f.collection).Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store record in Firestore: %w", err)
	}

	return nil
}

func (f *FirestoreStore) Get(ctx context.Context, key string) (*storagetypes.Record, error) {
	doc, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, storagetypes.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record from Firestore: %w", err)
	}

	docData := doc.Data()

	// TTL policies delete documents up to a day late.
	if expireAt, ok := docData[fieldExpireAt].(time.Time); ok && !f.now().Before(expireAt) {
		return nil, storagetypes.ErrNotFound
	}

	data, ok := docData["data"].(string)
	if !ok {
		return nil, fmt.Errorf("data field not found")
	}

	rec := &storagetypes.Record{Data: data}
	rec.IPRule, _ = docData["ip"].(string)
	rec.Password, _ = docData["password"].(string)
	rec.Expiry, _ = docData["expiredTime"].(int64)
	return rec, nil
}

func (f *FirestoreStore) Delete(ctx context.Context, key string) (bool, error) {
	_, err := f.client.Collection(f.collection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return false, fmt.Errorf("failed to delete record from Firestore: %w", err)
	}

	return true, nil
}

// Count excludes documents past expire_at that the TTL policy has not
// removed yet, matching what Get reports.
func (f *FirestoreStore) Count(ctx context.Context) (int64, bool, error) {
	n, err := f.client.Collection(f.collection).CountLive(ctx, f.now())
	if err != nil {
		return 0, false, fmt.Errorf("failed to count Firestore documents: %w", err)
	}
	return n, true, nil
}

func (f *FirestoreStore) Keys(ctx context.Context, fn func(key string) error) error {
	return f.client.Collection(f.collection).ForEachID(ctx, fn)
}

func (f *FirestoreStore) Close() error {
	return f.client.Close()
}
