package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"record-gateway/internal/audit"
	"record-gateway/internal/cache"
	apperrors "record-gateway/internal/common/errors"
	"record-gateway/internal/redis"
	"record-gateway/internal/storage"
)

type fakeStorage struct {
	records map[int64]*storage.Record
	nextID  int64
	failErr error

	createCalls int
	listCalls   int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{records: make(map[int64]*storage.Record), nextID: 1}
}

func (f *fakeStorage) CreateRecord(name string, payload json.RawMessage) (*storage.Record, error) {
	f.createCalls++
	if f.failErr != nil {
		return nil, f.failErr
	}

	now := time.Now().UTC()
	record := &storage.Record{
		ID:        f.nextID,
		Name:      name,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.records[f.nextID] = record
	f.nextID++
	return record, nil
}

func (f *fakeStorage) GetRecord(id int64) (*storage.Record, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	record, ok := f.records[id]
	if !ok {
		return nil, apperrors.NotFoundError("record")
	}
	return record, nil
}

func (f *fakeStorage) ListRecords() ([]*storage.Record, error) {
	f.listCalls++
	if f.failErr != nil {
		return nil, f.failErr
	}

	records := make([]*storage.Record, 0, len(f.records))
	for id := int64(1); id < f.nextID; id++ {
		if record, ok := f.records[id]; ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (f *fakeStorage) UpdateRecord(id int64, name string, payload json.RawMessage) (*storage.Record, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	record, ok := f.records[id]
	if !ok {
		return nil, apperrors.NotFoundError("record")
	}
	record.Name = name
	record.Payload = payload
	record.UpdatedAt = time.Now().UTC()
	return record, nil
}

func (f *fakeStorage) DeleteRecord(id int64) error {
	if f.failErr != nil {
		return f.failErr
	}
	if _, ok := f.records[id]; !ok {
		return apperrors.NotFoundError("record")
	}
	delete(f.records, id)
	return nil
}

func (f *fakeStorage) DeleteAllRecords() (int64, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	count := int64(len(f.records))
	f.records = make(map[int64]*storage.Record)
	return count, nil
}

func (f *fakeStorage) CountRecords() (int64, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return int64(len(f.records)), nil
}

func (f *fakeStorage) PoolStats() storage.PoolStats { return storage.PoolStats{} }
func (f *fakeStorage) Health() error                { return nil }
func (f *fakeStorage) Close() error                 { return nil }

type recordingSink struct {
	events chan audit.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan audit.Event, 16)}
}

func (s *recordingSink) Enabled() bool { return true }

func (s *recordingSink) Log(event audit.Event) { s.events <- event }

func (s *recordingSink) Query(ctx context.Context, f audit.Filter) []audit.Event { return nil }

func (s *recordingSink) Count(ctx context.Context, f audit.Filter) int64 { return 0 }

func (s *recordingSink) Stats(ctx context.Context) *audit.Stats { return &audit.Stats{} }

func (s *recordingSink) waitForEvent(t *testing.T) audit.Event {
	t.Helper()
	select {
	case event := <-s.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return audit.Event{}
	}
}

func setupRepository(t *testing.T) (*RecordRepository, *fakeStorage, *recordingSink, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, client.Initialize(context.Background()))
	t.Cleanup(func() { _ = client.Shutdown() })

	store := newFakeStorage()
	sink := newRecordingSink()
	repo := NewRecordRepository(store, cache.NewRedisStore(client, "cache:"), sink, 5*time.Minute)

	return repo, store, sink, mr
}

func TestListCachesResults(t *testing.T) {
	repo, store, _, _ := setupRepository(t)
	ctx := context.Background()

	_, err := store.CreateRecord("alpha", json.RawMessage(`{"size": 1}`))
	require.NoError(t, err)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, store.listCalls)

	// Second call is served from the cache even though the store changed
	// underneath.
	_, err = store.CreateRecord("beta", json.RawMessage(`{}`))
	require.NoError(t, err)

	records, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, store.listCalls)
}

func TestListInvalidCachedPayloadFallsThrough(t *testing.T) {
	repo, store, _, mr := setupRepository(t)
	ctx := context.Background()

	_, err := store.CreateRecord("alpha", json.RawMessage(`{}`))
	require.NoError(t, err)

	t.Run("undecodable value", func(t *testing.T) {
		require.NoError(t, mr.Set("cache:"+ListCacheKey, `not json at all`))

		records, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("element missing fields", func(t *testing.T) {
		require.NoError(t, mr.Set("cache:"+ListCacheKey, `[{"id": 7}]`))

		records, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "alpha", records[0].Name)
	})
}

func TestCreateInvalidatesCacheAndAudits(t *testing.T) {
	repo, _, sink, mr := setupRepository(t)
	ctx := context.Background()

	_, err := repo.List(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("cache:"+ListCacheKey))

	record, err := repo.Create(ctx, "alpha", json.RawMessage(`{"size": 1}`))
	require.NoError(t, err)
	assert.Equal(t, "alpha", record.Name)

	event := sink.waitForEvent(t)
	assert.Equal(t, audit.EventDBOperation, event.Type)
	assert.Equal(t, "create", event.Metadata["operation"])
	assert.Equal(t, []int64{record.ID}, event.Metadata["record_ids"])
	assert.False(t, mr.Exists("cache:"+ListCacheKey))
}

func TestCreateValidation(t *testing.T) {
	repo, store, _, _ := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "", json.RawMessage(`{}`))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = repo.Create(ctx, "alpha", json.RawMessage(`{broken`))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	assert.Equal(t, 0, store.createCalls)
}

func TestCreateDefaultsEmptyPayload(t *testing.T) {
	repo, _, sink, _ := setupRepository(t)

	record, err := repo.Create(context.Background(), "alpha", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(record.Payload))
	sink.waitForEvent(t)
}

func TestStoreFailureSkipsCacheAndAudit(t *testing.T) {
	repo, store, sink, mr := setupRepository(t)
	ctx := context.Background()

	_, err := repo.List(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("cache:"+ListCacheKey))

	store.failErr = apperrors.InternalError("database unavailable", nil)

	_, err = repo.Create(ctx, "alpha", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInternal))

	// Cache entry survives a failed mutation and no event is recorded.
	assert.True(t, mr.Exists("cache:"+ListCacheKey))
	select {
	case <-sink.events:
		t.Fatal("unexpected audit event after failed mutation")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeleteNotFound(t *testing.T) {
	repo, _, _, _ := setupRepository(t)

	err := repo.Delete(context.Background(), 42)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestDeleteAll(t *testing.T) {
	repo, store, sink, _ := setupRepository(t)
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta"} {
		_, err := store.CreateRecord(name, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	count, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	event := sink.waitForEvent(t)
	assert.Equal(t, "delete_all", event.Metadata["operation"])
}

func TestMutateThenListReflectsChange(t *testing.T) {
	repo, _, sink, _ := setupRepository(t)
	ctx := context.Background()

	record, err := repo.Create(ctx, "alpha", json.RawMessage(`{"size": 1}`))
	require.NoError(t, err)
	sink.waitForEvent(t)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = repo.Update(ctx, record.ID, "beta", json.RawMessage(`{"size": 2}`))
	require.NoError(t, err)
	sink.waitForEvent(t)

	records, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "beta", records[0].Name)
	assert.JSONEq(t, `{"size": 2}`, string(records[0].Payload))
}

func TestWorksWithEverythingDisabled(t *testing.T) {
	store := newFakeStorage()
	repo := NewRecordRepository(store, cache.NewDisabledStore(), audit.NewDisabledSink(), 5*time.Minute)
	ctx := context.Background()

	record, err := repo.Create(ctx, "alpha", json.RawMessage(`{}`))
	require.NoError(t, err)

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	require.NoError(t, repo.Delete(ctx, record.ID))
}
