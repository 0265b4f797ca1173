// Package repository combines the relational store, the cache and the audit
// trail behind a single record-facing API. The relational store is the only
// source of truth; the cache and the trail are side channels that can never
// fail a call.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"record-gateway/internal/audit"
	"record-gateway/internal/cache"
	apperrors "record-gateway/internal/common/errors"
	"record-gateway/internal/common/logging"
	"record-gateway/internal/storage"
)

// ListCacheKey is the collection-level cache key. Mutations invalidate it
// instead of patching the cached list in place.
const ListCacheKey = "records:list"

const (
	maxNameLength     = 255
	invalidateTimeout = 5 * time.Second
)

type RecordRepository struct {
	store  storage.Storage
	cache  cache.Store
	sink   audit.Sink
	ttl    time.Duration
	logger logging.Logger
}

func NewRecordRepository(store storage.Storage, cacheStore cache.Store, sink audit.Sink, ttl time.Duration) *RecordRepository {
	return &RecordRepository{
		store:  store,
		cache:  cacheStore,
		sink:   sink,
		ttl:    ttl,
		logger: logging.GetGlobalLogger().WithFields(logging.String("component", "repository")),
	}
}

// List serves from the cache when the cached list passes structural
// validation, otherwise queries the store and re-populates the cache
// best-effort.
func (r *RecordRepository) List(ctx context.Context) ([]*storage.Record, error) {
	var cached []*storage.Record
	if r.cache.GetJSON(ctx, ListCacheKey, &cached, func() bool { return validRecords(cached) }) {
		return cached, nil
	}

	records, err := r.store.ListRecords()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*storage.Record{}
	}

	r.cache.Set(ctx, ListCacheKey, records, r.ttl)
	return records, nil
}

func (r *RecordRepository) Get(ctx context.Context, id int64) (*storage.Record, error) {
	return r.store.GetRecord(id)
}

func (r *RecordRepository) Create(ctx context.Context, name string, payload json.RawMessage) (*storage.Record, error) {
	name, payload, err := validateInput(name, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	record, err := r.store.CreateRecord(name, payload)
	if err != nil {
		return nil, err
	}

	r.afterMutation("create", start, record.ID)
	return record, nil
}

func (r *RecordRepository) Update(ctx context.Context, id int64, name string, payload json.RawMessage) (*storage.Record, error) {
	name, payload, err := validateInput(name, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	record, err := r.store.UpdateRecord(id, name, payload)
	if err != nil {
		return nil, err
	}

	r.afterMutation("update", start, record.ID)
	return record, nil
}

func (r *RecordRepository) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	if err := r.store.DeleteRecord(id); err != nil {
		return err
	}

	r.afterMutation("delete", start, id)
	return nil
}

// DeleteAll removes every record and reports how many were deleted.
func (r *RecordRepository) DeleteAll(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := r.store.DeleteAllRecords()
	if err != nil {
		return 0, err
	}

	r.afterMutation("delete_all", start)
	return count, nil
}

func (r *RecordRepository) Count(ctx context.Context) (int64, error) {
	return r.store.CountRecords()
}

// afterMutation invalidates the list cache and records an audit event off
// the request path. The goroutine runs on a detached context so a slow
// cache or trail never holds up the response.
func (r *RecordRepository) afterMutation(operation string, start time.Time, ids ...int64) {
	duration := time.Since(start)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()

		r.cache.Delete(ctx, ListCacheKey)

		metadata := map[string]interface{}{
			"operation": operation,
		}
		if len(ids) > 0 {
			metadata["record_ids"] = ids
		}

		r.sink.Log(audit.Event{
			Type:       audit.EventDBOperation,
			Timestamp:  time.Now().UTC(),
			DurationMs: duration.Milliseconds(),
			Metadata:   metadata,
		})
	}()
}

func validateInput(name string, payload json.RawMessage) (string, json.RawMessage, error) {
	if name == "" {
		return "", nil, apperrors.ValidationError("record name is required")
	}
	if len(name) > maxNameLength {
		return "", nil, apperrors.ValidationError(fmt.Sprintf("record name exceeds %d characters", maxNameLength))
	}

	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return "", nil, apperrors.ValidationError("record payload is not valid JSON")
	}

	return name, payload, nil
}

// validRecords rejects cached lists whose elements lost fields somewhere
// between serialization and now. A failed check is a cache miss, not an
// error.
func validRecords(records []*storage.Record) bool {
	for _, record := range records {
		if record == nil {
			return false
		}
		if record.ID <= 0 || record.Name == "" {
			return false
		}
		if len(record.Payload) == 0 || !json.Valid(record.Payload) {
			return false
		}
		if record.CreatedAt.IsZero() || record.UpdatedAt.IsZero() {
			return false
		}
	}
	return true
}
