package sqlite

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "record-gateway/internal/common/errors"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(&Config{
		DatabasePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter
}

func TestCreateRecord(t *testing.T) {
	adapter := newTestAdapter(t)

	record, err := adapter.CreateRecord("alpha", json.RawMessage(`{"size": 1}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), record.ID)
	assert.Equal(t, "alpha", record.Name)
	assert.JSONEq(t, `{"size": 1}`, string(record.Payload))
	assert.False(t, record.CreatedAt.IsZero())
	assert.Equal(t, record.CreatedAt, record.UpdatedAt)
}

func TestCreateRecordDuplicateName(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.CreateRecord("alpha", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = adapter.CreateRecord("alpha", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConflict))
}

func TestGetRecordNotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.GetRecord(42)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestUpdateRecord(t *testing.T) {
	adapter := newTestAdapter(t)

	created, err := adapter.CreateRecord("alpha", json.RawMessage(`{"size": 1}`))
	require.NoError(t, err)

	updated, err := adapter.UpdateRecord(created.ID, "beta", json.RawMessage(`{"size": 2}`))
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "beta", updated.Name)
	assert.JSONEq(t, `{"size": 2}`, string(updated.Payload))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestUpdateRecordNotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.UpdateRecord(42, "beta", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestDeleteRecord(t *testing.T) {
	adapter := newTestAdapter(t)

	created, err := adapter.CreateRecord("alpha", json.RawMessage(`{}`))
	require.NoError(t, err)

	require.NoError(t, adapter.DeleteRecord(created.ID))

	_, err = adapter.GetRecord(created.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	err = adapter.DeleteRecord(created.ID)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestListRecordsOrderedByID(t *testing.T) {
	adapter := newTestAdapter(t)

	for _, name := range []string{"charlie", "alpha", "beta"} {
		_, err := adapter.CreateRecord(name, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	records, err := adapter.ListRecords()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "charlie", records[0].Name)
	assert.Equal(t, "alpha", records[1].Name)
	assert.Equal(t, "beta", records[2].Name)
}

func TestDeleteAllRecords(t *testing.T) {
	adapter := newTestAdapter(t)

	for _, name := range []string{"alpha", "beta"} {
		_, err := adapter.CreateRecord(name, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	deleted, err := adapter.DeleteAllRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := adapter.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestCountRecords(t *testing.T) {
	adapter := newTestAdapter(t)

	count, err := adapter.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = adapter.CreateRecord("alpha", json.RawMessage(`{}`))
	require.NoError(t, err)

	count, err = adapter.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPoolStats(t *testing.T) {
	adapter := newTestAdapter(t)

	stats := adapter.PoolStats()
	assert.GreaterOrEqual(t, stats.Total, 0)
	assert.GreaterOrEqual(t, stats.Idle, 0)
}
