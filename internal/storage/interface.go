package storage

import (
	"encoding/json"
	"time"
)

// Record is a persisted row in the records table. Payload holds the
// caller-supplied JSON document verbatim.
type Record struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PoolStats is a snapshot of the underlying connection pool.
type PoolStats struct {
	Total   int `json:"total"`
	Idle    int `json:"idle"`
	Active  int `json:"active"`
	Waiting int `json:"waiting"`
}

// Storage is the persistence contract implemented by each database
// adapter. Mutations return the post-mutation row so callers never
// have to re-read. Not-found conditions surface as
// errors.ErrTypeNotFound; unique constraint violations as
// errors.ErrTypeConflict.
type Storage interface {
	CreateRecord(name string, payload json.RawMessage) (*Record, error)
	GetRecord(id int64) (*Record, error)
	ListRecords() ([]*Record, error)
	UpdateRecord(id int64, name string, payload json.RawMessage) (*Record, error)
	DeleteRecord(id int64) error
	DeleteAllRecords() (int64, error)
	CountRecords() (int64, error)

	PoolStats() PoolStats
	Health() error
	Close() error
}

// StorageConfig is implemented by each adapter's config type.
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

// StorageFactory creates adapters from their config.
type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
	GetType() string
}
