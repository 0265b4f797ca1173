package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	apperrors "record-gateway/internal/common/errors"
	"record-gateway/internal/storage"
)

const maxOpenConns = 5

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

func (a *Adapter) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			payload JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_records_name ON records(name)`,
	}

	for _, query := range queries {
		if _, err := a.db.Exec(query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (a *Adapter) CreateRecord(name string, payload json.RawMessage) (*storage.Record, error) {
	record := &storage.Record{}

	err := a.db.QueryRow(
		`INSERT INTO records (name, payload) VALUES ($1, $2)
		 RETURNING id, name, payload, created_at, updated_at`,
		name, []byte(payload),
	).Scan(&record.ID, &record.Name, &record.Payload, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, translateError(err, "failed to create record")
	}

	return record, nil
}

func (a *Adapter) GetRecord(id int64) (*storage.Record, error) {
	record := &storage.Record{}

	err := a.db.QueryRow(
		`SELECT id, name, payload, created_at, updated_at FROM records WHERE id = $1`,
		id,
	).Scan(&record.ID, &record.Name, &record.Payload, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, translateError(err, "failed to get record")
	}

	return record, nil
}

func (a *Adapter) ListRecords() ([]*storage.Record, error) {
	rows, err := a.db.Query(
		`SELECT id, name, payload, created_at, updated_at FROM records ORDER BY id`)
	if err != nil {
		return nil, apperrors.InternalError("failed to list records", err)
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		record := &storage.Record{}
		if err := rows.Scan(&record.ID, &record.Name, &record.Payload, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, apperrors.InternalError("failed to scan record", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.InternalError("failed to list records", err)
	}

	return records, nil
}

func (a *Adapter) UpdateRecord(id int64, name string, payload json.RawMessage) (*storage.Record, error) {
	record := &storage.Record{}

	err := a.db.QueryRow(
		`UPDATE records SET name = $1, payload = $2, updated_at = NOW() WHERE id = $3
		 RETURNING id, name, payload, created_at, updated_at`,
		name, []byte(payload), id,
	).Scan(&record.ID, &record.Name, &record.Payload, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, translateError(err, "failed to update record")
	}

	return record, nil
}

func (a *Adapter) DeleteRecord(id int64) error {
	var deletedID int64

	err := a.db.QueryRow(
		`DELETE FROM records WHERE id = $1 RETURNING id`, id,
	).Scan(&deletedID)
	if err != nil {
		return translateError(err, "failed to delete record")
	}

	return nil
}

func (a *Adapter) DeleteAllRecords() (int64, error) {
	result, err := a.db.Exec(`DELETE FROM records`)
	if err != nil {
		return 0, apperrors.InternalError("failed to delete records", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.InternalError("failed to count deleted records", err)
	}

	return count, nil
}

func (a *Adapter) CountRecords() (int64, error) {
	var count int64
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, apperrors.InternalError("failed to count records", err)
	}
	return count, nil
}

func (a *Adapter) PoolStats() storage.PoolStats {
	stats := a.db.Stats()
	return storage.PoolStats{
		Total:   stats.OpenConnections,
		Idle:    stats.Idle,
		Active:  stats.InUse,
		Waiting: int(stats.WaitCount),
	}
}

// translateError maps driver errors onto the shared error taxonomy.
// Unique violations (SQLSTATE 23505) become conflicts, missing rows
// become not-found, everything else is internal.
func translateError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFoundError("record")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.ConflictError("record name already exists", err)
	}

	return apperrors.InternalError(msg, err)
}
