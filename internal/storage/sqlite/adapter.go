package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "record-gateway/internal/common/errors"
	"record-gateway/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent mutations.
	db.SetMaxOpenConns(1)

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
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
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
	now := time.Now().UTC()

	result, err := a.db.Exec(
		`INSERT INTO records (name, payload, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, string(payload), now, now,
	)
	if err != nil {
		return nil, translateError(err, "failed to create record")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, apperrors.InternalError("failed to read inserted record id", err)
	}

	return a.GetRecord(id)
}

func (a *Adapter) GetRecord(id int64) (*storage.Record, error) {
	record, err := a.scanRecord(a.db.QueryRow(
		`SELECT id, name, payload, created_at, updated_at FROM records WHERE id = ?`, id))
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
		record, err := a.scanRecord(rows)
		if err != nil {
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
	result, err := a.db.Exec(
		`UPDATE records SET name = ?, payload = ?, updated_at = ? WHERE id = ?`,
		name, string(payload), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, translateError(err, "failed to update record")
	}

	// The driver reports affected rows reliably; zero is the only
	// signal that the id did not exist.
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, apperrors.InternalError("failed to read affected rows", err)
	}
	if affected == 0 {
		return nil, apperrors.NotFoundError("record")
	}

	return a.GetRecord(id)
}

func (a *Adapter) DeleteRecord(id int64) error {
	result, err := a.db.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return translateError(err, "failed to delete record")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.InternalError("failed to read affected rows", err)
	}
	if affected == 0 {
		return apperrors.NotFoundError("record")
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

type scanner interface {
	Scan(dest ...interface{}) error
}

func (a *Adapter) scanRecord(row scanner) (*storage.Record, error) {
	record := &storage.Record{}
	var payload string

	if err := row.Scan(&record.ID, &record.Name, &payload, &record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}

	record.Payload = json.RawMessage(payload)
	return record, nil
}

func translateError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFoundError("record")
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return apperrors.ConflictError("record name already exists", err)
	}

	return apperrors.InternalError(msg, err)
}
