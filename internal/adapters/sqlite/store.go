// Package sqlite persists container ownership records in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/melih/lighthouse-sandbox/internal/core/domain"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Store implements ports.RecordStore.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates a record store at the given path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS containers (
			id           TEXT PRIMARY KEY,
			container_id TEXT NOT NULL UNIQUE,
			image        TEXT NOT NULL,
			owner_id     TEXT NOT NULL,
			status       TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_containers_owner ON containers(owner_id);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a new record. A second record for the same runtime container
// is rejected by the unique constraint.
func (s *Store) Insert(ctx context.Context, rec domain.ContainerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO containers (id, container_id, image, owner_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ContainerID, rec.Image, rec.OwnerID, string(rec.Status),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// GetByContainer returns the record for containerID if ownerID owns it.
func (s *Store) GetByContainer(ctx context.Context, ownerID, containerID string) (domain.ContainerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, container_id, image, owner_id, status, created_at, updated_at
		FROM containers WHERE container_id = ? AND owner_id = ?
	`, containerID, ownerID)
	return scanRecord(row)
}

// ListByOwner returns every record owned by ownerID, oldest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.ContainerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, container_id, image, owner_id, status, created_at, updated_at
		FROM containers WHERE owner_id = ? ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := []domain.ContainerRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// UpdateStatus sets the status of one record and returns the updated row.
func (s *Store) UpdateStatus(ctx context.Context, containerID string, status domain.Status) (domain.ContainerRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE containers SET status = ?, updated_at = ?
		WHERE container_id = ?
		RETURNING id, container_id, image, owner_id, status, created_at, updated_at
	`, string(status), time.Now().UTC().Format(time.RFC3339Nano), containerID)
	return scanRecord(row)
}

// Delete removes the record for containerID.
func (s *Store) Delete(ctx context.Context, containerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE container_id = ?`, containerID)
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.ContainerRecord, error) {
	var rec domain.ContainerRecord
	var status, createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.ContainerID, &rec.Image, &rec.OwnerID, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, domain.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scanning record: %w", err)
	}
	rec.Status = domain.Status(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}
