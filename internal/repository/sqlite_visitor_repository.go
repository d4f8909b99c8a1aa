package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/pkg/database"

	"github.com/goccy/go-json"
)

// sqliteVisitorRepository keeps the visitor record in a single sqlite row
type sqliteVisitorRepository struct {
	db *database.SQLiteDB
}

// NewSQLiteVisitorRepository creates a repository on an opened sqlite database
func NewSQLiteVisitorRepository(db *database.SQLiteDB) VisitorRepository {
	return &sqliteVisitorRepository{
		db: db,
	}
}

const (
	sqliteSelectVisitor = `SELECT count, timestamps FROM visitor_record WHERE id = 1`

	sqliteUpsertVisitor = `
		INSERT INTO visitor_record (id, count, timestamps, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			count = excluded.count,
			timestamps = excluded.timestamps,
			updated_at = excluded.updated_at
	`

	// writing first takes the database write lock before the row is read
	sqliteEnsureVisitor = `
		INSERT INTO visitor_record (id, count, timestamps, updated_at)
		VALUES (1, 0, '[]', ?)
		ON CONFLICT (id) DO NOTHING
	`
)

type sqliteQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Get reads the visitor row
func (r *sqliteVisitorRepository) Get(ctx context.Context) (*domain.VisitorRecord, error) {
	return r.read(ctx, r.db.DB)
}

// Put upserts count and timestamps in one transaction
func (r *sqliteVisitorRepository) Put(ctx context.Context, record *domain.VisitorRecord) error {
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return r.write(ctx, tx, record)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write visitor row: %v", domain.ErrStorageUnavailable, err)
	}

	return nil
}

// Update runs the read-modify-write in one transaction that holds the write lock throughout
func (r *sqliteVisitorRepository) Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error) {
	var (
		updated *domain.VisitorRecord
		fnErr   error
	)

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqliteEnsureVisitor, domain.FormatTimestamp(time.Now())); err != nil {
			return fmt.Errorf("%w: failed to lock visitor row: %v", domain.ErrStorageUnavailable, err)
		}

		record, err := r.read(ctx, tx)
		if err != nil {
			return err
		}
		if fnErr = fn(record); fnErr != nil {
			return fnErr
		}
		if err := record.Validate(); err != nil {
			return fmt.Errorf("%w: refusing to store inconsistent record: %v", domain.ErrStorageUnavailable, err)
		}
		if err := r.write(ctx, tx, record); err != nil {
			return fmt.Errorf("%w: failed to write visitor row: %v", domain.ErrStorageUnavailable, err)
		}

		updated = record
		return nil
	})
	if err != nil {
		if fnErr != nil || errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to update visitor row: %v", domain.ErrStorageUnavailable, err)
	}

	return updated, nil
}

func (r *sqliteVisitorRepository) read(ctx context.Context, q sqliteQueryer) (*domain.VisitorRecord, error) {
	var (
		count int64
		raw   string
	)
	err := q.QueryRowContext(ctx, sqliteSelectVisitor).Scan(&count, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: failed to read visitor row: %v", domain.ErrStorageUnavailable, err)
	}

	record := &domain.VisitorRecord{Count: count, Timestamps: []string{}}
	if err := json.Unmarshal([]byte(raw), &record.Timestamps); err != nil {
		return nil, fmt.Errorf("%w: visitor timestamps are corrupt: %v", domain.ErrStorageUnavailable, err)
	}
	if record.Timestamps == nil {
		record.Timestamps = []string{}
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: visitor row is inconsistent: %v", domain.ErrStorageUnavailable, err)
	}

	return record, nil
}

func (r *sqliteVisitorRepository) write(ctx context.Context, tx *sql.Tx, record *domain.VisitorRecord) error {
	raw, err := json.Marshal(record.Timestamps)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, sqliteUpsertVisitor, record.Count, string(raw), domain.FormatTimestamp(time.Now()))
	return err
}

func (r *sqliteVisitorRepository) Health(ctx context.Context) error {
	if err := r.db.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *sqliteVisitorRepository) Backend() string {
	return BackendSQLite
}

func (r *sqliteVisitorRepository) Close() error {
	return r.db.Close()
}
