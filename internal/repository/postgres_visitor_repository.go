package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/pkg/database"

	"github.com/jackc/pgx/v5"
)

// postgresVisitorRepository keeps the visitor record in the single-row visitor_record table
type postgresVisitorRepository struct {
	db *database.PostgresDB
}

// NewPostgresVisitorRepository creates a new PostgreSQL-backed visitor repository
func NewPostgresVisitorRepository(db *database.PostgresDB) VisitorRepository {
	return &postgresVisitorRepository{
		db: db,
	}
}

const (
	postgresSelectVisitor = `SELECT count, timestamps FROM visitor_record WHERE id = 1`

	postgresUpsertVisitor = `
		INSERT INTO visitor_record (id, count, timestamps, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			count = EXCLUDED.count,
			timestamps = EXCLUDED.timestamps,
			updated_at = EXCLUDED.updated_at
	`

	postgresEnsureVisitor = `
		INSERT INTO visitor_record (id, count, timestamps, updated_at)
		VALUES (1, 0, '{}', $1)
		ON CONFLICT (id) DO NOTHING
	`
)

// Get retrieves the visitor row
func (r *postgresVisitorRepository) Get(ctx context.Context) (*domain.VisitorRecord, error) {
	return r.scan(r.db.Pool.QueryRow(ctx, postgresSelectVisitor))
}

// Put upserts the visitor row in a transaction
func (r *postgresVisitorRepository) Put(ctx context.Context, record *domain.VisitorRecord) error {
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, postgresUpsertVisitor, record.Count, record.Timestamps, time.Now().UTC())
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	return nil
}

// Update locks the row with SELECT ... FOR UPDATE so concurrent writers from any
// process queue behind each other instead of overwriting
func (r *postgresVisitorRepository) Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error) {
	var (
		updated *domain.VisitorRecord
		fnErr   error
	)

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, postgresEnsureVisitor, now); err != nil {
			return fmt.Errorf("%w: failed to create visitor row: %v", domain.ErrStorageUnavailable, err)
		}

		record, err := r.scan(tx.QueryRow(ctx, postgresSelectVisitor+" FOR UPDATE"))
		if err != nil {
			return err
		}
		if fnErr = fn(record); fnErr != nil {
			return fnErr
		}
		if err := record.Validate(); err != nil {
			return fmt.Errorf("%w: refusing to store inconsistent record: %v", domain.ErrStorageUnavailable, err)
		}
		if _, err := tx.Exec(ctx, postgresUpsertVisitor, record.Count, record.Timestamps, now); err != nil {
			return fmt.Errorf("%w: failed to write visitor record: %v", domain.ErrStorageUnavailable, err)
		}

		updated = record
		return nil
	})
	if err != nil {
		if fnErr != nil || errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to update visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	return updated, nil
}

func (r *postgresVisitorRepository) scan(row pgx.Row) (*domain.VisitorRecord, error) {
	record := &domain.VisitorRecord{}
	if err := row.Scan(&record.Count, &record.Timestamps); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: failed to get visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	if record.Timestamps == nil {
		record.Timestamps = []string{}
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: visitor record is inconsistent: %v", domain.ErrStorageUnavailable, err)
	}

	return record, nil
}

func (r *postgresVisitorRepository) Health(ctx context.Context) error {
	if err := r.db.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *postgresVisitorRepository) Backend() string {
	return BackendPostgres
}

func (r *postgresVisitorRepository) Close() error {
	r.db.Close()
	return nil
}
