package repository

import (
	"context"

	"crop-advisor/internal/domain"
)

// Backend names accepted by VISITOR_STORE
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// VisitorRepository is the backing medium for the single visitor record.
// Update is atomic on the medium itself, so several processes may share the
// redis and postgres backends. Get and Put are plain reads and blind writes.
type VisitorRepository interface {
	// Get returns the persisted record, or domain.ErrRecordNotFound if nothing was stored yet
	Get(ctx context.Context) (*domain.VisitorRecord, error)

	// Put replaces the persisted record; a crash mid-write must leave the previous record readable
	Put(ctx context.Context, record *domain.VisitorRecord) error

	// Update applies fn to the current record, or to the empty record when none is stored,
	// and persists the result as one atomic read-modify-write. It returns the stored record.
	// An error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error)

	// Health reports whether the medium is reachable
	Health(ctx context.Context) error

	// Backend returns the backend name for logs and health output
	Backend() string

	// Close releases the underlying resource
	Close() error
}
