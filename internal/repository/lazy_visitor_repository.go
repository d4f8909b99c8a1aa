package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/pkg/logger"
)

// OpenFunc connects to a backing medium
type OpenFunc func(ctx context.Context) (VisitorRepository, error)

// lazyVisitorRepository keeps the process serving while its backend is down.
// Until a connection succeeds every call fails with domain.ErrStorageUnavailable,
// and the connection is retried at most once per retryInterval.
type lazyVisitorRepository struct {
	backend       string
	open          OpenFunc
	retryInterval time.Duration
	logger        *logger.Logger

	mu          sync.Mutex
	repo        VisitorRepository
	lastErr     error
	lastAttempt time.Time
	closed      bool
}

// NewLazyVisitorRepository tries open once right away and keeps retrying on later calls
func NewLazyVisitorRepository(ctx context.Context, backend string, open OpenFunc, retryInterval time.Duration, log *logger.Logger) VisitorRepository {
	if log == nil {
		log = logger.NewNop()
	}

	r := &lazyVisitorRepository{
		backend:       backend,
		open:          open,
		retryInterval: retryInterval,
		logger:        log,
	}
	_, _ = r.current(ctx)
	return r
}

func (r *lazyVisitorRepository) Get(ctx context.Context) (*domain.VisitorRecord, error) {
	repo, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx)
}

func (r *lazyVisitorRepository) Put(ctx context.Context, record *domain.VisitorRecord) error {
	repo, err := r.current(ctx)
	if err != nil {
		return err
	}
	return repo.Put(ctx, record)
}

func (r *lazyVisitorRepository) Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error) {
	repo, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Update(ctx, fn)
}

func (r *lazyVisitorRepository) Health(ctx context.Context) error {
	repo, err := r.current(ctx)
	if err != nil {
		return err
	}
	return repo.Health(ctx)
}

func (r *lazyVisitorRepository) Backend() string {
	return r.backend
}

func (r *lazyVisitorRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.repo == nil {
		return nil
	}
	return r.repo.Close()
}

func (r *lazyVisitorRepository) current(ctx context.Context) (VisitorRepository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: %s visitor store is closed", domain.ErrStorageUnavailable, r.backend)
	}
	if r.repo != nil {
		return r.repo, nil
	}
	if !r.lastAttempt.IsZero() && time.Since(r.lastAttempt) < r.retryInterval {
		return nil, r.unavailable()
	}

	r.lastAttempt = time.Now()
	repo, err := r.open(ctx)
	if err != nil {
		r.lastErr = err
		r.logger.WithError(err).Warn("Visitor store unavailable, will retry")
		return nil, r.unavailable()
	}

	r.repo = repo
	r.lastErr = nil
	r.logger.Info("Visitor store connected")
	return repo, nil
}

func (r *lazyVisitorRepository) unavailable() error {
	if errors.Is(r.lastErr, domain.ErrStorageUnavailable) {
		return r.lastErr
	}
	return fmt.Errorf("%w: %s visitor store not connected: %v", domain.ErrStorageUnavailable, r.backend, r.lastErr)
}
