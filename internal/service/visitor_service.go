package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/internal/repository"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"
)

// visitorService is the visitor analytics store. The repository holds the source
// of truth and makes each read-modify-write atomic on the backend; the mutex
// orders callers inside this process.
type visitorService struct {
	repo    repository.VisitorRepository
	logger  *logger.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// NewVisitorService creates a new visitor service
func NewVisitorService(repo repository.VisitorRepository, log *logger.Logger, m *metrics.Metrics) VisitorService {
	if log == nil {
		log = logger.NewNop()
	}

	service := &visitorService{
		repo:    repo,
		logger:  log.WithField("backend", repo.Backend()),
		metrics: m,
	}

	service.logger.Info("Initialized visitor service")
	return service
}

// Load returns the persisted record, creating the empty record on first access
func (s *visitorService) Load(ctx context.Context) (*domain.VisitorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.SetVisitorCount(record.Count)
	return record.Clone(), nil
}

// RecordVisit appends one visit and returns the new count
func (s *visitorService) RecordVisit(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.repo.Update(ctx, func(record *domain.VisitorRecord) error {
		record.Append(now)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to persist visit")
		return 0, fmt.Errorf("record visit: %w", err)
	}

	s.metrics.IncVisit(record.Count)
	s.logger.WithFields(map[string]interface{}{
		"count":      record.Count,
		"visited_at": record.Timestamps[len(record.Timestamps)-1],
	}).Debug("Visit recorded")

	return record.Count, nil
}

// ReadStats returns a consistent snapshot without mutating anything
func (s *visitorService) ReadStats(ctx context.Context) (*domain.VisitorStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrRecordNotFound) {
		record = domain.NewVisitorRecord()
	} else if err != nil {
		s.logger.WithError(err).Error("Failed to read visitor stats")
		return nil, fmt.Errorf("read stats: %w", err)
	}

	return domain.NewVisitorStats(record), nil
}

// Reset replaces the record with the empty record. Resetting an empty store is a no-op.
func (s *visitorService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Put(ctx, domain.NewVisitorRecord()); err != nil {
		s.logger.WithError(err).Error("Failed to reset visitor record")
		return fmt.Errorf("reset visitors: %w", err)
	}

	s.metrics.IncReset()
	s.logger.Info("Visitor record reset")
	return nil
}

func (s *visitorService) Health(ctx context.Context) error {
	return s.repo.Health(ctx)
}

func (s *visitorService) Backend() string {
	return s.repo.Backend()
}

func (s *visitorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Close()
}

// load must be called with the write lock held
func (s *visitorService) load(ctx context.Context) (*domain.VisitorRecord, error) {
	record, err := s.repo.Get(ctx)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		s.logger.WithError(err).Error("Failed to load visitor record")
		return nil, fmt.Errorf("load visitors: %w", err)
	}

	// an empty update stores the empty record, or returns one another process created first
	record, err = s.repo.Update(ctx, func(*domain.VisitorRecord) error { return nil })
	if err != nil {
		s.logger.WithError(err).Error("Failed to create empty visitor record")
		return nil, fmt.Errorf("create visitor record: %w", err)
	}

	s.logger.WithField("count", record.Count).Info("Created empty visitor record")
	return record, nil
}
