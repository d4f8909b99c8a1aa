package service

import (
	"context"
	"time"

	"crop-advisor/internal/domain"
)

// VisitorService defines the visitor analytics store
type VisitorService interface {
	// Load returns the persisted record, durably creating the empty record on first access
	Load(ctx context.Context) (*domain.VisitorRecord, error)

	// RecordVisit appends now to the record and returns the new count
	RecordVisit(ctx context.Context, now time.Time) (int64, error)

	// ReadStats returns a consistent snapshot of the record
	ReadStats(ctx context.Context) (*domain.VisitorStats, error)

	// Reset replaces the record with the empty record
	Reset(ctx context.Context) error

	Health(ctx context.Context) error
	Backend() string
	Close() error
}

// RecommendationService defines crop recommendation operations
type RecommendationService interface {
	// Recommend classifies one set of measurements
	Recommend(ctx context.Context, features domain.FeatureVector) (*domain.Recommendation, error)

	// Catalog lists the crops the classifier can emit by code
	Catalog() []domain.CatalogEntry
}

// Services aggregates all service interfaces
type Services struct {
	Visitor        VisitorService
	Recommendation RecommendationService
}
