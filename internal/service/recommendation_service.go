package service

import (
	"context"
	"fmt"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/pkg/classifier"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
)

type predictionKey [domain.FeatureCount]float64

// recommendationService turns measurements into a crop name
type recommendationService struct {
	classifier classifier.Classifier
	catalog    domain.LabelCatalog
	cache      *lru.Cache[predictionKey, domain.CropLabel]
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewRecommendationService creates a recommendation service.
// A cacheSize of zero or less disables the prediction cache.
func NewRecommendationService(c classifier.Classifier, catalog domain.LabelCatalog, cacheSize int, log *logger.Logger, m *metrics.Metrics) (RecommendationService, error) {
	if c == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if catalog == nil {
		catalog = domain.DefaultCatalog
	}
	if log == nil {
		log = logger.NewNop()
	}

	service := &recommendationService{
		classifier: c,
		catalog:    catalog,
		logger:     log,
		metrics:    m,
	}

	if cacheSize > 0 {
		cache, err := lru.New[predictionKey, domain.CropLabel](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create prediction cache: %w", err)
		}
		service.cache = cache
	}

	return service, nil
}

// Recommend classifies the measurements and decodes the label.
// Out-of-range values are not rejected; they are reported in the result.
func (s *recommendationService) Recommend(ctx context.Context, features domain.FeatureVector) (*domain.Recommendation, error) {
	label, err := s.predict(ctx, features)
	if err != nil {
		s.metrics.IncError("classifier")
		s.logger.WithError(err).Error("Classifier failed")
		return nil, fmt.Errorf("predict crop: %w", err)
	}

	name, err := s.catalog.Decode(label)
	if err != nil {
		s.metrics.IncError("unknown_label")
		s.logger.WithField("label", label.String()).Warn("Classifier returned an unknown label")
		return nil, err
	}

	outOfRange := features.OutOfRange()
	if outOfRange == nil {
		outOfRange = []string{}
	}

	crop := domain.DisplayName(name)
	s.metrics.IncRecommendation(name)
	s.logger.WithFields(map[string]interface{}{
		"crop":         crop,
		"label":        label.String(),
		"out_of_range": outOfRange,
	}).Debug("Recommendation produced")

	return &domain.Recommendation{
		Crop:       crop,
		Label:      label,
		OutOfRange: outOfRange,
	}, nil
}

// Catalog returns the known crops ordered by code
func (s *recommendationService) Catalog() []domain.CatalogEntry {
	return s.catalog.Entries()
}

func (s *recommendationService) predict(ctx context.Context, features domain.FeatureVector) (domain.CropLabel, error) {
	values := features.Values()

	var key predictionKey
	copy(key[:], values)

	if s.cache != nil {
		if label, ok := s.cache.Get(key); ok {
			s.metrics.IncCacheHit()
			return label, nil
		}
	}

	start := time.Now()
	label, err := s.classifier.Predict(ctx, values)
	s.metrics.ObservePredict(time.Since(start))
	if err != nil {
		return domain.CropLabel{}, err
	}

	if s.cache != nil {
		s.cache.Add(key, label)
	}
	return label, nil
}
