package container

import (
	"context"
	"fmt"
	"time"

	"crop-advisor/internal/config"
	"crop-advisor/internal/domain"
	"crop-advisor/internal/repository"
	"crop-advisor/internal/service"
	"crop-advisor/pkg/classifier"
	"crop-advisor/pkg/database"
	"crop-advisor/pkg/logger"
	"crop-advisor/pkg/metrics"
	"crop-advisor/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Services *service.Services
}

// New creates a new dependency injection container.
// A model that cannot be loaded is returned as *classifier.ModelLoadError.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	m := metrics.New()

	forest, err := classifier.LoadForest(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"model":   forest.Name,
		"version": forest.Version,
		"trees":   len(forest.Trees),
	}).Info("Classifier loaded")

	recommendationService, err := service.NewRecommendationService(forest, domain.DefaultCatalog, cfg.PredictionCacheSize, log.Named("recommendation"), m)
	if err != nil {
		return nil, err
	}

	repo, err := NewVisitorRepository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	visitorService := service.NewVisitorService(repo, log.Named("visitor"), m)
	record, err := visitorService.Load(ctx)
	if err != nil {
		// the store stays wired and reconnects; analytics return 503 until then
		log.WithError(err).Error("Failed to load visitor record")
	} else {
		log.WithField("count", record.Count).Info("Visitor record loaded")
	}

	return &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Services: &service.Services{
			Visitor:        visitorService,
			Recommendation: recommendationService,
		},
	}, nil
}

// storeRetryInterval spaces reconnect attempts to a visitor store that is down
const storeRetryInterval = 5 * time.Second

// NewVisitorRepository selects the backing medium named by VISITOR_STORE. Only an
// unknown store name is an error: a medium that cannot be opened is retried lazily
// and reports domain.ErrStorageUnavailable meanwhile, so recommendations keep serving.
func NewVisitorRepository(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.VisitorRepository, error) {
	open, err := visitorStoreOpener(cfg, log)
	if err != nil {
		return nil, err
	}

	return repository.NewLazyVisitorRepository(ctx, cfg.VisitorStore, open, storeRetryInterval, log.WithField("backend", cfg.VisitorStore)), nil
}

func visitorStoreOpener(cfg *config.Config, log *logger.Logger) (repository.OpenFunc, error) {
	log = log.WithField("backend", cfg.VisitorStore)

	switch cfg.VisitorStore {
	case config.StoreFile:
		return func(ctx context.Context) (repository.VisitorRepository, error) {
			log.WithField("path", cfg.VisitorDataPath).Info("Using file visitor store")
			return repository.NewFileVisitorRepository(cfg.VisitorDataPath)
		}, nil

	case config.StoreSQLite:
		return func(ctx context.Context) (repository.VisitorRepository, error) {
			db, err := database.NewSQLiteDB(ctx, cfg.VisitorDataPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite visitor store: %w", err)
			}
			log.WithField("path", cfg.VisitorDataPath).Info("Using sqlite visitor store")
			return repository.NewSQLiteVisitorRepository(db), nil
		}, nil

	case config.StoreBadger:
		return func(ctx context.Context) (repository.VisitorRepository, error) {
			repo, err := repository.NewBadgerVisitorRepository(cfg.VisitorDataPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open badger visitor store: %w", err)
			}
			log.WithField("dir", cfg.VisitorDataPath).Info("Using badger visitor store")
			return repo, nil
		}, nil

	case config.StoreRedis:
		return func(ctx context.Context) (repository.VisitorRepository, error) {
			client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to redis visitor store: %w", err)
			}
			log.WithField("key_prefix", client.KeyBuilder.GetPrefix()).Info("Using redis visitor store")
			return repository.NewRedisVisitorRepository(client), nil
		}, nil

	case config.StorePostgres:
		return func(ctx context.Context) (repository.VisitorRepository, error) {
			db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres visitor store: %w", err)
			}
			if _, err := db.Pool.Exec(ctx, database.PostgresSchema); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to ensure visitor schema: %w", err)
			}
			log.Info("Using postgres visitor store")
			return repository.NewPostgresVisitorRepository(db), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown visitor store %q", cfg.VisitorStore)
	}
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetVisitorService returns the visitor analytics store
func (c *Container) GetVisitorService() service.VisitorService {
	return c.Services.Visitor
}

// GetRecommendationService returns the recommendation service
func (c *Container) GetRecommendationService() service.RecommendationService {
	return c.Services.Recommendation
}

// Close releases the visitor store backend
func (c *Container) Close() error {
	return c.Services.Visitor.Close()
}
