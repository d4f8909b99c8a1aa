package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyVisitorRepository_ConnectsWhenBackendReturns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "visitor_data.json")

	up := false
	attempts := 0
	open := func(ctx context.Context) (VisitorRepository, error) {
		attempts++
		if !up {
			return nil, errors.New("connection refused")
		}
		return NewFileVisitorRepository(path)
	}

	repo := NewLazyVisitorRepository(ctx, BackendRedis, open, 0, logger.NewNop())
	defer repo.Close()
	assert.Equal(t, 1, attempts)
	assert.Equal(t, BackendRedis, repo.Backend())

	_, err := repo.Get(ctx)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)
	_, err = repo.Update(ctx, func(*domain.VisitorRecord) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)
	assert.True(t, errors.Is(repo.Put(ctx, domain.NewVisitorRecord()), domain.ErrStorageUnavailable))
	assert.True(t, errors.Is(repo.Health(ctx), domain.ErrStorageUnavailable))

	up = true
	require.NoError(t, repo.Health(ctx))
	got, err := repo.Update(ctx, func(record *domain.VisitorRecord) error {
		record.Append(time.Now())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Count)

	// connected once, no further attempts
	before := attempts
	_, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, attempts)
}

func TestLazyVisitorRepository_ThrottlesReconnects(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	open := func(ctx context.Context) (VisitorRepository, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	repo := NewLazyVisitorRepository(ctx, BackendPostgres, open, time.Hour, nil)
	for i := 0; i < 5; i++ {
		_, err := repo.Get(ctx)
		assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)
	}
	assert.Equal(t, 1, attempts)
}

func TestLazyVisitorRepository_Closed(t *testing.T) {
	ctx := context.Background()
	repo := NewLazyVisitorRepository(ctx, BackendFile, func(ctx context.Context) (VisitorRepository, error) {
		return NewFileVisitorRepository(filepath.Join(t.TempDir(), "visitor_data.json"))
	}, 0, nil)

	require.NoError(t, repo.Close())
	_, err := repo.Get(ctx)
	assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)
}
