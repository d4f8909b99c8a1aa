package repository

import (
	"context"
	"errors"
	"fmt"

	"crop-advisor/internal/domain"
	"crop-advisor/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
)

// redisVisitorRepository keeps count and timestamps in two keys updated inside MULTI/EXEC
type redisVisitorRepository struct {
	client        *redis.Client
	countKey      string
	timestampsKey string
}

// NewRedisVisitorRepository creates a repository using environment-prefixed keys
func NewRedisVisitorRepository(client *redis.Client) VisitorRepository {
	return &redisVisitorRepository{
		client:        client,
		countKey:      client.KeyBuilder.KeyVisitorCount(),
		timestampsKey: client.KeyBuilder.KeyVisitorTimestamps(),
	}
}

// redisUpdateAttempts bounds optimistic retries when other writers keep winning the race
const redisUpdateAttempts = 50

var errTornVisitorKeys = errors.New("visitor keys changed while being read")

type pipelineFunc func(ctx context.Context, fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error)

// Get reads both keys in one transaction so the pair is never torn
func (r *redisVisitorRepository) Get(ctx context.Context) (*domain.VisitorRecord, error) {
	return r.read(ctx, r.client.TxPipelined)
}

// Put rewrites both keys inside MULTI/EXEC
func (r *redisVisitorRepository) Put(ctx context.Context, record *domain.VisitorRecord) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		r.write(ctx, pipe, record)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write visitor keys: %v", domain.ErrStorageUnavailable, err)
	}

	return nil
}

// Update watches both keys, applies fn and commits with MULTI/EXEC. EXEC aborts when
// another client wrote the keys in between, and the whole cycle is retried.
func (r *redisVisitorRepository) Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error) {
	var (
		updated *domain.VisitorRecord
		fnErr   error
	)

	txf := func(tx *goredis.Tx) error {
		record, err := r.read(ctx, tx.Pipelined)
		if errors.Is(err, domain.ErrRecordNotFound) {
			record = domain.NewVisitorRecord()
		} else if errors.Is(err, errTornVisitorKeys) {
			// a concurrent write landed between the two reads; EXEC would fail anyway
			return redis.TxFailedErr
		} else if err != nil {
			return err
		}

		if fnErr = fn(record); fnErr != nil {
			return fnErr
		}
		if err := record.Validate(); err != nil {
			return fmt.Errorf("%w: refusing to store inconsistent record: %v", domain.ErrStorageUnavailable, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			r.write(ctx, pipe, record)
			return nil
		})
		if err != nil {
			return err
		}

		updated = record
		return nil
	}

	for attempt := 0; attempt < redisUpdateAttempts; attempt++ {
		fnErr = nil
		err := r.client.Watch(ctx, txf, r.countKey, r.timestampsKey)
		switch {
		case err == nil:
			return updated, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, ctx.Err())
			}
			continue
		case errors.Is(err, domain.ErrStorageUnavailable):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: failed to update visitor keys: %v", domain.ErrStorageUnavailable, err)
		}
	}

	return nil, fmt.Errorf("%w: visitor keys kept changing after %d attempts", domain.ErrStorageUnavailable, redisUpdateAttempts)
}

func (r *redisVisitorRepository) read(ctx context.Context, pipelined pipelineFunc) (*domain.VisitorRecord, error) {
	var (
		countCmd      *goredis.StringCmd
		timestampsCmd *goredis.StringSliceCmd
	)

	_, err := pipelined(ctx, func(pipe goredis.Pipeliner) error {
		countCmd = pipe.Get(ctx, r.countKey)
		timestampsCmd = pipe.LRange(ctx, r.timestampsKey, 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: failed to read visitor keys: %v", domain.ErrStorageUnavailable, err)
	}

	timestamps, err := timestampsCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read visitor timestamps: %v", domain.ErrStorageUnavailable, err)
	}

	count, err := countCmd.Int64()
	if errors.Is(err, goredis.Nil) {
		if len(timestamps) == 0 {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %w: timestamps exist without a count", domain.ErrStorageUnavailable, errTornVisitorKeys)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: visitor count is corrupt: %v", domain.ErrStorageUnavailable, err)
	}

	record := &domain.VisitorRecord{Count: count, Timestamps: timestamps}
	if record.Timestamps == nil {
		record.Timestamps = []string{}
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrStorageUnavailable, errTornVisitorKeys, err)
	}

	return record, nil
}

func (r *redisVisitorRepository) write(ctx context.Context, pipe goredis.Pipeliner, record *domain.VisitorRecord) {
	values := make([]interface{}, len(record.Timestamps))
	for i, ts := range record.Timestamps {
		values[i] = ts
	}

	pipe.Del(ctx, r.timestampsKey)
	if len(values) > 0 {
		pipe.RPush(ctx, r.timestampsKey, values...)
	}
	pipe.Set(ctx, r.countKey, record.Count, 0)
}

func (r *redisVisitorRepository) Health(ctx context.Context) error {
	if err := r.client.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *redisVisitorRepository) Backend() string {
	return BackendRedis
}

func (r *redisVisitorRepository) Close() error {
	return r.client.Close()
}
