package repository

import (
	"context"
	"errors"
	"fmt"

	"crop-advisor/internal/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

var badgerVisitorKey = []byte("visitor:record")

// badgerVisitorRepository stores the visitor record under one key in an embedded badger database
type badgerVisitorRepository struct {
	db *badger.DB
}

// NewBadgerVisitorRepository opens a badger database in dir.
// An empty dir opens an in-memory database, which is only useful in tests.
func NewBadgerVisitorRepository(dir string) (VisitorRepository, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil).WithSyncWrites(true)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database: %v", domain.ErrStorageUnavailable, err)
	}

	return &badgerVisitorRepository{db: db}, nil
}

const badgerUpdateAttempts = 5

// Get reads the record inside a read-only transaction
func (r *badgerVisitorRepository) Get(ctx context.Context) (*domain.VisitorRecord, error) {
	var record *domain.VisitorRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = readBadgerRecord(txn)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) || errors.Is(err, domain.ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to read visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	return record, nil
}

// Put replaces the record in a single update transaction
func (r *badgerVisitorRepository) Put(ctx context.Context, record *domain.VisitorRecord) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return writeBadgerRecord(txn, record)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	return nil
}

// Update reads and writes inside one badger transaction, retrying when badger reports a conflict
func (r *badgerVisitorRepository) Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error) {
	var lastErr error
	for attempt := 0; attempt < badgerUpdateAttempts; attempt++ {
		var (
			updated *domain.VisitorRecord
			fnErr   error
		)

		err := r.db.Update(func(txn *badger.Txn) error {
			record, err := readBadgerRecord(txn)
			if errors.Is(err, domain.ErrRecordNotFound) {
				record = domain.NewVisitorRecord()
			} else if err != nil {
				return err
			}

			if fnErr = fn(record); fnErr != nil {
				return fnErr
			}
			if err := record.Validate(); err != nil {
				return fmt.Errorf("%w: refusing to store inconsistent record: %v", domain.ErrStorageUnavailable, err)
			}
			if err := writeBadgerRecord(txn, record); err != nil {
				return fmt.Errorf("%w: failed to write visitor record: %v", domain.ErrStorageUnavailable, err)
			}

			updated = record
			return nil
		})
		switch {
		case err == nil:
			return updated, nil
		case fnErr != nil, errors.Is(err, domain.ErrStorageUnavailable):
			return nil, err
		case errors.Is(err, badger.ErrConflict):
			lastErr = err
			continue
		default:
			return nil, fmt.Errorf("%w: failed to update visitor record: %v", domain.ErrStorageUnavailable, err)
		}
	}

	return nil, fmt.Errorf("%w: visitor record update kept conflicting: %v", domain.ErrStorageUnavailable, lastErr)
}

func readBadgerRecord(txn *badger.Txn) (*domain.VisitorRecord, error) {
	item, err := txn.Get(badgerVisitorKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: failed to read visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	record := &domain.VisitorRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("%w: visitor record is corrupt: %v", domain.ErrStorageUnavailable, err)
	}
	if record.Timestamps == nil {
		record.Timestamps = []string{}
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: visitor record is inconsistent: %v", domain.ErrStorageUnavailable, err)
	}

	return record, nil
}

func writeBadgerRecord(txn *badger.Txn, record *domain.VisitorRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return txn.Set(badgerVisitorKey, data)
}

func (r *badgerVisitorRepository) Health(ctx context.Context) error {
	if r.db.IsClosed() {
		return fmt.Errorf("%w: badger database is closed", domain.ErrStorageUnavailable)
	}
	return nil
}

func (r *badgerVisitorRepository) Backend() string {
	return BackendBadger
}

func (r *badgerVisitorRepository) Close() error {
	return r.db.Close()
}
