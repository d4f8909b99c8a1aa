package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"crop-advisor/internal/domain"

	"github.com/goccy/go-json"
)

// fileVisitorRepository stores the visitor record as a JSON document on local disk
type fileVisitorRepository struct {
	path string
	dir  string
}

// NewFileVisitorRepository creates a repository backed by the JSON file at path
func NewFileVisitorRepository(path string) (VisitorRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: visitor data path is empty", domain.ErrStorageUnavailable)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: failed to create visitor data directory: %v", domain.ErrStorageUnavailable, err)
	}

	return &fileVisitorRepository{
		path: path,
		dir:  dir,
	}, nil
}

// Get reads and validates the persisted record
func (r *fileVisitorRepository) Get(ctx context.Context) (*domain.VisitorRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: failed to read visitor file: %v", domain.ErrStorageUnavailable, err)
	}

	record := &domain.VisitorRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("%w: visitor file is corrupt: %v", domain.ErrStorageUnavailable, err)
	}
	if record.Timestamps == nil {
		record.Timestamps = []string{}
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: visitor file is inconsistent: %v", domain.ErrStorageUnavailable, err)
	}

	return record, nil
}

// Put writes the record to a temp file in the same directory and renames it over the target
func (r *fileVisitorRepository) Put(ctx context.Context, record *domain.VisitorRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: failed to encode visitor record: %v", domain.ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp visitor file: %v", domain.ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: failed to write temp visitor file: %v", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: failed to sync temp visitor file: %v", domain.ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp visitor file: %v", domain.ErrStorageUnavailable, err)
	}
	if err := os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("%w: failed to set visitor file mode: %v", domain.ErrStorageUnavailable, err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("%w: failed to replace visitor file: %v", domain.ErrStorageUnavailable, err)
	}
	committed = true

	// Persist the rename itself; some filesystems reject fsync on directories
	if d, err := os.Open(r.dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// Update reads, applies fn and rewrites the file. The file backend is owned by one
// process; the visitor service lock makes this atomic within it.
func (r *fileVisitorRepository) Update(ctx context.Context, fn func(*domain.VisitorRecord) error) (*domain.VisitorRecord, error) {
	record, err := r.Get(ctx)
	if errors.Is(err, domain.ErrRecordNotFound) {
		record = domain.NewVisitorRecord()
	} else if err != nil {
		return nil, err
	}

	if err := fn(record); err != nil {
		return nil, err
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("%w: refusing to store inconsistent record: %v", domain.ErrStorageUnavailable, err)
	}
	if err := r.Put(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Health checks that the data directory is still present
func (r *fileVisitorRepository) Health(ctx context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrStorageUnavailable, r.dir)
	}
	return nil
}

func (r *fileVisitorRepository) Backend() string {
	return BackendFile
}

func (r *fileVisitorRepository) Close() error {
	return nil
}
