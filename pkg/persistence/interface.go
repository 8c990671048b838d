package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/QualityUnit/flowbatch/pkg/domain"
)

// ErrNotFound is returned when a batch does not exist
var ErrNotFound = errors.New("not found")

// PluginPersistence provides storage operations for persistence plugins.
// This is the main interface that all persistence backends must implement.
type PluginPersistence interface {
	// BatchStorage returns the batch storage implementation
	BatchStorage() BatchStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// BatchStorage defines persistence operations for batch snapshots
type BatchStorage interface {
	// Save stores a batch snapshot, overwriting any previous snapshot
	Save(ctx context.Context, view domain.BatchView) error

	// Get retrieves a batch snapshot by ID
	Get(ctx context.Context, id string) (*domain.BatchView, error)

	// List returns batch snapshots newest first; limit <= 0 returns all
	List(ctx context.Context, limit int) ([]domain.BatchView, error)

	// Delete removes a batch snapshot
	Delete(ctx context.Context, id string) error

	// PurgeOlderThan removes batches created before the cutoff
	PurgeOlderThan(ctx context.Context, before time.Time, limit int) (int, error)
}
