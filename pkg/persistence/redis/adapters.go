package redis

import (
	"context"
	"errors"
	"time"

	"github.com/QualityUnit/flowbatch/internal/repository"
	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/QualityUnit/flowbatch/pkg/persistence"
)

// batchStorageAdapter adapts repository.BatchRepository to persistence.BatchStorage
type batchStorageAdapter struct {
	repo repository.BatchRepository
}

func newBatchStorageAdapter(repo repository.BatchRepository) *batchStorageAdapter {
	return &batchStorageAdapter{repo: repo}
}

func (a *batchStorageAdapter) Save(ctx context.Context, view domain.BatchView) error {
	return a.repo.Save(ctx, view)
}

func (a *batchStorageAdapter) Get(ctx context.Context, id string) (*domain.BatchView, error) {
	v, err := a.repo.Get(ctx, id)
	return v, mapErr(err)
}

func (a *batchStorageAdapter) List(ctx context.Context, limit int) ([]domain.BatchView, error) {
	return a.repo.List(ctx, limit)
}

func (a *batchStorageAdapter) Delete(ctx context.Context, id string) error {
	return mapErr(a.repo.Delete(ctx, id))
}

func (a *batchStorageAdapter) PurgeOlderThan(ctx context.Context, before time.Time, limit int) (int, error) {
	return a.repo.PurgeOlderThan(ctx, before, limit)
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return persistence.ErrNotFound
	}
	return err
}
