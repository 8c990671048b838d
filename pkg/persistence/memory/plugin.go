package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/QualityUnit/flowbatch/pkg/persistence"
)

// Plugin implements PluginPersistence for in-memory storage.
// Used by the CLI and tests; batch state does not survive the process.
type Plugin struct {
	mu      sync.RWMutex
	batches map[string]domain.BatchView
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return &Plugin{
		batches: make(map[string]domain.BatchView),
	}, nil
}

// BatchStorage returns the batch storage implementation
func (p *Plugin) BatchStorage() persistence.BatchStorage {
	return &batchStorage{plugin: p}
}

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

// batchStorage implements persistence.BatchStorage for in-memory storage
type batchStorage struct {
	plugin *Plugin
}

func (s *batchStorage) Save(ctx context.Context, view domain.BatchView) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	s.plugin.batches[view.ID] = view
	return nil
}

func (s *batchStorage) Get(ctx context.Context, id string) (*domain.BatchView, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	v, ok := s.plugin.batches[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &v, nil
}

func (s *batchStorage) List(ctx context.Context, limit int) ([]domain.BatchView, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()

	out := make([]domain.BatchView, 0, len(s.plugin.batches))
	for _, v := range s.plugin.batches {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *batchStorage) Delete(ctx context.Context, id string) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if _, ok := s.plugin.batches[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.plugin.batches, id)
	return nil
}

func (s *batchStorage) PurgeOlderThan(ctx context.Context, before time.Time, limit int) (int, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if limit <= 0 {
		limit = 1000
	}
	deleted := 0
	for id, v := range s.plugin.batches {
		if deleted >= limit {
			break
		}
		if v.CreatedAt.Before(before) {
			delete(s.plugin.batches, id)
			deleted++
		}
	}
	return deleted, nil
}
