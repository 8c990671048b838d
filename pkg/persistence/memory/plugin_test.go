package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/QualityUnit/flowbatch/pkg/persistence"
)

func newStorage(t *testing.T) persistence.BatchStorage {
	t.Helper()
	plugin, err := NewPlugin(persistence.PluginConfig{})
	if err != nil {
		t.Fatalf("NewPlugin: %v", err)
	}
	return plugin.BatchStorage()
}

func view(id string, createdAt time.Time) domain.BatchView {
	return domain.BatchView{
		ID:        id,
		Flow:      domain.FlowRef{FlowID: "flow-1"},
		Status:    domain.BatchFinished,
		CreatedAt: createdAt,
	}
}

func TestMemorySaveGetRoundTrip(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	v := view("b-1", time.Now().UTC())
	if err := s.Save(ctx, v); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "b-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "b-1" || got.Flow.FlowID != "flow-1" {
		t.Errorf("unexpected batch: %+v", got)
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	s := newStorage(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"b-old", "b-mid", "b-new"} {
		if err := s.Save(ctx, view(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	got, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(got))
	}
	if got[0].ID != "b-new" || got[2].ID != "b-old" {
		t.Errorf("expected newest first, got %s .. %s", got[0].ID, got[2].ID)
	}

	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 batches with limit, got %d", len(limited))
	}
}

func TestMemoryDelete(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	if err := s.Save(ctx, view("b-1", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "b-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "b-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestMemoryPurgeOlderThan(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.Save(ctx, view("b-old", now.Add(-48*time.Hour)))
	_ = s.Save(ctx, view("b-new", now))

	deleted, err := s.PurgeOlderThan(ctx, now.Add(-24*time.Hour), 100)
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if _, err := s.Get(ctx, "b-new"); err != nil {
		t.Errorf("recent batch should survive purge: %v", err)
	}
}
