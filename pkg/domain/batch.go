package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultParallelism = 5
	MaxParallelism     = 50
)

// FlowRef identifies a remote flow within a workspace.
type FlowRef struct {
	FlowID      string `json:"flowId"`
	WorkspaceID string `json:"workspaceId"`
}

// BatchConfig carries the run-wide parameters of a batch.
type BatchConfig struct {
	Parallelism       int    `json:"parallelism"`
	SingletonMode     bool   `json:"singletonMode"`
	WriteOutputToFile bool   `json:"writeOutputToFile"`
	OutputDirectory   string `json:"outputDirectory,omitempty"`
}

// Normalized clamps parallelism into [1, MaxParallelism], defaulting to
// DefaultParallelism when unset.
func (c BatchConfig) Normalized() BatchConfig {
	if c.Parallelism <= 0 {
		c.Parallelism = DefaultParallelism
	}
	if c.Parallelism > MaxParallelism {
		c.Parallelism = MaxParallelism
	}
	return c
}

type BatchStatus string

const (
	BatchPending  BatchStatus = "PENDING"
	BatchRunning  BatchStatus = "RUNNING"
	BatchStopped  BatchStatus = "STOPPED"
	BatchFinished BatchStatus = "FINISHED"
)

// BatchStats aggregates task counts for progress reporting.
type BatchStats struct {
	Total   int     `json:"total"`
	Waiting int     `json:"waiting"`
	Queued  int     `json:"queued"`
	Done    int     `json:"done"`
	Failed  int     `json:"failed"`
	Credits float64 `json:"credits"`
}

// Batch owns an ordered task list. Task order is insertion order and is never
// reordered by execution.
type Batch struct {
	ID        string
	Flow      FlowRef
	Config    BatchConfig
	Tasks     []*Task
	CreatedAt time.Time

	mu     sync.RWMutex
	status BatchStatus
}

// BatchView is the JSON shape of a batch for the control API and registry.
type BatchView struct {
	ID        string      `json:"id"`
	Flow      FlowRef     `json:"flow"`
	Config    BatchConfig `json:"config"`
	Status    BatchStatus `json:"status"`
	Stats     BatchStats  `json:"stats"`
	Tasks     []TaskView  `json:"tasks"`
	CreatedAt time.Time   `json:"createdAt"`
}

func NewBatch(flow FlowRef, cfg BatchConfig, tasks []*Task) *Batch {
	return &Batch{
		ID:        uuid.NewString(),
		Flow:      flow,
		Config:    cfg.Normalized(),
		Tasks:     tasks,
		CreatedAt: time.Now().UTC(),
		status:    BatchPending,
	}
}

// BatchFromView restores a batch (and its tasks) from a persisted snapshot.
func BatchFromView(v BatchView) *Batch {
	tasks := make([]*Task, 0, len(v.Tasks))
	for _, tv := range v.Tasks {
		tasks = append(tasks, TaskFromView(tv))
	}
	status := v.Status
	if status == "" || status == BatchRunning {
		// A snapshot that still says RUNNING belongs to an interrupted run.
		status = BatchPending
	}
	b := &Batch{
		ID:        v.ID,
		Flow:      v.Flow,
		Config:    v.Config.Normalized(),
		Tasks:     tasks,
		CreatedAt: v.CreatedAt,
		status:    status,
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return b
}

func (b *Batch) Status() BatchStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Batch) SetStatus(s BatchStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// TaskByID returns the task with the given id, or nil.
func (b *Batch) TaskByID(id string) *Task {
	for _, t := range b.Tasks {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

func (b *Batch) Stats() BatchStats {
	st := BatchStats{Total: len(b.Tasks)}
	for _, t := range b.Tasks {
		v := t.Snapshot()
		switch v.Status {
		case StatusWaiting:
			st.Waiting++
		case StatusQueued:
			st.Queued++
		case StatusDone:
			st.Done++
		case StatusFailed:
			st.Failed++
		}
		st.Credits += v.Credits
	}
	return st
}

func (b *Batch) Snapshot() BatchView {
	views := make([]TaskView, 0, len(b.Tasks))
	for _, t := range b.Tasks {
		views = append(views, t.Snapshot())
	}
	return BatchView{
		ID:        b.ID,
		Flow:      b.Flow,
		Config:    b.Config,
		Status:    b.Status(),
		Stats:     b.Stats(),
		Tasks:     views,
		CreatedAt: b.CreatedAt,
	}
}
