package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/QualityUnit/flowbatch/internal/executor"
	"github.com/QualityUnit/flowbatch/internal/importer"
	"github.com/QualityUnit/flowbatch/internal/metrics"
	"github.com/QualityUnit/flowbatch/internal/output"
	"github.com/QualityUnit/flowbatch/internal/repository"
	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/QualityUnit/flowbatch/pkg/flowhunt"
)

var (
	ErrBatchRunning    = errors.New("batch is running")
	ErrBatchNotRunning = errors.New("batch is not running")
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskNotTerminal = errors.New("task has not finished")
)

// TaskSpec is one row of a batch creation request.
type TaskSpec struct {
	Input    string `json:"input"`
	Filename string `json:"filename,omitempty"`
}

// ImportResult reports what a CSV import produced.
type ImportResult struct {
	Batch    domain.BatchView `json:"batch"`
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
}

type BatchService interface {
	Create(ctx context.Context, flow domain.FlowRef, cfg domain.BatchConfig, specs []TaskSpec) (*domain.BatchView, error)
	ImportCSV(ctx context.Context, flow domain.FlowRef, cfg domain.BatchConfig, r io.Reader) (*ImportResult, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.BatchView, error)
	List(ctx context.Context, limit int) ([]domain.BatchView, error)
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context, before time.Time, limit int) (int, error)

	RetryTask(ctx context.Context, batchID, taskID string) error
	CancelTask(ctx context.Context, batchID, taskID string) error
	WriteOutputs(ctx context.Context, batchID, dir string) (int, error)

	// ActiveBatchStats implements metrics.StatsSource.
	ActiveBatchStats() map[string]domain.BatchStats
}

// activeRun tracks a batch currently executing in-process. Each run gets its
// own executor so the run guard and stop flag are scoped to that batch.
type activeRun struct {
	batch  *domain.Batch
	exec   *executor.Executor
	cancel context.CancelFunc
}

type batchService struct {
	repo    repository.BatchRepository
	invoker flowhunt.Invoker
	execCfg executor.Config
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

func NewBatchService(repo repository.BatchRepository, invoker flowhunt.Invoker, execCfg executor.Config, logger *slog.Logger) BatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &batchService{
		repo:    repo,
		invoker: invoker,
		execCfg: execCfg,
		logger:  logger,
		active:  make(map[string]*activeRun),
	}
}

func (s *batchService) Create(ctx context.Context, flow domain.FlowRef, cfg domain.BatchConfig, specs []TaskSpec) (*domain.BatchView, error) {
	if strings.TrimSpace(flow.FlowID) == "" {
		return nil, errors.New("flowId is required")
	}
	if len(specs) == 0 {
		return nil, errors.New("at least one task is required")
	}
	tasks := make([]*domain.Task, 0, len(specs))
	for i, spec := range specs {
		input := strings.TrimSpace(spec.Input)
		if input == "" {
			return nil, fmt.Errorf("task %d has empty input", i+1)
		}
		tasks = append(tasks, domain.NewTask(input, strings.TrimSpace(spec.Filename)))
	}
	batch := domain.NewBatch(flow, cfg, tasks)
	view := batch.Snapshot()
	if err := s.repo.Save(ctx, view); err != nil {
		return nil, err
	}
	s.logger.Info("batch created", "batch_id", batch.ID, "flow_id", flow.FlowID, "tasks", len(tasks))
	return &view, nil
}

func (s *batchService) ImportCSV(ctx context.Context, flow domain.FlowRef, cfg domain.BatchConfig, r io.Reader) (*ImportResult, error) {
	res, err := importer.Read(r, importer.Options{
		RequireFilename: cfg.WriteOutputToFile,
		DetectHeader:    true,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(flow.FlowID) == "" {
		return nil, errors.New("flowId is required")
	}
	batch := domain.NewBatch(flow, cfg, res.Tasks)
	view := batch.Snapshot()
	if err := s.repo.Save(ctx, view); err != nil {
		return nil, err
	}
	s.logger.Info("batch imported",
		"batch_id", batch.ID,
		"flow_id", flow.FlowID,
		"tasks", len(res.Tasks),
		"skipped", res.Skipped,
	)
	return &ImportResult{Batch: view, Imported: len(res.Tasks), Skipped: res.Skipped}, nil
}

// Start launches the batch run in the background and returns immediately.
// Starting a finished batch re-runs only its non-terminal tasks.
func (s *batchService) Start(ctx context.Context, id string) error {
	view, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, busy := s.active[id]; busy {
		s.mu.Unlock()
		return ErrBatchRunning
	}
	batch := domain.BatchFromView(*view)
	runCtx, cancel := context.WithCancel(context.Background())

	execCfg := s.execCfg
	execCfg.Events = &persistingEvents{service: s, next: s.execCfg.Events}
	run := &activeRun{
		batch:  batch,
		exec:   executor.New(s.invoker, execCfg),
		cancel: cancel,
	}
	s.active[id] = run
	s.mu.Unlock()

	if err := executor.Validate(batch); err != nil {
		s.finishRun(id)
		return err
	}

	go func() {
		defer s.finishRun(id)
		defer cancel()
		if _, err := run.exec.Run(runCtx, batch); err != nil {
			s.logger.Error("batch run aborted", "batch_id", id, "err", err)
		}
		s.persist(batch)
	}()
	return nil
}

// Stop asks the running batch to halt after its current slice. Tasks already
// dispatched keep polling to a terminal state.
func (s *batchService) Stop(_ context.Context, id string) error {
	s.mu.Lock()
	run, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		return ErrBatchNotRunning
	}
	run.exec.Stop()
	return nil
}

func (s *batchService) Get(ctx context.Context, id string) (*domain.BatchView, error) {
	s.mu.Lock()
	run, ok := s.active[id]
	s.mu.Unlock()
	if ok {
		view := run.batch.Snapshot()
		return &view, nil
	}
	return s.repo.Get(ctx, id)
}

func (s *batchService) List(ctx context.Context, limit int) ([]domain.BatchView, error) {
	views, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	// Live state wins over the persisted snapshot for batches mid-run.
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range views {
		if run, ok := s.active[views[i].ID]; ok {
			views[i] = run.batch.Snapshot()
		}
	}
	return views, nil
}

func (s *batchService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	_, busy := s.active[id]
	s.mu.Unlock()
	if busy {
		return ErrBatchRunning
	}
	return s.repo.Delete(ctx, id)
}

func (s *batchService) Purge(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now()
	}
	return s.repo.PurgeOlderThan(ctx, before, limit)
}

// RetryTask resets a terminal task and re-runs it alone, in the background.
// Rejected while the batch itself is running.
func (s *batchService) RetryTask(ctx context.Context, batchID, taskID string) error {
	s.mu.Lock()
	if _, busy := s.active[batchID]; busy {
		s.mu.Unlock()
		return ErrBatchRunning
	}
	s.mu.Unlock()

	view, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return err
	}
	batch := domain.BatchFromView(*view)
	task := batch.TaskByID(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	if !task.Status().IsTerminal() {
		return ErrTaskNotTerminal
	}
	task.ResetForRetry()

	s.mu.Lock()
	if _, busy := s.active[batchID]; busy {
		s.mu.Unlock()
		return ErrBatchRunning
	}
	runCtx, cancel := context.WithCancel(context.Background())
	run := &activeRun{
		batch:  batch,
		exec:   executor.New(s.invoker, s.execCfg),
		cancel: cancel,
	}
	s.active[batchID] = run
	s.mu.Unlock()

	go func() {
		defer s.finishRun(batchID)
		defer cancel()
		if err := run.exec.ExecuteOne(runCtx, batch, task); err != nil {
			s.logger.Error("task retry aborted", "batch_id", batchID, "task_id", taskID, "err", err)
		}
		s.persist(batch)
	}()
	return nil
}

// CancelTask flags an in-flight task; the poll loop finalizes it as failed on
// its next iteration.
func (s *batchService) CancelTask(_ context.Context, batchID, taskID string) error {
	s.mu.Lock()
	run, ok := s.active[batchID]
	s.mu.Unlock()
	if !ok {
		return ErrBatchNotRunning
	}
	task := run.batch.TaskByID(taskID)
	if task == nil {
		return ErrTaskNotFound
	}
	task.RequestCancel()
	return nil
}

func (s *batchService) WriteOutputs(ctx context.Context, batchID, dir string) (int, error) {
	view, err := s.Get(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if dir == "" {
		dir = view.Config.OutputDirectory
	}
	written, err := output.WriteAllCompleted(view.Tasks, dir)
	if written > 0 {
		metrics.OutputFilesWrittenTotal.Add(float64(written))
	}
	return written, err
}

func (s *batchService) ActiveBatchStats() map[string]domain.BatchStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.BatchStats, len(s.active))
	for id, run := range s.active {
		out[id] = run.batch.Stats()
	}
	return out
}

func (s *batchService) finishRun(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *batchService) persist(batch *domain.Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.Save(ctx, batch.Snapshot()); err != nil {
		s.logger.Error("batch snapshot save failed", "batch_id", batch.ID, "err", err)
	}
}

// persistingEvents snapshots the batch to the registry on start, on every task
// finalization and at slice boundaries, so a crash mid-slice does not lose
// finished work (and resume does not re-spend its credits).
type persistingEvents struct {
	service *batchService
	next    executor.Events
}

func (p *persistingEvents) BatchStarted(b *domain.Batch) {
	p.service.persist(b)
	if p.next != nil {
		p.next.BatchStarted(b)
	}
}

func (p *persistingEvents) TaskStarted(b *domain.Batch, t *domain.Task) {
	if p.next != nil {
		p.next.TaskStarted(b, t)
	}
}

func (p *persistingEvents) TaskFinalized(b *domain.Batch, t *domain.Task) {
	p.service.persist(b)
	if p.next != nil {
		p.next.TaskFinalized(b, t)
	}
}

func (p *persistingEvents) SliceCompleted(b *domain.Batch, slice int, stats domain.BatchStats) {
	p.service.persist(b)
	if p.next != nil {
		p.next.SliceCompleted(b, slice, stats)
	}
}

func (p *persistingEvents) BatchFinished(b *domain.Batch, stats domain.BatchStats) {
	if p.next != nil {
		p.next.BatchFinished(b, stats)
	}
}
