// Package executor drives a batch of tasks through flow invocation and status
// polling to a terminal state.
//
// Dispatch is a sliding window: the next contiguous group of up to
// `parallelism` waiting tasks runs fully in parallel, and the window only
// advances once every member of the group is terminal. A slow task therefore
// head-of-line-blocks the next group; that trade-off is deliberate and keeps
// progress reporting and remote load predictable.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QualityUnit/flowbatch/internal/backoff"
	"github.com/QualityUnit/flowbatch/internal/extract"
	"github.com/QualityUnit/flowbatch/internal/metrics"
	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/QualityUnit/flowbatch/pkg/flowhunt"
)

const (
	DefaultPollInterval      = 2 * time.Second
	DefaultMaxPollIterations = 1800
)

var (
	ErrNoTasks          = errors.New("batch has no tasks")
	ErrMissingFilenames = errors.New("output to file enabled but a task has no filename")
	ErrAlreadyRunning   = errors.New("a batch run is already in progress")
	ErrTaskInFlight     = errors.New("task is already being executed")
)

type Config struct {
	// PollInterval is the base delay between status polls (default 2s).
	PollInterval time.Duration
	// PollMaxDelay caps the delay of growth policies (default PollInterval).
	PollMaxDelay time.Duration
	// PollPolicy selects the backoff policy (default backoff.PolicyFixed).
	PollPolicy string
	// MaxPollIterations bounds the poll loop (default 1800, ~60min at 2s).
	MaxPollIterations int

	Logger *slog.Logger
	Events Events
	Now    func() time.Time
}

type Executor struct {
	invoker flowhunt.Invoker
	logger  *slog.Logger
	events  Events
	now     func() time.Time

	pollInterval      time.Duration
	pollMaxDelay      time.Duration
	pollPolicy        string
	maxPollIterations int

	running       atomic.Bool
	stopRequested atomic.Bool

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(invoker flowhunt.Invoker, cfg Config) *Executor {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	pollMaxDelay := cfg.PollMaxDelay
	if pollMaxDelay <= 0 {
		pollMaxDelay = pollInterval
	}
	pollPolicy := cfg.PollPolicy
	if pollPolicy == "" {
		pollPolicy = backoff.PolicyFixed
	}
	maxIter := cfg.MaxPollIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxPollIterations
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Events
	if events == nil {
		events = NoopEvents{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		invoker:           invoker,
		logger:            logger,
		events:            events,
		now:               now,
		pollInterval:      pollInterval,
		pollMaxDelay:      pollMaxDelay,
		pollPolicy:        pollPolicy,
		maxPollIterations: maxIter,
		inflight:          make(map[string]struct{}),
	}
}

// Validate checks a batch before dispatch. Validation failures are the only
// errors that escape a run; task-level failures are recorded on the tasks.
func Validate(batch *domain.Batch) error {
	if len(batch.Tasks) == 0 {
		return ErrNoTasks
	}
	if batch.Config.WriteOutputToFile {
		for i, t := range batch.Tasks {
			if strings.TrimSpace(t.Filename()) == "" {
				return fmt.Errorf("%w (task %d)", ErrMissingFilenames, i+1)
			}
		}
	}
	return nil
}

// Run executes the batch to completion and returns the final stats. Tasks
// already DONE or FAILED from a previous partial run are left untouched, so a
// resumed batch does not repeat finished work. Run blocks; callers that need
// fire-and-forget semantics wrap it in a goroutine.
func (e *Executor) Run(ctx context.Context, batch *domain.Batch) (domain.BatchStats, error) {
	if err := Validate(batch); err != nil {
		return domain.BatchStats{}, err
	}
	if !e.running.CompareAndSwap(false, true) {
		return domain.BatchStats{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)
	e.stopRequested.Store(false)

	for _, t := range batch.Tasks {
		t.ResetIfNotTerminal()
	}
	batch.SetStatus(domain.BatchRunning)
	metrics.BatchStartedTotal.Inc()
	e.events.BatchStarted(batch)

	var pending []*domain.Task
	for _, t := range batch.Tasks {
		if !t.Status().IsTerminal() {
			pending = append(pending, t)
		}
	}

	parallelism := batch.Config.Normalized().Parallelism
	e.logger.Info("batch run started",
		"batch_id", batch.ID,
		"flow_id", batch.Flow.FlowID,
		"tasks", len(pending),
		"parallelism", parallelism,
		"singleton", batch.Config.SingletonMode,
	)

	stopped := false
	sliceIdx := 0
	for start := 0; start < len(pending); start += parallelism {
		if e.stopRequested.Load() {
			stopped = true
			break
		}
		end := start + parallelism
		if end > len(pending) {
			end = len(pending)
		}
		slice := pending[start:end]

		var wg sync.WaitGroup
		for _, t := range slice {
			wg.Add(1)
			go func(task *domain.Task) {
				defer wg.Done()
				e.runTask(ctx, batch, task)
			}(t)
		}
		wg.Wait()

		e.events.SliceCompleted(batch, sliceIdx, batch.Stats())
		sliceIdx++
	}

	stats := batch.Stats()
	if stopped {
		batch.SetStatus(domain.BatchStopped)
	} else {
		batch.SetStatus(domain.BatchFinished)
	}
	e.logger.Info("batch run finished",
		"batch_id", batch.ID,
		"done", stats.Done,
		"failed", stats.Failed,
		"stopped", stopped,
	)
	e.events.BatchFinished(batch, stats)
	return stats, nil
}

// Stop prevents further slices from starting. The slice currently in flight
// finishes its network calls and polling; nothing is hard-aborted.
func (e *Executor) Stop() {
	e.stopRequested.Store(true)
}

func (e *Executor) Running() bool {
	return e.running.Load()
}

// ExecuteOne runs a single task through the invocation state machine, outside
// of a batch run. It is rejected while a batch run is in progress so a task
// cannot be dispatched by both the batch loop and a manual trigger.
func (e *Executor) ExecuteOne(ctx context.Context, batch *domain.Batch, task *domain.Task) error {
	if e.running.Load() {
		return ErrAlreadyRunning
	}
	return e.runTask(ctx, batch, task)
}

// runTask is the per-task state machine: WAITING -> QUEUED -> DONE|FAILED.
// Every failure mode is contained here; it never returns an error for task
// level problems, only for dispatch guards.
func (e *Executor) runTask(ctx context.Context, batch *domain.Batch, task *domain.Task) error {
	e.mu.Lock()
	if _, busy := e.inflight[task.ID()]; busy {
		e.mu.Unlock()
		return ErrTaskInFlight
	}
	e.inflight[task.ID()] = struct{}{}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, task.ID())
		e.mu.Unlock()
	}()

	if task.Status().IsTerminal() {
		return nil
	}

	task.MarkQueued(e.now())
	e.events.TaskStarted(batch, task)

	mode := "normal"
	if batch.Config.SingletonMode {
		mode = "singleton"
	}
	res, err := e.invoker.Invoke(ctx, batch.Flow, task.Input(), batch.Config.SingletonMode)
	if err != nil {
		metrics.InvocationsTotal.WithLabelValues(mode, "error").Inc()
		e.finalizeFailed(batch, task, err.Error(), "error")
		return nil
	}
	metrics.InvocationsTotal.WithLabelValues(mode, "ok").Inc()
	task.SetInvocationID(res.ID)

	// A terminal initial status or an inline result means the flow completed
	// synchronously; skip polling entirely.
	if res.Status.IsTerminal() || !res.Result.IsZero() {
		e.finalizeFromResult(batch, task, res)
		return nil
	}

	e.pollUntilDone(ctx, batch, task)
	return nil
}

func (e *Executor) pollUntilDone(ctx context.Context, batch *domain.Batch, task *domain.Task) {
	rng := rand.New(rand.NewSource(e.now().UnixNano()))
	start := e.now()

	for i := 0; i < e.maxPollIterations; i++ {
		delay := backoff.Delay(e.pollPolicy, e.pollInterval, e.pollMaxDelay, i, rng)
		select {
		case <-ctx.Done():
			e.finalizeFailed(batch, task, "cancelled: "+ctx.Err().Error(), "cancelled")
			return
		case <-time.After(delay):
		}

		if task.CancelRequested() {
			e.finalizeFailed(batch, task, "cancelled by user", "cancelled")
			return
		}

		res, err := e.invoker.PollStatus(ctx, batch.Flow, task.InvocationID())
		metrics.PollIterationsTotal.Inc()
		if err != nil {
			e.finalizeFailed(batch, task, err.Error(), "error")
			return
		}
		switch res.Status {
		case domain.FlowSuccess, domain.FlowFailed, domain.FlowError:
			e.finalizeFromResult(batch, task, res)
			return
		default:
			// PENDING or an unknown status: keep polling.
		}
	}

	elapsed := int(e.now().Sub(start).Seconds())
	e.finalizeFailed(batch, task, fmt.Sprintf("timed out after %d seconds", elapsed), "timeout")
}

// finalizeFromResult applies the extraction algorithm to a terminal response
// and marks the task done or failed.
func (e *Executor) finalizeFromResult(batch *domain.Batch, task *domain.Task, res *domain.InvocationResult) {
	if res.Status == domain.FlowFailed || res.Status == domain.FlowError {
		msg := strings.TrimSpace(res.ErrorMessage)
		if msg == "" {
			msg = "flow reported status " + string(res.Status)
		}
		e.finalizeFailed(batch, task, msg, "failed")
		return
	}

	doc, ok := res.Result.Document()
	if !ok {
		doc = decodeRaw(res)
	}
	answer := extract.Answer(doc, res.Status == domain.FlowSuccess)
	if answer == "" {
		if s, isStr := res.Result.Text(); isStr && strings.TrimSpace(s) != "" {
			answer = strings.TrimSpace(s)
		}
	}
	credits := extract.Credits(doc)
	if credits == 0 && res.Credits > 0 {
		credits = res.Credits / extract.CreditsDivisor
	}

	task.MarkDone(e.now(), answer, res.Raw, credits)
	metrics.TaskFinalizedTotal.WithLabelValues(string(domain.StatusDone), "done").Inc()
	metrics.TaskDurationSeconds.WithLabelValues(string(domain.StatusDone)).Observe(task.Elapsed(e.now()).Seconds())
	if credits > 0 {
		metrics.CreditsSpentTotal.Add(credits)
	}
	e.logger.Debug("task done",
		"batch_id", batch.ID,
		"task_id", task.ID(),
		"invocation_id", task.InvocationID(),
		"credits", credits,
	)
	e.events.TaskFinalized(batch, task)
}

func (e *Executor) finalizeFailed(batch *domain.Batch, task *domain.Task, msg, reason string) {
	task.MarkFailed(e.now(), msg)
	metrics.TaskFinalizedTotal.WithLabelValues(string(domain.StatusFailed), reason).Inc()
	metrics.TaskDurationSeconds.WithLabelValues(string(domain.StatusFailed)).Observe(task.Elapsed(e.now()).Seconds())
	e.logger.Warn("task failed",
		"batch_id", batch.ID,
		"task_id", task.ID(),
		"reason", reason,
		"err", msg,
	)
	e.events.TaskFinalized(batch, task)
}

func decodeRaw(res *domain.InvocationResult) map[string]any {
	if len(res.Raw) == 0 {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(res.Raw, &doc); err != nil {
		return nil
	}
	return doc
}
