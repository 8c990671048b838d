package executor

import "github.com/QualityUnit/flowbatch/pkg/domain"

// Events receives progress notifications from the executor. Implementations
// must be safe for concurrent use: task-level callbacks fire from the
// goroutines executing a slice.
type Events interface {
	BatchStarted(batch *domain.Batch)
	TaskStarted(batch *domain.Batch, task *domain.Task)
	TaskFinalized(batch *domain.Batch, task *domain.Task)
	SliceCompleted(batch *domain.Batch, slice int, stats domain.BatchStats)
	BatchFinished(batch *domain.Batch, stats domain.BatchStats)
}

type NoopEvents struct{}

func (NoopEvents) BatchStarted(*domain.Batch)                           {}
func (NoopEvents) TaskStarted(*domain.Batch, *domain.Task)              {}
func (NoopEvents) TaskFinalized(*domain.Batch, *domain.Task)            {}
func (NoopEvents) SliceCompleted(*domain.Batch, int, domain.BatchStats) {}
func (NoopEvents) BatchFinished(*domain.Batch, domain.BatchStats)       {}

var _ Events = NoopEvents{}
