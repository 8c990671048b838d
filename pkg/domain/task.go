package domain

import (
	"encoding"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusWaiting TaskStatus = "WAITING"
	StatusQueued  TaskStatus = "QUEUED"
	StatusDone    TaskStatus = "DONE"
	StatusFailed  TaskStatus = "FAILED"
)

func (s TaskStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

var (
	_ encoding.BinaryMarshaler = TaskStatus("")
	_ encoding.TextMarshaler   = TaskStatus("")
)

func (s TaskStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s TaskStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

// InputKey is the key tasks carry their user text under. The flowhunt client
// renames it to the wire field expected by the invocation API.
const InputKey = "input"

// Task is the unit of work in a batch. All mutable fields are guarded by mu so
// the executor can update a task while the control API reads snapshots of it.
type Task struct {
	mu sync.Mutex

	id           string
	invocationID string
	input        map[string]string
	filename     string

	status    TaskStatus
	result    string
	errMsg    string
	rawOutput json.RawMessage
	credits   float64

	startedAt    *time.Time
	finishedAt   *time.Time
	cancelWanted bool
}

// TaskView is the immutable JSON shape of a task, used by the control API and
// the batch registry.
type TaskView struct {
	ID           string            `json:"id"`
	InvocationID string            `json:"invocationId,omitempty"`
	Input        map[string]string `json:"input"`
	Filename     string            `json:"filename,omitempty"`
	Status       TaskStatus        `json:"status"`
	Result       string            `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	RawOutput    json.RawMessage   `json:"rawOutput,omitempty"`
	Credits      float64           `json:"credits,omitempty"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}

func NewTask(input, filename string) *Task {
	return &Task{
		id:       uuid.NewString(),
		input:    map[string]string{InputKey: input},
		filename: filename,
		status:   StatusWaiting,
	}
}

// TaskFromView restores a task from a persisted snapshot.
func TaskFromView(v TaskView) *Task {
	t := &Task{
		id:           v.ID,
		invocationID: v.InvocationID,
		input:        v.Input,
		filename:     v.Filename,
		status:       v.Status,
		result:       v.Result,
		errMsg:       v.Error,
		rawOutput:    v.RawOutput,
		credits:      v.Credits,
		startedAt:    v.StartedAt,
		finishedAt:   v.FinishedAt,
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	if t.status == "" || t.status == "PENDING" {
		t.status = StatusWaiting
	}
	if t.input == nil {
		t.input = map[string]string{}
	}
	return t
}

func (t *Task) ID() string { return t.id }

func (t *Task) Filename() string { return t.filename }

// Input returns a copy of the task input map.
func (t *Task) Input() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.input))
	for k, v := range t.input {
		out[k] = v
	}
	return out
}

func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) InvocationID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invocationID
}

func (t *Task) Snapshot() TaskView {
	t.mu.Lock()
	defer t.mu.Unlock()
	input := make(map[string]string, len(t.input))
	for k, v := range t.input {
		input[k] = v
	}
	return TaskView{
		ID:           t.id,
		InvocationID: t.invocationID,
		Input:        input,
		Filename:     t.filename,
		Status:       t.status,
		Result:       t.result,
		Error:        t.errMsg,
		RawOutput:    t.rawOutput,
		Credits:      t.credits,
		StartedAt:    t.startedAt,
		FinishedAt:   t.finishedAt,
	}
}

// Elapsed returns how long the task has been (or was) executing. For a task
// still in flight the duration keeps growing until it finalizes.
func (t *Task) Elapsed(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt == nil {
		return 0
	}
	end := now
	if t.finishedAt != nil {
		end = *t.finishedAt
	}
	return end.Sub(*t.startedAt)
}

// MarkQueued transitions the task to QUEUED and records the start time.
func (t *Task) MarkQueued(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusQueued
	t.startedAt = &now
	t.finishedAt = nil
}

// SetInvocationID records the id assigned by the invocation service. It is set
// at most once per attempt; ResetForRetry clears it.
func (t *Task) SetInvocationID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.invocationID == "" {
		t.invocationID = id
	}
}

func (t *Task) MarkDone(now time.Time, result string, raw json.RawMessage, credits float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusDone
	t.result = result
	t.errMsg = ""
	t.rawOutput = raw
	t.credits = credits
	t.finishedAt = &now
}

func (t *Task) MarkFailed(now time.Time, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.errMsg = errMsg
	t.finishedAt = &now
}

// ResetForRetry returns a terminal task to WAITING, clearing every per-attempt
// field while keeping the task id and input.
func (t *Task) ResetForRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusWaiting
	t.invocationID = ""
	t.result = ""
	t.errMsg = ""
	t.rawOutput = nil
	t.credits = 0
	t.startedAt = nil
	t.finishedAt = nil
	t.cancelWanted = false
}

// ResetIfNotTerminal puts a WAITING/QUEUED task back to WAITING before a batch
// run starts. DONE and FAILED tasks are left untouched so a resumed batch does
// not re-run finished work.
func (t *Task) ResetIfNotTerminal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return
	}
	t.status = StatusWaiting
	t.invocationID = ""
	t.startedAt = nil
	t.finishedAt = nil
	t.cancelWanted = false
}

// RequestCancel asks the polling loop to finalize this task as failed on its
// next iteration. It does not abort an in-flight network call.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelWanted = true
}

func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelWanted
}
