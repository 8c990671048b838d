package domain

import (
	"testing"
	"time"
)

func TestTaskStatusMarshalBinary(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   string
	}{
		{"waiting", StatusWaiting, "WAITING"},
		{"queued", StatusQueued, "QUEUED"},
		{"done", StatusDone, "DONE"},
		{"failed", StatusFailed, "FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.status.MarshalBinary()
			if err != nil {
				t.Errorf("MarshalBinary() error = %v", err)
				return
			}
			if string(got) != tt.want {
				t.Errorf("MarshalBinary() = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"waiting", StatusWaiting, false},
		{"queued", StatusQueued, false},
		{"done", StatusDone, true},
		{"failed", StatusFailed, true},
		{"unknown", TaskStatus("SOMETHING"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewTask(t *testing.T) {
	task := NewTask("what is the answer", "answer.txt")

	if task.ID() == "" {
		t.Error("expected generated task id")
	}
	if task.Status() != StatusWaiting {
		t.Errorf("expected status WAITING, got %s", task.Status())
	}
	if task.Filename() != "answer.txt" {
		t.Errorf("expected filename 'answer.txt', got %s", task.Filename())
	}
	if got := task.Input()[InputKey]; got != "what is the answer" {
		t.Errorf("expected input under %q, got %q", InputKey, got)
	}
}

func TestTaskLifecycle(t *testing.T) {
	task := NewTask("question", "")
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Second)

	task.MarkQueued(start)
	if task.Status() != StatusQueued {
		t.Fatalf("expected QUEUED, got %s", task.Status())
	}

	task.SetInvocationID("inv-1")
	task.SetInvocationID("inv-2")
	if task.InvocationID() != "inv-1" {
		t.Errorf("invocation id must be set once, got %s", task.InvocationID())
	}

	task.MarkDone(end, "the answer", []byte(`{"ai_answer":"the answer"}`), 0.5)
	v := task.Snapshot()
	if v.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", v.Status)
	}
	if v.Result != "the answer" || v.Credits != 0.5 {
		t.Errorf("unexpected snapshot: %+v", v)
	}
	if task.Elapsed(end.Add(time.Hour)) != 30*time.Second {
		t.Errorf("expected elapsed 30s, got %v", task.Elapsed(end.Add(time.Hour)))
	}
}

func TestTaskResetForRetry(t *testing.T) {
	task := NewTask("question", "out.txt")
	now := time.Now()

	task.MarkQueued(now)
	task.SetInvocationID("inv-1")
	task.MarkFailed(now, "boom")
	task.RequestCancel()

	task.ResetForRetry()
	v := task.Snapshot()
	if v.Status != StatusWaiting {
		t.Errorf("expected WAITING after reset, got %s", v.Status)
	}
	if v.InvocationID != "" || v.Error != "" || v.StartedAt != nil {
		t.Errorf("per-attempt fields not cleared: %+v", v)
	}
	if task.CancelRequested() {
		t.Error("cancel flag must be cleared by reset")
	}
	if v.Filename != "out.txt" {
		t.Errorf("filename must survive reset, got %s", v.Filename)
	}
}

func TestTaskResetIfNotTerminal(t *testing.T) {
	now := time.Now()

	queued := NewTask("a", "")
	queued.MarkQueued(now)
	queued.ResetIfNotTerminal()
	if queued.Status() != StatusWaiting {
		t.Errorf("queued task should reset to WAITING, got %s", queued.Status())
	}

	done := NewTask("b", "")
	done.MarkQueued(now)
	done.MarkDone(now, "result", nil, 0)
	done.ResetIfNotTerminal()
	if done.Status() != StatusDone {
		t.Errorf("done task must stay DONE, got %s", done.Status())
	}
}

func TestBatchConfigNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero defaults", 0, DefaultParallelism},
		{"negative defaults", -3, DefaultParallelism},
		{"in range kept", 7, 7},
		{"clamped to max", 500, MaxParallelism},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BatchConfig{Parallelism: tt.in}.Normalized()
			if got.Parallelism != tt.want {
				t.Errorf("Normalized().Parallelism = %d, want %d", got.Parallelism, tt.want)
			}
		})
	}
}

func TestBatchStats(t *testing.T) {
	now := time.Now()
	t1 := NewTask("a", "")
	t2 := NewTask("b", "")
	t3 := NewTask("c", "")
	t2.MarkQueued(now)
	t2.MarkDone(now, "done", nil, 1.5)
	t3.MarkQueued(now)
	t3.MarkFailed(now, "boom")

	batch := NewBatch(FlowRef{FlowID: "flow-1"}, BatchConfig{}, []*Task{t1, t2, t3})
	st := batch.Stats()

	if st.Total != 3 || st.Waiting != 1 || st.Done != 1 || st.Failed != 1 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.Credits != 1.5 {
		t.Errorf("expected credits 1.5, got %v", st.Credits)
	}
}

func TestBatchSnapshotRoundTrip(t *testing.T) {
	t1 := NewTask("a", "a.txt")
	batch := NewBatch(FlowRef{FlowID: "flow-1", WorkspaceID: "ws-1"}, BatchConfig{Parallelism: 3}, []*Task{t1})
	batch.SetStatus(BatchRunning)

	restored := BatchFromView(batch.Snapshot())

	if restored.ID != batch.ID {
		t.Errorf("expected id %s, got %s", batch.ID, restored.ID)
	}
	if restored.Status() != BatchPending {
		t.Errorf("a RUNNING snapshot must restore as PENDING, got %s", restored.Status())
	}
	if len(restored.Tasks) != 1 || restored.Tasks[0].ID() != t1.ID() {
		t.Errorf("tasks not restored: %+v", restored.Tasks)
	}
	if restored.Flow.WorkspaceID != "ws-1" {
		t.Errorf("flow ref not restored: %+v", restored.Flow)
	}
}

func TestTaskFromViewDefaults(t *testing.T) {
	task := TaskFromView(TaskView{Status: "PENDING"})

	if task.ID() == "" {
		t.Error("expected generated id for empty view")
	}
	if task.Status() != StatusWaiting {
		t.Errorf("legacy PENDING must map to WAITING, got %s", task.Status())
	}
	if task.Input() == nil {
		t.Error("expected non-nil input map")
	}
}

func TestBatchTaskByID(t *testing.T) {
	t1 := NewTask("a", "")
	t2 := NewTask("b", "")
	batch := NewBatch(FlowRef{FlowID: "flow-1"}, BatchConfig{}, []*Task{t1, t2})

	if got := batch.TaskByID(t2.ID()); got != t2 {
		t.Errorf("expected task %s, got %v", t2.ID(), got)
	}
	if got := batch.TaskByID("missing"); got != nil {
		t.Errorf("expected nil for unknown id, got %v", got)
	}
}
