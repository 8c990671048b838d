package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/QualityUnit/flowbatch/pkg/domain"
)

func doneTask(t *testing.T, input, filename, result string) domain.TaskView {
	t.Helper()
	task := domain.NewTask(input, filename)
	task.MarkQueued(time.Now())
	task.MarkDone(time.Now(), result, nil, 0)
	return task.Snapshot()
}

func TestWriteTaskCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	v := doneTask(t, "q", filepath.Join("nested", "deep", "out.txt"), "answer")
	if err := WriteTask(v, dir); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "out.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "answer" {
		t.Fatalf("expected 'answer', got %q", data)
	}
}

func TestWriteTaskOverwrites(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "out.txt"), []byte("old"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := WriteTask(doneTask(t, "q", "out.txt", "new"), dir); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "out.txt"))
	if string(data) != "new" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestWriteAllCompletedSkipsNonDone(t *testing.T) {
	dir := t.TempDir()
	waiting := domain.NewTask("q", "skip.txt").Snapshot()
	failed := domain.NewTask("q", "failed.txt")
	failed.MarkQueued(time.Now())
	failed.MarkFailed(time.Now(), "boom")
	noFile := domain.NewTask("q", "")
	noFile.MarkQueued(time.Now())
	noFile.MarkDone(time.Now(), "orphan", nil, 0)

	views := []domain.TaskView{
		waiting,
		failed.Snapshot(),
		noFile.Snapshot(),
		doneTask(t, "q", "a.txt", "A"),
		doneTask(t, "q", "b.txt", "B"),
	}
	n, err := WriteAllCompleted(views, dir)
	if err != nil {
		t.Fatalf("write all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 written, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "skip.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected skip.txt to not exist")
	}
}

func TestWriteAllCompletedContinuesPastFailure(t *testing.T) {
	dir := t.TempDir()
	// A filename that collides with an existing directory fails the write.
	if err := os.MkdirAll(filepath.Join(dir, "bad.txt"), 0o755); err != nil {
		t.Fatalf("seed: %v", err)
	}
	views := []domain.TaskView{
		doneTask(t, "q", "bad.txt", "X"),
		doneTask(t, "q", "good.txt", "Y"),
	}
	n, err := WriteAllCompleted(views, dir)
	if err == nil {
		t.Fatalf("expected an error for bad.txt")
	}
	if n != 1 {
		t.Fatalf("expected 1 written despite failure, got %d", n)
	}
}

func TestWriteRequiresDirectory(t *testing.T) {
	if _, err := WriteAllCompleted(nil, ""); !errors.Is(err, ErrNoOutputDirectory) {
		t.Fatalf("expected ErrNoOutputDirectory, got %v", err)
	}
}
