// Package output persists task results as plain UTF-8 files, one per task.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/QualityUnit/flowbatch/pkg/domain"
)

var ErrNoOutputDirectory = errors.New("output directory not set")

// WriteTask writes the task result verbatim to dir/filename, creating parent
// directories as needed. Pre-existing files are overwritten.
func WriteTask(task domain.TaskView, dir string) error {
	if dir == "" {
		return ErrNoOutputDirectory
	}
	if task.Filename == "" {
		return fmt.Errorf("task %s has no filename", task.ID)
	}
	dst := filepath.Join(dir, task.Filename)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(task.Result), 0o644)
}

// WriteAllCompleted writes every DONE task that has a result and a filename.
// A failure on one file does not stop the rest; the first error is returned
// alongside the count of files written.
func WriteAllCompleted(tasks []domain.TaskView, dir string) (int, error) {
	if dir == "" {
		return 0, ErrNoOutputDirectory
	}
	written := 0
	var firstErr error
	for _, t := range tasks {
		if t.Status != domain.StatusDone || t.Result == "" || t.Filename == "" {
			continue
		}
		if err := WriteTask(t, dir); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write %s: %w", t.Filename, err)
			}
			continue
		}
		written++
	}
	return written, firstErr
}
