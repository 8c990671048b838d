package importer

import (
	"errors"
	"strings"
	"testing"

	"github.com/QualityUnit/flowbatch/pkg/domain"
)

func TestReadSkipsHeaderRow(t *testing.T) {
	csv := "input,filename\n\"hello world\",out1.txt\n\"second row\",out2.txt\n"
	res, err := Read(strings.NewReader(csv), Options{DetectHeader: true, RequireFilename: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(res.Tasks))
	}
	if res.Skipped != 0 {
		t.Fatalf("expected 0 skipped, got %d", res.Skipped)
	}
	if got := res.Tasks[0].Input()[domain.InputKey]; got != "hello world" {
		t.Fatalf("expected input 'hello world', got %q", got)
	}
	if res.Tasks[1].Filename() != "out2.txt" {
		t.Fatalf("expected filename out2.txt, got %q", res.Tasks[1].Filename())
	}
}

func TestReadKeepsFirstRowWithoutHeader(t *testing.T) {
	csv := "\"plain question\",out.txt\n"
	res, err := Read(strings.NewReader(csv), Options{DetectHeader: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(res.Tasks))
	}
}

func TestReadCountsRowsMissingRequiredFilename(t *testing.T) {
	csv := "first,out1.txt\nsecond,\nthird,out3.txt\n"
	res, err := Read(strings.NewReader(csv), Options{RequireFilename: true})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(res.Tasks))
	}
	if res.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", res.Skipped)
	}
}

func TestReadAllowsMissingFilenameWhenNotRequired(t *testing.T) {
	csv := "only input\n"
	res, err := Read(strings.NewReader(csv), Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Filename() != "" {
		t.Fatalf("expected 1 task without filename, got %+v", res)
	}
}

func TestReadEmptyInputIsError(t *testing.T) {
	_, err := Read(strings.NewReader("input,filename\n"), Options{DetectHeader: true})
	if !errors.Is(err, ErrNoTasks) {
		t.Fatalf("expected ErrNoTasks, got %v", err)
	}
}
