// Package importer reads batch task lists from CSV input.
package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/QualityUnit/flowbatch/pkg/domain"
)

var ErrNoTasks = errors.New("csv contains no usable rows")

// Options controls CSV parsing.
type Options struct {
	// RequireFilename skips rows without a second column; those rows are
	// counted in Result.Skipped. Set when batch output-to-file is enabled.
	RequireFilename bool
	// DetectHeader skips the first row when its first column looks like a
	// header (contains "input" or "flow", case-insensitively).
	DetectHeader bool
}

// Result reports what the import produced.
type Result struct {
	Tasks   []*domain.Task
	Skipped int
}

// Read parses comma-delimited rows into tasks: column 0 is the input text,
// column 1 the optional output filename.
func Read(r io.Reader, opts Options) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	res := &Result{}
	first := true
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if opts.DetectHeader && looksLikeHeader(record) {
				continue
			}
		}
		if len(record) == 0 {
			continue
		}
		input := strings.TrimSpace(record[0])
		if input == "" {
			res.Skipped++
			continue
		}
		filename := ""
		if len(record) > 1 {
			filename = strings.TrimSpace(record[1])
		}
		if opts.RequireFilename && filename == "" {
			res.Skipped++
			continue
		}
		res.Tasks = append(res.Tasks, domain.NewTask(input, filename))
	}
	if len(res.Tasks) == 0 {
		return res, ErrNoTasks
	}
	return res, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	col := strings.ToLower(strings.TrimSpace(record[0]))
	return strings.Contains(col, "input") || strings.Contains(col, "flow")
}
