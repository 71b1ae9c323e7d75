package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// CSVSource is a file-backed Source for local runs and testing. Each sheet
// is one CSV file; the ref is the file path and the sheet name inside range
// references is ignored. The real spreadsheet backend is an external
// collaborator that implements the same Source interface.
type CSVSource struct {
	mu sync.Mutex
}

// NewCSVSource creates a CSV-backed tabular source.
func NewCSVSource() *CSVSource {
	return &CSVSource{}
}

// ReadRange returns the cells inside the requested rectangle. Missing rows
// and columns read as empty strings trimmed from the right, matching how a
// spreadsheet API returns sparse data.
func (s *CSVSource) ReadRange(ctx context.Context, ref, rng string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := s.load(ref)
	if err != nil {
		return nil, err
	}
	p, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}

	var out [][]string
	for r := p.StartRow; r <= p.EndRow && r <= len(grid); r++ {
		src := grid[r-1]
		var row []string
		for c := p.StartCol; c <= p.EndCol; c++ {
			if c <= len(src) {
				row = append(row, src[c-1])
			} else {
				row = append(row, "")
			}
		}
		// Trim trailing empties so blank-row detection sees empty slices.
		for len(row) > 0 && row[len(row)-1] == "" {
			row = row[:len(row)-1]
		}
		out = append(out, row)
	}
	return out, nil
}

// WriteRange writes rows into the rectangle anchored at the range start,
// growing the grid as needed, and persists the file atomically.
func (s *CSVSource) WriteRange(ctx context.Context, ref, rng string, rows [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	grid, err := s.load(ref)
	if err != nil {
		return err
	}
	p, err := ParseRange(rng)
	if err != nil {
		return err
	}

	for i, row := range rows {
		r := p.StartRow + i
		for len(grid) < r {
			grid = append(grid, nil)
		}
		for j, val := range row {
			c := p.StartCol + j
			for len(grid[r-1]) < c {
				grid[r-1] = append(grid[r-1], "")
			}
			grid[r-1][c-1] = val
		}
	}
	return s.store(ref, grid)
}

func (s *CSVSource) load(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open sheet file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	grid, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse sheet file: %w", err)
	}
	return grid, nil
}

func (s *CSVSource) store(path string, grid [][]string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create sheet file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(grid); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write sheet file: %w", err)
	}
	w.Flush()
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync sheet file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace sheet file: %w", err)
	}
	return nil
}
