package sheet

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlannerConfig bounds the header scan and the data window. Zero values fall
// back to the defaults the original sheets assume.
type PlannerConfig struct {
	Markers         Markers
	HeaderScanStart int // 1-based first row checked for the work marker
	HeaderScanEnd   int // 1-based last row checked (inclusive)
	MaxRows         int
	MaxCols         int
}

// DefaultPlannerConfig scans rows 4-10 for the header and reads up to
// 100 rows by 50 columns, matching the original sheet layout.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Markers:         DefaultMarkers(),
		HeaderScanStart: 4,
		HeaderScanEnd:   10,
		MaxRows:         100,
		MaxCols:         50,
	}
}

// Planner turns a snapshot of tabular data into an ordered list of pending
// work items. ColumnMappings are recomputed from the live header on every
// run so sheet edits take effect immediately.
type Planner struct {
	src Source
	cfg PlannerConfig
	log zerolog.Logger
}

// NewPlanner creates a planner over a tabular source.
func NewPlanner(src Source, cfg PlannerConfig, log zerolog.Logger) *Planner {
	if cfg.HeaderScanStart < 1 {
		cfg.HeaderScanStart = 4
	}
	if cfg.HeaderScanEnd < cfg.HeaderScanStart {
		cfg.HeaderScanEnd = cfg.HeaderScanStart + 6
	}
	if cfg.MaxRows < 1 {
		cfg.MaxRows = 100
	}
	if cfg.MaxCols < 1 {
		cfg.MaxCols = 50
	}
	return &Planner{src: src, cfg: cfg, log: log.With().Str("component", "planner").Logger()}
}

// Markers returns the marker tokens the planner anchors on.
func (p *Planner) Markers() Markers { return p.cfg.Markers }

// MappingForColumn derives the process/error/result offsets for a copy
// column. copyCol is 0-based. A copy column whose process or error column
// would fall off the left edge is a layout error.
func MappingForColumn(copyCol int) (ColumnMapping, error) {
	m := ColumnMapping{
		Copy:    copyCol,
		Process: copyCol - 2,
		Error:   copyCol - 1,
		Result:  copyCol + 1,
		Letter:  ColumnLetter(copyCol + 1),
	}
	if m.Process < 0 || m.Error < 0 {
		return ColumnMapping{}, &ConfigError{
			Column:  copyCol,
			Message: fmt.Sprintf("process/error columns out of range (copy column must be at least %s)", ColumnLetter(3)),
		}
	}
	return m, nil
}

// Parse reads a snapshot of the sheet and locates the work header row and
// every copy-column pipeline in it.
func (p *Planner) Parse(ctx context.Context, ref, sheetName string) (*Structure, error) {
	rng := RangeRef(sheetName, 1, 1, p.cfg.MaxRows, p.cfg.MaxCols)
	rows, err := p.src.ReadRange(ctx, ref, rng)
	if err != nil {
		return nil, fmt.Errorf("read sheet snapshot: %w", err)
	}

	headerIdx := p.findHeaderRow(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w: no %q marker in rows %d-%d",
			ErrHeaderNotFound, p.cfg.Markers.Work, p.cfg.HeaderScanStart, p.cfg.HeaderScanEnd)
	}

	headers := rows[headerIdx]
	mappings, err := p.findCopyColumns(headers)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, &ConfigError{Column: -1, Message: fmt.Sprintf("no %q column in header row %d", p.cfg.Markers.Copy, headerIdx+1)}
	}

	st := &Structure{
		Ref:          ref,
		SheetName:    sheetName,
		HeaderRow:    headerIdx + 1,
		DataStartRow: headerIdx + 2,
		Headers:      headers,
		Mappings:     mappings,
	}
	p.log.Info().
		Int("header_row", st.HeaderRow).
		Int("data_start_row", st.DataStartRow).
		Int("copy_columns", len(mappings)).
		Msg("Sheet structure parsed")
	return st, nil
}

// Tasks enumerates qualifying data rows and emits one pending task per
// copy column and row whose source cell is populated and whose process
// column does not already read the completed marker.
func (p *Planner) Tasks(ctx context.Context, st *Structure, defaults map[string]AIConfig) ([]*Task, error) {
	rng := RangeRef(st.SheetName, st.DataStartRow, 1, p.cfg.MaxRows, p.cfg.MaxCols)
	rows, err := p.src.ReadRange(ctx, st.Ref, rng)
	if err != nil {
		return nil, fmt.Errorf("read data rows: %w", err)
	}

	var tasks []*Task
	lastSeq := 0
	for i, row := range rows {
		sheetRow := st.DataStartRow + i

		// A blank first cell is the end-of-data sentinel.
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			p.log.Debug().Int("row", sheetRow).Msg("Blank first cell, stopping enumeration")
			break
		}

		seq, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			p.log.Warn().Int("row", sheetRow).Str("cell", row[0]).Msg("First cell is not numeric, skipping row")
			continue
		}
		if seq <= lastSeq {
			p.log.Warn().Int("row", sheetRow).Int("seq", seq).Msg("Sequence number not increasing, skipping row")
			continue
		}
		lastSeq = seq

		for _, m := range st.Mappings {
			task := p.buildTask(row, sheetRow, m, defaults)
			if task != nil {
				tasks = append(tasks, task)
			}
		}
	}

	p.log.Info().Int("tasks", len(tasks)).Msg("Task planning complete")
	return tasks, nil
}

func (p *Planner) buildTask(row []string, sheetRow int, m ColumnMapping, defaults map[string]AIConfig) *Task {
	text := cellAt(row, m.Copy)
	if text == "" {
		return nil
	}
	if status := cellAt(row, m.Process); status == p.cfg.Markers.Done {
		return nil
	}

	ai := AIConfig{Service: "chatgpt"}
	if defaults != nil {
		if override, ok := defaults[m.Letter]; ok {
			ai = override
		}
	}

	return &Task{
		ID:        uuid.NewString(),
		Row:       sheetRow,
		Text:      text,
		AI:        ai,
		Mapping:   m,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

func (p *Planner) findHeaderRow(rows [][]string) int {
	start := p.cfg.HeaderScanStart - 1
	end := p.cfg.HeaderScanEnd
	if end > len(rows) {
		end = len(rows)
	}
	for i := start; i < end; i++ {
		if i < 0 || i >= len(rows) {
			continue
		}
		if len(rows[i]) > 0 && strings.Contains(strings.TrimSpace(rows[i][0]), p.cfg.Markers.Work) {
			return i
		}
	}
	return -1
}

func (p *Planner) findCopyColumns(headers []string) ([]ColumnMapping, error) {
	var mappings []ColumnMapping
	for col, cell := range headers {
		if strings.TrimSpace(cell) != p.cfg.Markers.Copy {
			continue
		}
		m, err := MappingForColumn(col)
		if err != nil {
			return nil, err
		}
		if m.Result >= len(headers) {
			p.log.Warn().
				Str("copy_column", m.Letter).
				Str("result_column", ColumnLetter(m.Result+1)).
				Msg("Result column is past the last header column, skipping pipeline")
			continue
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
