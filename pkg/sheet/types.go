package sheet

import (
	"context"
	"time"
)

// Source is the tabular store the automation reads from and writes back to.
// Addressing is 1-based A1 notation ("Sheet1!A5:AX100"). The concrete wire
// protocol and authentication live outside this module.
type Source interface {
	ReadRange(ctx context.Context, ref, rng string) ([][]string, error)
	WriteRange(ctx context.Context, ref, rng string, rows [][]string) error
}

// Markers holds the literal tokens that anchor the sheet layout. They are
// configuration, never hardcoded by callers.
type Markers struct {
	Work       string `json:"work" mapstructure:"work"`               // header row marker in column A
	Copy       string `json:"copy" mapstructure:"copy"`               // copy column header cell
	Done       string `json:"done" mapstructure:"done"`               // completed marker in the process column
	InProgress string `json:"in_progress" mapstructure:"in_progress"` // written while a task is in flight
}

// DefaultMarkers returns the marker tokens the original sheets use.
func DefaultMarkers() Markers {
	return Markers{
		Work:       "作業",
		Copy:       "コピー",
		Done:       "処理済み",
		InProgress: "処理中",
	}
}

// TaskStatus is the lifecycle state of a single work item.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusError      TaskStatus = "error"
)

// ColumnMapping is derived from one copy column: the process column holds
// completion status, the error column the last failure message, and the
// result column receives the generated output. Indexes are 0-based.
type ColumnMapping struct {
	Copy    int    `json:"copy"`
	Process int    `json:"process"`
	Error   int    `json:"error"`
	Result  int    `json:"result"`
	Letter  string `json:"letter"`
}

// AIConfig selects the conversational service driving a column (or a row
// override). Features are free-form flags such as "deep_think".
type AIConfig struct {
	Service  string          `json:"service" mapstructure:"service"`
	Model    string          `json:"model" mapstructure:"model"`
	Mode     string          `json:"mode,omitempty" mapstructure:"mode"`
	Features map[string]bool `json:"features,omitempty" mapstructure:"features"`
}

// Task is one pending exchange: send the source cell text to a service and
// write the reply back. Tasks are rebuilt from the live sheet on every run
// and never cached across runs.
type Task struct {
	ID         string
	Row        int // 1-based absolute sheet row
	Text       string
	AI         AIConfig
	Mapping    ColumnMapping
	Status     TaskStatus
	Result     string
	ErrMessage string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Structure describes a parsed sheet: where the header sits, where data
// begins, and every copy-column pipeline found in the header row.
type Structure struct {
	Ref          string
	SheetName    string
	HeaderRow    int // 1-based
	DataStartRow int // 1-based
	Headers      []string
	Mappings     []ColumnMapping
}
