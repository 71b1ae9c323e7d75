package sheet

import (
	"errors"
	"fmt"
)

// ErrHeaderNotFound is returned when no row inside the scan window carries
// the work marker in its first cell.
var ErrHeaderNotFound = errors.New("sheet: work header row not found")

// ConfigError reports an invalid sheet layout, such as a copy column too far
// left for its derived process/error columns. It is fatal: the run aborts
// before any task executes.
type ConfigError struct {
	Column  int // 0-based copy column index, -1 when not column-specific
	Message string
}

func (e *ConfigError) Error() string {
	if e.Column >= 0 {
		return fmt.Sprintf("sheet configuration: column %s: %s", ColumnLetter(e.Column+1), e.Message)
	}
	return fmt.Sprintf("sheet configuration: %s", e.Message)
}
