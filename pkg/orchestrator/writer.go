package orchestrator

import (
	"context"
	"fmt"

	"github.com/harun/sheetflow/pkg/sheet"
)

// cellWriter writes single cells back to the source. Every write-back is
// one cell wide so a crash can never leave a half-written row.
type cellWriter struct {
	src       sheet.Source
	ref       string
	sheetName string
}

// write puts value into the 1-based row at the 0-based column index.
func (w *cellWriter) write(ctx context.Context, row, col int, value string) error {
	rng := sheet.CellRef(w.sheetName, row, col+1)
	if err := w.src.WriteRange(ctx, w.ref, rng, [][]string{{value}}); err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}
