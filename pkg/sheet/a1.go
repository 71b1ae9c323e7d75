package sheet

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnLetter converts a 1-based column number to its A1 letter form
// (1 -> A, 26 -> Z, 27 -> AA).
func ColumnLetter(num int) string {
	var b []byte
	for num > 0 {
		num--
		b = append([]byte{byte('A' + num%26)}, b...)
		num /= 26
	}
	return string(b)
}

// ColumnNumber converts A1 column letters back to a 1-based number.
// Returns 0 for invalid input.
func ColumnNumber(letters string) int {
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0
		}
		n = n*26 + int(r-'A'+1)
	}
	return n
}

// CellRef formats a single-cell A1 reference from 1-based row and column.
func CellRef(sheetName string, row, col int) string {
	return fmt.Sprintf("%s!%s%d", sheetName, ColumnLetter(col), row)
}

// RangeRef formats a rectangular A1 range from 1-based coordinates.
func RangeRef(sheetName string, r1, c1, r2, c2 int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", sheetName, ColumnLetter(c1), r1, ColumnLetter(c2), r2)
}

// ParsedRange is the decoded form of an A1 range reference.
type ParsedRange struct {
	SheetName          string
	StartRow, StartCol int // 1-based
	EndRow, EndCol     int // 1-based, inclusive
}

// ParseRange decodes "Sheet1!A5:AX100" or "Sheet1!B3" into coordinates.
func ParseRange(rng string) (ParsedRange, error) {
	var p ParsedRange
	bang := strings.LastIndex(rng, "!")
	cells := rng
	if bang >= 0 {
		p.SheetName = rng[:bang]
		cells = rng[bang+1:]
	}
	parts := strings.SplitN(cells, ":", 2)
	var err error
	p.StartRow, p.StartCol, err = parseCell(parts[0])
	if err != nil {
		return p, fmt.Errorf("invalid range %q: %w", rng, err)
	}
	if len(parts) == 1 {
		p.EndRow, p.EndCol = p.StartRow, p.StartCol
		return p, nil
	}
	p.EndRow, p.EndCol, err = parseCell(parts[1])
	if err != nil {
		return p, fmt.Errorf("invalid range %q: %w", rng, err)
	}
	return p, nil
}

func parseCell(cell string) (row, col int, err error) {
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("malformed cell %q", cell)
	}
	col = ColumnNumber(cell[:i])
	row, err = strconv.Atoi(cell[i:])
	if err != nil || row < 1 || col < 1 {
		return 0, 0, fmt.Errorf("malformed cell %q", cell)
	}
	return row, col, nil
}
