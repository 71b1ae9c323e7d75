package sheet

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridSource serves a fixed in-memory grid and records writes.
type gridSource struct {
	grid   [][]string
	writes int
}

func (g *gridSource) ReadRange(ctx context.Context, ref, rng string) ([][]string, error) {
	p, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}
	var out [][]string
	for r := p.StartRow; r <= p.EndRow && r <= len(g.grid); r++ {
		row := g.grid[r-1]
		if len(row) > p.EndCol {
			row = row[:p.EndCol]
		}
		if p.StartCol > 1 {
			if p.StartCol-1 < len(row) {
				row = row[p.StartCol-1:]
			} else {
				row = nil
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func (g *gridSource) WriteRange(ctx context.Context, ref, rng string, rows [][]string) error {
	g.writes++
	return nil
}

// testGrid builds a sheet in the canonical layout: the work header in row 5
// with the copy column at E, so process=C, error=D, result=F. Column A below
// the header holds the numeric row sequence.
func testGrid(dataRows [][]string) [][]string {
	grid := [][]string{
		{"title"},
		{},
		{},
		{},
		{"作業", "", "処理", "エラー", "コピー", "結果"},
	}
	return append(grid, dataRows...)
}

func newTestPlanner(src Source) *Planner {
	return NewPlanner(src, DefaultPlannerConfig(), zerolog.Nop())
}

func TestMappingForColumn(t *testing.T) {
	t.Run("valid offsets", func(t *testing.T) {
		m, err := MappingForColumn(4)
		require.NoError(t, err)
		assert.Equal(t, 2, m.Process)
		assert.Equal(t, 3, m.Error)
		assert.Equal(t, 5, m.Result)
		assert.Equal(t, "E", m.Letter)
	})

	t.Run("minimum valid copy column", func(t *testing.T) {
		m, err := MappingForColumn(2)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Process)
		assert.Equal(t, 1, m.Error)
	})

	t.Run("copy column too far left", func(t *testing.T) {
		for _, col := range []int{0, 1} {
			_, err := MappingForColumn(col)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr, "column %d", col)
		}
	})
}

func TestParseFindsHeaderRow(t *testing.T) {
	src := &gridSource{grid: testGrid(nil)}
	st, err := newTestPlanner(src).Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, 5, st.HeaderRow)
	assert.Equal(t, 6, st.DataStartRow)
	require.Len(t, st.Mappings, 1)
	assert.Equal(t, 4, st.Mappings[0].Copy)
	assert.Equal(t, "E", st.Mappings[0].Letter)
}

func TestParseReturnsFirstMarkedRowOnly(t *testing.T) {
	grid := testGrid(nil)
	grid = append(grid, []string{"作業", "", "処理", "エラー", "コピー", "結果"})
	src := &gridSource{grid: grid}
	st, err := newTestPlanner(src).Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, 5, st.HeaderRow)
}

func TestParseHeaderNotFound(t *testing.T) {
	src := &gridSource{grid: [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}, {"f"}}}
	_, err := newTestPlanner(src).Parse(context.Background(), "ref", "Sheet1")
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestParseAcceptsLongHeaderVariant(t *testing.T) {
	// Legacy sheets wrote a longer phrase containing the work token.
	grid := testGrid(nil)
	grid[4][0] = "作業指示行"
	src := &gridSource{grid: grid}
	st, err := newTestPlanner(src).Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, 5, st.HeaderRow)
}

func TestParseMultipleCopyColumns(t *testing.T) {
	grid := [][]string{
		{}, {}, {},
		{"作業", "", "p1", "e1", "コピー", "r1", "p2", "e2", "コピー", "r2"},
	}
	src := &gridSource{grid: grid}
	st, err := newTestPlanner(src).Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)
	require.Len(t, st.Mappings, 2)
	assert.Equal(t, 4, st.Mappings[0].Copy)
	assert.Equal(t, 8, st.Mappings[1].Copy)
}

func TestParseRejectsLeftEdgeCopyColumn(t *testing.T) {
	grid := [][]string{
		{}, {}, {},
		{"作業", "コピー", "結果"},
	}
	src := &gridSource{grid: grid}
	_, err := newTestPlanner(src).Parse(context.Background(), "ref", "Sheet1")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 1, cfgErr.Column)
}

func TestTasksEmitsPendingRows(t *testing.T) {
	src := &gridSource{grid: testGrid([][]string{
		{"1", "", "", "", "first prompt", ""},
		{"2", "", "", "", "second prompt", ""},
		{"", "", "", "", "after blank, never read", ""},
	})}
	p := newTestPlanner(src)
	st, err := p.Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)

	tasks, err := p.Tasks(context.Background(), st, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 6, tasks[0].Row)
	assert.Equal(t, "first prompt", tasks[0].Text)
	assert.Equal(t, StatusPending, tasks[0].Status)
	assert.Equal(t, 7, tasks[1].Row)
}

func TestTasksSkipsCompletedRows(t *testing.T) {
	src := &gridSource{grid: testGrid([][]string{
		{"1", "", "処理済み", "", "already done", "old answer"},
		{"2", "", "", "", "still pending", ""},
	})}
	p := newTestPlanner(src)
	st, err := p.Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)

	tasks, err := p.Tasks(context.Background(), st, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "still pending", tasks[0].Text)
}

func TestTasksSkipsEmptySourceCells(t *testing.T) {
	src := &gridSource{grid: testGrid([][]string{
		{"1", "", "", "", "", ""},
		{"2", "", "", "", "real prompt", ""},
	})}
	p := newTestPlanner(src)
	st, err := p.Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)
	tasks, err := p.Tasks(context.Background(), st, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 7, tasks[0].Row)
}

func TestTasksSkipsSequenceBreaks(t *testing.T) {
	src := &gridSource{grid: testGrid([][]string{
		{"1", "", "", "", "one", ""},
		{"x", "", "", "", "not numeric", ""},
		{"1", "", "", "", "not increasing", ""},
		{"4", "", "", "", "four", ""},
	})}
	p := newTestPlanner(src)
	st, err := p.Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)
	tasks, err := p.Tasks(context.Background(), st, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "one", tasks[0].Text)
	assert.Equal(t, "four", tasks[1].Text)
}

func TestTasksAppliesColumnDefaults(t *testing.T) {
	src := &gridSource{grid: testGrid([][]string{
		{"1", "", "", "", "prompt", ""},
	})}
	p := newTestPlanner(src)
	st, err := p.Parse(context.Background(), "ref", "Sheet1")
	require.NoError(t, err)

	defaults := map[string]AIConfig{
		"E": {Service: "claude", Model: "claude-sonnet-4"},
	}
	tasks, err := p.Tasks(context.Background(), st, defaults)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "claude", tasks[0].AI.Service)
	assert.Equal(t, "claude-sonnet-4", tasks[0].AI.Model)
}
