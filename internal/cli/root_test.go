package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/sheetflow/pkg/orchestrator"
)

func commandNames() []string {
	var names []string
	for _, c := range GetRootCmd().Commands() {
		names = append(names, c.Name())
	}
	return names
}

func TestRegisteredCommands(t *testing.T) {
	names := commandNames()
	for _, want := range []string{"run", "plan", "runs", "sessions", "schedule"} {
		assert.Contains(t, names, want)
	}
}

func TestSessionsSubcommands(t *testing.T) {
	var names []string
	for _, c := range sessionsCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "list")
	assert.Contains(t, names, "cleanup")
}

func TestRunHelp(t *testing.T) {
	cmd := GetRootCmd()
	cmd.SetArgs([]string{"run", "--help"})

	output := &bytes.Buffer{}
	cmd.SetOut(output)

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, output.String(), "pending row")
}

func TestFormatSummary(t *testing.T) {
	started := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	s := &orchestrator.Summary{
		RunID:      "run-1",
		Total:      4,
		Completed:  3,
		Failed:     1,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}

	out := formatSummary(s)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "completed: 3")
	assert.Contains(t, out, "75%")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "日本語のテ…", truncate("日本語のテキストです", 5))
}
