package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("line one\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("line two\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestRotatingWriterRotatesAtSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.log")
	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)
	defer w.Close()
	w.maxSize = 32 // shrink the limit so the test stays small

	_, err = w.Write([]byte(strings.Repeat("a", 30) + "\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("next file\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "expected live file plus one rotated file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "next file\n", string(data))
}

func TestRotatingWriterResumesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, os.WriteFile(path, []byte("earlier run\n"), 0644))

	w, err := NewRotatingWriter(path, 1, 0, false)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, int64(len("earlier run\n")), w.size)

	_, err = w.Write([]byte("this run\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "earlier run\nthis run\n", string(data))
}
