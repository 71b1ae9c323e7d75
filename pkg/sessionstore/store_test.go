package sessionstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s, err := New(t.TempDir(), DefaultValidity, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSaveAndRestore(t *testing.T) {
	s, _ := newTestStore(t)

	state := json.RawMessage(`{"cookies":[{"name":"session","value":"abc"}]}`)
	require.NoError(t, s.Save("chatgpt", state))

	rec, err := s.Restore("chatgpt")
	require.NoError(t, err)
	assert.Equal(t, "chatgpt", rec.Service)
	assert.JSONEq(t, string(state), string(rec.State))
}

func TestSaveReplacesPriorRecord(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save("claude", json.RawMessage(`{"v":1}`)))
	require.NoError(t, s.Save("claude", json.RawMessage(`{"v":2}`)))

	rec, err := s.Restore("claude")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(rec.State))
}

func TestRestoreMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Restore("gemini")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestoreExpired(t *testing.T) {
	s, now := newTestStore(t)

	require.NoError(t, s.Save("chatgpt", json.RawMessage(`{}`)))

	// Just inside the window it still restores.
	*now = now.Add(DefaultValidity - time.Minute)
	_, err := s.Restore("chatgpt")
	require.NoError(t, err)

	// Past the window it does not.
	*now = now.Add(2 * time.Minute)
	_, err = s.Restore("chatgpt")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCleanupExpired(t *testing.T) {
	s, now := newTestStore(t)

	require.NoError(t, s.Save("chatgpt", json.RawMessage(`{}`)))
	require.NoError(t, s.Save("claude", json.RawMessage(`{}`)))

	*now = now.Add(3 * 24 * time.Hour)
	require.NoError(t, s.Save("gemini", json.RawMessage(`{}`)))

	*now = now.Add(5 * 24 * time.Hour) // chatgpt/claude now 8 days old, gemini 5
	removed, err := s.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = s.Restore("chatgpt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Restore("gemini")
	assert.NoError(t, err)
}

func TestListReturnsAllRecords(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save("chatgpt", json.RawMessage(`{}`)))
	require.NoError(t, s.Save("claude", json.RawMessage(`{}`)))

	records, err := s.List()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestValid(t *testing.T) {
	s, now := newTestStore(t)

	assert.False(t, s.Valid("chatgpt"))
	require.NoError(t, s.Save("chatgpt", json.RawMessage(`{}`)))
	assert.True(t, s.Valid("chatgpt"))

	*now = now.Add(8 * 24 * time.Hour)
	assert.False(t, s.Valid("chatgpt"))
}

func TestServiceNameValidation(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Error(t, s.Save("", json.RawMessage(`{}`)))
	assert.Error(t, s.Save("../escape", json.RawMessage(`{}`)))
	assert.Error(t, s.Save("a/b", json.RawMessage(`{}`)))
}

func TestSecondStoreOnSameDirIsRejected(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, DefaultValidity, zerolog.Nop())
	require.NoError(t, err)
	defer s1.Close()

	_, err = New(dir, DefaultValidity, zerolog.Nop())
	assert.ErrorIs(t, err, ErrLocked)
}

func TestCorruptRecordIsSkippedByList(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Save("chatgpt", json.RawMessage(`{}`)))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "broken.json"), []byte("{not json"), 0600))

	records, err := s.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
