package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, timeout time.Duration) *Bridge {
	t.Helper()
	b, err := New(Config{
		Dir:     t.TempDir(),
		Timeout: timeout,
		Poll:    10 * time.Millisecond,
	}, zerolog.Nop())
	require.NoError(t, err)
	b.newID = func() (string, error) { return "test-req-1", nil }
	return b
}

func writeResponse(t *testing.T, dir string, resp Response) {
	t.Helper()
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	path := filepath.Join(dir, "response_"+resp.RequestID+".json")
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestProcessRoundTrip(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)

	go func() {
		// Wait for the request file, then answer like the extension would.
		reqPath := filepath.Join(b.Dir(), "request_test-req-1.json")
		for i := 0; i < 500; i++ {
			data, err := os.ReadFile(reqPath)
			if err == nil {
				var req Request
				if json.Unmarshal(data, &req) == nil {
					writeResponse(t, b.Dir(), Response{
						RequestID: req.RequestID,
						Success:   true,
						Result:    "extension says: " + req.Text,
					})
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := b.Process(context.Background(), "chatgpt", "hello", "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "extension says: hello", result)

	// Both exchange files are cleaned up.
	entries, err := os.ReadDir(b.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessRequestFileContents(t *testing.T) {
	b := newTestBridge(t, 200*time.Millisecond)

	done := make(chan Request, 1)
	go func() {
		reqPath := filepath.Join(b.Dir(), "request_test-req-1.json")
		for i := 0; i < 100; i++ {
			data, err := os.ReadFile(reqPath)
			if err == nil {
				var req Request
				if json.Unmarshal(data, &req) == nil {
					done <- req
					writeResponse(t, b.Dir(), Response{RequestID: req.RequestID, Success: true, Result: "ok"})
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, err := b.Process(context.Background(), "claude", "prompt text", "opus")
	require.NoError(t, err)

	req := <-done
	assert.Equal(t, "test-req-1", req.RequestID)
	assert.Equal(t, "prompt text", req.Text)
	assert.Equal(t, "claude", req.Service)
	assert.Equal(t, "opus", req.Model)
	assert.Equal(t, "processAI", req.Action)
}

func TestProcessTimesOut(t *testing.T) {
	b := newTestBridge(t, 50*time.Millisecond)

	_, err := b.Process(context.Background(), "chatgpt", "hello", "")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestProcessExtensionFailure(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)
	writeResponse(t, b.Dir(), Response{RequestID: "test-req-1", Success: false, Error: "tab crashed"})

	_, err := b.Process(context.Background(), "chatgpt", "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tab crashed")
}

func TestProcessIgnoresMismatchedResponse(t *testing.T) {
	b := newTestBridge(t, 100*time.Millisecond)
	writeResponse(t, b.Dir(), Response{RequestID: "other-req", Success: true, Result: "stale"})
	// The stale file is response_other-req.json; ours never appears.
	_, err := b.Process(context.Background(), "chatgpt", "hello", "")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestProcessHonorsContextCancellation(t *testing.T) {
	b := newTestBridge(t, 10*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.Process(ctx, "chatgpt", "hello", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartialResponseIsRetried(t *testing.T) {
	b := newTestBridge(t, 2*time.Second)
	respPath := filepath.Join(b.Dir(), "response_test-req-1.json")

	go func() {
		// Simulate a writer that lands a partial file before the full one.
		os.WriteFile(respPath, []byte(`{"request_id":"test-`), 0644)
		time.Sleep(50 * time.Millisecond)
		data, _ := json.Marshal(Response{RequestID: "test-req-1", Success: true, Result: "complete"})
		os.WriteFile(respPath, data, 0644)
	}()

	result, err := b.Process(context.Background(), "chatgpt", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "complete", result)
}
