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

	"github.com/harun/sheetflow/pkg/driver"
	"github.com/harun/sheetflow/pkg/resilience"
)

// answer replies to the next request file like the extension would.
func answer(t *testing.T, b *Bridge, reply func(req Request) Response) {
	t.Helper()
	go func() {
		reqPath := filepath.Join(b.Dir(), "request_test-req-1.json")
		for i := 0; i < 500; i++ {
			data, err := os.ReadFile(reqPath)
			if err == nil {
				var req Request
				if json.Unmarshal(data, &req) == nil {
					writeResponse(t, b.Dir(), reply(req))
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
}

func TestDriverConductExchangesThroughBridge(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)
	answer(t, b, func(req Request) Response {
		return Response{RequestID: req.RequestID, Success: true, Result: "reply to " + req.Text}
	})

	d := NewDriver(b, "chatgpt")
	reply, err := driver.Conduct(context.Background(), d, "hello", "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, "reply to hello", reply)
}

func TestDriverPassesModelThrough(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)
	got := make(chan Request, 1)
	answer(t, b, func(req Request) Response {
		got <- req
		return Response{RequestID: req.RequestID, Success: true, Result: "ok"}
	})

	d := NewDriver(b, "claude")
	_, err := driver.Conduct(context.Background(), d, "prompt", "opus")
	require.NoError(t, err)

	req := <-got
	assert.Equal(t, "claude", req.Service)
	assert.Equal(t, "opus", req.Model)
}

func TestDriverMarksTimeoutRetryable(t *testing.T) {
	b := newTestBridge(t, 50*time.Millisecond)
	d := NewDriver(b, "chatgpt")

	require.NoError(t, d.InputText(context.Background(), "hello"))
	err := d.AwaitCompletion(context.Background())
	require.Error(t, err)
	assert.Equal(t, resilience.KindTimeout, resilience.Classify(err))
}

func TestDriverMarksExtensionFailureAsServiceError(t *testing.T) {
	b := newTestBridge(t, 5*time.Second)
	writeResponse(t, b.Dir(), Response{RequestID: "test-req-1", Success: false, Error: "tab crashed"})

	d := NewDriver(b, "chatgpt")
	require.NoError(t, d.InputText(context.Background(), "hello"))
	err := d.AwaitCompletion(context.Background())
	require.Error(t, err)
	assert.Equal(t, resilience.KindServiceError, resilience.Classify(err))
}

func TestDriverAwaitWithoutInputFails(t *testing.T) {
	b := newTestBridge(t, time.Second)
	d := NewDriver(b, "chatgpt")
	assert.Error(t, d.AwaitCompletion(context.Background()))
}

func TestDriverResetClearsStagedState(t *testing.T) {
	b := newTestBridge(t, time.Second)
	d := NewDriver(b, "chatgpt")

	ctx := context.Background()
	require.NoError(t, d.InputText(ctx, "hello"))
	require.NoError(t, d.Reset(ctx))
	assert.Error(t, d.AwaitCompletion(ctx), "reset should discard the staged prompt")
}

func TestProviderCachesAndCanonicalizes(t *testing.T) {
	b := newTestBridge(t, time.Second)
	p := NewProvider(b, zerolog.Nop())

	ctx := context.Background()
	d1, err := p.Driver(ctx, "google_ai_studio")
	require.NoError(t, err)
	assert.Equal(t, "aistudio", d1.Service())

	d2, err := p.Driver(ctx, "aistudio")
	require.NoError(t, err)
	assert.Same(t, d1, d2)

	_, err = p.Driver(ctx, "copilot")
	assert.ErrorIs(t, err, driver.ErrUnknownService)
}

func TestProviderSaveSessionIsNoOp(t *testing.T) {
	b := newTestBridge(t, time.Second)
	p := NewProvider(b, zerolog.Nop())
	assert.NoError(t, p.SaveSession(context.Background(), "chatgpt"))
}
