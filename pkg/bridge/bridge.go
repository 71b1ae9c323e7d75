// Package bridge exchanges work with a companion Chrome extension
// through a shared directory: the engine drops request_<id>.json, the
// extension answers with response_<id>.json. It is the fallback path for
// services whose pages resist direct driving.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ErrTimeout means the extension produced no response in time.
var ErrTimeout = errors.New("extension response timed out")

// DefaultTimeout is how long a request waits for the extension.
const DefaultTimeout = 120 * time.Second

// Request is the file the engine writes for the extension.
type Request struct {
	RequestID string    `json:"request_id"`
	Text      string    `json:"text"`
	Service   string    `json:"ai_service"`
	Model     string    `json:"model,omitempty"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the file the extension writes back.
type Response struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Config tunes the bridge.
type Config struct {
	// Enabled routes exchanges through the extension instead of driving
	// pages directly.
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// Dir is the exchange directory shared with the extension.
	Dir string `json:"dir" mapstructure:"dir"`
	// Timeout bounds each request.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// Poll is the fallback scan interval when file events are missed.
	Poll time.Duration `json:"poll" mapstructure:"poll"`
}

// DefaultConfig returns the standard bridge settings.
func DefaultConfig() Config {
	return Config{
		Dir:     filepath.Join(os.TempDir(), "sheetflow-bridge"),
		Timeout: DefaultTimeout,
		Poll:    500 * time.Millisecond,
	}
}

// Bridge issues requests to the extension and waits for responses.
type Bridge struct {
	cfg   Config
	log   zerolog.Logger
	newID func() (string, error)
}

// New creates a bridge and ensures the exchange directory exists.
func New(cfg Config, log zerolog.Logger) (*Bridge, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create bridge directory: %w", err)
	}
	return &Bridge{
		cfg:   cfg,
		log:   log.With().Str("component", "bridge").Logger(),
		newID: func() (string, error) { return gonanoid.New() },
	}, nil
}

// Dir returns the exchange directory.
func (b *Bridge) Dir() string { return b.cfg.Dir }

// Process sends one prompt through the extension and returns the reply.
// Request and response files are removed afterwards regardless of
// outcome.
func (b *Bridge) Process(ctx context.Context, service, text, model string) (string, error) {
	id, err := b.newID()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}

	req := Request{
		RequestID: id,
		Text:      text,
		Service:   service,
		Model:     model,
		Action:    "processAI",
		Timestamp: time.Now(),
	}
	reqPath := filepath.Join(b.cfg.Dir, "request_"+id+".json")
	respPath := filepath.Join(b.cfg.Dir, "response_"+id+".json")
	defer func() {
		os.Remove(reqPath)
		os.Remove(respPath)
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	if err := os.WriteFile(reqPath, data, 0644); err != nil {
		return "", fmt.Errorf("write request file: %w", err)
	}
	b.log.Debug().Str("request_id", id).Str("service", service).Msg("Bridge request written")

	resp, err := b.awaitResponse(ctx, respPath, id)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = "extension reported failure"
		}
		return "", fmt.Errorf("extension: %s", resp.Error)
	}
	b.log.Debug().Str("request_id", id).Int("chars", len(resp.Result)).Msg("Bridge response received")
	return resp.Result, nil
}

// awaitResponse blocks until the response file appears with our request
// id. A directory watcher provides prompt wakeups; a poll ticker covers
// editors and filesystems that do not emit events reliably.
func (b *Bridge) awaitResponse(ctx context.Context, respPath, id string) (*Response, error) {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(b.cfg.Dir); err != nil {
			b.log.Debug().Err(err).Msg("Bridge directory watch unavailable; polling only")
		}
	} else {
		b.log.Debug().Err(err).Msg("File watcher unavailable; polling only")
		watcher = nil
	}

	ticker := time.NewTicker(b.cfg.Poll)
	defer ticker.Stop()
	deadline := time.NewTimer(b.cfg.Timeout)
	defer deadline.Stop()

	var events chan fsnotify.Event
	if watcher != nil {
		events = watcher.Events
	}

	for {
		if resp, ok := b.tryRead(respPath, id); ok {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("request %s after %s: %w", id, b.cfg.Timeout, ErrTimeout)
		case <-ticker.C:
		case ev := <-events:
			if ev.Name != respPath {
				continue
			}
		}
	}
}

// tryRead reads the response file if it exists, is complete, and matches
// the request id. Partial writes parse as invalid JSON and are retried.
func (b *Bridge) tryRead(respPath, id string) (*Response, bool) {
	data, err := os.ReadFile(respPath)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	if resp.RequestID != id {
		b.log.Warn().Str("want", id).Str("got", resp.RequestID).Msg("Response id mismatch; ignoring")
		return nil, false
	}
	return &resp, true
}
