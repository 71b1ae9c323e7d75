// Package driver turns AI chat web UIs into a uniform programmatic
// interface: navigate, verify login, type a prompt, submit, wait for the
// reply to finish streaming, and extract it. Drivers speak to the page
// through the Page abstraction so they stay engine-agnostic and
// unit-testable.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/sheetflow/pkg/resilience"
)

var (
	// ErrNotLoggedIn means the service shows a login wall; the operator
	// must sign in manually before automation can proceed.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrEmptyResponse means the service finished replying but produced
	// no extractable text.
	ErrEmptyResponse = errors.New("empty response")
	// ErrUnknownService means no driver profile exists for the service.
	ErrUnknownService = errors.New("unknown service")
)

// Driver automates one AI service's web UI. Implementations must mark
// their errors with resilience kinds so the retry policy can tell a flaky
// page apart from an expired session.
type Driver interface {
	// Service returns the service key ("chatgpt", "claude", ...).
	Service() string
	// Navigate loads the service and waits for it to settle.
	Navigate(ctx context.Context) error
	// VerifyLogin confirms an authenticated session is active. Returns an
	// error wrapping ErrNotLoggedIn otherwise.
	VerifyLogin(ctx context.Context) error
	// InputText clears the prompt box and types the given text.
	InputText(ctx context.Context, text string) error
	// Submit sends the prompt.
	Submit(ctx context.Context) error
	// AwaitCompletion blocks until the reply has finished streaming.
	AwaitCompletion(ctx context.Context) error
	// ExtractResponse returns the text of the latest reply.
	ExtractResponse(ctx context.Context) (string, error)
	// Reset starts a fresh conversation so prompts do not contaminate
	// each other. Best effort.
	Reset(ctx context.Context) error
}

// ModelPicker is implemented by drivers whose UI exposes a model switcher.
type ModelPicker interface {
	// SelectModel switches the UI to the named model before submitting.
	SelectModel(ctx context.Context, model string) error
}

// ModelLister is implemented by drivers that can enumerate the models
// their UI offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Timeouts tunes driver waits. Zero fields fall back to defaults.
type Timeouts struct {
	// Element bounds each selector lookup.
	Element time.Duration `json:"element" mapstructure:"element"`
	// Response bounds the wait for a reply to finish streaming.
	Response time.Duration `json:"response" mapstructure:"response"`
	// Settle is the pause after navigation and submission while the page
	// stabilizes.
	Settle time.Duration `json:"settle" mapstructure:"settle"`
	// Poll is the interval between completion checks.
	Poll time.Duration `json:"poll" mapstructure:"poll"`
}

// DefaultTimeouts returns the standard driver timing.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Element:  30 * time.Second,
		Response: 60 * time.Second,
		Settle:   2 * time.Second,
		Poll:     3 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Element <= 0 {
		t.Element = def.Element
	}
	if t.Response <= 0 {
		t.Response = def.Response
	}
	if t.Settle <= 0 {
		t.Settle = def.Settle
	}
	if t.Poll <= 0 {
		t.Poll = def.Poll
	}
	return t
}

// Conduct runs one full prompt/reply exchange: verify login, pick the
// model if requested and supported, type, submit, wait, extract. The
// returned text is never empty; an empty reply surfaces as a service
// error.
func Conduct(ctx context.Context, d Driver, text, model string) (string, error) {
	if err := d.Navigate(ctx); err != nil {
		return "", fmt.Errorf("navigate %s: %w", d.Service(), err)
	}
	if err := d.VerifyLogin(ctx); err != nil {
		return "", err
	}
	if model != "" {
		if picker, ok := d.(ModelPicker); ok {
			// Best effort: an unavailable model falls back to the service's
			// current default rather than failing the task.
			if err := picker.SelectModel(ctx, model); err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
			}
		}
	}
	if err := d.InputText(ctx, text); err != nil {
		return "", fmt.Errorf("input text on %s: %w", d.Service(), err)
	}
	if err := d.Submit(ctx); err != nil {
		return "", fmt.Errorf("submit on %s: %w", d.Service(), err)
	}
	if err := d.AwaitCompletion(ctx); err != nil {
		return "", fmt.Errorf("await reply on %s: %w", d.Service(), err)
	}
	reply, err := d.ExtractResponse(ctx)
	if err != nil {
		return "", fmt.Errorf("extract reply from %s: %w", d.Service(), err)
	}
	if reply == "" {
		return "", resilience.Mark(resilience.KindServiceError,
			fmt.Errorf("%s: %w", d.Service(), ErrEmptyResponse))
	}
	return reply, nil
}
