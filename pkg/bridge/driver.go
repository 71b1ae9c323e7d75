package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/sheetflow/pkg/driver"
	"github.com/harun/sheetflow/pkg/resilience"
)

// Driver adapts the extension bridge to the driver interface. The
// extension owns the tab, the login state, and the reply wait, so most
// phases collapse into the single request/response exchange.
type Driver struct {
	bridge  *Bridge
	service string

	mu     sync.Mutex
	text   string
	model  string
	result string
}

// NewDriver creates a bridge-backed driver for one service.
func NewDriver(b *Bridge, service string) *Driver {
	return &Driver{bridge: b, service: service}
}

func (d *Driver) Service() string { return d.service }

// Navigate is a no-op: the extension keeps its own tab on the service.
func (d *Driver) Navigate(ctx context.Context) error { return nil }

// VerifyLogin is deferred to the extension; an expired session surfaces
// as a failed exchange.
func (d *Driver) VerifyLogin(ctx context.Context) error { return nil }

// SelectModel records the model for the next exchange.
func (d *Driver) SelectModel(ctx context.Context, model string) error {
	d.mu.Lock()
	d.model = model
	d.mu.Unlock()
	return nil
}

func (d *Driver) InputText(ctx context.Context, text string) error {
	d.mu.Lock()
	d.text = text
	d.result = ""
	d.mu.Unlock()
	return nil
}

func (d *Driver) Submit(ctx context.Context) error { return nil }

// AwaitCompletion performs the actual exchange: write the request file,
// wait for the extension's response.
func (d *Driver) AwaitCompletion(ctx context.Context) error {
	d.mu.Lock()
	text, model := d.text, d.model
	d.mu.Unlock()
	if text == "" {
		return fmt.Errorf("%s: no prompt staged", d.service)
	}

	result, err := d.bridge.Process(ctx, d.service, text, model)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, ErrTimeout):
			return resilience.Mark(resilience.KindTimeout, err)
		default:
			return resilience.Mark(resilience.KindServiceError, err)
		}
	}

	d.mu.Lock()
	d.result = result
	d.mu.Unlock()
	return nil
}

func (d *Driver) ExtractResponse(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result, nil
}

// Reset clears staged state between tasks.
func (d *Driver) Reset(ctx context.Context) error {
	d.mu.Lock()
	d.text, d.model, d.result = "", "", ""
	d.mu.Unlock()
	return nil
}

// Provider hands out bridge-backed drivers. Session persistence lives in
// the extension's own browser profile, so SaveSession is a no-op.
type Provider struct {
	bridge *Bridge
	log    zerolog.Logger

	mu      sync.Mutex
	drivers map[string]*Driver
}

// NewProvider creates a driver provider over one bridge.
func NewProvider(b *Bridge, log zerolog.Logger) *Provider {
	return &Provider{
		bridge:  b,
		log:     log.With().Str("component", "bridge").Logger(),
		drivers: make(map[string]*Driver),
	}
}

// Driver returns the (cached) driver for a service.
func (p *Provider) Driver(ctx context.Context, service string) (driver.Driver, error) {
	if !driver.Supported(service) {
		return nil, fmt.Errorf("%w: %q", driver.ErrUnknownService, service)
	}
	service = driver.CanonicalService(service)

	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.drivers[service]; ok {
		return d, nil
	}
	d := NewDriver(p.bridge, service)
	p.drivers[service] = d
	return d, nil
}

// SaveSession is a no-op: the extension's browser holds the session.
func (p *Provider) SaveSession(ctx context.Context, service string) error {
	return nil
}
