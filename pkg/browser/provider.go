package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/sheetflow/pkg/driver"
	"github.com/harun/sheetflow/pkg/sessionstore"
)

// Provider hands out ready-to-use drivers: it opens the service's page,
// restores any persisted session onto it, and wraps it in the service's
// driver profile. It also captures session state back into the store
// after successful work.
type Provider struct {
	manager  *Manager
	sessions *sessionstore.Store
	timeouts driver.Timeouts
	log      zerolog.Logger
}

// NewProvider creates a driver provider.
func NewProvider(manager *Manager, sessions *sessionstore.Store, timeouts driver.Timeouts, log zerolog.Logger) *Provider {
	return &Provider{
		manager:  manager,
		sessions: sessions,
		timeouts: timeouts,
		log:      log.With().Str("component", "provider").Logger(),
	}
}

// Driver returns the driver for a service with its persisted session, if
// any, already applied. A missing or expired session is not an error;
// the live Chrome profile may still hold a valid login.
func (p *Provider) Driver(ctx context.Context, service string) (driver.Driver, error) {
	page, err := p.manager.PageFor(ctx, service)
	if err != nil {
		return nil, err
	}

	rec, err := p.sessions.Restore(driver.CanonicalService(service))
	switch {
	case err == nil:
		if err := ApplyState(page, rec.State); err != nil {
			p.log.Warn().Str("service", service).Err(err).Msg("Stored session unusable; continuing without it")
		} else {
			p.log.Debug().Str("service", service).Msg("Stored session applied")
		}
	case errors.Is(err, sessionstore.ErrNotFound), errors.Is(err, sessionstore.ErrExpired):
		p.log.Debug().Str("service", service).Err(err).Msg("No stored session")
	default:
		return nil, fmt.Errorf("restore session for %s: %w", service, err)
	}

	return driver.New(service, NewPage(page), p.timeouts, p.log)
}

// SaveSession captures the service page's current session into the store.
func (p *Provider) SaveSession(ctx context.Context, service string) error {
	page, err := p.manager.PageFor(ctx, service)
	if err != nil {
		return err
	}
	state, err := CaptureState(page)
	if err != nil {
		return err
	}
	return p.sessions.Save(driver.CanonicalService(service), json.RawMessage(state))
}
