package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/sheetflow/pkg/resilience"
)

// loginProbe is the short per-selector timeout used while checking login
// state; login checks scan many selectors and must not stack the full
// element timeout on each.
const loginProbe = 5 * time.Second

// uiDriver is the profile-interpreting Driver implementation all services
// share.
type uiDriver struct {
	profile  Profile
	page     Page
	timeouts Timeouts
	log      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func newUIDriver(profile Profile, page Page, timeouts Timeouts, log zerolog.Logger) *uiDriver {
	return &uiDriver{
		profile:  profile,
		page:     page,
		timeouts: timeouts.withDefaults(),
		log:      log.With().Str("service", profile.Service).Logger(),
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func (d *uiDriver) Service() string { return d.profile.Service }

func (d *uiDriver) Navigate(ctx context.Context) error {
	if strings.Contains(d.page.URL(), d.profile.Host) {
		return nil
	}
	d.log.Debug().Str("url", d.profile.URL).Msg("Navigating to service")
	if err := d.page.Navigate(ctx, d.profile.URL); err != nil {
		return resilience.Mark(resilience.KindNetwork, err)
	}
	return d.sleep(ctx, d.timeouts.Settle)
}

func (d *uiDriver) VerifyLogin(ctx context.Context) error {
	if d.profile.Input.present(ctx, d.page, loginProbe) {
		d.log.Debug().Msg("Login confirmed")
		return nil
	}
	if d.profile.LoginWall.present(ctx, d.page, 2*time.Second) {
		d.log.Warn().Msg("Login wall detected; manual sign-in required")
		return resilience.Mark(resilience.KindSessionExpired,
			fmt.Errorf("%s: %w", d.profile.Service, ErrNotLoggedIn))
	}
	// Neither a prompt box nor a login wall: treat as logged out rather
	// than guessing.
	return resilience.Mark(resilience.KindSessionExpired,
		fmt.Errorf("%s login state unconfirmed: %w", d.profile.Service, ErrNotLoggedIn))
}

func (d *uiDriver) InputText(ctx context.Context, text string) error {
	el, err := d.profile.Input.resolve(ctx, d.page, d.timeouts.Element)
	if err != nil {
		return err
	}
	if err := el.Input(ctx, ""); err != nil {
		return fmt.Errorf("clear prompt box: %w", err)
	}
	if err := el.Input(ctx, text); err != nil {
		return fmt.Errorf("type prompt: %w", err)
	}
	d.log.Debug().Int("chars", len(text)).Msg("Prompt entered")
	return nil
}

func (d *uiDriver) Submit(ctx context.Context) error {
	el, err := d.waitSubmitEnabled(ctx, d.timeouts.Element)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("click submit: %w", err)
	}
	d.log.Debug().Msg("Prompt submitted")
	return d.sleep(ctx, d.timeouts.Settle)
}

// AwaitCompletion considers the reply done when the submit control is
// enabled again, at least one reply exists, and no streaming indicator
// remains inside the page.
func (d *uiDriver) AwaitCompletion(ctx context.Context) error {
	deadline := d.now().Add(d.timeouts.Response)
	for {
		if d.now().After(deadline) {
			return resilience.Mark(resilience.KindTimeout,
				fmt.Errorf("%s reply not complete after %s", d.profile.Service, d.timeouts.Response))
		}
		done, err := d.replyComplete(ctx)
		if err != nil {
			return err
		}
		if done {
			d.log.Debug().Msg("Reply complete")
			return nil
		}
		if err := d.sleep(ctx, d.timeouts.Poll); err != nil {
			return err
		}
	}
}

func (d *uiDriver) replyComplete(ctx context.Context) (bool, error) {
	if _, err := d.waitSubmitEnabled(ctx, loginProbe); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil // still generating, button disabled or replaced
	}
	replies, err := d.profile.Response.all(ctx, d.page)
	if err != nil {
		return false, err
	}
	if len(replies) == 0 {
		return false, nil
	}
	if d.profile.Streaming.present(ctx, d.page, 500*time.Millisecond) {
		return false, nil
	}
	return true, nil
}

func (d *uiDriver) ExtractResponse(ctx context.Context) (string, error) {
	replies, err := d.profile.Response.all(ctx, d.page)
	if err != nil {
		return "", err
	}
	if len(replies) == 0 {
		return "", resilience.Mark(resilience.KindElementNotFound,
			fmt.Errorf("%s: no reply elements found", d.profile.Service))
	}
	text, err := replies[len(replies)-1].Text(ctx)
	if err != nil {
		return "", fmt.Errorf("read reply text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (d *uiDriver) Reset(ctx context.Context) error {
	if len(d.profile.NewChat) == 0 {
		return nil
	}
	el, err := d.profile.NewChat.resolve(ctx, d.page, loginProbe)
	if err != nil {
		d.log.Debug().Err(err).Msg("New-chat control not found; skipping reset")
		return nil
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("start new conversation: %w", err)
	}
	return d.sleep(ctx, d.timeouts.Settle)
}

// SelectModel opens the model switcher and clicks the entry whose text
// contains the requested model name (case-insensitive).
func (d *uiDriver) SelectModel(ctx context.Context, model string) error {
	if len(d.profile.ModelButton) == 0 {
		d.log.Debug().Str("model", model).Msg("Service has no model switcher; ignoring model")
		return nil
	}
	button, err := d.profile.ModelButton.resolve(ctx, d.page, d.timeouts.Element)
	if err != nil {
		d.log.Warn().Err(err).Str("model", model).
			Msg("Model switcher not found; keeping current default")
		return err
	}
	if err := button.Click(ctx); err != nil {
		d.log.Warn().Err(err).Str("model", model).
			Msg("Model switcher did not open; keeping current default")
		return fmt.Errorf("open model switcher: %w", err)
	}
	if err := d.sleep(ctx, time.Second); err != nil {
		return err
	}

	options, err := d.profile.ModelOption.all(ctx, d.page)
	if err != nil {
		d.log.Warn().Err(err).Str("model", model).
			Msg("Model options unreadable; keeping current default")
		return err
	}
	want := strings.ToLower(model)
	for _, opt := range options {
		text, err := opt.Text(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(text), want) {
			if err := opt.Click(ctx); err != nil {
				d.log.Warn().Err(err).Str("model", model).
					Msg("Model option click failed; keeping current default")
				return fmt.Errorf("select model option: %w", err)
			}
			d.log.Info().Str("model", model).Msg("Model selected")
			return d.sleep(ctx, time.Second)
		}
	}
	d.log.Warn().Str("model", model).Msg("Model not offered; keeping current default")
	return resilience.Mark(resilience.KindElementNotFound,
		fmt.Errorf("model %q not offered by %s", model, d.profile.Service))
}

// ListModels enumerates the entries in the model switcher.
func (d *uiDriver) ListModels(ctx context.Context) ([]string, error) {
	if len(d.profile.ModelButton) == 0 {
		return nil, nil
	}
	button, err := d.profile.ModelButton.resolve(ctx, d.page, d.timeouts.Element)
	if err != nil {
		return nil, err
	}
	if err := button.Click(ctx); err != nil {
		return nil, fmt.Errorf("open model switcher: %w", err)
	}
	if err := d.sleep(ctx, time.Second); err != nil {
		return nil, err
	}

	options, err := d.profile.ModelOption.all(ctx, d.page)
	if err != nil {
		return nil, err
	}
	var models []string
	for _, opt := range options {
		text, err := opt.Text(ctx)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			models = append(models, text)
		}
	}
	return models, nil
}

// waitSubmitEnabled resolves the submit control and confirms it is not
// disabled.
func (d *uiDriver) waitSubmitEnabled(ctx context.Context, timeout time.Duration) (Element, error) {
	el, err := d.profile.Submit.resolve(ctx, d.page, timeout)
	if err != nil {
		return nil, err
	}
	if _, disabled, err := el.Attribute(ctx, "disabled"); err == nil && disabled {
		return nil, resilience.Mark(resilience.KindElementNotFound,
			fmt.Errorf("%s submit control disabled", d.profile.Service))
	}
	return el, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
