package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/sheetflow/internal/config"
	"github.com/harun/sheetflow/internal/gateway"
	"github.com/harun/sheetflow/internal/history"
	"github.com/harun/sheetflow/internal/metrics"
	"github.com/harun/sheetflow/pkg/bridge"
	"github.com/harun/sheetflow/pkg/browser"
	"github.com/harun/sheetflow/pkg/driver"
	"github.com/harun/sheetflow/pkg/orchestrator"
	"github.com/harun/sheetflow/pkg/resilience"
	"github.com/harun/sheetflow/pkg/sessionstore"
	"github.com/harun/sheetflow/pkg/sheet"
)

// app owns the assembled runtime: browser, sessions, retry policy,
// metrics, and the orchestrator itself.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	sessions *sessionstore.Store
	browser  *browser.Manager
	res      *resilience.Manager
	metrics  *metrics.Metrics
	history  *history.Store
	gateway  *gateway.Server
	orch     *orchestrator.Orchestrator

	stopMetrics func()
}

// newApp builds the full runtime from config. The browser is launched
// here so a misconfigured Chrome fails before any sheet writes happen.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	sessions, err := sessionstore.New(cfg.Sessions.Dir, cfg.SessionValidity(), log)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	a := &app{cfg: cfg, log: log, sessions: sessions}

	// Extension mode hands the browser to the companion extension; direct
	// mode launches Chrome and drives pages itself.
	var provider orchestrator.DriverProvider
	if cfg.Bridge.Enabled {
		br, err := bridge.New(cfg.Bridge, log)
		if err != nil {
			a.close()
			return nil, err
		}
		provider = bridge.NewProvider(br, log)
	} else {
		a.browser = browser.NewManager(cfg.Browser, log)
		if err := a.browser.Start(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
		provider = browser.NewProvider(a.browser, sessions, cfg.Driver, log)
	}

	a.res = resilience.NewManager(cfg.Resilience, log)
	a.metrics = metrics.New()
	a.res.OnRetry = a.metrics.RetryHook()

	bus := orchestrator.NewEventBus()
	events, cancel := bus.Subscribe()
	a.stopMetrics = cancel
	go a.metrics.Watch(events)

	a.history, err = history.Open(cfg.History.Path, log)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Gateway.Enabled {
		a.gateway, err = gateway.NewServer(
			gateway.Config{Addr: cfg.Gateway.Addr}, bus, a.history, a.metrics.Handler(), log)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := a.gateway.Start(); err != nil {
			a.close()
			return nil, err
		}
	}

	src := sheet.NewCSVSource()
	planner := sheet.NewPlanner(src, cfg.PlannerConfig(), log)
	a.orch = orchestrator.New(src, planner, provider, a.res, bus, cfg.Run, log)
	return a, nil
}

// runOnce executes one full pass over the sheet and records the outcome.
func (a *app) runOnce(ctx context.Context) (*orchestrator.Summary, error) {
	summary, err := a.orch.Run(ctx,
		a.cfg.Spreadsheet.Ref, a.cfg.Spreadsheet.SheetName, a.cfg.ColumnDefaults())
	if summary != nil {
		if recErr := a.history.Record(summary); recErr != nil {
			a.log.Warn().Err(recErr).Msg("record run history")
		}
		for _, service := range driver.Services() {
			a.metrics.SetBreakerState(service, a.res.BreakerState(service))
		}
	}
	return summary, err
}

func (a *app) close() {
	if a.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.gateway.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("gateway shutdown")
		}
		cancel()
	}
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close browser")
		}
	}
	if a.history != nil {
		a.history.Close()
	}
	if a.sessions != nil {
		a.sessions.Close()
	}
}

// formatSummary renders a run outcome for the terminal.
func formatSummary(s *orchestrator.Summary) string {
	elapsed := s.FinishedAt.Sub(s.StartedAt).Round(time.Second)
	return fmt.Sprintf(
		"Run %s finished in %s\n  total: %d  completed: %d  failed: %d  skipped: %d  success rate: %.0f%%",
		s.RunID, elapsed, s.Total, s.Completed, s.Failed, s.Skipped, s.SuccessRate()*100)
}
