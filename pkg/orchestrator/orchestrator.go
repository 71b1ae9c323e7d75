// Package orchestrator runs the end-to-end pipeline: plan tasks from the
// sheet, drive the AI services under the retry policy, and write every
// outcome back cell by cell. Sheet state is the only source of truth, so
// a crashed run resumes by simply running again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harun/sheetflow/pkg/driver"
	"github.com/harun/sheetflow/pkg/resilience"
	"github.com/harun/sheetflow/pkg/sheet"
)

// DriverProvider supplies ready-to-use drivers and persists their
// sessions. pkg/browser implements it over rod; tests use fakes.
type DriverProvider interface {
	Driver(ctx context.Context, service string) (driver.Driver, error)
	SaveSession(ctx context.Context, service string) error
}

// Mode selects how tasks are assigned to services.
type Mode string

const (
	// ModeColumn uses each copy column's configured service.
	ModeColumn Mode = "column"
	// ModeSimple sends every task to one service regardless of column.
	ModeSimple Mode = "simple"
)

// ValidMode reports whether the mode string is recognized.
func ValidMode(m Mode) bool {
	return m == ModeColumn || m == ModeSimple
}

// Config tunes a run.
type Config struct {
	// Mode picks task-to-service assignment; empty means column.
	Mode Mode `json:"mode" mapstructure:"mode"`
	// DefaultService receives every task in simple mode.
	DefaultService string `json:"default_service" mapstructure:"default_service"`
	// TaskDelay is the pause between consecutive tasks on one service,
	// keeping the cadence human-ish.
	TaskDelay time.Duration `json:"task_delay" mapstructure:"task_delay"`
	// Concurrency is how many services run in parallel. Tasks within one
	// service are always sequential.
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// DefaultConfig returns the standard run tuning.
func DefaultConfig() Config {
	return Config{
		Mode:           ModeColumn,
		DefaultService: "chatgpt",
		TaskDelay:      2 * time.Second,
		Concurrency:    1,
	}
}

// Summary is the outcome of one run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Ref        string    `json:"ref"`
	SheetName  string    `json:"sheet_name"`
	Mode       Mode      `json:"mode"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SuccessRate is the completed fraction of all planned tasks.
func (s *Summary) SuccessRate() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Completed) / float64(s.Total)
}

// Succeeded reports whether the run counts as successful: at least one
// task completed. A pass that found nothing to do is a failure too,
// since it usually means the sheet layout did not match.
func (s *Summary) Succeeded() bool {
	return s.Completed > 0
}

// Orchestrator wires the planner, drivers, and retry policy together.
type Orchestrator struct {
	src      sheet.Source
	planner  *sheet.Planner
	provider DriverProvider
	res      *resilience.Manager
	bus      *EventBus
	cfg      Config
	log      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string
}

// New creates an orchestrator.
func New(src sheet.Source, planner *sheet.Planner, provider DriverProvider, res *resilience.Manager, bus *EventBus, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = ModeColumn
	}
	if cfg.DefaultService == "" {
		cfg.DefaultService = "chatgpt"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if bus == nil {
		bus = NewEventBus()
	}
	return &Orchestrator{
		src:      src,
		planner:  planner,
		provider: provider,
		res:      res,
		bus:      bus,
		cfg:      cfg,
		log:      log.With().Str("component", "orchestrator").Logger(),
		sleep:    sleepCtx,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Events exposes the run's event bus for progress consumers.
func (o *Orchestrator) Events() *EventBus { return o.bus }

// Run plans the sheet and processes every pending task. Rows already
// marked done produce no tasks and no writes, so re-running after a
// crash only touches unfinished work.
func (o *Orchestrator) Run(ctx context.Context, ref, sheetName string, defaults map[string]sheet.AIConfig) (*Summary, error) {
	summary := &Summary{
		RunID:     o.newID(),
		Ref:       ref,
		SheetName: sheetName,
		Mode:      o.cfg.Mode,
		StartedAt: o.now(),
	}
	log := o.log.With().Str("run_id", summary.RunID).Logger()

	structure, err := o.planner.Parse(ctx, ref, sheetName)
	if err != nil {
		return nil, fmt.Errorf("parse sheet: %w", err)
	}
	tasks, err := o.planner.Tasks(ctx, structure, defaults)
	if err != nil {
		return nil, fmt.Errorf("plan tasks: %w", err)
	}
	summary.Total = len(tasks)

	// Simple mode routes the whole run through one service.
	if o.cfg.Mode == ModeSimple {
		for _, t := range tasks {
			t.AI.Service = o.cfg.DefaultService
		}
	}

	o.bus.Publish(Event{Type: EventRunStarted, RunID: summary.RunID,
		Message: fmt.Sprintf("%d tasks planned", len(tasks))})
	log.Info().Int("tasks", len(tasks)).Int("mappings", len(structure.Mappings)).Msg("Run started")

	if len(tasks) > 0 {
		writer := &cellWriter{src: o.src, ref: ref, sheetName: structure.SheetName}
		o.processAll(ctx, log, summary.RunID, writer, tasks)
		for _, t := range tasks {
			switch t.Status {
			case sheet.StatusCompleted:
				summary.Completed++
			case sheet.StatusError:
				summary.Failed++
			default:
				summary.Skipped++
			}
		}
	}

	summary.FinishedAt = o.now()
	o.bus.Publish(Event{Type: EventRunFinished, RunID: summary.RunID,
		Message: fmt.Sprintf("%d/%d completed", summary.Completed, summary.Total)})
	log.Info().
		Int("completed", summary.Completed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Run finished")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// processAll groups tasks by service and runs each service's queue, up
// to Concurrency services at a time.
func (o *Orchestrator) processAll(ctx context.Context, log zerolog.Logger, runID string, writer *cellWriter, tasks []*sheet.Task) {
	order, grouped := groupByService(tasks)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	var mu sync.Mutex // serializes write-backs across service goroutines

	for _, service := range order {
		queue := grouped[service]
		g.Go(func() error {
			o.processService(ctx, log, runID, writer, &mu, service, queue)
			return nil
		})
	}
	g.Wait()
}

// processService runs one service's tasks in order. An expired session
// fails the current task and skips the rest of the queue: without a
// login every remaining task would fail the same way.
func (o *Orchestrator) processService(ctx context.Context, log zerolog.Logger, runID string, writer *cellWriter, mu *sync.Mutex, service string, queue []*sheet.Task) {
	log = log.With().Str("service", service).Logger()

	drv, err := o.provider.Driver(ctx, service)
	if err != nil {
		log.Error().Err(err).Msg("Driver unavailable; failing queued tasks")
		for _, t := range queue {
			o.failTask(ctx, log, runID, writer, mu, t, fmt.Errorf("driver unavailable: %w", err))
		}
		return
	}

	for i, task := range queue {
		if ctx.Err() != nil {
			log.Warn().Int("remaining", len(queue)-i).Msg("Stopping between tasks")
			return
		}
		if i > 0 && o.cfg.TaskDelay > 0 {
			if o.sleep(ctx, o.cfg.TaskDelay) != nil {
				return
			}
		}

		kind := o.processTask(ctx, log, runID, writer, mu, drv, task)
		if kind == resilience.KindSessionExpired {
			log.Warn().Int("skipped", len(queue)-i-1).Msg("Session expired; skipping rest of service queue")
			break
		}
	}

	if anyCompleted(queue) {
		if err := o.provider.SaveSession(ctx, service); err != nil {
			log.Warn().Err(err).Msg("Session save failed")
		}
	}
}

// processTask runs one task through the retry policy and writes the
// outcome back. It returns the failure kind, or KindUnknown on success.
func (o *Orchestrator) processTask(ctx context.Context, log zerolog.Logger, runID string, writer *cellWriter, mu *sync.Mutex, drv driver.Driver, task *sheet.Task) resilience.Kind {
	log = log.With().Str("task_id", task.ID).Int("row", task.Row).Logger()
	task.Status = sheet.StatusInProgress
	task.StartedAt = o.now()
	o.bus.Publish(Event{Type: EventTaskStarted, RunID: runID, TaskID: task.ID,
		Service: task.AI.Service, Row: task.Row})

	// The in-progress marker lands before any browser work so an operator
	// watching the sheet sees which row is being handled.
	if err := o.writeCell(ctx, writer, mu, task.Row, task.Mapping.Process, o.planner.Markers().InProgress); err != nil {
		return o.failTask(ctx, log, runID, writer, mu, task, err)
	}

	var reply string
	err := o.res.Execute(ctx, task.AI.Service, func(ctx context.Context) error {
		var convErr error
		reply, convErr = driver.Conduct(ctx, drv, task.Text, task.AI.Model)
		return convErr
	})
	if err != nil {
		return o.failTask(ctx, log, runID, writer, mu, task, err)
	}

	if err := o.writeCell(ctx, writer, mu, task.Row, task.Mapping.Result, reply); err != nil {
		return o.failTask(ctx, log, runID, writer, mu, task, err)
	}
	// The done marker is written last: a crash between the two writes
	// reruns the task, which only rewrites the same result.
	if err := o.writeCell(ctx, writer, mu, task.Row, task.Mapping.Process, o.planner.Markers().Done); err != nil {
		return o.failTask(ctx, log, runID, writer, mu, task, err)
	}

	task.Status = sheet.StatusCompleted
	task.Result = reply
	task.FinishedAt = o.now()
	o.bus.Publish(Event{Type: EventTaskCompleted, RunID: runID, TaskID: task.ID,
		Service: task.AI.Service, Row: task.Row})
	log.Info().Int("reply_chars", len(reply)).Msg("Task completed")

	if err := drv.Reset(ctx); err != nil {
		log.Debug().Err(err).Msg("Conversation reset failed")
	}
	return resilience.KindUnknown
}

// failTask records a failure on the task and in the sheet's error
// column, and returns the failure kind.
func (o *Orchestrator) failTask(ctx context.Context, log zerolog.Logger, runID string, writer *cellWriter, mu *sync.Mutex, task *sheet.Task, cause error) resilience.Kind {
	kind := resilience.Classify(cause)
	task.Status = sheet.StatusError
	task.ErrMessage = cause.Error()
	task.FinishedAt = o.now()

	var openErr *resilience.CircuitOpenError
	if errors.As(cause, &openErr) {
		task.ErrMessage = fmt.Sprintf("%s unavailable, retry in %s",
			openErr.Service, openErr.RetryAfter.Round(time.Second))
	}

	log.Error().Str("kind", kind.String()).Err(cause).Msg("Task failed")
	if err := o.writeCell(ctx, writer, mu, task.Row, task.Mapping.Error, task.ErrMessage); err != nil {
		log.Error().Err(err).Msg("Error write-back failed")
	}
	o.bus.Publish(Event{Type: EventTaskFailed, RunID: runID, TaskID: task.ID,
		Service: task.AI.Service, Row: task.Row, Message: task.ErrMessage})
	return kind
}

func (o *Orchestrator) writeCell(ctx context.Context, writer *cellWriter, mu *sync.Mutex, row, col int, value string) error {
	mu.Lock()
	defer mu.Unlock()
	return writer.write(ctx, row, col, value)
}

func groupByService(tasks []*sheet.Task) ([]string, map[string][]*sheet.Task) {
	var order []string
	grouped := make(map[string][]*sheet.Task)
	for _, t := range tasks {
		service := t.AI.Service
		if _, ok := grouped[service]; !ok {
			order = append(order, service)
		}
		grouped[service] = append(grouped[service], t)
	}
	return order, grouped
}

func anyCompleted(tasks []*sheet.Task) bool {
	for _, t := range tasks {
		if t.Status == sheet.StatusCompleted {
			return true
		}
	}
	return false
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
