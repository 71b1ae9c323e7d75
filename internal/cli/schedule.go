package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/sheetflow/internal/config"
	"github.com/harun/sheetflow/pkg/orchestrator"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [cron] [ref]",
	Short: "Run on a cron schedule until interrupted",
	Long: `Keep the browser open and process the sheet on a cron schedule.
Overlapping runs are skipped: if a pass is still going when the next
tick fires, the tick is dropped.

The cron expression and spreadsheet ref default to the configured
values; positional arguments override them.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if len(args) >= 1 {
		cfg.Schedule = args[0]
	}
	if len(args) == 2 {
		cfg.Spreadsheet.Ref = args[1]
	}
	if cfg.Schedule == "" {
		return fmt.Errorf("no schedule configured: set \"schedule\" to a cron expression")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog, log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer appLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	sched := orchestrator.NewScheduler(log)
	err = sched.Add(cfg.Schedule, func() {
		summary, err := a.runOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("scheduled run failed")
			return
		}
		log.Info().
			Str("run_id", summary.RunID).
			Int("completed", summary.Completed).
			Int("failed", summary.Failed).
			Msg("scheduled run finished")
	})
	if err != nil {
		return err
	}

	next, _ := orchestrator.NextRun(cfg.Schedule, time.Now())
	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %q, next run at %s. Ctrl-C to stop.\n",
		cfg.Schedule, next.Format("2006-01-02 15:04"))

	sched.Start()
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}
