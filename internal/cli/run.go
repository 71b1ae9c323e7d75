package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/sheetflow/internal/config"
	"github.com/harun/sheetflow/pkg/orchestrator"
)

var (
	runHeadless bool
	runMode     string
	runService  string
	runSheet    string
)

var runCmd = &cobra.Command{
	Use:   "run [ref]",
	Short: "Process all pending rows once",
	Long: `Process every pending row in the spreadsheet: each task is sent to its
AI service and the reply is written back. Rows already marked done are
left alone, so rerunning after an interruption resumes where the last
run stopped.

The optional ref argument overrides the configured spreadsheet.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run the browser headless")
	runCmd.Flags().StringVar(&runMode, "mode", "", "task routing: column (per-column service) or simple (one service)")
	runCmd.Flags().StringVar(&runService, "service", "", "service receiving every task in simple mode")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "sheet name override")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if len(args) == 1 {
		cfg.Spreadsheet.Ref = args[0]
	}
	if runSheet != "" {
		cfg.Spreadsheet.SheetName = runSheet
	}
	if runHeadless {
		cfg.Browser.Headless = true
	}
	if runMode != "" {
		cfg.Run.Mode = orchestrator.Mode(runMode)
	}
	if runService != "" {
		cfg.Run.DefaultService = runService
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog, log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer appLog.Close()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.runOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatSummary(summary))
	if !summary.Succeeded() {
		return fmt.Errorf("run %s: no tasks completed (%d failed)", summary.RunID, summary.Failed)
	}
	return nil
}
