package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/sheetflow/internal/history"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run history",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appLog, log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer appLog.Close()

	store, err := history.Open(cfg.History.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(runsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded runs.")
		return nil
	}
	for _, s := range runs {
		fmt.Fprintf(out, "%s  %s  total %-3d completed %-3d failed %-3d skipped %-3d\n",
			s.StartedAt.Format("2006-01-02 15:04"), s.RunID,
			s.Total, s.Completed, s.Failed, s.Skipped)
	}
	return nil
}
