package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/sheetflow/pkg/sheet"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show pending tasks without processing them",
	Long: `Parse the spreadsheet and list the tasks a run would process, without
opening a browser or writing anything back.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	appLog, log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer appLog.Close()

	ctx := cmd.Context()
	src := sheet.NewCSVSource()
	planner := sheet.NewPlanner(src, cfg.PlannerConfig(), log)

	st, err := planner.Parse(ctx, cfg.Spreadsheet.Ref, cfg.Spreadsheet.SheetName)
	if err != nil {
		return err
	}
	tasks, err := planner.Tasks(ctx, st, cfg.ColumnDefaults())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pending := 0
	for _, t := range tasks {
		if t.Status != sheet.StatusPending {
			continue
		}
		pending++
		fmt.Fprintf(out, "%s  row %-4d %-10s %s\n",
			sheet.CellRef(cfg.Spreadsheet.SheetName, t.Row, t.Mapping.Copy+1),
			t.Row, t.AI.Service, truncate(t.Text, 60))
	}
	fmt.Fprintf(out, "%d pending of %d planned tasks\n", pending, len(tasks))
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
