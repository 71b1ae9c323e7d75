package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/sheetflow/pkg/sessionstore"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved browser sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved sessions and their validity",
	RunE:  runSessionsList,
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired sessions",
	RunE:  runSessionsCleanup,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openSessions() (*sessionstore.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	appLog, log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := sessionstore.New(cfg.Sessions.Dir, cfg.SessionValidity(), log)
	if err != nil {
		appLog.Close()
		return nil, nil, err
	}
	cleanup := func() {
		store.Close()
		appLog.Close()
	}
	return store, cleanup, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openSessions()
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := store.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No saved sessions.")
		return nil
	}
	for _, rec := range records {
		state := "expired"
		if store.Valid(rec.Service) {
			state = "valid"
		}
		fmt.Fprintf(out, "%-12s %-8s saved %s\n",
			rec.Service, state, rec.SavedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runSessionsCleanup(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openSessions()
	if err != nil {
		return err
	}
	defer cleanup()

	removed, err := store.CleanupExpired()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired session(s).\n", removed)
	return nil
}
