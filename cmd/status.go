package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/catchlight/catchlight/internal/dbsource"
	"github.com/catchlight/catchlight/internal/models"
	"github.com/catchlight/catchlight/internal/output"
	"github.com/catchlight/catchlight/internal/state"
)

var statusShowDB bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show harvest watermarks and the published verdict record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(cmd)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowDB, "db", false, "Include addressed-comment statistics from the review database")
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command) error {
	ctx := cmd.Context()

	tracker := state.NewTracker(statePath("last_checked.json"))
	if err := tracker.Load(); err != nil {
		return err
	}

	repos := tracker.Repos()
	sort.Strings(repos)
	ui.Info("Tracking %d repositories", len(repos))
	if len(repos) > 0 {
		table := ui.Table([]string{"Repo", "Last Checked", "Last PR", "Errors"})
		for _, repo := range repos {
			w := tracker.Get(repo)
			if w == nil {
				continue
			}
			checked := "never"
			if !w.LastChecked.IsZero() {
				checked = w.LastChecked.Format("2006-01-02 15:04")
			}
			errs := strconv.Itoa(w.ErrorCount)
			if tracker.ShouldSkip(repo) {
				errs = output.Red(errs + " (skipped)")
			}
			_ = table.Append([]string{repo, checked, strconv.Itoa(w.LastPRNumber), errs})
		}
		_ = table.Render()
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	counts, err := s.CatchCounts(ctx)
	if err != nil {
		return err
	}
	ui.Info("Catches: %d total, %d open, %d revoked", counts.Total, counts.Open, counts.Revoked)
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n := counts.BySeverity[sev]; n > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", output.SeverityColor(string(sev)), n)
		}
	}

	if statusShowDB {
		return dbStats(cmd)
	}
	return nil
}

func dbStats(cmd *cobra.Command) error {
	dbURL := viper.GetString("db.url")
	if dbURL == "" {
		return fmt.Errorf("db.url (CATCHLIGHT_DB_URL) required for --db")
	}
	src, err := dbsource.Open(dbURL)
	if err != nil {
		return err
	}
	defer src.Close()

	stats, err := src.AddressedStats(cmd.Context())
	if err != nil {
		return err
	}
	ui.Info("Bot comments: %d total, %d addressed (%.1f%%), %d not addressed",
		stats.Total, stats.Addressed, stats.AddressedPct, stats.NotAddressed)
	return nil
}
