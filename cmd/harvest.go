package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/catchlight/catchlight/internal/harvest"
	"github.com/catchlight/catchlight/internal/models"
	"github.com/catchlight/catchlight/internal/output"
	"github.com/catchlight/catchlight/internal/repolist"
	"github.com/catchlight/catchlight/internal/state"
)

// checkpointEvery bounds how much progress a crashed sweep can lose.
const checkpointEvery = 50

var (
	harvestCSV        string
	harvestMinReviews int
	harvestMaxRepos   int
	harvestEvaluate   bool
	harvestSyncSheets bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Sweep monitored repositories for new bot review activity",
	Long: `Walk the repository roster, fetch pull requests with new bot
activity since each repository's watermark, judge the collected comments
in batch mode, and persist the resulting catches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return harvestRun(cmd)
	},
}

func init() {
	harvestCmd.Flags().StringVar(&harvestCSV, "csv", "", "Repository roster CSV (default from config)")
	harvestCmd.Flags().IntVar(&harvestMinReviews, "min-reviews", 0, "Minimum reviews in the last 30 days to process a repo")
	harvestCmd.Flags().IntVar(&harvestMaxRepos, "max-repos", 0, "Maximum repositories to process this run (0 = all)")
	harvestCmd.Flags().BoolVar(&harvestEvaluate, "evaluate", true, "Judge harvested comments after the sweep")
	harvestCmd.Flags().BoolVar(&harvestSyncSheets, "sync-sheets", false, "Append new catches to the tracking sheet")
	rootCmd.AddCommand(harvestCmd)
}

func harvestRun(cmd *cobra.Command) error {
	ctx := cmd.Context()

	csvPath := harvestCSV
	if csvPath == "" {
		csvPath = viper.GetString("repos_csv")
	}
	repos, err := repolist.Load(csvPath)
	if err != nil {
		return err
	}
	repos = repolist.FilterActive(repos, harvestMinReviews)
	if harvestMaxRepos > 0 && len(repos) > harvestMaxRepos {
		repos = repos[:harvestMaxRepos]
	}
	ui.Info("Processing %d repositories from %s", len(repos), csvPath)

	gh, err := getGitHub()
	if err != nil {
		return err
	}
	if err := gh.CheckQuota(ctx); err != nil {
		ui.Warning("Quota check failed: %v", err)
	}

	tracker := state.NewTracker(statePath("last_checked.json"))
	if err := tracker.Load(); err != nil {
		return err
	}

	harvester := harvest.New(gh)

	var results []models.PullRequest
	skipped, failed := 0, 0
	for i, repo := range repos {
		if tracker.ShouldSkip(repo.Name) {
			ui.VerboseLog("Skipping %s (too many consecutive errors)", repo.Name)
			skipped++
			continue
		}

		prs, mark := harvester.Repo(ctx, repo.Name, tracker.Get(repo.Name))
		tracker.Update(mark)
		if mark.ErrorCount > 0 {
			ui.Warning("Failed to process %s (error count %d)", repo.Name, mark.ErrorCount)
			failed++
		} else if len(prs) > 0 {
			ui.VerboseLog("%s: %d pull requests with bot comments", repo.Name, len(prs))
		}
		results = append(results, prs...)

		if (i+1)%checkpointEvery == 0 {
			if err := tracker.Save(); err != nil {
				ui.Warning("Checkpoint save failed: %v", err)
			} else {
				ui.VerboseLog("Checkpoint: %d/%d repositories", i+1, len(repos))
			}
		}
	}
	if err := tracker.Save(); err != nil {
		return fmt.Errorf("save watermarks: %w", err)
	}

	ui.Info("Harvested %d pull requests with bot comments (%d repos skipped, %d failed)",
		len(results), skipped, failed)
	if len(results) == 0 || !harvestEvaluate {
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would judge %d pull requests", len(results))
		return nil
	}

	engine, err := getJudge()
	if err != nil {
		return err
	}

	catches := engine.EvaluateAll(ctx, results, ui.Warning)
	ui.Info("Found %d showcase-worthy catches", len(catches))
	if len(catches) == 0 {
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	for i := range catches {
		title, err := engine.GenerateTitle(ctx, catches[i].CommentBody, catches[i].Category)
		if err != nil {
			ui.Warning("Title generation failed for %s: %v", catches[i].PRURL, err)
		} else {
			catches[i].Title = title
		}
		if err := s.SaveCatch(ctx, &catches[i]); err != nil {
			ui.Warning("Saving catch for %s: %v", catches[i].PRURL, err)
		}
	}

	if harvestSyncSheets {
		sink, err := getSheets(cmd)
		if err != nil {
			ui.Warning("Sheet sync unavailable: %v", err)
		} else if added, err := sink.SyncCatches(ctx, catches); err != nil {
			ui.Warning("Sheet sync failed: %v", err)
		} else {
			ui.Success("Synced %d new catches to the sheet", added)
		}
	}

	table := ui.Table([]string{"Repo", "PR", "Category", "Severity", "Title"})
	for _, c := range catches {
		_ = table.Append([]string{
			c.Repo,
			strconv.Itoa(c.PRNumber),
			string(c.Category),
			output.SeverityColor(string(c.Severity)),
			c.Title,
		})
	}
	_ = table.Render()
	return nil
}
