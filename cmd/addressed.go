package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/catchlight/catchlight/internal/correlate"
	"github.com/catchlight/catchlight/internal/dbsource"
	"github.com/catchlight/catchlight/internal/github"
	"github.com/catchlight/catchlight/internal/harvest"
	"github.com/catchlight/catchlight/internal/judge"
	"github.com/catchlight/catchlight/internal/models"
	"github.com/catchlight/catchlight/internal/repolist"
	"github.com/catchlight/catchlight/internal/state"
)

var (
	addressedLimit      int
	addressedAllRepos   bool
	addressedCSV        string
	addressedSyncSheets bool
)

var addressedCmd = &cobra.Command{
	Use:   "addressed",
	Short: "Judge bot comments that developers acted on",
	Long: `Query the review product's database for addressed bot comments that
have not been judged yet, enrich each one with its live GitHub context
(reply thread and file patch), judge them individually, and persist the
winners.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return addressedRun(cmd)
	},
}

func init() {
	addressedCmd.Flags().IntVar(&addressedLimit, "limit", 100, "Maximum comments to fetch from the database")
	addressedCmd.Flags().BoolVar(&addressedAllRepos, "all-repos", false, "Do not restrict to the monitored roster")
	addressedCmd.Flags().StringVar(&addressedCSV, "repos-csv", "", "Repository roster CSV (default from config)")
	addressedCmd.Flags().BoolVar(&addressedSyncSheets, "sync-sheets", false, "Append new catches to the tracking sheet")
	rootCmd.AddCommand(addressedCmd)
}

// addressedSource is the slice of the database layer this command reads.
type addressedSource interface {
	FetchNewAddressed(ctx context.Context, since time.Time, limit int, repos []string) ([]dbsource.AddressedComment, error)
}

func addressedRun(cmd *cobra.Command) error {
	dbURL := viper.GetString("db.url")
	if dbURL == "" {
		return fmt.Errorf("db.url (CATCHLIGHT_DB_URL) required")
	}
	src, err := dbsource.Open(dbURL)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := src.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	return runAddressed(cmd, src)
}

func runAddressed(cmd *cobra.Command, src addressedSource) error {
	ctx := cmd.Context()

	evaluated := state.NewEvaluatedSet(statePath("evaluated_comments.json"))
	if err := evaluated.Load(); err != nil {
		return err
	}

	var allowed []string
	if !addressedAllRepos {
		csvPath := addressedCSV
		if csvPath == "" {
			csvPath = viper.GetString("repos_csv")
		}
		roster, err := repolist.Load(csvPath)
		if err != nil {
			return err
		}
		allowed = repolist.Names(roster)
	}

	comments, err := src.FetchNewAddressed(ctx, evaluated.LastCheck, addressedLimit, allowed)
	if err != nil {
		return err
	}

	fresh := comments[:0]
	for _, c := range comments {
		if !evaluated.Contains(c.CommentID) {
			fresh = append(fresh, c)
		}
	}
	ui.Info("Found %d addressed comments to judge (%d already seen)", len(fresh), len(comments)-len(fresh))
	if dryRun {
		ui.DryRunMsg("Would judge %d comments", len(fresh))
		return nil
	}
	if len(fresh) == 0 {
		evaluated.LastCheck = time.Now().UTC()
		return evaluated.Save()
	}

	gh, err := getGitHub()
	if err != nil {
		return err
	}
	harvester := harvest.New(gh)

	engine, err := getJudge()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	var catches []models.Catch
	for _, ac := range fresh {
		catch := judgeAddressed(ctx, harvester, gh.ListFiles, engine, ac)
		evaluated.Add(ac.CommentID)
		if catch == nil {
			continue
		}
		if err := s.SaveCatch(ctx, catch); err != nil {
			ui.Warning("Saving catch for %s: %v", catch.PRURL, err)
			continue
		}
		catches = append(catches, *catch)
	}

	evaluated.LastCheck = time.Now().UTC()
	if err := evaluated.Save(); err != nil {
		return fmt.Errorf("save evaluated set: %w", err)
	}
	ui.Success("Judged %d comments, found %d catches", len(fresh), len(catches))

	if addressedSyncSheets && len(catches) > 0 {
		sink, err := getSheets(cmd)
		if err != nil {
			ui.Warning("Sheet sync unavailable: %v", err)
		} else if added, err := sink.SyncCatches(ctx, catches); err != nil {
			ui.Warning("Sheet sync failed: %v", err)
		} else {
			ui.Success("Synced %d new catches to the sheet", added)
		}
	}
	return nil
}

type listFilesFunc func(ctx context.Context, owner, repo string, number int) ([]github.PullRequestFile, error)

// judgeAddressed enriches one addressed comment with live GitHub context
// and judges it. A nil return means the comment did not make the cut.
func judgeAddressed(ctx context.Context, harvester *harvest.Harvester, listFiles listFilesFunc, engine *judge.Engine, ac dbsource.AddressedComment) *models.Catch {
	bc := models.BotComment{
		Body:       ac.Body,
		FilePath:   ac.FilePath,
		LineNumber: ac.LineNumber,
		CreatedAt:  ac.CreatedAt,
		UpdatedAt:  ac.UpdatedAt,
	}

	// Best effort: the DB row has no reply thread or diff context, so
	// recover both from the live PR when the comment can be matched.
	live, err := harvester.CollectBotComments(ctx, ac.Repo, ac.PRNumber)
	if err != nil {
		ui.VerboseLog("Enriching %s#%d: %v", ac.Repo, ac.PRNumber, err)
	} else if match := correlate.BestMatch(ac.Body, live); match != nil {
		bc.URL = match.URL
		bc.DiffHunk = match.DiffHunk
		bc.ReplyBody = match.ReplyBody
		bc.Score = match.Score
		if bc.FilePath == "" {
			bc.FilePath = match.FilePath
		}
		if bc.LineNumber == 0 {
			bc.LineNumber = match.LineNumber
		}
	}

	if bc.FilePath != "" {
		if owner, name, err := github.SplitRepo(ac.Repo); err == nil {
			if files, err := listFiles(ctx, owner, name, ac.PRNumber); err == nil {
				for _, f := range files {
					if f.Filename == bc.FilePath {
						bc.FilePatch = f.Patch
						break
					}
				}
			}
		}
	}

	eval := engine.EvaluateComment(ctx, bc, judge.CommentContext{Repo: ac.Repo, PRTitle: ac.PRTitle})
	if !eval.IsGreatCatch {
		ui.VerboseLog("%s#%d: not a catch (%s)", ac.Repo, ac.PRNumber, eval.Reasoning)
		return nil
	}
	if eval.Severity.NeedsConfirmation() && !judge.HasPositiveReply(bc.ReplyBody) {
		ui.VerboseLog("%s#%d: %s severity without developer confirmation", ac.Repo, ac.PRNumber, eval.Severity)
		return nil
	}

	catch := &models.Catch{
		Repo:        ac.Repo,
		PRNumber:    ac.PRNumber,
		PRTitle:     ac.PRTitle,
		PRURL:       ac.PRURL,
		PRState:     ac.PRState,
		CommentBody: bc.Body,
		CommentURL:  bc.URL,
		ReplyBody:   bc.ReplyBody,
		Category:    eval.Category,
		Severity:    eval.Severity,
		Reasoning:   eval.Reasoning,
		Score:       bc.Score,
		CreatedAt:   ac.CreatedAt,
	}
	if title, err := engine.GenerateTitle(ctx, bc.Body, eval.Category); err == nil {
		catch.Title = title
	}
	ui.Success("%s#%d: %s/%s catch", ac.Repo, ac.PRNumber, eval.Category, eval.Severity)
	return catch
}
