package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/catchlight/catchlight/internal/harvest"
	"github.com/catchlight/catchlight/internal/reconcile"
	"github.com/catchlight/catchlight/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-verify published verdicts against live pull requests",
	Long: `Walk every published verdict, refresh its pull request from GitHub,
re-judge the ones whose bot comments changed, revoke the ones that no
longer qualify, and rewrite the tracking sheet with the surviving
open-PR verdicts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reconcileRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func reconcileRun(cmd *cobra.Command) error {
	ctx := cmd.Context()

	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		catches, err := s.ListCatches(ctx, store.CatchFilter{})
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would reconcile %d published verdicts", len(catches))
		return nil
	}

	gh, err := getGitHub()
	if err != nil {
		return err
	}
	engine, err := getJudge()
	if err != nil {
		return err
	}

	// The sheet is optional here: without one, reconcile still keeps the
	// local record honest.
	var sink reconcile.Sink
	haveSheet := viper.GetString("sheets.spreadsheet_id") != ""
	if haveSheet {
		c, err := getSheets(cmd)
		if err != nil {
			return err
		}
		sink = c
	} else {
		ui.Warning("No spreadsheet configured; reconciling the local record only")
	}

	r := reconcile.New(gh, harvest.New(gh), engine, sink, s)
	r.Warnf = ui.Warning

	sum, err := r.Run(ctx)
	if err != nil {
		return err
	}

	ui.Info("Checked %d verdicts: %d duplicates revoked, %d evicted, %d re-judged",
		sum.Checked, sum.Deduped, sum.Evicted, sum.Reevaluated)
	if sum.SinkErr != nil {
		ui.Warning("Sheet update failed: %v", sum.SinkErr)
	} else if haveSheet {
		ui.Success("Sheet now holds %d open verdicts", sum.Published)
	}
	return nil
}
