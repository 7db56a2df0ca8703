// Package reconcile re-validates published catch verdicts against live
// pull-request state, revoking the ones that no longer qualify and
// replacing the spreadsheet sink with the surviving open-PR set.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/catchlight/catchlight/internal/github"
	"github.com/catchlight/catchlight/internal/judge"
	"github.com/catchlight/catchlight/internal/models"
	"github.com/catchlight/catchlight/internal/store"
)

// checkQuotaEvery is how many pull requests are processed between
// explicit quota checks. This pass issues many state-refresh calls the
// harvester's own per-request accounting does not anticipate.
const checkQuotaEvery = 20

// PRFetcher refreshes live pull-request state.
type PRFetcher interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
	CheckQuota(ctx context.Context) error
}

// CommentSource lists the bot comments currently visible on a pull
// request.
type CommentSource interface {
	CollectBotComments(ctx context.Context, repo string, number int) ([]models.BotComment, error)
}

// Oracle renders fresh whole-PR verdicts.
type Oracle interface {
	Reevaluate(ctx context.Context, repo, prTitle, commentText string) (*judge.Reevaluation, error)
}

// Sink is the external publish target.
type Sink interface {
	Replace(ctx context.Context, catches []models.Catch) (int, error)
}

// Record is the durable verdict store subset this pass needs.
type Record interface {
	ListCatches(ctx context.Context, filter store.CatchFilter) ([]*models.Catch, error)
	UpdateCatch(ctx context.Context, c *models.Catch) error
	RevokeCatch(ctx context.Context, id string) error
}

// Reconciler drives one reconciliation pass.
type Reconciler struct {
	gh       PRFetcher
	comments CommentSource
	oracle   Oracle
	sink     Sink
	record   Record

	// CheckEvery overrides the quota-check cadence; zero means the default.
	CheckEvery int

	// Warnf receives non-fatal problems; nil discards them.
	Warnf func(format string, args ...any)
}

// New assembles a reconciler. Sink may be nil for local-only runs.
func New(gh PRFetcher, comments CommentSource, oracle Oracle, sink Sink, record Record) *Reconciler {
	return &Reconciler{gh: gh, comments: comments, oracle: oracle, sink: sink, record: record}
}

// Summary reports what a pass did.
type Summary struct {
	Checked     int
	Deduped     int
	Evicted     int
	Reevaluated int
	Published   int
	SinkErr     error
}

// Run executes one reconciliation pass over every live verdict.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	warnf := r.Warnf
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	checkEvery := r.CheckEvery
	if checkEvery <= 0 {
		checkEvery = checkQuotaEvery
	}

	catches, err := r.record.ListCatches(ctx, store.CatchFilter{})
	if err != nil {
		return sum, err
	}

	kept, dropped := dedupeByPRURL(catches)
	sum.Deduped = len(dropped)
	for _, dup := range dropped {
		if err := r.record.RevokeCatch(ctx, dup.ID); err != nil {
			warnf("revoking duplicate verdict %s: %v", dup.ID, err)
		}
	}

	var published []models.Catch
	for i, c := range kept {
		if i > 0 && i%checkEvery == 0 {
			if err := r.gh.CheckQuota(ctx); err != nil {
				warnf("quota check: %v", err)
			}
		}
		sum.Checked++

		alive, err := r.reconcileOne(ctx, c, &sum, warnf)
		if err != nil {
			warnf("reconciling %s: %v", c.PRURL, err)
			// Keep the stored verdict untouched when live state is
			// unreachable.
			alive = true
		}
		if alive && c.PRState == "open" {
			published = append(published, *c)
		}
	}

	if r.sink != nil {
		n, err := r.sink.Replace(ctx, published)
		if err != nil {
			sum.SinkErr = err
			warnf("sink replace: %v", err)
		} else {
			sum.Published = n
		}
	} else {
		sum.Published = len(published)
	}
	return sum, nil
}

// reconcileOne refreshes one verdict. It reports whether the verdict is
// still alive (not evicted).
func (r *Reconciler) reconcileOne(ctx context.Context, c *models.Catch, sum *Summary, warnf func(string, ...any)) (bool, error) {
	repo, number, err := github.ParsePRURL(c.PRURL)
	if err != nil {
		return true, err
	}
	owner, name, err := github.SplitRepo(repo)
	if err != nil {
		return true, err
	}

	pr, err := r.gh.GetPullRequest(ctx, owner, name, number)
	if err != nil {
		return true, err
	}
	if pr != nil {
		c.PRState = prState(pr)
	}

	live, err := r.comments.CollectBotComments(ctx, c.Repo, number)
	if err != nil {
		return true, err
	}

	// All bot comments gone means the data moved or was deleted; the
	// verdict has nothing left to point at.
	if len(live) == 0 {
		if err := r.record.RevokeCatch(ctx, c.ID); err != nil {
			warnf("revoking %s: %v", c.ID, err)
		}
		sum.Evicted++
		return false, nil
	}

	liveScore := judge.PRScore(live)
	if r.needsReevaluation(c, live, liveScore) {
		sum.Reevaluated++
		verdict, err := r.oracle.Reevaluate(ctx, c.Repo, c.PRTitle, flattenComments(live))
		if err != nil {
			warnf("re-evaluating %s: %v", c.PRURL, err)
		} else if !verdict.IsGreatCatch {
			if err := r.record.RevokeCatch(ctx, c.ID); err != nil {
				warnf("revoking %s: %v", c.ID, err)
			}
			sum.Evicted++
			return false, nil
		} else {
			applyReevaluation(c, verdict, liveScore)
		}
	}

	if err := r.record.UpdateCatch(ctx, c); err != nil {
		warnf("updating %s: %v", c.ID, err)
	}
	return true, nil
}

// needsReevaluation triggers a fresh verdict when the bot posted after
// the last evaluation or its confidence signal changed.
func (r *Reconciler) needsReevaluation(c *models.Catch, live []models.BotComment, liveScore int) bool {
	if liveScore != 0 && liveScore != c.Score {
		return true
	}
	for _, lc := range live {
		if lc.UpdatedAt.After(c.EvaluatedAt) {
			return true
		}
	}
	return false
}

func applyReevaluation(c *models.Catch, verdict *judge.Reevaluation, liveScore int) {
	if len(verdict.Catches) > 0 {
		c.Category = verdict.Catches[0].Category
		c.Severity = verdict.Catches[0].Severity
	}
	if verdict.Summary != "" {
		c.Reasoning = verdict.Summary
	}
	if liveScore != 0 {
		c.Score = liveScore
	}
	c.EvaluatedAt = time.Now().UTC()
}

func prState(pr *github.PullRequest) string {
	if pr.Merged {
		return "merged"
	}
	return pr.State
}

// dedupeByPRURL keeps one verdict per pull-request URL: the most recent
// evaluation wins, ties broken by the larger id (ULIDs are
// time-ordered, so the later write wins).
func dedupeByPRURL(catches []*models.Catch) (kept []*models.Catch, dropped []*models.Catch) {
	best := make(map[string]*models.Catch)
	for _, c := range catches {
		prev, ok := best[c.PRURL]
		if !ok {
			best[c.PRURL] = c
			continue
		}
		if c.EvaluatedAt.After(prev.EvaluatedAt) ||
			(c.EvaluatedAt.Equal(prev.EvaluatedAt) && c.ID > prev.ID) {
			dropped = append(dropped, prev)
			best[c.PRURL] = c
		} else {
			dropped = append(dropped, c)
		}
	}
	// Preserve input order for the winners.
	for _, c := range catches {
		if best[c.PRURL] == c {
			kept = append(kept, c)
		}
	}
	return kept, dropped
}

func flattenComments(comments []models.BotComment) string {
	parts := make([]string, 0, len(comments))
	for _, c := range comments {
		var sb strings.Builder
		sb.WriteString(c.Body)
		if c.DiffHunk != "" {
			sb.WriteString("\n\nDiff context:\n")
			sb.WriteString(c.DiffHunk)
		}
		if c.ReplyBody != "" {
			sb.WriteString("\n\nDeveloper reply:\n")
			sb.WriteString(c.ReplyBody)
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n---\n\n")
}
