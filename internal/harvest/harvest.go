// Package harvest walks monitored repositories for new bot review
// activity, guided by per-repository watermarks.
package harvest

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/catchlight/catchlight/internal/correlate"
	"github.com/catchlight/catchlight/internal/github"
	"github.com/catchlight/catchlight/internal/models"
)

// API is the slice of the GitHub client the harvester consumes.
type API interface {
	ListPullRequests(ctx context.Context, owner, repo string, since time.Time, sortBy string) ([]github.PullRequest, error)
	ListReviewComments(ctx context.Context, owner, repo string, number int) ([]github.ReviewComment, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int) ([]github.IssueComment, error)
	ListReviews(ctx context.Context, owner, repo string, number int) ([]github.Review, error)
	IsBotLogin(login string) bool
}

// Harvester finds pull requests with new bot comments.
type Harvester struct {
	api API
}

// New creates a harvester over the given API client.
func New(api API) *Harvester {
	return &Harvester{api: api}
}

// Repo processes one repository: lists pull requests updated since the
// watermark, decides per PR whether it needs processing (created since the
// last check, or head commit changed), and collects bot comments with
// their developer replies for the ones that do.
//
// The returned watermark is always usable: on success it carries the new
// check time and refreshed head-commit map; on failure it preserves the
// old watermark with the error count incremented, so the next run retries
// the same increment.
func (h *Harvester) Repo(ctx context.Context, repo string, mark *models.Watermark) ([]models.PullRequest, *models.Watermark) {
	owner, name, err := github.SplitRepo(repo)
	if err != nil {
		return nil, failedMark(repo, mark)
	}

	var since time.Time
	oldSHAs := map[int]string{}
	lastPR := 0
	if mark != nil {
		since = mark.LastChecked
		lastPR = mark.LastPRNumber
		if mark.HeadSHAs != nil {
			oldSHAs = mark.HeadSHAs
		}
	}

	prs, err := h.api.ListPullRequests(ctx, owner, name, since, "updated")
	if err != nil {
		return nil, failedMark(repo, mark)
	}

	var results []models.PullRequest
	newSHAs := make(map[int]string, len(prs))

	for _, pr := range prs {
		headSHA := pr.Head.SHA

		isNewPR := since.IsZero() || !pr.CreatedAt.Before(since)
		oldSHA, seen := oldSHAs[pr.Number]
		hasNewCommits := seen && oldSHA != headSHA

		if isNewPR || hasNewCommits {
			trigger := models.TriggerNewCommits
			if isNewPR {
				trigger = models.TriggerNewPR
			}

			comments, err := h.collectBotComments(ctx, owner, name, pr.Number)
			if err != nil {
				return nil, failedMark(repo, mark)
			}
			if len(comments) > 0 {
				results = append(results, models.PullRequest{
					Repo:      repo,
					Number:    pr.Number,
					Title:     pr.Title,
					Author:    pr.User.Login,
					URL:       pr.HTMLURL,
					State:     pr.State,
					CreatedAt: pr.CreatedAt,
					UpdatedAt: pr.UpdatedAt,
					HeadSHA:   headSHA,
					Trigger:   trigger,
					FetchedAt: time.Now().UTC(),
					Comments:  comments,
				})
			}
		}

		// Every walked PR refreshes the head map, processed or not.
		newSHAs[pr.Number] = headSHA
		if pr.Number > lastPR {
			lastPR = pr.Number
		}
	}

	return results, &models.Watermark{
		Repo:         repo,
		LastChecked:  time.Now().UTC(),
		LastPRNumber: lastPR,
		ErrorCount:   0,
		HeadSHAs:     newSHAs,
	}
}

func failedMark(repo string, old *models.Watermark) *models.Watermark {
	if old == nil {
		return &models.Watermark{
			Repo:        repo,
			LastChecked: time.Time{},
			ErrorCount:  1,
		}
	}
	next := old.Clone()
	next.ErrorCount++
	return next
}

// CollectBotComments gathers all bot-authored comments on one pull
// request: inline review comments (with developer replies attached),
// general issue comments, and review-submission bodies.
func (h *Harvester) CollectBotComments(ctx context.Context, repo string, number int) ([]models.BotComment, error) {
	owner, name, err := github.SplitRepo(repo)
	if err != nil {
		return nil, err
	}
	return h.collectBotComments(ctx, owner, name, number)
}

func (h *Harvester) collectBotComments(ctx context.Context, owner, name string, number int) ([]models.BotComment, error) {
	var comments []models.BotComment

	reviewComments, err := h.api.ListReviewComments(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}
	replies := correlate.ExtractReplies(reviewComments, h.api.IsBotLogin)
	for _, c := range reviewComments {
		if !h.api.IsBotLogin(c.User.Login) || c.InReplyToID != 0 {
			continue
		}
		line := c.Line
		if line == 0 {
			line = c.OriginalLine
		}
		comments = append(comments, models.BotComment{
			ID:         c.ID,
			Body:       c.Body,
			URL:        c.HTMLURL,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
			FilePath:   c.Path,
			LineNumber: line,
			DiffHunk:   c.DiffHunk,
			ReplyBody:  replies[c.ID],
			Type:       models.CommentTypeReview,
			Score:      ExtractScore(c.Body),
		})
	}

	issueComments, err := h.api.ListIssueComments(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}
	for _, c := range issueComments {
		if !h.api.IsBotLogin(c.User.Login) {
			continue
		}
		comments = append(comments, models.BotComment{
			ID:        c.ID,
			Body:      c.Body,
			URL:       c.HTMLURL,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
			Type:      models.CommentTypeIssue,
			Score:     ExtractScore(c.Body),
		})
	}

	reviews, err := h.api.ListReviews(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		if !h.api.IsBotLogin(r.User.Login) || r.Body == "" {
			continue
		}
		comments = append(comments, models.BotComment{
			ID:        r.ID,
			Body:      r.Body,
			URL:       r.HTMLURL,
			CreatedAt: r.SubmittedAt,
			UpdatedAt: r.SubmittedAt,
			Type:      models.CommentTypeReviewBody,
			Score:     ExtractScore(r.Body),
		})
	}

	return comments, nil
}

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Cc]onfidence(?:\s+score)?[:\s]+(\d)/5`),
	regexp.MustCompile(`[Ss]core[:\s]+(\d)/5`),
	regexp.MustCompile(`(?:^|[\s:])(\d)/5`),
}

// ExtractScore pulls a confidence score out of a bot overview comment.
// Returns 0 when no score pattern is present.
func ExtractScore(body string) int {
	if body == "" {
		return 0
	}
	for _, p := range scorePatterns {
		if m := p.FindStringSubmatch(body); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n
		}
	}
	return 0
}
