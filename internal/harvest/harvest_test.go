package harvest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchlight/catchlight/internal/github"
	"github.com/catchlight/catchlight/internal/models"
)

type fakeAPI struct {
	prs            []github.PullRequest
	reviewComments map[int][]github.ReviewComment
	issueComments  map[int][]github.IssueComment
	reviews        map[int][]github.Review
	listErr        error
	commentCalls   []int
}

func (f *fakeAPI) ListPullRequests(_ context.Context, _, _ string, _ time.Time, _ string) ([]github.PullRequest, error) {
	return f.prs, f.listErr
}

func (f *fakeAPI) ListReviewComments(_ context.Context, _, _ string, number int) ([]github.ReviewComment, error) {
	f.commentCalls = append(f.commentCalls, number)
	return f.reviewComments[number], nil
}

func (f *fakeAPI) ListIssueComments(_ context.Context, _, _ string, number int) ([]github.IssueComment, error) {
	return f.issueComments[number], nil
}

func (f *fakeAPI) ListReviews(_ context.Context, _, _ string, number int) ([]github.Review, error) {
	return f.reviews[number], nil
}

func (f *fakeAPI) IsBotLogin(login string) bool {
	return strings.Contains(strings.ToLower(login), "reviewbot")
}

func pr(number int, created time.Time, sha string) github.PullRequest {
	p := github.PullRequest{
		Number:    number,
		Title:     "refactor widget pipeline",
		State:     "open",
		HTMLURL:   fmt.Sprintf("https://github.com/acme/widgets/pull/%d", number),
		CreatedAt: created,
		UpdatedAt: created,
	}
	p.User.Login = "dev-a"
	p.Head.SHA = sha
	return p
}

func TestRepoNewPRTrigger(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		prs: []github.PullRequest{pr(42, cutoff.Add(time.Hour), "abc")},
		reviewComments: map[int][]github.ReviewComment{
			42: {
				{ID: 10, Body: "Null check missing on line 10",
					Path: "pkg/widget.go", Line: 10,
					User: github.User{Login: "reviewbot[bot]"}},
				{ID: 30, InReplyToID: 10, Body: "good catch, fixed in a6f3",
					User: github.User{Login: "dev-a"}},
			},
		},
	}

	h := New(api)
	results, mark := h.Repo(context.Background(), "acme/widgets",
		&models.Watermark{Repo: "acme/widgets", LastChecked: cutoff})

	require.Len(t, results, 1)
	assert.Equal(t, models.TriggerNewPR, results[0].Trigger)
	require.Len(t, results[0].Comments, 1)
	assert.Equal(t, "good catch, fixed in a6f3", results[0].Comments[0].ReplyBody)
	assert.Equal(t, "pkg/widget.go", results[0].Comments[0].FilePath)

	assert.Equal(t, 0, mark.ErrorCount)
	assert.Equal(t, 42, mark.LastPRNumber)
	assert.Equal(t, "abc", mark.HeadSHAs[42])
	assert.False(t, mark.LastChecked.Before(cutoff), "watermark advances")
}

func TestRepoNewCommitsTrigger(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		prs: []github.PullRequest{pr(7, cutoff.Add(-48*time.Hour), "new-sha")},
		reviewComments: map[int][]github.ReviewComment{
			7: {{ID: 11, Body: "Off-by-one in pagination loop",
				User: github.User{Login: "reviewbot[bot]"}}},
		},
	}

	h := New(api)
	results, _ := h.Repo(context.Background(), "acme/widgets", &models.Watermark{
		Repo:        "acme/widgets",
		LastChecked: cutoff,
		HeadSHAs:    map[int]string{7: "old-sha"},
	})

	require.Len(t, results, 1)
	assert.Equal(t, models.TriggerNewCommits, results[0].Trigger)
}

func TestRepoUnchangedPRIsSkippedButWalked(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		prs: []github.PullRequest{pr(7, cutoff.Add(-48*time.Hour), "same-sha")},
	}

	h := New(api)
	results, mark := h.Repo(context.Background(), "acme/widgets", &models.Watermark{
		Repo:        "acme/widgets",
		LastChecked: cutoff,
		HeadSHAs:    map[int]string{7: "same-sha"},
	})

	assert.Empty(t, results)
	assert.Empty(t, api.commentCalls, "no comment fetches for unchanged PRs")
	assert.Equal(t, "same-sha", mark.HeadSHAs[7], "head map stays current")
}

func TestRepoFailurePreservesWatermark(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{listErr: assert.AnError}

	h := New(api)
	old := &models.Watermark{
		Repo:        "acme/widgets",
		LastChecked: cutoff,
		ErrorCount:  2,
		HeadSHAs:    map[int]string{7: "sha"},
	}
	results, mark := h.Repo(context.Background(), "acme/widgets", old)

	assert.Nil(t, results)
	assert.True(t, mark.LastChecked.Equal(cutoff), "failed run does not advance")
	assert.Equal(t, 3, mark.ErrorCount)
	assert.Equal(t, map[int]string{7: "sha"}, mark.HeadSHAs)
	assert.Equal(t, 2, old.ErrorCount, "caller's watermark untouched")
}

func TestRepoFirstRunProcessesEverything(t *testing.T) {
	api := &fakeAPI{
		prs: []github.PullRequest{pr(1, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "sha1")},
		issueComments: map[int][]github.IssueComment{
			1: {{ID: 50, Body: "Overall looks risky. Confidence: 2/5",
				User: github.User{Login: "reviewbot-apps"}}},
		},
	}

	h := New(api)
	results, _ := h.Repo(context.Background(), "acme/widgets", nil)
	require.Len(t, results, 1)
	assert.Equal(t, models.TriggerNewPR, results[0].Trigger)
	require.Len(t, results[0].Comments, 1)
	assert.Equal(t, models.CommentTypeIssue, results[0].Comments[0].Type)
	assert.Equal(t, 2, results[0].Comments[0].Score)
}

func TestExtractScore(t *testing.T) {
	cases := []struct {
		body string
		want int
	}{
		{"Confidence: 3/5", 3},
		{"Confidence score: 4/5", 4},
		{"score: 1/5", 1},
		{"Summary line\n5/5 changes reviewed", 5},
		{"no score here", 0},
		{"", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractScore(tc.body), tc.body)
	}
}
