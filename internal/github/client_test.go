package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("test-token", []string{"reviewbot[bot]", "reviewbot-apps"})
	require.NoError(t, err)
	c.apiURL = srv.URL
	c.sleep = func(time.Duration) {}
	return c, srv
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient("", nil)
	assert.Error(t, err)
}

func TestIsBotLogin(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	assert.True(t, c.IsBotLogin("reviewbot[bot]"))
	assert.True(t, c.IsBotLogin("ReviewBot-Apps"))
	assert.True(t, c.IsBotLogin("the-reviewbot-apps-helper"))
	assert.False(t, c.IsBotLogin("octocat"))
	assert.False(t, c.IsBotLogin(""))
}

func TestParseNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{
			name:   "next and last",
			header: `<https://api.github.com/repos/a/b/pulls?page=2>; rel="next", <https://api.github.com/repos/a/b/pulls?page=5>; rel="last"`,
			want:   "https://api.github.com/repos/a/b/pulls?page=2",
		},
		{
			name:   "no next",
			header: `<https://api.github.com/repos/a/b/pulls?page=1>; rel="prev"`,
			want:   "",
		},
		{
			name:   "empty",
			header: "",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseNextLink(tt.header))
		})
	}
}

func TestListPullRequests_Pagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number": 40, "title": "second page", "created_at": "2025-01-01T00:00:00Z", "updated_at": "2025-01-02T00:00:00Z"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/pulls?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"number": 42, "title": "first page", "created_at": "2025-02-01T00:00:00Z", "updated_at": "2025-02-02T00:00:00Z"}]`)
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	prs, err := c.ListPullRequests(context.Background(), "acme", "widgets", time.Time{}, "updated")
	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, 42, prs[0].Number)
	assert.Equal(t, 40, prs[1].Number)
}

func TestListPullRequests_StopsAtSinceCutoff(t *testing.T) {
	requests := 0
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Descending by updated_at; the second item falls before the cutoff.
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/pulls?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[
			{"number": 42, "updated_at": "2025-06-01T00:00:00Z", "created_at": "2025-06-01T00:00:00Z"},
			{"number": 41, "updated_at": "2025-01-01T00:00:00Z", "created_at": "2025-01-01T00:00:00Z"}
		]`)
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	prs, err := c.ListPullRequests(context.Background(), "acme", "widgets", since, "updated")
	require.NoError(t, err)
	require.Len(t, prs, 1)
	assert.Equal(t, 42, prs[0].Number)
	assert.Equal(t, 1, requests, "must not follow the next link past the cutoff")
}

func TestGetPage_NotFoundIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	comments, err := c.ListIssueComments(context.Background(), "acme", "widgets", 99)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestGetPage_RetriesServerErrors(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `[{"id": 7, "body": "hello"}]`)
	}))

	comments, err := c.ListIssueComments(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, int64(7), comments[0].ID)
	assert.Equal(t, 3, attempts)
}

func TestGetPage_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	comments, err := c.ListIssueComments(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err, "exhausted retries downgrade to empty data")
	assert.Empty(t, comments)
	assert.Equal(t, maxRetries, attempts)
}

func TestUpdateRateLimit_SleepsBelowLowWater(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).Unix()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "50")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))
		fmt.Fprint(w, `[]`)
	}))

	var slept time.Duration
	c.sleep = func(d time.Duration) { slept += d }

	_, err := c.ListIssueComments(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, 50, c.RateRemaining())
	assert.Greater(t, slept, 9*time.Minute)
	assert.LessOrEqual(t, slept, maxQuotaSleep)
}

func TestUpdateRateLimit_SleepCappedAtOneHour(t *testing.T) {
	reset := time.Now().Add(5 * time.Hour).Unix()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "1")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))
		fmt.Fprint(w, `[]`)
	}))

	var slept time.Duration
	c.sleep = func(d time.Duration) { slept += d }

	_, err := c.ListIssueComments(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, maxQuotaSleep, slept)
}

func TestSplitRepo(t *testing.T) {
	owner, name, err := SplitRepo("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)

	_, _, err = SplitRepo("widgets")
	assert.Error(t, err)
}

func TestParsePRURL(t *testing.T) {
	repo, number, err := ParsePRURL("https://github.com/acme/widgets/pull/42")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", repo)
	assert.Equal(t, 42, number)

	repo, number, err = ParsePRURL("https://github.com/acme/widgets/pull/42#discussion_r123")
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", repo)
	assert.Equal(t, 42, number)

	_, _, err = ParsePRURL("https://gitlab.com/acme/widgets/-/merge_requests/42")
	assert.Error(t, err)
}
