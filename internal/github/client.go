// Package github is a minimal GitHub REST client tailored to harvesting
// bot review activity: cursor pagination via Link headers, proactive
// rate-limit sleeping, and bounded retry on transient failures.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.github.com"

// Transient failures are retried this many times with 2^attempt seconds
// of backoff between attempts.
const maxRetries = 3

// Once remaining quota drops below this, the client sleeps until the
// reported reset instant before issuing further requests.
const quotaLowWater = 100

// The quota sleep is capped so a bad reset header can never stall a run
// for more than an hour.
const maxQuotaSleep = time.Hour

// Client talks to the GitHub REST API with rate-limit tracking.
// It is not safe for concurrent use; the pipeline is single-threaded.
type Client struct {
	token     string
	apiURL    string
	httpCli   *http.Client
	botLogins []string

	rateRemaining int
	rateReset     time.Time

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewClient creates a client using the given bearer token. botLogins is the
// allow-list of account-name substrings that identify the reviewer bot.
func NewClient(token string, botLogins []string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is not set")
	}
	return &Client{
		token:         token,
		apiURL:        defaultAPIURL,
		httpCli:       &http.Client{Timeout: 30 * time.Second},
		botLogins:     botLogins,
		rateRemaining: 5000,
		sleep:         time.Sleep,
	}, nil
}

// IsBotLogin reports whether a login belongs to the reviewer bot, by
// case-insensitive substring match against the allow-list.
func (c *Client) IsBotLogin(login string) bool {
	if login == "" {
		return false
	}
	lower := strings.ToLower(login)
	for _, name := range c.botLogins {
		if strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// RateRemaining returns the quota remaining as of the last response.
func (c *Client) RateRemaining() int { return c.rateRemaining }

// updateRateLimit refreshes quota tracking from response headers and
// sleeps when the low-water mark has been crossed.
func (c *Client) updateRateLimit(h http.Header) {
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.rateRemaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.rateReset = time.Unix(ts, 0).UTC()
		}
	}

	if c.rateRemaining < quotaLowWater && !c.rateReset.IsZero() {
		wait := time.Until(c.rateReset) + 5*time.Second
		if wait > 0 {
			if wait > maxQuotaSleep {
				wait = maxQuotaSleep
			}
			c.sleep(wait)
		}
	}
}

// CheckQuota refreshes quota state from the rate-limit endpoint and sleeps
// if needed. Used by long passes that issue many extra calls outside the
// harvest path.
func (c *Client) CheckQuota(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/rate_limit", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("rate limit check: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	c.updateRateLimit(resp.Header)
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

// page is one page of a paginated response. A nil page with a nil error
// means the resource yielded no data for a non-fatal reason (404, access
// denied, retries exhausted) and the caller should continue without it.
type page struct {
	body []byte
	next string
}

// getPage fetches one URL with retry and rate-limit handling.
func (c *Client) getPage(ctx context.Context, rawURL string) (*page, error) {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = c.apiURL + rawURL
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.httpCli.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.sleep(time.Duration(1<<uint(attempt)) * 2 * time.Second)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.updateRateLimit(resp.Header)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, fmt.Errorf("read response: %w", readErr)
			}
			return &page{body: body, next: parseNextLink(resp.Header.Get("Link"))}, nil
		case resp.StatusCode == http.StatusNotFound:
			// The resource may legitimately not exist.
			return nil, nil
		case resp.StatusCode == http.StatusForbidden:
			if strings.Contains(strings.ToLower(string(body)), "rate limit") {
				// updateRateLimit already slept; retry the same URL.
				continue
			}
			return nil, nil
		case resp.StatusCode >= 500:
			c.sleep(time.Duration(1<<uint(attempt)) * 2 * time.Second)
			continue
		default:
			// Non-retryable; skip this resource and keep the run alive.
			return nil, nil
		}
	}
	return nil, nil
}

// parseNextLink extracts the rel="next" URL from a Link header, or "".
func parseNextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		seg := strings.SplitN(part, ";", 2)[0]
		return strings.Trim(strings.TrimSpace(seg), "<>")
	}
	return ""
}

// getPaginated walks all pages of a list endpoint, decoding each page into
// a slice of T. stop, when non-nil, is consulted after each item; a true
// return ends pagination early (upstream ordering is descending, so
// nothing past the first rejected item can qualify).
func getPaginated[T any](ctx context.Context, c *Client, path string, stop func(T) bool) ([]T, error) {
	next := path
	var out []T
	for next != "" {
		pg, err := c.getPage(ctx, next)
		if err != nil {
			return out, err
		}
		if pg == nil {
			return out, nil
		}
		var items []T
		if err := json.Unmarshal(pg.body, &items); err != nil {
			return out, fmt.Errorf("decode page: %w", err)
		}
		for _, item := range items {
			if stop != nil && stop(item) {
				return out, nil
			}
			out = append(out, item)
		}
		next = pg.next
	}
	return out, nil
}

// ListPullRequests lists pull requests for a repository sorted by sortBy
// ("created" or "updated"), newest first, stopping at the first pull
// request whose sort field falls before since. A zero since returns all.
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string, since time.Time, sortBy string) ([]PullRequest, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("sort", sortBy)
	q.Set("direction", "desc")
	q.Set("per_page", "100")
	path := fmt.Sprintf("/repos/%s/%s/pulls?%s", owner, repo, q.Encode())

	var stop func(PullRequest) bool
	if !since.IsZero() {
		stop = func(pr PullRequest) bool {
			field := pr.UpdatedAt
			if sortBy == "created" {
				field = pr.CreatedAt
			}
			return field.Before(since)
		}
	}
	return getPaginated(ctx, c, path, stop)
}

// GetPullRequest fetches a single pull request. Returns nil without error
// when the pull request does not exist.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pg, err := c.getPage(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number))
	if err != nil || pg == nil {
		return nil, err
	}
	var pr PullRequest
	if err := json.Unmarshal(pg.body, &pr); err != nil {
		return nil, fmt.Errorf("decode pull request: %w", err)
	}
	return &pr, nil
}

// ListReviewComments lists the inline review comments of a pull request.
func (c *Client) ListReviewComments(ctx context.Context, owner, repo string, number int) ([]ReviewComment, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments?per_page=100", owner, repo, number)
	return getPaginated[ReviewComment](ctx, c, path, nil)
}

// ListIssueComments lists the general (issue) comments of a pull request.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int) ([]IssueComment, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?per_page=100", owner, repo, number)
	return getPaginated[IssueComment](ctx, c, path, nil)
}

// ListReviews lists the review submissions of a pull request.
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]Review, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews?per_page=100", owner, repo, number)
	return getPaginated[Review](ctx, c, path, nil)
}

// ListFiles lists the changed files of a pull request with their patches.
func (c *Client) ListFiles(ctx context.Context, owner, repo string, number int) ([]PullRequestFile, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=100", owner, repo, number)
	return getPaginated[PullRequestFile](ctx, c, path, nil)
}

// SplitRepo splits "owner/name" into its parts.
func SplitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo: %s", repo)
	}
	return parts[0], parts[1], nil
}

// ParsePRURL extracts "owner/name" and the pull-request number from a
// canonical pull-request URL.
func ParsePRURL(prURL string) (repo string, number int, err error) {
	i := strings.Index(prURL, "github.com/")
	if i == -1 {
		return "", 0, fmt.Errorf("not a github pull request URL: %s", prURL)
	}
	parts := strings.Split(prURL[i+len("github.com/"):], "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return "", 0, fmt.Errorf("not a github pull request URL: %s", prURL)
	}
	n, err := strconv.Atoi(strings.SplitN(parts[3], "#", 2)[0])
	if err != nil {
		return "", 0, fmt.Errorf("not a github pull request URL: %s", prURL)
	}
	return parts[0] + "/" + parts[1], n, nil
}
