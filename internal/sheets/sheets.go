// Package sheets publishes catches to a Google Sheets worksheet.
//
// The sheet offers three primitives (list rows, clear, append);
// de-duplication is implemented client-side by reading before writing.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/catchlight/catchlight/internal/models"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com"
	scope          = "https://www.googleapis.com/auth/spreadsheets"
)

// header is the worksheet column layout, kept stable so existing rows
// keep their meaning across syncs.
var header = []string{
	"repo", "pr_number", "pr_title", "pr_url",
	"comment_body", "comment_url", "reply_body", "created_at",
	"title", "bug_category", "severity", "quality_score", "llm_reasoning",
	"evaluated_at",
}

// Client talks to the Sheets values API for one worksheet.
type Client struct {
	httpCli       *http.Client
	baseURL       string
	spreadsheetID string
	sheetName     string
}

// NewClient authenticates with a service-account credentials file and
// binds to one worksheet of one spreadsheet.
func NewClient(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*Client, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID required")
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, scope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	return &Client{
		httpCli:       conf.Client(ctx),
		baseURL:       defaultBaseURL,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newTestClient binds to a fake API endpoint; used in tests.
func newTestClient(httpCli *http.Client, baseURL, spreadsheetID, sheetName string) *Client {
	return &Client{
		httpCli:       httpCli,
		baseURL:       baseURL,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}
}

func (c *Client) valuesURL(suffix string) string {
	return fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s%s",
		c.baseURL, c.spreadsheetID, url.PathEscape(c.sheetName), suffix)
}

// Rows returns all rows currently in the worksheet, header included.
func (c *Client) Rows(ctx context.Context) ([][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.valuesURL(""), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sheet rows: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list sheet rows", resp)
	}

	var body struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode sheet rows: %w", err)
	}
	return body.Values, nil
}

// Clear removes every row from the worksheet.
func (c *Client) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.valuesURL(":clear"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError("clear sheet", resp)
	}
	return nil
}

// Append adds rows after the last row with data.
func (c *Client) Append(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]any{"values": rows})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.valuesURL(":append?valueInputOption=RAW"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("append sheet rows: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError("append sheet rows", resp)
	}
	return nil
}

// SyncCatches appends catches not already present, de-duplicating by
// comment URL against the rows the sheet holds now. An empty sheet gets
// the header row first. Returns the number of rows added.
func (c *Client) SyncCatches(ctx context.Context, catches []models.Catch) (int, error) {
	if len(catches) == 0 {
		return 0, nil
	}

	existing, err := c.Rows(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{})
	if len(existing) > 0 {
		urlIdx := -1
		for i, h := range existing[0] {
			if h == "comment_url" {
				urlIdx = i
				break
			}
		}
		if urlIdx >= 0 {
			for _, row := range existing[1:] {
				if len(row) > urlIdx {
					seen[row[urlIdx]] = struct{}{}
				}
			}
		}
	}

	var rows [][]string
	if len(existing) == 0 {
		rows = append(rows, header)
	}
	added := 0
	for _, catch := range catches {
		if _, ok := seen[catch.CommentURL]; ok {
			continue
		}
		rows = append(rows, catchRow(catch))
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := c.Append(ctx, rows); err != nil {
		return 0, err
	}
	return added, nil
}

// Replace clears the worksheet and writes the given catches fresh.
// Clear-then-append is not transactional; a crash in between leaves the
// sheet empty until the next run.
func (c *Client) Replace(ctx context.Context, catches []models.Catch) (int, error) {
	if len(catches) == 0 {
		return 0, nil
	}
	if err := c.Clear(ctx); err != nil {
		return 0, err
	}
	rows := make([][]string, 0, len(catches)+1)
	rows = append(rows, header)
	for _, catch := range catches {
		rows = append(rows, catchRow(catch))
	}
	if err := c.Append(ctx, rows); err != nil {
		return 0, err
	}
	return len(catches), nil
}

func catchRow(c models.Catch) []string {
	score := ""
	if c.Score != 0 {
		score = strconv.Itoa(c.Score)
	}
	return []string{
		c.Repo,
		strconv.Itoa(c.PRNumber),
		c.PRTitle,
		c.PRURL,
		c.CommentBody,
		c.CommentURL,
		c.ReplyBody,
		formatTime(c.CreatedAt),
		c.Title,
		string(c.Category),
		string(c.Severity),
		score,
		c.Reasoning,
		formatTime(c.EvaluatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func apiError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, snippet)
}
