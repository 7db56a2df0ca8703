// Package dbsource reads addressed bot comments from the review
// product's PostgreSQL database. The database is consumed strictly
// read-only; verdicts and state live elsewhere.
package dbsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// AddressedComment is one bot comment a developer acted on, as recorded
// by the review product.
type AddressedComment struct {
	Repo       string
	Remote     string
	PRNumber   int
	PRTitle    string
	PRState    string
	PRURL      string
	CommentID  string
	Body       string
	FilePath   string
	LineNumber int
	Upvotes    int
	Downvotes  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stats summarizes addressed vs ignored bot comments across the store.
type Stats struct {
	Addressed    int
	NotAddressed int
	Total        int
	AddressedPct float64
}

// Source is a read-only handle on the relational store.
type Source struct {
	db *sql.DB
}

// Open connects to the database. Connection-pooler query parameters the
// driver does not understand are stripped from the URL first.
func Open(rawURL string) (*Source, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("database URL required")
	}
	rawURL = strings.Replace(rawURL, "?pgbouncer=true", "", 1)

	db, err := sql.Open("postgres", rawURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Source{db: db}, nil
}

// Close releases the connection pool.
func (s *Source) Close() error {
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FetchNewAddressed returns bot-generated comments marked addressed,
// most recently updated first. A zero since means no lower bound; a nil
// repos list means no repository filter.
func (s *Source) FetchNewAddressed(ctx context.Context, since time.Time, limit int, repos []string) ([]AddressedComment, error) {
	query := `
		SELECT
			r.name,
			r.remote,
			mr.pr_number,
			mr.title,
			mr.state,
			COALESCE(mr.source_repo_url, ''),
			c.comment_id,
			COALESCE(c.body, ''),
			COALESCE(c.file_path, ''),
			COALESCE(c.line_start, 0),
			COALESCE(c.upvotes, 0),
			COALESCE(c.downvotes, 0),
			c.created_at,
			c.updated_at
		FROM "MergeRequestComment" c
		JOIN "MergeRequest" mr ON c.merge_request_id = mr.id
		JOIN "Repository" r ON mr.repo_id = r.id
		WHERE c.greptile_generated = true
		  AND c.addressed = true`

	var args []any
	if len(repos) > 0 {
		args = append(args, pq.Array(repos))
		query += fmt.Sprintf(" AND r.name = ANY($%d)", len(args))
	}
	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(" AND c.updated_at >= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY c.updated_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query addressed comments: %w", err)
	}
	defer rows.Close()

	var comments []AddressedComment
	for rows.Next() {
		var c AddressedComment
		var sourceURL string
		if err := rows.Scan(
			&c.Repo, &c.Remote, &c.PRNumber, &c.PRTitle, &c.PRState,
			&sourceURL, &c.CommentID, &c.Body, &c.FilePath, &c.LineNumber,
			&c.Upvotes, &c.Downvotes, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan addressed comment: %w", err)
		}
		c.PRURL = BuildPRURL(c.Remote, c.Repo, c.PRNumber, sourceURL)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// AddressedStats counts addressed vs ignored bot comments.
func (s *Source) AddressedStats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT addressed, COUNT(*)
		FROM "MergeRequestComment"
		WHERE greptile_generated = true
		GROUP BY addressed`)
	if err != nil {
		return Stats{}, fmt.Errorf("query addressed stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var addressed bool
		var count int
		if err := rows.Scan(&addressed, &count); err != nil {
			return Stats{}, fmt.Errorf("scan addressed stats: %w", err)
		}
		if addressed {
			stats.Addressed = count
		} else {
			stats.NotAddressed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	stats.Total = stats.Addressed + stats.NotAddressed
	if stats.Total > 0 {
		stats.AddressedPct = 100 * float64(stats.Addressed) / float64(stats.Total)
	}
	return stats, nil
}

// BuildPRURL assembles the canonical pull-request URL for a remote,
// falling back to the stored source URL for unknown remotes.
func BuildPRURL(remote, repo string, prNumber int, sourceURL string) string {
	switch remote {
	case "github":
		return fmt.Sprintf("https://github.com/%s/pull/%d", repo, prNumber)
	case "gitlab":
		return fmt.Sprintf("https://gitlab.com/%s/-/merge_requests/%d", repo, prNumber)
	default:
		return sourceURL
	}
}
