package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/catchlight/catchlight/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single pooled
	// connection serializes access and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const catchColumns = `id, repo, pr_number, pr_title, pr_url, pr_state, title,
	comment_body, comment_url, reply_body, category, severity, reasoning,
	score, trigger_type, created_at, evaluated_at, revoked_at`

// SaveCatch publishes a verdict. At most one live verdict exists per
// pull-request URL, so any prior rows for the URL are dropped in the
// same transaction.
func (s *SQLiteStore) SaveCatch(ctx context.Context, c *models.Catch) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.EvaluatedAt.IsZero() {
		c.EvaluatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save catch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catches WHERE pr_url = ?`, c.PRURL); err != nil {
		return fmt.Errorf("replace catch: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO catches (`+catchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Repo, c.PRNumber, c.PRTitle, c.PRURL, c.PRState, c.Title,
		c.CommentBody, c.CommentURL, c.ReplyBody, string(c.Category), string(c.Severity), c.Reasoning,
		c.Score, string(c.Trigger), nullTime(c.CreatedAt), c.EvaluatedAt, c.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("save catch: %w", err)
	}
	return tx.Commit()
}

// GetCatchByPRURL returns the verdict for a pull request, revoked or not.
func (s *SQLiteStore) GetCatchByPRURL(ctx context.Context, prURL string) (*models.Catch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catchColumns+` FROM catches WHERE pr_url = ?`, prURL)
	c, err := scanCatch(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("catch not found: %s", prURL)
	}
	if err != nil {
		return nil, fmt.Errorf("get catch: %w", err)
	}
	return c, nil
}

// ListCatches returns verdicts matching the filter, most recently
// evaluated first. Revoked verdicts are excluded unless asked for.
func (s *SQLiteStore) ListCatches(ctx context.Context, filter CatchFilter) ([]*models.Catch, error) {
	query := `SELECT ` + catchColumns + ` FROM catches WHERE 1=1`
	var args []any

	if !filter.IncludeRevoked {
		query += ` AND revoked_at IS NULL`
	}
	if filter.OpenOnly {
		query += ` AND pr_state = 'open'`
	}
	if filter.Repo != "" {
		query += ` AND repo = ?`
		args = append(args, filter.Repo)
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY evaluated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list catches: %w", err)
	}
	defer rows.Close()

	var catches []*models.Catch
	for rows.Next() {
		c, err := scanCatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catch: %w", err)
		}
		catches = append(catches, c)
	}
	return catches, rows.Err()
}

// UpdateCatch rewrites a verdict in place by id.
func (s *SQLiteStore) UpdateCatch(ctx context.Context, c *models.Catch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catches SET repo = ?, pr_number = ?, pr_title = ?, pr_url = ?,
			pr_state = ?, title = ?, comment_body = ?, comment_url = ?,
			reply_body = ?, category = ?, severity = ?, reasoning = ?,
			score = ?, trigger_type = ?, created_at = ?, evaluated_at = ?, revoked_at = ?
		WHERE id = ?`,
		c.Repo, c.PRNumber, c.PRTitle, c.PRURL, c.PRState, c.Title,
		c.CommentBody, c.CommentURL, c.ReplyBody, string(c.Category), string(c.Severity),
		c.Reasoning, c.Score, string(c.Trigger), nullTime(c.CreatedAt), c.EvaluatedAt, c.RevokedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update catch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("catch not found: %s", c.ID)
	}
	return nil
}

// RevokeCatch withdraws a verdict without deleting its row.
func (s *SQLiteStore) RevokeCatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catches SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke catch: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("catch not found or already revoked: %s", id)
	}
	return nil
}

// CatchCounts summarizes the durable record.
func (s *SQLiteStore) CatchCounts(ctx context.Context) (Counts, error) {
	counts := Counts{BySeverity: make(map[models.Severity]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(revoked_at),
			COALESCE(SUM(CASE WHEN pr_state = 'open' AND revoked_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM catches`).Scan(&counts.Total, &counts.Revoked, &counts.Open)
	if err != nil {
		return counts, fmt.Errorf("count catches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, COUNT(*) FROM catches
		WHERE revoked_at IS NULL GROUP BY severity`)
	if err != nil {
		return counts, fmt.Errorf("count catches by severity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return counts, fmt.Errorf("scan severity count: %w", err)
		}
		counts.BySeverity[models.Severity(sev)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatch(row rowScanner) (*models.Catch, error) {
	c := &models.Catch{}
	var category, severity, trigger string
	var createdAt, revokedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Repo, &c.PRNumber, &c.PRTitle, &c.PRURL, &c.PRState, &c.Title,
		&c.CommentBody, &c.CommentURL, &c.ReplyBody, &category, &severity, &c.Reasoning,
		&c.Score, &trigger, &createdAt, &c.EvaluatedAt, &revokedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Category = models.Category(category)
	c.Severity = models.Severity(severity)
	c.Trigger = models.TriggerType(trigger)
	if createdAt.Valid {
		c.CreatedAt = createdAt.Time
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		c.RevokedAt = &t
	}
	return c, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
