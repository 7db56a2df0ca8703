package store

import (
	"context"

	"github.com/catchlight/catchlight/internal/models"
)

// CatchFilter narrows ListCatches results.
type CatchFilter struct {
	Repo           string
	Severity       models.Severity
	Category       models.Category
	IncludeRevoked bool
	OpenOnly       bool
}

// Counts summarizes the durable catch record.
type Counts struct {
	Total      int
	Revoked    int
	Open       int
	BySeverity map[models.Severity]int
}

// Store defines the persistence interface for catch verdicts.
type Store interface {
	// SaveCatch publishes a verdict, replacing any prior verdict for the
	// same pull-request URL.
	SaveCatch(ctx context.Context, c *models.Catch) error
	GetCatchByPRURL(ctx context.Context, prURL string) (*models.Catch, error)
	ListCatches(ctx context.Context, filter CatchFilter) ([]*models.Catch, error)
	UpdateCatch(ctx context.Context, c *models.Catch) error
	// RevokeCatch marks a verdict withdrawn; the row stays for audit.
	RevokeCatch(ctx context.Context, id string) error
	CatchCounts(ctx context.Context) (Counts, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
