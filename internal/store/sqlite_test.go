package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchlight/catchlight/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catchlight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testCatch(prURL string) *models.Catch {
	return &models.Catch{
		Repo:        "acme/widgets",
		PRNumber:    42,
		PRTitle:     "refactor widget pipeline",
		PRURL:       prURL,
		PRState:     "open",
		CommentBody: "Null check missing on line 10",
		CommentURL:  prURL + "#discussion_r1",
		ReplyBody:   "good catch, fixed",
		Category:    models.CategoryLogic,
		Severity:    models.SeverityHigh,
		Reasoning:   "verified nil deref on empty input",
		Score:       4,
		Trigger:     models.TriggerNewPR,
		CreatedAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		EvaluatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSaveAndGetCatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCatch("https://github.com/acme/widgets/pull/42")
	require.NoError(t, s.SaveCatch(ctx, c))
	assert.NotEmpty(t, c.ID, "id assigned on save")

	got, err := s.GetCatchByPRURL(ctx, c.PRURL)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, models.CategoryLogic, got.Category)
	assert.Equal(t, models.SeverityHigh, got.Severity)
	assert.Equal(t, models.TriggerNewPR, got.Trigger)
	assert.Equal(t, 4, got.Score)
	assert.True(t, got.EvaluatedAt.Equal(c.EvaluatedAt))
	assert.Nil(t, got.RevokedAt)
}

func TestSaveCatchReplacesByPRURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prURL := "https://github.com/acme/widgets/pull/42"

	first := testCatch(prURL)
	require.NoError(t, s.SaveCatch(ctx, first))

	second := testCatch(prURL)
	second.Severity = models.SeverityCritical
	second.EvaluatedAt = first.EvaluatedAt.Add(time.Hour)
	require.NoError(t, s.SaveCatch(ctx, second))

	all, err := s.ListCatches(ctx, CatchFilter{IncludeRevoked: true})
	require.NoError(t, err)
	require.Len(t, all, 1, "one verdict per pull request URL")
	assert.Equal(t, models.SeverityCritical, all[0].Severity)
	assert.Equal(t, second.ID, all[0].ID)
}

func TestListCatchesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	open := testCatch("https://github.com/acme/widgets/pull/42")
	require.NoError(t, s.SaveCatch(ctx, open))

	closed := testCatch("https://github.com/acme/widgets/pull/43")
	closed.PRState = "closed"
	closed.Severity = models.SeverityLow
	require.NoError(t, s.SaveCatch(ctx, closed))

	other := testCatch("https://github.com/acme/gadgets/pull/7")
	other.Repo = "acme/gadgets"
	require.NoError(t, s.SaveCatch(ctx, other))

	all, err := s.ListCatches(ctx, CatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	openOnly, err := s.ListCatches(ctx, CatchFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, openOnly, 2)

	byRepo, err := s.ListCatches(ctx, CatchFilter{Repo: "acme/gadgets"})
	require.NoError(t, err)
	require.Len(t, byRepo, 1)
	assert.Equal(t, "acme/gadgets", byRepo[0].Repo)

	bySev, err := s.ListCatches(ctx, CatchFilter{Severity: models.SeverityLow})
	require.NoError(t, err)
	assert.Len(t, bySev, 1)
}

func TestRevokeCatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCatch("https://github.com/acme/widgets/pull/42")
	require.NoError(t, s.SaveCatch(ctx, c))
	require.NoError(t, s.RevokeCatch(ctx, c.ID))

	live, err := s.ListCatches(ctx, CatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, live, "revoked verdicts leave the published set")

	all, err := s.ListCatches(ctx, CatchFilter{IncludeRevoked: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].RevokedAt, "row retained for audit")

	assert.Error(t, s.RevokeCatch(ctx, c.ID), "double revoke")
	assert.Error(t, s.RevokeCatch(ctx, "missing"))
}

func TestUpdateCatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := testCatch("https://github.com/acme/widgets/pull/42")
	require.NoError(t, s.SaveCatch(ctx, c))

	c.PRState = "merged"
	c.Title = "Missing nil guard before widget render"
	require.NoError(t, s.UpdateCatch(ctx, c))

	got, err := s.GetCatchByPRURL(ctx, c.PRURL)
	require.NoError(t, err)
	assert.Equal(t, "merged", got.PRState)
	assert.Equal(t, "Missing nil guard before widget render", got.Title)

	missing := testCatch("https://github.com/acme/widgets/pull/99")
	missing.ID = "nonexistent"
	assert.Error(t, s.UpdateCatch(ctx, missing))
}

func TestCatchCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	open := testCatch("https://github.com/acme/widgets/pull/42")
	require.NoError(t, s.SaveCatch(ctx, open))

	closed := testCatch("https://github.com/acme/widgets/pull/43")
	closed.PRState = "closed"
	closed.Severity = models.SeverityMedium
	require.NoError(t, s.SaveCatch(ctx, closed))

	revoked := testCatch("https://github.com/acme/widgets/pull/44")
	require.NoError(t, s.SaveCatch(ctx, revoked))
	require.NoError(t, s.RevokeCatch(ctx, revoked.ID))

	counts, err := s.CatchCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 1, counts.Revoked)
	assert.Equal(t, 1, counts.Open)
	assert.Equal(t, 1, counts.BySeverity[models.SeverityHigh])
	assert.Equal(t, 1, counts.BySeverity[models.SeverityMedium])
}
