package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catchlight/catchlight/internal/models"
)

func TestHasPositiveReply(t *testing.T) {
	t.Run("positive phrases", func(t *testing.T) {
		for _, reply := range []string{
			"good catch, fixed",
			"Great catch!",
			"you're right, will fix",
			"Thanks, addressed in a6f3",
			"👍",
			"this looks legit",
		} {
			assert.True(t, HasPositiveReply(reply), reply)
		}
	})

	t.Run("non-confirming replies", func(t *testing.T) {
		for _, reply := range []string{
			"",
			"lgtm",
			"this is a false positive",
			"not sure about this",
		} {
			assert.False(t, HasPositiveReply(reply), reply)
		}
	})
}

func TestNoiseFilters(t *testing.T) {
	skipped := "<!-- greptile-status -->\nSkipped: draft PR"
	summary := "<sub>1 file reviewed, 2 comments</sub>"
	longSummary := "<sub>1 file reviewed, " + strings.Repeat("x", 300) + "</sub>"
	real := "Null check missing on line 10"

	assert.True(t, isSkippedComment(skipped))
	assert.False(t, isSkippedComment(real))

	assert.True(t, isReviewSummary(summary))
	assert.False(t, isReviewSummary(longSummary), "long summaries carry content")
	assert.False(t, isReviewSummary(real))

	valid := filterNoise([]models.BotComment{
		{Body: skipped}, {Body: summary}, {Body: real},
	})
	require.Len(t, valid, 1)
	assert.Equal(t, real, valid[0].Body)
}

func TestPRScore(t *testing.T) {
	comments := []models.BotComment{
		{Body: "inline finding"},
		{Body: "Overview. Confidence: 3/5", Score: 3},
	}
	assert.Equal(t, 3, PRScore(comments))
	assert.Equal(t, 0, PRScore(nil))
}

func TestStripFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stripFence(tc.in), tc.in)
	}
}

func TestBuildBatchPrompt(t *testing.T) {
	pr := models.PullRequest{
		Repo:  "acme/widgets",
		Title: "refactor widget pipeline",
		URL:   "https://github.com/acme/widgets/pull/42",
	}
	comments := []models.BotComment{
		{Body: "Null check missing on line 10", FilePath: "pkg/widget.go",
			LineNumber: 10, DiffHunk: "@@ -8,3 +8,4 @@",
			ReplyBody: "good catch, fixed"},
		{Body: "Consider renaming this variable"},
	}

	prompt := buildBatchPrompt(pr, comments)

	assert.Contains(t, prompt, "SINGLE BEST catch")
	assert.Contains(t, prompt, `"selected_comment_index"`)
	assert.Contains(t, prompt, "Repository: acme/widgets")
	assert.Contains(t, prompt, "[Comment 0]")
	assert.Contains(t, prompt, "[Comment 1]")
	assert.Contains(t, prompt, "Null check missing on line 10")
	assert.Contains(t, prompt, "Developer reply:")
	assert.Contains(t, prompt, "good catch, fixed")
	assert.Contains(t, prompt, "File: pkg/widget.go")
}

func TestBuildCommentPrompt(t *testing.T) {
	t.Run("prefers file patch over hunk", func(t *testing.T) {
		c := models.BotComment{
			Body:      "Off-by-one in pagination loop",
			FilePatch: "full file diff here",
			DiffHunk:  "narrow hunk",
			Score:     4,
		}
		prompt := buildCommentPrompt(c, CommentContext{Repo: "acme/widgets", PRTitle: "fix paging"})

		assert.Contains(t, prompt, "Full file diff:")
		assert.Contains(t, prompt, "full file diff here")
		assert.NotContains(t, prompt, "narrow hunk")
		assert.Contains(t, prompt, "confidence score: 4/5")
		assert.Contains(t, prompt, `"is_great_catch"`)
	})

	t.Run("falls back to hunk then nothing", func(t *testing.T) {
		c := models.BotComment{Body: "finding", DiffHunk: "narrow hunk"}
		prompt := buildCommentPrompt(c, CommentContext{})
		assert.Contains(t, prompt, "narrow hunk")
		assert.Contains(t, prompt, "File: N/A")
		assert.Contains(t, prompt, "confidence score: N/A")

		bare := buildCommentPrompt(models.BotComment{Body: "finding"}, CommentContext{})
		assert.NotContains(t, bare, "Full file diff:")
		assert.NotContains(t, bare, "Code context (diff hunk):")
	})
}

func TestBuildReevalPrompt(t *testing.T) {
	prompt := buildReevalPrompt("acme/widgets", "fix paging", "Comment 1: ...\nComment 2: ...")

	assert.Contains(t, prompt, "BE SKEPTICAL")
	assert.Contains(t, prompt, "Repository: acme/widgets")
	assert.Contains(t, prompt, "Comment 2: ...")
	assert.Contains(t, prompt, `"great_catches"`)
	assert.Contains(t, prompt, `"summary"`)
}

func TestBuildSummaryPrompt(t *testing.T) {
	evals := []Evaluation{
		{Category: models.CategoryLogic, Severity: models.SeverityHigh, Reasoning: "off-by-one drops last page"},
		{Category: models.CategoryConcurrency, Severity: models.SeverityMedium, Reasoning: "map written without lock"},
	}
	prompt := buildSummaryPrompt(evals, "acme/widgets", 42, "fix paging")

	assert.Contains(t, prompt, "acme/widgets #42")
	assert.Contains(t, prompt, "[logic] (high): off-by-one drops last page")
	assert.Contains(t, prompt, "[concurrency] (medium): map written without lock")
}

func TestBuildTitlePrompt(t *testing.T) {
	long := strings.Repeat("y", 2000)
	prompt := buildTitlePrompt(long, models.CategoryRuntime)

	assert.Contains(t, prompt, "Bug category: runtime")
	assert.Contains(t, prompt, strings.Repeat("y", 1500))
	assert.NotContains(t, prompt, strings.Repeat("y", 1501), "comment body is capped")
	assert.Contains(t, prompt, "ONLY the title text")
}

func TestNormTaxonomy(t *testing.T) {
	assert.Equal(t, models.CategoryNone, normCategory("null"))
	assert.Equal(t, models.CategoryLogic, normCategory(models.CategoryLogic))
	assert.Equal(t, models.SeverityNone, normSeverity("null"))
	assert.Equal(t, models.SeverityLow, normSeverity(models.SeverityLow))
}
