// Package judge decides which bot review comments are showcase-worthy
// catches, using the Anthropic API as the judging oracle.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/catchlight/catchlight/internal/models"
)

// statusMarker tags machine-generated placeholder comments the reviewer
// posts when it skips analysis.
const statusMarker = "<!-- greptile-status -->"

// Engine wraps the Anthropic API for catch evaluation.
type Engine struct {
	api          *anthropic.Client
	model        anthropic.Model
	summaryModel anthropic.Model
}

// NewEngine creates a judgment engine. The main model renders verdicts;
// the summary model handles title generation and multi-catch summaries.
func NewEngine(apiKey, model, summaryModel string) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Engine{
		api:          &client,
		model:        anthropic.Model(model),
		summaryModel: anthropic.Model(summaryModel),
	}, nil
}

// Evaluation is the verdict fragment for one comment.
type Evaluation struct {
	IsGreatCatch bool            `json:"is_great_catch"`
	Category     models.Category `json:"bug_category"`
	Severity     models.Severity `json:"severity"`
	Reasoning    string          `json:"reasoning"`
}

type batchEvaluation struct {
	HasGreatCatch        bool            `json:"has_great_catch"`
	SelectedCommentIndex *int            `json:"selected_comment_index"`
	Category             models.Category `json:"bug_category"`
	Severity             models.Severity `json:"severity"`
	Reasoning            string          `json:"reasoning"`
	DuplicatesFound      []string        `json:"duplicates_found"`
}

// Reevaluation is a fresh whole-PR verdict rendered from flattened
// comment text, used when revalidating published catches.
type Reevaluation struct {
	IsGreatCatch bool          `json:"is_great_catch"`
	Catches      []ReevalCatch `json:"great_catches"`
	Summary      string        `json:"summary"`
}

// ReevalCatch is one finding inside a re-evaluation verdict.
type ReevalCatch struct {
	Category  models.Category `json:"bug_category"`
	Severity  models.Severity `json:"severity"`
	Reasoning string          `json:"reasoning"`
}

// EvaluatePR judges all of one pull request's bot comments in a single
// oracle call, asking it to de-duplicate overlapping findings and pick at
// most one winner. Returns (nil, nil) when nothing qualifies.
func (e *Engine) EvaluatePR(ctx context.Context, pr models.PullRequest) (*models.Catch, error) {
	valid := filterNoise(pr.Comments)
	if len(valid) == 0 {
		return nil, nil
	}

	prompt := buildBatchPrompt(pr, valid)

	text, err := e.complete(ctx, e.model, 512, prompt)
	if err != nil {
		return nil, fmt.Errorf("batch evaluation: %w", err)
	}

	var eval batchEvaluation
	if err := json.Unmarshal([]byte(stripFence(text)), &eval); err != nil {
		return nil, fmt.Errorf("parse batch verdict: %w", err)
	}

	eval.Category = normCategory(eval.Category)
	eval.Severity = normSeverity(eval.Severity)

	if !eval.HasGreatCatch {
		return nil, nil
	}
	idx := eval.SelectedCommentIndex
	if idx == nil || *idx < 0 || *idx >= len(valid) {
		return nil, fmt.Errorf("verdict selected out-of-range comment index")
	}
	selected := valid[*idx]

	return &models.Catch{
		Repo:        pr.Repo,
		PRNumber:    pr.Number,
		PRTitle:     pr.Title,
		PRURL:       pr.URL,
		PRState:     pr.State,
		CommentBody: selected.Body,
		CommentURL:  selected.URL,
		ReplyBody:   selected.ReplyBody,
		Category:    eval.Category,
		Severity:    eval.Severity,
		Reasoning:   eval.Reasoning,
		Score:       PRScore(pr.Comments),
		Trigger:     pr.Trigger,
		CreatedAt:   selected.CreatedAt,
		EvaluatedAt: time.Now().UTC(),
	}, nil
}

// EvaluateAll runs batch evaluation over a set of pull requests, applying
// the severity gate: low and medium verdicts need a positive developer
// reply, critical and high stand on their own. Oracle failures skip that
// pull request rather than aborting the sweep.
func (e *Engine) EvaluateAll(ctx context.Context, prs []models.PullRequest, warnf func(format string, args ...any)) []models.Catch {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}

	var catches []models.Catch
	for _, pr := range prs {
		catch, err := e.EvaluatePR(ctx, pr)
		if err != nil {
			warnf("evaluating %s #%d: %v", pr.Repo, pr.Number, err)
			continue
		}
		if catch == nil {
			continue
		}
		if catch.Severity.NeedsConfirmation() && !HasPositiveReply(catch.ReplyBody) {
			continue
		}
		catches = append(catches, *catch)
	}
	return catches
}

// CommentContext carries the pull-request fields single-comment
// evaluation interpolates into its prompt.
type CommentContext struct {
	Repo    string
	PRTitle string
}

// EvaluateComment judges one comment in isolation. It never fails past
// this boundary: malformed oracle output or an API error becomes a
// negative verdict carrying the error text as its reasoning.
func (e *Engine) EvaluateComment(ctx context.Context, c models.BotComment, pc CommentContext) Evaluation {
	prompt := buildCommentPrompt(c, pc)

	text, err := e.complete(ctx, e.model, 256, prompt)
	if err != nil {
		return Evaluation{Reasoning: fmt.Sprintf("API error: %v", err)}
	}

	var eval Evaluation
	if err := json.Unmarshal([]byte(stripFence(text)), &eval); err != nil {
		return Evaluation{Reasoning: fmt.Sprintf("Parse error: %v", err)}
	}
	eval.Category = normCategory(eval.Category)
	eval.Severity = normSeverity(eval.Severity)
	return eval
}

// The oracle sometimes returns the literal string "null" instead of a
// JSON null for the taxonomy fields.
func normCategory(c models.Category) models.Category {
	if c == "null" {
		return models.CategoryNone
	}
	return c
}

func normSeverity(s models.Severity) models.Severity {
	if s == "null" {
		return models.SeverityNone
	}
	return s
}

// Reevaluate renders a fresh verdict for a pull request from the flattened
// text of all its bot comments.
func (e *Engine) Reevaluate(ctx context.Context, repo, prTitle, commentText string) (*Reevaluation, error) {
	prompt := buildReevalPrompt(repo, prTitle, commentText)

	text, err := e.complete(ctx, e.model, 512, prompt)
	if err != nil {
		return nil, fmt.Errorf("re-evaluation: %w", err)
	}

	var result Reevaluation
	if err := json.Unmarshal([]byte(stripFence(text)), &result); err != nil {
		return nil, fmt.Errorf("parse re-evaluation verdict: %w", err)
	}
	return &result, nil
}

// SummarizeCatches condenses multiple verdict justifications for one pull
// request into one or two sentences. On oracle failure it degrades to a
// plain concatenation so no content is dropped.
func (e *Engine) SummarizeCatches(ctx context.Context, evals []Evaluation, repo string, prNumber int, prTitle string) string {
	if len(evals) == 0 {
		return ""
	}
	if len(evals) == 1 {
		return evals[0].Reasoning
	}

	prompt := buildSummaryPrompt(evals, repo, prNumber, prTitle)
	text, err := e.complete(ctx, e.summaryModel, 150, prompt)
	if err != nil {
		parts := make([]string, len(evals))
		for i, ev := range evals {
			parts[i] = ev.Reasoning
		}
		return strings.Join(parts, " | ")
	}
	return strings.TrimSpace(text)
}

// GenerateTitle produces a short technical title for a catch.
func (e *Engine) GenerateTitle(ctx context.Context, commentBody string, category models.Category) (string, error) {
	prompt := buildTitlePrompt(commentBody, category)

	text, err := e.complete(ctx, e.summaryModel, 60, prompt)
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}

func (e *Engine) complete(ctx context.Context, model anthropic.Model, maxTokens int64, prompt string) (string, error) {
	msg, err := e.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}

// stripFence removes a markdown code fence wrapping an oracle response.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	} else {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// PRScore returns the confidence score from a pull request's overview
// comment, or 0 when none of its comments carry one.
func PRScore(comments []models.BotComment) int {
	for _, c := range comments {
		if c.Score != 0 {
			return c.Score
		}
	}
	return 0
}

func filterNoise(comments []models.BotComment) []models.BotComment {
	valid := make([]models.BotComment, 0, len(comments))
	for _, c := range comments {
		if isSkippedComment(c.Body) || isReviewSummary(c.Body) {
			continue
		}
		valid = append(valid, c)
	}
	return valid
}

// isSkippedComment detects the reviewer's "analysis skipped" placeholder.
func isSkippedComment(body string) bool {
	return strings.Contains(body, statusMarker) && strings.Contains(body, "Skipped:")
}

// isReviewSummary detects bare review-summary stubs like
// "<sub>1 file reviewed, 2 comments</sub>".
func isReviewSummary(body string) bool {
	body = strings.TrimSpace(body)
	return strings.HasPrefix(body, "<sub>") &&
		strings.Contains(body, "file reviewed") &&
		len(body) < 300
}

var positiveIndicators = []string{
	"good catch",
	"great catch",
	"nice catch",
	"thanks",
	"thank you",
	"fixed",
	"will fix",
	"you're right",
	"you are right",
	"correct",
	"agreed",
	"makes sense",
	"good point",
	"valid point",
	"addressed",
	"done",
	"updated",
	"resolved",
	"👍",
	"legit",
}

// HasPositiveReply reports whether a developer reply contains a positive
// acknowledgment phrase. Bare approvals like "lgtm" do not count; they
// approve the pull request, not the reviewer's finding.
func HasPositiveReply(replyBody string) bool {
	if replyBody == "" {
		return false
	}
	lower := strings.ToLower(replyBody)
	for _, indicator := range positiveIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
