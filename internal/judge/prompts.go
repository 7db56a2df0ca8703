package judge

import (
	"fmt"
	"strings"

	"github.com/catchlight/catchlight/internal/models"
)

const batchPromptHeader = `You are evaluating ALL comments from an AI code reviewer on a single PR. Your job is to find the SINGLE BEST catch worth showcasing.

STRICT SEVERITY CRITERIA:
- critical: Security vulnerability (auth bypass, injection, data exposure) OR guaranteed data loss/corruption in production
- high: Bug that WILL cause incorrect behavior affecting users in normal usage (not edge cases)
- medium: Bug in edge cases or error paths that could cause issues under specific conditions
- low: Minor issues, unlikely edge cases, or "nice to fix" items

EVALUATION RULES:
1. DE-DUPLICATE: Multiple comments about the same underlying issue = pick the best-written one
2. VERIFY: Check that the reviewer's analysis is actually correct against the code
3. PRIORITIZE: Developer-confirmed catches ("good catch", "fixed") are more valuable
4. BE STRICT: Only return a catch if it's truly impressive and showcase-worthy
5. ONE WINNER: Return only the single best catch, or none if nothing qualifies

REJECT (when in doubt, reject):
- Style/formatting/naming suggestions
- Generic advice ("add error handling", "consider validation")
- Documentation/comment suggestions
- Refactoring that doesn't fix a real bug
- Theoretical concerns without concrete evidence
- Config/build/CI/test file issues
- Obvious issues any developer would catch
- FALSE POSITIVES where the reviewer misunderstood the code`

const batchPromptFooter = `Analyze all comments. Find duplicates. Pick the SINGLE BEST catch (if any qualifies).

Respond with JSON only:
{
  "has_great_catch": true/false,
  "selected_comment_index": <0-based index of best comment, or null if none>,
  "bug_category": "security|logic|runtime|performance|concurrency|data_integrity|type_error|resource_leak|null",
  "severity": "critical|high|medium|low|null",
  "reasoning": "2-3 sentences: why this is the best catch and what makes it showcase-worthy (or why none qualify)",
  "duplicates_found": ["brief description of any duplicate/similar issues that were consolidated"]
}`

func buildBatchPrompt(pr models.PullRequest, comments []models.BotComment) string {
	var sb strings.Builder
	sb.WriteString(batchPromptHeader)
	sb.WriteString("\n\n---\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n", pr.Repo)
	fmt.Fprintf(&sb, "PR Title: %s\n", pr.Title)
	fmt.Fprintf(&sb, "PR URL: %s\n\n", pr.URL)
	sb.WriteString("COMMENTS TO EVALUATE:\n")

	parts := make([]string, len(comments))
	for i, c := range comments {
		parts[i] = formatCommentForBatch(c, i)
	}
	sb.WriteString(strings.Join(parts, "\n\n---\n\n"))

	sb.WriteString("\n\n---\n\n")
	sb.WriteString(batchPromptFooter)
	return sb.String()
}

func formatCommentForBatch(c models.BotComment, index int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Comment %d]\n", index)
	fmt.Fprintf(&sb, "File: %s\n", orNA(c.FilePath))
	fmt.Fprintf(&sb, "Line: %s\n", orNAInt(c.LineNumber))

	if c.FilePatch != "" {
		fmt.Fprintf(&sb, "Diff:\n```diff\n%s\n```\n", truncate(c.FilePatch, 2000))
	} else if c.DiffHunk != "" {
		fmt.Fprintf(&sb, "Diff:\n```\n%s\n```\n", truncate(c.DiffHunk, 1000))
	}

	fmt.Fprintf(&sb, "Reviewer's comment:\n```\n%s\n```", c.Body)

	if c.ReplyBody != "" {
		fmt.Fprintf(&sb, "\nDeveloper reply:\n```\n%s\n```", c.ReplyBody)
	}
	return sb.String()
}

const commentPromptHeader = `Evaluate if this AI code review comment is a GREAT CATCH worth showcasing.

YOUR TASK:
1. Read the code diff carefully
2. Read the reviewer's comment
3. Verify if the reviewer's claim is actually correct by examining the code
4. If a developer replied, treat their feedback as ground truth

GREAT CATCH criteria (must meet ALL):
- Real bug that causes incorrect behavior, crashes, security issues, or data loss
- Non-obvious: a typical reviewer would likely miss it
- The analysis is CORRECT (you must verify against the code)
- Specific and actionable

REJECT these (when in doubt, reject):
- Style/formatting/naming suggestions
- Vague advice ("consider adding error handling")
- Documentation suggestions
- Refactoring that doesn't fix a bug
- Theoretical concerns without concrete evidence
- Config/build/CI file issues
- Test file feedback
- Obvious issues anyone would catch
- FALSE POSITIVES where the reviewer misread the code

DEVELOPER REPLIES:
- If developer says the reviewer is WRONG → reject (false positive)
- If developer says "good catch", "fixed", "thanks" → validates the catch
- If NO reply → evaluate based on code analysis alone`

const commentPromptFooter = `Examine the code. Is the reviewer's claim correct? Is this a great catch?

Respond with JSON only:
{
  "is_great_catch": true/false,
  "bug_category": "security|logic|runtime|performance|concurrency|data_integrity|type_error|resource_leak|null",
  "severity": "critical|high|medium|low|null",
  "reasoning": "1-2 sentences: what you verified in the code and why this is/isn't a great catch"
}`

func buildCommentPrompt(c models.BotComment, pc CommentContext) string {
	var sb strings.Builder
	sb.WriteString(commentPromptHeader)
	sb.WriteString("\n\n---\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n", pc.Repo)
	fmt.Fprintf(&sb, "PR Title: %s\n", pc.PRTitle)
	fmt.Fprintf(&sb, "File: %s\n", orNA(c.FilePath))
	fmt.Fprintf(&sb, "Line: %s\n\n", orNAInt(c.LineNumber))

	// Prefer the full file diff over the narrower hunk.
	if c.FilePatch != "" {
		fmt.Fprintf(&sb, "Full file diff:\n```diff\n%s\n```\n\n", c.FilePatch)
	} else if c.DiffHunk != "" {
		fmt.Fprintf(&sb, "Code context (diff hunk):\n```\n%s\n```\n\n", c.DiffHunk)
	}

	fmt.Fprintf(&sb, "Reviewer's comment:\n```\n%s\n```\n\n", c.Body)
	if c.Score != 0 {
		fmt.Fprintf(&sb, "Reviewer's confidence score: %d/5\n", c.Score)
	} else {
		sb.WriteString("Reviewer's confidence score: N/A\n")
	}

	if c.ReplyBody != "" {
		fmt.Fprintf(&sb, "\nDeveloper's reply:\n```\n%s\n```\n", c.ReplyBody)
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(commentPromptFooter)
	return sb.String()
}

const reevalPromptHeader = `You are evaluating whether an AI code reviewer made any GREAT CATCHES in this PR review.

BE SKEPTICAL. Most comments are NOT great catches. The bar should be HIGH.

A GREAT CATCH must meet ALL of these criteria:
1. Is a REAL BUG in application/library code that would cause incorrect behavior, crashes, security issues, or data loss
2. Is non-obvious - a human reviewer would likely miss it without careful analysis
3. The analysis is CORRECT - verify the logic, don't just trust the reviewer's claims
4. Is specific and actionable with a clear fix

NOT great catches (REJECT these - when in doubt, reject):
- Style, formatting, or naming suggestions
- Generic best practice reminders ("consider adding error handling")
- Documentation or comment suggestions
- Refactoring ideas that don't fix actual bugs
- Theoretical concerns that are unlikely in practice
- Issues already handled elsewhere in the code
- False positives where the reviewer misunderstood the code
- Build/CI/config file issues (meta.yaml, Dockerfile, package.json, etc.)
- Environment variable or shell script suggestions
- Test file issues (unless it's hiding a real bug in production code)
- Dependency version suggestions
- "Could cause issues" or "may fail" without concrete evidence
- Obvious issues any developer would catch immediately`

const reevalPromptFooter = `Evaluate: Are there any GREAT CATCHES worth showcasing? Be strict - only truly impressive bug catches should qualify.

Respond with JSON only:
{
  "is_great_catch": true/false,
  "great_catches": [
    {
      "bug_category": "security|logic|runtime|performance|concurrency|data_integrity",
      "severity": "critical|high|medium|low",
      "reasoning": "1-2 sentence explanation"
    }
  ],
  "summary": "1-2 sentence summary of what the reviewer caught (empty if no great catches)"
}`

func buildReevalPrompt(repo, prTitle, commentText string) string {
	var sb strings.Builder
	sb.WriteString(reevalPromptHeader)
	sb.WriteString("\n\n---\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n", repo)
	fmt.Fprintf(&sb, "PR Title: %s\n\n", prTitle)
	fmt.Fprintf(&sb, "Reviewer's comments:\n%s\n", commentText)
	sb.WriteString("\n---\n\n")
	sb.WriteString(reevalPromptFooter)
	return sb.String()
}

func buildSummaryPrompt(evals []Evaluation, repo string, prNumber int, prTitle string) string {
	var sb strings.Builder
	sb.WriteString("Summarize what the AI reviewer caught in this PR review. Be concise (1-2 sentences).\n\n")
	fmt.Fprintf(&sb, "PR: %s #%d - %s\n\n", repo, prNumber, prTitle)
	sb.WriteString("Catches:\n")
	for _, ev := range evals {
		fmt.Fprintf(&sb, "- [%s] (%s): %s\n", orUnknown(string(ev.Category)), orUnknown(string(ev.Severity)), ev.Reasoning)
	}
	sb.WriteString("\nWrite a brief summary of the bug(s) identified. Focus on the actual issue and its impact.")
	return sb.String()
}

func buildTitlePrompt(commentBody string, category models.Category) string {
	var sb strings.Builder
	sb.WriteString("Given this code review comment that caught a bug, generate a short title (5-10 words) that describes the bug caught. The title should be specific and technical, not generic.\n\n")
	fmt.Fprintf(&sb, "Bug category: %s\n\n", category)
	fmt.Fprintf(&sb, "Comment:\n%s\n\n", truncate(commentBody, 1500))
	sb.WriteString("Respond with ONLY the title text, nothing else. No quotes, no prefix.")
	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orNAInt(n int) string {
	if n == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", n)
}

func orUnknown(s string) string {
	if s == "" || s == "null" {
		return "unknown"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
