package models

import "time"

// CommentType distinguishes where on a pull request a bot comment appeared.
type CommentType string

const (
	CommentTypeReview     CommentType = "review_comment" // inline comment on the diff
	CommentTypeIssue      CommentType = "issue_comment"  // general comment on the PR
	CommentTypeReviewBody CommentType = "review_body"    // body of a review submission
)

// BotComment is a single bot-authored comment with its code context.
// ID is the source-specific identifier and is not stable across sources;
// Body is the only reliable cross-source join key.
type BotComment struct {
	ID         int64
	Body       string
	URL        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FilePath   string
	LineNumber int
	DiffHunk   string
	FilePatch  string // full post-change file diff, when available
	ReplyBody  string // developer replies joined with "\n---\n"
	Type       CommentType
	Score      int // confidence score extracted from the body, 0 = none
}

// TriggerType records why a pull request was (re-)examined.
type TriggerType string

const (
	TriggerNewPR      TriggerType = "new_pr"
	TriggerNewCommits TriggerType = "new_commits"
)

// PullRequest is a pull request together with the bot comments found on it.
type PullRequest struct {
	Repo      string // owner/name
	Org       string
	Number    int
	Title     string
	Author    string
	URL       string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
	HeadSHA   string
	Trigger   TriggerType
	FetchedAt time.Time
	Comments  []BotComment
}
