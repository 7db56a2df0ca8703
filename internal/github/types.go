package github

import "time"

// User is the minimal actor subset used across responses.
type User struct {
	Login string `json:"login"`
}

// PullRequest is the subset of the pulls API response the harvester needs.
type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `json:"user"`
	Head      struct {
		SHA string `json:"sha"`
	} `json:"head"`
	Merged bool `json:"merged"`
}

// ReviewComment is an inline comment on a pull-request diff.
type ReviewComment struct {
	ID           int64     `json:"id"`
	Body         string    `json:"body"`
	HTMLURL      string    `json:"html_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Path         string    `json:"path"`
	Line         int       `json:"line"`
	OriginalLine int       `json:"original_line"`
	DiffHunk     string    `json:"diff_hunk"`
	InReplyToID  int64     `json:"in_reply_to_id"`
	User         User      `json:"user"`
}

// IssueComment is a general comment on a pull request.
type IssueComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	User      User      `json:"user"`
}

// Review is a review submission; only submissions with a body matter here.
type Review struct {
	ID          int64     `json:"id"`
	Body        string    `json:"body"`
	HTMLURL     string    `json:"html_url"`
	SubmittedAt time.Time `json:"submitted_at"`
	User        User      `json:"user"`
}

// PullRequestFile is one changed file with its patch.
type PullRequestFile struct {
	Filename string `json:"filename"`
	Patch    string `json:"patch"`
}
