package models

import "time"

// Category classifies the kind of defect a catch describes.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryLogic         Category = "logic"
	CategoryRuntime       Category = "runtime"
	CategoryPerformance   Category = "performance"
	CategoryConcurrency   Category = "concurrency"
	CategoryDataIntegrity Category = "data_integrity"
	CategoryTypeError     Category = "type_error"
	CategoryResourceLeak  Category = "resource_leak"
	CategoryNone          Category = ""
)

// Severity grades how serious the caught defect is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = ""
)

// NeedsConfirmation reports whether a catch of this severity requires a
// positive developer reply before it may be published. Critical and high
// findings stand on their own.
func (s Severity) NeedsConfirmation() bool {
	return s == SeverityLow || s == SeverityMedium
}

// Catch is the published verdict for one pull request: the single winning
// bot comment plus the judgment rendered on it. At most one unrevoked Catch
// exists per pull-request URL.
type Catch struct {
	ID          string
	Repo        string
	PRNumber    int
	PRTitle     string
	PRURL       string
	PRState     string
	Title       string // short generated headline for the catch
	CommentBody string
	CommentURL  string
	ReplyBody   string
	Category    Category
	Severity    Severity
	Reasoning   string
	Score       int // confidence score from the bot's overview comment, 0 = none
	Trigger     TriggerType
	CreatedAt   time.Time
	EvaluatedAt time.Time
	RevokedAt   *time.Time
}
