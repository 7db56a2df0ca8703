// Package correlate matches comment records across data sources.
//
// A comment's identifier differs between the relational store and the live
// API, so body text is the only usable join key. Matching runs a fixed
// ladder of heuristics, strictest first, and stops on the first hit.
package correlate

import (
	"strings"

	"github.com/catchlight/catchlight/internal/github"
	"github.com/catchlight/catchlight/internal/models"
)

const prefixLen = 100

// replySeparator joins multiple developer replies to one bot comment.
const replySeparator = "\n---\n"

// BestMatch finds the live comment whose body best matches target.
// Tiers, first hit wins:
//
//  1. exact equality
//  2. containment (either direction, handles stored-side truncation)
//  3. the first 100 characters of either body appearing anywhere in the other
//
// An empty target never matches; it would trivially pass tier 2 against
// every candidate.
func BestMatch(target string, live []models.BotComment) *models.BotComment {
	if target == "" {
		return nil
	}

	for i := range live {
		if live[i].Body == target {
			return &live[i]
		}
	}

	for i := range live {
		body := live[i].Body
		if body == "" {
			continue
		}
		if strings.Contains(body, target) || strings.Contains(target, body) {
			return &live[i]
		}
	}

	targetPrefix := prefix(target)
	for i := range live {
		body := live[i].Body
		if body == "" {
			continue
		}
		if strings.Contains(body, targetPrefix) || strings.Contains(target, prefix(body)) {
			return &live[i]
		}
	}

	return nil
}

func prefix(s string) string {
	if len(s) > prefixLen {
		return s[:prefixLen]
	}
	return s
}

// IsBot reports whether a comment author's login matches one of the bot
// account variants.
type IsBot func(login string) bool

// ExtractReplies maps each bot review-comment id to the joined text of the
// developer replies threaded under it.
//
// Two passes: first collect every bot comment id, then gather non-bot
// comments whose in-reply-to reference points at one. A single pass would
// miss replies the API returns before their parent.
func ExtractReplies(comments []github.ReviewComment, isBot IsBot) map[int64]string {
	botIDs := make(map[int64]struct{})
	for _, c := range comments {
		if isBot(c.User.Login) {
			botIDs[c.ID] = struct{}{}
		}
	}

	grouped := make(map[int64][]string)
	for _, c := range comments {
		if c.InReplyToID == 0 || isBot(c.User.Login) {
			continue
		}
		if _, ok := botIDs[c.InReplyToID]; !ok {
			continue
		}
		if strings.TrimSpace(c.Body) == "" {
			continue
		}
		grouped[c.InReplyToID] = append(grouped[c.InReplyToID], c.Body)
	}

	replies := make(map[int64]string, len(grouped))
	for id, bodies := range grouped {
		replies[id] = strings.Join(bodies, replySeparator)
	}
	return replies
}
