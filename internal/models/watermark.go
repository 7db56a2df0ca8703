package models

import "time"

// Watermark is the durable per-repository progress marker for incremental
// harvesting. LastChecked is the zero time when a repository has never been
// successfully harvested.
type Watermark struct {
	Repo         string
	LastChecked  time.Time
	LastPRNumber int
	ErrorCount   int
	// HeadSHAs maps pull-request number to the last-observed head commit,
	// used to detect new commits on already-seen pull requests.
	HeadSHAs map[int]string
}

// Clone returns a deep copy so a failed harvest can preserve the previous
// watermark untouched.
func (w *Watermark) Clone() *Watermark {
	c := *w
	if w.HeadSHAs != nil {
		c.HeadSHAs = make(map[int]string, len(w.HeadSHAs))
		for k, v := range w.HeadSHAs {
			c.HeadSHAs[k] = v
		}
	}
	return &c
}
