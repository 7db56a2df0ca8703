// Package state persists the pipeline's incremental-progress records:
// per-repository harvest watermarks and the set of already-judged comment
// identifiers. Both live as JSON documents so a run can resume from its
// last checkpoint.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/catchlight/catchlight/internal/models"
)

// DefaultMaxErrors is the consecutive-failure ceiling after which a
// repository is skipped on subsequent runs.
const DefaultMaxErrors = 5

// Tracker owns the per-repository watermark map. It is loaded once at
// startup, mutated one repository at a time, and saved at checkpoints.
type Tracker struct {
	path      string
	marks     map[string]*models.Watermark
	MaxErrors int
}

// NewTracker creates a tracker backed by the given JSON file.
func NewTracker(path string) *Tracker {
	return &Tracker{
		path:      path,
		marks:     make(map[string]*models.Watermark),
		MaxErrors: DefaultMaxErrors,
	}
}

// watermarkJSON is the wire form; head-commit map keys are strings because
// JSON object keys are string-only.
type watermarkJSON struct {
	LastChecked  time.Time         `json:"last_checked"`
	LastPRNumber int               `json:"last_pr_number,omitempty"`
	ErrorCount   int               `json:"error_count"`
	PRShas       map[string]string `json:"pr_shas,omitempty"`
}

// Load restores watermarks from disk. A missing file is a fresh start,
// not an error.
func (t *Tracker) Load() error {
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var raw map[string]watermarkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}

	for repo, wj := range raw {
		w := &models.Watermark{
			Repo:         repo,
			LastChecked:  wj.LastChecked,
			LastPRNumber: wj.LastPRNumber,
			ErrorCount:   wj.ErrorCount,
		}
		if len(wj.PRShas) > 0 {
			w.HeadSHAs = make(map[int]string, len(wj.PRShas))
			for k, sha := range wj.PRShas {
				n, err := strconv.Atoi(k)
				if err != nil {
					continue
				}
				w.HeadSHAs[n] = sha
			}
		}
		t.marks[repo] = w
	}
	return nil
}

// Save writes all watermarks atomically (temp file + rename).
func (t *Tracker) Save() error {
	raw := make(map[string]watermarkJSON, len(t.marks))
	for repo, w := range t.marks {
		wj := watermarkJSON{
			LastChecked:  w.LastChecked,
			LastPRNumber: w.LastPRNumber,
			ErrorCount:   w.ErrorCount,
		}
		if len(w.HeadSHAs) > 0 {
			wj.PRShas = make(map[string]string, len(w.HeadSHAs))
			for n, sha := range w.HeadSHAs {
				wj.PRShas[strconv.Itoa(n)] = sha
			}
		}
		raw[repo] = wj
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Get returns the watermark for a repository, or nil if never harvested.
func (t *Tracker) Get(repo string) *models.Watermark {
	return t.marks[repo]
}

// Update records the watermark for its repository.
func (t *Tracker) Update(w *models.Watermark) {
	t.marks[w.Repo] = w
}

// Len returns the number of tracked repositories.
func (t *Tracker) Len() int { return len(t.marks) }

// Repos returns the tracked repository names.
func (t *Tracker) Repos() []string {
	repos := make([]string, 0, len(t.marks))
	for repo := range t.marks {
		repos = append(repos, repo)
	}
	return repos
}

// ShouldSkip reports whether a repository has failed enough consecutive
// runs to stop spending API calls on it.
func (t *Tracker) ShouldSkip(repo string) bool {
	w := t.marks[repo]
	return w != nil && w.ErrorCount >= t.MaxErrors
}
