// Package repolist reads the monitored-repository roster.
//
// The roster is a CSV with a header row and columns
// repo,link,org,total_reviews,reviews_30d. Rows are parsed leniently:
// short rows and unparseable counts produce a repo with zero counts
// rather than an error, so one bad line never sinks a run.
package repolist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Repo is one roster entry.
type Repo struct {
	Name         string
	Link         string
	Org          string
	TotalReviews int
	Reviews30d   int
}

// Load parses the roster file.
func Load(path string) ([]Repo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses roster CSV from a reader.
func Parse(r io.Reader) ([]Repo, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header := true
	var repos []Repo
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row: %w", err)
		}
		if header {
			header = false
			continue
		}
		if len(row) < 2 {
			continue
		}

		name := strings.TrimSpace(row[0])
		link := strings.TrimSpace(row[1])
		if name == "" || link == "" {
			continue
		}

		repo := Repo{Name: name, Link: link}
		if len(row) > 2 {
			repo.Org = strings.TrimSpace(row[2])
		}
		if len(row) > 3 {
			repo.TotalReviews = parseCount(row[3])
		}
		if len(row) > 4 {
			repo.Reviews30d = parseCount(row[4])
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// FilterActive keeps repos with at least minReviews30d recent reviews.
func FilterActive(repos []Repo, minReviews30d int) []Repo {
	if minReviews30d <= 0 {
		return repos
	}
	active := make([]Repo, 0, len(repos))
	for _, r := range repos {
		if r.Reviews30d >= minReviews30d {
			active = append(active, r)
		}
	}
	return active
}

// Names returns the repo names in roster order.
func Names(repos []Repo) []string {
	names := make([]string, len(repos))
	for i, r := range repos {
		names[i] = r.Name
	}
	return names
}
