// Package history provides file-level version history for ranking and
// context assembly. The Git provider shells out to the git CLI; Null serves
// workspaces without version control. Both degrade to empty results rather
// than failing, since history is an enrichment and never a requirement.
package history

import (
	"context"
	"math"
	"time"
)

// Commit is one history entry for a file.
type Commit struct {
	Hash      string    `json:"hash"`
	Author    string    `json:"author"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
}

// Contributor aggregates an author's activity on a file.
type Contributor struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Commits int    `json:"commits"`
}

// Provider supplies history for workspace files.
type Provider interface {
	// FileHistory returns up to limit commits touching the file, newest
	// first. Missing history yields an empty slice, not an error.
	FileHistory(ctx context.Context, path string, limit int) ([]Commit, error)

	// Contributors returns the file's authors ordered by commit count.
	Contributors(ctx context.Context, path string) ([]Contributor, error)

	// RecencyScore maps the file's last change onto [0, 1], where 1 is
	// just-changed and the score halves every 30 days.
	RecencyScore(ctx context.Context, path string) float64
}

// Null is the provider for workspaces without version control.
type Null struct{}

// NewNull returns a provider that reports no history.
func NewNull() Null { return Null{} }

func (Null) FileHistory(context.Context, string, int) ([]Commit, error) { return nil, nil }

func (Null) Contributors(context.Context, string) ([]Contributor, error) { return nil, nil }

func (Null) RecencyScore(context.Context, string) float64 { return 0 }

// halfLife is the recency decay period.
const halfLife = 30 * 24 * time.Hour

// decay converts an age into a half-life score in [0, 1].
func decay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}
