package history

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// logFormat keeps fields machine-splittable: hash, author, email, ISO date,
// subject, separated by the unit separator byte.
const logFormat = "%H%x1f%an%x1f%ae%x1f%aI%x1f%s"

// Git reads history through the git CLI rooted at a repository directory.
// Lookups are cached because context assembly asks about the same files
// repeatedly.
type Git struct {
	root  string
	log   *logrus.Entry
	cache *gocache.Cache
	now   func() time.Time
}

// NewGit returns a provider for the repository at root. It does not verify
// the directory; lookups in a non-repository degrade to empty results.
func NewGit(root string, logger *logrus.Logger) *Git {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
	}
	return &Git{
		root:  root,
		log:   logger.WithField("component", "history"),
		cache: gocache.New(5*time.Minute, 10*time.Minute),
		now:   time.Now,
	}
}

// IsRepository reports whether a git repository governs root.
func IsRepository(root string) bool {
	dir := root
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

func (g *Git) FileHistory(ctx context.Context, path string, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 10
	}
	key := "log\x00" + path + "\x00" + strconv.Itoa(limit)
	if cached, ok := g.cache.Get(key); ok {
		return cached.([]Commit), nil
	}

	out, err := g.run(ctx, "log", "--follow", "-n", strconv.Itoa(limit),
		"--pretty=format:"+logFormat, "--", g.relative(path))
	if err != nil {
		g.log.WithError(err).WithField("path", path).Debug("git log failed")
		return nil, nil
	}

	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\x1f")
		if len(fields) < 5 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			continue
		}
		commits = append(commits, Commit{
			Hash:      fields[0],
			Author:    fields[1],
			Email:     fields[2],
			Timestamp: ts,
			Subject:   fields[4],
		})
	}
	g.cache.Set(key, commits, gocache.DefaultExpiration)
	return commits, nil
}

func (g *Git) Contributors(ctx context.Context, path string) ([]Contributor, error) {
	key := "contrib\x00" + path
	if cached, ok := g.cache.Get(key); ok {
		return cached.([]Contributor), nil
	}

	commits, err := g.FileHistory(ctx, path, 200)
	if err != nil {
		return nil, err
	}
	byEmail := make(map[string]*Contributor)
	for _, c := range commits {
		k := c.Email
		if k == "" {
			k = c.Author
		}
		if cur, ok := byEmail[k]; ok {
			cur.Commits++
		} else {
			byEmail[k] = &Contributor{Name: c.Author, Email: c.Email, Commits: 1}
		}
	}
	contributors := make([]Contributor, 0, len(byEmail))
	for _, c := range byEmail {
		contributors = append(contributors, *c)
	}
	sort.Slice(contributors, func(i, j int) bool {
		if contributors[i].Commits != contributors[j].Commits {
			return contributors[i].Commits > contributors[j].Commits
		}
		return contributors[i].Name < contributors[j].Name
	})
	g.cache.Set(key, contributors, gocache.DefaultExpiration)
	return contributors, nil
}

// RecencyScore prefers commit history and falls back to filesystem mtime for
// files git does not know about.
func (g *Git) RecencyScore(ctx context.Context, path string) float64 {
	commits, _ := g.FileHistory(ctx, path, 1)
	if len(commits) > 0 {
		return decay(g.now().Sub(commits[0].Timestamp))
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.root, path)
	}
	if info, err := os.Stat(abs); err == nil {
		return decay(g.now().Sub(info.ModTime()))
	}
	return 0
}

// Flush drops cached lookups, for use after a full reindex.
func (g *Git) Flush() {
	g.cache.Flush()
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.root}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

// relative rewrites absolute workspace paths so git accepts them from the
// repository root.
func (g *Git) relative(path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(g.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
