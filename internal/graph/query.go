package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jward/arbor/internal/entity"
)

// Query filters a linear scan over all nodes. Name supports glob wildcards
// (* matches any run of characters) and matches case-insensitively.
type Query struct {
	Name     string
	Kind     entity.Kind
	FilePath string
	ParentID string
	Limit    int
}

// FindEntities scans every node against the query. Results are ordered by
// (filePath, startLine, name) so identical graphs always answer identically.
func (g *Graph) FindEntities(q Query) ([]*entity.CodeEntity, error) {
	var re *regexp.Regexp
	if q.Name != "" && q.Name != "*" {
		var err error
		re, err = CompileGlob(q.Name)
		if err != nil {
			return nil, fmt.Errorf("compile query %q: %w", q.Name, err)
		}
	}

	g.mu.RLock()
	var matches []*entity.CodeEntity
	for _, e := range g.nodes {
		if re != nil && !re.MatchString(e.Name) {
			continue
		}
		if q.Kind != "" && e.Type != q.Kind {
			continue
		}
		if q.FilePath != "" && e.FilePath != q.FilePath {
			continue
		}
		if q.ParentID != "" && e.ParentID != q.ParentID {
			continue
		}
		matches = append(matches, e)
	}
	g.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.Name < b.Name
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

// CompileGlob translates a glob pattern to an anchored case-insensitive
// regexp: * becomes .* and every other character matches literally.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
}
