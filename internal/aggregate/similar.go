package aggregate

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/jward/arbor/internal/entity"
	"github.com/jward/arbor/internal/graph"
)

// maxSimilar caps the similar-entity list before truncation even starts.
const maxSimilar = 5

// similarTo scores same-kind entities against the focal one. Signals:
// shared name sub-words (split on case and separator boundaries, Jaccard
// weighted 0.5), substring containment between names (0.3), and living in
// the same directory (0.2).
func (a *Aggregator) similarTo(focal *entity.CodeEntity) []SimilarEntity {
	focalWords := subwords(focal.Name)
	focalName := strings.ToLower(focal.Name)
	focalDir := filepath.Dir(focal.FilePath)

	var out []SimilarEntity
	for _, n := range a.graph.Nodes() {
		if n.ID == focal.ID || n.Type != focal.Type {
			continue
		}
		score := 0.0
		if j := jaccard(focalWords, subwords(n.Name)); j > 0 {
			score += 0.5 * j
		}
		name := strings.ToLower(n.Name)
		if len(focalName) >= 3 && len(name) >= 3 &&
			(strings.Contains(name, focalName) || strings.Contains(focalName, name)) {
			score += 0.3
		}
		if filepath.Dir(n.FilePath) == focalDir {
			score += 0.2
		}
		if score <= 0.2 {
			// Same directory alone is not similarity.
			continue
		}
		if score > 1 {
			score = 1
		}
		out = append(out, SimilarEntity{Entity: *n.Clone(), Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Entity.Name != out[j].Entity.Name {
			return out[i].Entity.Name < out[j].Entity.Name
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	if len(out) > maxSimilar {
		out = out[:maxSimilar]
	}
	return out
}

// subwords splits an identifier on case boundaries and separators:
// "getUserByEmail" and "get_user_by_email" both yield
// {get, user, by, email}.
func subwords(name string) map[string]bool {
	words := map[string]bool{}
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words[strings.ToLower(string(cur))] = true
			cur = cur[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.' || r == '$':
			flush()
		case unicode.IsUpper(r):
			// Boundary unless the previous rune was also upper
			// (keeps acronyms like HTTPServer -> http, server).
			if i > 0 && !unicode.IsUpper(runes[i-1]) {
				flush()
			}
			cur = append(cur, r)
		default:
			if i > 0 && unicode.IsUpper(runes[i-1]) && len(cur) > 1 {
				// Transition like "HTTPServer": the final upper rune
				// starts the next word.
				last := cur[len(cur)-1]
				cur = cur[:len(cur)-1]
				flush()
				cur = append(cur, last)
			}
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// hubFanIn is the in-degree at which an entity counts as a hub.
const hubFanIn = 5

// detectPatterns reports naming and structure idioms around the focal
// entity, in a fixed order.
func (a *Aggregator) detectPatterns(focal *entity.CodeEntity) []string {
	var out []string
	name := focal.Name
	lower := strings.ToLower(name)
	file := strings.ToLower(focal.FilePath)

	if isAccessor(name) || focal.Type == entity.KindProperty {
		out = append(out, "accessor")
	}
	if name == "constructor" || name == "__init__" ||
		(strings.HasPrefix(name, "New") && focal.Type == entity.KindFunction) {
		out = append(out, "constructor")
	}
	if strings.Contains(lower, "test") || strings.Contains(lower, "spec") ||
		strings.Contains(file, "test") || strings.Contains(file, "spec") {
		out = append(out, "test")
	}
	if len(a.graph.GetEdges(focal.ID, graph.DirectionIn)) >= hubFanIn {
		out = append(out, "hub")
	}
	return out
}

func isAccessor(name string) bool {
	for _, prefix := range []string{"get", "set", "is", "has"} {
		if len(name) > len(prefix) && strings.HasPrefix(name, prefix) {
			next := rune(name[len(prefix)])
			if unicode.IsUpper(next) || next == '_' {
				return true
			}
		}
	}
	return false
}
