package search

import (
	"strings"

	"github.com/jward/arbor/internal/entity"
)

// idiomMarkers maps a query term naming a code idiom to the substrings that
// mark an entity as following it. The pattern component is binary: an entity
// either matches a requested idiom or it does not.
var idiomMarkers = map[string][]string{
	"handler":    {"handler", "handle"},
	"service":    {"service", "svc"},
	"test":       {"test", "spec"},
	"controller": {"controller", "ctrl"},
	"repository": {"repository", "repo", "store"},
	"config":     {"config", "conf", "settings"},
	"factory":    {"factory", "new", "create", "make"},
	"util":       {"util", "helper"},
}

// textSimilarity compares the query against the entity name and file path.
// An exact name match scores 1. Otherwise the score is 0.6 times the share
// of query terms found in the name or path, plus 0.3 when the name starts
// with the query or 0.2 when it merely contains it, clamped to 1.
func textSimilarity(query string, terms []string, e *entity.CodeEntity) float64 {
	if len(terms) == 0 {
		return 0
	}
	q := strings.ToLower(strings.TrimSpace(query))
	name := strings.ToLower(e.Name)
	if name == q {
		return 1
	}
	path := strings.ToLower(e.FilePath)

	hits := 0
	for _, t := range terms {
		if strings.Contains(name, t) || strings.Contains(path, t) {
			hits++
		}
	}
	score := 0.6 * float64(hits) / float64(len(terms))
	if strings.HasPrefix(name, q) {
		score += 0.3
	} else if strings.Contains(name, q) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// graphProximity converts BFS depth from the context entity to a score:
// 1/(1+hops). The context entity itself scores 1; anything beyond the BFS
// horizon scores 0.
func graphProximity(dist map[string]int, id string) float64 {
	if dist == nil {
		return 0
	}
	d, ok := dist[id]
	if !ok {
		return 0
	}
	return 1 / float64(1+d)
}

func patternBoost(terms []string, e *entity.CodeEntity) float64 {
	if len(terms) == 0 {
		return 0
	}
	name := strings.ToLower(e.Name)
	path := strings.ToLower(e.FilePath)
	for _, t := range terms {
		markers, ok := idiomMarkers[t]
		if !ok {
			continue
		}
		for _, m := range markers {
			if strings.Contains(name, m) || strings.Contains(path, m) {
				return 1
			}
		}
	}
	return 0
}
