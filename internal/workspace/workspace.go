// Package workspace tracks the repositories an engine indexes and the
// cross-repository entity links between them. The first registered
// repository is the primary; removing it promotes the next oldest.
package workspace

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jward/arbor/internal/entity"
)

// Repository is one indexed code root.
type Repository struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	AddedAt time.Time `json:"addedAt"`
}

// Link connects entities across two registered repositories.
type Link struct {
	FromRepo   string         `json:"fromRepo"`
	FromEntity string         `json:"fromEntity"`
	ToRepo     string         `json:"toRepo"`
	ToEntity   string         `json:"toEntity"`
	Type       entity.RelKind `json:"type"`
}

func (l Link) key() string {
	return l.FromRepo + "\x00" + l.FromEntity + "\x00" + l.ToRepo + "\x00" + l.ToEntity + "\x00" + string(l.Type)
}

// Registry holds repositories in registration order plus their links. All
// methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	repos []Repository
	links []Link
	seen  map[string]bool
	now   func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]bool), now: time.Now}
}

// Add registers a repository. An empty id is assigned one; a duplicate id or
// path is an error. The first repository added becomes the primary.
func (r *Registry) Add(repo Repository) (Repository, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if repo.ID == "" {
		repo.ID = uuid.NewString()
	}
	for _, existing := range r.repos {
		if existing.ID == repo.ID {
			return Repository{}, fmt.Errorf("repository id %q already registered", repo.ID)
		}
		if existing.Path == repo.Path {
			return Repository{}, fmt.Errorf("repository path %q already registered", repo.Path)
		}
	}
	if repo.AddedAt.IsZero() {
		repo.AddedAt = r.now()
	}
	r.repos = append(r.repos, repo)
	return repo, nil
}

// Remove drops a repository, promotes the next oldest to primary when the
// primary was removed, and discards every link touching the repository.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, repo := range r.repos {
		if repo.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("repository %q not registered", id)
	}
	r.repos = append(r.repos[:idx], r.repos[idx+1:]...)

	kept := r.links[:0]
	for _, l := range r.links {
		if l.FromRepo == id || l.ToRepo == id {
			delete(r.seen, l.key())
			continue
		}
		kept = append(kept, l)
	}
	r.links = kept
	return nil
}

// Primary returns the current primary repository.
func (r *Registry) Primary() (Repository, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.repos) == 0 {
		return Repository{}, false
	}
	return r.repos[0], true
}

// Get returns the repository with the given id.
func (r *Registry) Get(id string) (Repository, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, repo := range r.repos {
		if repo.ID == id {
			return repo, true
		}
	}
	return Repository{}, false
}

// Repositories returns the registered repositories in registration order.
func (r *Registry) Repositories() []Repository {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Repository, len(r.repos))
	copy(out, r.repos)
	return out
}

// Count returns how many repositories are registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.repos)
}

// AddLink records a cross-repository link. Both repositories must be
// registered. Re-adding an identical link is a no-op.
func (r *Registry) AddLink(l Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasRepoLocked(l.FromRepo) {
		return fmt.Errorf("repository %q not registered", l.FromRepo)
	}
	if !r.hasRepoLocked(l.ToRepo) {
		return fmt.Errorf("repository %q not registered", l.ToRepo)
	}
	if r.seen[l.key()] {
		return nil
	}
	r.seen[l.key()] = true
	r.links = append(r.links, l)
	return nil
}

// LinksFor returns every link with the entity at either endpoint.
func (r *Registry) LinksFor(entityID string) []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Link
	for _, l := range r.links {
		if l.FromEntity == entityID || l.ToEntity == entityID {
			out = append(out, l)
		}
	}
	return out
}

// Links returns all links sorted for stable output.
func (r *Registry) Links() []Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Link, len(r.links))
	copy(out, r.links)
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

func (r *Registry) hasRepoLocked(id string) bool {
	for _, repo := range r.repos {
		if repo.ID == id {
			return true
		}
	}
	return false
}
