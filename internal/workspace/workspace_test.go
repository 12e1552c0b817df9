package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/entity"
)

func newTestRegistry(t *testing.T) (*Registry, Repository, Repository) {
	t.Helper()
	reg := NewRegistry()
	r1, err := reg.Add(Repository{ID: "r1", Name: "alpha", Path: "/repos/alpha"})
	require.NoError(t, err)
	r2, err := reg.Add(Repository{ID: "r2", Name: "beta", Path: "/repos/beta"})
	require.NoError(t, err)
	return reg, r1, r2
}

func TestRegistry_FirstAddedIsPrimary(t *testing.T) {
	reg, r1, _ := newTestRegistry(t)

	primary, ok := reg.Primary()
	require.True(t, ok)
	assert.Equal(t, r1.ID, primary.ID)
	assert.Equal(t, 2, reg.Count())
}

func TestRegistry_AddAssignsID(t *testing.T) {
	reg := NewRegistry()

	repo, err := reg.Add(Repository{Name: "x", Path: "/x"})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.ID)
	assert.False(t, repo.AddedAt.IsZero())
}

func TestRegistry_AddRejectsDuplicates(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Add(Repository{ID: "r1", Path: "/elsewhere"})
	assert.Error(t, err)

	_, err = reg.Add(Repository{ID: "fresh", Path: "/repos/alpha"})
	assert.Error(t, err)
}

func TestRegistry_RemovePromotesNextOldest(t *testing.T) {
	reg, r1, r2 := newTestRegistry(t)

	require.NoError(t, reg.Remove(r1.ID))

	primary, ok := reg.Primary()
	require.True(t, ok)
	assert.Equal(t, r2.ID, primary.ID)
	assert.Equal(t, 1, reg.Count())

	_, found := reg.Get(r1.ID)
	assert.False(t, found)
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	assert.Error(t, reg.Remove("nope"))
}

func TestRegistry_AddLinkDeduplicates(t *testing.T) {
	reg, r1, r2 := newTestRegistry(t)
	link := Link{FromRepo: r1.ID, FromEntity: "e1", ToRepo: r2.ID, ToEntity: "e2", Type: entity.RelImports}

	require.NoError(t, reg.AddLink(link))
	require.NoError(t, reg.AddLink(link))

	assert.Len(t, reg.Links(), 1)
}

func TestRegistry_AddLinkRequiresRegisteredRepos(t *testing.T) {
	reg, r1, _ := newTestRegistry(t)

	err := reg.AddLink(Link{FromRepo: r1.ID, FromEntity: "e1", ToRepo: "ghost", ToEntity: "e2", Type: entity.RelUses})
	assert.Error(t, err)
}

func TestRegistry_LinksForEitherEndpoint(t *testing.T) {
	reg, r1, r2 := newTestRegistry(t)
	link := Link{FromRepo: r1.ID, FromEntity: "e1", ToRepo: r2.ID, ToEntity: "e2", Type: entity.RelImports}
	require.NoError(t, reg.AddLink(link))

	fromSide := reg.LinksFor("e1")
	toSide := reg.LinksFor("e2")

	require.Len(t, fromSide, 1)
	require.Len(t, toSide, 1)
	assert.Equal(t, fromSide[0], toSide[0])
	assert.Empty(t, reg.LinksFor("e3"))
}

func TestRegistry_RemoveDropsTouchingLinks(t *testing.T) {
	reg, r1, r2 := newTestRegistry(t)
	r3, err := reg.Add(Repository{ID: "r3", Name: "gamma", Path: "/repos/gamma"})
	require.NoError(t, err)

	require.NoError(t, reg.AddLink(Link{FromRepo: r1.ID, FromEntity: "a", ToRepo: r2.ID, ToEntity: "b", Type: entity.RelImports}))
	require.NoError(t, reg.AddLink(Link{FromRepo: r2.ID, FromEntity: "c", ToRepo: r3.ID, ToEntity: "d", Type: entity.RelUses}))

	require.NoError(t, reg.Remove(r1.ID))

	links := reg.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "c", links[0].FromEntity)

	// The dropped link can be re-added once its repo returns.
	_, err = reg.Add(Repository{ID: "r1", Name: "alpha", Path: "/repos/alpha"})
	require.NoError(t, err)
	require.NoError(t, reg.AddLink(Link{FromRepo: r1.ID, FromEntity: "a", ToRepo: r2.ID, ToEntity: "b", Type: entity.RelImports}))
	assert.Len(t, reg.Links(), 2)
}
