package fow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/rules"
)

func buildSampleWorld(t *testing.T) (*entity.World, entity.ID, entity.ID) {
	t.Helper()
	w := entity.NewWorld()
	owner := w.Houses.Insert(entity.House{Name: "Atreides"})
	rival := w.Houses.Insert(entity.House{Name: "Harkonnen"})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis", PlanetClass: entity.PlanetFertile})
	w.Colonies.Insert(entity.Colony{SystemID: sys, Owner: owner, IndustrialUnits: 50})
	w.Colonies.Insert(entity.Colony{SystemID: sys, Owner: rival, IndustrialUnits: 30})
	return w, owner, rival
}

func TestProjectOnlyExposesOwnEntitiesInFull(t *testing.T) {
	w, owner, _ := buildSampleWorld(t)
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	ps := Project(w, rls, "game-1", 1, owner)

	require.Len(t, ps.OwnColonies, 1)
	assert.Equal(t, owner, ps.OwnColonies[0].Owner)

	// Public house list still covers every house, including the rival.
	assert.Len(t, ps.Houses, 2)
}

func TestProjectEliminatedHouseHasNoOwnEntities(t *testing.T) {
	w := entity.NewWorld()
	eliminated := w.Houses.Insert(entity.House{Name: "Ordos", Eliminated: true})
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	ps := Project(w, rls, "game-1", 10, eliminated)

	assert.Empty(t, ps.OwnColonies)
	assert.Empty(t, ps.OwnFleets)
	assert.Empty(t, ps.OwnShips)
}

func TestProjectIsIdempotent(t *testing.T) {
	w, owner, _ := buildSampleWorld(t)
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	a := Project(w, rls, "game-1", 3, owner)
	b := Project(w, rls, "game-1", 3, owner)

	assert.Equal(t, a, b, "projecting the same world twice must yield identical PlayerStates")
}

func TestDiffOfIdenticalStatesIsEmpty(t *testing.T) {
	w, owner, _ := buildSampleWorld(t)
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	ps := Project(w, rls, "game-1", 1, owner)
	d := Diff(&ps, &ps)

	assert.True(t, d.Colonies.Empty())
	assert.True(t, d.Fleets.Empty())
	assert.False(t, d.ActChanged)
}

func TestDiffFromNilMarksEverythingAdded(t *testing.T) {
	w, owner, _ := buildSampleWorld(t)
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	ps := Project(w, rls, "game-1", 1, owner)
	d := Diff(nil, &ps)

	require.Len(t, d.Colonies.Added, 1)
	assert.Empty(t, d.Colonies.Updated)
	assert.Empty(t, d.Colonies.Removed)
	assert.True(t, d.ActChanged, "the first delta a house ever receives must report the act progression")
}

func TestDiffDetectsAddedAndUpdated(t *testing.T) {
	w, owner, _ := buildSampleWorld(t)
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	before := Project(w, rls, "game-1", 1, owner)

	// Mutate: change the existing colony's industrial units (update) and
	// add a second colony (added) for the same owner.
	for id, c := range w.Colonies.Iterate(func(_ entity.ID, c entity.Colony) bool { return c.Owner == owner }) {
		c.IndustrialUnits = 999
		w.Colonies.Update(id, c)
	}
	sys2 := w.Systems.Insert(entity.System{Name: "Caladan"})
	w.Colonies.Insert(entity.Colony{SystemID: sys2, Owner: owner, IndustrialUnits: 10})

	after := Project(w, rls, "game-1", 2, owner)
	d := Diff(&before, &after)

	assert.Len(t, d.Colonies.Added, 1)
	assert.Len(t, d.Colonies.Updated, 1)
	assert.Empty(t, d.Colonies.Removed)
}

func TestDiffMinimalWhenOnlyOneKindChanges(t *testing.T) {
	w, owner, _ := buildSampleWorld(t)
	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)

	before := Project(w, rls, "game-1", 1, owner)

	sys2 := w.Systems.Insert(entity.System{Name: "Caladan"})
	w.Colonies.Insert(entity.Colony{SystemID: sys2, Owner: owner, IndustrialUnits: 1})

	after := Project(w, rls, "game-1", 2, owner)
	d := Diff(&before, &after)

	assert.False(t, d.Colonies.Empty())
	assert.True(t, d.Fleets.Empty())
	assert.True(t, d.Ships.Empty())
	assert.True(t, d.Facilities.Empty())
}
