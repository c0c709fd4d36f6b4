package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapitalSquadronCapacityEnforcesFloor(t *testing.T) {
	c := CapacityFormulas{MapMultiplier: 1.0}

	// Total House IU low enough that the formula would fall under the
	// floor of 8; the floor must win.
	assert.Equal(t, 8, c.CapitalSquadronCapacity(100))
}

func TestCapitalSquadronCapacityScalesWithIU(t *testing.T) {
	c := CapacityFormulas{MapMultiplier: 1.0}

	// floor(1000/100) * 2 * 1.0 = 20
	assert.Equal(t, 20, c.CapitalSquadronCapacity(1000))
}

func TestTotalSquadronCapacityEnforcesFloor(t *testing.T) {
	c := CapacityFormulas{MapMultiplier: 1.0}
	assert.Equal(t, 20, c.TotalSquadronCapacity(100))
}

func TestTotalSquadronCapacityScalesWithIU(t *testing.T) {
	c := CapacityFormulas{MapMultiplier: 1.0}
	// floor(5000/50) * 1.0 = 100
	assert.Equal(t, 100, c.TotalSquadronCapacity(5000))
}

func TestFighterCapacityPerColonyScalesWithColonyIU(t *testing.T) {
	c := CapacityFormulas{FighterMultiplier: 2.0}
	// floor(350/100) * 2.0 = 6
	assert.Equal(t, 6, c.FighterCapacityPerColony(350))
}

func TestDefaultReturnsUsableBaseline(t *testing.T) {
	r := Default()
	require.NotNil(t, r)
	assert.Equal(t, 8, r.Capacity.CapitalSquadronCapacity(0))
	assert.Equal(t, 2, r.GraceTurns)
	assert.Equal(t, 3, r.DefensiveCollapseTurns)
	assert.NotEmpty(t, r.Detection, "detection table must be populated or combat.RunDetection always misses")
	assert.Len(t, r.Espionage, 5, "all five named espionage effect kinds must have a default entry")
	for _, kind := range []string{
		EffectResearchReduction,
		EffectColonyValueReduction,
		EffectTaxReduction,
		EffectFacilityCrippling,
		EffectIntelCorruption,
	} {
		entry, ok := r.Espionage[kind]
		assert.True(t, ok, "missing default espionage entry for %s", kind)
		assert.Greater(t, entry.Duration, 0)
	}
}

func TestLoadStampsStableConfigHash(t *testing.T) {
	a, err := Load(Default())
	require.NoError(t, err)
	require.NotEmpty(t, a.ConfigHash)

	b, err := Load(Default())
	require.NoError(t, err)

	assert.Equal(t, a.ConfigHash, b.ConfigHash, "two loads of an identical bundle must hash identically")
}

func TestLoadProducesDifferentHashForDifferentBundle(t *testing.T) {
	a, err := Load(Default())
	require.NoError(t, err)

	other := Default()
	other.TurnLimit = 999
	b, err := Load(other)
	require.NoError(t, err)

	assert.NotEqual(t, a.ConfigHash, b.ConfigHash)
}
