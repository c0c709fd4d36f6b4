package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenm01/ec4x/internal/entity"
	"github.com/greenm01/ec4x/internal/events"
	"github.com/greenm01/ec4x/internal/rules"
)

func capitalSquadron(w *entity.World, owner, loc entity.ID, attack, commandRating int, crippled bool) entity.ID {
	fleetID := w.CreateFleet(entity.Fleet{Owner: owner, Location: loc})
	sqID := w.Squadrons.Insert(entity.Squadron{Owner: owner, Type: entity.SquadronCombat})
	w.AttachSquadron(fleetID, sqID)
	state := entity.ShipUndamaged
	if crippled {
		state = entity.ShipCrippled
	}
	shipID := w.Ships.Insert(entity.Ship{
		Owner: owner, FleetID: fleetID, SquadronID: sqID,
		Class: entity.ShipBattleship, AttackStrength: attack, CommandRating: commandRating, CombatState: state,
	})
	sq, _ := w.Squadrons.Get(sqID)
	sq.MemberIDs = append(sq.MemberIDs, shipID)
	sq.FlagshipID = shipID
	w.Squadrons.Update(sqID, sq)
	return sqID
}

// TestCapitalCapacityBreachSeizesCrippledFirst exercises spec section 8
// scenario 2: a house with 350 industrial units (capacity = 8 capital
// squadrons) fielding 10 capital squadrons must have 2 seized, crippled
// squadrons first, each refunding 50% of its attack strength to treasury.
func TestCapitalCapacityBreachSeizesCrippledFirst(t *testing.T) {
	w := entity.NewWorld()
	owner := w.Houses.Insert(entity.House{Name: "Atreides", Treasury: 0})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis"})
	w.Colonies.Insert(entity.Colony{SystemID: sys, Owner: owner, IndustrialUnits: 350})

	var crippledSquadrons []entity.ID
	for i := 0; i < 2; i++ {
		crippledSquadrons = append(crippledSquadrons, capitalSquadron(w, owner, sys, 100, 10, true))
	}
	for i := 0; i < 8; i++ {
		capitalSquadron(w, owner, sys, 100, 10, false)
	}

	rls, err := rules.Load(rules.Default())
	require.NoError(t, err)
	sink := events.NewSink()

	enforceCapacity(w, rls, sink)

	var seized int
	for _, e := range sink.All() {
		if e.Kind == events.KindCapitalShipSeized {
			seized++
		}
	}
	assert.Equal(t, 2, seized, "excess over the capacity of 8 must seize exactly 2 squadrons")

	for _, sqID := range crippledSquadrons {
		_, stillExists := w.Squadrons.Get(sqID)
		assert.False(t, stillExists, "crippled squadrons are seized before any undamaged squadron")
	}

	h, _ := w.Houses.Get(owner)
	assert.Equal(t, int64(100), h.Treasury, "each seized squadron refunds 50%% of its 100 attack strength")

	remaining := houseSquadrons(w, owner, true, rls)
	assert.Len(t, remaining, 8, "capacity is enforced down to exactly the computed limit")
}

func TestCapitalSquadronCapacityFormula(t *testing.T) {
	c := rules.CapacityFormulas{MapMultiplier: 1.0}
	assert.Equal(t, 8, c.CapitalSquadronCapacity(350), "floor(350/100)*2*1 = 6, below the floor of 8")
	assert.Equal(t, 14, c.CapitalSquadronCapacity(700), "floor(700/100)*2*1 = 14")
}

func TestApplyBlockadePenaltyReducesOnlyBlockadedColonies(t *testing.T) {
	w := entity.NewWorld()
	owner := w.Houses.Insert(entity.House{Name: "Atreides"})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis"})
	blockaded := w.Colonies.Insert(entity.Colony{SystemID: sys, Owner: owner, Blockaded: true})
	free := w.Colonies.Insert(entity.Colony{SystemID: sys, Owner: owner, Blockaded: false})

	rls := rules.Default()
	rls.Economy.BlockadePenalty = 0.60
	production := map[entity.ID]int64{blockaded: 100, free: 100}

	applyBlockadePenalty(w, rls, production)

	assert.Equal(t, int64(40), production[blockaded], "a blockaded colony loses 60% of its production")
	assert.Equal(t, int64(100), production[free], "a non-blockaded colony is untouched")
}

func TestCheckEliminationMarksHouseWithNoColoniesAndNoMarines(t *testing.T) {
	w := entity.NewWorld()
	houseless := w.Houses.Insert(entity.House{Name: "Ordos"})
	rls := rules.Default()
	sink := events.NewSink()

	checkElimination(w, rls, sink, 1)

	h, _ := w.Houses.Get(houseless)
	assert.True(t, h.Eliminated)
}

func TestCheckEliminationSparesHouseWithMarinesAboardTransport(t *testing.T) {
	w := entity.NewWorld()
	houseID := w.Houses.Insert(entity.House{Name: "Ordos"})
	shipID := w.Ships.Insert(entity.Ship{Owner: houseID, Class: entity.ShipTransport})
	w.GroundUnits.Insert(entity.GroundUnit{Owner: houseID, Type: entity.GroundMarine, Location: entity.Ref{Kind: entity.KindShip, ID: shipID}})

	rls := rules.Default()
	sink := events.NewSink()
	checkElimination(w, rls, sink, 1)

	h, _ := w.Houses.Get(houseID)
	assert.False(t, h.Eliminated, "marines aboard a transport count as a surviving foothold")
}

func TestCheckEliminationDefensiveCollapseAfterConsecutiveTurns(t *testing.T) {
	w := entity.NewWorld()
	owner := w.Houses.Insert(entity.House{Name: "Ordos", Prestige: 0})
	sys := w.Systems.Insert(entity.System{Name: "Arrakis"})
	w.Colonies.Insert(entity.Colony{SystemID: sys, Owner: owner, IndustrialUnits: 10})
	w.RebuildIndices()

	rls := rules.Default()
	rls.DefensiveCollapseThreshold = 100
	rls.DefensiveCollapseTurns = 3
	sink := events.NewSink()

	checkElimination(w, rls, sink, 1)
	h, _ := w.Houses.Get(owner)
	assert.False(t, h.Eliminated)
	assert.Equal(t, 1, h.LowPrestigeStreak)

	checkElimination(w, rls, sink, 2)
	checkElimination(w, rls, sink, 3)
	h, _ = w.Houses.Get(owner)
	assert.True(t, h.Eliminated, "three consecutive turns below the prestige threshold triggers defensive collapse")
}

func TestCheckVictorySoleSurvivor(t *testing.T) {
	w := entity.NewWorld()
	survivor := w.Houses.Insert(entity.House{Name: "Atreides"})
	w.Houses.Insert(entity.House{Name: "Harkonnen", Eliminated: true})

	rls := rules.Default()
	sink := events.NewSink()
	checkVictory(w, rls, sink, 1)

	require.Len(t, sink.All(), 1)
	assert.Equal(t, events.KindVictory, sink.All()[0].Kind)
	assert.Equal(t, survivor, sink.All()[0].House)
}
